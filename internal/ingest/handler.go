package ingest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"swcatalog/internal/api"
)

type Handler struct {
	Runner       *Runner
	DefaultLimit int
}

func NewHandler(runner *Runner, defaultLimit int) *Handler {
	return &Handler{Runner: runner, DefaultLimit: defaultLimit}
}

func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.GET("/status", h.status) // GET /ingest/status
}

func (h *Handler) RegisterProtectedRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.trigger) // POST /ingest?limit=N
}

func (h *Handler) trigger(c *gin.Context) {
	limit := api.ParseInt(c.Query("limit"), h.DefaultLimit)

	runID, err := h.Runner.Start("api", limit)
	if errors.Is(err, ErrRunInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": "ingestion already running"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "start failed"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "limit": limit})
}

func (h *Handler) status(c *gin.Context) {
	st, ok := h.Runner.Status()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no ingestion has run yet"})
		return
	}
	c.JSON(http.StatusOK, st)
}
