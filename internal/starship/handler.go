package starship

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"swcatalog/internal/api"
	"swcatalog/pkg/database"
	"swcatalog/pkg/models"
)

type Handler struct {
	Repo *Repo
}

func NewHandler(repo *Repo) *Handler {
	return &Handler{Repo: repo}
}

func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.list)        // GET /starships
	rg.GET("/:id", h.getByID) // GET /starships/:id
}

func (h *Handler) RegisterProtectedRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.create)
	rg.PUT("/:id", h.replace)
	rg.PATCH("/:id", h.patch)
	rg.DELETE("/:id", h.delete)
}

func (h *Handler) list(c *gin.Context) {
	page, ok := api.ParsePage(c)
	if !ok {
		api.InvalidPage(c)
		return
	}
	q := ListQuery{Search: c.Query("search"), Limit: page.Size, Offset: page.Offset()}

	total, err := h.Repo.Count(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count failed"})
		return
	}
	if !page.InRange(total) {
		api.InvalidPage(c)
		return
	}

	items, err := h.Repo.List(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, api.Envelope(c, page, total, items))
}

func (h *Handler) getByID(c *gin.Context) {
	id, ok := api.ParseID(c)
	if !ok {
		return
	}
	s, ok := h.load(c, id)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) create(c *gin.Context) {
	var in models.Starship
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	in.ID = 0
	if !h.check(c, &in) {
		return
	}
	if err := h.Repo.Create(c.Request.Context(), &in); err != nil {
		writeErr(c, err, "create failed")
		return
	}
	c.JSON(http.StatusCreated, &in)
}

func (h *Handler) replace(c *gin.Context) {
	id, ok := api.ParseID(c)
	if !ok {
		return
	}
	existing, ok := h.load(c, id)
	if !ok {
		return
	}

	var in models.Starship
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	in.ID = id
	if in.Created.IsZero() {
		in.Created = existing.Created
	}
	h.save(c, &in)
}

func (h *Handler) patch(c *gin.Context) {
	id, ok := api.ParseID(c)
	if !ok {
		return
	}
	s, ok := h.load(c, id)
	if !ok {
		return
	}
	if err := c.ShouldBindJSON(s); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	s.ID = id
	h.save(c, s)
}

func (h *Handler) delete(c *gin.Context) {
	id, ok := api.ParseID(c)
	if !ok {
		return
	}
	deleted, err := h.Repo.Delete(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) load(c *gin.Context, id int64) (*models.Starship, bool) {
	s, err := h.Repo.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return nil, false
	}
	if s == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return nil, false
	}
	return s, true
}

func (h *Handler) save(c *gin.Context, s *models.Starship) {
	if !h.check(c, s) {
		return
	}
	found, err := h.Repo.Update(c.Request.Context(), s)
	if err != nil {
		writeErr(c, err, "update failed")
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, s)
}

// check validates s and its pilot ids, writing a 400 on failure.
func (h *Handler) check(c *gin.Context, s *models.Starship) bool {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name required"})
		return false
	}
	missing, err := database.MissingIDs(c.Request.Context(), h.Repo.DB, "characters", s.Pilots)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return false
	}
	if len(missing) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown pilots: %v", missing)})
		return false
	}
	return true
}

func writeErr(c *gin.Context, err error, fallback string) {
	if database.IsConstraint(err) {
		c.JSON(http.StatusConflict, gin.H{"error": "starship with this name already exists"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
}
