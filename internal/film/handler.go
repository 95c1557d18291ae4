package film

import (
	"fmt"
	"net/http"
	"strings"
	"time"

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
	rg.GET("", h.list)        // GET /films
	rg.GET("/:id", h.getByID) // GET /films/:id
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
	f, ok := h.load(c, id)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, f)
}

func (h *Handler) create(c *gin.Context) {
	var in models.Film
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

	var in models.Film
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
	f, ok := h.load(c, id)
	if !ok {
		return
	}
	if err := c.ShouldBindJSON(f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	f.ID = id
	h.save(c, f)
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

func (h *Handler) load(c *gin.Context, id int64) (*models.Film, bool) {
	f, err := h.Repo.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return nil, false
	}
	if f == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return nil, false
	}
	return f, true
}

func (h *Handler) save(c *gin.Context, f *models.Film) {
	if !h.check(c, f) {
		return
	}
	found, err := h.Repo.Update(c.Request.Context(), f)
	if err != nil {
		writeErr(c, err, "update failed")
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, f)
}

// check validates f and its linked ids, writing a 400 on failure.
func (h *Handler) check(c *gin.Context, f *models.Film) bool {
	if msg := validate(f); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return false
	}
	ctx := c.Request.Context()
	for _, ref := range []struct {
		field string
		table string
		ids   []int64
	}{
		{"characters", "characters", f.Characters},
		{"starships", "starships", f.Starships},
	} {
		missing, err := database.MissingIDs(ctx, h.Repo.DB, ref.table, ref.ids)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
			return false
		}
		if len(missing) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown %s: %v", ref.field, missing)})
			return false
		}
	}
	return true
}

func validate(f *models.Film) string {
	f.Title = strings.TrimSpace(f.Title)
	switch {
	case f.Title == "":
		return "title required"
	case f.EpisodeID <= 0:
		return "episode_id must be positive"
	}
	if _, err := time.Parse(time.DateOnly, f.ReleaseDate); err != nil {
		return "release_date must be YYYY-MM-DD"
	}
	return ""
}

func writeErr(c *gin.Context, err error, fallback string) {
	if database.IsConstraint(err) {
		c.JSON(http.StatusConflict, gin.H{"error": "film with this title or episode_id already exists"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
}
