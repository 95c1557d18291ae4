package starship

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swcatalog/pkg/database/dbtest"
	"swcatalog/pkg/models"
)

func newRouter(t *testing.T) (*gin.Engine, *Repo) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo := NewRepo(dbtest.Open(t))
	h := NewHandler(repo)

	r := gin.New()
	g := r.Group("/api/starships")
	h.RegisterPublicRoutes(g)
	h.RegisterProtectedRoutes(g)
	return r, repo
}

func do(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStarshipCRUD(t *testing.T) {
	r, repo := newRouter(t)
	pilots := seedCharacters(t, repo.DB, "Wedge")

	w := do(r, http.MethodPost, "/api/starships",
		fmt.Sprintf(`{"name":"X-wing","cost_in_credits":null,"MGLT":"100","pilots":[%d]}`, pilots[0]))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var s models.Starship
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	assert.Equal(t, pilots, s.Pilots)
	assert.Nil(t, s.CostInCredits)
	assert.Contains(t, w.Body.String(), `"cost_in_credits":null`)

	assert.Equal(t, http.StatusConflict, do(r, http.MethodPost, "/api/starships", `{"name":"X-wing"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/starships", `{"name":"Y-wing","pilots":[404]}`).Code)

	w = do(r, http.MethodPut, fmt.Sprintf("/api/starships/%d", s.ID), `{"name":"X-wing","crew":"1"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got, err := repo.GetByID(t.Context(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, "1", got.Crew)
	assert.Empty(t, got.Pilots)

	assert.Equal(t, http.StatusNoContent, do(r, http.MethodDelete, fmt.Sprintf("/api/starships/%d", s.ID), "").Code)
}

func TestStarshipListSearch(t *testing.T) {
	r, repo := newRouter(t)
	for _, name := range []string{"Death Star", "Star Destroyer", "X-wing"} {
		require.NoError(t, repo.Create(t.Context(), &models.Starship{Name: name}))
	}

	w := do(r, http.MethodGet, "/api/starships?search=star&page_size=1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Count   int               `json:"count"`
		Next    string            `json:"next"`
		Results []models.Starship `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Results, 1)
	assert.Equal(t, "Death Star", body.Results[0].Name)
	assert.Contains(t, body.Next, "page=2")
}
