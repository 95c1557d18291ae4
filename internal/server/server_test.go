package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swcatalog/internal/auth"
	"swcatalog/internal/broadcast"
	"swcatalog/internal/ingest"
	"swcatalog/internal/logging"
	"swcatalog/pkg/database/dbtest"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := dbtest.Open(t)
	reg := prometheus.NewRegistry()
	hub := broadcast.NewHub(logging.Nop())
	runner := ingest.NewRunner(&ingest.Ingestor{}, hub, ingest.NewMetrics(reg), logging.Nop())
	t.Cleanup(runner.Shutdown)

	return NewRouter(Deps{
		DB:       db,
		DBPath:   "test.db",
		Hub:      hub,
		Runner:   runner,
		Gatherer: reg,
		Tokens: auth.TokenService{
			Secret:   []byte("test-secret"),
			Issuer:   "swcatalog-test",
			Duration: time.Hour,
		},
		Log: logging.Nop(),
	})
}

func do(r http.Handler, method, target, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func register(t *testing.T, r http.Handler) string {
	t.Helper()
	w := do(r, http.MethodPost, "/auth/register", "",
		`{"username":"leia","email":"leia@alderaan.org","password":"helpme-obiwan"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestHealthAndReady(t *testing.T) {
	r := newTestRouter(t)

	w := do(r, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = do(r, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"tcp_clients":0`)
}

func TestMetricsExposeIngestion(t *testing.T) {
	r := newTestRouter(t)

	w := do(r, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "swcatalog_ingest_running")
}

func TestReadsArePublicWritesNeedToken(t *testing.T) {
	r := newTestRouter(t)

	for _, path := range []string{"/api/characters", "/api/films", "/api/starships"} {
		w := do(r, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Contains(t, w.Body.String(), `"count":0`, path)
	}

	w := do(r, http.MethodPost, "/api/characters", "", `{"name":"Leia Organa"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/api/ingest", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodGet, "/api/ingest/status", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOperatorCanWrite(t *testing.T) {
	r := newTestRouter(t)
	token := register(t, r)

	w := do(r, http.MethodPost, "/api/characters", token, `{"name":"Leia Organa","gender":"female"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(r, http.MethodGet, "/api/characters?search=leia", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Leia Organa")

	w = do(r, http.MethodPost, "/auth/logout", token, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPost, "/api/starships", token, `{"name":"Tantive IV"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAccessLogLevels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)

	r := gin.New()
	r.Use(AccessLog(log))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	do(r, http.MethodGet, "/ok?x=1", "", "")
	do(r, http.MethodGet, "/boom", "", "")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "debug", first["level"])
	assert.Equal(t, "/ok", first["path"])
	assert.Equal(t, "x=1", first["query"])
	assert.Equal(t, "error", second["level"])
	assert.EqualValues(t, 500, second["status"])
}
