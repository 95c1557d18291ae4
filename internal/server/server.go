// Package server assembles the catalog HTTP API.
package server

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"swcatalog/internal/auth"
	"swcatalog/internal/broadcast"
	"swcatalog/internal/character"
	"swcatalog/internal/film"
	"swcatalog/internal/ingest"
	"swcatalog/internal/starship"
)

type Deps struct {
	DB     *sql.DB
	DBPath string
	Hub    *broadcast.Hub
	Runner *ingest.Runner

	// Gatherer backs /metrics. Nil uses the default gatherer.
	Gatherer prometheus.Gatherer

	Tokens           auth.TokenService
	OpenRegistration bool
	IngestLimit      int

	Log zerolog.Logger
}

// NewRouter wires every route. Reads are public; writes and the ingest
// trigger need an operator token.
func NewRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), AccessLog(d.Log))
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "db": d.DBPath})
	})
	router.GET("/ready", ready(d.DB, d.Hub))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	if d.Hub != nil {
		router.GET("/ws", broadcast.WSHandler(d.Hub))
	}

	authRepo := auth.NewRepo(d.DB)
	authHandler := auth.NewHandler(authRepo, d.Tokens, d.Log)
	authHandler.OpenRegistration = d.OpenRegistration
	authHandler.RegisterRoutes(router.Group("/auth"))

	guard := auth.RequireOperator(d.Tokens, authRepo)
	api := router.Group("/api")

	chars := character.NewHandler(character.NewRepo(d.DB))
	chars.RegisterPublicRoutes(api.Group("/characters"))
	chars.RegisterProtectedRoutes(api.Group("/characters", guard))

	films := film.NewHandler(film.NewRepo(d.DB))
	films.RegisterPublicRoutes(api.Group("/films"))
	films.RegisterProtectedRoutes(api.Group("/films", guard))

	ships := starship.NewHandler(starship.NewRepo(d.DB))
	ships.RegisterPublicRoutes(api.Group("/starships"))
	ships.RegisterProtectedRoutes(api.Group("/starships", guard))

	if d.Runner != nil {
		ing := ingest.NewHandler(d.Runner, d.IngestLimit)
		ing.RegisterPublicRoutes(api.Group("/ingest"))
		ing.RegisterProtectedRoutes(api.Group("/ingest", guard))
	}

	return router
}

func ready(db *sql.DB, hub *broadcast.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		var stats broadcast.Stats
		if hub != nil {
			stats = hub.Stats()
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":      "not_ready",
				"db_error":    err.Error(),
				"tcp_clients": stats.TCPClients,
				"ws_clients":  stats.WSClients,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":      "ready",
			"db":          "ok",
			"tcp_clients": stats.TCPClients,
			"ws_clients":  stats.WSClients,
		})
	}
}
