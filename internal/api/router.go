package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/recall/internal/middleware"
	"github.com/persistorai/recall/internal/security"
	"github.com/persistorai/recall/internal/ws"
)

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	Log     *logrus.Logger
	DB      Database
	Hub     *ws.Hub
	Query   QueryService
	Ingest  IngestService
	Chunks  ChunkReader
	Persons PersonService
	Buffer  MessageBuffer
	Admin   AdminService
	Health  HealthConfig

	// APIKey enables bearer authentication when non-empty.
	APIKey         string
	CORSOrigins    []string
	RateLimitRPS   int
	RateLimitBurst int
}

// maxBodySize caps request bodies; chunk batches are the largest payloads.
const maxBodySize = 10 << 20 // 10 MB

// setupMiddleware configures all middleware on the Gin engine.
func setupMiddleware(ctx context.Context, r *gin.Engine, deps *RouterDeps) {
	r.SetTrustedProxies(nil) //nolint:errcheck // nil always succeeds.
	r.Use(middleware.RequestID(deps.Log))
	r.Use(ginLogger(deps.Log))
	r.Use(gin.Recovery())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.MaxBodySize(maxBodySize))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     deps.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		MaxAge:           1 * time.Hour,
		AllowCredentials: false,
	}))
	if deps.RateLimitRPS > 0 {
		r.Use(middleware.NewRateLimiter(ctx, deps.RateLimitRPS, deps.RateLimitBurst).Handler())
	}
	r.Use(middleware.PrometheusMiddleware())
}

// registerRoutes sets up all API route handlers on the given router group.
func registerRoutes(ctx context.Context, api *gin.RouterGroup, deps *RouterDeps) {
	log := deps.Log

	health := NewHealthHandler(deps.DB, log, deps.Health)
	retrieve := NewRetrieveHandler(deps.Query, log)
	chunks := NewChunkHandler(deps.Ingest, deps.Chunks, log)
	persons := NewPersonHandler(deps.Persons, log)
	messages := NewMessageHandler(deps.Buffer, log)
	admin := NewAdminHandler(deps.Admin, log)

	// Health and readiness are unauthenticated.
	api.GET("/health", health.Liveness)
	api.GET("/ready", health.Readiness)

	if deps.APIKey != "" {
		api.Use(middleware.APIKeyAuth(deps.APIKey, log, security.NewBruteForceGuard(ctx, log)))
	}

	// Retrieval.
	api.POST("/retrieve", retrieve.Retrieve)
	api.POST("/context", retrieve.Context)
	api.POST("/context/assemble", retrieve.Assemble)

	// Chunks.
	api.POST("/chunks", chunks.Upsert)
	api.GET("/chunks/:id", chunks.Get)

	// Persons.
	api.POST("/persons", persons.Create)
	api.POST("/persons/merge", persons.Merge)
	api.GET("/persons/resolve", persons.Resolve)
	api.GET("/persons/:id", persons.Get)
	api.POST("/persons/:id/aliases", persons.AddAlias)
	api.POST("/persons/:id/facts", persons.UpsertFact)
	api.POST("/persons/:id/relationships", persons.UpsertRelationship)

	// Graph links.
	api.POST("/links/person-asset", persons.LinkPersonAsset)
	api.POST("/links/asset-asset", persons.LinkAssetAsset)

	// Conversation buffer.
	api.POST("/messages", messages.Append)
	api.POST("/messages/flush", messages.Flush)
	api.GET("/messages/pending", messages.Pending)

	// Admin.
	api.POST("/admin/backfill-embeddings", admin.BackfillEmbeddings)
	api.GET("/admin/stats", admin.Stats)

	// WebSocket endpoint.
	if deps.Hub != nil {
		api.GET("/ws", wsHandler(ctx, log, deps.Hub, deps.CORSOrigins))
	}
}

// NewRouter creates and configures the Gin engine with all middleware and routes.
func NewRouter(ctx context.Context, deps *RouterDeps) http.Handler {
	r := gin.New()
	setupMiddleware(ctx, r, deps)
	registerRoutes(ctx, r.Group("/api/v1"), deps)

	return r
}
