package handler

import (
	"context"

	"coinchart/internal/domain"
	"coinchart/internal/job"
	"coinchart/internal/metrics"
	"coinchart/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

type TokenAPI interface {
	ListTokens(ctx context.Context, q service.TokenListQuery) (*service.TokenPage, error)
	GetToken(ctx context.Context, symbol, source string) (*domain.Token, error)
	SearchTokens(ctx context.Context, query string) ([]domain.Token, error)
	ListSignals(ctx context.Context, strategy, wallet string) (*service.SignalsView, error)
}

type IngestStatusReader interface {
	LastRuns(ctx context.Context) (map[domain.Source]*domain.IngestResult, error)
}

type TaskRunner interface {
	RunNow(ctx context.Context, name string) error
	Tasks() []job.TaskStatus
}

type Handler struct {
	tracer  trace.Tracer
	tokens  TokenAPI
	ingest  IngestStatusReader
	tasks   TaskRunner
	metrics *metrics.Recorder
}

func New(tracer trace.Tracer, tokens TokenAPI, ingest IngestStatusReader, tasks TaskRunner, rec *metrics.Recorder) *Handler {
	return &Handler{
		tracer:  tracer,
		tokens:  tokens,
		ingest:  ingest,
		tasks:   tasks,
		metrics: rec,
	}
}

// RouteOptions controls authentication on the mounted routes.
type RouteOptions struct {
	// AdminKey guards the admin group. Empty leaves it open.
	AdminKey string
	// TrustWalletHeader accepts X-Wallet-Address as the caller identity.
	// Enable only behind a gateway that authenticates the wallet.
	TrustWalletHeader bool
	// Identity runs before the wallet lookup on /api/signals and may call
	// SetWallet with an authenticated address.
	Identity []gin.HandlerFunc
}

// RegisterRoutes mounts the public API and the admin group.
func (h *Handler) RegisterRoutes(r *gin.Engine, opts RouteOptions) {
	r.Use(RequestMetrics(h.metrics))

	r.GET("/health", h.Health)

	api := r.Group("/api")
	api.GET("/tokens", h.ListTokens)
	api.GET("/tokens/search", h.SearchTokens)
	api.GET("/tokens/:symbol", h.GetToken)
	signals := append(append([]gin.HandlerFunc{}, opts.Identity...), WalletIdentity(opts.TrustWalletHeader), h.ListSignals)
	api.GET("/signals", signals...)
	api.GET("/ingest/status", h.IngestStatus)

	admin := api.Group("/admin", APIKeyAuth(opts.AdminKey))
	admin.GET("/tasks", h.ListTasks)
	admin.POST("/tasks/:name/run", h.RunTask)
}
