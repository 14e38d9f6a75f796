// Package server exposes the operator HTTP surface: Stripe webhook intake,
// job queue operations, ledger review and payout execution. All state
// changes go through the domain services; the server never writes tables
// directly.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/studioordo/backoffice/internal/config"
	"github.com/studioordo/backoffice/internal/job/store"
	ledgerdomain "github.com/studioordo/backoffice/internal/ledger/domain"
	payoutdomain "github.com/studioordo/backoffice/internal/payout/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Gin       *gin.Engine
	Cfg       config.Config
	Log       *zap.Logger
	JobStore  *store.Store
	LedgerSvc ledgerdomain.Service
	PayoutSvc payoutdomain.Service
}

type Server struct {
	engine    *gin.Engine
	cfg       config.Config
	log       *zap.Logger
	jobStore  *store.Store
	ledgerSvc ledgerdomain.Service
	payoutSvc payoutdomain.Service
}

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func NewServer(p Params) *Server {
	return &Server{
		engine:    p.Gin,
		cfg:       p.Cfg,
		log:       p.Log.Named("server"),
		jobStore:  p.JobStore,
		ledgerSvc: p.LedgerSvc,
		payoutSvc: p.PayoutSvc,
	}
}

func (s *Server) RegisterRoutes() {
	s.engine.POST("/webhooks/stripe", s.handleStripeWebhook)

	admin := s.engine.Group("/admin", adminAuth(s.cfg.HTTP.AdminToken))
	{
		admin.GET("/jobs/stats", s.handleJobStats)
		admin.GET("/jobs/failed", s.handleJobsFailed)
		admin.GET("/jobs/:id", s.handleJobGet)
		admin.POST("/jobs/retry-dead", s.handleJobsRetryDead)

		admin.GET("/ledger", s.handleLedgerList)
		admin.POST("/ledger/approve", s.handleLedgerApprove)

		admin.POST("/payouts/execute", s.handlePayoutExecute)
	}
}

func RunHTTP(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

var Module = fx.Module("server",
	fx.Provide(
		NewEngine,
		NewServer,
	),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(RunHTTP),
)
