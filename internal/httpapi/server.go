// Gói httpapi là surface HTTP của verifier: nhận request validate và
// engagement, enforce quota per-caller rồi ủy quyền cho orchestrator.

package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/thep200/github-verifier/cfg"
	"github.com/thep200/github-verifier/internal/engagement"
	"github.com/thep200/github-verifier/internal/limiter"
	"github.com/thep200/github-verifier/internal/verifier"
	"github.com/thep200/github-verifier/pkg/log"
)

type Server struct {
	Logger  log.Logger
	Config  *cfg.Config
	handler *Handler
	router  *chi.Mux
	srv     *http.Server
}

func NewServer(logger log.Logger, config *cfg.Config) *Server {
	handler := &Handler{
		Logger:   logger,
		Config:   config,
		Verifier: verifier.NewVerifier(logger, config),
		Checker:  engagement.NewChecker(logger, config),
		Quota:    limiter.NewQuotaLimiter(),
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)

	router.Route("/api", func(r chi.Router) {
		r.Post("/validate", handler.HandleValidate)
		r.Post("/engagement", handler.HandleEngagement)
		r.Get("/quota", handler.HandleQuota)
	})

	return &Server{
		Logger:  logger,
		Config:  config,
		handler: handler,
		router:  router,
	}
}

// Router trả về mux để test có thể mount trực tiếp không cần listen port
func (s *Server) Router() http.Handler {
	return s.router
}

// ApplyConfig đẩy config mới xuống orchestrator và engagement checker
// khi file config được reload
func (s *Server) ApplyConfig(config *cfg.Config) {
	s.Config = config
	s.handler.Config = config
	s.handler.Verifier.ApplyConfig(config)
	s.handler.Checker.ApplyConfig(config)
}

func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.Config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.Logger.Info(ctx, "http server listening on port %d", s.Config.Server.Port)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Stop dừng server, chờ request đang bay xong trong giới hạn của ctx
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	s.Logger.Info(ctx, "shutting down http server")
	return s.srv.Shutdown(ctx)
}
