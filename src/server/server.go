package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	logger "github.com/sirupsen/logrus"

	"strangleexecutor/src/auth"
	"strangleexecutor/src/executors"
	"strangleexecutor/src/handler"
	"strangleexecutor/src/repository"
)

func StartServer(port string, engine *executors.StrategyEngine) {
	// Router with middleware
	r := chi.NewRouter()
	// === Global Middleware ===
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})
	r.Post("/api/auth/login", handler.DefaultLoginHandler())

	// Everything else requires a bearer token
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireToken(repository.GetUserRepository()))

		r.Post("/api/auth/logout", handler.DefaultLogoutHandler())
		r.Put("/api/users/me", handler.DefaultUpdateUserHandler())
		r.Post("/api/users/me/password", handler.DefaultChangePasswordHandler())

		r.Get("/api/configurations", handler.DefaultListConfigurationsHandler())
		r.Post("/api/configurations", handler.DefaultCreateConfigurationHandler())
		r.Get("/api/configurations/{id}", handler.DefaultGetConfigurationHandler())
		r.Put("/api/configurations/{id}", handler.DefaultUpdateConfigurationHandler())
		r.Delete("/api/configurations/{id}", handler.DefaultDeleteConfigurationHandler())
		r.Post("/api/configurations/{id}/activate", handler.DefaultActivateConfigurationHandler())

		r.Post("/api/trading/control", handler.DefaultControlHandler(engine))
		r.Get("/api/trading/heartbeat", handler.DefaultHeartbeatHandler(engine))
		r.Get("/api/trading/runtime", handler.DefaultRuntimeHandler(engine))
		r.Get("/api/trading/sessions", handler.DefaultSessionsHandler())
		r.Get("/api/trading/sessions/{id}", handler.DefaultSessionDetailHandler())

		r.Get("/api/orders", handler.DefaultSearchOrdersHandler())
		r.Get("/api/analytics/kpis", handler.DefaultKpisHandler())
		r.Get("/api/analytics/spot", handler.DefaultSpotHistoryHandler())
		r.Post("/api/fees/estimate", handler.EstimateFeesHandler())
	})

	// Graceful server
	// Server setup
	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
