// Package server exposes the hub over HTTP: gateways and devices,
// variables, commands, script runs and a websocket event stream.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/anicoll/homehub/internal/pkg/bus"
	"github.com/anicoll/homehub/internal/pkg/gateway"
	"github.com/anicoll/homehub/internal/pkg/model"
)

type gatewayRegistry interface {
	All() []gateway.Gateway
	Get(name string) (gateway.Gateway, bool)
}

type variableReader interface {
	GetAll(gateway, deviceID string) map[string]any
	Snapshot() []model.Variable
}

type historyReader interface {
	GetHistory(ctx context.Context, key model.VariableKey, from, to *time.Time) ([]model.Variable, error)
}

type scriptSubmitter interface {
	Submit(ctx context.Context, scriptID string)
}

// AuthConfig enables bearer token auth when JWTSecret is set.
type AuthConfig struct {
	PasswordHash string
	JWTSecret    string
	TokenTTL     time.Duration
}

type Option func(*server)

// WithHistory serves recorded variable history from h.
func WithHistory(h historyReader) Option {
	return func(s *server) {
		s.history = h
	}
}

type server struct {
	gateways  gatewayRegistry
	variables variableReader
	history   historyReader
	scripts   scriptSubmitter
	bus       *bus.Bus
	hub       *hub
	auth      AuthConfig
	logger    *zap.Logger
}

func New(gateways gatewayRegistry, variables variableReader, scripts scriptSubmitter, b *bus.Bus, auth AuthConfig, opts ...Option) *server {
	if auth.TokenTTL <= 0 {
		auth.TokenTTL = 24 * time.Hour
	}
	s := &server{
		gateways:  gateways,
		variables: variables,
		scripts:   scripts,
		bus:       b,
		hub:       newHub(b),
		auth:      auth,
		logger:    zap.L().Named("server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Post("/auth/token", s.postToken)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/gateways", s.getGateways)
		r.Route("/gateways/{gateway}/devices", func(r chi.Router) {
			r.Get("/", s.getDevices)
			r.Post("/", s.postDevice)
			r.Delete("/{id}", s.deleteDevice)
		})
		r.Get("/variables", s.getAllVariables)
		r.Get("/variables/{gateway}/{device}", s.getVariables)
		r.Get("/variables/{gateway}/{device}/{name}/history", s.getHistory)
		r.Post("/commands", s.postCommand)
		r.Post("/scripts/{id}/execute", s.postScriptExecute)
		r.Get("/ws", s.hub.serve)
	})
	return r
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		Addr:         addr,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.hub.close()
		return err
	case <-ctx.Done():
	}

	s.hub.close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
