package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// HealthCheck reports whether the backing store is reachable.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	Sessions    *SessionHandler
	Rooms       *RoomHandler
	Display     *DisplayHandler
	Health      HealthCheck
	CORSOrigins []string
	Logger      *slog.Logger
	Middleware  []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		newResponder(cfg.Logger).writeJSON(r.Context(), w, http.StatusNotFound, errorResponse{Message: statusMessage(http.StatusNotFound)})
	})

	if cfg.Rooms != nil {
		router.HandleFunc("/rooms", cfg.Rooms.List).Methods(http.MethodGet)
		router.HandleFunc("/rooms/{id}/agenda", cfg.Rooms.Agenda).Methods(http.MethodGet)
	}

	if cfg.Sessions != nil {
		router.HandleFunc("/sessions", cfg.Sessions.List).Methods(http.MethodGet)
		router.HandleFunc("/sessions", cfg.Sessions.Create).Methods(http.MethodPost)
		router.HandleFunc("/sessions/conflicts", cfg.Sessions.Conflicts).Methods(http.MethodGet)
		router.HandleFunc("/sessions/{id}", cfg.Sessions.Update).Methods(http.MethodPut)
		router.HandleFunc("/sessions/{id}", cfg.Sessions.Delete).Methods(http.MethodDelete)
	}

	if cfg.Display != nil {
		router.HandleFunc("/display/active", cfg.Display.Active).Methods(http.MethodGet)
		router.HandleFunc("/display/stream", cfg.Display.Stream).Methods(http.MethodGet)
	}

	router.HandleFunc("/healthz", healthHandler(cfg.Health, cfg.Logger)).Methods(http.MethodGet)

	var handler http.Handler = router
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}

	handler = CORS(cfg.CORSOrigins)(handler)
	handler = Recovery(cfg.Logger)(handler)
	handler = RequestLogger(cfg.Logger)(handler)
	return handler
}

func healthHandler(check HealthCheck, logger *slog.Logger) http.HandlerFunc {
	responder := newResponder(logger)
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				responder.loggerFor(r.Context()).WarnContext(r.Context(), "health check failed", "error", err)
				responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}
		responder.writeJSON(r.Context(), w, http.StatusOK, healthResponse{Status: "ok"})
	}
}

type healthResponse struct {
	Status string `json:"status"`
}
