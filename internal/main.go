package internal

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/exp/slog"
)

type Options struct {
	InstanceID    string
	Port          int
	PageDir       string
	PublicHost    string
	SweepInterval time.Duration
	Join          JoinOptions

	// Optional mirrors; nil disables them.
	Redis  *redis.Client
	Mirror *Mirror
}

func Main(logger *slog.Logger, ctx context.Context, opts Options) (chi.Router, error) {
	info, err := os.Stat(opts.PageDir)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("page dir %v is not a directory", opts.PageDir)
	}

	var tracker Tracker = nopTracker{}
	var observers []Observer

	if opts.Redis != nil {
		presence := NewPresence(logger.With(slog.String("component", "presence")), opts.Redis, opts.InstanceID)
		tracker = presence
		observers = append(observers, presence)
	}

	if opts.Mirror != nil {
		observers = append(observers, opts.Mirror)
	}

	relay := NewRelay(logger.With(slog.String("component", "relay")), opts.InstanceID, observers...)
	go NewSweeper(relay, opts.SweepInterval).Run(ctx)

	join := JoinRoute(relay, logger, tracker, opts.Join)

	router := chi.NewRouter()
	router.Use(mid(opts.InstanceID))
	router.Use(logRequests(logger))
	router.Use(upgrade(join))
	router.Get("/health", health())
	router.Get("/", IndexRoute(logger, opts.PageDir))
	router.Get("/test", TestRoute(relay, opts.Port, opts.PublicHost))
	router.Get("/status", StatusRoute(relay))
	router.NotFound(NotFoundRoute())

	return router, nil
}

func health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

func mid(instanceID string) func(http.Handler) http.Handler {
	return func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Server", "manualpilot")
			w.Header().Set("Instance-ID", instanceID)
			handler.ServeHTTP(w, r)
		})
	}
}

func logRequests(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("request", slog.String("method", r.Method), slog.String("path", r.URL.Path))
			handler.ServeHTTP(w, r)
		})
	}
}

// upgrade hands websocket handshakes on any path to the relay.
func upgrade(join http.HandlerFunc) func(http.Handler) http.Handler {
	return func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				join(w, r)
				return
			}

			handler.ServeHTTP(w, r)
		})
	}
}
