package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RegisterHealth mounts liveness and readiness probes. deps are pinged by name.
func RegisterHealth(mux *http.ServeMux, deps map[string]Pinger, log *zap.SugaredLogger) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{}
		code := http.StatusOK
		for name, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				log.Warnw("readiness check failed", "dependency", name, "error", err)
				status[name] = "down"
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "ok"
		}
		writeJSON(w, code, status)
	})
}
