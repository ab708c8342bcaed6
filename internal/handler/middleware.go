package handler

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"corpchat-backend/internal/i18n"
)

// statusRecorder captures status and size for request logs.
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.size += n
	return n, err
}

// LoggingMiddleware logs each request with a request id, echoed back in X-Request-ID.
func LoggingMiddleware(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", reqID)

			sr := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(sr, r)

			status := sr.status
			if status == 0 {
				status = http.StatusOK
			}
			fields := []any{
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration_ms", float64(time.Since(start).Microseconds()) / 1000.0,
				"size", sr.size,
			}
			if status >= http.StatusInternalServerError {
				log.Warnw("http request", fields...)
				return
			}
			log.Debugw("http request", fields...)
		})
	}
}

// LocaleMiddleware picks the response language from Accept-Language.
func LocaleMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if loc := i18n.FromAcceptLanguage(r.Header.Get("Accept-Language")); loc != "" {
			r = r.WithContext(i18n.WithLocale(r.Context(), loc))
		}
		next.ServeHTTP(w, r)
	})
}

// CORSMiddleware allows the listed origins plus any localhost origin outside production.
func CORSMiddleware(allowedOrigins []string, allowLocalhost bool) func(http.Handler) http.Handler {
	orig := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			orig[o] = struct{}{}
		}
	}

	isLocalhost := func(origin string) bool {
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := u.Hostname()
		return host == "localhost" || host == "127.0.0.1"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				_, ok := orig[origin]
				if ok || (allowLocalhost && isLocalhost(origin)) {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
				}
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept-Language, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "600")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
