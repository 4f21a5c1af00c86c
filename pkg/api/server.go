package api

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/hauke96/sigolo/v2"
	"golang.org/x/time/rate"
)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	MaxConcurrent int
	CORSOrigin    string
	// RateLimit is the sustained request rate per second, 0 disables it.
	RateLimit float64
	RateBurst int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(addr string) ServerConfig {
	return ServerConfig{
		Addr:          addr,
		ReadTimeout:   5 * time.Second,
		WriteTimeout:  10 * time.Second,
		MaxConcurrent: runtime.NumCPU() * 2,
		CORSOrigin:    "",
		RateLimit:     200,
		RateBurst:     400,
	}
}

// NewRouter registers all routes and middleware.
func NewRouter(cfg ServerConfig, handlers *Handlers) *mux.Router {
	r := mux.NewRouter()

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/snap", handlers.HandleSnap).Methods(http.MethodPost)
	v1.HandleFunc("/snap/batch", handlers.HandleSnapBatch).Methods(http.MethodPost)
	v1.HandleFunc("/edges", handlers.HandleEdges).Methods(http.MethodGet)
	v1.HandleFunc("/health", handlers.HandleHealth).Methods(http.MethodGet)
	v1.HandleFunc("/stats", handlers.HandleStats).Methods(http.MethodGet)

	r.Use(middleware(cfg))
	return r
}

// NewServer creates an HTTP server with all routes and middleware.
func NewServer(cfg ServerConfig, handlers *Handlers) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      NewRouter(cfg, handlers),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

// ListenAndServe starts the server and blocks until shutdown signal.
func ListenAndServe(srv *http.Server) error {
	// Graceful shutdown on SIGTERM/SIGINT.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)

	errCh := make(chan error, 1)
	go func() {
		sigolo.Infof("Server listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		sigolo.Infof("Received %s, shutting down...", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

// middleware adds security headers, rate and concurrency limiting,
// recovery, a request timeout and request logging.
func middleware(cfg ServerConfig) mux.MiddlewareFunc {
	sem := make(chan struct{}, max(cfg.MaxConcurrent, 1))
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.RateBurst, 1))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Security headers.
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Cache-Control", "no-store")

			// CORS.
			if cfg.CORSOrigin != "" {
				w.Header().Set("Access-Control-Allow-Origin", cfg.CORSOrigin)
			}

			if limiter != nil && !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate_limited", "")
				return
			}

			// Concurrency limiter.
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			default:
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusServiceUnavailable, "service_unavailable", "")
				return
			}

			// Recovery.
			defer func() {
				if rec := recover(); rec != nil {
					sigolo.Errorf("panic serving %s %s: %v", r.Method, r.URL.Path, rec)
					writeError(w, http.StatusInternalServerError, "internal_error", "")
				}
			}()

			// Request timeout.
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()

			start := time.Now()
			next.ServeHTTP(w, r.WithContext(ctx))
			sigolo.Debugf("%s %s %s", r.Method, r.URL.Path, time.Since(start).Round(time.Microsecond))
		})
	}
}
