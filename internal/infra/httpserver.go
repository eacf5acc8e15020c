package infra

import (
	"context"
	"net"
	"net/http"
	"time"
)

// HTTPServer wraps http.Server to provide graceful startup and shutdown helpers.
type HTTPServer struct {
	server *http.Server
	stop   context.CancelFunc
}

// NewHTTPServer creates a configured HTTP server instance. The write timeout
// defaults to zero because progress streams hold their response open for the
// whole inspection run.
func NewHTTPServer(cfg *Config, handler http.Handler) *HTTPServer {
	base, stop := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return base },
	}

	return &HTTPServer{server: srv, stop: stop}
}

// Start runs the HTTP server in the current goroutine.
func (s *HTTPServer) Start() error {
	if s.server == nil {
		return nil
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server. Open progress streams never end
// on their own while a job is running, so the base context is canceled first;
// stream handlers observe that through the request context and return, and
// the remaining handlers are then awaited within ctx.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.stop()
	return s.server.Shutdown(ctx)
}
