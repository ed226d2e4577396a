package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/tomatyss/chatter/internal/infra/middleware"
)

// HTTPOptions configures the HTTP transport.
type HTTPOptions struct {
	Limits       middleware.Limits
	MaxBodyBytes int64
}

// Handler returns the stateless streamable HTTP endpoint, mounted at /mcp.
// The rate limiter's sweeper stops when ctx is done.
func (s *Server) Handler(ctx context.Context, opts HTTPOptions) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/mcp", server.NewStreamableHTTPServer(s.mcpServer, server.WithStateLess(true)))

	return middleware.Chain(mux,
		middleware.AccessLog(s.logger),
		middleware.Headers,
		middleware.PerClientLimit(ctx, opts.Limits),
		middleware.BodyLimit(opts.MaxBodyBytes),
	)
}

// ListenAndServe binds addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string, opts HTTPOptions) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.logger.Info("mcp server listening", "url", fmt.Sprintf("http://%s/mcp", ln.Addr()), "tools", len(s.Tools()))
	return s.Serve(ctx, ln, opts)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener, opts HTTPOptions) error {
	srv := &http.Server{
		Handler:           s.Handler(ctx, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown mcp http server: %w", err)
		}
		<-errCh
		return nil
	}
}
