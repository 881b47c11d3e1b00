// Package server exposes sign-in and the protected user routes over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/ldap-gate/internal/logging"
)

// Options configures the HTTP listener.
type Options struct {
	Listen          string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server serves the router until its context is cancelled.
type Server struct {
	server          *http.Server
	listen          string
	shutdownTimeout time.Duration

	mu       sync.Mutex
	addr     net.Addr
	ready    chan struct{}
	stopOnce sync.Once
}

// New creates a stopped server. Call Start to begin serving.
func New(handler http.Handler, opts Options) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	return &Server{
		server: &http.Server{
			Handler:           handler,
			ReadTimeout:       opts.ReadTimeout,
			ReadHeaderTimeout: opts.ReadTimeout,
			WriteTimeout:      opts.WriteTimeout,
		},
		listen:          opts.Listen,
		shutdownTimeout: opts.ShutdownTimeout,
		ready:           make(chan struct{}),
	}
}

// Start listens and serves until ctx is cancelled, then shuts down
// gracefully. Requests inherit the loggers carried by ctx.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.listen, err)
	}

	baseCtx := context.WithoutCancel(ctx)
	s.server.BaseContext = func(net.Listener) context.Context { return baseCtx }

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()
	close(s.ready)

	tflog.SubsystemInfo(ctx, logging.SubsystemHTTP, "HTTP server listening", map[string]any{
		"address": ln.Addr().String(),
	})

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		tflog.SubsystemInfo(ctx, logging.SubsystemHTTP, "HTTP server shutdown signal received", nil)
		shutdownCtx, cancel := context.WithTimeout(baseCtx, s.shutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("HTTP server failed: %w", err)
	}
}

// Stop shuts the server down. It is safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.stopOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("HTTP server shutdown error: %w", err)
			tflog.SubsystemError(ctx, logging.SubsystemHTTP, "HTTP server shutdown error", map[string]any{
				"error": err.Error(),
			})
			return
		}
		tflog.SubsystemInfo(ctx, logging.SubsystemHTTP, "HTTP server stopped gracefully", nil)
	})
	return shutdownErr
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listener address, or nil before Start binds.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
