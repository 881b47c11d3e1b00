package ldap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// sessionFactory opens one bound connection per directory operation.
// Connections are never shared or reused.
type sessionFactory struct {
	config *ConnectionConfig

	// Statistics
	opened int64
	failed int64
	active int64

	mu        sync.Mutex
	lastError string
	lastOpen  time.Time
	closed    atomic.Bool
}

// session is a dialed and bound connection that must be released with Close.
type session struct {
	conn    *ldap.Conn
	factory *sessionFactory
	stop    func() bool
	once    sync.Once
}

func newSessionFactory(config *ConnectionConfig) (*sessionFactory, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return &sessionFactory{config: config}, nil
}

// open dials, secures and binds a new connection.
func (f *sessionFactory) open(ctx context.Context) (*session, error) {
	if f.closed.Load() {
		return nil, NewConnectionError("client is closed", nil)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	url := f.config.URL()
	fields := map[string]any{
		"url":         url,
		"tls_mode":    string(f.config.TLSMode),
		"auth_method": f.config.GetAuthMethod().String(),
	}
	LogConnectionEvent(ctx, "connection_attempt", fields)

	timeout := f.timeout(ctx)

	conn, err := f.dial(url, timeout)
	if err != nil {
		f.recordFailure(err)
		LogConnectionEvent(ctx, "connection_failed", map[string]any{"url": url, "error": err.Error()})
		return nil, NewConnectionError(fmt.Sprintf("failed to connect to %s", url), err)
	}

	// A cancelled or expired ctx closes the connection, failing any
	// request still waiting on it.
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	if err := f.authenticate(ctx, conn); err != nil {
		stop()
		conn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		f.recordFailure(err)
		LogConnectionEvent(ctx, "authentication_failed", map[string]any{"url": url, "error": err.Error()})
		return nil, NewConnectionError(fmt.Sprintf("failed to bind to %s", url), err)
	}

	atomic.AddInt64(&f.opened, 1)
	atomic.AddInt64(&f.active, 1)
	f.mu.Lock()
	f.lastOpen = time.Now()
	f.mu.Unlock()

	LogConnectionEvent(ctx, "connection_established", fields)

	return &session{conn: conn, factory: f, stop: stop}, nil
}

// timeout returns the configured timeout, shortened to the time left before
// ctx's deadline. Zero means no limit.
func (f *sessionFactory) timeout(ctx context.Context) time.Duration {
	timeout := f.config.Timeout

	deadline, ok := ctx.Deadline()
	if !ok {
		return timeout
	}

	remaining := time.Until(deadline)
	if remaining <= 0 {
		remaining = time.Millisecond
	}
	if timeout <= 0 || remaining < timeout {
		return remaining
	}
	return timeout
}

// dial creates the transport, upgrading with StartTLS when configured.
// timeout bounds the dial and every later request on the connection.
func (f *sessionFactory) dial(url string, timeout time.Duration) (*ldap.Conn, error) {
	dialer := &net.Dialer{Timeout: timeout}
	tlsConfig := f.tlsConfig()

	opts := []ldap.DialOpt{ldap.DialWithDialer(dialer)}
	if f.config.TLSMode == TLSModeLDAPS {
		opts = append(opts, ldap.DialWithTLSConfig(tlsConfig))
	}

	conn, err := ldap.DialURL(url, opts...)
	if err != nil {
		return nil, err
	}

	if timeout > 0 {
		conn.SetTimeout(timeout)
	}

	if f.config.TLSMode == TLSModeStartTLS {
		if err := conn.StartTLS(tlsConfig); err != nil {
			conn.Close()
			return nil, fmt.Errorf("StartTLS failed: %w", err)
		}
	}

	return conn, nil
}

func (f *sessionFactory) tlsConfig() *tls.Config {
	if f.config.TLSConfig != nil {
		cfg := f.config.TLSConfig.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = f.config.Host
		}
		return cfg
	}
	return &tls.Config{MinVersion: tls.VersionTLS12, ServerName: f.config.Host}
}

// authenticate binds the connection using the configured method.
func (f *sessionFactory) authenticate(ctx context.Context, conn *ldap.Conn) error {
	authMethod := f.config.GetAuthMethod()

	switch authMethod {
	case AuthMethodSimpleBind:
		if f.config.BindPassword == "" {
			// go-ldap refuses an empty password on Bind
			return conn.UnauthenticatedBind(f.config.BindDN)
		}
		return conn.Bind(f.config.BindDN, f.config.BindPassword)
	case AuthMethodKerberos:
		return performKerberosAuth(ctx, conn, f.config)
	case AuthMethodAnonymous:
		return conn.UnauthenticatedBind("")
	default:
		return fmt.Errorf("unsupported authentication method: %s", authMethod.String())
	}
}

func (f *sessionFactory) recordFailure(err error) {
	atomic.AddInt64(&f.failed, 1)
	f.mu.Lock()
	f.lastError = err.Error()
	f.mu.Unlock()
}

// Stats returns session statistics.
func (f *sessionFactory) Stats() SessionStats {
	f.mu.Lock()
	defer f.mu.Unlock()

	return SessionStats{
		Opened:    atomic.LoadInt64(&f.opened),
		Failed:    atomic.LoadInt64(&f.failed),
		Active:    atomic.LoadInt64(&f.active),
		LastError: f.lastError,
		LastOpen:  f.lastOpen,
	}
}

// Close makes subsequent open calls fail. Sessions already handed out stay usable.
func (f *sessionFactory) Close() error {
	f.closed.Store(true)
	return nil
}

// Conn returns the underlying connection.
func (s *session) Conn() *ldap.Conn {
	return s.conn
}

// Close unbinds and closes the connection. It is safe to call more than once.
func (s *session) Close() {
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		_ = s.conn.Unbind()
		s.conn.Close()
		atomic.AddInt64(&s.factory.active, -1)
	})
}

// validateConfig validates the connection configuration.
func validateConfig(config *ConnectionConfig) error {
	if config == nil {
		return fmt.Errorf("configuration cannot be nil")
	}

	if config.Host == "" {
		return fmt.Errorf("directory host is required")
	}

	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is out of range", config.Port)
	}

	switch config.TLSMode {
	case TLSModeNone, TLSModeStartTLS, TLSModeLDAPS:
	case "":
		config.TLSMode = TLSModeNone
	default:
		return fmt.Errorf("unsupported TLS mode %q", config.TLSMode)
	}

	if config.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}

	return nil
}

// logSessionClose logs the end of an operation's session at trace level.
func logSessionClose(ctx context.Context, operation string, start time.Time) {
	tflog.SubsystemTrace(ctx, "ldap", "Session released", map[string]any{
		"operation":   operation,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}
