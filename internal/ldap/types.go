package ldap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// TLSMode selects how the transport to the directory is secured.
type TLSMode string

const (
	TLSModeNone     TLSMode = "none"     // Plain LDAP
	TLSModeStartTLS TLSMode = "starttls" // Plain LDAP upgraded with StartTLS
	TLSModeLDAPS    TLSMode = "ldaps"    // TLS from the first byte
)

// ConnectionConfig holds configuration for directory sessions.
type ConnectionConfig struct {
	// Connection settings
	Host    string        // Directory host name or address
	Port    int           // Directory port
	TLSMode TLSMode       // Transport security mode
	Timeout time.Duration // Dial and per-request timeout

	// Authentication settings
	BindDN       string // DN for simple bind
	BindPassword string // Password for simple bind

	KerberosPrincipal string // Client principal, optionally principal@REALM
	KerberosRealm     string // Kerberos realm for GSSAPI authentication
	KerberosKeytab    string // Path to Kerberos keytab file
	KerberosConfig    string // Path to Kerberos config file (krb5.conf)
	KerberosCCache    string // Path to Kerberos credential cache
	KerberosSPN       string // Explicit service principal, overrides ldap/<host>

	// TLS settings
	TLSConfig *tls.Config // Custom TLS configuration
}

// DefaultConfig returns a secure default configuration.
func DefaultConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Port:    389,
		TLSMode: TLSModeStartTLS,
		Timeout: 10 * time.Second,
		TLSConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
}

// URL returns the LDAP URL for the configured host and port.
func (c *ConnectionConfig) URL() string {
	scheme := "ldap"
	if c.TLSMode == TLSModeLDAPS {
		scheme = "ldaps"
	}

	port := c.Port
	if port == 0 {
		port = 389
		if c.TLSMode == TLSModeLDAPS {
			port = 636
		}
	}

	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(c.Host, strconv.Itoa(port)))
}

// AuthMethod defines authentication method types.
type AuthMethod int

const (
	AuthMethodSimpleBind AuthMethod = iota // DN/password authentication
	AuthMethodKerberos                     // GSSAPI/Kerberos authentication
	AuthMethodAnonymous                    // Unauthenticated bind
)

// String returns string representation of authentication method.
func (a AuthMethod) String() string {
	switch a {
	case AuthMethodSimpleBind:
		return "simple"
	case AuthMethodKerberos:
		return "kerberos"
	case AuthMethodAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// GetAuthMethod determines the authentication method from the configuration.
func (c *ConnectionConfig) GetAuthMethod() AuthMethod {
	// Kerberos authentication takes precedence
	if c.KerberosPrincipal != "" && (c.KerberosRealm != "" || strings.Contains(c.KerberosPrincipal, "@")) {
		return AuthMethodKerberos
	}

	if c.BindDN != "" {
		return AuthMethodSimpleBind
	}

	return AuthMethodAnonymous
}

// SessionStats provides statistics about directory sessions.
type SessionStats struct {
	Opened    int64     // Sessions successfully established
	Failed    int64     // Sessions that failed to dial or bind
	Active    int64     // Sessions currently open
	LastError string    // Most recent session error
	LastOpen  time.Time // Time the most recent session was established
}

// Client provides high-level directory operations.
//
// Every call opens its own session: dial, bind, operate, unbind.
type Client interface {
	// Connect verifies that a session can be established and bound.
	Connect(ctx context.Context) error
	Close() error

	// Basic operations
	Search(ctx context.Context, req *SearchRequest) (*SearchResult, error)
	Add(ctx context.Context, req *AddRequest) error
	Modify(ctx context.Context, req *ModifyRequest) error
	Delete(ctx context.Context, dn string) error

	// Health and statistics
	Ping(ctx context.Context) error
	Stats() SessionStats
}

// SearchRequest encapsulates LDAP search parameters.
type SearchRequest struct {
	BaseDN     string
	Scope      SearchScope
	Filter     string
	Attributes []string
	SizeLimit  int
	TimeLimit  time.Duration
}

// SearchResult contains search results and metadata.
type SearchResult struct {
	Entries []*ldap.Entry
	Total   int
}

// AddRequest encapsulates LDAP add parameters.
type AddRequest struct {
	DN         string
	Attributes map[string][]string
}

// ChangeOperation is the kind of a single attribute modification.
type ChangeOperation int

const (
	ChangeAdd ChangeOperation = iota
	ChangeDelete
	ChangeReplace
)

// String returns the LDIF keyword for the operation.
func (o ChangeOperation) String() string {
	switch o {
	case ChangeAdd:
		return "add"
	case ChangeDelete:
		return "delete"
	case ChangeReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Change is one attribute modification. ByteValues, when set, carry raw octets
// and take precedence over Values.
type Change struct {
	Operation  ChangeOperation
	Attribute  string
	Values     []string
	ByteValues [][]byte
}

// ModifyRequest encapsulates an ordered LDAP modify.
type ModifyRequest struct {
	DN      string
	Changes []Change
}

// SearchScope defines LDAP search scope.
type SearchScope int

const (
	ScopeBaseObject SearchScope = iota
	ScopeSingleLevel
	ScopeWholeSubtree
)

// String returns the scope name used in logs.
func (s SearchScope) String() string {
	switch s {
	case ScopeBaseObject:
		return "base"
	case ScopeSingleLevel:
		return "one"
	case ScopeWholeSubtree:
		return "sub"
	default:
		return "unknown"
	}
}

// ConnectionError represents failures establishing a directory session.
type ConnectionError struct {
	message string
	cause   error
}

func (e *ConnectionError) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

func (e *ConnectionError) Unwrap() error {
	return e.cause
}

// NewConnectionError creates a new connection error.
func NewConnectionError(message string, cause error) *ConnectionError {
	return &ConnectionError{
		message: message,
		cause:   cause,
	}
}
