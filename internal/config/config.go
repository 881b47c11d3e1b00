// Package config loads the explicit configuration value handed to every
// component at construction.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/isometry/ldap-gate/internal/auth"
	"github.com/isometry/ldap-gate/internal/ldap"
)

// Config is the complete process configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	JWT     JWTConfig     `mapstructure:"jwt"`
	LDAP    LDAPConfig    `mapstructure:"ldap"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Listen          string        `mapstructure:"listen" default:"0.0.0.0:4242" validate:"required,hostname_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" default:"15s" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" default:"15s" validate:"gt=0"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" default:"30s" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" default:"10s" validate:"gt=0"`
}

// LoggingConfig configures the root logger.
type LoggingConfig struct {
	Level string `mapstructure:"level" default:"INFO" validate:"required,oneof=TRACE DEBUG INFO WARN ERROR OFF trace debug info warn error off"`
}

// JWTConfig configures token signing.
type JWTConfig struct {
	Secret string `mapstructure:"secret" validate:"required"`
	MaxAge int    `mapstructure:"max_age" default:"60" validate:"gt=0"` // Minutes
	Issuer string `mapstructure:"issuer" default:"ldap-gate"`
}

// LDAPConfig locates and authenticates to the directory.
type LDAPConfig struct {
	Host               string        `mapstructure:"host" validate:"required"`
	Port               int           `mapstructure:"port" default:"389" validate:"min=1,max=65535"`
	TLSMode            ldap.TLSMode  `mapstructure:"tls_mode" default:"none" validate:"oneof=none starttls ldaps"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	CACertFile         string        `mapstructure:"ca_cert_file" validate:"omitempty,file"`
	Timeout            time.Duration `mapstructure:"timeout" default:"10s" validate:"gt=0"`

	BindDN       string `mapstructure:"bind_dn"`
	BindPassword string `mapstructure:"bind_password"`

	BaseDN       string `mapstructure:"base_dn" validate:"required"`
	UsersBaseDN  string `mapstructure:"users_base_dn" validate:"required"`
	GroupsBaseDN string `mapstructure:"groups_base_dn" validate:"required"`

	Kerberos KerberosConfig `mapstructure:"kerberos"`
}

// KerberosConfig enables a GSSAPI bind of the service account.
type KerberosConfig struct {
	Principal string `mapstructure:"principal"`
	Realm     string `mapstructure:"realm"`
	Keytab    string `mapstructure:"keytab"`
	Config    string `mapstructure:"config"`
	CCache    string `mapstructure:"ccache"`
	SPN       string `mapstructure:"spn"`
}

// CacheConfig configures the periodic refresher.
type CacheConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval" default:"5m" validate:"gt=0"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" default:"true"`
	Path    string `mapstructure:"path" default:"/metrics" validate:"required,startswith=/"`
}

// Connection converts the LDAP section into a client configuration.
func (c *Config) Connection() (*ldap.ConnectionConfig, error) {
	conn := &ldap.ConnectionConfig{
		Host:              c.LDAP.Host,
		Port:              c.LDAP.Port,
		TLSMode:           c.LDAP.TLSMode,
		Timeout:           c.LDAP.Timeout,
		BindDN:            c.LDAP.BindDN,
		BindPassword:      c.LDAP.BindPassword,
		KerberosPrincipal: c.LDAP.Kerberos.Principal,
		KerberosRealm:     c.LDAP.Kerberos.Realm,
		KerberosKeytab:    c.LDAP.Kerberos.Keytab,
		KerberosConfig:    c.LDAP.Kerberos.Config,
		KerberosCCache:    c.LDAP.Kerberos.CCache,
		KerberosSPN:       c.LDAP.Kerberos.SPN,
	}

	if c.LDAP.TLSMode == ldap.TLSModeNone {
		return conn, nil
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         c.LDAP.Host,
		InsecureSkipVerify: c.LDAP.InsecureSkipVerify, // #nosec G402 -- operator opt-in
	}

	if c.LDAP.CACertFile != "" {
		pem, err := os.ReadFile(c.LDAP.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", c.LDAP.CACertFile)
		}
		tlsConfig.RootCAs = pool
	}

	conn.TLSConfig = tlsConfig
	return conn, nil
}

// CacheOptions returns the directory locations used by the caches.
func (c *Config) CacheOptions() ldap.CacheOptions {
	return ldap.CacheOptions{
		BaseDN:       c.LDAP.BaseDN,
		UsersBaseDN:  c.LDAP.UsersBaseDN,
		GroupsBaseDN: c.LDAP.GroupsBaseDN,
	}
}

// TokenConfig returns the token signing settings.
func (c *Config) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		Secret: c.JWT.Secret,
		MaxAge: time.Duration(c.JWT.MaxAge) * time.Minute,
		Issuer: c.JWT.Issuer,
	}
}
