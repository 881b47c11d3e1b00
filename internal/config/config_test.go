package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/ldap-gate/internal/ldap"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LDAP_GATE_JWT_SECRET", "secret")
	t.Setenv("LDAP_GATE_LDAP_HOST", "ldap.example.com")
	t.Setenv("LDAP_GATE_LDAP_BASE_DN", "dc=example,dc=com")
	t.Setenv("LDAP_GATE_LDAP_USERS_BASE_DN", "ou=people,dc=example,dc=com")
	t.Setenv("LDAP_GATE_LDAP_GROUPS_BASE_DN", "ou=groups,dc=example,dc=com")
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:4242", cfg.Server.Listen)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, 60, cfg.JWT.MaxAge)
	assert.Equal(t, "ldap-gate", cfg.JWT.Issuer)
	assert.Equal(t, 389, cfg.LDAP.Port)
	assert.Equal(t, ldap.TLSModeNone, cfg.LDAP.TLSMode)
	assert.Equal(t, 10*time.Second, cfg.LDAP.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.Cache.RefreshInterval)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)

	assert.Equal(t, "secret", cfg.JWT.Secret)
	assert.Equal(t, "ldap.example.com", cfg.LDAP.Host)
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load("", nil)
	require.Error(t, err)

	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)

	var failed []string
	for _, fe := range verrs {
		failed = append(failed, fe.Namespace())
	}
	assert.Contains(t, failed, "Config.JWT.Secret")
	assert.Contains(t, failed, "Config.LDAP.Host")
	assert.Contains(t, failed, "Config.LDAP.BaseDN")
}

func TestLoadMissingFileTolerated(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.NoError(t, err)
	assert.Equal(t, "ldap.example.com", cfg.LDAP.Host)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  listen: "127.0.0.1:8080"
  read_timeout: 3s
logging:
  level: DEBUG
jwt:
  secret: from-file
  max_age: 15
ldap:
  host: directory.internal
  port: 636
  tls_mode: LDAPS
  insecure_skip_verify: true
  base_dn: dc=corp,dc=com
  users_base_dn: ou=people,dc=corp,dc=com
  groups_base_dn: ou=groups,dc=corp,dc=com
  kerberos:
    principal: svc-gate
    realm: CORP.COM
cache:
  refresh_interval: 1m
metrics:
  enabled: false
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Listen)
	assert.Equal(t, 3*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "from-file", cfg.JWT.Secret)
	assert.Equal(t, 15, cfg.JWT.MaxAge)
	assert.Equal(t, 636, cfg.LDAP.Port)
	assert.Equal(t, ldap.TLSModeLDAPS, cfg.LDAP.TLSMode)
	assert.True(t, cfg.LDAP.InsecureSkipVerify)
	assert.Equal(t, "svc-gate", cfg.LDAP.Kerberos.Principal)
	assert.Equal(t, "CORP.COM", cfg.LDAP.Kerberos.Realm)
	assert.Equal(t, time.Minute, cfg.Cache.RefreshInterval)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
jwt:
  secret: from-file
ldap:
  host: file-host
  base_dn: dc=example,dc=com
  users_base_dn: ou=people,dc=example,dc=com
  groups_base_dn: ou=groups,dc=example,dc=com
logging:
  level: WARN
`)

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("LDAP_GATE_LDAP_HOST", "env-host")
		t.Setenv("LDAP_GATE_LDAP_PORT", "1389")

		cfg, err := Load(path, nil)
		require.NoError(t, err)
		assert.Equal(t, "env-host", cfg.LDAP.Host)
		assert.Equal(t, 1389, cfg.LDAP.Port)
		assert.Equal(t, "from-file", cfg.JWT.Secret)
	})

	t.Run("legacy names", func(t *testing.T) {
		t.Setenv("LDAP_SERVER", "legacy-host")
		t.Setenv("JWT_MAXAGE", "5")
		t.Setenv("BIND_USER", "cn=admin,dc=example,dc=com")

		cfg, err := Load(path, nil)
		require.NoError(t, err)
		assert.Equal(t, "legacy-host", cfg.LDAP.Host)
		assert.Equal(t, 5, cfg.JWT.MaxAge)
		assert.Equal(t, "cn=admin,dc=example,dc=com", cfg.LDAP.BindDN)
	})

	t.Run("prefixed name beats legacy name", func(t *testing.T) {
		t.Setenv("LDAP_SERVER", "legacy-host")
		t.Setenv("LDAP_GATE_LDAP_HOST", "env-host")

		cfg, err := Load(path, nil)
		require.NoError(t, err)
		assert.Equal(t, "env-host", cfg.LDAP.Host)
	})

	t.Run("changed flag overrides everything", func(t *testing.T) {
		t.Setenv("LDAP_GATE_LOGGING_LEVEL", "ERROR")

		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags.String("log-level", "INFO", "")
		flags.String("listen", "0.0.0.0:4242", "")
		require.NoError(t, flags.Parse([]string{"--log-level", "DEBUG"}))

		cfg, err := Load(path, flags)
		require.NoError(t, err)
		assert.Equal(t, "DEBUG", cfg.Logging.Level)
		assert.Equal(t, "0.0.0.0:4242", cfg.Server.Listen)
	})
}

func TestLoadInvalidFile(t *testing.T) {
	path := writeConfig(t, "config.yaml", "server: [unclosed")

	_, err := Load(path, nil)
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestValidate(t *testing.T) {
	setRequiredEnv(t)
	base, err := Load("", nil)
	require.NoError(t, err)
	require.NoError(t, Validate(base))

	tests := []struct {
		name   string
		mutate func(*Config)
		tag    string
	}{
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "LOUD" }, tag: "oneof"},
		{name: "bad tls mode", mutate: func(c *Config) { c.LDAP.TLSMode = "ssl" }, tag: "oneof"},
		{name: "port out of range", mutate: func(c *Config) { c.LDAP.Port = 70000 }, tag: "max"},
		{name: "zero token lifetime", mutate: func(c *Config) { c.JWT.MaxAge = 0 }, tag: "gt"},
		{name: "bad listen address", mutate: func(c *Config) { c.Server.Listen = "nowhere" }, tag: "hostname_port"},
		{name: "relative metrics path", mutate: func(c *Config) { c.Metrics.Path = "metrics" }, tag: "startswith"},
		{name: "missing CA file", mutate: func(c *Config) { c.LDAP.CACertFile = "/nonexistent/ca.pem" }, tag: "file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)

			err := Validate(&cfg)
			var verrs validator.ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.Equal(t, tt.tag, verrs[0].Tag())
		})
	}
}

func TestConnection(t *testing.T) {
	cfg := &Config{
		LDAP: LDAPConfig{
			Host:         "ldap.example.com",
			Port:         389,
			TLSMode:      ldap.TLSModeNone,
			Timeout:      5 * time.Second,
			BindDN:       "cn=admin,dc=example,dc=com",
			BindPassword: "pw",
			Kerberos:     KerberosConfig{Principal: "svc", Realm: "EXAMPLE.COM", Keytab: "/etc/krb5.keytab"},
		},
	}

	conn, err := cfg.Connection()
	require.NoError(t, err)
	assert.Equal(t, "ldap://ldap.example.com:389", conn.URL())
	assert.Equal(t, "cn=admin,dc=example,dc=com", conn.BindDN)
	assert.Equal(t, "svc", conn.KerberosPrincipal)
	assert.Equal(t, ldap.AuthMethodKerberos, conn.GetAuthMethod())
	assert.Nil(t, conn.TLSConfig)

	cfg.LDAP.TLSMode = ldap.TLSModeStartTLS
	cfg.LDAP.InsecureSkipVerify = true
	conn, err = cfg.Connection()
	require.NoError(t, err)
	require.NotNil(t, conn.TLSConfig)
	assert.Equal(t, "ldap.example.com", conn.TLSConfig.ServerName)
	assert.True(t, conn.TLSConfig.InsecureSkipVerify)

	cfg.LDAP.CACertFile = writeConfig(t, "ca.pem", "not a certificate")
	_, err = cfg.Connection()
	assert.ErrorContains(t, err, "no certificates found")
}

func TestTokenConfig(t *testing.T) {
	cfg := &Config{JWT: JWTConfig{Secret: "s", MaxAge: 90, Issuer: "me"}}

	tc := cfg.TokenConfig()
	assert.Equal(t, "s", tc.Secret)
	assert.Equal(t, 90*time.Minute, tc.MaxAge)
	assert.Equal(t, "me", tc.Issuer)
}

func TestCacheOptions(t *testing.T) {
	cfg := &Config{LDAP: LDAPConfig{BaseDN: "b", UsersBaseDN: "u", GroupsBaseDN: "g"}}

	assert.Equal(t, ldap.CacheOptions{BaseDN: "b", UsersBaseDN: "u", GroupsBaseDN: "g"}, cfg.CacheOptions())
}

func TestConfigKeys(t *testing.T) {
	keys := configKeys(reflect.TypeOf(Config{}), "")

	assert.Contains(t, keys, "server.listen")
	assert.Contains(t, keys, "ldap.kerberos.realm")
	assert.Contains(t, keys, "metrics.enabled")
	assert.NotContains(t, keys, "ldap.kerberos")
	assert.Equal(t, "LDAP_GATE_LDAP_KERBEROS_REALM", envName("ldap.kerberos.realm"))
}
