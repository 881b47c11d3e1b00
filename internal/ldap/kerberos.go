package ldap

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	"github.com/hashicorp/terraform-plugin-log/tflog"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
)

const defaultKrb5Conf = "/etc/krb5.conf"

// performKerberosAuth binds the session with GSSAPI.
func performKerberosAuth(ctx context.Context, conn *ldap.Conn, cfg *ConnectionConfig) error {
	krbCfg, err := resolveKerberosConfig(cfg)
	if err != nil {
		return fmt.Errorf("kerberos configuration error: %w", err)
	}

	gssapiClient, err := createGSSAPIClient(ctx, krbCfg)
	if err != nil {
		return fmt.Errorf("failed to create GSSAPI client: %w", err)
	}
	defer func() {
		_ = gssapiClient.DeleteSecContext()
	}()

	spn, err := buildServicePrincipal(krbCfg)
	if err != nil {
		return fmt.Errorf("failed to build service principal: %w", err)
	}

	tflog.SubsystemDebug(ctx, "ldap", "Performing GSSAPI bind", map[string]any{
		"principal": krbCfg.KerberosPrincipal,
		"realm":     krbCfg.KerberosRealm,
		"spn":       spn,
	})

	if err := conn.GSSAPIBind(gssapiClient, spn, ""); err != nil {
		return fmt.Errorf("GSSAPI bind failed: %w", err)
	}

	return nil
}

// createGSSAPIClient creates a GSSAPI client.
// Priority order: credential cache, keytab, password.
func createGSSAPIClient(ctx context.Context, cfg *ConnectionConfig) (ldap.GSSAPIClient, error) {
	krb5confPath := cfg.KerberosConfig
	if !fileExists(krb5confPath) {
		return nil, fmt.Errorf("kerberos configuration file not found at %s", krb5confPath)
	}

	if cfg.KerberosCCache != "" && fileExists(cfg.KerberosCCache) {
		tflog.SubsystemDebug(ctx, "ldap", "Using Kerberos credential cache", map[string]any{"ccache": cfg.KerberosCCache})
		return gssapi.NewClientFromCCache(cfg.KerberosCCache, krb5confPath, krb5client.DisablePAFXFAST(true))
	}

	if cfg.KerberosKeytab != "" && fileExists(cfg.KerberosKeytab) {
		tflog.SubsystemDebug(ctx, "ldap", "Using Kerberos keytab", map[string]any{"keytab": cfg.KerberosKeytab})
		return gssapi.NewClientWithKeytab(cfg.KerberosPrincipal, cfg.KerberosRealm, cfg.KerberosKeytab, krb5confPath, krb5client.DisablePAFXFAST(true))
	}

	if cfg.BindPassword != "" {
		return gssapi.NewClientWithPassword(cfg.KerberosPrincipal, cfg.KerberosRealm, cfg.BindPassword, krb5confPath, krb5client.DisablePAFXFAST(true))
	}

	return nil, fmt.Errorf("no suitable credentials found for Kerberos authentication")
}

// resolveKerberosConfig returns a copy of cfg with realm and krb5.conf defaults applied.
func resolveKerberosConfig(cfg *ConnectionConfig) (*ConnectionConfig, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}

	resolved := *cfg
	if resolved.KerberosConfig == "" {
		resolved.KerberosConfig = defaultKrb5Conf
	}

	if principal, realm, ok := strings.Cut(resolved.KerberosPrincipal, "@"); ok {
		resolved.KerberosPrincipal = principal
		if resolved.KerberosRealm == "" {
			resolved.KerberosRealm = realm
		}
	}

	if resolved.KerberosRealm == "" {
		return nil, fmt.Errorf("kerberos realm is required (set the realm or use principal@REALM)")
	}

	if resolved.KerberosPrincipal == "" {
		return nil, fmt.Errorf("kerberos principal is required")
	}

	return &resolved, nil
}

// buildServicePrincipal constructs the LDAP service principal name.
// cfg.KerberosSPN overrides the ldap/<host> default.
func buildServicePrincipal(cfg *ConnectionConfig) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("configuration is required for service principal")
	}

	if cfg.KerberosSPN != "" {
		return cfg.KerberosSPN, nil
	}

	hostname := cfg.Host
	if hostname == "" {
		return "", fmt.Errorf("hostname is required for service principal")
	}

	// SPN never carries a port
	if host, _, err := net.SplitHostPort(hostname); err == nil {
		hostname = host
	}

	return fmt.Sprintf("ldap/%s", hostname), nil
}

// fileExists checks if a file exists and is readable.
func fileExists(path string) bool {
	if path == "" {
		return false
	}
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	file.Close()
	return true
}
