package ldap

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// Subsystem names used by this package.
const (
	SubsystemLDAP  = "ldap"
	SubsystemCache = "cache"
)

// LogOperation is a helper function to log an operation with timing.
func LogOperation(ctx context.Context, subsystem, operation string, fields map[string]any, fn func() error) error {
	start := time.Now()

	if fields == nil {
		fields = make(map[string]any)
	}
	fields["operation"] = operation

	tflog.SubsystemDebug(ctx, subsystem, "Starting operation", SanitizeFields(fields))

	err := fn()

	fields["duration_ms"] = time.Since(start).Milliseconds()

	if err != nil {
		fields["error"] = err.Error()
		tflog.SubsystemError(ctx, subsystem, "Operation failed", SanitizeFields(fields))
	} else {
		tflog.SubsystemDebug(ctx, subsystem, "Operation completed successfully", SanitizeFields(fields))
	}

	return err
}

// LogLDAPError logs LDAP-specific error information.
func LogLDAPError(ctx context.Context, subsystem string, operation string, err error, fields map[string]any) {
	logged := make(map[string]any, len(fields)+4)
	for k, v := range fields {
		logged[k] = v
	}

	logged["operation"] = operation
	logged["error"] = err.Error()

	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		logged["ldap_result_code"] = ldapErr.ResultCode
		if ldapErr.MatchedDN != "" {
			logged["ldap_matched_dn"] = ldapErr.MatchedDN
		}
	}

	tflog.SubsystemError(ctx, subsystem, "LDAP operation failed", SanitizeFields(logged))
}

// LogConnectionEvent logs connection-related events.
func LogConnectionEvent(ctx context.Context, event string, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}

	fields["event"] = event
	fields = SanitizeFields(fields)

	switch event {
	case "connection_failed", "authentication_failed":
		tflog.SubsystemError(ctx, SubsystemLDAP, "Connection event", fields)
	case "connection_established":
		tflog.SubsystemDebug(ctx, SubsystemLDAP, "Connection event", fields)
	default:
		tflog.SubsystemTrace(ctx, SubsystemLDAP, "Connection event", fields)
	}
}

// LogCacheEvent logs cache refreshes and mutations.
func LogCacheEvent(ctx context.Context, event string, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}

	fields["event"] = event
	fields = SanitizeFields(fields)

	switch event {
	case "refresh_failed", "mutation_failed":
		tflog.SubsystemWarn(ctx, SubsystemCache, "Cache event", fields)
	case "refreshed", "entry_removed", "entry_created", "entry_modified", "entry_deleted":
		tflog.SubsystemInfo(ctx, SubsystemCache, "Cache event", fields)
	default:
		tflog.SubsystemDebug(ctx, SubsystemCache, "Cache event", fields)
	}
}

// SanitizeFields returns a copy of fields with credential-like keys and values
// replaced by [REDACTED]. Every Log helper in this package applies it.
func SanitizeFields(fields map[string]any) map[string]any {
	sanitized := make(map[string]any, len(fields))

	sensitiveKeys := map[string]bool{
		"password":      true,
		"passwd":        true,
		"userpassword":  true,
		"bind_password": true,
		"secret":        true,
		"token":         true,
		"access_token":  true,
		"authorization": true,
		"credential":    true,
		"credentials":   true,
	}

	for k, v := range fields {
		if sensitiveKeys[strings.ToLower(k)] {
			sanitized[k] = "[REDACTED]"
			continue
		}
		if str, ok := v.(string); ok && containsSensitivePattern(str) {
			sanitized[k] = "[REDACTED]"
			continue
		}
		sanitized[k] = v
	}

	return sanitized
}

// containsSensitivePattern checks if a string contains patterns that might be sensitive.
func containsSensitivePattern(s string) bool {
	patterns := []string{
		"password=",
		"userpassword=",
		"secret=",
		"token=",
		"bearer ",
		"{ssha}",
	}

	lower := strings.ToLower(s)
	for _, pattern := range patterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}

	return false
}
