package ldap

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// client implements the Client interface.
type client struct {
	sessions *sessionFactory
	config   *ConnectionConfig
}

// NewClient creates a new directory client.
func NewClient(ctx context.Context, config *ConnectionConfig) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	tflog.SubsystemDebug(ctx, "ldap", "Creating new LDAP client", map[string]any{
		"url":         config.URL(),
		"auth_method": config.GetAuthMethod().String(),
		"tls_mode":    string(config.TLSMode),
	})

	sessions, err := newSessionFactory(config)
	if err != nil {
		tflog.SubsystemError(ctx, "ldap", "Invalid connection configuration", map[string]any{
			"error": err.Error(),
		})
		return nil, fmt.Errorf("invalid connection configuration: %w", err)
	}

	return &client{
		sessions: sessions,
		config:   config,
	}, nil
}

// withSession opens a session, runs fn and releases the session.
func (c *client) withSession(ctx context.Context, operation string, fn func(conn *ldap.Conn) error) error {
	start := time.Now()

	s, err := c.sessions.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		s.Close()
		logSessionClose(ctx, operation, start)
	}()

	if err := fn(s.Conn()); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return NewConnectionError(operation+" interrupted", fmt.Errorf("%w: %w", ctxErr, err))
		}
		return err
	}
	return nil
}

// Connect verifies that a session can be established, bound and pinged.
func (c *client) Connect(ctx context.Context) error {
	return LogOperation(ctx, "ldap", "connection_test", map[string]any{
		"url": c.config.URL(),
	}, func() error {
		return c.Ping(ctx)
	})
}

// Close prevents further sessions from being opened.
func (c *client) Close() error {
	return c.sessions.Close()
}

// performSearch is a helper function that performs search operations with logging.
func (c *client) performSearch(ctx context.Context, operation string, fields map[string]any, searchFunc func() (*SearchResult, error)) (*SearchResult, error) {
	start := time.Now()

	if fields == nil {
		fields = make(map[string]any)
	}
	fields["operation"] = operation

	tflog.SubsystemDebug(ctx, "ldap", "Starting search operation", SanitizeFields(fields))

	result, err := searchFunc()

	fields["duration_ms"] = time.Since(start).Milliseconds()

	if err != nil {
		fields["error"] = err.Error()
		tflog.SubsystemError(ctx, "ldap", "Search operation failed", SanitizeFields(fields))
		return nil, err
	}

	fields["entries_found"] = len(result.Entries)
	tflog.SubsystemDebug(ctx, "ldap", "Search operation completed successfully", SanitizeFields(fields))

	return result, nil
}

// Search performs an LDAP search.
func (c *client) Search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req == nil {
		return nil, fmt.Errorf("search request cannot be nil")
	}

	searchFields := map[string]any{
		"base_dn":    req.BaseDN,
		"scope":      req.Scope.String(),
		"filter":     req.Filter,
		"attributes": req.Attributes,
	}

	return c.performSearch(ctx, "search", searchFields, func() (*SearchResult, error) {
		var result *ldap.SearchResult

		err := c.withSession(ctx, "search", func(conn *ldap.Conn) error {
			var searchErr error
			result, searchErr = conn.Search(toLDAPSearchRequest(req))
			if isPartialResult(result, searchErr) {
				tflog.SubsystemWarn(ctx, "ldap", "Search size limit exceeded, using partial result", map[string]any{
					"filter":        req.Filter,
					"entries_found": len(result.Entries),
				})
				return nil
			}
			return searchErr
		})
		if err != nil {
			if _, ok := err.(*ConnectionError); ok {
				return nil, err
			}
			LogLDAPError(ctx, "ldap", "search", err, searchFields)
			return nil, WrapError("search", err)
		}

		return &SearchResult{
			Entries: result.Entries,
			Total:   len(result.Entries),
		}, nil
	})
}

// Add creates a new LDAP entry.
func (c *client) Add(ctx context.Context, req *AddRequest) error {
	if req == nil {
		return fmt.Errorf("add request cannot be nil")
	}

	fields := map[string]any{
		"dn":         req.DN,
		"attributes": attributeNames(req.Attributes),
	}

	return LogOperation(ctx, "ldap", "add", fields, func() error {
		return c.mutate(ctx, "add", req.DN, func(conn *ldap.Conn) error {
			return conn.Add(toLDAPAddRequest(req))
		})
	})
}

// Modify applies an ordered list of attribute changes to an entry.
func (c *client) Modify(ctx context.Context, req *ModifyRequest) error {
	if req == nil {
		return fmt.Errorf("modify request cannot be nil")
	}

	if len(req.Changes) == 0 {
		return fmt.Errorf("modify request for %s has no changes", req.DN)
	}

	fields := map[string]any{
		"dn":      req.DN,
		"changes": describeChanges(req.Changes),
	}

	return LogOperation(ctx, "ldap", "modify", fields, func() error {
		return c.mutate(ctx, "modify", req.DN, func(conn *ldap.Conn) error {
			return conn.Modify(toLDAPModifyRequest(req))
		})
	})
}

// Delete removes an LDAP entry.
func (c *client) Delete(ctx context.Context, dn string) error {
	if dn == "" {
		return fmt.Errorf("DN cannot be empty")
	}

	return LogOperation(ctx, "ldap", "delete", map[string]any{"dn": dn}, func() error {
		return c.mutate(ctx, "delete", dn, func(conn *ldap.Conn) error {
			return conn.Del(ldap.NewDelRequest(dn, nil))
		})
	})
}

// mutate runs a write operation and wraps protocol failures with the DN.
func (c *client) mutate(ctx context.Context, operation, dn string, fn func(conn *ldap.Conn) error) error {
	err := c.withSession(ctx, operation, fn)
	if err == nil {
		return nil
	}

	if _, ok := err.(*ConnectionError); ok {
		return err
	}

	LogLDAPError(ctx, "ldap", operation, err, map[string]any{"dn": dn})
	ldapErr := NewLDAPError(operation, err)
	ldapErr.DN = dn
	return ldapErr
}

// Ping tests connectivity to the directory with a root DSE read.
func (c *client) Ping(ctx context.Context) error {
	return c.withSession(ctx, "ping", func(conn *ldap.Conn) error {
		searchReq := ldap.NewSearchRequest(
			"", // Empty base DN for root DSE
			ldap.ScopeBaseObject,
			ldap.NeverDerefAliases,
			1, 5, false, // Size limit 1, time limit 5 seconds
			"(objectClass=*)",
			[]string{"namingContexts"},
			nil,
		)

		_, err := conn.Search(searchReq)
		return err
	})
}

// Stats returns session statistics.
func (c *client) Stats() SessionStats {
	return c.sessions.Stats()
}

// isPartialResult reports whether err is a sizeLimitExceeded result that
// still carried entries.
func isPartialResult(result *ldap.SearchResult, err error) bool {
	return ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) && result != nil && len(result.Entries) > 0
}

func toLDAPSearchRequest(req *SearchRequest) *ldap.SearchRequest {
	return ldap.NewSearchRequest(
		req.BaseDN,
		int(req.Scope),
		ldap.NeverDerefAliases,
		req.SizeLimit,
		int(req.TimeLimit.Seconds()),
		false, // TypesOnly
		req.Filter,
		req.Attributes,
		nil, // Controls
	)
}

// toLDAPAddRequest converts an AddRequest with attributes in sorted order.
func toLDAPAddRequest(req *AddRequest) *ldap.AddRequest {
	ldapReq := ldap.NewAddRequest(req.DN, nil)
	for _, attr := range attributeNames(req.Attributes) {
		ldapReq.Attribute(attr, req.Attributes[attr])
	}
	return ldapReq
}

// toLDAPModifyRequest converts a ModifyRequest preserving change order.
func toLDAPModifyRequest(req *ModifyRequest) *ldap.ModifyRequest {
	ldapReq := ldap.NewModifyRequest(req.DN, nil)

	for _, change := range req.Changes {
		values := change.Values
		if change.ByteValues != nil {
			values = make([]string, 0, len(change.ByteValues))
			for _, raw := range change.ByteValues {
				values = append(values, string(raw))
			}
		}

		switch change.Operation {
		case ChangeAdd:
			ldapReq.Add(change.Attribute, values)
		case ChangeDelete:
			ldapReq.Delete(change.Attribute, values)
		case ChangeReplace:
			ldapReq.Replace(change.Attribute, values)
		}
	}

	return ldapReq
}

func attributeNames(attrs map[string][]string) []string {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// describeChanges renders changes for logs without their values.
func describeChanges(changes []Change) []string {
	described := make([]string, 0, len(changes))
	for _, change := range changes {
		described = append(described, change.Operation.String()+":"+change.Attribute)
	}
	return described
}
