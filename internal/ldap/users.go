package ldap

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// CacheOptions locates users and groups in the directory.
type CacheOptions struct {
	BaseDN       string // Search base for every cache query
	UsersBaseDN  string // Parent of uid=<id> user entries
	GroupsBaseDN string // Parent of cn=<id> group entries
}

// UserCache is an in-memory view of the directory's inetOrgPerson entries,
// keyed by uid.
//
// The lock is held only while the map is read or replaced, never across a
// directory call. Two concurrent refreshes of the same uid may complete out
// of order; the later write wins.
type UserCache struct {
	client Client
	opts   CacheOptions

	mu    sync.RWMutex
	users map[string]*User

	stats cacheStats
}

// NewUserCache creates an empty user cache. Call Refresh to populate it.
func NewUserCache(client Client, opts CacheOptions) *UserCache {
	return &UserCache{
		client: client,
		opts:   opts,
		users:  make(map[string]*User),
	}
}

// Refresh reloads every user. The map is swapped in one step, so readers see
// either the old or the new population.
func (c *UserCache) Refresh(ctx context.Context) error {
	start := time.Now()

	result, err := c.client.Search(ctx, &SearchRequest{
		BaseDN:     c.opts.BaseDN,
		Scope:      ScopeWholeSubtree,
		Filter:     fmt.Sprintf("(objectClass=%s)", ObjectClassUser),
		Attributes: userSearchAttributes,
	})
	if err != nil {
		c.stats.recordRefresh(time.Since(start), err)
		LogCacheEvent(ctx, "refresh_failed", map[string]any{"cache": "users", "error": err.Error()})
		return fmt.Errorf("failed to refresh users: %w", err)
	}

	users := make(map[string]*User, len(result.Entries))
	for _, entry := range result.Entries {
		user, err := entryToUser(entry)
		if err != nil {
			tflog.SubsystemWarn(ctx, SubsystemCache, "Skipping unparseable user entry", map[string]any{
				"dn":    entry.DN,
				"error": err.Error(),
			})
			continue
		}
		users[user.UID] = user
	}

	c.mu.Lock()
	c.users = users
	c.mu.Unlock()

	duration := time.Since(start)
	c.stats.recordRefresh(duration, nil)

	LogCacheEvent(ctx, "refreshed", map[string]any{
		"cache":       "users",
		"entries":     len(users),
		"duration_ms": duration.Milliseconds(),
	})

	return nil
}

// RefreshOne re-reads a single user. An empty result removes the uid.
func (c *UserCache) RefreshOne(ctx context.Context, uid string) error {
	if uid == "" {
		return fmt.Errorf("uid cannot be empty")
	}

	result, err := c.client.Search(ctx, &SearchRequest{
		BaseDN:     c.opts.BaseDN,
		Scope:      ScopeWholeSubtree,
		Filter:     fmt.Sprintf("(&(objectClass=%s)(uid=%s))", ObjectClassUser, ldap.EscapeFilter(uid)),
		Attributes: userSearchAttributes,
	})
	if err != nil {
		LogCacheEvent(ctx, "refresh_failed", map[string]any{"cache": "users", "uid": uid, "error": err.Error()})
		return fmt.Errorf("failed to refresh user %s: %w", uid, err)
	}

	if len(result.Entries) == 0 {
		c.mu.Lock()
		_, existed := c.users[uid]
		delete(c.users, uid)
		c.mu.Unlock()

		if existed {
			LogCacheEvent(ctx, "entry_removed", map[string]any{"cache": "users", "uid": uid})
		}
		return nil
	}

	user, err := entryToUser(result.Entries[0])
	if err != nil {
		return fmt.Errorf("failed to parse user %s: %w", uid, err)
	}

	c.mu.Lock()
	c.users[user.UID] = user
	c.mu.Unlock()

	LogCacheEvent(ctx, "entry_refreshed", map[string]any{"cache": "users", "uid": user.UID})

	return nil
}

// Get returns a copy of the cached user.
func (c *UserCache) Get(uid string) (*User, bool) {
	c.mu.RLock()
	user, ok := c.users[uid]
	c.mu.RUnlock()

	c.stats.recordLookup(ok)
	if !ok {
		return nil, false
	}
	return user.Clone(), true
}

// List returns copies of all cached users ordered by uid.
func (c *UserCache) List() []*User {
	c.mu.RLock()
	users := make([]*User, 0, len(c.users))
	for _, user := range c.users {
		users = append(users, user.Clone())
	}
	c.mu.RUnlock()

	slices.SortFunc(users, func(a, b *User) int {
		return strings.Compare(a.UID, b.UID)
	})
	return users
}

// Len returns the number of cached users.
func (c *UserCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.users)
}

// MembersOf returns the cached users whose memberOf names groupID.
// This is a linear scan.
func (c *UserCache) MembersOf(groupID string) []*User {
	var members []*User
	for _, user := range c.List() {
		if user.IsMemberOf(groupID) {
			members = append(members, user)
		}
	}
	return members
}

// Stats returns cache statistics.
func (c *UserCache) Stats() CacheStats {
	return c.stats.snapshot(c.Len())
}

// DN returns the distinguished name of the user entry for uid.
func (c *UserCache) DN(uid string) string {
	return fmt.Sprintf("uid=%s,%s", EscapeDNValue(uid), c.opts.UsersBaseDN)
}

// Create adds a new user entry. It returns false without contacting the
// directory when the uid is already cached, and false after re-reading the
// entry when the directory reports it already exists.
//
// The picture is written with a second modify after the add succeeds; if
// that step fails Create returns true together with the error.
func (c *UserCache) Create(ctx context.Context, user *User) (bool, error) {
	if user == nil || user.UID == "" {
		return false, &MissingFieldError{Field: "uid"}
	}

	if _, exists := c.Get(user.UID); exists {
		tflog.SubsystemDebug(ctx, SubsystemCache, "User already cached, skipping create", map[string]any{"uid": user.UID})
		return false, nil
	}

	dn := c.DN(user.UID)
	if err := c.client.Add(ctx, &AddRequest{DN: dn, Attributes: user.Attributes()}); err != nil {
		if IsConflictError(err) {
			// Present in the directory but not yet cached.
			LogCacheEvent(ctx, "entry_exists", map[string]any{"cache": "users", "uid": user.UID})
			return false, c.RefreshOne(ctx, user.UID)
		}
		LogCacheEvent(ctx, "mutation_failed", map[string]any{"cache": "users", "uid": user.UID, "operation": "create", "error": err.Error()})
		return false, fmt.Errorf("failed to create user %s: %w", user.UID, err)
	}

	LogCacheEvent(ctx, "entry_created", map[string]any{"cache": "users", "uid": user.UID, "dn": dn})

	if err := c.RefreshOne(ctx, user.UID); err != nil {
		return true, err
	}

	if len(user.Picture) > 0 {
		if _, err := c.Modify(ctx, user.UID, NewModifyUser().Picture(user.Picture)); err != nil {
			return true, fmt.Errorf("user %s created but picture was not stored: %w", user.UID, err)
		}
	}

	return true, nil
}

// Modify applies a sparse update to a user.
//
// The entry is re-read first and diffed against the directory's current
// state. An empty diff returns (false, nil) without a modify request. String
// and binary changes are sent as separate requests, and the entry is re-read
// afterwards whatever the outcome.
func (c *UserCache) Modify(ctx context.Context, uid string, req *ModifyUser) (bool, error) {
	if req == nil {
		return false, fmt.Errorf("modify request cannot be nil")
	}

	if err := req.Err(); err != nil {
		return false, err
	}

	if err := c.RefreshOne(ctx, uid); err != nil {
		return false, err
	}

	baseline, ok := c.Get(uid)
	if !ok {
		return false, fmt.Errorf("user %s: %w", uid, ErrEntryNotFound)
	}

	changes := req.Diff(baseline)
	if changes.IsEmpty() {
		tflog.SubsystemDebug(ctx, SubsystemCache, "No changes to apply", map[string]any{"uid": uid})
		return false, nil
	}

	dn := c.DN(uid)
	applyErr := c.apply(ctx, dn, changes)

	refreshErr := c.RefreshOne(ctx, uid)

	if applyErr != nil {
		LogCacheEvent(ctx, "mutation_failed", map[string]any{"cache": "users", "uid": uid, "operation": "modify", "error": applyErr.Error()})
		return false, fmt.Errorf("failed to modify user %s: %w", uid, applyErr)
	}

	LogCacheEvent(ctx, "entry_modified", map[string]any{
		"cache":   "users",
		"uid":     uid,
		"changes": describeChanges(append(slices.Clone(changes.Strings), changes.Binary...)),
	})

	if refreshErr != nil {
		return true, refreshErr
	}

	return true, nil
}

// apply sends the string changes, then the binary changes. It stops at the
// first failed request.
func (c *UserCache) apply(ctx context.Context, dn string, changes ChangeSet) error {
	for _, batch := range [][]Change{changes.Strings, changes.Binary} {
		if len(batch) == 0 {
			continue
		}
		if err := c.client.Modify(ctx, &ModifyRequest{DN: dn, Changes: batch}); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a user entry and then re-reads it, dropping it from the
// cache when the directory no longer has it.
func (c *UserCache) Delete(ctx context.Context, uid string) (bool, error) {
	if uid == "" {
		return false, fmt.Errorf("uid cannot be empty")
	}

	deleteErr := c.client.Delete(ctx, c.DN(uid))
	refreshErr := c.RefreshOne(ctx, uid)

	if deleteErr != nil {
		LogCacheEvent(ctx, "mutation_failed", map[string]any{"cache": "users", "uid": uid, "operation": "delete", "error": deleteErr.Error()})
		if IsNotFoundError(deleteErr) {
			return false, fmt.Errorf("user %s: %w", uid, ErrEntryNotFound)
		}
		return false, fmt.Errorf("failed to delete user %s: %w", uid, deleteErr)
	}

	LogCacheEvent(ctx, "entry_deleted", map[string]any{"cache": "users", "uid": uid})

	if refreshErr != nil {
		return true, refreshErr
	}

	return true, nil
}
