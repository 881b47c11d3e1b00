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

// GroupCache is an in-memory view of the directory's groupOfNames entries,
// keyed by cn. It follows the same locking rules as UserCache.
type GroupCache struct {
	client Client
	opts   CacheOptions

	mu     sync.RWMutex
	groups map[string]*Group

	stats cacheStats
}

// NewGroupCache creates an empty group cache. Call Refresh to populate it.
func NewGroupCache(client Client, opts CacheOptions) *GroupCache {
	return &GroupCache{
		client: client,
		opts:   opts,
		groups: make(map[string]*Group),
	}
}

// Refresh reloads every group and swaps the map in one step.
func (c *GroupCache) Refresh(ctx context.Context) error {
	start := time.Now()

	result, err := c.client.Search(ctx, &SearchRequest{
		BaseDN:     c.opts.BaseDN,
		Scope:      ScopeWholeSubtree,
		Filter:     fmt.Sprintf("(objectClass=%s)", ObjectClassGroup),
		Attributes: groupSearchAttributes,
	})
	if err != nil {
		c.stats.recordRefresh(time.Since(start), err)
		LogCacheEvent(ctx, "refresh_failed", map[string]any{"cache": "groups", "error": err.Error()})
		return fmt.Errorf("failed to refresh groups: %w", err)
	}

	groups := make(map[string]*Group, len(result.Entries))
	for _, entry := range result.Entries {
		group, err := entryToGroup(entry)
		if err != nil {
			tflog.SubsystemWarn(ctx, SubsystemCache, "Skipping unparseable group entry", map[string]any{
				"dn":    entry.DN,
				"error": err.Error(),
			})
			continue
		}
		groups[group.CN] = group
	}

	c.mu.Lock()
	c.groups = groups
	c.mu.Unlock()

	duration := time.Since(start)
	c.stats.recordRefresh(duration, nil)

	LogCacheEvent(ctx, "refreshed", map[string]any{
		"cache":       "groups",
		"entries":     len(groups),
		"duration_ms": duration.Milliseconds(),
	})

	return nil
}

// RefreshOne re-reads a single group. An empty result removes the cn.
func (c *GroupCache) RefreshOne(ctx context.Context, cn string) error {
	if cn == "" {
		return fmt.Errorf("cn cannot be empty")
	}

	result, err := c.client.Search(ctx, &SearchRequest{
		BaseDN:     c.opts.BaseDN,
		Scope:      ScopeWholeSubtree,
		Filter:     fmt.Sprintf("(&(objectClass=%s)(cn=%s))", ObjectClassGroup, ldap.EscapeFilter(cn)),
		Attributes: groupSearchAttributes,
	})
	if err != nil {
		LogCacheEvent(ctx, "refresh_failed", map[string]any{"cache": "groups", "cn": cn, "error": err.Error()})
		return fmt.Errorf("failed to refresh group %s: %w", cn, err)
	}

	if len(result.Entries) == 0 {
		c.mu.Lock()
		_, existed := c.groups[cn]
		delete(c.groups, cn)
		c.mu.Unlock()

		if existed {
			LogCacheEvent(ctx, "entry_removed", map[string]any{"cache": "groups", "cn": cn})
		}
		return nil
	}

	group, err := entryToGroup(result.Entries[0])
	if err != nil {
		return fmt.Errorf("failed to parse group %s: %w", cn, err)
	}

	c.mu.Lock()
	c.groups[group.CN] = group
	c.mu.Unlock()

	LogCacheEvent(ctx, "entry_refreshed", map[string]any{"cache": "groups", "cn": group.CN})

	return nil
}

// Get returns a copy of the cached group.
func (c *GroupCache) Get(cn string) (*Group, bool) {
	c.mu.RLock()
	group, ok := c.groups[cn]
	c.mu.RUnlock()

	c.stats.recordLookup(ok)
	if !ok {
		return nil, false
	}
	return group.Clone(), true
}

// List returns copies of all cached groups ordered by cn.
func (c *GroupCache) List() []*Group {
	c.mu.RLock()
	groups := make([]*Group, 0, len(c.groups))
	for _, group := range c.groups {
		groups = append(groups, group.Clone())
	}
	c.mu.RUnlock()

	slices.SortFunc(groups, func(a, b *Group) int {
		return strings.Compare(a.CN, b.CN)
	})
	return groups
}

// Len returns the number of cached groups.
func (c *GroupCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.groups)
}

// GroupsOf returns the cached groups listing uid as a direct user member.
func (c *GroupCache) GroupsOf(uid string) []*Group {
	var groups []*Group
	for _, group := range c.List() {
		if group.HasUserMember(uid) {
			groups = append(groups, group)
		}
	}
	return groups
}

// Stats returns cache statistics.
func (c *GroupCache) Stats() CacheStats {
	return c.stats.snapshot(c.Len())
}

// AddOwners adds owner DNs to a group. It returns false without a modify
// request when every DN is already an owner.
func (c *GroupCache) AddOwners(ctx context.Context, cn string, ownerDNs []string) (bool, error) {
	return c.extend(ctx, cn, groupAttrOwner, ownerDNs, func(g *Group) []string { return g.OwnerDNs })
}

// AddMembers adds member DNs to a group with the same rules as AddOwners.
func (c *GroupCache) AddMembers(ctx context.Context, cn string, memberDNs []string) (bool, error) {
	return c.extend(ctx, cn, groupAttrMember, memberDNs, func(g *Group) []string { return g.MemberDNs })
}

// extend re-reads the group, unions additions into attribute and replaces it
// when the union is larger than the current set.
func (c *GroupCache) extend(ctx context.Context, cn, attribute string, additions []string, current func(*Group) []string) (bool, error) {
	for _, dn := range additions {
		if err := ValidateDNSyntax(dn); err != nil {
			return false, fmt.Errorf("invalid %s %q: %w", attribute, dn, err)
		}
	}

	if err := c.RefreshOne(ctx, cn); err != nil {
		return false, err
	}

	group, ok := c.Get(cn)
	if !ok {
		return false, fmt.Errorf("group %s: %w", cn, ErrEntryNotFound)
	}

	existing := current(group)
	union := unionDNs(existing, additions)
	if len(union) == len(existing) {
		tflog.SubsystemDebug(ctx, SubsystemCache, "No new values to add", map[string]any{"cn": cn, "attribute": attribute})
		return false, nil
	}

	dn := group.DN
	if dn == "" {
		dn = fmt.Sprintf("cn=%s,%s", EscapeDNValue(cn), c.opts.GroupsBaseDN)
	}

	modifyErr := c.client.Modify(ctx, &ModifyRequest{
		DN: dn,
		Changes: []Change{{
			Operation: ChangeReplace,
			Attribute: attribute,
			Values:    union,
		}},
	})

	refreshErr := c.RefreshOne(ctx, cn)

	if modifyErr != nil {
		LogCacheEvent(ctx, "mutation_failed", map[string]any{"cache": "groups", "cn": cn, "attribute": attribute, "error": modifyErr.Error()})
		return false, fmt.Errorf("failed to update %s of group %s: %w", attribute, cn, modifyErr)
	}

	LogCacheEvent(ctx, "entry_modified", map[string]any{
		"cache":     "groups",
		"cn":        cn,
		"attribute": attribute,
		"added":     len(union) - len(existing),
	})

	if refreshErr != nil {
		return true, refreshErr
	}

	return true, nil
}
