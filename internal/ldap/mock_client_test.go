package ldap

import (
	"context"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/mock"
)

// MockClient implements the Client interface for testing cache operations.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Connect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockClient) Search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*SearchResult)
	return result, args.Error(1)
}

func (m *MockClient) Add(ctx context.Context, req *AddRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockClient) Modify(ctx context.Context, req *ModifyRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockClient) Delete(ctx context.Context, dn string) error {
	args := m.Called(ctx, dn)
	return args.Error(0)
}

func (m *MockClient) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockClient) Stats() SessionStats {
	args := m.Called()
	return args.Get(0).(SessionStats)
}

const (
	testBaseDN       = "dc=example,dc=com"
	testUsersBaseDN  = "ou=people,dc=example,dc=com"
	testGroupsBaseDN = "ou=groups,dc=example,dc=com"
)

func testCacheOptions() CacheOptions {
	return CacheOptions{
		BaseDN:       testBaseDN,
		UsersBaseDN:  testUsersBaseDN,
		GroupsBaseDN: testGroupsBaseDN,
	}
}

// filterIs matches a search request by its exact filter.
func filterIs(filter string) any {
	return mock.MatchedBy(func(req *SearchRequest) bool {
		return req.Filter == filter
	})
}

// userFilter returns the single-user filter for uid.
func userFilter(uid string) string {
	return "(&(objectClass=inetOrgPerson)(uid=" + uid + "))"
}

// groupFilter returns the single-group filter for cn.
func groupFilter(cn string) string {
	return "(&(objectClass=groupOfNames)(cn=" + cn + "))"
}

// userEntry builds an inetOrgPerson entry from attribute pairs.
func userEntry(uid string, attrs map[string][]string) *ldap.Entry {
	all := map[string][]string{
		"objectClass": {"inetOrgPerson"},
		"uid":         {uid},
	}
	for k, v := range attrs {
		all[k] = v
	}
	return ldap.NewEntry("uid="+uid+","+testUsersBaseDN, all)
}

// groupEntry builds a groupOfNames entry under parentDN.
func groupEntry(cn, parentDN string, members, owners []string) *ldap.Entry {
	attrs := map[string][]string{
		"objectClass": {"groupOfNames"},
		"cn":          {cn},
	}
	if len(members) > 0 {
		attrs["member"] = members
	}
	if len(owners) > 0 {
		attrs["owner"] = owners
	}
	return ldap.NewEntry("cn="+cn+","+parentDN, attrs)
}

func searchResult(entries ...*ldap.Entry) *SearchResult {
	return &SearchResult{Entries: entries, Total: len(entries)}
}

func hasChange(changes []Change, op ChangeOperation, attribute string) bool {
	for _, c := range changes {
		if c.Operation == op && strings.EqualFold(c.Attribute, attribute) {
			return true
		}
	}
	return false
}
