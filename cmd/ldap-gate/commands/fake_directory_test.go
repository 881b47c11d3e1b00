package commands

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"

	goldap "github.com/go-ldap/ldap/v3"

	"github.com/isometry/ldap-gate/internal/ldap"
)

const (
	testBaseDN       = "dc=example,dc=com"
	testUsersBaseDN  = "ou=people,dc=example,dc=com"
	testGroupsBaseDN = "ou=groups,dc=example,dc=com"
)

var filterValue = regexp.MustCompile(`\((uid|cn)=([^)]*)\)`)

// fakeDirectory is an in-memory ldap.Client keyed by DN.
type fakeDirectory struct {
	mu         sync.Mutex
	entries    map[string]map[string][]string
	connectErr error
	searchErr  error

	added    []*ldap.AddRequest
	modified []*ldap.ModifyRequest
	deleted  []string
	closed   bool
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{entries: make(map[string]map[string][]string)}
}

func (f *fakeDirectory) addUser(uid string, attrs map[string][]string) {
	all := map[string][]string{
		"objectClass": {ldap.ObjectClassUser},
		"uid":         {uid},
	}
	for k, v := range attrs {
		all[k] = v
	}
	f.entries["uid="+uid+","+testUsersBaseDN] = all
}

func (f *fakeDirectory) addGroup(cn string, members, owners []string) {
	attrs := map[string][]string{
		"objectClass": {ldap.ObjectClassGroup},
		"cn":          {cn},
	}
	if len(members) > 0 {
		attrs["member"] = members
	}
	if len(owners) > 0 {
		attrs["owner"] = owners
	}
	f.entries["cn="+cn+","+testGroupsBaseDN] = attrs
}

func (f *fakeDirectory) Connect(ctx context.Context) error { return f.connectErr }

func (f *fakeDirectory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeDirectory) Search(ctx context.Context, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	objectClass := ldap.ObjectClassUser
	if strings.Contains(req.Filter, ldap.ObjectClassGroup) {
		objectClass = ldap.ObjectClassGroup
	}

	var attr, value string
	if m := filterValue.FindStringSubmatch(req.Filter); m != nil {
		attr, value = m[1], m[2]
	}

	result := &ldap.SearchResult{}
	for dn, attrs := range f.entries {
		if attrs["objectClass"][0] != objectClass {
			continue
		}
		if attr != "" && (len(attrs[attr]) == 0 || attrs[attr][0] != value) {
			continue
		}
		result.Entries = append(result.Entries, goldap.NewEntry(dn, attrs))
	}
	result.Total = len(result.Entries)
	return result, nil
}

func (f *fakeDirectory) Add(ctx context.Context, req *ldap.AddRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.entries[req.DN]; exists {
		return errors.New("entry already exists")
	}
	f.added = append(f.added, req)

	attrs := map[string][]string{}
	for k, v := range req.Attributes {
		if strings.EqualFold(k, "objectClass") {
			attrs["objectClass"] = []string{ldap.ObjectClassUser}
			continue
		}
		attrs[k] = v
	}
	f.entries[req.DN] = attrs
	return nil
}

func (f *fakeDirectory) Modify(ctx context.Context, req *ldap.ModifyRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	attrs, ok := f.entries[req.DN]
	if !ok {
		return goldap.NewError(goldap.LDAPResultNoSuchObject, errors.New("no such object"))
	}
	f.modified = append(f.modified, req)

	for _, change := range req.Changes {
		switch change.Operation {
		case ldap.ChangeDelete:
			delete(attrs, change.Attribute)
		default:
			attrs[change.Attribute] = change.Values
		}
	}
	return nil
}

func (f *fakeDirectory) Delete(ctx context.Context, dn string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.entries[dn]; !ok {
		return goldap.NewError(goldap.LDAPResultNoSuchObject, errors.New("no such object"))
	}
	f.deleted = append(f.deleted, dn)
	delete(f.entries, dn)
	return nil
}

func (f *fakeDirectory) Ping(ctx context.Context) error { return f.connectErr }

func (f *fakeDirectory) Stats() ldap.SessionStats { return ldap.SessionStats{} }

// useDirectory points newClient at f for the duration of the test and sets
// the minimum environment Load requires.
func useDirectory(t *testing.T, f *fakeDirectory) {
	t.Helper()

	t.Setenv("LDAP_GATE_JWT_SECRET", "test-secret")
	t.Setenv("LDAP_GATE_LDAP_HOST", "ldap.test")
	t.Setenv("LDAP_GATE_LDAP_BASE_DN", testBaseDN)
	t.Setenv("LDAP_GATE_LDAP_USERS_BASE_DN", testUsersBaseDN)
	t.Setenv("LDAP_GATE_LDAP_GROUPS_BASE_DN", testGroupsBaseDN)
	t.Setenv("LDAP_GATE_LOGGING_LEVEL", "OFF")

	original := newClient
	newClient = func(ctx context.Context, config *ldap.ConnectionConfig) (ldap.Client, error) {
		return f, nil
	}
	t.Cleanup(func() { newClient = original })
}

// run executes the command tree with args and returns stdout.
func run(ctx context.Context, stdin string, args ...string) (string, error) {
	cmd := NewRootCommand()

	var stdout, stderr bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	return stdout.String(), err
}
