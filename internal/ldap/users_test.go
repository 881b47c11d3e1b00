package ldap

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func createTestUserCache() (*UserCache, *MockClient) {
	mockClient := &MockClient{}
	return NewUserCache(mockClient, testCacheOptions()), mockClient
}

func jdoeEntry(extra map[string][]string) *ldap.Entry {
	attrs := map[string][]string{
		"mail":      {"jdoe@example.com"},
		"givenName": {"John"},
		"sn":        {"Doe"},
		"cn":        {"John Doe"},
	}
	for k, v := range extra {
		attrs[k] = v
	}
	return userEntry("jdoe", attrs)
}

func TestUserCacheRefresh(t *testing.T) {
	ctx := context.Background()
	cache, mockClient := createTestUserCache()

	mockClient.On("Search", ctx, mock.MatchedBy(func(req *SearchRequest) bool {
		return req.Filter == "(objectClass=inetOrgPerson)" &&
			req.BaseDN == testBaseDN &&
			req.Scope == ScopeWholeSubtree &&
			assert.ObjectsAreEqual([]string{"*", "memberOf"}, req.Attributes)
	})).Return(searchResult(
		jdoeEntry(nil),
		userEntry("asmith", nil),
		ldap.NewEntry("cn=broken,"+testUsersBaseDN, map[string][]string{"cn": {"broken"}}),
	), nil).Once()

	require.NoError(t, cache.Refresh(ctx))

	assert.Equal(t, 2, cache.Len())
	users := cache.List()
	require.Len(t, users, 2)
	assert.Equal(t, "asmith", users[0].UID)
	assert.Equal(t, "jdoe", users[1].UID)

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Refreshes)
	assert.Equal(t, int64(2), stats.Entries)
	assert.False(t, stats.LastRefreshed.IsZero())

	mockClient.AssertExpectations(t)
}

func TestUserCacheRefreshReplacesPopulation(t *testing.T) {
	ctx := context.Background()
	cache, mockClient := createTestUserCache()

	mockClient.On("Search", ctx, filterIs("(objectClass=inetOrgPerson)")).Return(searchResult(jdoeEntry(nil)), nil).Once()
	mockClient.On("Search", ctx, filterIs("(objectClass=inetOrgPerson)")).Return(searchResult(userEntry("asmith", nil)), nil).Once()

	require.NoError(t, cache.Refresh(ctx))
	require.NoError(t, cache.Refresh(ctx))

	_, ok := cache.Get("jdoe")
	assert.False(t, ok)
	_, ok = cache.Get("asmith")
	assert.True(t, ok)
}

func TestUserCacheRefreshFailureKeepsPreviousState(t *testing.T) {
	ctx := context.Background()
	cache, mockClient := createTestUserCache()

	mockClient.On("Search", ctx, filterIs("(objectClass=inetOrgPerson)")).Return(searchResult(jdoeEntry(nil)), nil).Once()
	mockClient.On("Search", ctx, filterIs("(objectClass=inetOrgPerson)")).Return(nil, NewConnectionError("failed to connect", errors.New("refused"))).Once()

	require.NoError(t, cache.Refresh(ctx))
	err := cache.Refresh(ctx)
	require.Error(t, err)
	assert.True(t, IsConnectionError(err))

	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, int64(1), cache.Stats().RefreshFailures)
}

func TestUserCacheRefreshOne(t *testing.T) {
	ctx := context.Background()
	cache, mockClient := createTestUserCache()

	mockClient.On("Search", ctx, filterIs(userFilter("jdoe"))).Return(searchResult(jdoeEntry(nil)), nil).Once()
	require.NoError(t, cache.RefreshOne(ctx, "jdoe"))

	user, ok := cache.Get("jdoe")
	require.True(t, ok)
	assert.Equal(t, "John Doe", user.Name)

	mockClient.On("Search", ctx, filterIs(userFilter("jdoe"))).Return(searchResult(), nil).Once()
	require.NoError(t, cache.RefreshOne(ctx, "jdoe"))

	_, ok = cache.Get("jdoe")
	assert.False(t, ok, "empty result removes the entry")

	mockClient.AssertExpectations(t)
}

func TestUserCacheRefreshOneEscapesFilter(t *testing.T) {
	ctx := context.Background()
	cache, mockClient := createTestUserCache()

	mockClient.On("Search", ctx, filterIs(`(&(objectClass=inetOrgPerson)(uid=\2a\29\28uid=\2a))`)).Return(searchResult(), nil).Once()

	require.NoError(t, cache.RefreshOne(ctx, "*)(uid=*"))
	mockClient.AssertExpectations(t)
}

func TestUserCacheGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	cache, mockClient := createTestUserCache()

	mockClient.On("Search", ctx, filterIs(userFilter("jdoe"))).Return(searchResult(jdoeEntry(nil)), nil).Once()
	require.NoError(t, cache.RefreshOne(ctx, "jdoe"))

	user, ok := cache.Get("jdoe")
	require.True(t, ok)
	user.Mail = "mutated@example.com"

	again, _ := cache.Get("jdoe")
	assert.Equal(t, "jdoe@example.com", again.Mail)
}

func TestUserCacheMembersOf(t *testing.T) {
	ctx := context.Background()
	cache, mockClient := createTestUserCache()

	mockClient.On("Search", ctx, filterIs("(objectClass=inetOrgPerson)")).Return(searchResult(
		userEntry("a", map[string][]string{"memberOf": {"cn=devs," + testGroupsBaseDN}}),
		userEntry("b", map[string][]string{"memberOf": {"cn=ops," + testGroupsBaseDN, "cn=devs," + testGroupsBaseDN}}),
		userEntry("c", nil),
	), nil).Once()
	require.NoError(t, cache.Refresh(ctx))

	members := cache.MembersOf("devs")
	require.Len(t, members, 2)
	assert.Equal(t, "a", members[0].UID)
	assert.Equal(t, "b", members[1].UID)

	assert.Empty(t, cache.MembersOf("admins"))
}

func TestUserCacheCreate(t *testing.T) {
	ctx := context.Background()
	cache, mockClient := createTestUserCache()

	user, err := NewUserBuilder().
		UID("jdoe").
		PasswordHash("{SSHA}hash").
		Mail("jdoe@example.com").
		FirstName("John").
		LastName("Doe").
		Name("John Doe").
		Build()
	require.NoError(t, err)

	mockClient.On("Add", ctx, mock.MatchedBy(func(req *AddRequest) bool {
		return req.DN == "uid=jdoe,"+testUsersBaseDN &&
			assert.ObjectsAreEqual([]string{"inetOrgPerson"}, req.Attributes["objectClass"]) &&
			assert.ObjectsAreEqual([]string{"{SSHA}hash"}, req.Attributes["userPassword"]) &&
			req.Attributes["jpegPhoto"] == nil
	})).Return(nil).Once()
	mockClient.On("Search", ctx, filterIs(userFilter("jdoe"))).Return(searchResult(jdoeEntry(nil)), nil).Once()

	created, err := cache.Create(ctx, user)
	require.NoError(t, err)
	assert.True(t, created)

	_, ok := cache.Get("jdoe")
	assert.True(t, ok)

	mockClient.AssertExpectations(t)
	mockClient.AssertNotCalled(t, "Modify", mock.Anything, mock.Anything)
}

func TestUserCacheCreateWithPicture(t *testing.T) {
	ctx := context.Background()
	cache, mockClient := createTestUserCache()

	picture := []byte{0xff, 0xd8, 0xff}
	user := &User{UID: "jdoe", Password: "{SSHA}hash", Mail: "jdoe@example.com", FirstName: "John", LastName: "Doe", Name: "John Doe", Picture: picture}

	mockClient.On("Add", ctx, mock.AnythingOfType("*ldap.AddRequest")).Return(nil).Once()
	mockClient.On("Search", ctx, filterIs(userFilter("jdoe"))).Return(searchResult(jdoeEntry(nil)), nil).Times(2)
	mockClient.On("Modify", ctx, mock.MatchedBy(func(req *ModifyRequest) bool {
		return len(req.Changes) == 1 &&
			req.Changes[0].Attribute == "jpegPhoto" &&
			req.Changes[0].Operation == ChangeReplace &&
			assert.ObjectsAreEqual([][]byte{picture}, req.Changes[0].ByteValues)
	})).Return(nil).Once()
	mockClient.On("Search", ctx, filterIs(userFilter("jdoe"))).Return(searchResult(jdoeEntry(map[string][]string{"jpegPhoto": {string(picture)}})), nil).Once()

	created, err := cache.Create(ctx, user)
	require.NoError(t, err)
	assert.True(t, created)

	cached, ok := cache.Get("jdoe")
	require.True(t, ok)
	assert.Equal(t, picture, cached.Picture)

	mockClient.AssertExpectations(t)
}

func TestUserCacheCreatePictureFailure(t *testing.T) {
	ctx := context.Background()
	cache, mockClient := createTestUserCache()

	user := &User{UID: "jdoe", Password: "{SSHA}hash", Mail: "jdoe@example.com", FirstName: "John", LastName: "Doe", Name: "John Doe", Picture: []byte{1}}

	mockClient.On("Add", ctx, mock.Anything).Return(nil).Once()
	mockClient.On("Search", ctx, filterIs(userFilter("jdoe"))).Return(searchResult(jdoeEntry(nil)), nil)
	mockClient.On("Modify", ctx, mock.Anything).Return(NewLDAPError("modify", ldap.NewError(ldap.LDAPResultConstraintViolation, errors.New("too large")))).Once()

	created, err := cache.Create(ctx, user)
	assert.True(t, created, "the entry exists even though the picture step failed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "picture was not stored")
}

func TestUserCacheCreateExisting(t *testing.T) {
	ctx := context.Background()
	cache, mockClient := createTestUserCache()

	mockClient.On("Search", ctx, filterIs(userFilter("jdoe"))).Return(searchResult(jdoeEntry(nil)), nil).Once()
	require.NoError(t, cache.RefreshOne(ctx, "jdoe"))

	created, err := cache.Create(ctx, &User{UID: "jdoe"})
	require.NoError(t, err)
	assert.False(t, created)

	mockClient.AssertNotCalled(t, "Add", mock.Anything, mock.Anything)
}

func TestUserCacheCreateAddFailure(t *testing.T) {
	ctx := context.Background()
	cache, mockClient := createTestUserCache()

	mockClient.On("Add", ctx, mock.Anything).Return(NewLDAPError("add", ldap.NewError(ldap.LDAPResultConstraintViolation, errors.New("bad value")))).Once()

	created, err := cache.Create(ctx, &User{UID: "jdoe", Name: "John Doe"})
	assert.False(t, created)
	require.Error(t, err)
	assert.Equal(t, ErrorCategoryValidation, GetErrorCategory(err))

	mockClient.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}

func TestUserCacheCreateExistsInDirectory(t *testing.T) {
	ctx := context.Background()
	cache, mockClient := createTestUserCache()

	mockClient.On("Add", ctx, mock.Anything).Return(NewLDAPError("add", ldap.NewError(ldap.LDAPResultEntryAlreadyExists, errors.New("exists")))).Once()
	mockClient.On("Search", ctx, filterIs(userFilter("jdoe"))).Return(searchResult(jdoeEntry(nil)), nil).Once()

	created, err := cache.Create(ctx, &User{UID: "jdoe", Name: "John Doe"})
	require.NoError(t, err)
	assert.False(t, created)

	_, ok := cache.Get("jdoe")
	assert.True(t, ok, "existing entry is cached")
	mockClient.AssertExpectations(t)
}

func TestUserCacheModify(t *testing.T) {
	ctx := context.Background()
	cache, mockClient := createTestUserCache()

	mockClient.On("Search", ctx, filterIs(userFilter("jdoe"))).Return(searchResult(jdoeEntry(map[string][]string{
		"telephoneNumber": {"42"},
	})), nil).Once()
	mockClient.On("Modify", ctx, mock.MatchedBy(func(req *ModifyRequest) bool {
		return req.DN == "uid=jdoe,"+testUsersBaseDN &&
			len(req.Changes) == 3 &&
			hasChange(req.Changes, ChangeReplace, "mail") &&
			hasChange(req.Changes, ChangeAdd, "departmentNumber") &&
			hasChange(req.Changes, ChangeDelete, "telephoneNumber")
	})).Return(nil).Once()
	mockClient.On("Modify", ctx, mock.MatchedBy(func(req *ModifyRequest) bool {
		return len(req.Changes) == 1 && req.Changes[0].Attribute == "jpegPhoto"
	})).Return(nil).Once()
	mockClient.On("Search", ctx, filterIs(userFilter("jdoe"))).Return(searchResult(jdoeEntry(map[string][]string{
		"mail":             {"john@example.com"},
		"departmentNumber": {"ENG"},
	})), nil).Once()

	req := NewModifyUser().
		Mail("john@example.com").
		School("ENG").
		Number("").
		FirstName("John").
		Picture([]byte{1, 2})

	modified, err := cache.Modify(ctx, "jdoe", req)
	require.NoError(t, err)
	assert.True(t, modified)

	user, _ := cache.Get("jdoe")
	assert.Equal(t, "john@example.com", user.Mail)
	assert.Equal(t, "ENG", user.School)

	mockClient.AssertExpectations(t)
}

func TestUserCacheModifyNoChanges(t *testing.T) {
	ctx := context.Background()
	cache, mockClient := createTestUserCache()

	mockClient.On("Search", ctx, filterIs(userFilter("jdoe"))).Return(searchResult(jdoeEntry(nil)), nil).Once()

	modified, err := cache.Modify(ctx, "jdoe", NewModifyUser().Mail("jdoe@example.com"))
	require.NoError(t, err)
	assert.False(t, modified)

	mockClient.AssertNotCalled(t, "Modify", mock.Anything, mock.Anything)
	mockClient.AssertExpectations(t)
}

func TestUserCacheModifyUnknownUser(t *testing.T) {
	ctx := context.Background()
	cache, mockClient := createTestUserCache()

	mockClient.On("Search", ctx, filterIs(userFilter("ghost"))).Return(searchResult(), nil).Once()

	modified, err := cache.Modify(ctx, "ghost", NewModifyUser().Mail("x@example.com"))
	assert.False(t, modified)
	assert.ErrorIs(t, err, ErrEntryNotFound)

	mockClient.AssertNotCalled(t, "Modify", mock.Anything, mock.Anything)
}

func TestUserCacheModifyFailureStillRefreshes(t *testing.T) {
	ctx := context.Background()
	cache, mockClient := createTestUserCache()

	mockClient.On("Search", ctx, filterIs(userFilter("jdoe"))).Return(searchResult(jdoeEntry(nil)), nil).Twice()
	mockClient.On("Modify", ctx, mock.Anything).Return(NewLDAPError("modify", ldap.NewError(ldap.LDAPResultInsufficientAccessRights, errors.New("denied")))).Once()

	modified, err := cache.Modify(ctx, "jdoe", NewModifyUser().Mail("x@example.com").Picture([]byte{1}))
	assert.False(t, modified)
	require.Error(t, err)
	assert.True(t, IsPermissionError(err))

	// The binary request is not sent once the string request fails
	mockClient.AssertNumberOfCalls(t, "Modify", 1)
	mockClient.AssertNumberOfCalls(t, "Search", 2)
}

func TestUserCacheDelete(t *testing.T) {
	ctx := context.Background()
	cache, mockClient := createTestUserCache()

	mockClient.On("Search", ctx, filterIs(userFilter("jdoe"))).Return(searchResult(jdoeEntry(nil)), nil).Once()
	require.NoError(t, cache.RefreshOne(ctx, "jdoe"))

	mockClient.On("Delete", ctx, "uid=jdoe,"+testUsersBaseDN).Return(nil).Once()
	mockClient.On("Search", ctx, filterIs(userFilter("jdoe"))).Return(searchResult(), nil).Once()

	deleted, err := cache.Delete(ctx, "jdoe")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, ok := cache.Get("jdoe")
	assert.False(t, ok)
	mockClient.AssertExpectations(t)
}

func TestUserCacheDeleteFailureStillRefreshes(t *testing.T) {
	ctx := context.Background()
	cache, mockClient := createTestUserCache()

	mockClient.On("Delete", ctx, "uid=ghost,"+testUsersBaseDN).Return(NewLDAPError("delete", ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such object")))).Once()
	mockClient.On("Search", ctx, filterIs(userFilter("ghost"))).Return(searchResult(), nil).Once()

	deleted, err := cache.Delete(ctx, "ghost")
	assert.False(t, deleted)
	assert.ErrorIs(t, err, ErrEntryNotFound)

	mockClient.AssertExpectations(t)
}

func TestUserCacheDNEscapesUID(t *testing.T) {
	cache, _ := createTestUserCache()
	assert.Equal(t, `uid=doe\, john,`+testUsersBaseDN, cache.DN("doe, john"))
}

func TestUserCacheConcurrentRefreshOne(t *testing.T) {
	ctx := context.Background()
	cache, mockClient := createTestUserCache()

	mockClient.On("Search", ctx, filterIs(userFilter("a"))).Return(searchResult(userEntry("a", map[string][]string{
		"mail": {"a@example.com"},
		"cn":   {"A"},
	})), nil)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, cache.RefreshOne(ctx, "a"))
		}()
		go func() {
			defer wg.Done()
			if user, ok := cache.Get("a"); ok {
				assert.Equal(t, "a@example.com", user.Mail)
				assert.Equal(t, "A", user.Name)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, cache.Len())
}
