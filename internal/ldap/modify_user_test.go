package ldap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModifyUserDiff(t *testing.T) {
	baseline := &User{
		UID:       "jdoe",
		Password:  "{SSHA}old",
		Mail:      "jdoe@example.com",
		FirstName: "John",
		LastName:  "Doe",
		Name:      "John Doe",
		Number:    "42",
	}

	tests := []struct {
		name    string
		request *ModifyUser
		want    []Change
	}{
		{
			name:    "add to empty attribute",
			request: NewModifyUser().School("ENG"),
			want:    []Change{{Operation: ChangeAdd, Attribute: "departmentNumber", Values: []string{"ENG"}}},
		},
		{
			name:    "delete with empty value",
			request: NewModifyUser().Number(""),
			want:    []Change{{Operation: ChangeDelete, Attribute: "telephoneNumber"}},
		},
		{
			name:    "replace differing value",
			request: NewModifyUser().Mail("john@example.com"),
			want:    []Change{{Operation: ChangeReplace, Attribute: "mail", Values: []string{"john@example.com"}}},
		},
		{
			name:    "equal value is a no-op",
			request: NewModifyUser().Mail("jdoe@example.com"),
			want:    nil,
		},
		{
			name:    "empty on empty is a no-op",
			request: NewModifyUser().Genie(""),
			want:    nil,
		},
		{
			name:    "password hash is always replaced",
			request: NewModifyUser().PasswordHash("{SSHA}old"),
			want:    []Change{{Operation: ChangeReplace, Attribute: "userPassword", Values: []string{"{SSHA}old"}}},
		},
		{
			name:    "empty request",
			request: NewModifyUser(),
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changes := tt.request.Diff(baseline)
			assert.Equal(t, tt.want, changes.Strings)
			assert.Empty(t, changes.Binary)
		})
	}
}

func TestModifyUserDiffMultipleFields(t *testing.T) {
	baseline := &User{UID: "jdoe", Mail: "a@example.com", Genie: "GI"}

	changes := NewModifyUser().
		Mail("b@example.com").
		Genie("").
		Matricule("99").
		FirstName("").
		Diff(baseline)

	require.Len(t, changes.Strings, 3)
	assert.True(t, hasChange(changes.Strings, ChangeReplace, "mail"))
	assert.True(t, hasChange(changes.Strings, ChangeDelete, "roomNumber"))
	assert.True(t, hasChange(changes.Strings, ChangeAdd, "employeeNumber"))
}

func TestModifyUserPassword(t *testing.T) {
	req := NewModifyUser().Password("new-secret")
	require.NoError(t, req.Err())

	changes := req.Diff(&User{UID: "jdoe"})
	require.Len(t, changes.Strings, 1)

	change := changes.Strings[0]
	assert.Equal(t, ChangeReplace, change.Operation)
	assert.Equal(t, "userPassword", change.Attribute)
	require.Len(t, change.Values, 1)
	assert.True(t, strings.HasPrefix(change.Values[0], "{SSHA}"))
	assert.True(t, (&User{Password: change.Values[0]}).VerifyPassword("new-secret"))
}

func TestModifyUserPicture(t *testing.T) {
	same := []byte{1, 2, 3}
	baseline := &User{UID: "jdoe", Picture: same}

	changes := NewModifyUser().Picture(same).Mail("x@example.com").Diff(baseline)

	assert.Equal(t, []Change{{Operation: ChangeAdd, Attribute: "mail", Values: []string{"x@example.com"}}}, changes.Strings)
	assert.Equal(t, []Change{{Operation: ChangeReplace, Attribute: "jpegPhoto", ByteValues: [][]byte{{1, 2, 3}}}}, changes.Binary)

	removal := NewModifyUser().Picture(nil).Diff(baseline)
	assert.Equal(t, []Change{{Operation: ChangeReplace, Attribute: "jpegPhoto"}}, removal.Binary)
}

func TestModifyUserSetAll(t *testing.T) {
	source := &User{
		UID:       "jdoe",
		Password:  "{SSHA}hash",
		Mail:      "jdoe@example.com",
		FirstName: "John",
		LastName:  "Doe",
		Name:      "John Doe",
	}

	changes := NewModifyUser().SetAll(source).Diff(source)

	assert.Equal(t, []Change{{Operation: ChangeReplace, Attribute: "userPassword", Values: []string{"{SSHA}hash"}}}, changes.Strings)
	assert.Empty(t, changes.Binary)
	assert.False(t, changes.IsEmpty())
}

func TestChangeSetIsEmpty(t *testing.T) {
	assert.True(t, ChangeSet{}.IsEmpty())
	assert.False(t, ChangeSet{Binary: []Change{{Attribute: "jpegPhoto"}}}.IsEmpty())
}
