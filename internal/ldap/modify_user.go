package ldap

import (
	"fmt"
	"slices"

	"github.com/isometry/ldap-gate/internal/password"
)

// ModifyUser is a sparse update request. Only fields that were set take part
// in the diff against the directory's current entry.
type ModifyUser struct {
	fields  map[Attribute]string
	picture []byte
	hasPic  bool
	err     error
}

// ChangeSet holds the changes a ModifyUser produces, split by value type.
// String and binary changes are sent in separate modify requests.
type ChangeSet struct {
	Strings []Change
	Binary  []Change
}

// IsEmpty reports whether the change set carries no changes.
func (c ChangeSet) IsEmpty() bool {
	return len(c.Strings) == 0 && len(c.Binary) == 0
}

// NewModifyUser returns an empty update request.
func NewModifyUser() *ModifyUser {
	return &ModifyUser{fields: make(map[Attribute]string)}
}

// Password hashes plaintext with the default scheme at request construction.
func (m *ModifyUser) Password(plaintext string) *ModifyUser {
	hashed, err := password.Hash(plaintext, password.Default)
	if err != nil {
		m.err = fmt.Errorf("failed to hash password: %w", err)
		return m
	}
	return m.PasswordHash(hashed)
}

// PasswordHash sets an already tagged hash.
func (m *ModifyUser) PasswordHash(hash string) *ModifyUser {
	m.fields[AttributePassword] = hash
	return m
}

// Mail replaces the e-mail address. An empty value removes it.
func (m *ModifyUser) Mail(v string) *ModifyUser { return m.set(AttributeMail, v) }

// FirstName replaces the given name.
func (m *ModifyUser) FirstName(v string) *ModifyUser { return m.set(AttributeFirstName, v) }

// LastName replaces the family name.
func (m *ModifyUser) LastName(v string) *ModifyUser { return m.set(AttributeLastName, v) }

// Name replaces the display name.
func (m *ModifyUser) Name(v string) *ModifyUser { return m.set(AttributeName, v) }

// School replaces the school attribute.
func (m *ModifyUser) School(v string) *ModifyUser { return m.set(AttributeSchool, v) }

// Genie replaces the genie attribute.
func (m *ModifyUser) Genie(v string) *ModifyUser { return m.set(AttributeGenie, v) }

// Matricule replaces the matricule attribute.
func (m *ModifyUser) Matricule(v string) *ModifyUser { return m.set(AttributeMatricule, v) }

// Number replaces the number attribute.
func (m *ModifyUser) Number(v string) *ModifyUser { return m.set(AttributeNumber, v) }

// Picture sets the jpegPhoto value. An empty picture removes it.
func (m *ModifyUser) Picture(picture []byte) *ModifyUser {
	m.picture = slices.Clone(picture)
	m.hasPic = true
	return m
}

// SetAll marks every modifiable field of u as desired.
func (m *ModifyUser) SetAll(u *User) *ModifyUser {
	for _, row := range attributeTable {
		if row.binary || row.attr == AttributeUID || row.attr == AttributeMemberOf {
			continue
		}
		m.fields[row.attr] = u.get(row.attr)
	}
	if u.Picture != nil {
		m.Picture(u.Picture)
	}
	return m
}

// Err returns the error recorded while building the request, if any.
func (m *ModifyUser) Err() error {
	return m.err
}

func (m *ModifyUser) set(field Attribute, value string) *ModifyUser {
	m.fields[field] = value
	return m
}

// Diff computes the changes that move baseline to the requested state.
//
// For each requested string field: empty baseline and non-empty value is an
// add, empty value and non-empty baseline is a delete, any other difference
// is a replace. The password and picture are always replaced when requested.
func (m *ModifyUser) Diff(baseline *User) ChangeSet {
	var changes ChangeSet

	if baseline == nil {
		baseline = &User{}
	}

	for _, row := range attributeTable {
		desired, ok := m.fields[row.attr]
		if !ok {
			continue
		}

		if row.attr == AttributePassword {
			changes.Strings = append(changes.Strings, Change{
				Operation: ChangeReplace,
				Attribute: row.wire,
				Values:    []string{desired},
			})
			continue
		}

		current := baseline.get(row.attr)
		switch {
		case current == "" && desired != "":
			changes.Strings = append(changes.Strings, Change{
				Operation: ChangeAdd,
				Attribute: row.wire,
				Values:    []string{desired},
			})
		case desired == "" && current != "":
			changes.Strings = append(changes.Strings, Change{
				Operation: ChangeDelete,
				Attribute: row.wire,
			})
		case desired != current:
			changes.Strings = append(changes.Strings, Change{
				Operation: ChangeReplace,
				Attribute: row.wire,
				Values:    []string{desired},
			})
		}
	}

	if m.hasPic {
		change := Change{
			Operation: ChangeReplace,
			Attribute: AttributePicture.String(),
		}
		if len(m.picture) > 0 {
			change.ByteValues = [][]byte{slices.Clone(m.picture)}
		}
		changes.Binary = append(changes.Binary, change)
	}

	return changes
}
