package ldap

import (
	"fmt"
	"slices"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/isometry/ldap-gate/internal/password"
)

// User represents an inetOrgPerson entry.
type User struct {
	UID       string `json:"uid"`
	Password  string `json:"-"` // Tagged hash as stored in userPassword
	Mail      string `json:"mail"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Name      string `json:"name"`
	School    string `json:"school,omitempty"`
	Genie     string `json:"genie,omitempty"`
	Matricule string `json:"matricule,omitempty"`
	Number    string `json:"number,omitempty"`

	Picture  []byte   `json:"picture,omitempty"`
	MemberOf []string `json:"member_of,omitempty"` // Raw memberOf values
}

// entryToUser converts an LDAP entry to a User. Unknown attributes are ignored
// and multi-valued attributes other than memberOf keep their first value.
func entryToUser(entry *ldap.Entry) (*User, error) {
	if entry == nil {
		return nil, fmt.Errorf("LDAP entry cannot be nil")
	}

	user := &User{}

	for _, attr := range entry.Attributes {
		field := ParseAttribute(attr.Name)
		if field == AttributeUnknown {
			continue
		}

		if field == AttributePicture {
			if len(attr.ByteValues) > 0 {
				user.Picture = slices.Clone(attr.ByteValues[0])
			} else if len(attr.Values) > 0 {
				user.Picture = []byte(attr.Values[0])
			}
			continue
		}

		if field == AttributeMemberOf {
			user.MemberOf = slices.Clone(attr.Values)
			continue
		}

		if len(attr.Values) == 0 {
			continue
		}
		user.set(field, attr.Values[0])
	}

	if user.UID == "" {
		// Some servers omit the naming attribute from the attribute list.
		uid, err := ExtractRDNValue(entry.DN, AttributeUID.String())
		if err != nil || uid == "" {
			return nil, fmt.Errorf("entry %s has no uid", entry.DN)
		}
		user.UID = uid
	}

	return user, nil
}

// get returns the string value of a field.
func (u *User) get(field Attribute) string {
	switch field {
	case AttributeUID:
		return u.UID
	case AttributePassword:
		return u.Password
	case AttributeMail:
		return u.Mail
	case AttributeFirstName:
		return u.FirstName
	case AttributeLastName:
		return u.LastName
	case AttributeName:
		return u.Name
	case AttributeSchool:
		return u.School
	case AttributeGenie:
		return u.Genie
	case AttributeMatricule:
		return u.Matricule
	case AttributeNumber:
		return u.Number
	default:
		return ""
	}
}

// set assigns the string value of a field.
func (u *User) set(field Attribute, value string) {
	switch field {
	case AttributeUID:
		u.UID = value
	case AttributePassword:
		u.Password = value
	case AttributeMail:
		u.Mail = value
	case AttributeFirstName:
		u.FirstName = value
	case AttributeLastName:
		u.LastName = value
	case AttributeName:
		u.Name = value
	case AttributeSchool:
		u.School = value
	case AttributeGenie:
		u.Genie = value
	case AttributeMatricule:
		u.Matricule = value
	case AttributeNumber:
		u.Number = value
	}
}

// Attributes returns the non-empty string attributes for an add request,
// including the object class. The picture and memberOf are never included.
func (u *User) Attributes() map[string][]string {
	attrs := map[string][]string{
		"objectClass": {ObjectClassUser},
	}

	for _, row := range attributeTable {
		if row.binary || row.attr == AttributeMemberOf {
			continue
		}
		if value := u.get(row.attr); value != "" {
			attrs[row.wire] = []string{value}
		}
	}

	return attrs
}

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}

	clone := *u
	clone.Picture = slices.Clone(u.Picture)
	clone.MemberOf = slices.Clone(u.MemberOf)
	return &clone
}

// VerifyPassword checks a plaintext password against the stored hash.
func (u *User) VerifyPassword(plaintext string) bool {
	return password.Verify(plaintext, u.Password)
}

// IsMemberOf reports whether a memberOf value names groupID, either verbatim
// or as the value of its leading RDN.
func (u *User) IsMemberOf(groupID string) bool {
	for _, member := range u.MemberOf {
		if member == groupID {
			return true
		}
		if _, value, err := FirstRDN(member); err == nil && strings.EqualFold(value, groupID) {
			return true
		}
	}
	return false
}
