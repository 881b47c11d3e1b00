package ldap

import "strings"

// Attribute identifies a User field stored in the directory.
type Attribute int

const (
	AttributeUnknown Attribute = iota
	AttributeUID
	AttributePassword
	AttributeMail
	AttributeFirstName
	AttributeLastName
	AttributeName
	AttributeSchool
	AttributeGenie
	AttributeMatricule
	AttributeNumber
	AttributePicture
	AttributeMemberOf
)

// Object classes used by the caches.
const (
	ObjectClassUser  = "inetOrgPerson"
	ObjectClassGroup = "groupOfNames"
)

// Group attribute names.
const (
	groupAttrCN     = "cn"
	groupAttrMember = "member"
	groupAttrOwner  = "owner"
)

// attributeTable is the single mapping between User fields and wire names.
// Parsing and serialization both read it.
var attributeTable = []struct {
	attr   Attribute
	wire   string
	binary bool
}{
	{AttributeUID, "uid", false},
	{AttributePassword, "userPassword", false},
	{AttributeMail, "mail", false},
	{AttributeFirstName, "givenName", false},
	{AttributeLastName, "sn", false},
	{AttributeName, "cn", false},
	{AttributeSchool, "departmentNumber", false},
	{AttributeGenie, "roomNumber", false},
	{AttributeMatricule, "employeeNumber", false},
	{AttributeNumber, "telephoneNumber", false},
	{AttributePicture, "jpegPhoto", true},
	{AttributeMemberOf, "memberOf", false},
}

var attributesByWire = func() map[string]Attribute {
	m := make(map[string]Attribute, len(attributeTable))
	for _, row := range attributeTable {
		m[strings.ToLower(row.wire)] = row.attr
	}
	return m
}()

// ParseAttribute returns the field for a wire attribute name, or AttributeUnknown.
// Attribute descriptions are case-insensitive.
func ParseAttribute(wire string) Attribute {
	if attr, ok := attributesByWire[strings.ToLower(wire)]; ok {
		return attr
	}
	return AttributeUnknown
}

// String returns the wire attribute name.
func (a Attribute) String() string {
	for _, row := range attributeTable {
		if row.attr == a {
			return row.wire
		}
	}
	return ""
}

// IsBinary reports whether the attribute carries raw octets.
func (a Attribute) IsBinary() bool {
	for _, row := range attributeTable {
		if row.attr == a {
			return row.binary
		}
	}
	return false
}

// userSearchAttributes requests all user attributes plus the operational memberOf.
var userSearchAttributes = []string{"*", AttributeMemberOf.String()}

// groupSearchAttributes requests all group attributes.
var groupSearchAttributes = []string{"*"}
