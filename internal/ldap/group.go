package ldap

import (
	"fmt"
	"slices"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// Group represents a groupOfNames entry.
type Group struct {
	DN string `json:"dn"`
	CN string `json:"cn"`

	// Members and owners split by whether the reference names a user or a group.
	UserMembers  []string `json:"user_members,omitempty"`
	GroupMembers []string `json:"group_members,omitempty"`
	UserOwners   []string `json:"user_owners,omitempty"`
	GroupOwners  []string `json:"group_owners,omitempty"`

	// Parents are the cn components of the group's own DN above itself.
	Parents []string `json:"parents,omitempty"`

	// Raw reference values as stored in the directory
	MemberDNs []string `json:"member_dns,omitempty"`
	OwnerDNs  []string `json:"owner_dns,omitempty"`
}

// userRDNType is the RDN attribute that marks a reference as a user.
const userRDNType = "uid"

// entryToGroup converts an LDAP entry to a Group.
func entryToGroup(entry *ldap.Entry) (*Group, error) {
	if entry == nil {
		return nil, fmt.Errorf("LDAP entry cannot be nil")
	}

	group := &Group{
		DN:        entry.DN,
		CN:        entry.GetEqualFoldAttributeValue(groupAttrCN),
		MemberDNs: slices.Clone(entry.GetEqualFoldAttributeValues(groupAttrMember)),
		OwnerDNs:  slices.Clone(entry.GetEqualFoldAttributeValues(groupAttrOwner)),
	}

	if group.CN == "" {
		return nil, fmt.Errorf("entry %s has no cn", entry.DN)
	}

	group.UserMembers, group.GroupMembers = partitionReferences(group.MemberDNs)
	group.UserOwners, group.GroupOwners = partitionReferences(group.OwnerDNs)
	group.Parents = parentGroups(group.DN, group.CN)

	return group, nil
}

// partitionReferences splits DN references into user ids and group ids using
// the type of each reference's first RDN. Unparseable references are dropped.
func partitionReferences(refs []string) (users, groups []string) {
	for _, ref := range refs {
		rdnType, value, err := FirstRDN(ref)
		if err != nil {
			continue
		}
		if rdnType == userRDNType {
			users = append(users, value)
		} else {
			groups = append(groups, value)
		}
	}
	return users, groups
}

// parentGroups returns every cn value in dn except cn itself.
// "cn=devs,cn=eng,dc=example,dc=com" with cn "devs" yields ["eng"].
func parentGroups(dn, cn string) []string {
	if dn == "" {
		return nil
	}

	values, err := RDNValues(dn, groupAttrCN)
	if err != nil {
		return nil
	}

	var parents []string
	for _, value := range values {
		if strings.EqualFold(value, cn) || slices.Contains(parents, value) {
			continue
		}
		parents = append(parents, value)
	}
	return parents
}

// HasUserMember reports whether uid is a direct user member.
func (g *Group) HasUserMember(uid string) bool {
	return slices.Contains(g.UserMembers, uid)
}

// Clone returns a deep copy of the group.
func (g *Group) Clone() *Group {
	if g == nil {
		return nil
	}

	clone := *g
	clone.UserMembers = slices.Clone(g.UserMembers)
	clone.GroupMembers = slices.Clone(g.GroupMembers)
	clone.UserOwners = slices.Clone(g.UserOwners)
	clone.GroupOwners = slices.Clone(g.GroupOwners)
	clone.Parents = slices.Clone(g.Parents)
	clone.MemberDNs = slices.Clone(g.MemberDNs)
	clone.OwnerDNs = slices.Clone(g.OwnerDNs)
	return &clone
}

// unionDNs appends each DN in additions not already present in current.
// DNs are compared case-insensitively after parsing.
func unionDNs(current, additions []string) []string {
	union := slices.Clone(current)
	for _, dn := range additions {
		if !slices.ContainsFunc(union, func(existing string) bool { return EqualDN(existing, dn) }) {
			union = append(union, dn)
		}
	}
	return union
}
