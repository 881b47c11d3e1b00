/*
Package ldap keeps an in-memory view of a directory's users and groups and
writes changes back to it.

# Architecture Overview

  - Client: one dialed and bound session per operation, no pooling or retry
  - UserCache and GroupCache: uid and cn keyed maps with full and single-entry refresh
  - ModifyUser: sparse update requests diffed into add, delete and replace changes
  - Refresher: periodic reload of both caches

# Connection Management

Every Client call dials the directory, optionally upgrades with StartTLS,
binds, runs the operation and unbinds. Simple bind, anonymous bind and
Kerberos (GSSAPI) bind of the service account are supported.

# Attribute Mapping

A single table maps User fields to inetOrgPerson attribute names. The same
table is used when parsing search results and when building add requests.

	uid              uid
	userPassword     password (tagged hash)
	mail             mail
	givenName        first name
	sn               last name
	cn               name
	departmentNumber school
	roomNumber       genie
	employeeNumber   matricule
	telephoneNumber  number
	jpegPhoto        picture (binary)
	memberOf         group back-references (all values)

# Consistency

Cache locks are never held across a directory call. A full refresh swaps the
whole map at once; a single-entry refresh replaces or removes one record.
Concurrent refreshes of the same entry are last-writer-wins, and the user and
group caches are refreshed independently of each other.

# Example Usage

	client, err := ldap.NewClient(ctx, &ldap.ConnectionConfig{
		Host:         "ldap.example.com",
		Port:         389,
		TLSMode:      ldap.TLSModeStartTLS,
		BindDN:       "cn=admin,dc=example,dc=com",
		BindPassword: "secret",
	})
	if err != nil {
		return err
	}

	users := ldap.NewUserCache(client, ldap.CacheOptions{
		BaseDN:      "dc=example,dc=com",
		UsersBaseDN: "ou=people,dc=example,dc=com",
	})
	if err := users.Refresh(ctx); err != nil {
		return err
	}

	modified, err := users.Modify(ctx, "jdoe", ldap.NewModifyUser().Mail("jdoe@example.com"))
*/
package ldap
