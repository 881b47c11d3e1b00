package ldap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeDNValue(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"John Doe", "John Doe"},
		{"Doe, John", `Doe\, John`},
		{" John ", `\ John\ `},
		{"#123", `\#123`},
		{"a#b", "a#b"},
		{"John<>Doe", `John\<\>Doe`},
		{`back\slash`, `back\\slash`},
		{"a+b;c", `a\+b\;c`},
		{"nul\x00", `nul\00`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, EscapeDNValue(tt.input))
		})
	}
}

func TestFirstRDN(t *testing.T) {
	rdnType, value, err := FirstRDN("UID=jdoe,ou=people,dc=example,dc=com")
	require.NoError(t, err)
	assert.Equal(t, "uid", rdnType)
	assert.Equal(t, "jdoe", value)

	_, value, err = FirstRDN(`cn=Doe\, John,ou=people,dc=example,dc=com`)
	require.NoError(t, err)
	assert.Equal(t, "Doe, John", value)

	_, _, err = FirstRDN("")
	assert.Error(t, err)

	_, _, err = FirstRDN("not a dn")
	assert.Error(t, err)
}

func TestRDNValues(t *testing.T) {
	values, err := RDNValues("cn=devs,cn=eng,ou=groups,dc=example,dc=com", "CN")
	require.NoError(t, err)
	assert.Equal(t, []string{"devs", "eng"}, values)

	values, err = RDNValues("ou=groups,dc=example,dc=com", "cn")
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestExtractRDNValue(t *testing.T) {
	value, err := ExtractRDNValue("uid=jdoe,ou=people,dc=example,dc=com", "ou")
	require.NoError(t, err)
	assert.Equal(t, "people", value)

	_, err = ExtractRDNValue("uid=jdoe,ou=people,dc=example,dc=com", "cn")
	assert.Error(t, err)
}

func TestValidateDNSyntax(t *testing.T) {
	assert.NoError(t, ValidateDNSyntax("uid=jdoe,ou=people,dc=example,dc=com"))
	assert.Error(t, ValidateDNSyntax(""))
	assert.Error(t, ValidateDNSyntax("jdoe"))
}

func TestEqualDN(t *testing.T) {
	assert.True(t, EqualDN("uid=jdoe,ou=people,dc=example,dc=com", "UID=JDOE,OU=People,DC=Example,DC=COM"))
	assert.False(t, EqualDN("uid=jdoe,ou=people,dc=example,dc=com", "uid=asmith,ou=people,dc=example,dc=com"))
	assert.True(t, EqualDN("garbage", "GARBAGE"))
}
