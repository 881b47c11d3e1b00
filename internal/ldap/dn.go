package ldap

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// EscapeDNValue escapes special characters in a DN attribute value according to RFC 4514.
//
// Examples:
//   - "Doe, John" → "Doe\, John"
//   - " John " → "\ John\ "
//   - "#123" → "\#123"
func EscapeDNValue(value string) string {
	if value == "" {
		return value
	}

	var result strings.Builder
	result.Grow(len(value) + 8)

	for i, r := range value {
		switch r {
		case ',', '+', '"', '\\', '<', '>', ';':
			result.WriteRune('\\')
			result.WriteRune(r)
		case '#':
			if i == 0 {
				result.WriteRune('\\')
			}
			result.WriteRune(r)
		case ' ':
			if i == 0 || i == len(value)-1 {
				result.WriteRune('\\')
			}
			result.WriteRune(r)
		case 0:
			result.WriteString("\\00")
		default:
			result.WriteRune(r)
		}
	}

	return result.String()
}

// ValidateDNSyntax validates that a string is a properly formatted Distinguished Name.
func ValidateDNSyntax(dn string) error {
	if dn == "" {
		return fmt.Errorf("DN cannot be empty")
	}

	if _, err := ldap.ParseDN(dn); err != nil {
		return fmt.Errorf("invalid DN syntax: %w", err)
	}

	return nil
}

// FirstRDN returns the type and value of the leading RDN component of dn.
// The type is lowercased.
func FirstRDN(dn string) (string, string, error) {
	parsed, err := parseNonEmptyDN(dn)
	if err != nil {
		return "", "", err
	}

	if len(parsed.RDNs) == 0 || len(parsed.RDNs[0].Attributes) == 0 {
		return "", "", fmt.Errorf("DN %q has no RDN components", dn)
	}

	attr := parsed.RDNs[0].Attributes[0]
	return strings.ToLower(attr.Type), attr.Value, nil
}

// RDNValues returns the values of every RDN component of type attrType, in DN order.
//
// For "cn=devs,cn=eng,dc=example,dc=com" and "cn" it returns ["devs", "eng"].
func RDNValues(dn, attrType string) ([]string, error) {
	parsed, err := parseNonEmptyDN(dn)
	if err != nil {
		return nil, err
	}

	var values []string
	for _, rdn := range parsed.RDNs {
		for _, attr := range rdn.Attributes {
			if strings.EqualFold(attr.Type, attrType) {
				values = append(values, attr.Value)
			}
		}
	}

	return values, nil
}

// ExtractRDNValue extracts the value of the first RDN component with the specified attribute type.
// For example, extracting "uid" from "uid=jdoe,ou=people,dc=example,dc=com" returns "jdoe".
func ExtractRDNValue(dn, attrType string) (string, error) {
	values, err := RDNValues(dn, attrType)
	if err != nil {
		return "", err
	}

	if len(values) == 0 {
		return "", fmt.Errorf("attribute type '%s' not found in DN '%s'", attrType, dn)
	}

	return values[0], nil
}

// EqualDN reports whether two DNs name the same entry, ignoring case and
// insignificant whitespace. Unparseable DNs fall back to a case-insensitive
// string comparison.
func EqualDN(a, b string) bool {
	pa, errA := ldap.ParseDN(a)
	pb, errB := ldap.ParseDN(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
	}
	return pa.EqualFold(pb)
}

func parseNonEmptyDN(dn string) (*ldap.DN, error) {
	if dn == "" {
		return nil, fmt.Errorf("DN cannot be empty")
	}

	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return nil, fmt.Errorf("invalid DN syntax: %w", err)
	}

	return parsed, nil
}
