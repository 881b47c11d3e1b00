// Package password produces and checks tagged salted password hashes in the
// {SCHEME}payload form directories store in userPassword.
package password

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Scheme names a hashing algorithm by its tag.
type Scheme string

const (
	SSHA Scheme = "SSHA"

	// Default is used for every hash this process creates.
	Default = SSHA
)

// ErrUnsupportedScheme is returned when hashing with an unregistered scheme.
var ErrUnsupportedScheme = errors.New("unsupported password scheme")

// hasher implements one tagged scheme.
type hasher struct {
	hash   func(plaintext string) (string, error)
	verify func(plaintext, payload string) bool
}

var registry = map[Scheme]hasher{
	SSHA: {hash: hashSSHA, verify: verifySSHA},
}

// Schemes lists the registered schemes.
func Schemes() []Scheme {
	schemes := make([]Scheme, 0, len(registry))
	for scheme := range registry {
		schemes = append(schemes, scheme)
	}
	slices.Sort(schemes)
	return schemes
}

// Hash returns plaintext hashed with scheme, prefixed by {SCHEME}.
func Hash(plaintext string, scheme Scheme) (string, error) {
	h, ok := registry[Scheme(strings.ToUpper(string(scheme)))]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
	}

	return h.hash(plaintext)
}

// Verify reports whether plaintext matches stored.
//
// A stored value without a leading {TAG} is compared literally, so entries
// provisioned with a cleartext userPassword still authenticate. A tag that
// names no registered scheme never matches.
func Verify(plaintext, stored string) bool {
	scheme, payload, tagged := splitTag(stored)
	if !tagged {
		return plaintext == stored
	}

	h, ok := registry[scheme]
	if !ok {
		return false
	}

	return h.verify(plaintext, payload)
}

// splitTag separates a leading {TAG} from the payload. The tag is uppercased.
func splitTag(stored string) (Scheme, string, bool) {
	if !strings.HasPrefix(stored, "{") {
		return "", "", false
	}

	end := strings.IndexByte(stored, '}')
	if end < 2 {
		return "", "", false
	}

	return Scheme(strings.ToUpper(stored[1:end])), stored[end+1:], true
}
