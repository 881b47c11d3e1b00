package password

import (
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // SSHA is defined over SHA-1
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"regexp"
)

const (
	sshaSaltSize   = 4
	sshaDigestSize = sha1.Size
)

var sshaPayload = regexp.MustCompile(`^[+/a-zA-Z0-9]{32,}={0,2}$`)

func hashSSHA(plaintext string) (string, error) {
	salt := make([]byte, sshaSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	return "{" + string(SSHA) + "}" + encodeSSHA(plaintext, salt), nil
}

func encodeSSHA(plaintext string, salt []byte) string {
	data := append(sshaDigest(plaintext, salt), salt...)
	return base64.StdEncoding.EncodeToString(data)
}

func verifySSHA(plaintext, payload string) bool {
	if !sshaPayload.MatchString(payload) {
		return false
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(data) <= sshaDigestSize {
		return false
	}

	digest, salt := data[:sshaDigestSize], data[sshaDigestSize:]
	return subtle.ConstantTimeCompare(sshaDigest(plaintext, salt), digest) == 1
}

func sshaDigest(plaintext string, salt []byte) []byte {
	h := sha1.New() //nolint:gosec
	h.Write([]byte(plaintext))
	h.Write(salt)
	return h.Sum(nil)
}
