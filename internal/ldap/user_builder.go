package ldap

import (
	"fmt"
	"slices"

	"github.com/isometry/ldap-gate/internal/password"
)

// UserBuilder collects fields for a new User and validates them in Build.
type UserBuilder struct {
	user User
	err  error
}

// NewUserBuilder returns an empty builder.
func NewUserBuilder() *UserBuilder {
	return &UserBuilder{}
}

// UID sets the login identifier.
func (b *UserBuilder) UID(uid string) *UserBuilder {
	b.user.UID = uid
	return b
}

// Password hashes plaintext with the default scheme. An empty plaintext
// leaves the password unset.
func (b *UserBuilder) Password(plaintext string) *UserBuilder {
	if plaintext == "" {
		b.user.Password = ""
		return b
	}

	hashed, err := password.Hash(plaintext, password.Default)
	if err != nil {
		b.err = fmt.Errorf("failed to hash password: %w", err)
		return b
	}
	b.user.Password = hashed
	return b
}

// PasswordHash sets an already tagged hash.
func (b *UserBuilder) PasswordHash(hash string) *UserBuilder {
	b.user.Password = hash
	return b
}

// Mail sets the e-mail address.
func (b *UserBuilder) Mail(mail string) *UserBuilder {
	b.user.Mail = mail
	return b
}

// FirstName sets the given name.
func (b *UserBuilder) FirstName(firstName string) *UserBuilder {
	b.user.FirstName = firstName
	return b
}

// LastName sets the family name.
func (b *UserBuilder) LastName(lastName string) *UserBuilder {
	b.user.LastName = lastName
	return b
}

// Name sets the display name.
func (b *UserBuilder) Name(name string) *UserBuilder {
	b.user.Name = name
	return b
}

// School sets the school attribute.
func (b *UserBuilder) School(school string) *UserBuilder {
	b.user.School = school
	return b
}

// Genie sets the genie attribute.
func (b *UserBuilder) Genie(genie string) *UserBuilder {
	b.user.Genie = genie
	return b
}

// Matricule sets the matricule attribute.
func (b *UserBuilder) Matricule(matricule string) *UserBuilder {
	b.user.Matricule = matricule
	return b
}

// Number sets the number attribute.
func (b *UserBuilder) Number(number string) *UserBuilder {
	b.user.Number = number
	return b
}

// Picture sets the jpegPhoto value. The slice is copied.
func (b *UserBuilder) Picture(picture []byte) *UserBuilder {
	b.user.Picture = slices.Clone(picture)
	return b
}

// Build returns the user, or a *MissingFieldError naming the first empty
// required field in the order uid, password, mail, first_name, last_name, name.
func (b *UserBuilder) Build() (*User, error) {
	if b.err != nil {
		return nil, b.err
	}

	required := []struct {
		field string
		value string
	}{
		{"uid", b.user.UID},
		{"password", b.user.Password},
		{"mail", b.user.Mail},
		{"first_name", b.user.FirstName},
		{"last_name", b.user.LastName},
		{"name", b.user.Name},
	}

	for _, r := range required {
		if r.value == "" {
			return nil, &MissingFieldError{Field: r.field}
		}
	}

	return b.user.Clone(), nil
}
