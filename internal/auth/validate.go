package auth

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

const minPasswordLength = 7

var emailRules = newEmailValidator()

func newEmailValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("tld", validTLD); err != nil {
		panic(err)
	}
	return v
}

// validTLD requires the last label to be alphabetic and at least two letters.
func validTLD(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	i := strings.LastIndexByte(s, '.')
	if i < 0 {
		return false
	}
	tld := s[i+1:]
	if len(tld) < 2 {
		return false
	}
	for _, c := range tld {
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeEmail applies the canonical form used for storage and lookup.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// validEmail accepts a bare address whose domain is a hostname with an
// alphabetic top-level label. IP literals and display names are rejected.
func validEmail(email string) bool {
	if err := emailRules.Var(email, "required,max=254,email"); err != nil {
		return false
	}
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return false
	}
	return emailRules.Var(email[at+1:], "fqdn,tld") == nil
}

func (i *Identity) collectProfileErrors(verr *ValidationError) {
	if i.FirstName == "" {
		verr.add("firstName", "is required")
	}
	if i.LastName == "" {
		verr.add("lastName", "is required")
	}
	switch {
	case i.Email == "":
		verr.add("email", "is required")
	case !validEmail(i.Email):
		verr.add("email", "is invalid")
	}
}

func (i *Identity) validateProfile() error {
	verr := &ValidationError{}
	i.collectProfileErrors(verr)
	if i.PasswordHash == "" {
		verr.add("password", "is required")
	}
	return verr.orNil()
}

func collectPasswordErrors(verr *ValidationError, plain string) {
	switch {
	case plain == "":
		verr.add("password", "is required")
	case len([]rune(plain)) < minPasswordLength:
		verr.add("password", "must be at least 7 characters")
	}
}

func checkPassword(plain string) error {
	verr := &ValidationError{}
	collectPasswordErrors(verr, plain)
	return verr.orNil()
}
