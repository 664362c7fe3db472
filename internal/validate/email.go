package validate

import (
	"errors"
	"strings"
)

// MaxEmailLength is the RFC 5321 limit on address length.
const MaxEmailLength = 254

// ValidateEmail checks basic email address format.
//
// Deliberately conservative: exactly one '@', non-empty local part, a dot in
// the domain, no consecutive dots. Anything fancier belongs to the mail
// provider; this only has to keep garbage out of the users table.
func ValidateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	if len(email) > MaxEmailLength {
		return errors.New("email must be 254 characters or less")
	}

	at := strings.IndexByte(email, '@')
	if at <= 0 || at != strings.LastIndexByte(email, '@') {
		return errors.New("email must contain exactly one @ symbol")
	}
	if at == len(email)-1 {
		return errors.New("email cannot end with @")
	}

	domain := email[at+1:]
	if !strings.Contains(domain, ".") {
		return errors.New("email domain must contain a dot")
	}
	if strings.Contains(email, "..") {
		return errors.New("email cannot contain consecutive dots")
	}

	return nil
}

// NormalizeEmail lowercases and trims an email address. All lookups and
// uniqueness checks run on the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsDisposableEmail reports whether the address uses a known throwaway-mail
// domain. Returns false when no '@' is present.
//
// The list is intentionally conservative: a false negative costs us a few
// bonus credits, a false positive blocks a real signup.
func IsDisposableEmail(email string) bool {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return false
	}
	domain := strings.ToLower(strings.TrimSpace(email[at+1:]))
	_, ok := disposableDomains[domain]
	return ok
}
