package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	// MaxIdentityLength is the maximum number of runes in a username.
	MaxIdentityLength = 12

	// DefaultIdentity is used until the user picks a name.
	DefaultIdentity = "Anonymous"
)

// Identity is the display name a user sends messages under. It is not a
// credential.
type Identity struct {
	Username string `json:"username"`
}

// NormalizeIdentity NFC-normalises and trims a requested name, then keeps
// the first MaxIdentityLength runes. A clamped name is always exactly
// MaxIdentityLength runes long. The second result reports whether the name
// was clamped.
func NormalizeIdentity(name string) (string, bool, error) {
	name = strings.TrimSpace(norm.NFC.String(name))
	if name == "" {
		return "", false, ErrEmptyIdentity
	}
	runes := []rune(name)
	if len(runes) <= MaxIdentityLength {
		return name, false, nil
	}
	return string(runes[:MaxIdentityLength]), true, nil
}

// IsNormalizedIdentity reports whether name is already in the form
// NormalizeIdentity produces. Only a clamped name may end in whitespace.
func IsNormalizedIdentity(name string) bool {
	if strings.TrimSpace(name) == "" || !norm.NFC.IsNormalString(name) {
		return false
	}
	if strings.TrimLeftFunc(name, unicode.IsSpace) != name {
		return false
	}
	n := utf8.RuneCountInString(name)
	if n == MaxIdentityLength {
		return true
	}
	return n < MaxIdentityLength && strings.TrimRightFunc(name, unicode.IsSpace) == name
}
