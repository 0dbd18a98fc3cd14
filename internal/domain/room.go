package domain

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// MaxRoomNameLength is the maximum number of runes in a room name.
	MaxRoomNameLength = 32

	// DefaultJoinedRoomName is used when a room is joined without a name.
	DefaultJoinedRoomName = "Imported Room"

	// InviteScheme is the URI scheme the room server encodes into QR codes.
	InviteScheme = "walletchat"
)

// validatorInstance is a package-level validator instance.
// Using a single instance is more efficient as it caches struct information.
var validatorInstance = validator.New()

var iconCaser = cases.Upper(language.Und)

// Room is a named messaging channel identified by an address and gated by
// an access key. Address and AccessKey never change after creation.
type Room struct {
	ID        string `json:"id" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Address   string `json:"address" validate:"required"`
	AccessKey string `json:"key" validate:"required"`
	Icon      string `json:"icon"`
}

// NewRoom builds a room with a fresh time-ordered id and an icon derived
// from the name. The name is trimmed and must fit MaxRoomNameLength.
func NewRoom(name, address, accessKey string) (Room, error) {
	name, err := NormalizeRoomName(name)
	if err != nil {
		return Room{}, err
	}
	address = strings.TrimSpace(address)
	accessKey = strings.TrimSpace(accessKey)
	if address == "" || accessKey == "" {
		return Room{}, ErrIncompleteCredentials
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Room{}, fmt.Errorf("failed to generate room id: %w", err)
	}

	return Room{
		ID:        id.String(),
		Name:      name,
		Address:   address,
		AccessKey: accessKey,
		Icon:      IconFor(name),
	}, nil
}

// NormalizeRoomName trims name and checks it is non-empty and fits
// MaxRoomNameLength.
func NormalizeRoomName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyRoomName
	}
	if utf8.RuneCountInString(name) > MaxRoomNameLength {
		return "", ErrRoomNameTooLong
	}
	return name, nil
}

// Validate runs validation checks on the Room struct using the defined tags.
func (r Room) Validate() error {
	return validatorInstance.Struct(r)
}

// IconFor returns the single-character label shown for a room name.
func IconFor(name string) string {
	r, size := utf8.DecodeRuneInString(strings.TrimSpace(name))
	if size == 0 || r == utf8.RuneError {
		return "?"
	}
	return iconCaser.String(string(r))
}

// InviteURI returns the shareable form of the room credentials.
func (r Room) InviteURI() string {
	return fmt.Sprintf("%s://%s?key=%s", InviteScheme, r.Address, url.QueryEscape(r.AccessKey))
}

// ParseInviteURI extracts the address and access key from an invite URI.
func ParseInviteURI(raw string) (address, accessKey string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidInvite, err)
	}
	if u.Scheme != InviteScheme {
		return "", "", fmt.Errorf("%w: unexpected scheme %q", ErrInvalidInvite, u.Scheme)
	}
	address = u.Host
	accessKey = u.Query().Get("key")
	if address == "" || accessKey == "" {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidInvite, ErrIncompleteCredentials)
	}
	return address, accessKey, nil
}
