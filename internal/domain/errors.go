package domain

import "errors"

// Sentinel errors for the domain layer. These provide consistent, checkable
// errors for user-input and flow failures.
var (
	ErrEmptyRoomName         = errors.New("room name is required")
	ErrRoomNameTooLong       = errors.New("room name is too long")
	ErrIncompleteCredentials = errors.New("room address and access key are required")
	ErrRoomNotFound          = errors.New("room not found")
	ErrInvalidInvite         = errors.New("invalid invite uri")

	ErrEmptyMessage   = errors.New("message text is empty")
	ErrMessageTooLong = errors.New("message text is too long")
	ErrEmptyIdentity  = errors.New("identity name is empty")

	ErrNoActiveRoom = errors.New("no active room")
	ErrRateLimited  = errors.New("sending too fast, wait a moment")
	ErrNotConnected = errors.New("not connected to room")

	// ErrRoomAPI wraps every failure of the remote room API.
	ErrRoomAPI = errors.New("room api request failed")
)
