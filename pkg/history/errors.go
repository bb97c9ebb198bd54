package history

import "errors"

var (
	// ErrInvalidOffset is returned when a history offset leaves the list.
	ErrInvalidOffset = errors.New("history offset out of range")

	ErrNoEntries           = errors.New("history has no committed entries")
	ErrRestoreNotEmpty     = errors.New("restore requires an empty history")
	ErrInvalidRestoreIndex = errors.New("restore start index out of range")
	ErrTooManyEntries      = errors.New("entry count exceeds the configured maximum")
	ErrEntryNotFound       = errors.New("navigation entry not found")
	ErrCannotRemoveCurrent = errors.New("cannot remove the last committed or pending entry")

	// ErrInvalidPageState is returned for persisted state that cannot be decoded.
	ErrInvalidPageState = errors.New("invalid page state")

	ErrUnknownFrame = errors.New("frame is not known to the frame shape provider")
)
