package bridge

import "errors"

// Error taxonomy. Every failure surfaced by this package wraps one of
// these sentinels so callers can classify with errors.Is.
var (
	// ErrOutOfRange reports an object number or mapping outside bounds.
	ErrOutOfRange = errors.New("out of range")

	// ErrNotFound reports a cache miss.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate reports an attempt to track an already tracked object.
	ErrDuplicate = errors.New("already tracked")

	// ErrInvalidFormat reports a custom command string that fails the
	// coordinate-mapping grammar.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrTimeout reports that no matching reply arrived within budget.
	ErrTimeout = errors.New("timeout")

	// ErrTransport reports a datagram send failure.
	ErrTransport = errors.New("transport failure")

	// ErrDecode reports a malformed inbound packet or reply payload.
	ErrDecode = errors.New("decode failure")
)
