package bot

import "fmt"

// Kind classifies a request failure. The API layer maps kinds to HTTP
// statuses; clients switch on the string value.
type Kind string

// Failure kinds.
const (
	KindInvalidMessage Kind = "invalid_message"
	KindInvalidEmail   Kind = "invalid_email"
	KindRateLimited    Kind = "rate_limited"
	KindWarmingUp      Kind = "warming_up"
	KindOverloaded     Kind = "overloaded"
	KindTimeout        Kind = "timeout"
	KindInternal       Kind = "internal_error"
)

// Error is a typed pipeline failure with a client-safe message.
// RetryAfter is set only for rate-limited failures, in whole seconds.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}
