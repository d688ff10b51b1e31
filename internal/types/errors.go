// internal/types/errors.go
package types

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthRequired means no credential is on file; the operator must authorize.
	ErrAuthRequired = errors.New("marketplace authorization required")
	// ErrRefreshFailed means the token endpoint rejected the refresh.
	ErrRefreshFailed = errors.New("marketplace token refresh failed")
	// ErrMalformedCommand means a command had missing or invalid arguments.
	ErrMalformedCommand = errors.New("malformed command")
)

// IsAuthError reports whether err requires the operator to (re)authorize.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthRequired) || errors.Is(err, ErrRefreshFailed)
}

// DeliveryError is returned when an outbound chat message could not be sent.
type DeliveryError struct {
	ChatID ChatID
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver message to chat %s: %v", e.ChatID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
