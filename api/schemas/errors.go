package schemas

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedInput means credential parsing produced nothing usable.
	ErrMalformedInput = errors.New("no usable credentials in input")
	// ErrSessionRejected means injected credentials did not authenticate.
	ErrSessionRejected = errors.New("session rejected")
	// ErrSessionExpired means a previously valid session died between acquire and use.
	ErrSessionExpired = errors.New("session expired mid-operation")
	// ErrAffordanceNotFound means a required UI element was absent after every strategy was tried.
	ErrAffordanceNotFound = errors.New("affordance not found")
	// ErrRateLimited means the account must back off before the next action.
	ErrRateLimited = errors.New("rate limited")
	// ErrAccountBusy means another operation is already running for the account.
	ErrAccountBusy = errors.New("account is being processed")
	// ErrConnectionNotFound means the QR connection id is unknown or was collected.
	ErrConnectionNotFound = errors.New("connection not found")
	// ErrConnectionNotReady means a QR connection was claimed before it reached connected.
	ErrConnectionNotReady = errors.New("connection not connected")
)

// DriverError wraps a failure of the underlying browser driver.
type DriverError struct {
	Op  string
	Err error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("browser driver: %s: %v", e.Op, e.Err)
}

func (e *DriverError) Unwrap() error {
	return e.Err
}

// NewDriverError wraps err, returning nil when err is nil.
func NewDriverError(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *DriverError
	if errors.As(err, &de) {
		return err
	}
	return &DriverError{Op: op, Err: err}
}

// IsDriverError reports whether err originated in the browser driver.
func IsDriverError(err error) bool {
	var de *DriverError
	return errors.As(err, &de)
}

// IsAccountFailure reports whether err means the account needs reconnection.
func IsAccountFailure(err error) bool {
	return errors.Is(err, ErrSessionRejected) || errors.Is(err, ErrSessionExpired)
}
