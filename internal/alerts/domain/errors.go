package alerts

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates a missing alert record.
var ErrNotFound = errors.New("alert: not found")

// ErrConcurrencyConflict indicates a lost update detected by optimistic
// versioning. The caller may retry from a fresh read.
var ErrConcurrencyConflict = errors.New("alert: concurrent modification")

// ConfigurationError reports a malformed or physically impossible tank
// configuration. It is raised before any alert is touched.
type ConfigurationError struct {
	TankID string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.TankID == "" {
		return "tank configuration: " + e.Reason
	}
	return fmt.Sprintf("tank configuration %s: %s", e.TankID, e.Reason)
}

// InvalidTransitionError reports a lifecycle operation not permitted from
// the alert's current status. It is a definitive rejection, never retried.
type InvalidTransitionError struct {
	Action string
	Status Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("alert: cannot %s from status %q", e.Action, e.Status)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}

// IsConfigurationError reports whether err is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}
