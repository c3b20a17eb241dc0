package stackctl

import "errors"

// ErrConfigurationMissing means a required template or config file is absent.
var ErrConfigurationMissing = errors.New("configuration missing")

// IsConfigurationMissing reports whether err is or wraps ErrConfigurationMissing.
func IsConfigurationMissing(err error) bool { return errors.Is(err, ErrConfigurationMissing) }

type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }

func (e usageError) Unwrap() error { return e.err }
