package toolchain

import "errors"

// ErrToolingUnavailable means no usable container engine or compose tool
// could be found or installed. Orchestration cannot proceed without one.
var ErrToolingUnavailable = errors.New("container tooling unavailable")

// ErrPrivilegeUnavailable means a step needed elevation but the process is
// not root and no elevation mechanism exists.
var ErrPrivilegeUnavailable = errors.New("privilege escalation unavailable")

// ErrNotApproved is returned when an install was declined or could not be
// confirmed in a non-interactive session.
var ErrNotApproved = errors.New("install not approved")

// IsToolingUnavailable reports whether err is (or wraps) ErrToolingUnavailable.
func IsToolingUnavailable(err error) bool { return errors.Is(err, ErrToolingUnavailable) }

// IsPrivilegeUnavailable reports whether err is (or wraps) ErrPrivilegeUnavailable.
func IsPrivilegeUnavailable(err error) bool { return errors.Is(err, ErrPrivilegeUnavailable) }
