package gate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"stackctl/internal/poll"
)

// ServiceTerminatedError means the service's container exited or died
// before it became healthy. It signals a crash, not slowness.
type ServiceTerminatedError struct {
	Service string
	Status  string
	Logs    string
}

func (e *ServiceTerminatedError) Error() string {
	return fmt.Sprintf("service %s terminated (status %s) before becoming healthy", e.Service, e.Status)
}

func (e *ServiceTerminatedError) RecentLogs() string { return e.Logs }

// UnhealthyError means the health gate ran out of attempts.
type UnhealthyError struct {
	Service    string
	Attempts   int
	LastHealth string
	Logs       string
}

func (e *UnhealthyError) Error() string {
	last := e.LastHealth
	if last == "" {
		last = "no container"
	}
	return fmt.Sprintf("service %s not healthy after %d attempts (last: %s)", e.Service, e.Attempts, last)
}

func (e *UnhealthyError) RecentLogs() string { return e.Logs }

func (e *UnhealthyError) Unwrap() error { return poll.ErrTimeout }

// NoHealthCheckError means a running container declares no health check, so
// the health gate can never confirm it.
type NoHealthCheckError struct {
	Service string
}

func (e *NoHealthCheckError) Error() string {
	return fmt.Sprintf("service %s declares no health check; add one to the compose file or gate it over HTTP", e.Service)
}

// BootstrapTimeoutError means required models were still missing when the
// wall-clock budget ran out.
type BootstrapTimeoutError struct {
	Missing []string
	Elapsed time.Duration
	Logs    string
}

func (e *BootstrapTimeoutError) Error() string {
	return fmt.Sprintf("models still missing after %s: %s", e.Elapsed.Round(time.Second), strings.Join(e.Missing, ", "))
}

func (e *BootstrapTimeoutError) RecentLogs() string { return e.Logs }

func (e *BootstrapTimeoutError) Unwrap() error { return poll.ErrTimeout }

// RecentLogs returns the diagnostic log tail carried by a gate error.
func RecentLogs(err error) (string, bool) {
	var d interface{ RecentLogs() string }
	if errors.As(err, &d) && d.RecentLogs() != "" {
		return d.RecentLogs(), true
	}
	return "", false
}

// IsTerminated reports whether err is a ServiceTerminatedError.
func IsTerminated(err error) bool {
	var e *ServiceTerminatedError
	return errors.As(err, &e)
}

// IsNoHealthCheck reports whether err is a NoHealthCheckError.
func IsNoHealthCheck(err error) bool {
	var e *NoHealthCheckError
	return errors.As(err, &e)
}

// IsBootstrapTimeout reports whether err is a BootstrapTimeoutError.
func IsBootstrapTimeout(err error) bool {
	var e *BootstrapTimeoutError
	return errors.As(err, &e)
}

// IsTimeout reports whether a gate gave up because its budget ran out.
func IsTimeout(err error) bool { return errors.Is(err, poll.ErrTimeout) }
