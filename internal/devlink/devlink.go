// Package devlink defines the boundary to the firmware side of the platform:
// one logical connection per microcontroller, exposing named-command dispatch
// with asynchronous completion. Concrete transports (serial bridge, fakes)
// implement Link; the core only ever sees this interface.
package devlink

import (
	"context"
	"time"
)

// AwaitStatus is the terminal outcome of one dispatched command.
type AwaitStatus int

const (
	// Completed means the firmware acknowledged completion of the command.
	Completed AwaitStatus = iota
	// Timeout means no completion arrived within the bounded wait.
	Timeout
	// Error means the device reported a hardware-level fault.
	Error
)

func (s AwaitStatus) String() string {
	switch s {
	case Completed:
		return "COMPLETED"
	case Timeout:
		return "TIMEOUT"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Handle identifies one in-flight command on a link.
type Handle struct {
	// Token is transport-specific; opaque to callers.
	Token string
}

// Link is one logical connection to a microcontroller. Implementations must
// tolerate Dispatch/Await being called from different goroutines, but the
// caller guarantees at most one outstanding command per link at a time.
type Link interface {
	// Name returns the stable logical device name of this link.
	Name() string
	// Dispatch sends a named command and returns a handle for its completion.
	Dispatch(ctx context.Context, command string, args map[string]float64) (Handle, error)
	// Await blocks until the command completes, errors, or the bounded wait
	// elapses. The detail string carries device-reported diagnostics.
	Await(ctx context.Context, h Handle, timeout time.Duration) (AwaitStatus, string)
	// Close tears the connection down at process exit.
	Close() error
}
