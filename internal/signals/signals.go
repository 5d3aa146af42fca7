// Package signals installs, restores and ignores process-wide signal
// dispositions and lets a plain function react to each delivery.
//
// The Go runtime owns the raw sigaction handler for every signal; this
// package sits on top of [os/signal] and runs one dispatch goroutine per
// registered signal that calls the caller's [Handler]. Handlers therefore
// never run on the runtime's signal stack, but callers should still treat
// them as an asynchronous context: do the minimum (typically one
// non-blocking Send on a handoff.Channel) and return, leaving logging,
// cleanup and shutdown to an ordinary goroutine.
//
// Dispositions are process-global. Registration calls for the same signal
// from different goroutines race and the last writer wins; applications that
// need a deterministic outcome must serialize registration themselves, for
// example in a single setup phase.
package signals

import (
	"errors"
	"syscall"
)

// Signal identifies an OS signal by its platform-defined number.
type Signal = syscall.Signal

// Handler reacts to one delivery of a signal. It must not block
// indefinitely and should not retain state beyond what it can reach through
// package-level, lock-protected values such as a shared handoff channel.
type Handler func(sig Signal)

// ///////////////////////////////////////////////
// Errors
// ///////////////////////////////////////////////

var (
	// ErrInvalidSignal is returned for numbers the platform does not define.
	ErrInvalidSignal = errors.New("signals: invalid signal number")
	// ErrUncatchable is returned when asking to catch or ignore SIGKILL or
	// SIGSTOP.
	ErrUncatchable = errors.New("signals: signal cannot be caught or ignored")
	// ErrReserved is returned for signals the Go runtime uses itself:
	// SIGURG for preemption, SIGPROF for profiling, and the synchronous
	// faults it turns into panics.
	ErrReserved = errors.New("signals: signal reserved by the Go runtime")
	// ErrNilHandler is returned when registering a nil handler.
	ErrNilHandler = errors.New("signals: nil handler")
	// ErrUnsupportedFlags is returned when flags contain unknown bits.
	ErrUnsupportedFlags = errors.New("signals: unsupported flags")
)
