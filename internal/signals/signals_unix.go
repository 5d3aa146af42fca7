// Signal identity, name lookup and delivery for Unix-like systems.
//
// Constant values come from golang.org/x/sys/unix so they match the host OS
// exactly (SIGUSR1 is 10 on Linux and 30 on macOS).

//go:build unix

package signals

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ///////////////////////////////////////////////
// Recognized Signals
// ///////////////////////////////////////////////

const (
	SIGINT  = unix.SIGINT
	SIGTERM = unix.SIGTERM
	SIGUSR1 = unix.SIGUSR1
	SIGUSR2 = unix.SIGUSR2
	SIGHUP  = unix.SIGHUP
	SIGQUIT = unix.SIGQUIT
	SIGPIPE = unix.SIGPIPE
	SIGALRM = unix.SIGALRM
	SIGTRAP = unix.SIGTRAP
)

var known = []Signal{SIGINT, SIGTERM, SIGUSR1, SIGUSR2, SIGHUP, SIGQUIT, SIGPIPE, SIGALRM, SIGTRAP}

// reserved signals are delivered by the runtime to itself, so a handler on
// them would fire without any raise.
var reserved = []Signal{unix.SIGURG, unix.SIGPROF, unix.SIGSEGV, unix.SIGBUS, unix.SIGFPE, unix.SIGILL}

// Known returns the recognized cross-platform signals.
func Known() []Signal {
	return slices.Clone(known)
}

// All returns every signal the platform names, in numeric order.
func All() []Signal {
	var all []Signal
	for i := Signal(1); i < 256; i++ {
		if unix.SignalName(i) != "" {
			all = append(all, i)
		}
	}
	return all
}

// ///////////////////////////////////////////////
// Names
// ///////////////////////////////////////////////

// Name returns the conventional name of sig ("SIGUSR1"), or "signal N" when
// the platform does not name it.
func Name(sig Signal) string {
	if n := unix.SignalName(sig); n != "" {
		return n
	}
	return "signal " + strconv.Itoa(int(sig))
}

// Parse resolves a signal from its name ("SIGHUP", "hup") or number ("1").
func Parse(s string) (Signal, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		sig := Signal(n)
		if err := checkSignal(sig); err != nil {
			return 0, err
		}
		return sig, nil
	}
	if !strings.HasPrefix(s, "SIG") {
		s = "SIG" + s
	}
	sig := unix.SignalNum(s)
	if sig == 0 {
		return 0, fmt.Errorf("parse %q: %w", s, ErrInvalidSignal)
	}
	return sig, nil
}

// checkSignal reports whether sig is a number the platform defines.
func checkSignal(sig Signal) error {
	if sig <= 0 || unix.SignalName(sig) == "" {
		return fmt.Errorf("signal %d: %w", int(sig), ErrInvalidSignal)
	}
	return nil
}

// checkCatchable additionally rejects the signals no process may handle and
// the ones the runtime keeps for itself.
func checkCatchable(sig Signal) error {
	if err := checkSignal(sig); err != nil {
		return err
	}
	if sig == unix.SIGKILL || sig == unix.SIGSTOP {
		return fmt.Errorf("%s: %w", Name(sig), ErrUncatchable)
	}
	if slices.Contains(reserved, sig) {
		return fmt.Errorf("%s: %w", Name(sig), ErrReserved)
	}
	return nil
}

// CheckCatchable returns nil when a handler may be installed for sig, and
// otherwise the error Register would return.
func CheckCatchable(sig Signal) error {
	return checkCatchable(sig)
}

// Catchable reports whether a handler may be installed for sig.
func Catchable(sig Signal) bool {
	return checkCatchable(sig) == nil
}

// ///////////////////////////////////////////////
// Delivery
// ///////////////////////////////////////////////

// Raise sends sig to the current process as a whole, exactly as if it had
// been delivered from outside.
func Raise(sig Signal) error {
	return Send(unix.Getpid(), sig)
}

// Send delivers sig to the process identified by pid.
func Send(pid int, sig Signal) error {
	if err := checkSignal(sig); err != nil {
		return err
	}
	if err := unix.Kill(pid, sig); err != nil {
		return fmt.Errorf("send %s to pid %d: %w", Name(sig), pid, err)
	}
	return nil
}
