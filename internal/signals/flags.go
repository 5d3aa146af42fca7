package signals

import (
	"fmt"
	"strings"
)

// Flags configures how deliveries reach a registered handler. Flags form a
// named set; combine them with |.
type Flags uint8

const (
	// FlagOnStack runs the low-level handler on an alternate signal stack.
	FlagOnStack Flags = 1 << iota
	// FlagRestart restarts system calls interrupted by the signal.
	FlagRestart
	// FlagOneShot restores the default disposition after the first delivery.
	FlagOneShot

	flagMask = FlagOnStack | FlagRestart | FlagOneShot
)

// DefaultFlags applies when no flags are given. The Go runtime installs
// every handler with SA_ONSTACK|SA_RESTART, so these two bits are always in
// effect regardless of what the caller asks for.
const DefaultFlags = FlagOnStack | FlagRestart

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagOnStack, "onstack"},
	{FlagRestart, "restart"},
	{FlagOneShot, "oneshot"},
}

// String returns the flag names joined by "|", or "none".
func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			parts = append(parts, fn.name)
		}
	}
	if rest := f &^ flagMask; rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint8(rest)))
	}
	return strings.Join(parts, "|")
}

// ParseFlags converts flag names (onstack, restart, oneshot; case-insensitive)
// into a Flags set.
func ParseFlags(names []string) (Flags, error) {
	var f Flags
next:
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		for _, fn := range flagNames {
			if fn.name == n {
				f |= fn.flag
				continue next
			}
		}
		return 0, fmt.Errorf("parse flag %q: %w", n, ErrUnsupportedFlags)
	}
	return f, nil
}

// compose returns the effective flags for a registration: the requested set
// ORed with [DefaultFlags].
func (f Flags) compose() (Flags, error) {
	if f&^flagMask != 0 {
		return 0, fmt.Errorf("flags %s: %w", f, ErrUnsupportedFlags)
	}
	return f | DefaultFlags, nil
}
