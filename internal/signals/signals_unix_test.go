//go:build unix

package signals

import (
	"errors"
	"slices"
	"syscall"
	"testing"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

func TestKnown_MatchesPlatform(t *testing.T) {
	want := []Signal{
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2,
		syscall.SIGHUP, syscall.SIGQUIT, syscall.SIGPIPE, syscall.SIGALRM, syscall.SIGTRAP,
	}
	if got := Known(); !slices.Equal(got, want) {
		t.Errorf("Known() = %v, want %v", got, want)
	}

	// Known returns a copy.
	k := Known()
	k[0] = 0
	if Known()[0] != SIGINT {
		t.Error("Known() exposed its backing array")
	}
}

func TestAll_IncludesKnown(t *testing.T) {
	all := All()
	for _, sig := range Known() {
		if !slices.Contains(all, sig) {
			t.Errorf("All() missing %s", Name(sig))
		}
	}
	if !slices.IsSorted(all) {
		t.Error("All() is not in numeric order")
	}
}

// ///////////////////////////////////////////////
// Names
// ///////////////////////////////////////////////

func TestName(t *testing.T) {
	if got := Name(SIGUSR1); got != "SIGUSR1" {
		t.Errorf("Name(SIGUSR1) = %q", got)
	}
	if got := Name(Signal(250)); got != "signal 250" {
		t.Errorf("Name(250) = %q, want %q", got, "signal 250")
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    Signal
		wantErr bool
	}{
		{"SIGHUP", SIGHUP, false},
		{"hup", SIGHUP, false},
		{" sigterm ", SIGTERM, false},
		{"usr2", SIGUSR2, false},
		{"2", SIGINT, false},
		{"0", 0, true},
		{"SIGNOPE", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSignal) {
					t.Fatalf("Parse(%q) error = %v, want ErrInvalidSignal", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %s, want %s", tt.input, Name(got), Name(tt.want))
			}
		})
	}
}

func TestSend_InvalidSignal(t *testing.T) {
	if err := Send(1, Signal(0)); !errors.Is(err, ErrInvalidSignal) {
		t.Errorf("Send(1, 0) error = %v, want ErrInvalidSignal", err)
	}
}

func TestCatchable(t *testing.T) {
	tests := []struct {
		sig  Signal
		want bool
	}{
		{SIGUSR1, true},
		{SIGHUP, true},
		{syscall.SIGKILL, false},
		{syscall.SIGSTOP, false},
		{syscall.SIGURG, false},
		{syscall.SIGPROF, false},
		{syscall.SIGSEGV, false},
		{Signal(0), false},
	}
	for _, tt := range tests {
		if got := Catchable(tt.sig); got != tt.want {
			t.Errorf("Catchable(%s) = %v, want %v", Name(tt.sig), got, tt.want)
		}
	}
}
