package signals

import (
	"errors"
	"testing"
)

// ///////////////////////////////////////////////
// Flags
// ///////////////////////////////////////////////

func TestFlags_String(t *testing.T) {
	tests := []struct {
		flags Flags
		want  string
	}{
		{0, "none"},
		{DefaultFlags, "onstack|restart"},
		{FlagOneShot, "oneshot"},
		{DefaultFlags | FlagOneShot, "onstack|restart|oneshot"},
		{Flags(0x40), "0x40"},
	}
	for _, tt := range tests {
		if got := tt.flags.String(); got != tt.want {
			t.Errorf("Flags(%d).String() = %q, want %q", uint8(tt.flags), got, tt.want)
		}
	}
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		want    Flags
		wantErr bool
	}{
		{"empty", nil, 0, false},
		{"single", []string{"oneshot"}, FlagOneShot, false},
		{"mixed case and spaces", []string{" OnStack ", "RESTART"}, DefaultFlags, false},
		{"duplicate", []string{"restart", "restart"}, FlagRestart, false},
		{"unknown", []string{"siginfo"}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFlags(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedFlags) {
					t.Fatalf("ParseFlags() error = %v, want ErrUnsupportedFlags", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFlags: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseFlags() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFlags_ComposeAlwaysIncludesDefaults(t *testing.T) {
	tests := []struct {
		in   Flags
		want Flags
	}{
		{0, DefaultFlags},
		{FlagRestart, DefaultFlags},
		{FlagOneShot, DefaultFlags | FlagOneShot},
	}
	for _, tt := range tests {
		got, err := tt.in.compose()
		if err != nil {
			t.Fatalf("compose(%s): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("compose(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}

	if _, err := (FlagOneShot | Flags(0x10)).compose(); !errors.Is(err, ErrUnsupportedFlags) {
		t.Errorf("compose with unknown bits error = %v, want ErrUnsupportedFlags", err)
	}
}
