package relay

import (
	"errors"
	"reflect"
	"testing"

	"tools.zach/dev/sigrelay/internal/config"
	"tools.zach/dev/sigrelay/internal/signals"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name  string
		rules []config.Rule
		want  []Binding
	}{
		{
			name:  "single name",
			rules: []config.Rule{{Signals: []string{"SIGHUP"}, Action: config.ActionReload}},
			want:  []Binding{{Signal: signals.SIGHUP, Action: config.ActionReload}},
		},
		{
			name:  "short lowercase name and number",
			rules: []config.Rule{{Signals: []string{"term", "2"}, Action: config.ActionShutdown}},
			want: []Binding{
				{Signal: signals.SIGINT, Action: config.ActionShutdown},
				{Signal: signals.SIGTERM, Action: config.ActionShutdown},
			},
		},
		{
			name:  "glob",
			rules: []config.Rule{{Signals: []string{"sigusr?"}, Action: config.ActionLog}},
			want: []Binding{
				{Signal: signals.SIGUSR1, Action: config.ActionLog},
				{Signal: signals.SIGUSR2, Action: config.ActionLog},
			},
		},
		{
			name: "later rule wins",
			rules: []config.Rule{
				{Signals: []string{"SIGUSR*"}, Action: config.ActionLog},
				{Signals: []string{"SIGUSR2"}, Action: config.ActionShutdown, Flags: []string{"oneshot"}},
			},
			want: []Binding{
				{Signal: signals.SIGUSR1, Action: config.ActionLog},
				{Signal: signals.SIGUSR2, Action: config.ActionShutdown, Flags: signals.FlagOneShot},
			},
		},
		{
			name:  "glob never matches uncatchable signals",
			rules: []config.Rule{{Signals: []string{"SIGKIL?", "SIGSTO?"}, Action: config.ActionLog}},
			want:  []Binding{},
		},
		{
			name:  "glob never matches runtime-reserved signals",
			rules: []config.Rule{{Signals: []string{"SIGUR?", "SIGPRO?", "SIGSEG?", "SIGBU?", "SIGFP?", "SIGIL?"}, Action: config.ActionLog}},
			want:  []Binding{},
		},
		{
			name:  "no rules",
			rules: nil,
			want:  []Binding{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.rules)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Resolve() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name string
		rule config.Rule
		want error
	}{
		{"uncatchable by name", config.Rule{Signals: []string{"SIGKILL"}, Action: config.ActionLog}, signals.ErrUncatchable},
		{"reserved by name", config.Rule{Signals: []string{"SIGURG"}, Action: config.ActionLog}, signals.ErrReserved},
		{"unknown name", config.Rule{Signals: []string{"SIGNOPE"}, Action: config.ActionLog}, signals.ErrInvalidSignal},
		{"unknown flag", config.Rule{Signals: []string{"SIGHUP"}, Action: config.ActionLog, Flags: []string{"siginfo"}}, signals.ErrUnsupportedFlags},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve([]config.Rule{tt.rule})
			if !errors.Is(err, tt.want) {
				t.Errorf("Resolve() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestResolve_WildcardSkipsRuntimeSignals(t *testing.T) {
	got, err := Resolve([]config.Rule{{Signals: []string{"SIG*"}, Action: config.ActionLog}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("Resolve(SIG*) matched nothing")
	}
	for _, b := range got {
		if err := signals.CheckCatchable(b.Signal); err != nil {
			t.Errorf("SIG* resolved %s: %v", signals.Name(b.Signal), err)
		}
	}
}

func TestBinding_String(t *testing.T) {
	b := Binding{Signal: signals.SIGUSR1, Action: config.ActionLog}
	if got := b.String(); got != "SIGUSR1=log" {
		t.Errorf("String() = %q", got)
	}
	b.Flags = signals.FlagOneShot
	if got := b.String(); got != "SIGUSR1=log[oneshot]" {
		t.Errorf("String() = %q", got)
	}
}
