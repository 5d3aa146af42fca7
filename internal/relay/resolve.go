package relay

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"tools.zach/dev/sigrelay/internal/config"
	"tools.zach/dev/sigrelay/internal/signals"
)

// Binding is one resolved rule: the action and flags for a concrete signal.
type Binding struct {
	Signal signals.Signal
	Action config.Action
	Flags  signals.Flags
}

func (b Binding) String() string {
	if b.Flags == 0 {
		return fmt.Sprintf("%s=%s", signals.Name(b.Signal), b.Action)
	}
	return fmt.Sprintf("%s=%s[%s]", signals.Name(b.Signal), b.Action, b.Flags)
}

// Resolve expands rules into bindings ordered by signal number.
//
// A pattern without glob metacharacters is parsed as a single signal name or
// number, so "hup" and "1" both mean SIGHUP and an unknown name is an error.
// A glob pattern is matched against every signal name the platform defines,
// skipping SIGKILL, SIGSTOP and the signals the Go runtime reserves; a glob matching nothing is logged and
// skipped. When several rules match the same signal the last one wins.
func Resolve(rules []config.Rule) ([]Binding, error) {
	catchable := catchableSignals()
	chosen := make(map[signals.Signal]Binding)

	for i, rule := range rules {
		flags, err := signals.ParseFlags(rule.Flags)
		if err != nil {
			return nil, fmt.Errorf("rules[%d]: %w", i, err)
		}
		for _, pattern := range rule.Signals {
			matched, err := expand(pattern, catchable)
			if err != nil {
				return nil, fmt.Errorf("rules[%d]: %w", i, err)
			}
			if len(matched) == 0 {
				slog.Warn("signal pattern matches nothing", "pattern", pattern)
			}
			for _, sig := range matched {
				chosen[sig] = Binding{Signal: sig, Action: rule.Action, Flags: flags}
			}
		}
	}

	out := make([]Binding, 0, len(chosen))
	for _, b := range chosen {
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b Binding) int { return int(a.Signal) - int(b.Signal) })
	return out, nil
}

func expand(pattern string, catchable []signals.Signal) ([]signals.Signal, error) {
	p := strings.ToUpper(strings.TrimSpace(pattern))
	if !strings.ContainsAny(p, "*?[{") {
		sig, err := signals.Parse(p)
		if err != nil {
			return nil, err
		}
		if err := signals.CheckCatchable(sig); err != nil {
			return nil, err
		}
		return []signals.Signal{sig}, nil
	}

	var out []signals.Signal
	for _, sig := range catchable {
		ok, err := doublestar.Match(p, signals.Name(sig))
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pattern, err)
		}
		if ok {
			out = append(out, sig)
		}
	}
	return out, nil
}

// catchableSignals lists every platform signal a handler may be installed for.
func catchableSignals() []signals.Signal {
	var out []signals.Signal
	for _, sig := range signals.All() {
		if signals.Catchable(sig) {
			out = append(out, sig)
		}
	}
	return out
}
