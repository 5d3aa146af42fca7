// Package relay turns signal deliveries into ordinary work.
//
// A [Relay] installs one handler per bound signal. The handler does nothing
// but append an [Event] to a handoff channel published in a process-wide
// cell; the relay's consumer goroutine receives those events and performs
// the configured action (log, webhook, reload, shutdown) outside the
// handler. Config file changes and context cancellation are fed through the
// same channel, so every action, including re-registration on reload, runs
// on one goroutine.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"tools.zach/dev/sigrelay/internal/config"
	"tools.zach/dev/sigrelay/internal/handoff"
	"tools.zach/dev/sigrelay/internal/notify"
	"tools.zach/dev/sigrelay/internal/signals"
	"tools.zach/dev/sigrelay/internal/watch"
)

// ErrAlreadyRunning is returned by [Relay.Run] when another relay in this
// process owns the signal intake.
var ErrAlreadyRunning = errors.New("relay: another relay is running")

// ///////////////////////////////////////////////
// Events
// ///////////////////////////////////////////////

// EventKind identifies what an [Event] reports.
type EventKind int

const (
	// EventSignal reports a signal delivery.
	EventSignal EventKind = iota + 1
	// EventConfigChanged reports that the config file changed on disk.
	EventConfigChanged
	// EventStop asks the consumer to exit.
	EventStop
)

func (k EventKind) String() string {
	switch k {
	case EventSignal:
		return "signal"
	case EventConfigChanged:
		return "config-changed"
	case EventStop:
		return "stop"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event travels through the relay's handoff channel.
type Event struct {
	Kind   EventKind
	Signal signals.Signal // EventSignal only
	Path   string         // EventConfigChanged only
	At     time.Time
}

// intake is the channel the signal handler writes to. Handlers are plain
// functions, so the channel is reached through this cell rather than a
// captured variable. It is nil while no relay is running.
var intake atomic.Pointer[handoff.Channel[Event]]

// handle is the [signals.Handler] installed for every handled binding.
func handle(sig signals.Signal) {
	if ch := intake.Load(); ch != nil {
		_ = ch.Send(Event{Kind: EventSignal, Signal: sig, At: time.Now()})
	}
}

// ///////////////////////////////////////////////
// Relay
// ///////////////////////////////////////////////

// Options configures a [Relay].
type Options struct {
	// Config is the initial configuration. Nil loads ConfigPath.
	Config *config.Config
	// ConfigPath is re-read by the reload action and watched for changes
	// while the current config has Watch.Enabled set. A reload that changes
	// the watch settings starts, stops or restarts the watcher. Empty
	// disables both.
	ConfigPath string
	// Logger receives action output. Nil uses slog.Default().
	Logger *slog.Logger
}

// Relay routes signal deliveries to configured actions.
type Relay struct {
	opts     Options
	log      *slog.Logger
	cfg      *config.Config
	notifier *notify.Notifier

	// installed, events and watching are touched only by the consumer
	// goroutine.
	installed map[signals.Signal]Binding
	events    *handoff.Channel[Event]
	watching  *configWatch

	// mu guards snapshot and watchOn, read from other goroutines.
	mu       sync.Mutex
	snapshot []Binding
	watchOn  bool
}

// New creates a Relay. Nothing is installed until [Relay.Run].
func New(opts Options) *Relay {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Relay{
		opts:      opts,
		log:       log,
		installed: make(map[signals.Signal]Binding),
	}
}

// Bindings returns the bindings currently applied, ordered by signal.
func (r *Relay) Bindings() []Binding {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.snapshot)
}

// Watching reports whether the config file is being watched for changes.
func (r *Relay) Watching() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.watchOn
}

// Run installs the configured bindings and handles events on the calling
// goroutine until a shutdown action fires or ctx is cancelled. On return
// every signal the relay touched is restored to its default disposition.
func (r *Relay) Run(ctx context.Context) error {
	cfg := r.opts.Config
	if cfg == nil {
		loaded, err := config.Load(r.opts.ConfigPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	bindings, err := Resolve(cfg.Rules)
	if err != nil {
		return fmt.Errorf("resolving rules: %w", err)
	}

	// rx is the consumer's receive-only handle; tx is the send-only handle
	// published for the signal handler. Other producers clone tx.
	rx := handoff.New[Event]()
	tx := rx.Clone()
	rx.CloseSend()
	tx.CloseReceive()
	defer rx.Close()
	defer tx.Close()

	if !intake.CompareAndSwap(nil, tx) {
		return ErrAlreadyRunning
	}
	defer intake.CompareAndSwap(tx, nil)

	done := make(chan struct{})
	var wg sync.WaitGroup
	defer wg.Wait()
	defer close(done)

	r.setConfig(cfg)
	defer r.restoreAll()
	if err := r.apply(bindings); err != nil {
		return err
	}

	stop := tx.Clone()
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer stop.Close()
		select {
		case <-ctx.Done():
			_ = stop.Send(Event{Kind: EventStop, At: time.Now()})
		case <-done:
		}
	}()

	r.events = tx
	defer r.stopWatch()
	r.syncWatch(cfg)

	r.log.Info("relay started", "bindings", len(bindings))
	defer r.log.Info("relay stopped")
	return r.consume(ctx, rx)
}

// ///////////////////////////////////////////////
// Config Watch
// ///////////////////////////////////////////////

// configWatch is one running watcher and the goroutine bridging it into
// the event channel.
type configWatch struct {
	w        *watch.Watcher
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// syncWatch makes the running watcher match cfg.Watch, starting, stopping
// or replacing it as needed.
func (r *Relay) syncWatch(cfg *config.Config) {
	enabled := r.opts.ConfigPath != "" && cfg.Watch.Enabled
	interval := time.Duration(cfg.Watch.PollIntervalSeconds) * time.Second
	if cw := r.watching; cw != nil {
		if enabled && cw.interval == interval {
			return
		}
		r.stopWatch()
	}
	if !enabled {
		return
	}

	w, err := watch.New(r.opts.ConfigPath, interval)
	if err != nil {
		r.log.Warn("config watcher unavailable", "error", err)
		return
	}
	cw := &configWatch{w: w, interval: interval, stop: make(chan struct{}), done: make(chan struct{})}
	changes := r.events.Clone()
	go func() {
		defer close(cw.done)
		defer changes.Close()
		bridge(w, changes, cw.stop)
	}()
	r.watching = cw
	r.setWatching(true)
	r.log.Debug("watching config file", "path", w.Path(), "polling", w.Polling())
}

// stopWatch ends the running watcher, if any, and waits for its bridge.
func (r *Relay) stopWatch() {
	cw := r.watching
	if cw == nil {
		return
	}
	r.watching = nil
	close(cw.stop)
	<-cw.done
	if err := cw.w.Close(); err != nil {
		r.log.Debug("closing config watcher", "error", err)
	}
	r.setWatching(false)
	r.log.Debug("config watch stopped")
}

func (r *Relay) setWatching(on bool) {
	r.mu.Lock()
	r.watchOn = on
	r.mu.Unlock()
}

// bridge forwards watcher notifications into the event channel.
func bridge(w *watch.Watcher, ch *handoff.Channel[Event], stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-w.Events():
			if err := ch.Send(Event{Kind: EventConfigChanged, Path: w.Path(), At: time.Now()}); err != nil {
				return
			}
		}
	}
}

// consume receives events until one of them ends the run. After each
// blocking receive it drains whatever else is pending so a burst is handled
// in order without re-entering the wait.
func (r *Relay) consume(ctx context.Context, rx *handoff.Channel[Event]) error {
	var batch []Event
	for {
		ev, err := rx.Receive()
		if err != nil {
			if errors.Is(err, handoff.ErrNoSenders) {
				return nil
			}
			return fmt.Errorf("receiving event: %w", err)
		}

		batch = append(batch[:0], ev)
		if _, err := rx.Drain(func(ev Event) bool {
			batch = append(batch, ev)
			return true
		}); err != nil {
			return fmt.Errorf("draining events: %w", err)
		}

		for _, ev := range batch {
			if r.handleEvent(ctx, ev) {
				return nil
			}
		}
	}
}

// handleEvent performs the work for ev and reports whether the run is over.
func (r *Relay) handleEvent(ctx context.Context, ev Event) bool {
	switch ev.Kind {
	case EventStop:
		r.log.Debug("stop requested")
		return true
	case EventConfigChanged:
		r.log.Info("config file changed", "path", ev.Path)
		r.reload()
		return false
	case EventSignal:
		return r.handleSignal(ctx, ev)
	}
	r.log.Warn("unknown event", "kind", ev.Kind)
	return false
}

func (r *Relay) handleSignal(ctx context.Context, ev Event) bool {
	b, ok := r.installed[ev.Signal]
	if !ok {
		r.log.Debug("delivery for unbound signal", "signal", signals.Name(ev.Signal))
		return false
	}
	if b.Flags&signals.FlagOneShot != 0 {
		// The registrar has already reset the disposition.
		delete(r.installed, ev.Signal)
		r.publish()
	}

	attrs := []any{"signal", signals.Name(ev.Signal), "number", int(ev.Signal), "action", string(b.Action)}
	switch b.Action {
	case config.ActionLog:
		r.log.Info("signal received", attrs...)
	case config.ActionNotify:
		r.log.Info("signal received", attrs...)
		if err := r.notifier.Post(ctx, notify.NewDelivery(ev.Signal, ev.At)); err != nil {
			r.log.Warn("webhook failed", "signal", signals.Name(ev.Signal), "error", err)
		}
	case config.ActionReload:
		r.log.Info("signal received", attrs...)
		r.reload()
	case config.ActionShutdown:
		r.log.Info("signal received, shutting down", attrs...)
		return true
	}
	return false
}

// ///////////////////////////////////////////////
// Registration
// ///////////////////////////////////////////////

func (r *Relay) setConfig(cfg *config.Config) {
	r.cfg = cfg
	r.notifier = notify.New(notify.Options{
		URL:      cfg.Notify.URL,
		RetryMax: cfg.Notify.RetryMax,
		Timeout:  time.Duration(cfg.Notify.TimeoutSeconds) * time.Second,
	})
}

// reload re-reads the config file and applies the difference. A file that
// fails to load or resolve leaves the current bindings in place.
func (r *Relay) reload() {
	if r.opts.ConfigPath == "" {
		r.log.Warn("reload requested but no config file is set")
		return
	}
	cfg, err := config.Load(r.opts.ConfigPath)
	if err != nil {
		r.log.Error("reload failed, keeping current rules", "error", err)
		return
	}
	bindings, err := Resolve(cfg.Rules)
	if err != nil {
		r.log.Error("reload failed, keeping current rules", "error", err)
		return
	}
	r.setConfig(cfg)
	r.syncWatch(cfg)
	if err := r.apply(bindings); err != nil {
		r.log.Error("applying reloaded rules", "error", err)
		return
	}
	r.log.Info("config reloaded", "bindings", len(bindings))
}

// apply makes the installed set equal to bindings. Signals no longer bound
// are restored to default; unchanged bindings are left alone.
func (r *Relay) apply(bindings []Binding) error {
	defer r.publish()

	want := make(map[signals.Signal]Binding, len(bindings))
	for _, b := range bindings {
		want[b.Signal] = b
	}
	for sig := range r.installed {
		if _, ok := want[sig]; ok {
			continue
		}
		if err := signals.RestoreDefault(sig); err != nil {
			return err
		}
		delete(r.installed, sig)
		r.log.Debug("signal unbound", "signal", signals.Name(sig))
	}

	var errs []error
	for _, b := range bindings {
		if cur, ok := r.installed[b.Signal]; ok && cur == b {
			continue
		}
		if err := install(b); err != nil {
			errs = append(errs, err)
			continue
		}
		r.installed[b.Signal] = b
		r.log.Debug("signal bound", "binding", b.String())
	}
	return errors.Join(errs...)
}

// install applies one binding to the process disposition.
func install(b Binding) error {
	switch {
	case b.Action.Handled():
		return signals.RegisterWithFlags(b.Signal, handle, b.Flags)
	case b.Action == config.ActionIgnore:
		return signals.Ignore(b.Signal)
	default:
		return signals.RestoreDefault(b.Signal)
	}
}

// restoreAll returns every signal the relay touched to its default.
func (r *Relay) restoreAll() {
	for sig := range r.installed {
		if err := signals.RestoreDefault(sig); err != nil {
			r.log.Warn("restoring default disposition", "signal", signals.Name(sig), "error", err)
		}
	}
	clear(r.installed)
	r.publish()
}

// publish copies the installed set into the snapshot read by Bindings.
func (r *Relay) publish() {
	snap := slices.SortedFunc(maps.Values(r.installed), func(a, b Binding) int {
		return int(a.Signal) - int(b.Signal)
	})
	r.mu.Lock()
	r.snapshot = snap
	r.mu.Unlock()
}
