//go:build unix

package signals

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
)

// deliveryBuffer is the per-signal queue between the runtime and the
// dispatch goroutine. The runtime drops deliveries when it is full.
const deliveryBuffer = 16

// ///////////////////////////////////////////////
// Registrar
// ///////////////////////////////////////////////

// slot is one installed custom disposition.
type slot struct {
	sig     Signal
	handler Handler
	flags   Flags
	ch      chan os.Signal
	done    chan struct{}
	once    sync.Once
	// active is cleared before the subscription is cancelled so a delivery
	// already buffered in ch is not dispatched after the slot is replaced.
	active atomic.Bool
}

// stop cancels the subscription and ends the dispatch goroutine.
func (s *slot) stop() {
	s.active.Store(false)
	signal.Stop(s.ch)
	s.once.Do(func() { close(s.done) })
}

// invoke calls the handler, recovering a panic so the registration survives.
func (s *slot) invoke(sig Signal) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("signal handler panic", "signal", Name(sig), "error", r)
		}
	}()
	s.handler(sig)
}

// registrar tracks the custom dispositions installed by this package. The
// mutex protects only its own table; the disposition itself is process-wide
// state owned by the runtime.
type registrar struct {
	mu    sync.Mutex
	slots map[Signal]*slot
}

var std = &registrar{slots: make(map[Signal]*slot)}

func (r *registrar) install(sig Signal, h Handler, flags Flags) {
	s := &slot{
		sig:     sig,
		handler: h,
		flags:   flags,
		ch:      make(chan os.Signal, deliveryBuffer),
		done:    make(chan struct{}),
	}
	s.active.Store(true)

	r.mu.Lock()
	defer r.mu.Unlock()

	// Subscribe before cancelling the old slot: with no subscriber left the
	// runtime would fall back to the default action for a moment.
	signal.Notify(s.ch, sig)
	if old := r.slots[sig]; old != nil {
		old.stop()
	}
	r.slots[sig] = s
	go r.dispatch(s)
}

// remove drops the slot for sig, if any, and applies action to the
// disposition while the table is locked.
func (r *registrar) remove(sig Signal, action func(...os.Signal)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	action(sig)
	if s := r.slots[sig]; s != nil {
		s.stop()
		delete(r.slots, sig)
	}
}

// expire ends a one-shot slot after its first delivery.
func (r *registrar) expire(s *slot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slots[s.sig] != s {
		return
	}
	signal.Reset(s.sig)
	s.stop()
	delete(r.slots, s.sig)
}

func (r *registrar) dispatch(s *slot) {
	for {
		select {
		case <-s.done:
			return
		case delivered := <-s.ch:
			if !s.active.Load() {
				return
			}
			sig, ok := delivered.(Signal)
			if !ok {
				continue
			}
			s.invoke(sig)
			if s.flags&FlagOneShot != 0 {
				r.expire(s)
				return
			}
		}
	}
}

// ///////////////////////////////////////////////
// Public API
// ///////////////////////////////////////////////

// Register installs h as the disposition for sig with [DefaultFlags].
//
// From the moment Register returns, every delivery of sig to the process,
// whether raised internally or sent by another process, invokes h once on
// the dispatch goroutine for sig. Registering again for the same signal
// replaces the handler without a window in which the default action applies.
// SIGKILL and SIGSTOP yield [ErrUncatchable], signals the runtime uses
// itself (SIGURG, SIGPROF, SIGSEGV and friends) yield [ErrReserved], and
// unknown numbers yield [ErrInvalidSignal].
func Register(sig Signal, h Handler) error {
	return RegisterWithFlags(sig, h, DefaultFlags)
}

// RegisterWithFlags is like [Register] with explicit flags. The effective
// flags are always flags|DefaultFlags; unknown bits yield
// [ErrUnsupportedFlags]. With [FlagOneShot] the disposition returns to
// default after the first delivery has been handed to h.
func RegisterWithFlags(sig Signal, h Handler, flags Flags) error {
	if err := checkCatchable(sig); err != nil {
		return err
	}
	if h == nil {
		return fmt.Errorf("register %s: %w", Name(sig), ErrNilHandler)
	}
	effective, err := flags.compose()
	if err != nil {
		return fmt.Errorf("register %s: %w", Name(sig), err)
	}
	std.install(sig, h, effective)
	return nil
}

// RestoreDefault resets sig to the default the Go runtime applies when
// nothing is subscribed: SIGHUP, SIGINT and SIGTERM exit the process,
// SIGQUIT and SIGTRAP exit with a stack dump, and most others (SIGUSR1,
// SIGUSR2, SIGALRM) are caught and discarded. It is idempotent.
func RestoreDefault(sig Signal) error {
	if err := checkSignal(sig); err != nil {
		return err
	}
	std.remove(sig, signal.Reset)
	return nil
}

// Ignore sets the disposition of sig to ignore. Later deliveries are
// discarded by the platform and never reach a handler.
func Ignore(sig Signal) error {
	if err := checkCatchable(sig); err != nil {
		return err
	}
	std.remove(sig, signal.Ignore)
	return nil
}
