// Package pomodoro implements the shared focus timer. A phase that runs out stops the
// timer; the next phase starts on the next Start.
package pomodoro

import (
	"fmt"
	"sync"
	"time"
)

// Phase is the current timer phase
type Phase string

const (
	PhaseFocus Phase = "focus"
	PhaseBreak Phase = "break"
)

// State is a snapshot of the timer
type State struct {
	Phase     Phase         `json:"phase"`
	Running   bool          `json:"running"`
	Remaining time.Duration `json:"remaining_ns"`
	Seconds   int           `json:"remaining_seconds"`
	Cycles    int           `json:"cycles"`
	Focus     time.Duration `json:"focus_ns"`
	Break     time.Duration `json:"break_ns"`
}

// Options configures a timer
type Options struct {
	Focus time.Duration
	Break time.Duration
	// Tick is the countdown interval. Zero disables the internal ticker and the timer
	// only advances through Tick.
	Tick time.Duration
	// OnPhaseEnd is called without the timer lock held whenever a phase runs out
	OnPhaseEnd func(state State, message string)
}

// Timer is a focus/break countdown
type Timer struct {
	mu        sync.Mutex
	opts      Options
	step      time.Duration
	phase     Phase
	remaining time.Duration
	running   bool
	cycles    int
	stop      chan struct{}
}

// New creates a stopped timer at the start of a focus phase
func New(opts Options) *Timer {
	step := opts.Tick
	if step <= 0 {
		step = time.Second
	}
	return &Timer{
		opts:      opts,
		step:      step,
		phase:     PhaseFocus,
		remaining: opts.Focus,
	}
}

// Start resumes the countdown; starting a running timer does nothing
func (t *Timer) Start() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return t.stateLocked()
	}
	if t.remaining <= 0 {
		t.remaining = t.phaseLength()
	}
	t.running = true

	if t.opts.Tick > 0 {
		t.stop = make(chan struct{})
		go t.run(t.stop)
	}
	return t.stateLocked()
}

// Pause stops the countdown keeping the remaining time
func (t *Timer) Pause() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.haltLocked()
	return t.stateLocked()
}

// Reset stops the timer and returns to a full focus phase. Completed cycles are kept.
func (t *Timer) Reset() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.haltLocked()
	t.phase = PhaseFocus
	t.remaining = t.opts.Focus
	return t.stateLocked()
}

// SetDurations changes the phase lengths while the timer is stopped
func (t *Timer) SetDurations(focus, brk time.Duration) (State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return t.stateLocked(), fmt.Errorf("timer is running")
	}
	if focus <= 0 || brk <= 0 {
		return t.stateLocked(), fmt.Errorf("durations must be positive")
	}

	fresh := t.remaining == t.phaseLength()
	t.opts.Focus = focus
	t.opts.Break = brk
	if fresh {
		t.remaining = t.phaseLength()
	}
	return t.stateLocked(), nil
}

// Snapshot returns the current state
func (t *Timer) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked()
}

// Tick advances a running timer by one step
func (t *Timer) Tick() State {
	t.mu.Lock()
	if !t.running {
		state := t.stateLocked()
		t.mu.Unlock()
		return state
	}

	t.remaining -= t.step
	if t.remaining > 0 {
		state := t.stateLocked()
		t.mu.Unlock()
		return state
	}

	t.haltLocked()
	var message string
	if t.phase == PhaseFocus {
		t.cycles++
		t.phase = PhaseBreak
		message = fmt.Sprintf("Great! You completed %d focus cycle(s). Time for a break!", t.cycles)
	} else {
		t.phase = PhaseFocus
		message = "Break is over. Time to focus again!"
	}
	t.remaining = t.phaseLength()
	state := t.stateLocked()
	onPhaseEnd := t.opts.OnPhaseEnd
	t.mu.Unlock()

	if onPhaseEnd != nil {
		onPhaseEnd(state, message)
	}
	return state
}

// Close stops the internal ticker
func (t *Timer) Close() {
	t.Pause()
}

func (t *Timer) run(stop chan struct{}) {
	ticker := time.NewTicker(t.opts.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !t.Tick().Running {
				return
			}
		}
	}
}

func (t *Timer) haltLocked() {
	t.running = false
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}

func (t *Timer) phaseLength() time.Duration {
	if t.phase == PhaseBreak {
		return t.opts.Break
	}
	return t.opts.Focus
}

func (t *Timer) stateLocked() State {
	return State{
		Phase:     t.phase,
		Running:   t.running,
		Remaining: t.remaining,
		Seconds:   int(t.remaining / time.Second),
		Cycles:    t.cycles,
		Focus:     t.opts.Focus,
		Break:     t.opts.Break,
	}
}
