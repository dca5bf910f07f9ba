package fill

import (
	"context"
	"errors"
	"fmt"
	"time"

	appLog "schedfill/internal/log"
	"schedfill/internal/model"
	"schedfill/internal/surface"
)

// ErrIllegalTransition means the dialog controller was asked to make a
// move its state does not allow.
var ErrIllegalTransition = errors.New("fill: illegal dialog transition")

// Timings bound every wait of the dialog interaction.
type Timings struct {
	OpenTimeout  time.Duration // dialog must appear within this
	CloseTimeout time.Duration // dialog must go away within this
	PollInterval time.Duration
	RenderDelay  time.Duration // after the dialog shows up, before reading it
	EventDelay   time.Duration // after the dialog closed, before the next event
}

// DefaultTimings are the waits used when the config does not set any.
func DefaultTimings() Timings {
	return Timings{
		OpenTimeout:  5 * time.Second,
		CloseTimeout: 5 * time.Second,
		PollInterval: 100 * time.Millisecond,
		RenderDelay:  300 * time.Millisecond,
		EventDelay:   500 * time.Millisecond,
	}
}

// State is a step of the per-event dialog interaction.
type State int

const (
	Idle State = iota
	Triggered
	DialogOpen
	PersonSelected
	DialogClosed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Triggered:
		return "triggered"
	case DialogOpen:
		return "dialog_open"
	case PersonSelected:
		return "person_selected"
	case DialogClosed:
		return "dialog_closed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool { return s == DialogClosed || s == Failed }

// Signal is what a step observed on the page.
type Signal int

const (
	Activated Signal = iota // add control clicked
	Opened                  // dialog present and visible
	Picked                  // candidate clicked
	Closed                  // dialog gone or hidden
	NoPerson                // no candidate matched
	TimedOut
	Faulted
)

func (s Signal) String() string {
	switch s {
	case Activated:
		return "activated"
	case Opened:
		return "opened"
	case Picked:
		return "picked"
	case Closed:
		return "closed"
	case NoPerson:
		return "no_person"
	case TimedOut:
		return "timed_out"
	case Faulted:
		return "faulted"
	default:
		return fmt.Sprintf("signal(%d)", int(s))
	}
}

var transitions = map[State]map[Signal]State{
	Idle: {
		Activated: Triggered,
		Faulted:   Failed,
	},
	Triggered: {
		Opened:   DialogOpen,
		TimedOut: Failed,
		Faulted:  Failed,
	},
	DialogOpen: {
		Picked:   PersonSelected,
		NoPerson: Failed,
		Faulted:  Failed,
	},
	PersonSelected: {
		Closed:   DialogClosed,
		TimedOut: Failed,
		Faulted:  Failed,
	},
}

// Next is the transition function of the dialog state machine.
func Next(s State, sig Signal) (State, error) {
	if to, ok := transitions[s][sig]; ok {
		return to, nil
	}
	return s, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, s, sig)
}

// Dialog drives the person-selection dialog for one event at a time.
type Dialog struct {
	s   surface.Surface
	sel surface.Selectors
	t   Timings
}

// NewDialog returns a dialog controller for s with the given waits.
func NewDialog(s surface.Surface, sel surface.Selectors, t Timings) *Dialog {
	return &Dialog{s: s, sel: sel, t: t}
}

// Run assigns ev.Name to the located slot and returns the event's outcome.
// It never returns an error: every failure becomes an outcome.
func (d *Dialog) Run(ctx context.Context, slot Slot, ev model.Event) model.Outcome {
	state := Idle
	for !state.Terminal() {
		sig, failure := d.step(ctx, state, slot, ev)

		next, err := Next(state, sig)
		if err != nil {
			appLog.Error("dialog state machine", err, "event", ev.String())
			return model.ErrorOutcome(err)
		}
		appLog.Debug("dialog transition", "event", ev.Label(), "from", state.String(), "signal", sig.String(), "to", next.String())
		if next == Failed {
			return failure
		}
		state = next
	}

	// Let the page settle before the next event is located.
	_ = surface.Sleep(ctx, d.t.EventDelay)
	return model.OutcomeOf(model.Success)
}

// step performs the work of state and reports what it observed. The
// returned outcome is only used when the signal leads to Failed.
func (d *Dialog) step(ctx context.Context, state State, slot Slot, ev model.Event) (Signal, model.Outcome) {
	switch state {
	case Idle:
		if err := d.s.Click(ctx, slot.Add); err != nil {
			return Faulted, model.ErrorOutcome(fmt.Errorf("click add control: %w", err))
		}
		return Activated, model.Outcome{}

	case Triggered:
		err := surface.Await(ctx, d.dialogVisible, d.t.PollInterval, d.t.OpenTimeout)
		if err != nil {
			return waitFailure("dialog did not open", err)
		}
		// The dialog can be in the tree before its list is rendered.
		if err := surface.Sleep(ctx, d.t.RenderDelay); err != nil {
			return Faulted, model.ErrorOutcome(err)
		}
		return Opened, model.Outcome{}

	case DialogOpen:
		found, err := d.pick(ctx, ev.Name)
		if err != nil {
			return Faulted, model.ErrorOutcome(fmt.Errorf("select person: %w", err))
		}
		if !found {
			d.dismiss(ctx)
			return NoPerson, model.OutcomeOf(model.PersonNotFound)
		}
		return Picked, model.Outcome{}

	case PersonSelected:
		err := surface.Await(ctx, d.dialogGone, d.t.PollInterval, d.t.CloseTimeout)
		if err != nil {
			return waitFailure("dialog did not close", err)
		}
		return Closed, model.Outcome{}
	}

	return Faulted, model.ErrorOutcome(fmt.Errorf("%w: no step for %s", ErrIllegalTransition, state))
}

func waitFailure(what string, err error) (Signal, model.Outcome) {
	out := model.ErrorOutcome(fmt.Errorf("%s: %w", what, err))
	if errors.Is(err, surface.ErrTimeout) {
		return TimedOut, out
	}
	return Faulted, out
}

// pick clicks the first dialog candidate matching name.
func (d *Dialog) pick(ctx context.Context, name string) (bool, error) {
	dlg, err := d.currentDialog(ctx)
	if err != nil {
		return false, err
	}
	if dlg.IsZero() {
		return false, errors.New("dialog disappeared before a person was selected")
	}

	candidates, err := d.s.Query(ctx, dlg, d.sel.Candidate)
	if err != nil {
		return false, err
	}
	for _, c := range candidates {
		txt, err := d.s.Text(ctx, c)
		if err != nil {
			return false, err
		}
		if !NameMatches(txt, name) {
			continue
		}
		appLog.Debug("candidate matched", "name", name, "candidate", txt)
		if err := d.s.Click(ctx, c); err != nil {
			return false, fmt.Errorf("click candidate %q: %w", txt, err)
		}
		return true, nil
	}
	return false, nil
}

// dismiss closes the dialog after a failed person lookup. Missing close
// controls and slow closes are tolerated.
func (d *Dialog) dismiss(ctx context.Context) {
	dlg, err := d.currentDialog(ctx)
	if err != nil || dlg.IsZero() {
		return
	}
	closers, err := d.s.Query(ctx, dlg, d.sel.Close)
	if err != nil || len(closers) == 0 {
		appLog.Warn("dialog has no close control", "selector", d.sel.Close)
		return
	}
	if err := d.s.Click(ctx, closers[0]); err != nil {
		appLog.Warn("dialog close click failed", "err", err)
		return
	}
	if err := surface.Await(ctx, d.dialogGone, d.t.PollInterval, d.t.CloseTimeout); err != nil {
		appLog.Warn("dialog still open after close", "err", err)
	}
}

func (d *Dialog) currentDialog(ctx context.Context) (surface.Handle, error) {
	dialogs, err := d.s.Query(ctx, "", d.sel.Dialog)
	if err != nil || len(dialogs) == 0 {
		return "", err
	}
	return dialogs[0], nil
}

func (d *Dialog) dialogVisible(ctx context.Context) (bool, error) {
	dlg, err := d.currentDialog(ctx)
	if err != nil || dlg.IsZero() {
		return false, err
	}
	return d.s.Visible(ctx, dlg)
}

func (d *Dialog) dialogGone(ctx context.Context) (bool, error) {
	vis, err := d.dialogVisible(ctx)
	return !vis, err
}
