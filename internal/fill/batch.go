package fill

import (
	"context"
	"fmt"
	"sync"
	"time"

	appLog "schedfill/internal/log"
	"schedfill/internal/model"
	"schedfill/internal/surface"
)

// DialogRunner runs the dialog interaction for one located slot.
type DialogRunner interface {
	Run(ctx context.Context, slot Slot, ev model.Event) model.Outcome
}

// FailureHook is called after an event ended in an error outcome, e.g. to
// save a screenshot of the page.
type FailureHook func(ctx context.Context, ev model.Event, o model.Outcome)

// Processor runs batches of events against one surface.
//
// The page has a single selection dialog, so events are handled one at a
// time in input order, and concurrent Run/Plan calls on the same Processor
// wait for each other.
type Processor struct {
	mu sync.Mutex

	loc       *Locator
	chk       *Checker
	dlg       DialogRunner
	onFailure FailureHook
}

// Option configures a Processor.
type Option func(*Processor)

// WithDialog replaces the dialog controller.
func WithDialog(d DialogRunner) Option {
	return func(p *Processor) { p.dlg = d }
}

// WithFailureHook installs fn to run after every error outcome.
func WithFailureHook(fn FailureHook) Option {
	return func(p *Processor) { p.onFailure = fn }
}

// NewProcessor wires a Locator, Checker and Dialog on s. Empty selector
// fields fall back to surface.DefaultSelectors.
func NewProcessor(s surface.Surface, sel surface.Selectors, t Timings, opts ...Option) *Processor {
	sel = sel.WithDefaults()
	p := &Processor{
		loc: NewLocator(s, sel),
		chk: NewChecker(s, sel),
		dlg: NewDialog(s, sel, t),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run processes events in order and returns one outcome per event. Events
// that were not started because ctx was cancelled are reported as errors.
func (p *Processor) Run(ctx context.Context, events []model.Event) *model.Report {
	p.mu.Lock()
	defer p.mu.Unlock()

	started := time.Now()
	report := model.NewReport()
	appLog.Info("batch start", "event_count", len(events))

	for i, ev := range events {
		var o model.Outcome
		if err := ctx.Err(); err != nil {
			o = model.ErrorOutcome(fmt.Errorf("not started: %w", err))
		} else {
			o = p.process(ctx, ev)
		}
		report.Add(ev, o)

		if o.Kind == model.Failed {
			appLog.Warn("event failed", "index", i, "event", ev.String(), "reason", o.Message)
			if p.onFailure != nil && ctx.Err() == nil {
				p.onFailure(ctx, ev, o)
			}
		} else {
			appLog.Info("event processed", "index", i, "event", ev.String(), "outcome", o.Kind.String())
		}
	}

	appLog.Info("batch done",
		"success", len(report.Success),
		"already_assigned", len(report.AlreadyAssigned),
		"slot_not_found", len(report.SlotNotFound),
		"person_not_found", len(report.PersonNotFound),
		"errors", len(report.Errors),
		"elapsed", time.Since(started),
	)
	return report
}

func (p *Processor) process(ctx context.Context, ev model.Event) model.Outcome {
	slot, ok, err := p.loc.Locate(ctx, ev)
	if err != nil {
		return model.ErrorOutcome(err)
	}
	if !ok {
		return model.OutcomeOf(model.SlotNotFound)
	}
	if p.chk.IsAssigned(ctx, slot, ev.Name) {
		return model.OutcomeOf(model.AlreadyAssigned)
	}
	return p.dlg.Run(ctx, slot, ev)
}

// PlanAction is what a fill run would do with an event.
type PlanAction string

const (
	PlanFill     PlanAction = "fill"
	PlanAssigned PlanAction = "already_assigned"
	PlanMissing  PlanAction = "slot_not_found"
	PlanError    PlanAction = "error"
)

// PlanItem is the dry-run verdict for one event.
type PlanItem struct {
	Event   model.Event `json:"event"`
	Action  PlanAction  `json:"action"`
	Message string      `json:"message,omitempty"`
}

// Plan locates and checks every event without opening any dialog.
func (p *Processor) Plan(ctx context.Context, events []model.Event) []PlanItem {
	p.mu.Lock()
	defer p.mu.Unlock()

	items := make([]PlanItem, 0, len(events))
	for _, ev := range events {
		item := PlanItem{Event: ev}
		slot, ok, err := p.loc.Locate(ctx, ev)
		switch {
		case err != nil:
			item.Action, item.Message = PlanError, err.Error()
		case !ok:
			item.Action = PlanMissing
		case p.chk.IsAssigned(ctx, slot, ev.Name):
			item.Action = PlanAssigned
		default:
			item.Action = PlanFill
		}
		items = append(items, item)
	}
	return items
}
