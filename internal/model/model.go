package model

import (
	"fmt"
	"strings"
	"time"
)

// Event is a single schedule entry: one person for one (date, time range,
// room) slot. Events are created by the schedule parser and are never
// mutated afterwards.
type Event struct {
	Date  string `json:"date"`  // YYYY-MM-DD
	Start string `json:"start"` // HH:MM, 24h
	End   string `json:"end"`   // HH:MM, 24h
	Room  string `json:"room"`  // letter + digits, dashes stripped
	Name  string `json:"name"`  // "First Last" or "First Middle... Last"
}

// Label is the text the host page renders for the event's slot.
func (e Event) Label() string {
	return e.Date + " " + e.Start + " " + e.End + " " + e.Room
}

// Header renders the slot header cell of the paste format.
func (e Event) Header() string {
	return e.Date + "|" + e.Start + "|" + e.End + "|" + e.Room
}

// String is the human-readable description used in reports.
func (e Event) String() string {
	return fmt.Sprintf("%s %s-%s %s: %s", e.Date, e.Start, e.End, e.Room, e.Name)
}

// StartTime parses the event's date and start time in loc.
func (e Event) StartTime(loc *time.Location) (time.Time, error) {
	return parseDateTime(e.Date, e.Start, loc)
}

// EndTime parses the event's date and end time in loc.
func (e Event) EndTime(loc *time.Location) (time.Time, error) {
	return parseDateTime(e.Date, e.End, loc)
}

func parseDateTime(date, hhmm string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", date+" "+hhmm, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("model: invalid date/time %q %q: %w", date, hhmm, err)
	}
	return t, nil
}

// OutcomeKind classifies the result of processing one event.
type OutcomeKind int

const (
	Success OutcomeKind = iota
	AlreadyAssigned
	SlotNotFound
	PersonNotFound
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case AlreadyAssigned:
		return "already_assigned"
	case SlotNotFound:
		return "slot_not_found"
	case PersonNotFound:
		return "person_not_found"
	case Failed:
		return "error"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is produced exactly once per input event. Message is only set
// for Failed outcomes.
type Outcome struct {
	Kind    OutcomeKind
	Message string
}

// OutcomeOf returns a message-less outcome of kind k.
func OutcomeOf(k OutcomeKind) Outcome { return Outcome{Kind: k} }

// ErrorOutcome converts err into a Failed outcome carrying its message.
func ErrorOutcome(err error) Outcome {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Outcome{Kind: Failed, Message: msg}
}

// Failure is a report entry for an event that ended in an error.
type Failure struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

// Report aggregates the outcomes of one batch run. Each list holds event
// descriptions in processing order.
type Report struct {
	Success         []string  `json:"success"`
	AlreadyAssigned []string  `json:"already_assigned"`
	SlotNotFound    []string  `json:"slot_not_found"`
	PersonNotFound  []string  `json:"person_not_found"`
	Errors          []Failure `json:"errors"`
}

// NewReport returns a report with non-nil lists so it encodes as empty
// JSON arrays.
func NewReport() *Report {
	return &Report{
		Success:         []string{},
		AlreadyAssigned: []string{},
		SlotNotFound:    []string{},
		PersonNotFound:  []string{},
		Errors:          []Failure{},
	}
}

// Add records the outcome for ev.
func (r *Report) Add(ev Event, o Outcome) {
	desc := ev.String()
	switch o.Kind {
	case Success:
		r.Success = append(r.Success, desc)
	case AlreadyAssigned:
		r.AlreadyAssigned = append(r.AlreadyAssigned, desc)
	case SlotNotFound:
		r.SlotNotFound = append(r.SlotNotFound, desc)
	case PersonNotFound:
		r.PersonNotFound = append(r.PersonNotFound, desc)
	default:
		r.Errors = append(r.Errors, Failure{Event: desc, Message: o.Message})
	}
}

// Total is the number of events recorded across all lists.
func (r *Report) Total() int {
	return len(r.Success) + len(r.AlreadyAssigned) + len(r.SlotNotFound) +
		len(r.PersonNotFound) + len(r.Errors)
}

// String renders the end-of-run summary shown to the user.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Processed %d event(s)\n", r.Total())
	fmt.Fprintf(&b, "  added:            %d\n", len(r.Success))
	fmt.Fprintf(&b, "  already assigned: %d\n", len(r.AlreadyAssigned))
	fmt.Fprintf(&b, "  slot not found:   %d\n", len(r.SlotNotFound))
	fmt.Fprintf(&b, "  person not found: %d\n", len(r.PersonNotFound))
	fmt.Fprintf(&b, "  errors:           %d\n", len(r.Errors))

	writeList(&b, "Added", r.Success)
	writeList(&b, "Already assigned", r.AlreadyAssigned)
	writeList(&b, "Slot not found", r.SlotNotFound)
	writeList(&b, "Person not found", r.PersonNotFound)
	if len(r.Errors) > 0 {
		b.WriteString("\nErrors:\n")
		for _, f := range r.Errors {
			fmt.Fprintf(&b, "  - %s (%s)\n", f.Event, f.Message)
		}
	}
	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString("\n" + title + ":\n")
	for _, it := range items {
		b.WriteString("  - " + it + "\n")
	}
}
