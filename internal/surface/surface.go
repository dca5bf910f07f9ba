// Package surface describes the live web page the filler works against.
//
// The page is owned by someone else: its scripts re-render at any time,
// so element references (Handle) go stale and every presence check has to
// be polled. Implementations: browser (a real Chromium tab via chromedp)
// and dom (an in-memory HTML document, for snapshots and tests).
package surface

import (
	"context"
	"errors"
)

var (
	// ErrStale is returned when a Handle no longer refers to an element in
	// the current render tree.
	ErrStale = errors.New("surface: element is stale or detached")
	// ErrTimeout is returned by Await when the condition did not hold in time.
	ErrTimeout = errors.New("surface: timed out")
)

// Handle is an opaque reference to an element of the current render tree.
// The zero Handle means "none" (or, as a scope, the whole document).
type Handle string

func (h Handle) IsZero() bool { return h == "" }

// Surface is the capability set the filler needs from the page.
type Surface interface {
	// Query returns descendants of scope matching the CSS selector, in
	// document order.
	Query(ctx context.Context, scope Handle, selector string) ([]Handle, error)
	// QueryText returns the first descendant of scope matching selector
	// whose visible text contains substr, or the zero Handle.
	QueryText(ctx context.Context, scope Handle, selector, substr string) (Handle, error)
	// Text is the element's visible text with whitespace runs collapsed.
	Text(ctx context.Context, h Handle) (string, error)
	// NextSibling returns the next element sibling, or the zero Handle.
	NextSibling(ctx context.Context, h Handle) (Handle, error)
	// Click activates the element.
	Click(ctx context.Context, h Handle) error
	// Visible reports whether the element is rendered and not hidden.
	Visible(ctx context.Context, h Handle) (bool, error)
}

// Selectors locate the structural roles of the host page.
type Selectors struct {
	Editor        string `yaml:"editor" json:"editor"`
	Slot          string `yaml:"slot" json:"slot"`
	Add           string `yaml:"add" json:"add"`
	AssignedList  string `yaml:"assigned_list" json:"assigned_list"`
	AssignedEntry string `yaml:"assigned_entry" json:"assigned_entry"`
	Dialog        string `yaml:"dialog" json:"dialog"`
	Candidate     string `yaml:"candidate" json:"candidate"`
	Close         string `yaml:"close" json:"close"`
}

// DefaultSelectors match the markup of the scheduling page the tool was
// written for.
func DefaultSelectors() Selectors {
	return Selectors{
		Editor:        "#schedule-editor",
		Slot:          ".slot",
		Add:           ".slot-add",
		AssignedList:  "ul.assigned",
		AssignedEntry: "li",
		Dialog:        ".person-dialog",
		Candidate:     ".person-option",
		Close:         ".dialog-close",
	}
}

// WithDefaults fills empty selectors from DefaultSelectors.
func (s Selectors) WithDefaults() Selectors {
	d := DefaultSelectors()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&s.Editor, d.Editor)
	fill(&s.Slot, d.Slot)
	fill(&s.Add, d.Add)
	fill(&s.AssignedList, d.AssignedList)
	fill(&s.AssignedEntry, d.AssignedEntry)
	fill(&s.Dialog, d.Dialog)
	fill(&s.Candidate, d.Candidate)
	fill(&s.Close, d.Close)
	return s
}
