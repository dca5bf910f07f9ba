package fill

import (
	"context"
	"fmt"

	appLog "schedfill/internal/log"
	"schedfill/internal/model"
	"schedfill/internal/surface"
)

// Slot is a located slot: its container element and the add control
// nested in it. Both handles are only valid until the page re-renders.
type Slot struct {
	Container surface.Handle
	Add       surface.Handle
}

// Locator finds the slot element for an event.
type Locator struct {
	s   surface.Surface
	sel surface.Selectors
}

// NewLocator returns a Locator that searches s using sel.
func NewLocator(s surface.Surface, sel surface.Selectors) *Locator {
	return &Locator{s: s, sel: sel}
}

// Locate returns the first slot under the editor whose text contains the
// event's label. A slot without an add control counts as not found.
func (l *Locator) Locate(ctx context.Context, ev model.Event) (Slot, bool, error) {
	editors, err := l.s.Query(ctx, "", l.sel.Editor)
	if err != nil {
		return Slot{}, false, fmt.Errorf("locate editor: %w", err)
	}
	if len(editors) == 0 {
		appLog.Debug("editor root not present", "selector", l.sel.Editor)
		return Slot{}, false, nil
	}

	container, err := l.s.QueryText(ctx, editors[0], l.sel.Slot, ev.Label())
	if err != nil {
		return Slot{}, false, fmt.Errorf("locate slot %q: %w", ev.Label(), err)
	}
	if container.IsZero() {
		return Slot{}, false, nil
	}

	adds, err := l.s.Query(ctx, container, l.sel.Add)
	if err != nil {
		return Slot{}, false, fmt.Errorf("locate add control %q: %w", ev.Label(), err)
	}
	if len(adds) == 0 {
		appLog.Debug("slot has no add control", "slot", ev.Label())
		return Slot{}, false, nil
	}

	return Slot{Container: container, Add: adds[0]}, true, nil
}
