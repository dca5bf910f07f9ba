package fill

import (
	"context"
	"strings"

	appLog "schedfill/internal/log"
	"schedfill/internal/surface"
)

// NameMatches reports whether text (an assigned-list entry or a dialog
// candidate) refers to name. Multi-part names need both the first and the
// last part somewhere in text, so "Horvat, Ivan" matches "Ivan Horvat".
// Single-token names use plain containment.
func NameMatches(text, name string) bool {
	parts := strings.Fields(name)
	if len(parts) >= 2 {
		return strings.Contains(text, parts[0]) && strings.Contains(text, parts[len(parts)-1])
	}
	return strings.Contains(text, strings.TrimSpace(name))
}

// Checker decides whether a person is already assigned to a slot.
type Checker struct {
	s   surface.Surface
	sel surface.Selectors
}

// NewChecker returns a Checker reading assigned lists from s.
func NewChecker(s surface.Surface, sel surface.Selectors) *Checker {
	return &Checker{s: s, sel: sel}
}

// IsAssigned walks the siblings after the slot container until one holds
// an assigned list, then matches name against its entries. A missing list
// or a surface error means "not assigned"; the worst case is a dialog
// attempt for someone already there.
func (c *Checker) IsAssigned(ctx context.Context, slot Slot, name string) bool {
	names, err := c.assignedNames(ctx, slot)
	if err != nil {
		appLog.Warn("assigned list lookup failed; assuming not assigned", "err", err, "name", name)
		return false
	}
	for _, n := range names {
		if NameMatches(n, name) {
			return true
		}
	}
	return false
}

func (c *Checker) assignedNames(ctx context.Context, slot Slot) ([]string, error) {
	sib, err := c.s.NextSibling(ctx, slot.Container)
	if err != nil {
		return nil, err
	}
	for !sib.IsZero() {
		lists, err := c.s.Query(ctx, sib, c.sel.AssignedList)
		if err != nil {
			return nil, err
		}
		if len(lists) > 0 {
			entries, err := c.s.Query(ctx, lists[0], c.sel.AssignedEntry)
			if err != nil {
				return nil, err
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				txt, err := c.s.Text(ctx, e)
				if err != nil {
					return nil, err
				}
				names = append(names, txt)
			}
			return names, nil
		}
		if sib, err = c.s.NextSibling(ctx, sib); err != nil {
			return nil, err
		}
	}
	return nil, nil
}
