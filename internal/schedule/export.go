package schedule

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	ical "github.com/arran4/golang-ical"

	appLog "schedfill/internal/log"
	"schedfill/internal/model"
)

const productID = "-//schedfill//EN"

// ExportOptions controls per-person calendar export.
type ExportOptions struct {
	// Title is used as SUMMARY for every exported event.
	Title string
	// Location is the timezone event times are interpreted in. Nil means
	// time.Local.
	Location *time.Location
	// Now stamps DTSTAMP; zero means time.Now().
	Now time.Time
}

// ExportICS groups events by person and renders one calendar per person.
// The map key is the person's display name.
func ExportICS(events []model.Event, opts ExportOptions) (map[string]string, error) {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	if opts.Title == "" {
		opts.Title = "Schedule"
	}

	// Everyone sharing the same slot shows up in its description.
	participants := make(map[string][]string)
	for _, ev := range events {
		participants[ev.Header()] = append(participants[ev.Header()], ev.Name)
	}

	byPerson := make(map[string][]model.Event)
	order := make([]string, 0)
	for _, ev := range events {
		if _, ok := byPerson[ev.Name]; !ok {
			order = append(order, ev.Name)
		}
		byPerson[ev.Name] = append(byPerson[ev.Name], ev)
	}

	out := make(map[string]string, len(byPerson))
	for _, person := range order {
		cal := ical.NewCalendar()
		cal.SetProductId(productID)
		cal.SetMethod(ical.MethodPublish)

		for idx, ev := range byPerson[person] {
			start, err := ev.StartTime(opts.Location)
			if err != nil {
				return nil, err
			}
			end, err := ev.EndTime(opts.Location)
			if err != nil {
				return nil, err
			}

			vev := cal.AddEvent(personSlug(person) + "_" + strconv.Itoa(idx) + "@schedfill")
			vev.SetDtStampTime(opts.Now)
			vev.SetStartAt(start)
			vev.SetEndAt(end)
			vev.SetSummary(opts.Title)
			vev.SetLocation(ev.Room)
			vev.SetDescription("Participants: " + strings.Join(participants[ev.Header()], ", "))
		}

		out[person] = cal.Serialize()
	}

	return out, nil
}

// ExportDir writes one <Person_Name>.ics file per person into dir and
// returns the written paths, sorted by person name.
func ExportDir(dir string, events []model.Event, opts ExportOptions) ([]string, error) {
	if dir == "" {
		return nil, errors.New("schedule: export dir is empty")
	}
	cals, err := ExportICS(events, opts)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	people := make([]string, 0, len(cals))
	for person := range cals {
		people = append(people, person)
	}
	sort.Strings(people)

	paths := make([]string, 0, len(cals))
	owner := make(map[string]string, len(cals))
	for _, person := range people {
		p, err := exportPath(dir, person)
		if err != nil {
			return paths, err
		}
		if prev, ok := owner[p]; ok {
			return paths, fmt.Errorf("schedule: %q and %q both map to %s", prev, person, p)
		}
		owner[p] = person

		if err := os.WriteFile(p, []byte(cals[person]), 0o644); err != nil {
			return paths, fmt.Errorf("schedule: write %s: %w", p, err)
		}
		appLog.Debug("ics export written", "person", person, "path", p)
		paths = append(paths, p)
	}

	appLog.Info("ics export completed", "dir", dir, "file_count", len(paths))
	return paths, nil
}

// exportPath is the calendar file for person; it always stays inside dir.
func exportPath(dir, person string) (string, error) {
	p := filepath.Join(dir, personSlug(person)+".ics")
	rel, err := filepath.Rel(dir, p)
	if err != nil || rel != filepath.Base(p) {
		return "", fmt.Errorf("schedule: name %q does not map to a file in %s", person, dir)
	}
	return p, nil
}

// personSlug joins the name's words with "_" and replaces anything other
// than letters, digits, "-" and "_", so "../x" becomes "___x".
func personSlug(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, strings.Join(strings.Fields(name), "_"))
}
