package schedule

import (
	"regexp"
	"strings"

	"schedfill/internal/model"
)

var (
	// headerRe matches the slot header cell: DATE|START|END|ROOM. Only the
	// prefix has to match; anything after the room code is ignored.
	headerRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\|(\d{2}:\d{2})\|(\d{2}:\d{2})\|([A-Za-z]-?\d+)`)
	datePfx  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
)

// Parse turns pasted tab-separated schedule text into events.
//
// Every line is split into tab-separated cells. A cell that starts with a
// slot header is paired with the cell right after it, which holds the
// person's name. Cells that do not fit that shape are skipped without an
// error, so a line may carry several header/name pairs and junk around
// them. The result keeps input order.
func Parse(text string) []model.Event {
	events := make([]model.Event, 0)

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		toks := tokens(line)

		for i := 0; i < len(toks); i++ {
			m := headerRe.FindStringSubmatch(toks[i])
			if m == nil {
				continue
			}
			// A header needs a name right after it; another date-prefixed
			// cell means the name is missing.
			if i+1 >= len(toks) || datePfx.MatchString(toks[i+1]) {
				continue
			}
			events = append(events, model.Event{
				Date:  m[1],
				Start: m[2],
				End:   m[3],
				Room:  strings.ReplaceAll(m[4], "-", ""),
				Name:  toks[i+1],
			})
			i++
		}
	}

	return events
}

func tokens(line string) []string {
	cells := strings.Split(line, "\t")
	out := make([]string, 0, len(cells))
	for _, c := range cells {
		c = strings.TrimSpace(c)
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}
