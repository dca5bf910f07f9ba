package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// Generate expands the compact room plan format into slot header lines
// (DATE|HH:00|HH:00|ROOM) ready to be pasted next to names.
//
// Input is a list of blocks separated by blank lines:
//
//	A109|2025-12-15|2
//	0|13*2
//	1|9*1
//
// The header names the room, the base date and the slot length in hours.
// Each following line is DAY_OFFSET|START_HOUR*COUNT and produces COUNT
// back-to-back slots starting at START_HOUR on base+DAY_OFFSET.
//
// An empty string separates date changes within a block and consecutive
// blocks.
func Generate(compact string) ([]string, error) {
	out := make([]string, 0)

	blocks := splitBlocks(compact)
	for bi, block := range blocks {
		lines, err := generateBlock(block)
		if err != nil {
			return nil, fmt.Errorf("schedule: block %d (%q): %w", bi+1, block[0], err)
		}
		if bi > 0 {
			out = append(out, "")
		}
		out = append(out, lines...)
	}

	return out, nil
}

func splitBlocks(text string) [][]string {
	var (
		blocks [][]string
		cur    []string
	)
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			if len(cur) > 0 {
				blocks = append(blocks, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		blocks = append(blocks, cur)
	}
	return blocks
}

func generateBlock(lines []string) ([]string, error) {
	parts := strings.Split(lines[0], "|")
	if len(parts) != 3 {
		return nil, fmt.Errorf("header must be ROOM|DATE|HOURS")
	}
	room := strings.TrimSpace(parts[0])
	base, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(parts[1]), time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid base date: %w", err)
	}
	hours, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil || hours <= 0 {
		return nil, fmt.Errorf("invalid slot length %q", parts[2])
	}

	out := make([]string, 0)
	var lastDate string

	for _, line := range lines[1:] {
		offset, startHour, count, err := parseSlotLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %q: %w", line, err)
		}

		day := base.AddDate(0, 0, offset)
		date := day.Format("2006-01-02")
		if lastDate != "" && date != lastDate {
			out = append(out, "")
		}
		lastDate = date

		r, err := rrule.NewRRule(rrule.ROption{
			Freq:     rrule.HOURLY,
			Interval: hours,
			Count:    count,
			Dtstart:  day.Add(time.Duration(startHour) * time.Hour),
		})
		if err != nil {
			return nil, fmt.Errorf("line %q: %w", line, err)
		}

		for _, start := range r.All() {
			// Hours are rendered relative to the slot's own day so a run
			// that crosses midnight keeps counting (24:00, 25:00, ...).
			sh := int(start.Sub(day).Hours())
			out = append(out, fmt.Sprintf("%s|%02d:00|%02d:00|%s", date, sh, sh+hours, room))
		}
	}

	return out, nil
}

func parseSlotLine(line string) (offset, startHour, count int, err error) {
	dayPart, timePart, ok := strings.Cut(line, "|")
	if !ok {
		return 0, 0, 0, fmt.Errorf("expected DAY_OFFSET|START_HOUR*COUNT")
	}
	hourPart, countPart, ok := strings.Cut(timePart, "*")
	if !ok {
		return 0, 0, 0, fmt.Errorf("expected START_HOUR*COUNT")
	}

	if offset, err = strconv.Atoi(strings.TrimSpace(dayPart)); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid day offset: %w", err)
	}
	if startHour, err = strconv.Atoi(strings.TrimSpace(hourPart)); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid start hour: %w", err)
	}
	if count, err = strconv.Atoi(strings.TrimSpace(countPart)); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid count: %w", err)
	}
	if count <= 0 {
		return 0, 0, 0, fmt.Errorf("count must be positive")
	}
	return offset, startHour, count, nil
}
