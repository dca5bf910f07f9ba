package schedule

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportICS(t *testing.T) {
	events := Parse("2024-03-10|09:00|10:00|A1\tAna Anić\n" +
		"2024-03-10|09:00|10:00|A1\tIvan Horvat\n" +
		"2024-03-11|12:00|14:00|B2\tAna Anić")

	cals, err := ExportICS(events, ExportOptions{
		Title:    "Lab",
		Location: time.UTC,
		Now:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, cals, 2)

	cal, err := ical.ParseCalendar(strings.NewReader(cals["Ana Anić"]))
	require.NoError(t, err)
	vevents := cal.Events()
	require.Len(t, vevents, 2)

	first := vevents[0]
	assert.Equal(t, "Ana_Anić_0@schedfill", first.Id())
	assert.Equal(t, "Lab", first.GetProperty(ical.ComponentPropertySummary).Value)
	assert.Equal(t, "A1", first.GetProperty(ical.ComponentPropertyLocation).Value)
	assert.Contains(t, first.GetProperty(ical.ComponentPropertyDescription).Value, "Ana Anić")
	assert.Contains(t, first.GetProperty(ical.ComponentPropertyDescription).Value, "Ivan Horvat")

	start, err := first.GetStartAt()
	require.NoError(t, err)
	assert.True(t, start.Equal(time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)))
}

func TestExportICSInvalidTime(t *testing.T) {
	events := Parse("2024-02-30|09:00|10:00|A1\tAna Anić")
	require.Len(t, events, 1)

	_, err := ExportICS(events, ExportOptions{Location: time.UTC})
	assert.Error(t, err)
}

func TestExportDir(t *testing.T) {
	dir := t.TempDir()
	events := Parse("2024-03-10|09:00|10:00|A1\tAna Anić\n2024-03-10|09:00|10:00|A1\tIvan  Horvat")

	paths, err := ExportDir(dir, events, ExportOptions{Location: time.UTC})
	require.NoError(t, err)
	assert.Len(t, paths, 2)

	body, err := os.ReadFile(filepath.Join(dir, "Ivan_Horvat.ics"))
	require.NoError(t, err)
	assert.Contains(t, string(body), "BEGIN:VCALENDAR")
	assert.Contains(t, string(body), productID)
}

func TestExportDirKeepsFilesInsideDir(t *testing.T) {
	base := t.TempDir()
	out := filepath.Join(base, "ics")
	events := Parse("2024-03-10|09:00|10:00|A1\t../../escaped\n" +
		"2024-03-10|10:00|11:00|A1\tsub/dir\\name")
	require.Len(t, events, 2)

	paths, err := ExportDir(out, events, ExportOptions{Location: time.UTC})
	require.NoError(t, err)
	require.Len(t, paths, 2)

	for _, p := range paths {
		assert.Equal(t, out, filepath.Dir(p), p)
	}
	assert.FileExists(t, filepath.Join(out, "______escaped.ics"))
	assert.FileExists(t, filepath.Join(out, "sub_dir_name.ics"))
	assert.NoFileExists(t, filepath.Join(base, "escaped.ics"))
}

func TestExportDirRejectsCollidingNames(t *testing.T) {
	events := Parse("2024-03-10|09:00|10:00|A1\tAna/Anić\n2024-03-10|09:00|10:00|A1\tAna_Anić")
	require.Len(t, events, 2)

	_, err := ExportDir(t.TempDir(), events, ExportOptions{Location: time.UTC})
	assert.ErrorContains(t, err, "both map to")
}

func TestExportDirOrderIsStable(t *testing.T) {
	events := Parse("2024-03-10|09:00|10:00|A1\tZora Babić\n" +
		"2024-03-10|09:00|10:00|A1\tAna Anić\n" +
		"2024-03-10|09:00|10:00|A1\tMarko Kos\n" +
		"2024-03-10|09:00|10:00|A1\tIvan Horvat")

	for i := 0; i < 5; i++ {
		dir := t.TempDir()
		paths, err := ExportDir(dir, events, ExportOptions{Location: time.UTC})
		require.NoError(t, err)
		assert.Equal(t, []string{
			filepath.Join(dir, "Ana_Anić.ics"),
			filepath.Join(dir, "Ivan_Horvat.ics"),
			filepath.Join(dir, "Marko_Kos.ics"),
			filepath.Join(dir, "Zora_Babić.ics"),
		}, paths)
	}
}

func TestPersonSlug(t *testing.T) {
	assert.Equal(t, "Ana_Marija_Anić", personSlug("  Ana  Marija Anić "))
	assert.Equal(t, "Ana-Marija_Anić", personSlug("Ana-Marija Anić"))
	assert.Equal(t, "______x", personSlug("../../x"))
}
