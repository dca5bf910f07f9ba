package schedule

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	compact := `
A109|2025-12-15|2
0|13*2
1|9 *1

A110|2025-12-15|2
0|11  * 1
`
	lines, err := Generate(compact)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"2025-12-15|13:00|15:00|A109",
		"2025-12-15|15:00|17:00|A109",
		"",
		"2025-12-16|09:00|11:00|A109",
		"",
		"2025-12-15|11:00|13:00|A110",
	}, lines)
}

func TestGenerateOutputParses(t *testing.T) {
	lines, err := Generate("B-2|2025-01-31|1\n1|8*3")
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "2025-02-01|08:00|09:00|B-2", lines[0])

	// Generated headers plus a name column are accepted by the parser.
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l + "\tAna Anić\n")
	}
	events := Parse(b.String())
	require.Len(t, events, 3)
	assert.Equal(t, "B2", events[2].Room)
	assert.Equal(t, "10:00", events[2].Start)
}

func TestGenerateErrors(t *testing.T) {
	cases := map[string]string{
		"bad header":   "A109|2025-12-15\n0|9*1",
		"bad date":     "A109|2025-13-15|2\n0|9*1",
		"bad hours":    "A109|2025-12-15|x\n0|9*1",
		"missing star": "A109|2025-12-15|2\n0|9",
		"zero count":   "A109|2025-12-15|2\n0|9*0",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Generate(in)
			assert.Error(t, err)
		})
	}
}
