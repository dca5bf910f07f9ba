package browser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptBindsArgs(t *testing.T) {
	expr, err := script(jsQueryText, "h3", `.slot[data-x="1"]`, "2024-03-10 09:00 10:00 A1")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(expr, "(() => {"))
	assert.True(t, strings.HasSuffix(expr, "})()"))
	assert.Contains(t, expr, `const a0 = "h3";`)
	assert.Contains(t, expr, `const a1 = ".slot[data-x=\"1\"]";`)
	assert.Contains(t, expr, `const a2 = "2024-03-10 09:00 10:00 A1";`)
	assert.Contains(t, expr, "window.__schedfill")
}

func TestScriptRejectsUnencodable(t *testing.T) {
	_, err := script(jsQuery, make(chan int))
	assert.Error(t, err)
}
