// File: internal/artifacts/thinking_test.go
package artifacts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeHTMLLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "act.html")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestExtractFromHTMLLog(t *testing.T) {
	e, err := NewExtractor()
	require.NoError(t, err)

	path := writeHTMLLog(t, `<html><body>
		<div class="step agent-thought">Check the search box first.</div>
		<p>unrelated</p>
		<div class="agent-thought">Now <b>click</b> search.</div>
	</body></html>`)

	thoughts, info := e.Extract(path, nil)
	require.Len(t, thoughts, 2)
	assert.Equal(t, "Check the search box first.", thoughts[0])
	assert.Equal(t, "Now click search.", thoughts[1], "nested markup is flattened to text")
	assert.Equal(t, "html_log", info.Source)
	assert.Equal(t, 2, info.MatchCount)
}

func TestExtractFallsBackToRawLines(t *testing.T) {
	e, err := NewExtractor()
	require.NoError(t, err)

	lines := []string{
		`2026-08-26 step executed`,
		`think("the cart is empty")`,
		`think("proceed to checkout") think("confirm address")`,
	}
	thoughts, info := e.Extract("", lines)
	require.Len(t, thoughts, 3)
	assert.Equal(t, "the cart is empty", thoughts[0])
	assert.Equal(t, "proceed to checkout", thoughts[1])
	assert.Equal(t, "confirm address", thoughts[2])
	assert.Equal(t, "raw_output", info.Source)
}

func TestExtractPrefersHTMLOverRawLines(t *testing.T) {
	e, err := NewExtractor()
	require.NoError(t, err)

	path := writeHTMLLog(t, `<div class="agent-thought">from html</div>`)
	thoughts, info := e.Extract(path, []string{`think("from raw")`})
	require.Len(t, thoughts, 1)
	assert.Equal(t, "from html", thoughts[0])
	assert.Equal(t, "html_log", info.Source)
}

func TestExtractDeduplicates(t *testing.T) {
	e, err := NewExtractor()
	require.NoError(t, err)

	lines := []string{
		`think("same thought")`,
		`think("same thought")`,
		`think("different thought")`,
	}
	thoughts, _ := e.Extract("", lines)
	assert.Equal(t, []string{"same thought", "different thought"}, thoughts)
}

func TestExtractEscapedQuotes(t *testing.T) {
	e, err := NewExtractor()
	require.NoError(t, err)

	thoughts, _ := e.Extract("", []string{`think("click the \"Buy\" button")`})
	require.Len(t, thoughts, 1)
	assert.Equal(t, `click the "Buy" button`, thoughts[0])
}

func TestExtractNoMatchesIsNotAnError(t *testing.T) {
	e, err := NewExtractor()
	require.NoError(t, err)

	thoughts, info := e.Extract("/nonexistent/log.html", []string{"nothing here"})
	assert.Empty(t, thoughts)
	assert.Equal(t, "none", info.Source)
	assert.Equal(t, 0, info.MatchCount)
}

func TestNewExtractorCustomPatterns(t *testing.T) {
	e, err := NewExtractor(`REASON: (.+)$`)
	require.NoError(t, err)

	thoughts, _ := e.Extract("", []string{"REASON: the page is still loading"})
	require.Len(t, thoughts, 1)
	assert.Equal(t, "the page is still loading", thoughts[0])
}

func TestNewExtractorRejectsBadPatterns(t *testing.T) {
	_, err := NewExtractor(`([`)
	assert.Error(t, err)

	_, err = NewExtractor(`no capture group`)
	assert.Error(t, err)
}
