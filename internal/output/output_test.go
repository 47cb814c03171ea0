package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUI() (*UI, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &UI{Out: out, ErrOut: errOut}, out, errOut
}

func TestInfo(t *testing.T) {
	u, out, _ := newTestUI()
	u.Info("hello %s", "world")
	assert.Contains(t, out.String(), "hello world")
}

func TestSuccess(t *testing.T) {
	u, out, _ := newTestUI()
	u.Success("done %d", 42)
	assert.Contains(t, out.String(), "done 42")
}

func TestWarning(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Warning("careful %s", "now")
	assert.Contains(t, errOut.String(), "careful now")
}

func TestError(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Error("failed %s", "badly")
	assert.Contains(t, errOut.String(), "failed badly")
}

func TestVerboseLog_Enabled(t *testing.T) {
	u, out, _ := newTestUI()
	u.Verbose = true
	u.VerboseLog("detail %d", 1)
	assert.Contains(t, out.String(), "detail 1")
}

func TestVerboseLog_Disabled(t *testing.T) {
	u, out, _ := newTestUI()
	u.Verbose = false
	u.VerboseLog("detail %d", 1)
	assert.Empty(t, out.String())
}

func TestDryRunMsg_Enabled(t *testing.T) {
	u, _, errOut := newTestUI()
	u.DryRun = true
	u.DryRunMsg("would create %s", "file")
	assert.Contains(t, errOut.String(), "[DRY-RUN]")
	assert.Contains(t, errOut.String(), "would create file")
}

func TestDryRunMsg_Disabled(t *testing.T) {
	u, _, errOut := newTestUI()
	u.DryRun = false
	u.DryRunMsg("would create %s", "file")
	assert.Empty(t, errOut.String())
}

func TestColorHelpers(t *testing.T) {
	// Color helpers should return non-empty strings
	assert.NotEmpty(t, Cyan("test"))
	assert.NotEmpty(t, Green("test"))
	assert.NotEmpty(t, Yellow("test"))
	assert.NotEmpty(t, Red("test"))
}

func TestOutcomeColor(t *testing.T) {
	for _, o := range []string{"added", "updated", "skipped", "failed"} {
		assert.Contains(t, OutcomeColor(o), o)
	}
	assert.Equal(t, "other", OutcomeColor("other"))
}

func TestRunStatusColor(t *testing.T) {
	assert.Contains(t, RunStatusColor("succeeded"), "succeeded")
	assert.Contains(t, RunStatusColor("failed"), "failed")
	assert.Equal(t, "queued", RunStatusColor("queued"))
}

func TestCategoryColor(t *testing.T) {
	assert.Contains(t, CategoryColor("professional"), "professional")
	assert.Contains(t, CategoryColor("personal"), "personal")
	assert.Equal(t, "archived", CategoryColor("archived"))
}

func TestRateLimitColor(t *testing.T) {
	assert.Contains(t, RateLimitColor(0), "0")
	assert.Contains(t, RateLimitColor(5), "5")
	assert.Contains(t, RateLimitColor(4999), "4999")
}

func TestTable(t *testing.T) {
	u, out, _ := newTestUI()
	table := u.Table([]string{"Repository", "Outcome"})
	require.NotNil(t, table)

	table.Append([]string{"octo/site", "added"})
	table.Append([]string{"octo/cli", "skipped"})
	err := table.Render()
	require.NoError(t, err)

	result := out.String()
	assert.True(t, strings.Contains(result, "octo/site") || strings.Contains(result, "OCTO/SITE"),
		"table output should contain repository names")
	assert.True(t, strings.Contains(result, "octo/cli") || strings.Contains(result, "OCTO/CLI"),
		"table output should contain repository names")
}
