package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethanolivertroy/riskflow/internal/jsonfile"
	"github.com/ethanolivertroy/riskflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scan = `{
  "metadata": {"scanner": "nmap", "start": "2025-03-14T09:00:00Z"},
  "hosts": [
    {"address": "192.168.1.171", "hostname": null, "os": null,
     "services": [
       {"state": "open", "service": {"name": "ftp"},
        "scripts": [{"id": "ftp-anon", "output": "Anonymous FTP login allowed"}]},
       {"state": "open", "service": {"name": "http"},
        "scripts": [{"id": "http-title", "output": "Admin login panel"}]},
       {"state": "open", "service": {"name": "smb"}, "scripts": []}
     ],
     "scripts": [{"id": "vulners", "output": "CVE-2024-36391 CVSS: 9.8 CVE-2024-47850 7.5"}]},
    {"address": "10.0.0.9", "hostname": "quiet", "os": "Linux",
     "services": [], "scripts": []}
  ]
}`

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), errOut.String())
	return out.String()
}

func TestAnalyseThenRespond(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	scanPath := filepath.Join(dir, "nightly.json")
	require.NoError(t, os.WriteFile(scanPath, []byte(scan), 0644))

	decisions := filepath.Join(dir, "decisions.log")
	out := run(t, "analyse", scanPath,
		"--model", filepath.Join(dir, "model.json"),
		"--decision-log", decisions,
		"--mirror-log", "",
		"--audit-file", filepath.Join(dir, "audit.json"),
		"--scan-history", filepath.Join(dir, "history.json"),
		"--ti-cache", filepath.Join(dir, "ti_cache.json"),
		"--last-features", "",
		"--ti-offline",
	)
	assert.Equal(t, "2 hosts analysed (strategy=heuristic)\n", out)

	respondArgs := []string{"respond",
		"--decision-log", decisions,
		"--actions-log", filepath.Join(dir, "actions.log"),
		"--audit-file", filepath.Join(dir, "response_actions.json"),
		"--state-file", filepath.Join(dir, "state.json"),
		"--mailto", "soc@example.org",
		"--dry-run",
	}
	out = run(t, respondArgs...)
	assert.Equal(t, "2 response actions recorded\n", out)

	actions := jsonfile.LoadArray[models.ResponseAction](filepath.Join(dir, "response_actions.json"))
	require.Len(t, actions, 2)
	assert.Equal(t, models.ActionBlock, actions[0].Action)
	assert.Equal(t, models.ActionLog, actions[1].Action)

	log, err := os.ReadFile(filepath.Join(dir, "actions.log"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(log), "[DRY-RUN] BLOCK 192.168.1.171"))

	out = run(t, respondArgs...)
	assert.Equal(t, "no new decisions to process\n", out)
}

func TestAnalyseRequiresScanArgument(t *testing.T) {
	var errOut bytes.Buffer
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs([]string{"analyse"})
	assert.Error(t, rootCmd.Execute())
}

func TestAnalyseReportFailureKeepsDecisions(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Cleanup(func() { flagReport, flagOutput = "", "" })
	scanPath := filepath.Join(dir, "nightly.json")
	require.NoError(t, os.WriteFile(scanPath, []byte(scan), 0644))

	decisions := filepath.Join(dir, "decisions.log")
	out := run(t, "analyse", scanPath,
		"--model", filepath.Join(dir, "model.json"),
		"--decision-log", decisions,
		"--mirror-log", "",
		"--audit-file", filepath.Join(dir, "audit.json"),
		"--scan-history", "",
		"--ti-cache", filepath.Join(dir, "ti_cache.json"),
		"--last-features", "",
		"--ti-offline",
		"--report", "json",
		"--output", dir,
	)
	assert.Equal(t, "2 hosts analysed (strategy=heuristic)\n", out)

	log, err := os.ReadFile(decisions)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(log), "\n"))
}
