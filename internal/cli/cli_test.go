package cli

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provisor-io/provisor/internal/ir"
	"github.com/provisor-io/provisor/internal/platform"
)

func TestResolveManifest_Directory(t *testing.T) {
	dir := t.TempDir()
	wd, entry, err := resolveManifest([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, dir, wd)
	assert.Equal(t, "main.pkl", entry)
}

func TestResolveManifest_File(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "server.pkl")
	require.NoError(t, os.WriteFile(manifest, []byte("name = \"x\"\n"), 0644))

	wd, entry, err := resolveManifest([]string{manifest})
	require.NoError(t, err)
	assert.Equal(t, dir, wd)
	assert.Equal(t, "server.pkl", entry)
}

func TestResolveManifest_MissingPath(t *testing.T) {
	_, _, err := resolveManifest([]string{filepath.Join(t.TempDir(), "nope.pkl")})
	require.Error(t, err)
}

func TestResolveSecrets(t *testing.T) {
	t.Setenv("DB_ROOT_PASSWORD", "hunter2")
	t.Setenv("CONSOLE_ADMIN_PASSWORD", "letmein")

	manifest := &ir.Manifest{
		Name:    "protect-server",
		Secrets: []string{"DB_ROOT_PASSWORD", "CONSOLE_ADMIN_PASSWORD"},
	}
	facts := &platform.Facts{OS: "linux", Family: "debian"}

	env, secretKeys, err := resolveSecrets(manifest, facts)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", env["DB_ROOT_PASSWORD"])
	assert.Equal(t, "debian", env["PROVISOR_FAMILY"])
	assert.Equal(t, manifest.Secrets, secretKeys)
}

func TestResolveSecrets_MissingFromEnvironment(t *testing.T) {
	t.Setenv("DB_ROOT_PASSWORD", "")

	manifest := &ir.Manifest{Secrets: []string{"DB_ROOT_PASSWORD"}}
	_, _, err := resolveSecrets(manifest, &platform.Facts{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_ROOT_PASSWORD")
}

func TestMergeProperties_OverridesWin(t *testing.T) {
	merged := mergeProperties(
		map[string]string{"facts.family": "debian", "facts.os": "linux"},
		map[string]string{"facts.family": "rhel"},
	)
	assert.Equal(t, "rhel", merged["facts.family"])
	assert.Equal(t, "linux", merged["facts.os"])
}

func TestLintStep_PlaintextCredential(t *testing.T) {
	findings := lintStep(&ir.Step{
		Name: "secure_db",
		Action: &ir.Command{
			Program: "mysql",
			Args:    []string{"-uroot", "password=hunter2"},
		},
		Check: &ir.Command{Program: "true"},
	})
	require.Len(t, findings, 1)
	assert.Equal(t, "plaintext-credential", findings[0].Rule)
	assert.Equal(t, "error", findings[0].Severity)
}

func TestLintStep_EnvReferenceIsNotACredentialFinding(t *testing.T) {
	findings := lintStep(&ir.Step{
		Name: "secure_db",
		Action: &ir.Command{
			Program: "sh",
			Args:    []string{"-c", `mysql --password="$DB_ROOT_PASSWORD"`},
		},
		Check: &ir.Command{Program: "true"},
	})
	for _, f := range findings {
		assert.NotEqual(t, "plaintext-credential", f.Rule)
	}
}

func TestLintStep_PipeToShell(t *testing.T) {
	findings := lintStep(&ir.Step{
		Name: "install_tool",
		Action: &ir.Command{
			Program: "sh",
			Args:    []string{"-c", "curl -fsSL https://example.com/install.sh | sudo bash"},
		},
		Check: &ir.Command{Program: "true"},
	})
	require.Len(t, findings, 1)
	assert.Equal(t, "pipe-to-shell", findings[0].Rule)
}

func TestLintStep_InsecureDownloadAndPermissions(t *testing.T) {
	findings := lintStep(&ir.Step{
		Name: "fetch",
		Action: &ir.Command{
			Program: "sh",
			Args:    []string{"-c", "curl -o /tmp/pkg http://mirror.example.com/pkg && chmod 777 /tmp/pkg"},
		},
		Check: &ir.Command{Program: "true"},
	})

	rules := make([]string, 0, len(findings))
	for _, f := range findings {
		rules = append(rules, f.Rule)
	}
	assert.Contains(t, rules, "insecure-download")
	assert.Contains(t, rules, "world-writable")
}

func TestLintStep_MissingCheck(t *testing.T) {
	findings := lintStep(&ir.Step{
		Name:   "install",
		Action: &ir.Command{Program: "true"},
	})
	require.Len(t, findings, 1)
	assert.Equal(t, "missing-check", findings[0].Rule)
	assert.Equal(t, "warning", findings[0].Severity)

	// Probes poll by design; no check finding for them.
	assert.Empty(t, lintStep(&ir.Step{
		Name:   "wait_console",
		Kind:   "probe",
		Action: &ir.Command{Program: "true"},
	}))
}

func TestWriteAuditLog_AppendsJSONLines(t *testing.T) {
	wd := t.TempDir()

	require.NoError(t, writeAuditLog(wd, AuditEntry{
		Operation: "run",
		RunID:     "r1",
		Manifest:  "protect-server",
		Summary:   map[string]int{"succeeded": 3},
	}))
	require.NoError(t, writeAuditLog(wd, AuditEntry{
		Operation: "run",
		RunID:     "r2",
		Error:     "aborted",
	}))

	f, err := os.Open(auditLogPath(wd))
	require.NoError(t, err)
	defer f.Close()

	var entries []AuditEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry AuditEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}
	require.Len(t, entries, 2)
	assert.Equal(t, "r1", entries[0].RunID)
	assert.NotEmpty(t, entries[0].Timestamp)
	assert.NotEmpty(t, entries[0].User)
	assert.Equal(t, 3, entries[0].Summary["succeeded"])
	assert.Equal(t, "aborted", entries[1].Error)
}

func TestSummaryCounts_DropsZeroStates(t *testing.T) {
	run := &ir.Run{
		Outcomes: []*ir.StepOutcome{
			{Step: "a", State: ir.StateSucceeded},
			{Step: "b", State: ir.StateSucceeded},
			{Step: "c", State: ir.StateSkipped, Reason: ir.SkipSatisfied},
		},
	}
	counts := summaryCounts(run)
	assert.Equal(t, map[string]int{"succeeded": 2, "skipped": 1}, counts)
}

func TestFailedSteps(t *testing.T) {
	run := &ir.Run{
		Outcomes: []*ir.StepOutcome{
			{Step: "a", State: ir.StateSucceeded},
			{Step: "b", State: ir.StateFailed},
			{Step: "c", State: ir.StateSkipped, Reason: ir.SkipBlocked},
		},
	}
	assert.Equal(t, []string{"b"}, failedSteps(run))
}
