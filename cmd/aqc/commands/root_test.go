package commands_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/archivetools/aqc/cmd/aqc/commands"
	"github.com/archivetools/aqc/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	a, err := commands.New()
	require.NoError(t, err, "New should not have failed")

	root := a.RootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"check", "manifest", "copy", "package", "seedlog", "watch", "operator", "version"} {
		assert.Contains(t, names, want, "subcommand should be registered")
	}
}

func TestVersion(t *testing.T) {
	a, err := commands.New()
	require.NoError(t, err, "Setup: New should not have failed")

	a.SetArgs("version")
	require.NoError(t, a.Run(), "version should not fail")
	assert.False(t, a.UsageError())
}

func TestUnknownCommandIsUsageError(t *testing.T) {
	a, err := commands.New()
	require.NoError(t, err, "Setup: New should not have failed")

	a.SetArgs("definitely-not-a-command")
	require.Error(t, a.Run(), "an unknown command should fail")
	assert.True(t, a.UsageError())
}

func TestCheckCommand(t *testing.T) {
	dir := t.TempDir()
	content := "intact audio"
	sum := sha256.Sum256([]byte(content))
	testutils.WriteFiles(t, dir, map[string]string{
		"side_a.wav":             content,
		"checksums_20240101.txt": fmt.Sprintf("%s  *side_a.wav\n", hex.EncodeToString(sum[:])),
	})

	a, err := commands.New()
	require.NoError(t, err, "Setup: New should not have failed")

	a.SetArgs("check", dir)
	require.NoError(t, a.Run(), "check should pass on a clean delivery")
	assert.False(t, a.UsageError(), "a passing run is not a usage error")
	assert.DirExists(t, filepath.Join(dir, "aa_logs"), "manifest folder should exist")
}

func TestCheckCommandFailsOnCorruption(t *testing.T) {
	dir := t.TempDir()
	bad := sha256.Sum256([]byte("the original bytes"))
	testutils.WriteFiles(t, dir, map[string]string{
		"side_a.wav":             "tampered bytes",
		"checksums_20240101.txt": fmt.Sprintf("%s  *side_a.wav\n", hex.EncodeToString(bad[:])),
	})

	a, err := commands.New()
	require.NoError(t, err, "Setup: New should not have failed")

	a.SetArgs("check", dir)
	err = a.Run()
	require.Error(t, err, "check should fail on a corrupted delivery")
	assert.False(t, a.UsageError(), "a failing delivery is a runtime error, not a usage error")
}

func TestSeedlogCommand(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "seed_log.csv")

	a, err := commands.New()
	require.NoError(t, err, "Setup: New should not have failed")

	a.SetArgs("seedlog", "add", "--log", logPath, "--action", "didn't finish", "https://example.org/")
	require.NoError(t, a.Run(), "seedlog add should not fail")
	assert.FileExists(t, logPath)
}

func TestSeedlogAcceptsNumericIssue(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "seed_log.csv")

	a, err := commands.New()
	require.NoError(t, err, "Setup: New should not have failed")

	a.SetArgs("seedlog", "add", "--log", logPath, "--action", "4", "https://example.org/")
	require.NoError(t, a.Run(), "a numeric issue selection should be accepted")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "QA issues", "the canonical issue name should be logged")
}

func TestSeedlogRejectsUnknownIssue(t *testing.T) {
	a, err := commands.New()
	require.NoError(t, err, "Setup: New should not have failed")

	a.SetArgs("seedlog", "add", "--action", "vibes", "https://example.org/")
	require.Error(t, a.Run(), "an unknown issue should be rejected")
	assert.True(t, a.UsageError(), "a bad flag value is a usage error")
}

func TestManifestCommand(t *testing.T) {
	dir := t.TempDir()
	testutils.WriteFiles(t, dir, map[string]string{"side_a.wav": "audio"})

	a, err := commands.New()
	require.NoError(t, err, "Setup: New should not have failed")
	a.SetContext(context.Background())

	a.SetArgs("manifest", dir)
	require.NoError(t, a.Run(), "manifest should not fail")

	lists, err := filepath.Glob(filepath.Join(dir, "checksums_*.txt"))
	require.NoError(t, err)
	assert.Len(t, lists, 1, "checksum list should be written")
}
