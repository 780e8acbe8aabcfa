package operator_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/archivetools/aqc/internal/operator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGet(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := operator.New(slog.Default(), dir)

	want := operator.Profile{DisplayName: "A. M. Reyes", Timezone: "America/New_York"}
	require.NoError(t, m.Set("amr", want), "Set should not have failed")

	got, err := m.Get("amr")
	require.NoError(t, err, "Get should not have failed")
	assert.Equal(t, want, got)
}

func TestSetDefaultsDisplayName(t *testing.T) {
	t.Parallel()

	m := operator.New(slog.Default(), t.TempDir())
	require.NoError(t, m.Set("amr", operator.Profile{}), "Set should not have failed")

	got, err := m.Get("amr")
	require.NoError(t, err, "Get should not have failed")
	assert.Equal(t, "amr", got.DisplayName, "display name should default to the operator name")
}

func TestSetErrorsOnEmptyName(t *testing.T) {
	t.Parallel()

	m := operator.New(slog.Default(), t.TempDir())
	require.Error(t, m.Set("  ", operator.Profile{DisplayName: "x"}), "Set should reject a blank name")
}

func TestGetMissingProfile(t *testing.T) {
	t.Parallel()

	m := operator.New(slog.Default(), t.TempDir())
	_, err := m.Get("ghost")
	require.ErrorIs(t, err, operator.ErrProfileNotFound)
}

func TestGetInvalidProfile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad-operator.toml"), []byte("not [valid toml"), 0600),
		"Setup: could not write profile")

	m := operator.New(slog.Default(), dir)
	_, err := m.Get("bad")
	require.Error(t, err, "Get should fail on invalid TOML")
	assert.NotErrorIs(t, err, operator.ErrProfileNotFound, "a present but broken profile is not a missing one")
}

func TestDisplayName(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := operator.New(slog.Default(), dir)
	require.NoError(t, m.Set("amr", operator.Profile{DisplayName: "A. M. Reyes"}), "Setup: Set should not have failed")

	assert.Equal(t, "A. M. Reyes", m.DisplayName("amr"))
	assert.Equal(t, "unregistered", m.DisplayName("unregistered"), "unknown operators fall back to the raw name")
	assert.Empty(t, m.DisplayName(""), "empty operator stays empty")
}

func TestList(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := operator.New(slog.Default(), dir)

	names, err := m.List()
	require.NoError(t, err, "List should not fail on an empty profiles directory")
	assert.Empty(t, names)

	require.NoError(t, m.Set("zoe", operator.Profile{}), "Setup: Set should not have failed")
	require.NoError(t, m.Set("amr", operator.Profile{}), "Setup: Set should not have failed")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600), "Setup: could not write stray file")

	names, err = m.List()
	require.NoError(t, err, "List should not have failed")
	assert.Equal(t, []string{"amr", "zoe"}, names, "only profile files should be listed, sorted")
}

func TestListMissingDir(t *testing.T) {
	t.Parallel()

	m := operator.New(slog.Default(), filepath.Join(t.TempDir(), "nope"))
	names, err := m.List()
	require.NoError(t, err, "a missing profiles directory is not an error")
	assert.Empty(t, names)
}
