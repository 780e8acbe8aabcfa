package seedlog_test

import (
	"encoding/csv"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/archivetools/aqc/internal/seedlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLog(t *testing.T, opts ...seedlog.Options) *seedlog.Log {
	t.Helper()

	sl, err := seedlog.New(slog.Default(), filepath.Join(t.TempDir(), "seed_log.csv"), opts...)
	require.NoError(t, err, "Setup: New should not have failed")
	return sl
}

func TestAdd(t *testing.T) {
	t.Parallel()

	sl := newLog(t)
	require.NoError(t, sl.Add(seedlog.Entry{
		Seed:   "https://example.org/",
		Action: "didn't finish",
		Next:   "recrawl",
		Note:   "timed out at 80%",
	}), "Add should not have failed")

	entries, err := sl.Entries()
	require.NoError(t, err, "Entries should not have failed")
	require.Len(t, entries, 1)
	assert.Equal(t, "https://example.org/", entries[0].Seed)
	assert.Equal(t, "didn't finish", entries[0].Action)
	assert.NotEmpty(t, entries[0].Date, "an empty date should be stamped with today")

	// The file itself carries the canonical header.
	data, err := os.ReadFile(sl.Path())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "seed,date,action,next,note\n"), "new log should start with the canonical header")
}

func TestNormalizeIssue(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		action string

		want    string
		wantErr bool
	}{
		"Canonical name":       {action: "QA issues", want: "QA issues"},
		"Case insensitive":     {action: "qa issues", want: "QA issues"},
		"Numeric selection":    {action: "4", want: "QA issues"},
		"Surrounding spaces":   {action: "  didn't finish ", want: "didn't finish"},
		"Index zero":           {action: "0", wantErr: true},
		"Index out of range":   {action: "7", wantErr: true},
		"Name not in the list": {action: "vibes", wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := seedlog.NormalizeIssue(tc.action)
			if tc.wantErr {
				require.ErrorIs(t, err, seedlog.ErrUnknownIssue, "NormalizeIssue should have failed")
				return
			}
			require.NoError(t, err, "NormalizeIssue should not have failed")
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAddNormalizesAction(t *testing.T) {
	t.Parallel()

	sl := newLog(t)
	require.NoError(t, sl.Add(seedlog.Entry{Seed: "https://example.org/", Action: "2"}), "Add should accept a numeric action")
	require.NoError(t, sl.Add(seedlog.Entry{Seed: "https://example.com/", Action: "qa issues"}), "Add should accept a case-mismatched action")

	entries, err := sl.Entries()
	require.NoError(t, err, "Entries should not have failed")
	require.Len(t, entries, 2)
	assert.Equal(t, "page errors (404)", entries[0].Action, "numeric selection should be stored canonically")
	assert.Equal(t, "QA issues", entries[1].Action, "name matching should be stored canonically")
}

func TestAddRejectsBadEntries(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		entry seedlog.Entry

		wantUnknownIssue bool
	}{
		"Empty seed":     {entry: seedlog.Entry{Action: "other"}},
		"Unknown action": {entry: seedlog.Entry{Seed: "https://example.org/", Action: "vibes"}, wantUnknownIssue: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			sl := newLog(t)
			err := sl.Add(tc.entry)
			require.Error(t, err, "Add should have failed")
			if tc.wantUnknownIssue {
				require.ErrorIs(t, err, seedlog.ErrUnknownIssue)
			}
		})
	}
}

func TestAddAllDeduplicates(t *testing.T) {
	t.Parallel()

	sl := newLog(t)
	require.NoError(t, sl.Add(seedlog.Entry{Seed: "https://example.org/", Action: "other"}), "Setup: Add should not have failed")

	require.NoError(t, sl.AddAll([]seedlog.Entry{
		{Seed: "https://example.org/", Action: "other"},           // already logged
		{Seed: "https://example.com/", Action: "other"},           // new
		{Seed: "https://example.com/", Action: "other"},           // duplicate within batch
		{Seed: "https://example.org/", Action: "QA issues"},       // same seed, different action
	}), "AddAll should not have failed")

	entries, err := sl.Entries()
	require.NoError(t, err, "Entries should not have failed")
	require.Len(t, entries, 3, "duplicates should be skipped, new seed and new action kept")
}

func TestLegacyMigration(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "seed_log.csv")
	legacy := strings.Join([]string{
		"seed,date,action,note,next",
		"https://example.org/,2020-05-01,didn't finish,timed out,recrawl",
		"",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0600), "Setup: could not write legacy log")

	sl, err := seedlog.New(slog.Default(), path)
	require.NoError(t, err, "New should not have failed")

	entries, err := sl.Entries()
	require.NoError(t, err, "Entries should not have failed")
	require.Len(t, entries, 1)
	assert.Equal(t, "recrawl", entries[0].Next, "legacy columns should be mapped by name")
	assert.Equal(t, "timed out", entries[0].Note)

	// The file is rewritten in canonical order with a backup of the original.
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"seed", "date", "action", "next", "note"}, rows[0])

	backups, err := filepath.Glob(path + ".bak_*")
	require.NoError(t, err)
	require.Len(t, backups, 1, "the legacy file should be backed up")
	orig, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, legacy, string(orig))
}

func TestUnrecognizedHeader(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "seed_log.csv")
	require.NoError(t, os.WriteFile(path, []byte("url,when,what\n"), 0600), "Setup: could not write log")

	sl, err := seedlog.New(slog.Default(), path)
	require.NoError(t, err, "New should not have failed")

	_, err = sl.Entries()
	require.Error(t, err, "an unrecognized header should be an error, not silently reinterpreted")
}

func TestDryRun(t *testing.T) {
	t.Parallel()

	sl := newLog(t, seedlog.WithDryRun())
	require.NoError(t, sl.Add(seedlog.Entry{Seed: "https://example.org/", Action: "other"}), "Add should not have failed")

	assert.NoFileExists(t, sl.Path(), "a dry run must not create the log")
}

func TestParseSeeds(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		input string

		want []string
	}{
		"Empty input": {input: ""},
		"Seeds with comments and blanks": {
			input: "# crawl batch 7\nhttps://a.example/\n\nhttps://b.example/\n",
			want:  []string{"https://a.example/", "https://b.example/"},
		},
		"Duplicates collapse keeping first occurrence": {
			input: "https://a.example/\nhttps://b.example/\nhttps://a.example/\n",
			want:  []string{"https://a.example/", "https://b.example/"},
		},
		"Whitespace trimmed": {
			input: "  https://a.example/  \n",
			want:  []string{"https://a.example/"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := seedlog.ParseSeeds(strings.NewReader(tc.input))
			require.NoError(t, err, "ParseSeeds should not have failed")
			assert.Equal(t, tc.want, got)
		})
	}
}
