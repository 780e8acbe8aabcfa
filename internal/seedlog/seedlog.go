// Package seedlog maintains the crawl seed log: a CSV journal of the URLs a
// web-archiving crawl was seeded with, what happened to each, and what to do
// next. Appends are guarded by an advisory file lock so concurrent operators
// cannot interleave writes.
package seedlog

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/archivetools/aqc/internal/constants"
	"github.com/archivetools/aqc/internal/fileutils"
	"github.com/gofrs/flock"
	"github.com/ubuntu/decorate"
)

var (
	// ErrLockBusy is returned when the log lock could not be acquired within
	// the retry budget.
	ErrLockBusy = errors.New("seed log is locked by another process")

	// ErrUnknownIssue is returned for an action outside the issue vocabulary.
	ErrUnknownIssue = errors.New("unknown issue")
)

// headers is the canonical column order.
var headers = []string{"seed", "date", "action", "next", "note"}

// legacyHeaders is the pre-migration column order still found in old logs.
var legacyHeaders = []string{"seed", "date", "action", "note", "next"}

// Issues is the controlled vocabulary for the action column.
var Issues = []string{
	"missing content/links",
	"page errors (404)",
	"didn't finish",
	"QA issues",
	"updated/added seed",
	"other",
}

// NormalizeIssue resolves an action into its canonical vocabulary entry.
// Selection is by 1-based index or case-insensitive name.
func NormalizeIssue(action string) (string, error) {
	action = strings.TrimSpace(action)
	if n, err := strconv.Atoi(action); err == nil {
		if n < 1 || n > len(Issues) {
			return "", fmt.Errorf("%w: index %d (valid: 1-%d)", ErrUnknownIssue, n, len(Issues))
		}
		return Issues[n-1], nil
	}

	for _, issue := range Issues {
		if strings.EqualFold(issue, action) {
			return issue, nil
		}
	}
	return "", fmt.Errorf("%w: %q (valid: %s)", ErrUnknownIssue, action, strings.Join(Issues, ", "))
}

// ValidIssue reports whether action resolves to an entry of the vocabulary.
func ValidIssue(action string) bool {
	_, err := NormalizeIssue(action)
	return err == nil
}

// Entry is one row of the seed log.
type Entry struct {
	Seed   string
	Date   string
	Action string
	Next   string
	Note   string
}

// Log manages one seed log CSV file.
type Log struct {
	path    string
	dryRun  bool
	retries int

	log *slog.Logger
}

type options struct {
	dryRun  bool
	retries int
}

var defaultOptions = options{
	retries: constants.DefaultSeedLogRetries,
}

// Options are the functional options for the seed log.
type Options func(*options)

// WithDryRun previews appends and migrations without writing.
func WithDryRun() Options {
	return func(o *options) {
		o.dryRun = true
	}
}

// WithRetries overrides how many times lock acquisition is attempted.
func WithRetries(n int) Options {
	return func(o *options) {
		if n > 0 {
			o.retries = n
		}
	}
}

// New returns a Log for the CSV file at path.
func New(l *slog.Logger, path string, args ...Options) (*Log, error) {
	if path == "" {
		return nil, errors.New("seed log path must be provided")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("could not resolve seed log path: %v", err)
	}

	opts := defaultOptions
	for _, f := range args {
		f(&opts)
	}

	return &Log{
		path:    abs,
		dryRun:  opts.dryRun,
		retries: opts.retries,
		log:     l,
	}, nil
}

// Path returns the absolute path of the log file.
func (s *Log) Path() string {
	return s.path
}

// Add appends one entry. An empty date is stamped with today. The action is
// normalized through the issue vocabulary.
func (s *Log) Add(e Entry) error {
	return s.AddAll([]Entry{e})
}

// AddAll appends entries in one locked write, deduplicating seeds already in
// the log and within the batch itself. Entries whose seed is already logged
// with the same action are skipped with a warning.
func (s *Log) AddAll(entries []Entry) (err error) {
	defer decorate.OnError(&err, "could not append to seed log %s", s.path)

	today := time.Now().Format("2006-01-02")
	for i := range entries {
		entries[i].Seed = strings.TrimSpace(entries[i].Seed)
		if entries[i].Seed == "" {
			return errors.New("seed cannot be empty")
		}
		action, err := NormalizeIssue(entries[i].Action)
		if err != nil {
			return err
		}
		entries[i].Action = action
		if entries[i].Date == "" {
			entries[i].Date = today
		}
	}

	return s.withLock(func() error {
		existing, err := s.read()
		if err != nil {
			return err
		}

		seen := make(map[string]bool, len(existing))
		for _, e := range existing {
			seen[e.Seed+"\x00"+e.Action] = true
		}

		var toWrite []Entry
		for _, e := range entries {
			key := e.Seed + "\x00" + e.Action
			if seen[key] {
				s.log.Warn("Seed already logged with this action, skipping", "seed", e.Seed, "action", e.Action)
				continue
			}
			seen[key] = true
			toWrite = append(toWrite, e)
		}
		if len(toWrite) == 0 {
			s.log.Info("Nothing new to append")
			return nil
		}

		if s.dryRun {
			for _, e := range toWrite {
				s.log.Info("[dry-run] Would append", "seed", e.Seed, "action", e.Action, "next", e.Next)
			}
			return nil
		}

		return s.append(toWrite, len(existing) == 0 && !exists(s.path))
	})
}

// Entries returns all rows of the log, migrating a legacy column order first
// if one is found.
func (s *Log) Entries() (entries []Entry, err error) {
	defer decorate.OnError(&err, "could not read seed log %s", s.path)

	err = s.withLock(func() error {
		entries, err = s.read()
		return err
	})
	return entries, err
}

// ParseSeeds extracts seeds from a bulk input: one seed per line, blank lines
// and #-comments skipped, duplicates removed preserving first occurrence.
func ParseSeeds(r io.Reader) ([]string, error) {
	var seeds []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if seen[line] {
			continue
		}
		seen[line] = true
		seeds = append(seeds, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("could not read seed list: %v", err)
	}
	return seeds, nil
}

// withLock runs f while holding the log's advisory lock, retrying acquisition.
func (s *Log) withLock(f func() error) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
		return err
	}

	lock := flock.New(s.path + ".lock")
	var locked bool
	var err error
	for attempt := 0; attempt < s.retries; attempt++ {
		locked, err = lock.TryLock()
		if err != nil {
			return err
		}
		if locked {
			break
		}
		s.log.Debug("Seed log locked, retrying", "attempt", attempt+1)
		time.Sleep(time.Duration(attempt+1) * 200 * time.Millisecond)
	}
	if !locked {
		return ErrLockBusy
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.log.Warn("Could not release seed log lock", "error", err)
		}
	}()

	return f()
}

// read loads all entries. A legacy header order triggers an in-place
// migration with a timestamped backup of the original file.
func (s *Log) read() ([]Entry, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("could not parse CSV: %v", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	legacy := slices.Equal(header, legacyHeaders)
	if !legacy && !slices.Equal(header, headers) {
		return nil, fmt.Errorf("unrecognized seed log header: %v", header)
	}

	var entries []Entry
	for _, rec := range records[1:] {
		e := Entry{}
		for i, v := range rec {
			if i >= len(header) {
				break
			}
			switch header[i] {
			case "seed":
				e.Seed = v
			case "date":
				e.Date = v
			case "action":
				e.Action = v
			case "next":
				e.Next = v
			case "note":
				e.Note = v
			}
		}
		entries = append(entries, e)
	}

	if legacy {
		if err := s.migrate(entries); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// migrate rewrites the log in the canonical column order, keeping a backup of
// the legacy file next to it.
func (s *Log) migrate(entries []Entry) error {
	if s.dryRun {
		s.log.Info("[dry-run] Would migrate legacy column order", "file", s.path, "rows", len(entries))
		return nil
	}

	backup := fmt.Sprintf("%s.bak_%s", s.path, time.Now().Format("20060102_150405"))
	orig, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	if err := fileutils.WriteIfMissing(backup, orig); err != nil {
		return fmt.Errorf("could not back up legacy log: %w", err)
	}

	var sb strings.Builder
	w := csv.NewWriter(&sb)
	rows := [][]string{headers}
	for _, e := range entries {
		rows = append(rows, []string{e.Seed, e.Date, e.Action, e.Next, e.Note})
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	if err := fileutils.AtomicWrite(s.path, []byte(sb.String())); err != nil {
		return err
	}

	s.log.Info("Migrated seed log to canonical column order", "file", s.path, "backup", backup)
	return nil
}

// append adds rows to the log file, writing the header first for a new file.
func (s *Log) append(entries []Entry, writeHeader bool) error {
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(headers); err != nil {
			return err
		}
	}
	for _, e := range entries {
		if err := w.Write([]string{e.Seed, e.Date, e.Action, e.Next, e.Note}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	s.log.Info("Appended to seed log", "file", s.path, "rows", len(entries))
	return f.Close()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
