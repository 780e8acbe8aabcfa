// Package copier implements verified copying of a delivery tree: checksum the
// source, copy it, checksum the destination, compare, and record the verdict.
// The source is never modified or deleted.
package copier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/archivetools/aqc/internal/checksum"
	"github.com/archivetools/aqc/internal/constants"
	"github.com/archivetools/aqc/internal/fileutils"
	"github.com/ubuntu/decorate"
)

var (
	// ErrDestinationExists is returned when the final destination already
	// exists and overwriting was not explicitly allowed.
	ErrDestinationExists = errors.New("destination already exists")

	// ErrVerificationFailed is returned when the destination checksums do not
	// match the source. The copy and its manifest are left in place as
	// evidence of what happened.
	ErrVerificationFailed = errors.New("copy verification failed")
)

// Prefixes of the verification artifacts this tool writes; these must never
// travel with the content and are ignored when hashing either side.
const (
	sourceChecksumPrefix = "checksums_source_"
	destChecksumPrefix   = "checksums_dest_"
	copyManifestPrefix   = "manifest_"
)

var artifactPrefixes = []string{
	sourceChecksumPrefix,
	destChecksumPrefix,
	copyManifestPrefix,
	constants.ManifestPrefix,
}

// Config represents the data needed to run one verified copy.
type Config struct {
	Source        string // top folder to copy
	DestParent    string // parent the top folder is created inside
	Operator      string
	Algorithm     string
	AllowExisting bool // permit copying into an existing destination
}

// Sanitize checks that the Config is properly configured and makes paths absolute.
func (c *Config) Sanitize(l *slog.Logger) error {
	if c.Source == "" || c.DestParent == "" {
		return errors.New("source and destination parent must be provided")
	}

	for _, p := range []*string{&c.Source, &c.DestParent} {
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("could not resolve path %s: %v", *p, err)
		}
		*p = abs
	}

	for _, p := range []string{c.Source, c.DestParent} {
		fi, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("could not read %s: %w", p, err)
		}
		if !fi.IsDir() {
			return fmt.Errorf("%s is not a directory", p)
		}
	}

	if _, err := checksum.ParseAlgorithm(c.Algorithm); err != nil {
		return err
	}

	return nil
}

// Manifest is the persisted record of one verified copy.
type Manifest struct {
	Operator     string           `json:"operator,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	Source       string           `json:"source"`
	Destination  string           `json:"destination"`
	Result       string           `json:"result"` // PASS or FAIL
	SourceList   string           `json:"source_checksums"`
	DestList     string           `json:"destination_checksums"`
	Verification checksum.Summary `json:"verification"`
	FileCount    int              `json:"file_count"`
}

// Run performs the verified copy and writes the verdict manifest under the
// destination's operational log directory.
//
// It returns the manifest and ErrVerificationFailed when any file mismatched,
// went missing, or appeared unexpectedly; the caller decides the exit code.
func Run(ctx context.Context, l *slog.Logger, c Config) (m Manifest, err error) {
	defer decorate.OnError(&err, "verified copy failed")

	if err := c.Sanitize(l); err != nil {
		return Manifest{}, err
	}
	algo, err := checksum.ParseAlgorithm(c.Algorithm)
	if err != nil {
		return Manifest{}, err
	}

	destRoot := filepath.Join(c.DestParent, filepath.Base(c.Source))
	if _, err := os.Stat(destRoot); err == nil && !c.AllowExisting {
		return Manifest{}, fmt.Errorf("%w: %s", ErrDestinationExists, destRoot)
	}

	stamp := time.Now().Format("20060102_150405")

	// Source checksums before any copying, so later disputes have a baseline.
	rels, err := checksum.ListTree(c.Source, artifactPrefixes...)
	if err != nil {
		return Manifest{}, err
	}

	srcList := filepath.Join(c.Source, constants.LogDirName, fmt.Sprintf("%s%s.txt", sourceChecksumPrefix, stamp))
	l.Info("Hashing source", "files", len(rels))
	srcSums, err := checksum.WriteTree(algo, c.Source, srcList, rels, progressLogger(l, "source"))
	if err != nil {
		return Manifest{}, err
	}

	l.Info("Copying", "from", c.Source, "to", destRoot, "files", len(rels))
	for i, rel := range rels {
		if err := ctx.Err(); err != nil {
			return Manifest{}, err
		}

		src := filepath.Join(c.Source, filepath.FromSlash(rel))
		dst := filepath.Join(destRoot, filepath.FromSlash(rel))
		if err := fileutils.CopyFile(src, dst); err != nil {
			return Manifest{}, fmt.Errorf("could not copy %s: %w", rel, err)
		}

		if (i+1)%constants.DefaultProgressInterval == 0 || i+1 == len(rels) {
			l.Info("Copy progress", "done", i+1, "total", len(rels))
		}
	}

	destList := filepath.Join(destRoot, constants.LogDirName, fmt.Sprintf("%s%s.txt", destChecksumPrefix, stamp))
	summary, fileCount, err := verifyDestination(l, algo, destRoot, destList, srcSums)
	if err != nil {
		return Manifest{}, err
	}

	m = Manifest{
		Operator:     c.Operator,
		CreatedAt:    time.Now().Truncate(time.Second),
		Source:       c.Source,
		Destination:  destRoot,
		SourceList:   filepath.Base(srcList),
		DestList:     filepath.Base(destList),
		Verification: summary,
		FileCount:    fileCount,
		Result:       "PASS",
	}
	if !summary.Clean() {
		m.Result = "FAIL"
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return Manifest{}, err
	}
	manifestPath := filepath.Join(destRoot, constants.LogDirName, fmt.Sprintf("manifest_%s.json", stamp))
	if err := fileutils.WriteIfMissing(manifestPath, append(data, '\n')); err != nil {
		return Manifest{}, fmt.Errorf("could not write copy manifest: %w", err)
	}
	l.Info("Copy manifest written", "file", manifestPath, "result", m.Result)

	if m.Result != "PASS" {
		return m, ErrVerificationFailed
	}
	return m, nil
}

// verifyDestination hashes what is actually on disk under destRoot, writes
// the destination checksum list, and diffs the digests against the source's.
// The destination tree is listed anew rather than reusing the source list, so
// files that went missing or appeared during the copy are caught.
func verifyDestination(l *slog.Logger, algo checksum.Algorithm, destRoot, destList string, srcSums map[string]string) (checksum.Summary, int, error) {
	rels, err := checksum.ListTree(destRoot, artifactPrefixes...)
	if err != nil {
		return checksum.Summary{}, 0, err
	}

	l.Info("Hashing destination", "files", len(rels))
	destSums, err := checksum.WriteTree(algo, destRoot, destList, rels, progressLogger(l, "destination"))
	if err != nil {
		return checksum.Summary{}, 0, err
	}

	return checksum.Compare(srcSums, destSums), len(destSums), nil
}

func progressLogger(l *slog.Logger, side string) func(done, total int) {
	return func(done, total int) {
		if done%constants.DefaultProgressInterval == 0 || done == total {
			l.Info("Hashing progress", "side", side, "done", done, "total", total)
		}
	}
}
