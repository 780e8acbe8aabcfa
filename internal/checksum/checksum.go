// Package checksum implements streaming file digests and the plain-text
// checksum list format used across deliveries and packages.
//
// A checksum list is line oriented: `<hex digest>  *<relative path>`, with
// `#` comment lines for headers. Files a digest could not be computed for are
// recorded as `ERROR_NO_SHA  *<relative path>`. The format round-trips with
// the lists produced by the legacy tooling, so older deliveries still verify.
package checksum

import (
	"bufio"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/archivetools/aqc/internal/constants"
)

// ErrorMarker is written in place of a digest when hashing a file failed.
const ErrorMarker = "ERROR_NO_SHA"

// Algorithm identifies a supported digest algorithm.
type Algorithm string

// Digest algorithms accepted in policies and vendor checksum lists.
const (
	SHA256 Algorithm = "sha256"
	SHA1   Algorithm = "sha1"
	MD5    Algorithm = "md5"
)

// ParseAlgorithm converts a string into a supported Algorithm.
// An empty string selects SHA256.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(SHA256):
		return SHA256, nil
	case string(SHA1):
		return SHA1, nil
	case string(MD5):
		return MD5, nil
	default:
		return "", fmt.Errorf("unsupported checksum algorithm: %q", s)
	}
}

func (a Algorithm) newHash() hash.Hash {
	switch a {
	case SHA1:
		return sha1.New()
	case MD5:
		return md5.New()
	default:
		return sha256.New()
	}
}

// Sum returns the hex digest of the file at path, reading in fixed-size
// chunks so arbitrarily large media files can be hashed.
func Sum(algo Algorithm, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("could not open file for hashing: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := algo.newHash()
	buf := make([]byte, constants.ChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("could not hash %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Load reads a checksum list and returns relative path to hex digest.
// Entries recorded with ErrorMarker map to the empty string.
// Blank lines and `#` comments are skipped.
func Load(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open checksum list: %w", err)
	}
	defer func() { _ = f.Close() }()

	sums := make(map[string]string)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		digest, rel, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		rel = strings.TrimPrefix(strings.TrimSpace(rel), "*")
		if rel == "" {
			continue
		}

		if digest == ErrorMarker {
			sums[rel] = ""
			continue
		}
		sums[rel] = strings.ToLower(digest)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("could not read checksum list: %w", err)
	}

	return sums, nil
}

// Find locates a checksum list for a delivery directory.
// It looks for `checksums*.txt` in the directory root and in its operational
// log directory, preferring the lexically last match (the most recent stamp).
// An empty string is returned when no list exists.
func Find(dir string) (string, error) {
	var matches []string
	for _, d := range []string{dir, filepath.Join(dir, constants.LogDirName)} {
		m, err := filepath.Glob(filepath.Join(d, "checksums*.txt"))
		if err != nil {
			return "", fmt.Errorf("could not search for checksum lists: %v", err)
		}
		matches = append(matches, m...)
	}
	if len(matches) == 0 {
		return "", nil
	}

	slices.Sort(matches)
	return matches[len(matches)-1], nil
}

// Writer writes a checksum list progressively, so a crash mid-pass still
// leaves the digests computed so far on disk.
type Writer struct {
	f *os.File
}

// NewWriter creates the checksum list at path, writing one `#` comment line
// per header entry. Parent directories are created as needed.
func NewWriter(path string, headers ...string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("could not create checksum list directory: %v", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("could not create checksum list: %v", err)
	}

	for _, h := range headers {
		if _, err := fmt.Fprintf(f, "# %s\n", h); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("could not write checksum list header: %v", err)
		}
	}

	return &Writer{f: f}, nil
}

// Add records the digest for a relative path.
func (w *Writer) Add(digest, rel string) error {
	_, err := fmt.Fprintf(w.f, "%s  *%s\n", digest, rel)
	return err
}

// AddError records that no digest could be computed for a relative path.
func (w *Writer) AddError(rel string) error {
	return w.Add(ErrorMarker, rel)
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	return w.f.Close()
}

// WriteTree hashes every file under root from the rels list and writes the
// resulting checksum list to path. It returns the digests by relative path;
// unreadable files are recorded with ErrorMarker and an empty digest, and do
// not abort the pass. The progress callback, if non-nil, is invoked after
// every file with the number hashed so far.
func WriteTree(algo Algorithm, root, path string, rels []string, progress func(done, total int)) (map[string]string, error) {
	w, err := NewWriter(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = w.Close() }()

	sums := make(map[string]string, len(rels))
	for i, rel := range rels {
		digest, err := Sum(algo, filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			sums[rel] = ""
			if werr := w.AddError(rel); werr != nil {
				return nil, fmt.Errorf("could not append to checksum list: %v", werr)
			}
		} else {
			sums[rel] = digest
			if werr := w.Add(digest, rel); werr != nil {
				return nil, fmt.Errorf("could not append to checksum list: %v", werr)
			}
		}

		if progress != nil {
			progress(i+1, len(rels))
		}
	}

	return sums, w.Close()
}

// ListTree returns the forward-slash relative paths of all regular files
// under root, sorted, excluding any file whose base name matches one of the
// exclude prefixes.
func ListTree(root string, excludePrefixes ...string) ([]string, error) {
	var rels []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to access path: %w", err)
		}
		if d.IsDir() {
			return nil
		}
		for _, p := range excludePrefixes {
			if strings.HasPrefix(d.Name(), p) {
				return nil
			}
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rels = append(rels, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(rels)
	return rels, nil
}

// Summary is the outcome of comparing two checksum maps.
type Summary struct {
	Matched              int      `json:"matched"`
	Mismatched           []string `json:"mismatched,omitempty"`
	MissingInDestination []string `json:"missing_in_destination,omitempty"`
	ExtraInDestination   []string `json:"extra_in_destination,omitempty"`
}

// Clean reports whether the comparison found no differences.
func (s Summary) Clean() bool {
	return len(s.Mismatched) == 0 && len(s.MissingInDestination) == 0 && len(s.ExtraInDestination) == 0
}

// Compare diffs source digests against destination digests.
func Compare(src, dst map[string]string) Summary {
	var s Summary
	for rel, want := range src {
		got, ok := dst[rel]
		if !ok {
			s.MissingInDestination = append(s.MissingInDestination, rel)
			continue
		}
		if got != want {
			s.Mismatched = append(s.Mismatched, rel)
			continue
		}
		s.Matched++
	}
	for rel := range dst {
		if _, ok := src[rel]; !ok {
			s.ExtraInDestination = append(s.ExtraInDestination, rel)
		}
	}

	slices.Sort(s.Mismatched)
	slices.Sort(s.MissingInDestination)
	slices.Sort(s.ExtraInDestination)
	return s
}
