// Package manifest is the implementation of the reporter component.
// A batch manifest is the persisted, append-only record of one QC run: once
// written it is never modified, so it can back chain-of-custody claims.
// Re-running a batch writes a new manifest; it never merges into an old one.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/archivetools/aqc/internal/constants"
	"github.com/archivetools/aqc/internal/fileutils"
	"github.com/archivetools/aqc/internal/validator"
	"github.com/google/uuid"
	"github.com/ubuntu/decorate"
)

// Overall batch verdicts.
const (
	OverallPass = "PASS"
	OverallFail = "FAIL"
)

// ErrManifestExists is returned when a manifest write would overwrite an existing manifest.
var ErrManifestExists = errors.New("a manifest already exists at this path")

// AssetRecord is the recorded outcome of all rules applied to one asset.
type AssetRecord struct {
	RelPath string             `json:"rel_path"`
	Type    string             `json:"type"`
	Size    int64              `json:"size"`
	Results []validator.Result `json:"results"`
}

// Batch is a batch manifest.
type Batch struct {
	ID          string    `json:"batch_id"`
	ToolVersion string    `json:"tool_version"`
	CreatedAt   time.Time `json:"created_at"`
	Operator    string    `json:"operator,omitempty"`
	Root        string    `json:"delivery_root"`
	Rules       []string  `json:"rules"`

	Assets []AssetRecord `json:"assets"`

	Counts  map[validator.Status]int `json:"counts"`
	Overall string                   `json:"overall"`
}

// New returns an empty batch manifest for a delivery.
func New(root, operator string, rules []string) Batch {
	return Batch{
		ID:          uuid.NewString(),
		ToolVersion: constants.Version,
		CreatedAt:   time.Now().Truncate(time.Second),
		Operator:    operator,
		Root:        root,
		Rules:       rules,
		Counts:      make(map[validator.Status]int),
	}
}

// Append adds an asset record and updates the status counts.
func (b *Batch) Append(rec AssetRecord) {
	b.Assets = append(b.Assets, rec)
	for _, r := range rec.Results {
		b.Counts[r.Status]++
	}
}

// Finalize sorts asset records and computes the overall verdict.
// A batch passes only when it has no fail and no error results; warnings do
// not fail a batch.
func (b *Batch) Finalize() {
	slices.SortFunc(b.Assets, func(x, y AssetRecord) int {
		return strings.Compare(x.RelPath, y.RelPath)
	})

	if b.Counts[validator.StatusFail] > 0 || b.Counts[validator.StatusError] > 0 {
		b.Overall = OverallFail
		return
	}
	b.Overall = OverallPass
}

// Clean reports whether the batch contains no fail, error, or warn results.
func (b Batch) Clean() bool {
	return b.Overall == OverallPass && b.Counts[validator.StatusWarn] == 0
}

// Write persists the batch manifest under the delivery's operational log
// directory as a write-once file and returns its path.
//
// The file name carries the batch creation time; if a manifest was already
// written within the same second, the next free timestamp is used. Existing
// manifests are never overwritten.
func Write(l *slog.Logger, b Batch, dir string) (path string, err error) {
	defer decorate.OnError(&err, "could not write batch manifest")

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return "", err
	}
	data = append(data, '\n')

	logDir := filepath.Join(dir, constants.LogDirName)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("could not create log directory: %v", err)
	}

	ts := b.CreatedAt.Unix()
	for attempt := 0; attempt < 10; attempt++ {
		path = filepath.Join(logDir, fmt.Sprintf("%s%d%s", constants.ManifestPrefix, ts+int64(attempt), constants.ManifestExt))
		err := fileutils.WriteIfMissing(path, data)
		if err == nil {
			l.Info("Batch manifest written", "file", path, "batch", b.ID)
			return path, nil
		}
		if !os.IsExist(err) {
			return "", err
		}
	}

	return "", ErrManifestExists
}

// Load reads a batch manifest from disk.
func Load(path string) (Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Batch{}, fmt.Errorf("could not read batch manifest: %w", err)
	}

	var b Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return Batch{}, fmt.Errorf("could not parse batch manifest %s: %w", path, err)
	}
	return b, nil
}

// GetAll returns the paths of all batch manifests for a delivery, sorted by
// name and therefore by creation time.
func GetAll(dir string) ([]string, error) {
	pattern := filepath.Join(dir, constants.LogDirName, constants.ManifestPrefix+"*"+constants.ManifestExt)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("could not list batch manifests: %v", err)
	}
	slices.Sort(matches)
	return matches, nil
}
