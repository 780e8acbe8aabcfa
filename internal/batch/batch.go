// Package batch composes the QC pipeline: scan a delivery, validate every
// asset against the policy, and persist the batch manifest. One linear pass,
// no retries; per-asset failures are recorded and the batch continues.
package batch

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/archivetools/aqc/internal/inventory"
	"github.com/archivetools/aqc/internal/manifest"
	"github.com/archivetools/aqc/internal/validator"
	"github.com/ubuntu/decorate"
)

// ErrSanitizeError is returned when the Config is not properly configured in an unrecoverable manner.
var ErrSanitizeError = errors.New("batch is not properly configured")

// Config represents the data needed to run one QC batch.
type Config struct {
	Dir        string // delivery root
	PolicyPath string // optional YAML policy; empty selects the default policy
	Operator   string // recorded in the manifest, may be empty
}

// Sanitize checks that the Config is properly configured and makes Dir absolute.
func (c *Config) Sanitize(l *slog.Logger) error {
	if c.Dir == "" {
		return errors.New("delivery directory must be provided")
	}

	dir, err := filepath.Abs(c.Dir)
	if err != nil {
		return fmt.Errorf("could not resolve delivery directory: %v", err)
	}
	c.Dir = dir

	if c.Operator == "" {
		l.Info("No operator provided, manifest will not record one")
	}

	return nil
}

// Run executes the pipeline for one delivery and returns the finalized batch
// manifest and the path it was written to.
//
// Environment errors (unreadable delivery root, invalid policy) abort the
// run. Per-asset problems become results in the manifest instead.
func Run(l *slog.Logger, c Config, args ...validator.Options) (b manifest.Batch, path string, err error) {
	defer decorate.OnError(&err, "QC batch failed")

	if err := c.Sanitize(l); err != nil {
		return manifest.Batch{}, "", errors.Join(ErrSanitizeError, err)
	}

	policy := validator.DefaultPolicy()
	if c.PolicyPath != "" {
		if policy, err = validator.LoadPolicy(c.PolicyPath); err != nil {
			return manifest.Batch{}, "", err
		}
	}

	v, err := validator.New(l, policy, c.Dir, args...)
	if err != nil {
		return manifest.Batch{}, "", err
	}

	assets, err := inventory.Scan(l, c.Dir)
	if err != nil {
		return manifest.Batch{}, "", err
	}

	b = manifest.New(c.Dir, c.Operator, policy.Rules)
	for _, a := range assets {
		results, err := v.CheckAsset(a)
		if err != nil {
			return manifest.Batch{}, "", err
		}
		b.Append(manifest.AssetRecord{
			RelPath: a.RelPath,
			Type:    string(a.Type),
			Size:    a.Size,
			Results: results,
		})
	}

	// Assets declared in the checksum list but absent from disk.
	for _, rel := range v.Missing(assets) {
		l.Warn("Asset in checksum list is missing from delivery", "asset", rel)
		b.Append(manifest.AssetRecord{
			RelPath: rel,
			Type:    string(inventory.TypeForPath(rel)),
			Results: []validator.Result{{
				Rule:   validator.RuleChecksum,
				Status: validator.StatusError,
				Detail: "file missing from delivery",
			}},
		})
	}

	b.Finalize()

	path, err = manifest.Write(l, b, c.Dir)
	if err != nil {
		return manifest.Batch{}, "", err
	}

	return b, path, nil
}
