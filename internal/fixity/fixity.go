// Package fixity generates checksum lists and package manifests for an
// already-copied package, establishing the baseline later fixity checks
// verify against. The pass is sequential and append-as-you-go: the checksum
// list exists on disk from the first hashed file.
package fixity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/archivetools/aqc/internal/checksum"
	"github.com/archivetools/aqc/internal/constants"
	"github.com/archivetools/aqc/internal/manifest"
	"github.com/ubuntu/decorate"
)

// ErrEmptyPackage is returned when the package root contains no files.
var ErrEmptyPackage = errors.New("no files found under package root")

// Config represents the data needed to run one fixity generation pass.
type Config struct {
	Dir           string // package root
	Operator      string
	Algorithm     string
	ProgressEvery int // log progress every N files; <=0 selects the default
}

// Sanitize sets defaults and checks that the Config is properly configured.
func (c *Config) Sanitize(l *slog.Logger) error {
	if c.Dir == "" {
		return errors.New("package root must be provided")
	}

	dir, err := filepath.Abs(c.Dir)
	if err != nil {
		return fmt.Errorf("could not resolve package root: %v", err)
	}
	c.Dir = dir

	if c.ProgressEvery <= 0 {
		c.ProgressEvery = constants.DefaultProgressInterval
	}

	if _, err := checksum.ParseAlgorithm(c.Algorithm); err != nil {
		return err
	}

	return nil
}

// Result describes the artifacts a fixity pass produced.
type Result struct {
	Manifest      manifest.Package
	ChecksumsPath string
	ManifestPath  string
	ReceiptPath   string
}

// Run hashes every file under the package root and writes the checksum list,
// package manifest, and transfer receipt into it. Files that cannot be read
// are recorded in the checksum list with an error marker and leave the
// manifest marked incomplete; they do not abort the pass.
func Run(ctx context.Context, l *slog.Logger, c Config) (res Result, err error) {
	defer decorate.OnError(&err, "fixity pass failed")

	if err := c.Sanitize(l); err != nil {
		return Result{}, err
	}

	algo, err := checksum.ParseAlgorithm(c.Algorithm)
	if err != nil {
		return Result{}, err
	}

	rels, err := checksum.ListTree(c.Dir, "checksums", constants.ManifestPrefix, "transfer_receipt_", "manifest_")
	if err != nil {
		return Result{}, err
	}
	if len(rels) == 0 {
		return Result{}, ErrEmptyPackage
	}

	now := time.Now()
	stamp := now.Format("20060102_150405")
	pkgName := filepath.Base(c.Dir)

	res.ChecksumsPath = filepath.Join(c.Dir, fmt.Sprintf("checksums_%s.txt", stamp))
	l.Info("Starting hashing pass", "package", pkgName, "files", len(rels), "algorithm", algo)

	w, err := checksum.NewWriter(res.ChecksumsPath,
		fmt.Sprintf("checksums pass started at %s", now.Format(time.RFC3339)),
		fmt.Sprintf("package: %s", pkgName),
		fmt.Sprintf("operator: %s", c.Operator),
	)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = w.Close() }()

	pkg := manifest.Package{
		PackageName: pkgName,
		Operator:    c.Operator,
		CreatedAt:   now.Truncate(time.Second),
		Stamp:       stamp,
		Algorithm:   string(algo),
		Checksums:   filepath.Base(res.ChecksumsPath),
		Complete:    true,
	}

	for i, rel := range rels {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		abs := filepath.Join(c.Dir, filepath.FromSlash(rel))
		file := manifest.PackageFile{RelPath: rel}
		if fi, err := os.Stat(abs); err == nil {
			file.Size = fi.Size()
		}

		digest, err := checksum.Sum(algo, abs)
		if err != nil {
			l.Warn("Could not hash file", "file", rel, "error", err)
			pkg.Complete = false
			if werr := w.AddError(rel); werr != nil {
				return Result{}, werr
			}
		} else {
			file.Digest = digest
			if werr := w.Add(digest, rel); werr != nil {
				return Result{}, werr
			}
		}
		pkg.Files = append(pkg.Files, file)

		if (i+1)%c.ProgressEvery == 0 || i+1 == len(rels) {
			l.Info("Hashing progress", "done", i+1, "total", len(rels))
		}
	}
	if err := w.Close(); err != nil {
		return Result{}, fmt.Errorf("could not close checksum list: %v", err)
	}

	pkg.FileCount = len(pkg.Files)
	res.Manifest = pkg

	res.ManifestPath = filepath.Join(c.Dir, fmt.Sprintf("manifest_%s.json", stamp))
	if err := manifest.WritePackage(pkg, res.ManifestPath); err != nil {
		return Result{}, err
	}

	res.ReceiptPath = filepath.Join(c.Dir, fmt.Sprintf("transfer_receipt_%s.txt", stamp))
	if err := manifest.WriteReceipt(res.ReceiptPath, pkgName, c.Operator, pkg.CreatedAt, pkg.FileCount, pkg.Checksums); err != nil {
		return Result{}, err
	}

	l.Info("Fixity pass complete", "checksums", res.ChecksumsPath, "manifest", res.ManifestPath)
	return res, nil
}
