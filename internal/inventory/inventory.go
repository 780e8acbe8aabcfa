// Package inventory is the implementation of the inventory scanner component.
// The scanner walks a delivery directory and enumerates the assets to be
// quality-controlled, classifying each by its declared media type.
package inventory

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/archivetools/aqc/internal/constants"
)

// Type is the declared media type of an asset, derived from its extension.
type Type string

// Declared asset types.
const (
	Video   Type = "video"
	Audio   Type = "audio"
	Image   Type = "image"
	Text    Type = "text"
	Unknown Type = "unknown"
)

// Asset is a single file in a delivery.
type Asset struct {
	RelPath string // forward-slash path relative to the delivery root
	AbsPath string
	Size    int64
	Type    Type
}

var typesByExt = map[string]Type{
	".mkv": Video, ".mov": Video, ".mp4": Video, ".avi": Video, ".mxf": Video, ".dv": Video,
	".wav": Audio, ".flac": Audio, ".mp3": Audio, ".aiff": Audio, ".aif": Audio,
	".tif": Image, ".tiff": Image, ".jpg": Image, ".jpeg": Image, ".png": Image, ".jp2": Image,
	".txt": Text, ".xml": Text, ".csv": Text, ".json": Text, ".md": Text, ".pdf": Text,
}

// TypeForPath returns the declared type for a file path based on its extension.
func TypeForPath(path string) Type {
	if t, ok := typesByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return t
	}
	return Unknown
}

// Extensions returns the recognized extensions for a declared type, sorted.
func Extensions(t Type) []string {
	var exts []string
	for ext, typ := range typesByExt {
		if typ == t {
			exts = append(exts, ext)
		}
	}
	slices.Sort(exts)
	return exts
}

// Scan walks the delivery rooted at dir and returns its assets in
// deterministic (lexical relative path) order.
//
// The operational log directory and checksum lists at the delivery root are
// not assets and are skipped. An unreadable root is an error; unreadable
// entries below it abort the scan so the failure is visible rather than
// producing a silently incomplete batch.
func Scan(l *slog.Logger, dir string) ([]Asset, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("could not read delivery root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("delivery root %s is not a directory", dir)
	}

	var assets []Asset
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to access path: %w", err)
		}

		if d.IsDir() {
			if d.Name() == constants.LogDirName && path != dir {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		// Checksum lists and QC manifests describe the delivery, they are not part of it.
		if !strings.Contains(rel, "/") &&
			(strings.HasPrefix(d.Name(), "checksums") && strings.HasSuffix(d.Name(), ".txt") ||
				strings.HasPrefix(d.Name(), constants.ManifestPrefix)) {
			l.Debug("Skipping operational file", "file", rel)
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", rel, err)
		}

		assets = append(assets, Asset{
			RelPath: rel,
			AbsPath: path,
			Size:    fi.Size(),
			Type:    TypeForPath(path),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(assets, func(a, b Asset) int {
		return strings.Compare(a.RelPath, b.RelPath)
	})

	l.Info("Delivery scanned", "dir", dir, "assets", len(assets))
	return assets, nil
}
