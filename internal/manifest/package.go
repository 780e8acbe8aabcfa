package manifest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/archivetools/aqc/internal/fileutils"
	"github.com/ubuntu/decorate"
)

// PackageFile is one file entry in a package manifest. The digest is computed
// with the package's recorded algorithm.
type PackageFile struct {
	RelPath string `json:"rel_path"`
	Size    int64  `json:"size"`
	Digest  string `json:"digest,omitempty"`
}

// Package is the manifest of a hashed package: the inventory of its files
// with sizes and digests, written next to the checksum list it summarizes.
type Package struct {
	PackageName string        `json:"package_name"`
	Operator    string        `json:"operator,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	Stamp       string        `json:"stamp"`
	Algorithm   string        `json:"algorithm"`
	FileCount   int           `json:"file_count"`
	Files       []PackageFile `json:"files"`
	Checksums   string        `json:"checksums_file"`
	Complete    bool          `json:"complete"` // false when any file could not be hashed
}

// WritePackage persists a package manifest as a write-once file.
func WritePackage(p Package, path string) (err error) {
	defer decorate.OnError(&err, "could not write package manifest")

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return fileutils.WriteIfMissing(path, append(data, '\n'))
}

// WriteReceipt writes the plain-text transfer receipt archivists file with
// the physical media.
func WriteReceipt(path, packageName, operator string, createdAt time.Time, fileCount int, checksumsFile string) error {
	receipt := fmt.Sprintf(`Transfer receipt
Package: %s
Operator: %s
Created at: %s
Files hashed: %d
Checksums file: %s
`, packageName, operator, createdAt.Format(time.RFC3339), fileCount, checksumsFile)

	return fileutils.WriteIfMissing(path, []byte(receipt))
}
