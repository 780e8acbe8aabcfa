// Package probe inspects file contents to determine what a file actually is,
// independently of its extension. Detection is magic-number based, so a WAV
// renamed to .mov is reported as audio/wav.
package probe

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Result is the outcome of probing one file.
type Result struct {
	// MIME is the detected media type without parameters, e.g. "video/quicktime".
	MIME string
	// Extension is the canonical extension for the detected type, with leading
	// dot, e.g. ".mov". Empty when the type has no well-known extension.
	Extension string
}

// File probes the file at path by content.
func File(path string) (Result, error) {
	m, err := mimetype.DetectFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("could not probe %s: %w", path, err)
	}

	mime, _, _ := strings.Cut(m.String(), ";")
	return Result{
		MIME:      strings.TrimSpace(mime),
		Extension: m.Extension(),
	}, nil
}

// Matches reports whether the result's MIME type matches pattern.
// A pattern is either an exact media type ("audio/wav") or a family
// wildcard ("video/*").
func (r Result) Matches(pattern string) bool {
	if family, ok := strings.CutSuffix(pattern, "/*"); ok {
		return strings.HasPrefix(r.MIME, family+"/")
	}
	return r.MIME == pattern
}

// MatchesExtension reports whether ext (with or without leading dot) is
// plausible for the detected type. mimetype knows one canonical extension per
// type; a small alias table covers the usual archival variants.
func (r Result) MatchesExtension(ext string) bool {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if ext == r.Extension {
		return true
	}

	aliases, ok := extensionAliases[r.Extension]
	if !ok {
		return false
	}
	for _, a := range aliases {
		if a == ext {
			return true
		}
	}
	return false
}

var extensionAliases = map[string][]string{
	".tiff": {".tif"},
	".jpg":  {".jpeg"},
	".aiff": {".aif"},
	".mov":  {".qt"},
	".txt":  {".md", ".csv", ".log"},
}
