package validator_test

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/archivetools/aqc/internal/inventory"
	"github.com/archivetools/aqc/internal/probe"
	"github.com/archivetools/aqc/internal/testutils"
	"github.com/archivetools/aqc/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sha256Hex(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// fakeProber reports a fixed MIME type per absolute path base name.
type fakeProber struct {
	mimes map[string]string
	err   error
}

func (p fakeProber) File(path string) (probe.Result, error) {
	if p.err != nil {
		return probe.Result{}, p.err
	}
	mime, ok := p.mimes[filepath.Base(path)]
	if !ok {
		mime = "application/octet-stream"
	}
	return probe.Result{MIME: mime, Extension: extensionFor(mime)}, nil
}

func extensionFor(mime string) string {
	switch mime {
	case "audio/wav":
		return ".wav"
	case "image/tiff":
		return ".tif"
	default:
		return ""
	}
}

func asset(dir, rel string) inventory.Asset {
	return inventory.Asset{
		RelPath: rel,
		AbsPath: filepath.Join(dir, filepath.FromSlash(rel)),
		Type:    inventory.TypeForPath(rel),
	}
}

func TestCheckAssetChecksumRule(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		content  string
		listed   string // digest recorded in the checksum list; "content" records the real one
		unlisted bool   // asset absent from the list
		noList   bool   // delivery has no checksum list at all

		want validator.Status
	}{
		"Matching digest passes":            {content: "good audio", listed: "content", want: validator.StatusPass},
		"Mismatching digest fails":          {content: "tampered audio", listed: sha256Hex("original audio"), want: validator.StatusFail},
		"Asset missing from list warns":     {content: "x", unlisted: true, want: validator.StatusWarn},
		"Error marker in list warns":        {content: "x", listed: "ERROR_NO_SHA", want: validator.StatusWarn},
		"Delivery with no list warns":       {content: "x", noList: true, want: validator.StatusWarn},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			testutils.WriteFiles(t, dir, map[string]string{"side_a.wav": tc.content})

			if !tc.noList {
				digest := tc.listed
				if digest == "content" {
					digest = sha256Hex(tc.content)
				}
				list := ""
				if !tc.unlisted {
					list = fmt.Sprintf("%s  *side_a.wav\n", digest)
				}
				testutils.WriteFiles(t, dir, map[string]string{"checksums_20240101.txt": list})
			}

			var p validator.Policy
			p.Rules = []string{validator.RuleChecksum}

			v, err := validator.New(slog.Default(), p, dir)
			require.NoError(t, err, "New should not have failed")

			results, err := v.CheckAsset(asset(dir, "side_a.wav"))
			require.NoError(t, err, "CheckAsset should not have failed")
			require.Len(t, results, 1, "exactly one result per applicable rule")
			assert.Equal(t, validator.RuleChecksum, results[0].Rule)
			assert.Equal(t, tc.want, results[0].Status, "unexpected status: %s", results[0].Detail)
		})
	}
}

func TestCheckAssetFormatRule(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		rel      string
		mime     string
		allow    map[string][]string
		probeErr error

		want validator.Status
	}{
		"Allowed exact MIME passes": {
			rel: "side_a.wav", mime: "audio/wav",
			allow: map[string][]string{"audio": {"audio/wav"}},
			want:  validator.StatusPass,
		},
		"Allowed family wildcard passes": {
			rel: "scan.tif", mime: "image/tiff",
			allow: map[string][]string{"image": {"image/*"}},
			want:  validator.StatusPass,
		},
		"Disallowed MIME fails": {
			rel: "side_a.wav", mime: "audio/wav",
			allow: map[string][]string{"audio": {"audio/flac"}},
			want:  validator.StatusFail,
		},
		"Extension disagreeing with content fails": {
			rel:  "scan.tif",
			mime: "audio/wav",
			want: validator.StatusFail,
		},
		"No allow-list for type passes on extension agreement": {
			rel: "side_a.wav", mime: "audio/wav",
			want: validator.StatusPass,
		},
		"Probe error is an error": {
			rel: "side_a.wav", probeErr: fmt.Errorf("unreadable"),
			want: validator.StatusError,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			testutils.WriteFiles(t, dir, map[string]string{tc.rel: "bytes"})

			var p validator.Policy
			p.Rules = []string{validator.RuleFormat}
			p.Format.Allow = tc.allow

			prober := fakeProber{mimes: map[string]string{filepath.Base(tc.rel): tc.mime}, err: tc.probeErr}
			v, err := validator.New(slog.Default(), p, dir, validator.WithProber(prober))
			require.NoError(t, err, "New should not have failed")

			results, err := v.CheckAsset(asset(dir, tc.rel))
			require.NoError(t, err, "CheckAsset should not have failed")
			require.Len(t, results, 1)
			assert.Equal(t, tc.want, results[0].Status, "unexpected status: %s", results[0].Detail)
		})
	}
}

func TestCheckAssetMetadataRule(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		sidecar     string
		deliveryCSV string
		required    []string
		optional    []string

		want validator.Status
	}{
		"All required fields present passes": {
			sidecar:  `{"title": "Tape 42", "date": "2024-01-01"}`,
			required: []string{"title", "date"},
			want:     validator.StatusPass,
		},
		"Missing required field fails": {
			sidecar:  `{"title": "Tape 42"}`,
			required: []string{"title", "date"},
			want:     validator.StatusFail,
		},
		"Empty required field fails": {
			sidecar:  `{"title": "  "}`,
			required: []string{"title"},
			want:     validator.StatusFail,
		},
		"Missing optional field warns": {
			sidecar:  `{"title": "Tape 42"}`,
			required: []string{"title"},
			optional: []string{"notes"},
			want:     validator.StatusWarn,
		},
		"No sidecar warns": {
			want: validator.StatusWarn,
		},
		"Invalid JSON fails": {
			sidecar: `{not json`,
			want:    validator.StatusFail,
		},
		"Delivery metadata.csv satisfies required fields": {
			deliveryCSV: "title,date\nTape 42,2024-01-01\n",
			required:    []string{"title", "date"},
			want:        validator.StatusPass,
		},
		"Delivery metadata.csv missing required field fails": {
			deliveryCSV: "title\nTape 42\n",
			required:    []string{"title", "date"},
			want:        validator.StatusFail,
		},
		"Delivery metadata.csv with empty required value fails": {
			deliveryCSV: "title,date\nTape 42,\n",
			required:    []string{"title", "date"},
			want:        validator.StatusFail,
		},
		"Sidecar takes precedence over delivery metadata.csv": {
			sidecar:     `{"title": "Tape 42"}`,
			deliveryCSV: "title,date\nTape 42,2024-01-01\n",
			required:    []string{"title", "date"},
			want:        validator.StatusFail,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			files := map[string]string{"side_a.wav": "bytes"}
			if tc.sidecar != "" {
				files["side_a.wav.json"] = tc.sidecar
			}
			if tc.deliveryCSV != "" {
				files["metadata.csv"] = tc.deliveryCSV
			}
			testutils.WriteFiles(t, dir, files)

			var p validator.Policy
			p.Rules = []string{validator.RuleMetadata}
			p.Metadata.Required = tc.required
			p.Metadata.Optional = tc.optional

			v, err := validator.New(slog.Default(), p, dir)
			require.NoError(t, err, "New should not have failed")

			results, err := v.CheckAsset(asset(dir, "side_a.wav"))
			require.NoError(t, err, "CheckAsset should not have failed")
			require.Len(t, results, 1)
			assert.Equal(t, tc.want, results[0].Status, "unexpected status: %s", results[0].Detail)
		})
	}
}

func TestCheckAssetNamingRule(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		rel string

		want validator.Status
	}{
		"Clean recognized name passes": {rel: "objects/side_a.wav", want: validator.StatusPass},
		"Unknown extension warns":      {rel: "capture.bin", want: validator.StatusWarn},
		"Non NFC name warns":           {rel: "cafe\u0301.wav", want: validator.StatusWarn},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			testutils.WriteFiles(t, dir, map[string]string{tc.rel: "bytes"})

			var p validator.Policy
			p.Rules = []string{validator.RuleNaming}

			v, err := validator.New(slog.Default(), p, dir)
			require.NoError(t, err, "New should not have failed")

			results, err := v.CheckAsset(asset(dir, tc.rel))
			require.NoError(t, err, "CheckAsset should not have failed")
			require.Len(t, results, 1)
			assert.Equal(t, tc.want, results[0].Status, "unexpected status: %s", results[0].Detail)
		})
	}
}

func TestMissing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutils.WriteFiles(t, dir, map[string]string{
		"present.wav": "here",
		"checksums_20240101.txt": fmt.Sprintf("%s  *present.wav\n%s  *gone_b.wav\n%s  *gone_a.wav\n",
			sha256Hex("here"), sha256Hex("b"), sha256Hex("a")),
	})

	var p validator.Policy
	p.Rules = []string{validator.RuleChecksum}

	v, err := validator.New(slog.Default(), p, dir)
	require.NoError(t, err, "New should not have failed")

	missing := v.Missing([]inventory.Asset{asset(dir, "present.wav")})
	assert.Equal(t, []string{"gone_a.wav", "gone_b.wav"}, missing, "undelivered assets should be reported sorted")
}

func TestNewRejectsBadPolicy(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		rules []string
		algo  string
	}{
		"Unknown rule":          {rules: []string{"telepathy"}},
		"Duplicated rule":       {rules: []string{validator.RuleNaming, validator.RuleNaming}},
		"Unsupported algorithm": {rules: []string{validator.RuleChecksum}, algo: "crc32"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var p validator.Policy
			p.Rules = tc.rules
			p.Checksum.Algorithm = tc.algo

			_, err := validator.New(slog.Default(), p, t.TempDir())
			require.ErrorIs(t, err, validator.ErrSanitizeError, "New should reject the policy")
		})
	}
}
