// Package validator is the implementation of the validator component.
// The validator applies the rules of a policy to each asset of a delivery and
// produces one terminal verdict per asset per applicable rule.
package validator

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"

	"github.com/archivetools/aqc/internal/checksum"
	"github.com/archivetools/aqc/internal/fileutils"
	"github.com/archivetools/aqc/internal/inventory"
	"github.com/archivetools/aqc/internal/probe"
	"github.com/ubuntu/decorate"
	"golang.org/x/text/unicode/norm"
)

// Status is the terminal verdict of one rule applied to one asset.
type Status string

// Verdict vocabulary. An unreadable input is an error, never a silent skip.
const (
	StatusPass  Status = "pass"
	StatusWarn  Status = "warn"
	StatusFail  Status = "fail"
	StatusError Status = "error"
)

// Result is the outcome of one rule applied to one asset.
type Result struct {
	Rule   string `json:"rule"`
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// ErrSanitizeError is returned when the policy is not properly configured in an unrecoverable manner.
var ErrSanitizeError = errors.New("validator is not properly configured")

// Prober inspects a file's contents.
type Prober interface {
	File(path string) (probe.Result, error)
}

type realProber struct{}

func (realProber) File(path string) (probe.Result, error) {
	return probe.File(path)
}

// Validator applies a policy to the assets of one delivery.
type Validator struct {
	policy Policy
	algo   checksum.Algorithm

	// sums is the delivery checksum list; nil when the delivery has none.
	sums map[string]string

	// deliveryMeta holds the delivery-level metadata.csv fields; nil when the
	// delivery has none. Assets without a JSON sidecar fall back to it.
	deliveryMeta map[string]string

	prober Prober
	log    *slog.Logger
}

type options struct {
	prober Prober
}

// Options represents an optional function to override Validator default values.
type Options func(*options)

var defaultOptions = options{
	prober: realProber{},
}

// New returns a Validator for the delivery rooted at dir.
//
// The delivery's checksum list, if any, is located and loaded at construction
// time so every asset verifies against the same snapshot of it. Sanitizes the
// policy; a policy that cannot be sanitized is an environment error and fails
// construction rather than producing per-asset noise.
func New(l *slog.Logger, p Policy, dir string, args ...Options) (*Validator, error) {
	if err := p.Sanitize(l); err != nil {
		return nil, errors.Join(ErrSanitizeError, err)
	}

	algo, err := checksum.ParseAlgorithm(p.Checksum.Algorithm)
	if err != nil {
		return nil, errors.Join(ErrSanitizeError, err)
	}

	opts := defaultOptions
	for _, opt := range args {
		opt(&opts)
	}

	v := &Validator{
		policy: p,
		algo:   algo,
		prober: opts.prober,
		log:    l,
	}

	if p.Applies(RuleChecksum) {
		listPath, err := checksum.Find(dir)
		if err != nil {
			return nil, err
		}
		if listPath == "" {
			l.Warn("No checksum list found for delivery, checksum rule will warn", "dir", dir)
		} else {
			sums, err := checksum.Load(listPath)
			if err != nil {
				return nil, err
			}
			v.sums = sums
			l.Info("Loaded delivery checksum list", "file", listPath, "entries", len(sums))
		}
	}

	if p.Applies(RuleMetadata) {
		v.deliveryMeta = loadDeliveryMetadata(l, dir)
	}

	return v, nil
}

// loadDeliveryMetadata reads the delivery-level metadata.csv, a header row of
// field names followed by one row of values, the layout SIP packaging
// produces. Returns nil when the delivery carries none.
func loadDeliveryMetadata(l *slog.Logger, dir string) map[string]string {
	for _, path := range []string{
		filepath.Join(dir, "metadata.csv"),
		filepath.Join(dir, "data", "metadata", "metadata.csv"),
	} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		content := fileutils.ReadFileLogError(path, l)
		if content == "" {
			continue
		}

		records, err := csv.NewReader(strings.NewReader(content)).ReadAll()
		if err != nil || len(records) < 2 {
			l.Warn("Could not parse delivery metadata", "file", path, "error", err)
			continue
		}

		fields := make(map[string]string, len(records[0]))
		for i, name := range records[0] {
			if i < len(records[1]) {
				fields[name] = records[1][i]
			}
		}
		l.Info("Loaded delivery metadata", "file", path, "fields", len(fields))
		return fields
	}
	return nil
}

// CheckAsset applies every applicable rule to the asset, returning results in
// policy rule order. Exactly one result is produced per applicable rule.
func (v *Validator) CheckAsset(a inventory.Asset) (results []Result, err error) {
	defer decorate.OnError(&err, "validation of %s failed", a.RelPath)

	for _, rule := range v.policy.Rules {
		var r Result
		switch rule {
		case RuleChecksum:
			r = v.checkChecksum(a)
		case RuleFormat:
			r = v.checkFormat(a)
		case RuleMetadata:
			r = v.checkMetadata(a)
		case RuleNaming:
			r = v.checkNaming(a)
		default:
			// Sanitize rejects unknown rules; reaching this is a programming error.
			return nil, fmt.Errorf("unknown rule %q", rule)
		}
		r.Rule = rule
		results = append(results, r)
	}

	return results, nil
}

func (v *Validator) checkChecksum(a inventory.Asset) Result {
	if v.sums == nil {
		return Result{Status: StatusWarn, Detail: "no checksum list found for delivery"}
	}

	want, ok := v.sums[a.RelPath]
	if !ok {
		return Result{Status: StatusWarn, Detail: "asset not present in checksum list"}
	}
	if want == "" {
		return Result{Status: StatusWarn, Detail: "checksum list records no digest for asset"}
	}

	got, err := checksum.Sum(v.algo, a.AbsPath)
	if err != nil {
		v.log.Warn("Could not hash asset", "asset", a.RelPath, "error", err)
		return Result{Status: StatusError, Detail: fmt.Sprintf("could not hash asset: %v", err)}
	}

	if got != want {
		return Result{Status: StatusFail, Detail: fmt.Sprintf("digest mismatch: expected %s, got %s", want, got)}
	}
	return Result{Status: StatusPass}
}

func (v *Validator) checkFormat(a inventory.Asset) Result {
	res, err := v.prober.File(a.AbsPath)
	if err != nil {
		v.log.Warn("Could not probe asset", "asset", a.RelPath, "error", err)
		return Result{Status: StatusError, Detail: fmt.Sprintf("could not probe asset: %v", err)}
	}

	if ext := strings.ToLower(extOf(a.RelPath)); ext != "" && !res.MatchesExtension(ext) {
		return Result{Status: StatusFail,
			Detail: fmt.Sprintf("extension %s does not match detected type %s", ext, res.MIME)}
	}

	allowed, ok := v.policy.Format.Allow[string(a.Type)]
	if !ok || len(allowed) == 0 {
		if a.Type == inventory.Unknown {
			return Result{Status: StatusWarn, Detail: fmt.Sprintf("unrecognized asset type, detected %s", res.MIME)}
		}
		// No allow-list configured for this type; extension agreement is all we can check.
		return Result{Status: StatusPass, Detail: fmt.Sprintf("detected %s", res.MIME)}
	}

	for _, pattern := range allowed {
		if res.Matches(pattern) {
			return Result{Status: StatusPass, Detail: fmt.Sprintf("detected %s", res.MIME)}
		}
	}
	return Result{Status: StatusFail,
		Detail: fmt.Sprintf("detected %s is not allowed for %s assets", res.MIME, a.Type)}
}

// metadataSidecar is the JSON document accompanying an asset, named
// `<asset>.json` next to it.
type metadataSidecar map[string]any

func (v *Validator) checkMetadata(a inventory.Asset) Result {
	data, err := os.ReadFile(a.AbsPath + ".json")
	if err != nil {
		if !os.IsNotExist(err) {
			return Result{Status: StatusError, Detail: fmt.Sprintf("could not read metadata sidecar: %v", err)}
		}
		if v.deliveryMeta == nil {
			return Result{Status: StatusWarn, Detail: "no metadata sidecar for asset"}
		}
		return v.metadataVerdict(func(field string) bool {
			return strings.TrimSpace(v.deliveryMeta[field]) != ""
		})
	}

	var meta metadataSidecar
	if err := json.Unmarshal(data, &meta); err != nil {
		return Result{Status: StatusFail, Detail: fmt.Sprintf("metadata sidecar is not a valid JSON object: %v", err)}
	}
	return v.metadataVerdict(func(field string) bool {
		return fieldPresent(meta, field)
	})
}

// metadataVerdict grades the policy's field lists against one field source.
func (v *Validator) metadataVerdict(present func(field string) bool) Result {
	var missing, missingOptional []string
	for _, field := range v.policy.Metadata.Required {
		if !present(field) {
			missing = append(missing, field)
		}
	}
	for _, field := range v.policy.Metadata.Optional {
		if !present(field) {
			missingOptional = append(missingOptional, field)
		}
	}

	if len(missing) > 0 {
		return Result{Status: StatusFail, Detail: fmt.Sprintf("missing required metadata fields: %s", strings.Join(missing, ", "))}
	}
	if len(missingOptional) > 0 {
		return Result{Status: StatusWarn, Detail: fmt.Sprintf("missing optional metadata fields: %s", strings.Join(missingOptional, ", "))}
	}
	return Result{Status: StatusPass}
}

func fieldPresent(meta metadataSidecar, field string) bool {
	val, ok := meta[field]
	if !ok {
		return false
	}
	if s, ok := val.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return val != nil
}

func (v *Validator) checkNaming(a inventory.Asset) Result {
	var problems []string

	base := a.RelPath
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}

	if !norm.NFC.IsNormalString(a.RelPath) {
		problems = append(problems, "file name is not NFC normalized")
	}
	for _, r := range base {
		if unicode.IsControl(r) {
			problems = append(problems, "file name contains control characters")
			break
		}
	}
	if a.Type == inventory.Unknown {
		problems = append(problems, "unrecognized file extension")
	}

	if len(problems) > 0 {
		return Result{Status: StatusWarn, Detail: strings.Join(problems, "; ")}
	}
	return Result{Status: StatusPass}
}

// Missing returns the relative paths recorded in the delivery checksum list
// for which no asset was scanned, sorted. These are assets the vendor
// declared but did not deliver; they must surface as errors, not vanish.
func (v *Validator) Missing(assets []inventory.Asset) []string {
	if v.sums == nil {
		return nil
	}

	scanned := make(map[string]bool, len(assets))
	for _, a := range assets {
		scanned[a.RelPath] = true
	}

	var missing []string
	for rel := range v.sums {
		if !scanned[rel] {
			missing = append(missing, rel)
		}
	}
	slices.Sort(missing)
	return missing
}

func extOf(rel string) string {
	if i := strings.LastIndex(rel, "."); i >= 0 && i > strings.LastIndex(rel, "/") {
		return rel[i:]
	}
	return ""
}

// WithProber overrides the content prober, for tests.
func WithProber(p Prober) Options {
	return func(o *options) {
		o.prober = p
	}
}
