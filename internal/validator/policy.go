package validator

import (
	"fmt"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Rule identifiers recognized in a policy.
const (
	RuleChecksum = "checksum"
	RuleFormat   = "format"
	RuleMetadata = "metadata"
	RuleNaming   = "naming"
)

var knownRules = []string{RuleChecksum, RuleFormat, RuleMetadata, RuleNaming}

// Policy declares which rules apply to a batch and their parameters.
type Policy struct {
	// Rules lists the rules to apply, in the order results are reported.
	Rules []string `yaml:"rules"`

	Checksum struct {
		// Algorithm is the digest algorithm of the delivery checksum list.
		Algorithm string `yaml:"algorithm"`
	} `yaml:"checksum"`

	Format struct {
		// Allow maps a declared asset type (video, audio, image, text) to the
		// MIME types acceptable for it. Entries may be exact ("audio/wav") or
		// family wildcards ("image/*").
		Allow map[string][]string `yaml:"allow"`
	} `yaml:"format"`

	Metadata struct {
		// Required fields must be present and non-empty in an asset's
		// metadata sidecar; missing ones fail the rule.
		Required []string `yaml:"required"`
		// Optional fields produce a warning when absent.
		Optional []string `yaml:"optional"`
	} `yaml:"metadata"`
}

// DefaultPolicy returns the policy applied when none is configured:
// fixity and naming checks with SHA-256 sidecars.
func DefaultPolicy() Policy {
	var p Policy
	p.Rules = []string{RuleChecksum, RuleNaming}
	p.Checksum.Algorithm = "sha256"
	return p
}

// LoadPolicy reads a YAML policy file.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("could not read policy file: %w", err)
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("could not parse policy file %s: %w", path, err)
	}
	return p, nil
}

// Sanitize sets defaults and checks that the Policy is properly configured.
func (p *Policy) Sanitize(l *slog.Logger) error {
	if len(p.Rules) == 0 {
		p.Rules = DefaultPolicy().Rules
		l.Info("No rules configured, using defaults", "rules", p.Rules)
	}

	seen := make(map[string]bool, len(p.Rules))
	for _, r := range p.Rules {
		if !slices.Contains(knownRules, r) {
			return fmt.Errorf("unknown rule %q, recognized rules: %v", r, knownRules)
		}
		if seen[r] {
			return fmt.Errorf("rule %q listed more than once", r)
		}
		seen[r] = true
	}

	if p.Checksum.Algorithm == "" {
		p.Checksum.Algorithm = "sha256"
	}

	return nil
}

// Applies reports whether the given rule is part of the policy.
func (p Policy) Applies(rule string) bool {
	return slices.Contains(p.Rules, rule)
}
