package detection

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/resper1965/ncrisis-sub000/internal/core/domain"
)

// Policy tunes the engine without a rebuild: sensitivity keywords for risk
// escalation and optional per-type remediation overrides consumed by the
// rule-based enhancement fallback.
type Policy struct {
	SensitivityKeywords []string            `yaml:"sensitivity_keywords"`
	Recommendations     map[string][]string `yaml:"recommendations"`
}

func DefaultPolicy() Policy {
	return Policy{
		SensitivityKeywords: domain.DefaultSensitivityKeywords,
	}
}

// LoadPolicy reads a YAML policy file. An empty path yields the defaults;
// missing fields fall back to the defaults individually.
func LoadPolicy(path string) (Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read detection policy: %w", err)
	}

	var p Policy
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Policy{}, fmt.Errorf("parse detection policy: %w", err)
	}
	if len(p.SensitivityKeywords) == 0 {
		p.SensitivityKeywords = domain.DefaultSensitivityKeywords
	}
	return p, nil
}

// RecommendationsFor returns the policy override for a document type, or the
// built-in canned list.
func (p Policy) RecommendationsFor(t domain.DocumentType) []string {
	if recs, ok := p.Recommendations[string(t)]; ok && len(recs) > 0 {
		return recs
	}
	return domain.FallbackRecommendations(t)
}
