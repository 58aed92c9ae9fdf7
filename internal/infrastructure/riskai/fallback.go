package riskai

import (
	"fmt"

	"github.com/resper1965/ncrisis-sub000/internal/core/domain"
	"github.com/resper1965/ncrisis-sub000/internal/infrastructure/detection"
)

const fallbackConfidence = 0.7

// Fallback produces deterministic rule-based assessments from the same
// decision table the detection engine uses for baseline risk. It satisfies
// the same output contract as the external classifier.
type Fallback struct {
	policy detection.Policy
}

func NewFallback(policy detection.Policy) *Fallback {
	if len(policy.SensitivityKeywords) == 0 {
		policy.SensitivityKeywords = domain.DefaultSensitivityKeywords
	}
	return &Fallback{policy: policy}
}

func (f *Fallback) Assess(d domain.Detection) domain.RiskAssessment {
	level := domain.BaselineRisk(d.DocType)
	contextual := "sem indícios de contexto sensível"
	if domain.SensitiveContext(d.SourceFile, d.Context, f.policy.SensitivityKeywords) {
		level = level.Escalate()
		contextual = fmt.Sprintf("palavra-chave sensível próxima à ocorrência em %s", d.SourceFile)
	}

	return domain.RiskAssessment{
		IsValid:          true,
		Level:            level,
		Confidence:       fallbackConfidence,
		SensitivityScore: level.Score() / 10,
		Reasoning:        fmt.Sprintf("classificação por regras: documento %s com risco base %s", d.DocType, domain.BaselineRisk(d.DocType)),
		ContextualRisk:   contextual,
		Recommendations:  f.policy.RecommendationsFor(d.DocType),
	}
}
