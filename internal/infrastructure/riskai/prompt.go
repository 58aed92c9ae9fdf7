package riskai

import (
	"fmt"
	"strings"

	"github.com/resper1965/ncrisis-sub000/internal/core/domain"
)

func buildAssessmentPrompt(d domain.Detection) string {
	var b strings.Builder
	b.WriteString("You are a data-protection risk analyst for Brazilian LGPD compliance.\n")
	b.WriteString("Assess the following PII detection and answer with a single JSON object only.\n\n")
	fmt.Fprintf(&b, "Document type: %s\n", d.DocType)
	fmt.Fprintf(&b, "Detected value: %s\n", d.Value)
	fmt.Fprintf(&b, "Source file: %s\n", d.SourceFile)
	fmt.Fprintf(&b, "Surrounding context: %q\n\n", d.Context)
	b.WriteString(`Respond with JSON fields:
{
  "is_valid": boolean (false if this looks like a false positive),
  "risk_level": "low" | "medium" | "high" | "critical",
  "confidence": number between 0 and 1,
  "reasoning": short explanation,
  "sensitivity_score": number between 0 and 10,
  "contextual_risk": short note on the surrounding context,
  "recommendations": array of short remediation strings
}`)
	return b.String()
}
