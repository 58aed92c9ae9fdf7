package riskai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/resper1965/ncrisis-sub000/internal/core/domain"
)

// Client talks to the external risk-classification endpoint. The endpoint is
// optional: an empty base URL means the enhancer runs fallback-only.
type Client struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, model, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// classification is the single decode point for the external response shape.
// Nothing beyond this struct is ever trusted from the wire.
type classification struct {
	IsValid          *bool    `json:"is_valid"`
	RiskLevel        string   `json:"risk_level"`
	Confidence       float64  `json:"confidence"`
	Reasoning        string   `json:"reasoning"`
	SensitivityScore float64  `json:"sensitivity_score"`
	ContextualRisk   string   `json:"contextual_risk"`
	Recommendations  []string `json:"recommendations"`
}

func (c *Client) Assess(ctx context.Context, d domain.Detection) (domain.RiskAssessment, error) {
	respText, err := c.generateJSON(ctx, buildAssessmentPrompt(d))
	if err != nil {
		return domain.RiskAssessment{}, err
	}

	var result classification
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &result); err != nil {
		return domain.RiskAssessment{}, fmt.Errorf("parse classification json: %w", err)
	}
	return result.toAssessment(d), nil
}

func (r classification) toAssessment(d domain.Detection) domain.RiskAssessment {
	isValid := true
	if r.IsValid != nil {
		isValid = *r.IsValid
	}

	level := parseRiskLevel(r.RiskLevel)
	if level == "" {
		level = domain.BaselineRisk(d.DocType)
	}

	recs := r.Recommendations
	if recs == nil {
		recs = []string{}
	}

	return domain.RiskAssessment{
		IsValid:          isValid,
		Level:            level,
		Confidence:       clamp(r.Confidence, 0, 1),
		SensitivityScore: clamp(r.SensitivityScore, 0, 10),
		Reasoning:        strings.TrimSpace(r.Reasoning),
		ContextualRisk:   strings.TrimSpace(r.ContextualRisk),
		Recommendations:  recs,
	}
}

func parseRiskLevel(raw string) domain.RiskLevel {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "low", "baixo":
		return domain.RiskLow
	case "medium", "medio", "médio":
		return domain.RiskMedium
	case "high", "alto":
		return domain.RiskHigh
	case "critical", "critico", "crítico":
		return domain.RiskCritical
	default:
		return ""
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (c *Client) generateJSON(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.model,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "assess"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
