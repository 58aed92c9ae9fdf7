package domain

import "time"

type DocumentType string

const (
	DocTypeFullName DocumentType = "nome_completo"
	DocTypeCPF      DocumentType = "cpf"
	DocTypeCNPJ     DocumentType = "cnpj"
	DocTypeRG       DocumentType = "rg"
	DocTypeCEP      DocumentType = "cep"
	DocTypeEmail    DocumentType = "email"
	DocTypePhone    DocumentType = "telefone"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Value returns the ordering rank for worst-of comparisons.
func (r RiskLevel) Value() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskCritical:
		return 4
	default:
		return 0
	}
}

// Score returns the numeric weight used by the session score.
func (r RiskLevel) Score() float64 {
	switch r {
	case RiskLow:
		return 25
	case RiskMedium:
		return 50
	case RiskHigh:
		return 75
	case RiskCritical:
		return 100
	default:
		return 0
	}
}

// Escalate raises the level by one step, saturating at critical.
func (r RiskLevel) Escalate() RiskLevel {
	switch r {
	case RiskLow:
		return RiskMedium
	case RiskMedium:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// WorstOf returns the higher-ranked of two levels.
func WorstOf(a, b RiskLevel) RiskLevel {
	if b.Value() > a.Value() {
		return b
	}
	return a
}

// Detection is one validated PII occurrence. The value has already passed
// the document type's validator; invalid matches are never materialized.
type Detection struct {
	Subject    string       `json:"subject"`
	DocType    DocumentType `json:"doc_type"`
	Value      string       `json:"value"`
	SourceFile string       `json:"source_file"`
	Offset     int          `json:"offset"`
	Context    string       `json:"context"`
	Risk       RiskLevel    `json:"risk"`
}

// RiskAssessment is always present for a detection: either the external
// classifier's answer or the rule-based fallback, indistinguishable by shape.
type RiskAssessment struct {
	IsValid          bool      `json:"is_valid"`
	Level            RiskLevel `json:"risk_level"`
	Confidence       float64   `json:"confidence"`
	SensitivityScore float64   `json:"sensitivity_score"`
	Reasoning        string    `json:"reasoning"`
	ContextualRisk   string    `json:"contextual_risk"`
	Recommendations  []string  `json:"recommendations"`
}

// FileProcessingResult aggregates one entry's detections and assessments.
// Assessments[i] belongs to Detections[i]. Immutable once built.
type FileProcessingResult struct {
	SessionID      string           `json:"session_id"`
	Filename       string           `json:"filename"`
	Detections     []Detection      `json:"detections"`
	Assessments    []RiskAssessment `json:"assessments"`
	RiskCounts     map[RiskLevel]int `json:"risk_counts"`
	FalsePositives int              `json:"false_positives"`
	Attempts       int              `json:"attempts"`
	Duration       time.Duration    `json:"duration"`
	Error          string           `json:"error,omitempty"`
}

// Failed reports whether the file unit ended in terminal failure.
func (r *FileProcessingResult) Failed() bool { return r.Error != "" }
