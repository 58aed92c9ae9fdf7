package domain

import "time"

type SessionStage string

const (
	StageReceived      SessionStage = "received"
	StageValidating    SessionStage = "validating"
	StageScanning      SessionStage = "scanning"
	StageExtracting    SessionStage = "extracting"
	StageFanningOut    SessionStage = "fanning_out"
	StageAwaitingFiles SessionStage = "awaiting_files"
	StageAggregating   SessionStage = "aggregating"
	StageCompleted     SessionStage = "completed"
	StageFailed        SessionStage = "failed"
	StageCancelled     SessionStage = "cancelled"
)

// Terminal reports whether no further transitions are allowed from the stage.
func (s SessionStage) Terminal() bool {
	return s == StageCompleted || s == StageFailed || s == StageCancelled
}

// ArchiveSubmission identifies one uploaded archive. It is immutable; the
// stored archive itself is reclaimed once extraction finishes, whatever the
// outcome.
type ArchiveSubmission struct {
	SessionID    string    `json:"session_id"`
	OriginalName string    `json:"original_name"`
	StorageKey   string    `json:"storage_key"`
	MimeType     string    `json:"mime_type"`
	SizeBytes    int64     `json:"size_bytes"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// ExtractedEntry is one file pulled out of an archive, with sizes measured
// from the bytes actually read rather than from archive metadata.
type ExtractedEntry struct {
	Path             string
	Text             string
	UncompressedSize int64
	CompressedSize   int64
	Ratio            float64
}

// ScanReport is the antivirus collaborator's answer for one stored archive.
type ScanReport struct {
	IsInfected bool     `json:"is_infected"`
	Signatures []string `json:"signatures,omitempty"`
}

// ProgressUpdate is a best-effort, fire-and-forget stage notification scoped
// to one session.
type ProgressUpdate struct {
	SessionID string `json:"session_id"`
	Stage     string `json:"stage"`
	Percent   int    `json:"percent"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
}

const (
	ProgressValidating = "validating"
	ProgressScanning   = "scanning"
	ProgressExtracting = "extracting"
	ProgressProcessing = "processing"
	ProgressComplete   = "complete"
	ProgressError      = "error"
)

// SessionVerdict is the pipeline's final output for one submission.
type SessionVerdict struct {
	SessionID       string    `json:"session_id"`
	OverallRisk     RiskLevel `json:"overall_risk"`
	Score           float64   `json:"score"`
	HighRiskFiles   []string  `json:"high_risk_files"`
	Recommendations []string  `json:"recommendations"`
	TotalFiles      int       `json:"total_files"`
	FailedFiles     int       `json:"failed_files"`
	TotalDetections int       `json:"total_detections"`
	FalsePositives  int       `json:"false_positives"`
	CompletedAt     time.Time `json:"completed_at"`
}
