package ports

import (
	"context"
	"io"

	"github.com/resper1965/ncrisis-sub000/internal/core/domain"
)

// SessionRepository persists session state, per-file results and verdicts.
type SessionRepository interface {
	CreateSession(ctx context.Context, sub *domain.ArchiveSubmission) error
	UpdateStage(ctx context.Context, sessionID string, stage domain.SessionStage, errMessage string) error
	GetStage(ctx context.Context, sessionID string) (domain.SessionStage, error)
	SetExpectedFiles(ctx context.Context, sessionID string, n int) error
	SaveFileResult(ctx context.Context, result *domain.FileProcessingResult) error
	ListFileResults(ctx context.Context, sessionID string) ([]domain.FileProcessingResult, error)
	CountFileResults(ctx context.Context, sessionID string) (done, expected int, err error)
	// ClaimAggregation transitions awaiting_files -> aggregating exactly once;
	// redelivered jobs racing on it get false.
	ClaimAggregation(ctx context.Context, sessionID string) (bool, error)
	SaveVerdict(ctx context.Context, verdict *domain.SessionVerdict) error
}

// ObjectStorage stores submitted archives until extraction reclaims them.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// ArchiveExtractor safely unpacks a stored archive into validated entries.
type ArchiveExtractor interface {
	Extract(ctx context.Context, storageKey string) ([]domain.ExtractedEntry, error)
}

// PIIDetector finds validated PII occurrences in plain text.
type PIIDetector interface {
	Detect(text, filename string) []domain.Detection
}

// RiskEnhancer refines detections into risk assessments. It never fails:
// unavailable classification falls back to rule-based values.
type RiskEnhancer interface {
	EnhanceAll(ctx context.Context, detections []domain.Detection) []domain.RiskAssessment
}

// VirusScanner is the black-box antivirus collaborator.
type VirusScanner interface {
	Scan(ctx context.Context, data io.Reader) (domain.ScanReport, error)
}

// JobQueue carries archive jobs (serial) and file jobs (concurrent) with
// at-least-once delivery. Backend is chosen at construction.
type JobQueue interface {
	PublishArchiveJob(ctx context.Context, sub domain.ArchiveSubmission) error
	SubscribeArchiveJobs(ctx context.Context, handler func(context.Context, domain.ArchiveSubmission) error) error
	PublishFileJob(ctx context.Context, job domain.FileJob) error
	SubscribeFileJobs(ctx context.Context, handler func(context.Context, domain.FileJob) error) error
}

// ProgressNotifier pushes best-effort stage transitions to per-session
// subscribers. Delivery is fire-and-forget.
type ProgressNotifier interface {
	Notify(ctx context.Context, update domain.ProgressUpdate) error
}

// WorkflowHook triggers the downstream workflow after completion. Failures
// never affect the session's terminal state.
type WorkflowHook interface {
	SessionCompleted(ctx context.Context, sessionID string) error
}
