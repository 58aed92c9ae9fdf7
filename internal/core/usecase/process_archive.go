package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/resper1965/ncrisis-sub000/internal/core/domain"
	"github.com/resper1965/ncrisis-sub000/internal/core/ports"
)

// ProcessArchiveUseCase drives one submission through the session state
// machine up to the fan-out boundary. Archive-level failures are terminal:
// a corrupt or adversarial archive is rejected once, deterministically.
type ProcessArchiveUseCase struct {
	repo            ports.SessionRepository
	storage         ports.ObjectStorage
	extractor       ports.ArchiveExtractor
	scanner         ports.VirusScanner
	queue           ports.JobQueue
	notifier        ports.ProgressNotifier
	maxArchiveBytes int64
}

func NewProcessArchiveUseCase(
	repo ports.SessionRepository,
	storage ports.ObjectStorage,
	extractor ports.ArchiveExtractor,
	scanner ports.VirusScanner,
	queue ports.JobQueue,
	notifier ports.ProgressNotifier,
	maxArchiveBytes int64,
) *ProcessArchiveUseCase {
	return &ProcessArchiveUseCase{
		repo:            repo,
		storage:         storage,
		extractor:       extractor,
		scanner:         scanner,
		queue:           queue,
		notifier:        notifier,
		maxArchiveBytes: maxArchiveBytes,
	}
}

// ProcessArchive returns an error only for infrastructure failures, which
// the queue redelivers. Terminal rejections (validation, infected archive,
// extraction limits) mark the session failed and return nil.
func (uc *ProcessArchiveUseCase) ProcessArchive(ctx context.Context, sub domain.ArchiveSubmission) error {
	if done, err := uc.alreadyTerminal(ctx, sub.SessionID); err != nil || done {
		return err
	}

	if err := uc.validate(ctx, sub); err != nil {
		return uc.failSession(ctx, sub, domain.ProgressValidating, err)
	}

	if err := uc.scanForViruses(ctx, sub); err != nil {
		if domain.IsKind(err, domain.ErrValidation) {
			return uc.failSession(ctx, sub, domain.ProgressScanning, err)
		}
		return err
	}

	entries, err := uc.extract(ctx, sub)
	if err != nil {
		if domain.IsKind(err, domain.ErrValidation) {
			return uc.failSession(ctx, sub, domain.ProgressValidating, err)
		}
		if domain.IsKind(err, domain.ErrExtraction) {
			return uc.failSession(ctx, sub, domain.ProgressExtracting, err)
		}
		return err
	}
	uc.reclaim(ctx, sub)

	return uc.fanOut(ctx, sub, entries)
}

// CancelSession stops further file-job processing for the session. In-flight
// jobs finish on their own; no verdict is emitted afterwards.
func (uc *ProcessArchiveUseCase) CancelSession(ctx context.Context, sessionID string) error {
	stage, err := uc.repo.GetStage(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session stage: %w", err)
	}
	if stage.Terminal() {
		return domain.WrapError(domain.ErrValidation, "cancel session",
			fmt.Errorf("session already %s", stage))
	}
	if err := uc.repo.UpdateStage(ctx, sessionID, domain.StageCancelled, "cancelled by operator"); err != nil {
		return fmt.Errorf("mark session cancelled: %w", err)
	}
	return nil
}

func (uc *ProcessArchiveUseCase) alreadyTerminal(ctx context.Context, sessionID string) (bool, error) {
	stage, err := uc.repo.GetStage(ctx, sessionID)
	if err != nil {
		if domain.IsKind(err, domain.ErrSessionNotFound) {
			slog.Warn("archive job for unknown session dropped", "session_id", sessionID)
			return true, nil
		}
		return false, fmt.Errorf("load session stage: %w", err)
	}
	// Redelivered job for a session another worker already finished.
	return stage.Terminal(), nil
}

func (uc *ProcessArchiveUseCase) validate(ctx context.Context, sub domain.ArchiveSubmission) error {
	if err := uc.transition(ctx, sub.SessionID, domain.StageValidating, domain.ProgressValidating, 5, "validating submission"); err != nil {
		return err
	}
	if uc.maxArchiveBytes > 0 && sub.SizeBytes > uc.maxArchiveBytes {
		return domain.WrapError(domain.ErrValidation, "validate submission",
			fmt.Errorf("archive size %d exceeds limit %d", sub.SizeBytes, uc.maxArchiveBytes))
	}
	return nil
}

func (uc *ProcessArchiveUseCase) scanForViruses(ctx context.Context, sub domain.ArchiveSubmission) error {
	if err := uc.transition(ctx, sub.SessionID, domain.StageScanning, domain.ProgressScanning, 15, "antivirus scan"); err != nil {
		return err
	}

	reader, err := uc.storage.Open(ctx, sub.StorageKey)
	if err != nil {
		return domain.WrapError(domain.ErrInfrastructure, "open archive for scan", err)
	}
	defer reader.Close()

	report, err := uc.scanner.Scan(ctx, reader)
	if err != nil {
		return domain.WrapError(domain.ErrInfrastructure, "antivirus scan", err)
	}
	if report.IsInfected {
		return domain.WrapError(domain.ErrValidation, "antivirus scan",
			fmt.Errorf("archive infected: %v", report.Signatures))
	}
	return nil
}

func (uc *ProcessArchiveUseCase) extract(ctx context.Context, sub domain.ArchiveSubmission) ([]domain.ExtractedEntry, error) {
	if err := uc.transition(ctx, sub.SessionID, domain.StageExtracting, domain.ProgressExtracting, 30, "extracting archive"); err != nil {
		return nil, err
	}
	return uc.extractor.Extract(ctx, sub.StorageKey)
}

// reclaim drops the stored archive. It runs after a successful extraction
// and on every terminal failure; only redeliverable infrastructure errors
// keep the archive around for the next attempt.
func (uc *ProcessArchiveUseCase) reclaim(ctx context.Context, sub domain.ArchiveSubmission) {
	if err := uc.storage.Remove(ctx, sub.StorageKey); err != nil {
		slog.Warn("failed to reclaim archive storage", "session_id", sub.SessionID, "error", err)
	}
}

func (uc *ProcessArchiveUseCase) fanOut(ctx context.Context, sub domain.ArchiveSubmission, entries []domain.ExtractedEntry) error {
	if err := uc.repo.UpdateStage(ctx, sub.SessionID, domain.StageFanningOut, ""); err != nil {
		return fmt.Errorf("set stage=fanning_out: %w", err)
	}
	if err := uc.repo.SetExpectedFiles(ctx, sub.SessionID, len(entries)); err != nil {
		return fmt.Errorf("set expected files: %w", err)
	}

	if len(entries) == 0 {
		// Nothing to scan: complete immediately with an empty verdict.
		if err := uc.repo.UpdateStage(ctx, sub.SessionID, domain.StageAggregating, ""); err != nil {
			return fmt.Errorf("set stage=aggregating: %w", err)
		}
		verdict := ComputeVerdict(sub.SessionID, nil, 0)
		if err := uc.repo.SaveVerdict(ctx, &verdict); err != nil {
			return fmt.Errorf("save empty verdict: %w", err)
		}
		if err := uc.repo.UpdateStage(ctx, sub.SessionID, domain.StageCompleted, ""); err != nil {
			return fmt.Errorf("set stage=completed: %w", err)
		}
		uc.notify(ctx, sub.SessionID, domain.ProgressComplete, 100, "no scannable files in archive")
		return nil
	}

	// ClaimAggregation transitions from awaiting_files only, so the stage
	// must already read awaiting_files before the first job becomes visible
	// to a worker; otherwise a fast worker drains every job, its claim loses,
	// and no trigger is left to aggregate the session.
	if err := uc.transition(ctx, sub.SessionID, domain.StageAwaitingFiles, domain.ProgressProcessing, 50,
		fmt.Sprintf("processing %d files", len(entries))); err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, entry := range entries {
		job := domain.FileJob{
			JobID:      uuid.NewString(),
			SessionID:  sub.SessionID,
			Path:       entry.Path,
			Text:       entry.Text,
			EnqueuedAt: now,
		}
		if err := uc.queue.PublishFileJob(ctx, job); err != nil {
			return domain.WrapError(domain.ErrInfrastructure, "publish file job", err)
		}
	}
	return nil
}

func (uc *ProcessArchiveUseCase) transition(ctx context.Context, sessionID string, stage domain.SessionStage, progressStage string, percent int, message string) error {
	if err := uc.repo.UpdateStage(ctx, sessionID, stage, ""); err != nil {
		return fmt.Errorf("set stage=%s: %w", stage, err)
	}
	uc.notify(ctx, sessionID, progressStage, percent, message)
	return nil
}

func (uc *ProcessArchiveUseCase) notify(ctx context.Context, sessionID, stage string, percent int, message string) {
	update := domain.ProgressUpdate{
		SessionID: sessionID,
		Stage:     stage,
		Percent:   percent,
		Message:   message,
	}
	if err := uc.notifier.Notify(ctx, update); err != nil {
		slog.Debug("progress notification dropped", "session_id", sessionID, "stage", stage, "error", err)
	}
}

// failSession records the terminal failure with the stage it happened in
// and reclaims the stored archive. The stored message is user-facing:
// stage plus error text, no internals.
func (uc *ProcessArchiveUseCase) failSession(ctx context.Context, sub domain.ArchiveSubmission, progressStage string, cause error) error {
	message := fmt.Sprintf("%s: %v", progressStage, cause)
	if err := uc.repo.UpdateStage(ctx, sub.SessionID, domain.StageFailed, message); err != nil {
		return fmt.Errorf("%w; mark failed stage: %v", cause, err)
	}
	uc.reclaim(ctx, sub)
	update := domain.ProgressUpdate{
		SessionID: sub.SessionID,
		Stage:     domain.ProgressError,
		Percent:   100,
		Message:   "processing failed",
		Detail:    message,
	}
	if err := uc.notifier.Notify(ctx, update); err != nil {
		slog.Debug("failure notification dropped", "session_id", sub.SessionID, "error", err)
	}
	slog.Error("session failed", "session_id", sub.SessionID, "stage", progressStage, "error", cause)
	return nil
}
