package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/resper1965/ncrisis-sub000/internal/core/domain"
	"github.com/resper1965/ncrisis-sub000/internal/core/ports"
	"github.com/resper1965/ncrisis-sub000/internal/infrastructure/resilience"
)

// ProcessFileUseCase runs detection and enhancement for one fanned-out
// entry, persists the result, and aggregates the session verdict once the
// last sibling resolves. File-level failures never abort siblings.
type ProcessFileUseCase struct {
	repo               ports.SessionRepository
	detector           ports.PIIDetector
	enhancer           ports.RiskEnhancer
	notifier           ports.ProgressNotifier
	hook               ports.WorkflowHook
	executor           *resilience.Executor
	maxAttempts        int
	maxRecommendations int
}

func NewProcessFileUseCase(
	repo ports.SessionRepository,
	detector ports.PIIDetector,
	enhancer ports.RiskEnhancer,
	notifier ports.ProgressNotifier,
	hook ports.WorkflowHook,
	maxAttempts int,
	maxRecommendations int,
) *ProcessFileUseCase {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	executor := resilience.NewExecutor(resilience.FileProcessConfig(maxAttempts))
	return &ProcessFileUseCase{
		repo:               repo,
		detector:           detector,
		enhancer:           enhancer,
		notifier:           notifier,
		hook:               hook,
		executor:           executor,
		maxAttempts:        maxAttempts,
		maxRecommendations: maxRecommendations,
	}
}

// ProcessFile returns an error only when persisting the outcome fails; the
// queue then redelivers the job. Detection/enhancement failures exhaust
// their retry budget and are recorded as a terminally failed file instead.
func (uc *ProcessFileUseCase) ProcessFile(ctx context.Context, job domain.FileJob) error {
	active, err := uc.sessionActive(ctx, job.SessionID)
	if err != nil {
		return err
	}
	if !active {
		return nil
	}

	result := uc.runWithRetries(ctx, job)

	if err := uc.repo.SaveFileResult(ctx, result); err != nil {
		return domain.WrapError(domain.ErrInfrastructure, "save file result", err)
	}

	return uc.maybeAggregate(ctx, job.SessionID)
}

func (uc *ProcessFileUseCase) sessionActive(ctx context.Context, sessionID string) (bool, error) {
	stage, err := uc.repo.GetStage(ctx, sessionID)
	if err != nil {
		if domain.IsKind(err, domain.ErrSessionNotFound) {
			slog.Warn("file job for unknown session dropped", "session_id", sessionID)
			return false, nil
		}
		return false, fmt.Errorf("load session stage: %w", err)
	}
	if stage.Terminal() {
		slog.Info("file job skipped, session already terminal", "session_id", sessionID, "stage", stage)
		return false, nil
	}
	return true, nil
}

func (uc *ProcessFileUseCase) runWithRetries(ctx context.Context, job domain.FileJob) *domain.FileProcessingResult {
	start := time.Now()
	attempts := 0

	var (
		detections  []domain.Detection
		assessments []domain.RiskAssessment
	)
	err := uc.executor.Execute(ctx, resilience.OpFileProcess, func(callCtx context.Context) error {
		attempts++
		dets, detectErr := uc.detect(job.Text, job.Path)
		if detectErr != nil {
			return detectErr
		}
		detections = dets
		assessments = uc.enhancer.EnhanceAll(callCtx, detections)
		return nil
	}, classifyFileJobError)

	result := &domain.FileProcessingResult{
		SessionID: job.SessionID,
		Filename:  job.Path,
		Attempts:  attempts,
		Duration:  time.Since(start),
	}
	if err != nil {
		slog.Error("file job terminally failed", "session_id", job.SessionID, "path", job.Path, "attempts", attempts, "error", err)
		result.Error = err.Error()
		return result
	}

	result.Detections = detections
	result.Assessments = assessments
	result.RiskCounts = make(map[domain.RiskLevel]int)
	for _, assessment := range assessments {
		if !assessment.IsValid {
			result.FalsePositives++
			continue
		}
		result.RiskCounts[assessment.Level]++
	}
	return result
}

// detect shields the pipeline from validator or pattern defects: a panic in
// the engine fails this file, loudly, and siblings continue.
func (uc *ProcessFileUseCase) detect(text, filename string) (detections []domain.Detection, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.WrapError(domain.ErrDetection, "detect", fmt.Errorf("panic: %v", r))
		}
	}()
	return uc.detector.Detect(text, filename), nil
}

func classifyFileJobError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	// Detection defects are deterministic; retrying cannot help.
	if domain.IsKind(err, domain.ErrDetection) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
}

// maybeAggregate completes the session once every file unit is terminal.
// The conditional claim makes the verdict computation single-winner even
// under redelivered jobs; the math itself is commutative, so arrival order
// never matters.
func (uc *ProcessFileUseCase) maybeAggregate(ctx context.Context, sessionID string) error {
	done, expected, err := uc.repo.CountFileResults(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("count file results: %w", err)
	}

	if expected > 0 {
		percent := 50 + (45*done)/expected
		uc.notify(ctx, sessionID, domain.ProgressProcessing, percent,
			fmt.Sprintf("processed %d/%d files", done, expected))
	}

	if done < expected || expected == 0 {
		return nil
	}

	claimed, err := uc.repo.ClaimAggregation(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("claim aggregation: %w", err)
	}
	if !claimed {
		return nil
	}

	return uc.aggregate(ctx, sessionID)
}

func (uc *ProcessFileUseCase) aggregate(ctx context.Context, sessionID string) error {
	results, err := uc.repo.ListFileResults(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load file results: %w", err)
	}

	verdict := ComputeVerdict(sessionID, results, uc.maxRecommendations)
	if err := uc.repo.SaveVerdict(ctx, &verdict); err != nil {
		return fmt.Errorf("save verdict: %w", err)
	}
	if err := uc.repo.UpdateStage(ctx, sessionID, domain.StageCompleted, ""); err != nil {
		return fmt.Errorf("set stage=completed: %w", err)
	}

	uc.notify(ctx, sessionID, domain.ProgressComplete, 100,
		fmt.Sprintf("scan complete: overall risk %s", verdict.OverallRisk))

	if uc.hook != nil {
		if err := uc.hook.SessionCompleted(ctx, sessionID); err != nil {
			slog.Warn("workflow webhook failed", "session_id", sessionID, "error", err)
		}
	}

	slog.Info("session completed",
		"session_id", sessionID,
		"overall_risk", verdict.OverallRisk,
		"score", verdict.Score,
		"detections", verdict.TotalDetections,
		"failed_files", verdict.FailedFiles,
	)
	return nil
}

func (uc *ProcessFileUseCase) notify(ctx context.Context, sessionID, stage string, percent int, message string) {
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
