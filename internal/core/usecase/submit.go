package usecase

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/resper1965/ncrisis-sub000/internal/core/domain"
	"github.com/resper1965/ncrisis-sub000/internal/core/ports"
)

// SubmitArchiveUseCase handles archive intake: store the upload, open a
// session, and enqueue the archive job.
type SubmitArchiveUseCase struct {
	repo            ports.SessionRepository
	storage         ports.ObjectStorage
	queue           ports.JobQueue
	maxArchiveBytes int64
}

func NewSubmitArchiveUseCase(
	repo ports.SessionRepository,
	storage ports.ObjectStorage,
	queue ports.JobQueue,
	maxArchiveBytes int64,
) *SubmitArchiveUseCase {
	return &SubmitArchiveUseCase{
		repo:            repo,
		storage:         storage,
		queue:           queue,
		maxArchiveBytes: maxArchiveBytes,
	}
}

func (uc *SubmitArchiveUseCase) Submit(
	ctx context.Context,
	originalName, mimeType string,
	sizeBytes int64,
	body io.Reader,
) (*domain.ArchiveSubmission, error) {
	if uc.maxArchiveBytes > 0 && sizeBytes > uc.maxArchiveBytes {
		return nil, domain.WrapError(domain.ErrValidation, "submit archive",
			fmt.Errorf("archive size %d exceeds limit %d", sizeBytes, uc.maxArchiveBytes))
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(originalName))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save archive to storage: %w", err)
	}

	sub := &domain.ArchiveSubmission{
		SessionID:    id,
		OriginalName: originalName,
		StorageKey:   storageKey,
		MimeType:     mimeType,
		SizeBytes:    sizeBytes,
		SubmittedAt:  now,
	}

	if err := uc.repo.CreateSession(ctx, sub); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	if err := uc.queue.PublishArchiveJob(ctx, *sub); err != nil {
		return nil, fmt.Errorf("publish archive job: %w", err)
	}

	return sub, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == ".." {
		return "archive.zip"
	}
	return base
}
