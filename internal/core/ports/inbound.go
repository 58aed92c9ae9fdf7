package ports

import (
	"context"
	"io"

	"github.com/resper1965/ncrisis-sub000/internal/core/domain"
)

// ArchiveSubmitter is the inbound contract for archive intake.
type ArchiveSubmitter interface {
	Submit(ctx context.Context, originalName, mimeType string, sizeBytes int64, body io.Reader) (*domain.ArchiveSubmission, error)
}

// ArchiveProcessor drives one submission through the session state machine.
type ArchiveProcessor interface {
	ProcessArchive(ctx context.Context, sub domain.ArchiveSubmission) error
	CancelSession(ctx context.Context, sessionID string) error
}

// FileProcessor runs detection and enhancement for one fanned-out entry.
type FileProcessor interface {
	ProcessFile(ctx context.Context, job domain.FileJob) error
}
