package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/resper1965/ncrisis-sub000/internal/core/domain"
)

const defaultBuffer = 64

// Queue is the in-process JobQueue backend for single-node deployments and
// tests. It keeps the port's shape — serial archive jobs, N concurrent file
// jobs — but offers no durability across process restarts.
type Queue struct {
	archiveCh   chan domain.ArchiveSubmission
	fileCh      chan domain.FileJob
	fileWorkers int

	closeOnce sync.Once
}

func New(buffer, fileWorkers int) *Queue {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if fileWorkers <= 0 {
		fileWorkers = 3
	}
	return &Queue{
		archiveCh:   make(chan domain.ArchiveSubmission, buffer),
		fileCh:      make(chan domain.FileJob, buffer),
		fileWorkers: fileWorkers,
	}
}

// Close releases the queue's channels. Publishing after Close is a
// programming error; subscribers exit via their context instead.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.archiveCh)
		close(q.fileCh)
	})
}

func (q *Queue) PublishArchiveJob(ctx context.Context, sub domain.ArchiveSubmission) error {
	select {
	case q.archiveCh <- sub:
		return nil
	case <-ctx.Done():
		return domain.WrapError(domain.ErrTemporary, "enqueue archive job", ctx.Err())
	}
}

func (q *Queue) PublishFileJob(ctx context.Context, job domain.FileJob) error {
	select {
	case q.fileCh <- job:
		return nil
	case <-ctx.Done():
		return domain.WrapError(domain.ErrTemporary, "enqueue file job", ctx.Err())
	}
}

func (q *Queue) SubscribeArchiveJobs(ctx context.Context, handler func(context.Context, domain.ArchiveSubmission) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job, ok := <-q.archiveCh:
			if !ok {
				return nil
			}
			if err := handler(ctx, job); err != nil {
				slog.Error("archive job handler error", "session_id", job.SessionID, "error", err)
			}
		}
	}
}

func (q *Queue) SubscribeFileJobs(ctx context.Context, handler func(context.Context, domain.FileJob) error) error {
	var wg sync.WaitGroup
	for i := 0; i < q.fileWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-q.fileCh:
					if !ok {
						return
					}
					if err := handler(ctx, job); err != nil {
						slog.Error("file job handler error", "session_id", job.SessionID, "path", job.Path, "error", err)
					}
				}
			}
		}()
	}
	wg.Wait()
	return nil
}
