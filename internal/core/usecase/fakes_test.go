package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/resper1965/ncrisis-sub000/internal/core/domain"
)

type fakeRepo struct {
	mu       sync.Mutex
	subs     map[string]domain.ArchiveSubmission
	stages   map[string]domain.SessionStage
	errMsgs  map[string]string
	expected map[string]int
	results  map[string]map[string]domain.FileProcessingResult
	verdicts map[string]domain.SessionVerdict

	saveResultErr error
	updateErr     error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		subs:     make(map[string]domain.ArchiveSubmission),
		stages:   make(map[string]domain.SessionStage),
		errMsgs:  make(map[string]string),
		expected: make(map[string]int),
		results:  make(map[string]map[string]domain.FileProcessingResult),
		verdicts: make(map[string]domain.SessionVerdict),
	}
}

func (r *fakeRepo) seed(sessionID string, stage domain.SessionStage, expectedFiles int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages[sessionID] = stage
	r.expected[sessionID] = expectedFiles
}

func (r *fakeRepo) stage(sessionID string) domain.SessionStage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stages[sessionID]
}

func (r *fakeRepo) verdict(sessionID string) (domain.SessionVerdict, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.verdicts[sessionID]
	return v, ok
}

func (r *fakeRepo) CreateSession(_ context.Context, sub *domain.ArchiveSubmission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub.SessionID] = *sub
	r.stages[sub.SessionID] = domain.StageReceived
	return nil
}

func (r *fakeRepo) UpdateStage(_ context.Context, sessionID string, stage domain.SessionStage, errMessage string) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages[sessionID] = stage
	r.errMsgs[sessionID] = errMessage
	return nil
}

func (r *fakeRepo) GetStage(_ context.Context, sessionID string) (domain.SessionStage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stage, ok := r.stages[sessionID]
	if !ok {
		return "", domain.ErrSessionNotFound
	}
	return stage, nil
}

func (r *fakeRepo) SetExpectedFiles(_ context.Context, sessionID string, n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expected[sessionID] = n
	return nil
}

func (r *fakeRepo) SaveFileResult(_ context.Context, result *domain.FileProcessingResult) error {
	if r.saveResultErr != nil {
		return r.saveResultErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	byFile, ok := r.results[result.SessionID]
	if !ok {
		byFile = make(map[string]domain.FileProcessingResult)
		r.results[result.SessionID] = byFile
	}
	if _, dup := byFile[result.Filename]; dup {
		return nil
	}
	byFile[result.Filename] = *result
	return nil
}

func (r *fakeRepo) ListFileResults(_ context.Context, sessionID string) ([]domain.FileProcessingResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.FileProcessingResult
	for _, res := range r.results[sessionID] {
		out = append(out, res)
	}
	return out, nil
}

func (r *fakeRepo) CountFileResults(_ context.Context, sessionID string) (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results[sessionID]), r.expected[sessionID], nil
}

func (r *fakeRepo) ClaimAggregation(_ context.Context, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stages[sessionID] != domain.StageAwaitingFiles {
		return false, nil
	}
	r.stages[sessionID] = domain.StageAggregating
	return true, nil
}

func (r *fakeRepo) SaveVerdict(_ context.Context, verdict *domain.SessionVerdict) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.verdicts[verdict.SessionID]; dup {
		return nil
	}
	r.verdicts[verdict.SessionID] = *verdict
	return nil
}

type fakeQueue struct {
	mu          sync.Mutex
	archiveJobs []domain.ArchiveSubmission
	fileJobs    []domain.FileJob
	publishErr  error

	// onPublishFile mimics a worker that picks the job up immediately.
	onPublishFile func(context.Context, domain.FileJob) error
}

func (q *fakeQueue) PublishArchiveJob(_ context.Context, sub domain.ArchiveSubmission) error {
	if q.publishErr != nil {
		return q.publishErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.archiveJobs = append(q.archiveJobs, sub)
	return nil
}

func (q *fakeQueue) PublishFileJob(ctx context.Context, job domain.FileJob) error {
	if q.publishErr != nil {
		return q.publishErr
	}
	q.mu.Lock()
	q.fileJobs = append(q.fileJobs, job)
	q.mu.Unlock()
	if q.onPublishFile != nil {
		return q.onPublishFile(ctx, job)
	}
	return nil
}

func (q *fakeQueue) SubscribeArchiveJobs(context.Context, func(context.Context, domain.ArchiveSubmission) error) error {
	return nil
}

func (q *fakeQueue) SubscribeFileJobs(context.Context, func(context.Context, domain.FileJob) error) error {
	return nil
}

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	removed []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (s *fakeStorage) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = raw
	return nil
}

func (s *fakeStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("no object %q", key)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (s *fakeStorage) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.removed = append(s.removed, key)
	return nil
}

type fakeExtractor struct {
	entries []domain.ExtractedEntry
	err     error
}

func (e *fakeExtractor) Extract(context.Context, string) ([]domain.ExtractedEntry, error) {
	return e.entries, e.err
}

type fakeScanner struct {
	report domain.ScanReport
	err    error
}

func (s *fakeScanner) Scan(context.Context, io.Reader) (domain.ScanReport, error) {
	return s.report, s.err
}

type fakeDetector struct {
	fn func(text, filename string) []domain.Detection
}

func (d *fakeDetector) Detect(text, filename string) []domain.Detection {
	if d.fn == nil {
		return nil
	}
	return d.fn(text, filename)
}

type fakeEnhancer struct {
	fn func(d domain.Detection) domain.RiskAssessment
}

func (e *fakeEnhancer) EnhanceAll(_ context.Context, detections []domain.Detection) []domain.RiskAssessment {
	out := make([]domain.RiskAssessment, len(detections))
	for i, d := range detections {
		if e.fn != nil {
			out[i] = e.fn(d)
		}
	}
	return out
}

type fakeNotifier struct {
	mu      sync.Mutex
	updates []domain.ProgressUpdate
}

func (n *fakeNotifier) Notify(_ context.Context, update domain.ProgressUpdate) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, update)
	return nil
}

func (n *fakeNotifier) lastStage() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.updates) == 0 {
		return ""
	}
	return n.updates[len(n.updates)-1].Stage
}

type fakeHook struct {
	mu       sync.Mutex
	sessions []string
	err      error
}

func (h *fakeHook) SessionCompleted(_ context.Context, sessionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions = append(h.sessions, sessionID)
	return h.err
}
