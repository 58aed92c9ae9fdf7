package domain

import "time"

// FileJob is one unit of per-file work fanned out from an archive. It owns
// its entry content exclusively; nothing else mutates it after enqueue.
type FileJob struct {
	JobID      string    `json:"job_id"`
	SessionID  string    `json:"session_id"`
	Path       string    `json:"path"`
	Text       string    `json:"text"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
