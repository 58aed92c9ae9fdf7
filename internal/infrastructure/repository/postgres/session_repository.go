package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/resper1965/ncrisis-sub000/internal/core/domain"
)

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *SessionRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026053001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS pii_sessions (
	id TEXT PRIMARY KEY,
	original_name TEXT NOT NULL,
	storage_key TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL,
	stage TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	expected_files INT NOT NULL DEFAULT 0,
	submitted_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS pii_file_results (
	session_id TEXT NOT NULL REFERENCES pii_sessions(id),
	filename TEXT NOT NULL,
	detections JSONB NOT NULL DEFAULT '[]'::jsonb,
	assessments JSONB NOT NULL DEFAULT '[]'::jsonb,
	false_positives INT NOT NULL DEFAULT 0,
	attempts INT NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (session_id, filename)
);

CREATE TABLE IF NOT EXISTS pii_verdicts (
	session_id TEXT PRIMARY KEY REFERENCES pii_sessions(id),
	overall_risk TEXT NOT NULL,
	score DOUBLE PRECISION NOT NULL,
	high_risk_files JSONB NOT NULL DEFAULT '[]'::jsonb,
	recommendations JSONB NOT NULL DEFAULT '[]'::jsonb,
	total_files INT NOT NULL,
	failed_files INT NOT NULL,
	total_detections INT NOT NULL,
	false_positives INT NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pii_sessions_stage ON pii_sessions(stage);
CREATE INDEX IF NOT EXISTS idx_pii_sessions_submitted_at ON pii_sessions(submitted_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *SessionRepository) CreateSession(ctx context.Context, sub *domain.ArchiveSubmission) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO pii_sessions (
	id, original_name, storage_key, mime_type, size_bytes, stage, submitted_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
		sub.SessionID, sub.OriginalName, sub.StorageKey, sub.MimeType, sub.SizeBytes,
		string(domain.StageReceived), sub.SubmittedAt, sub.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) UpdateStage(ctx context.Context, sessionID string, stage domain.SessionStage, errMessage string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE pii_sessions
SET stage = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, sessionID, string(stage), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update session stage: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetStage(ctx context.Context, sessionID string) (domain.SessionStage, error) {
	row := r.db.QueryRowContext(ctx, `SELECT stage FROM pii_sessions WHERE id = $1`, sessionID)

	var stage string
	if err := row.Scan(&stage); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrSessionNotFound
		}
		return "", fmt.Errorf("scan session stage: %w", err)
	}
	return domain.SessionStage(stage), nil
}

func (r *SessionRepository) SetExpectedFiles(ctx context.Context, sessionID string, n int) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE pii_sessions
SET expected_files = $2, updated_at = $3
WHERE id = $1
`, sessionID, n, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set expected files: %w", err)
	}
	return nil
}

// SaveFileResult is idempotent under at-least-once delivery: a redelivered
// job's second write is a no-op, the first result wins.
func (r *SessionRepository) SaveFileResult(ctx context.Context, result *domain.FileProcessingResult) error {
	detectionsJSON, err := json.Marshal(result.Detections)
	if err != nil {
		return fmt.Errorf("marshal detections: %w", err)
	}
	assessmentsJSON, err := json.Marshal(result.Assessments)
	if err != nil {
		return fmt.Errorf("marshal assessments: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO pii_file_results (
	session_id, filename, detections, assessments, false_positives, attempts, duration_ms, error_message, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (session_id, filename) DO NOTHING
`,
		result.SessionID, result.Filename, detectionsJSON, assessmentsJSON,
		result.FalsePositives, result.Attempts, result.Duration.Milliseconds(),
		result.Error, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert file result: %w", err)
	}
	return nil
}

func (r *SessionRepository) ListFileResults(ctx context.Context, sessionID string) ([]domain.FileProcessingResult, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT session_id, filename, detections, assessments, false_positives, attempts, duration_ms, error_message
FROM pii_file_results
WHERE session_id = $1
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query file results: %w", err)
	}
	defer rows.Close()

	var results []domain.FileProcessingResult
	for rows.Next() {
		var (
			result         domain.FileProcessingResult
			detectionsRaw  []byte
			assessmentsRaw []byte
			durationMS     int64
		)
		err := rows.Scan(
			&result.SessionID, &result.Filename, &detectionsRaw, &assessmentsRaw,
			&result.FalsePositives, &result.Attempts, &durationMS, &result.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("scan file result: %w", err)
		}
		if err := json.Unmarshal(detectionsRaw, &result.Detections); err != nil {
			return nil, fmt.Errorf("unmarshal detections: %w", err)
		}
		if err := json.Unmarshal(assessmentsRaw, &result.Assessments); err != nil {
			return nil, fmt.Errorf("unmarshal assessments: %w", err)
		}
		result.Duration = time.Duration(durationMS) * time.Millisecond
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate file results: %w", err)
	}
	return results, nil
}

func (r *SessionRepository) CountFileResults(ctx context.Context, sessionID string) (int, int, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT (SELECT count(*) FROM pii_file_results WHERE session_id = $1), expected_files
FROM pii_sessions
WHERE id = $1
`, sessionID)

	var done, expected int
	if err := row.Scan(&done, &expected); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, domain.ErrSessionNotFound
		}
		return 0, 0, fmt.Errorf("scan result counts: %w", err)
	}
	return done, expected, nil
}

// ClaimAggregation is a conditional stage transition; only one racing file
// job wins it, so the verdict is computed exactly once.
func (r *SessionRepository) ClaimAggregation(ctx context.Context, sessionID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE pii_sessions
SET stage = $2, updated_at = $3
WHERE id = $1 AND stage = $4
`, sessionID, string(domain.StageAggregating), time.Now().UTC(), string(domain.StageAwaitingFiles))
	if err != nil {
		return false, fmt.Errorf("claim aggregation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim aggregation rows: %w", err)
	}
	return affected == 1, nil
}

func (r *SessionRepository) SaveVerdict(ctx context.Context, verdict *domain.SessionVerdict) error {
	highRiskJSON, err := json.Marshal(verdict.HighRiskFiles)
	if err != nil {
		return fmt.Errorf("marshal high risk files: %w", err)
	}
	recsJSON, err := json.Marshal(verdict.Recommendations)
	if err != nil {
		return fmt.Errorf("marshal recommendations: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO pii_verdicts (
	session_id, overall_risk, score, high_risk_files, recommendations,
	total_files, failed_files, total_detections, false_positives, completed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (session_id) DO NOTHING
`,
		verdict.SessionID, string(verdict.OverallRisk), verdict.Score, highRiskJSON, recsJSON,
		verdict.TotalFiles, verdict.FailedFiles, verdict.TotalDetections, verdict.FalsePositives,
		verdict.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert verdict: %w", err)
	}
	return nil
}
