package notify

import (
	"context"
	"log/slog"

	"github.com/resper1965/ncrisis-sub000/internal/core/domain"
)

// LogNotifier is the progress sink for single-process deployments without a
// push channel: stage transitions land on the structured log.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) Notify(_ context.Context, update domain.ProgressUpdate) error {
	slog.Info("session_progress",
		"session_id", update.SessionID,
		"stage", update.Stage,
		"percent", update.Percent,
		"message", update.Message,
	)
	return nil
}
