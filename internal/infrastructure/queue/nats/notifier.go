package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/resper1965/ncrisis-sub000/internal/core/domain"
)

// Notifier publishes per-session progress events over plain NATS subjects.
// Delivery is fire-and-forget: a subscriber that misses intermediate events
// simply observes the latest one.
type Notifier struct {
	queue         *Queue
	subjectPrefix string
}

func NewNotifier(queue *Queue, subjectPrefix string) *Notifier {
	if subjectPrefix == "" {
		subjectPrefix = "pii.progress"
	}
	return &Notifier{queue: queue, subjectPrefix: subjectPrefix}
}

func (n *Notifier) Notify(_ context.Context, update domain.ProgressUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal progress update: %w", err)
	}
	subject := fmt.Sprintf("%s.%s", n.subjectPrefix, update.SessionID)
	if err := n.queue.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish progress: %w", err)
	}
	return nil
}
