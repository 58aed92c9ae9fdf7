package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/resper1965/ncrisis-sub000/internal/core/domain"
	"github.com/resper1965/ncrisis-sub000/internal/infrastructure/resilience"
)

const (
	archiveStream = "PII_ARCHIVES"
	fileStream    = "PII_FILES"

	archiveConsumer = "archive-workers"
	fileConsumer    = "file-workers"

	// Extracted entry text travels inline in file jobs; the stream accepts
	// messages well above the NATS default to match the extractor's caps.
	maxFileJobBytes = 8 << 20
)

// Queue is the durable JobQueue backend: two JetStream work-queue streams
// with explicit acks. An unacked job redelivers after the AckWait lease, so
// a crashed worker never loses work.
type Queue struct {
	conn           *nats.Conn
	js             nats.JetStreamContext
	archiveSubject string
	fileSubject    string
	fileWorkers    int
	ackWait        time.Duration
	executor       *resilience.Executor
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	AckWait              time.Duration
	FileWorkers          int
	ResilienceExecutor   *resilience.Executor
}

func New(url, archiveSubject, fileSubject string) (*Queue, error) {
	return NewWithOptions(url, archiveSubject, fileSubject, Options{})
}

func NewWithOptions(url, archiveSubject, fileSubject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	ackWait := options.AckWait
	if ackWait <= 0 {
		ackWait = 2 * time.Minute
	}
	fileWorkers := options.FileWorkers
	if fileWorkers <= 0 {
		fileWorkers = 3
	}

	conn, err := nats.Connect(
		url,
		nats.Name("ncrisis-pii-scanner"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("nats reconnected: %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("init jetstream: %w", err)
	}

	q := &Queue{
		conn:           conn,
		js:             js,
		archiveSubject: archiveSubject,
		fileSubject:    fileSubject,
		fileWorkers:    fileWorkers,
		ackWait:        ackWait,
		executor:       options.ResilienceExecutor,
	}
	if err := q.ensureStreams(); err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

func (q *Queue) ensureStreams() error {
	streams := []*nats.StreamConfig{
		{
			Name:      archiveStream,
			Subjects:  []string{q.archiveSubject},
			Retention: nats.WorkQueuePolicy,
		},
		{
			Name:       fileStream,
			Subjects:   []string{q.fileSubject},
			Retention:  nats.WorkQueuePolicy,
			MaxMsgSize: maxFileJobBytes,
		},
	}
	for _, cfg := range streams {
		if _, err := q.js.AddStream(cfg); err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}
	return nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishArchiveJob(ctx context.Context, sub domain.ArchiveSubmission) error {
	return q.publish(ctx, q.archiveSubject, sub)
}

func (q *Queue) PublishFileJob(ctx context.Context, job domain.FileJob) error {
	return q.publish(ctx, q.fileSubject, job)
}

func (q *Queue) publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	call := func(callCtx context.Context) error {
		if _, err := q.js.Publish(subject, data, nats.Context(callCtx)); err != nil {
			return fmt.Errorf("jetstream publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, resilience.OpQueuePublish, call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeArchiveJobs consumes the archive stream serially: one
// subscription, callbacks dispatched one at a time, so an archive is fully
// processed before the next begins.
func (q *Queue) SubscribeArchiveJobs(ctx context.Context, handler func(context.Context, domain.ArchiveSubmission) error) error {
	sub, err := q.subscribe(ctx, q.archiveSubject, archiveConsumer, func(handlerCtx context.Context, data []byte) error {
		var job domain.ArchiveSubmission
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("decode archive job: %w", err)
		}
		return handler(handlerCtx, job)
	})
	if err != nil {
		return err
	}
	return q.waitAndDrain(ctx, sub)
}

// SubscribeFileJobs joins N members to the file consumer group; each member
// processes serially, giving bounded concurrency of N.
func (q *Queue) SubscribeFileJobs(ctx context.Context, handler func(context.Context, domain.FileJob) error) error {
	subs := make([]*nats.Subscription, 0, q.fileWorkers)
	for i := 0; i < q.fileWorkers; i++ {
		sub, err := q.subscribe(ctx, q.fileSubject, fileConsumer, func(handlerCtx context.Context, data []byte) error {
			var job domain.FileJob
			if err := json.Unmarshal(data, &job); err != nil {
				return fmt.Errorf("decode file job: %w", err)
			}
			return handler(handlerCtx, job)
		})
		if err != nil {
			return err
		}
		subs = append(subs, sub)
	}
	return q.waitAndDrain(ctx, subs...)
}

func (q *Queue) subscribe(ctx context.Context, subject, group string, handle func(context.Context, []byte) error) (*nats.Subscription, error) {
	sub, err := q.js.QueueSubscribe(subject, group, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handle(handlerCtx, msg.Data); err != nil {
			// Leave the message unacked: it redelivers after AckWait.
			log.Printf("job handler error on %s: %v", subject, err)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable(group),
		nats.ManualAck(),
		nats.AckWait(q.ackWait),
	)
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
	}
	return sub, nil
}

func (q *Queue) waitAndDrain(ctx context.Context, subs ...*nats.Subscription) error {
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	for _, sub := range subs {
		if err := sub.Drain(); err != nil {
			return fmt.Errorf("nats drain subscription: %w", err)
		}
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
