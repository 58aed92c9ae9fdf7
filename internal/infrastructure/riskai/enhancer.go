package riskai

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/resper1965/ncrisis-sub000/internal/core/domain"
	"github.com/resper1965/ncrisis-sub000/internal/infrastructure/resilience"
)

// Enhancer batches assessments with bounded concurrency and paces external
// calls against the classifier's rate limit. It never returns an error:
// every failure path ends in a rule-based assessment.
type Enhancer struct {
	client      *Client
	fallback    *Fallback
	executor    *resilience.Executor
	limiter     *rate.Limiter
	concurrency int
}

type EnhancerOptions struct {
	Concurrency int
	CallsPerSec float64
	Executor    *resilience.Executor
}

func NewEnhancer(client *Client, fallback *Fallback, opts EnhancerOptions) *Enhancer {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 3
	}
	callsPerSec := opts.CallsPerSec
	if callsPerSec <= 0 {
		callsPerSec = 2
	}
	executor := opts.Executor
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Enhancer{
		client:      client,
		fallback:    fallback,
		executor:    executor,
		limiter:     rate.NewLimiter(rate.Limit(callsPerSec), concurrency),
		concurrency: concurrency,
	}
}

// EnhanceAll returns one assessment per detection, index-aligned. Results
// never depend on completion order.
func (e *Enhancer) EnhanceAll(ctx context.Context, detections []domain.Detection) []domain.RiskAssessment {
	out := make([]domain.RiskAssessment, len(detections))
	if len(detections) == 0 {
		return out
	}

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, d := range detections {
		i, d := i, d
		g.Go(func() error {
			out[i] = e.enhanceOne(ctx, d)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (e *Enhancer) enhanceOne(ctx context.Context, d domain.Detection) domain.RiskAssessment {
	if !e.client.Configured() {
		return e.fallback.Assess(d)
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return e.fallback.Assess(d)
	}

	var result domain.RiskAssessment
	err := e.executor.Execute(ctx, resilience.OpRiskAssess, func(callCtx context.Context) error {
		assessment, err := e.client.Assess(callCtx, d)
		if err != nil {
			return err
		}
		result = assessment
		return nil
	}, classifyRiskAIError)
	if err != nil {
		slog.Warn("risk classification unavailable, using rule-based fallback",
			"doc_type", d.DocType,
			"source_file", d.SourceFile,
			"error", err,
		)
		return e.fallback.Assess(d)
	}

	slog.Debug("risk classification enhanced", "doc_type", d.DocType, "source_file", d.SourceFile)
	return result
}
