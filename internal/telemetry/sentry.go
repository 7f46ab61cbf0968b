// Package telemetry wires Sentry tracing and error reporting into the
// document pipeline.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/cloo-solutions/docqa/internal/domain"
)

const (
	serviceName  = "docqa"
	flushTimeout = 5 * time.Second
)

// Operation names a traced unit of work in the pipeline.
type Operation string

const (
	OpIngest     Operation = "document.ingest"
	OpAsk        Operation = "query.ask"
	OpAskAcross  Operation = "query.ask_across"
	OpSynthesize Operation = "answer.synthesize"
	OpSnapshot   Operation = "snapshot.run"
)

// Config holds the configuration for Sentry initialization.
type Config struct {
	DSN              string
	Environment      string
	TracesSampleRate float64
	Debug            bool
}

// unsampledTransactions are probes that would drown real traffic.
var unsampledTransactions = map[string]bool{
	"GET /health": true,
	"GET /status": true,
}

// Init configures the global Sentry client. The returned function flushes
// buffered events. An empty DSN disables reporting.
func Init(cfg Config) (func(), error) {
	if cfg.DSN == "" {
		return func() {}, nil
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.TracesSampleRate == 0 {
		cfg.TracesSampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		EnableTracing:    true,
		TracesSampleRate: cfg.TracesSampleRate,
		Debug:            cfg.Debug,
		ServerName:       serviceName,
		TracesSampler:    sampler(cfg.TracesSampleRate),
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			if hint != nil && IsExpected(hint.OriginalException) {
				return nil
			}
			return event
		},
	})
	if err != nil {
		slog.Warn("sentry: failed to initialize, continuing without tracing", slog.Any("error", err))
		return func() {}, nil
	}

	slog.Info("sentry: tracing initialized",
		slog.String("environment", cfg.Environment),
		slog.Float64("sample_rate", cfg.TracesSampleRate))
	return func() { sentry.Flush(flushTimeout) }, nil
}

func sampler(rate float64) sentry.TracesSampler {
	return func(ctx sentry.SamplingContext) float64 {
		if ctx.Span == nil {
			return rate
		}
		if unsampledTransactions[ctx.Span.Name] {
			return 0.0
		}
		var emptySpanID sentry.SpanID
		if ctx.Span.ParentSpanID != emptySpanID {
			if ctx.Span.Sampled.Bool() {
				return 1.0
			}
			return 0.0
		}
		return rate
	}
}

// IsExpected reports whether err is a client-side failure (bad input,
// missing document, unbuilt index) that is not worth an error event.
func IsExpected(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	switch domain.CodeOf(err) {
	case domain.ErrCodeValidation, domain.ErrCodeEmptyInput, domain.ErrCodeNotFound, domain.ErrCodeIndexNotBuilt:
		return true
	}
	return false
}

// Attrs tag a span with the document and query it concerns.
type Attrs struct {
	DocumentID string
	QueryType  string
}

// Span is a thin handle over a Sentry span that tolerates a nil inner span.
type Span struct {
	inner *sentry.Span
}

// End finishes the span.
func (s *Span) End() {
	if s.inner != nil {
		s.inner.Finish()
	}
}

// SetChunks records how many chunks the operation touched.
func (s *Span) SetChunks(n int) {
	if s.inner != nil {
		s.inner.SetData("chunks", n)
	}
}

// SetResult tags the span with the kind of answer produced.
func (s *Span) SetResult(kind string) {
	if s.inner != nil && kind != "" {
		s.inner.SetTag("result", kind)
	}
}

// Fail marks the span as failed. Unexpected errors are also reported.
func (s *Span) Fail(err error) {
	if s.inner == nil || err == nil {
		return
	}
	if IsExpected(err) {
		s.inner.Status = sentry.SpanStatusInvalidArgument
		return
	}
	s.inner.Status = sentry.SpanStatusInternalError
	CaptureError(s.inner.Context(), err)
}

// Start opens a child span under the request transaction when one exists,
// and a new transaction otherwise.
func Start(ctx context.Context, op Operation, attrs Attrs) (context.Context, *Span) {
	var span *sentry.Span
	if parent := sentry.SpanFromContext(ctx); parent != nil {
		span = parent.StartChild(string(op))
	} else {
		span = sentry.StartSpan(ctx, string(op), sentry.WithTransactionName(string(op)))
	}

	if attrs.DocumentID != "" {
		span.SetTag("document_id", attrs.DocumentID)
	}
	if attrs.QueryType != "" {
		span.SetTag("query_type", attrs.QueryType)
	}
	return span.Context(), &Span{inner: span}
}

// CaptureError reports err unless it is an expected client-side failure.
func CaptureError(ctx context.Context, err error) {
	if IsExpected(err) {
		return
	}
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
		return
	}
	sentry.CaptureException(err)
}

// DocumentBreadcrumb records a lifecycle step of a document so later error
// events show what happened to it.
func DocumentBreadcrumb(ctx context.Context, documentID, message string) {
	breadcrumb := &sentry.Breadcrumb{
		Type:      "default",
		Category:  "document",
		Message:   message,
		Data:      map[string]interface{}{"document_id": documentID},
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	}

	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.AddBreadcrumb(breadcrumb, nil)
		return
	}
	sentry.AddBreadcrumb(breadcrumb)
}
