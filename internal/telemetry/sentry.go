// Package telemetry wraps Sentry error reporting and tracing for tutorfitd.
// Every helper is a no-op when Sentry was never initialized.
package telemetry

import (
	"context"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/cloo-solutions/tutorfit/internal/domain"
)

const (
	serverName   = "tutorfitd"
	flushTimeout = 5 * time.Second
)

// untracedRoutes are never sampled; probes would drown real traffic.
var untracedRoutes = []string{"/health", "/metrics"}

type Config struct {
	DSN              string
	Environment      string
	TracesSampleRate float64
	Debug            bool
}

// Init configures the global Sentry client. The returned function flushes
// buffered events and must be called before exit. An empty DSN disables
// reporting without error.
func Init(cfg Config, logger *zap.Logger) (func(), error) {
	noop := func() {}
	if cfg.DSN == "" {
		return noop, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.TracesSampleRate <= 0 {
		cfg.TracesSampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		EnableTracing:    true,
		TracesSampleRate: cfg.TracesSampleRate,
		Debug:            cfg.Debug,
		ServerName:       serverName,
		TracesSampler: sentry.TracesSampler(func(ctx sentry.SamplingContext) float64 {
			return sampleRate(ctx.Span, cfg.TracesSampleRate)
		}),
	})
	if err != nil {
		return noop, err
	}

	logger.Info("sentry initialized",
		zap.String("environment", cfg.Environment),
		zap.Float64("sample_rate", cfg.TracesSampleRate))

	return func() { sentry.Flush(flushTimeout) }, nil
}

func sampleRate(span *sentry.Span, rate float64) float64 {
	if span == nil {
		return rate
	}
	for _, route := range untracedRoutes {
		if strings.HasSuffix(span.Name, " "+route) {
			return 0
		}
	}
	var noParent sentry.SpanID
	if span.ParentSpanID != noParent {
		if span.Sampled.Bool() {
			return 1
		}
		return 0
	}
	return rate
}

// Reportable reports whether err is worth an event. Validation, not-found
// and duplicate errors are expected outcomes of normal traffic.
func Reportable(err error) bool {
	if err == nil {
		return false
	}
	switch domain.ErrorCode(err) {
	case domain.ErrCodeValidation, domain.ErrCodeNotFound, domain.ErrCodeAlreadyExists:
		return false
	}
	return true
}

// SpanAttributes tags a span with the tutorfit entities it touches.
type SpanAttributes struct {
	ClusterID    string
	TemplateID   string
	AssignmentID string
	Operation    string
}

func (a SpanAttributes) apply(span *sentry.Span) {
	tags := map[string]string{
		"cluster_id":    a.ClusterID,
		"template_id":   a.TemplateID,
		"assignment_id": a.AssignmentID,
	}
	for k, v := range tags {
		if v != "" {
			span.SetTag(k, v)
		}
	}
	if a.Operation != "" {
		span.SetData("operation", a.Operation)
	}
}

type Span struct {
	inner *sentry.Span
}

func (s *Span) End() {
	if s != nil && s.inner != nil {
		s.inner.Finish()
	}
}

// SetData attaches a value shown on the span in Sentry.
func (s *Span) SetData(key string, value any) {
	if s != nil && s.inner != nil {
		s.inner.SetData(key, value)
	}
}

// SetError marks the span failed. Reportable errors are also captured.
func (s *Span) SetError(err error) {
	if s == nil || s.inner == nil || err == nil {
		return
	}
	s.inner.Status = sentry.SpanStatusInternalError
	if !Reportable(err) {
		s.inner.Status = sentry.SpanStatusInvalidArgument
		return
	}
	CaptureError(s.inner.Context(), err)
}

// StartSpan starts a child of the span in ctx, or a new transaction when
// ctx carries none.
func StartSpan(ctx context.Context, name string, attrs SpanAttributes) (context.Context, *Span) {
	var span *sentry.Span
	if parent := sentry.SpanFromContext(ctx); parent != nil {
		span = parent.StartChild(name)
	} else {
		span = sentry.StartSpan(ctx, name, sentry.WithTransactionName(name))
	}
	attrs.apply(span)
	return span.Context(), &Span{inner: span}
}

func hubFor(ctx context.Context) *sentry.Hub {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		return hub
	}
	return sentry.CurrentHub()
}

// CaptureError sends err to Sentry unless it is an expected domain outcome.
func CaptureError(ctx context.Context, err error) {
	if !Reportable(err) {
		return
	}
	hubFor(ctx).CaptureException(err)
}

// AddBreadcrumb records a learning-loop or scoring milestone on the scope.
func AddBreadcrumb(ctx context.Context, category, message string) {
	hubFor(ctx).AddBreadcrumb(&sentry.Breadcrumb{
		Type:      "default",
		Category:  category,
		Message:   message,
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	}, nil)
}
