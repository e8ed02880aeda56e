package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/store"
)

const storageScopeName = "github.com/joescharf/tracker/store"

// InstrumentedStore wraps store.Store with OTel tracing and metrics.
// Every method gets a span and is counted in tracker.storage.* metrics.
type InstrumentedStore struct {
	inner     store.Store
	tracer    trace.Tracer
	ops       metric.Int64Counter
	dur       metric.Float64Histogram
	errs      metric.Int64Counter
	casMisses metric.Int64Counter
}

// WrapStore returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is.
func WrapStore(s store.Store) store.Store {
	if !Enabled() {
		return s
	}
	return newInstrumentedStore(s)
}

func newInstrumentedStore(s store.Store) *InstrumentedStore {
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("tracker.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("tracker.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("tracker.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	casMisses, _ := m.Int64Counter("tracker.storage.version_mismatches",
		metric.WithDescription("Conditional issue updates that matched no row"),
	)
	return &InstrumentedStore{
		inner:     s,
		tracer:    Tracer(storageScopeName),
		ops:       ops,
		dur:       dur,
		errs:      errs,
		casMisses: casMisses,
	}
}

// op starts a span and records a metric for the named storage operation.
func (s *InstrumentedStore) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStore) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

// ── Users ───────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) EnsureUser(ctx context.Context, u *models.User) (bool, error) {
	ctx, span, t := s.op(ctx, "EnsureUser")
	v, err := s.inner.EnsureUser(ctx, u)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	ctx, span, t := s.op(ctx, "GetUser")
	v, err := s.inner.GetUser(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Issues ──────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) CreateIssue(ctx context.Context, issue *models.Issue, author *models.User) error {
	attrs := []attribute.KeyValue{attribute.String("tracker.issue.priority", string(issue.Priority))}
	ctx, span, t := s.op(ctx, "CreateIssue", attrs...)
	err := s.inner.CreateIssue(ctx, issue, author)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	ctx, span, t := s.op(ctx, "GetIssue")
	span.SetAttributes(attribute.String("tracker.issue.id", id))
	v, err := s.inner.GetIssue(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) ListIssues(ctx context.Context, filter store.IssueListFilter, page store.Page) ([]*models.Issue, error) {
	ctx, span, t := s.op(ctx, "ListIssues")
	v, err := s.inner.ListIssues(ctx, filter, page)
	span.SetAttributes(attribute.Int("tracker.result.count", len(v)))
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) CountIssues(ctx context.Context, filter store.IssueListFilter) (int, error) {
	ctx, span, t := s.op(ctx, "CountIssues")
	v, err := s.inner.CountIssues(ctx, filter)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) FindIssueIDs(ctx context.Context, prefix string, limit int) ([]string, error) {
	ctx, span, t := s.op(ctx, "FindIssueIDs")
	v, err := s.inner.FindIssueIDs(ctx, prefix, limit)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) ConditionalUpdateIssue(ctx context.Context, id string, expectedVersion int, patch models.IssuePatch) (int64, error) {
	ctx, span, t := s.op(ctx, "ConditionalUpdateIssue")
	span.SetAttributes(
		attribute.String("tracker.issue.id", id),
		attribute.Int("tracker.issue.expected_version", expectedVersion),
	)
	n, err := s.inner.ConditionalUpdateIssue(ctx, id, expectedVersion, patch)
	if err == nil && n == 0 {
		s.casMisses.Add(ctx, 1)
	}
	s.done(ctx, span, t, err)
	return n, err
}

func (s *InstrumentedStore) BulkUpdateIssueStatus(ctx context.Context, ids []string, status models.IssueStatus) (int64, error) {
	attrs := []attribute.KeyValue{
		attribute.String("tracker.issue.status", string(status)),
		attribute.Int("tracker.issue.count", len(ids)),
	}
	ctx, span, t := s.op(ctx, "BulkUpdateIssueStatus", attrs...)
	n, err := s.inner.BulkUpdateIssueStatus(ctx, ids, status)
	s.done(ctx, span, t, err, attrs...)
	return n, err
}

// ── Comments ────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) CreateComment(ctx context.Context, c *models.Comment, author *models.User) error {
	ctx, span, t := s.op(ctx, "CreateComment")
	err := s.inner.CreateComment(ctx, c, author)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStore) ListComments(ctx context.Context, issueID string) ([]*models.Comment, error) {
	ctx, span, t := s.op(ctx, "ListComments")
	v, err := s.inner.ListComments(ctx, issueID)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Labels ──────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) CreateLabel(ctx context.Context, label *models.Label) error {
	ctx, span, t := s.op(ctx, "CreateLabel")
	err := s.inner.CreateLabel(ctx, label)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStore) ListLabels(ctx context.Context) ([]*models.Label, error) {
	ctx, span, t := s.op(ctx, "ListLabels")
	v, err := s.inner.ListLabels(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) GetLabelByName(ctx context.Context, name string) (*models.Label, error) {
	ctx, span, t := s.op(ctx, "GetLabelByName")
	v, err := s.inner.GetLabelByName(ctx, name)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) ReplaceIssueLabels(ctx context.Context, issueID string, labelIDs []string) error {
	attrs := []attribute.KeyValue{attribute.Int("tracker.label.count", len(labelIDs))}
	ctx, span, t := s.op(ctx, "ReplaceIssueLabels", attrs...)
	err := s.inner.ReplaceIssueLabels(ctx, issueID, labelIDs)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) GetIssueLabels(ctx context.Context, issueID string) ([]*models.Label, error) {
	ctx, span, t := s.op(ctx, "GetIssueLabels")
	v, err := s.inner.GetIssueLabels(ctx, issueID)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Reports ─────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) ClosedIssueSpans(ctx context.Context) ([]store.IssueSpan, error) {
	ctx, span, t := s.op(ctx, "ClosedIssueSpans")
	v, err := s.inner.ClosedIssueSpans(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) CountUnresolvedByAssignee(ctx context.Context, limit int) ([]store.AssigneeCount, error) {
	ctx, span, t := s.op(ctx, "CountUnresolvedByAssignee")
	v, err := s.inner.CountUnresolvedByAssignee(ctx, limit)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Lifecycle ───────────────────────────────────────────────────────────────

func (s *InstrumentedStore) Ping(ctx context.Context) error {
	ctx, span, t := s.op(ctx, "Ping")
	err := s.inner.Ping(ctx)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStore) Migrate(ctx context.Context) error {
	ctx, span, t := s.op(ctx, "Migrate")
	err := s.inner.Migrate(ctx)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}
