package telemetry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/store"
)

var _ store.Store = (*InstrumentedStore)(nil)

func newTestSQLite(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

// installTestProviders swaps in in-memory providers for the test's duration.
func installTestProviders(t *testing.T) (*sdkmetric.ManualReader, *tracetest.SpanRecorder) {
	t.Helper()
	prevMP, prevTP := otel.GetMeterProvider(), otel.GetTracerProvider()

	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	t.Cleanup(func() {
		otel.SetMeterProvider(prevMP)
		otel.SetTracerProvider(prevTP)
	})
	return reader, recorder
}

func sumOf(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestWrapStore_DisabledReturnsInner(t *testing.T) {
	require.NoError(t, Init(context.Background(), Config{}, "tracker", "test"))
	inner := newTestSQLite(t)
	assert.Same(t, inner, WrapStore(inner))
}

func TestInstrumentedStore_RecordsOperations(t *testing.T) {
	reader, recorder := installTestProviders(t)
	s := newInstrumentedStore(newTestSQLite(t))
	ctx := context.Background()

	issue := &models.Issue{
		Title: "T", Description: "D", Status: models.IssueStatusOpen,
		Priority: models.IssuePriorityHigh, AuthorID: "alice",
	}
	require.NoError(t, s.CreateIssue(ctx, issue, models.SyntheticUser("alice", models.DefaultUserDomain)))

	_, err := s.GetIssue(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	n, err := s.ConditionalUpdateIssue(ctx, issue.ID, 5, models.IssuePatch{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	assert.Equal(t, int64(3), sumOf(t, reader, "tracker.storage.operations"))
	assert.Equal(t, int64(1), sumOf(t, reader, "tracker.storage.errors"))
	assert.Equal(t, int64(1), sumOf(t, reader, "tracker.storage.version_mismatches"))

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.Equal(t, []string{"storage.CreateIssue", "storage.GetIssue", "storage.ConditionalUpdateIssue"}, names)
}
