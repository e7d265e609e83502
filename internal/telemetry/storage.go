package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/firegres/firegres/internal/storage"
)

const storageScopeName = "github.com/firegres/firegres/storage"

// InstrumentedStorage wraps storage.Storage with OTel tracing and metrics.
// Every method gets a span and is counted in firegres.storage.* metrics.
// Use WrapStorage to create one; it returns the original store unchanged
// when telemetry is disabled.
type InstrumentedStorage struct {
	inner  storage.Storage
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

var _ storage.Storage = (*InstrumentedStorage)(nil)

// WrapStorage returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is with zero overhead.
func WrapStorage(s storage.Storage) storage.Storage {
	if !Enabled() {
		return s
	}
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("firegres.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("firegres.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("firegres.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	return &InstrumentedStorage{
		inner:  s,
		tracer: Tracer(storageScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
}

// op starts a span and records a metric for the named storage operation.
func (s *InstrumentedStorage) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStorage) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func dbAttrs(name string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String("firegres.db", name)}
}

func pathAttrs(name, path string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("firegres.db", name),
		attribute.String("firegres.path", path),
	}
}

func (s *InstrumentedStorage) CreateDatabase(ctx context.Context, name string) (*storage.Database, error) {
	attrs := dbAttrs(name)
	ctx, span, t := s.op(ctx, "CreateDatabase", attrs...)
	_, err := s.inner.CreateDatabase(ctx, name)
	s.done(ctx, span, t, err, attrs...)
	if err != nil {
		return nil, err
	}
	// Rebind the handle so handle calls route through this wrapper.
	return storage.NewDatabase(name, s), nil
}

func (s *InstrumentedStorage) DeleteDatabase(ctx context.Context, name string) error {
	attrs := dbAttrs(name)
	ctx, span, t := s.op(ctx, "DeleteDatabase", attrs...)
	err := s.inner.DeleteDatabase(ctx, name)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) GetDatabase(ctx context.Context, name string) (*storage.Database, error) {
	attrs := dbAttrs(name)
	ctx, span, t := s.op(ctx, "GetDatabase", attrs...)
	db, err := s.inner.GetDatabase(ctx, name)
	s.done(ctx, span, t, err, attrs...)
	if err != nil || db == nil {
		return nil, err
	}
	return storage.NewDatabase(name, s), nil
}

func (s *InstrumentedStorage) ListDatabases(ctx context.Context) ([]string, error) {
	ctx, span, t := s.op(ctx, "ListDatabases")
	names, err := s.inner.ListDatabases(ctx)
	s.done(ctx, span, t, err)
	return names, err
}

func (s *InstrumentedStorage) Get(ctx context.Context, name, path string) (any, error) {
	attrs := pathAttrs(name, path)
	ctx, span, t := s.op(ctx, "Get", attrs...)
	v, err := s.inner.Get(ctx, name, path)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) Put(ctx context.Context, name, path string, value any) (any, error) {
	attrs := pathAttrs(name, path)
	ctx, span, t := s.op(ctx, "Put", attrs...)
	v, err := s.inner.Put(ctx, name, path, value)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) Patch(ctx context.Context, name, path string, value any) (any, error) {
	attrs := pathAttrs(name, path)
	ctx, span, t := s.op(ctx, "Patch", attrs...)
	v, err := s.inner.Patch(ctx, name, path, value)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) Post(ctx context.Context, name, path string, value any) (map[string]any, error) {
	attrs := pathAttrs(name, path)
	ctx, span, t := s.op(ctx, "Post", attrs...)
	v, err := s.inner.Post(ctx, name, path, value)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) Delete(ctx context.Context, name, path string) (bool, error) {
	attrs := pathAttrs(name, path)
	ctx, span, t := s.op(ctx, "Delete", attrs...)
	ok, err := s.inner.Delete(ctx, name, path)
	s.done(ctx, span, t, err, attrs...)
	return ok, err
}

func (s *InstrumentedStorage) Notifier(ctx context.Context, name, prefix string) (storage.Notifier, error) {
	attrs := pathAttrs(name, prefix)
	ctx, span, t := s.op(ctx, "Notifier", attrs...)
	sub, err := s.inner.Notifier(ctx, name, prefix)
	s.done(ctx, span, t, err, attrs...)
	return sub, err
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
