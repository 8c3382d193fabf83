package sink

import (
	"context"
	"errors"

	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/model"
)

// SnapshotWriter consumes snapshots in global order.
type SnapshotWriter interface {
	WriteSnapshot(ctx context.Context, s model.Snapshot) error
	Close(ctx context.Context) error
	Discard()
}

// MetricWriter consumes per-second metric records.
type MetricWriter interface {
	WriteMetric(ctx context.Context, r model.MetricRecord) error
	Close(ctx context.Context) error
	Discard()
}

// Multi fans records out to every configured writer.
type Multi struct {
	Snapshots []SnapshotWriter
	Metrics   []MetricWriter
}

// WriteSnapshot forwards s to every snapshot writer.
func (m *Multi) WriteSnapshot(ctx context.Context, s model.Snapshot) error {
	for _, w := range m.Snapshots {
		if err := w.WriteSnapshot(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// WriteMetric forwards r to every metric writer.
func (m *Multi) WriteMetric(ctx context.Context, r model.MetricRecord) error {
	for _, w := range m.Metrics {
		if err := w.WriteMetric(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every writer and returns the joined errors.
func (m *Multi) Close(ctx context.Context) error {
	var errs []error
	for _, w := range m.Snapshots {
		errs = append(errs, w.Close(ctx))
	}
	for _, w := range m.Metrics {
		errs = append(errs, w.Close(ctx))
	}
	return errors.Join(errs...)
}

// Discard drops every writer's pending output.
func (m *Multi) Discard() {
	for _, w := range m.Snapshots {
		w.Discard()
	}
	for _, w := range m.Metrics {
		w.Discard()
	}
}

// Empty reports whether no writer is configured.
func (m *Multi) Empty() bool {
	return len(m.Snapshots) == 0 && len(m.Metrics) == 0
}
