package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumByAttr returns the counter value of the data point whose attribute key
// has value.
func sumByAttr(t *testing.T, met *metricdata.Metrics, key, value string) int64 {
	t.Helper()
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", met.Name)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func histCount(t *testing.T, rm metricdata.ResourceMetrics, name string) uint64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric %q is not a histogram", name)
	}
	var n uint64
	for _, dp := range hist.DataPoints {
		n += dp.Count
	}
	return n
}

func TestRecordUtterance(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordUtterance(ctx, "fr", 3*time.Millisecond, 0.25, nil)
	m.RecordUtterance(ctx, "fr", time.Millisecond, 0.5, nil)
	m.RecordUtterance(ctx, "en", time.Millisecond, 0, errors.New("boom"))

	rm := collect(t, reader)

	if got := histCount(t, rm, "asreval.alignment.duration"); got != 3 {
		t.Errorf("alignment duration samples = %d, want 3", got)
	}
	if got := histCount(t, rm, "asreval.utterance.wer"); got != 2 {
		t.Errorf("WER samples = %d, want 2 (failures are not recorded)", got)
	}

	met := findMetric(rm, "asreval.utterances")
	if met == nil {
		t.Fatal("asreval.utterances not found")
	}
	if got := sumByAttr(t, met, "language", "fr"); got != 2 {
		t.Errorf("fr utterances = %d, want 2", got)
	}
	if got := sumByAttr(t, met, "status", "error"); got != 1 {
		t.Errorf("failed utterances = %d, want 1", got)
	}
}

func TestRecordOperations(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordOperations(ctx, "CORRECT", 4)
	m.RecordOperations(ctx, "DELETION", 1)
	m.RecordOperations(ctx, "INSERTION", 0)

	met := findMetric(collect(t, reader), "asreval.operations")
	if met == nil {
		t.Fatal("asreval.operations not found")
	}
	if got := sumByAttr(t, met, "kind", "CORRECT"); got != 4 {
		t.Errorf("CORRECT = %d, want 4", got)
	}
	if got := sumByAttr(t, met, "kind", "DELETION"); got != 1 {
		t.Errorf("DELETION = %d, want 1", got)
	}
	if got := len(met.Data.(metricdata.Sum[int64]).DataPoints); got != 2 {
		t.Errorf("data points = %d, want 2 (zero adds are skipped)", got)
	}
}

func TestRecordFile(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFile(ctx, time.Second, nil)
	m.RecordFile(ctx, time.Second, errors.New("bad"))

	rm := collect(t, reader)
	if got := histCount(t, rm, "asreval.file.duration"); got != 2 {
		t.Errorf("file duration samples = %d, want 2", got)
	}
	met := findMetric(rm, "asreval.files")
	if met == nil {
		t.Fatal("asreval.files not found")
	}
	if got := sumByAttr(t, met, "status", "ok"); got != 1 {
		t.Errorf("ok files = %d, want 1", got)
	}
}

func TestStatus(t *testing.T) {
	if got := Status(nil); got != "ok" {
		t.Errorf("Status(nil) = %q", got)
	}
	if got := Status(errors.New("x")); got != "error" {
		t.Errorf("Status(err) = %q", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different pointers")
	}
}
