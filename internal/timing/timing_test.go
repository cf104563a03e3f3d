package timing

import (
	"bytes"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveAccumulates(t *testing.T) {
	rec := NewRecorder(nil)
	rec.Observe("build", 2*time.Millisecond)
	rec.Observe("build", 4*time.Millisecond)
	rec.Observe("extrema", time.Millisecond)

	k, ok := rec.Stage("build")
	require.True(t, ok)
	assert.Equal(t, 2, k.Count)
	assert.Equal(t, 6*time.Millisecond, k.Total)
	assert.Equal(t, 3*time.Millisecond, k.Mean())
	assert.Equal(t, 2*time.Millisecond, k.Min)
	assert.Equal(t, 4*time.Millisecond, k.Max)

	stages := rec.Stages()
	require.Len(t, stages, 2)
	assert.Equal(t, "build", stages[0].Name)
	assert.Equal(t, "extrema", stages[1].Name)

	_, ok = rec.Stage("descriptors")
	assert.False(t, ok)
}

func TestTimeStops(t *testing.T) {
	rec := NewRecorder(nil)
	stop := rec.Time("orientation")
	stop()

	k, ok := rec.Stage("orientation")
	require.True(t, ok)
	assert.Equal(t, 1, k.Count)
}

func TestMetricsExported(t *testing.T) {
	rec := NewRecorder(nil)
	rec.Observe("build", time.Millisecond)
	rec.AddDropped("extrema", 7)
	rec.AddDropped("extrema", 0)

	assert.Equal(t, 7.0, testutil.ToFloat64(rec.dropped.WithLabelValues("extrema")))
	assert.Equal(t, 1, testutil.CollectAndCount(rec.durations))
}

func TestReportAndReset(t *testing.T) {
	rec := NewRecorder(nil)
	rec.Observe("build", time.Millisecond)

	var buf bytes.Buffer
	rec.Report(&buf)
	out := buf.String()
	assert.Contains(t, out, "STAGE")
	assert.Contains(t, out, "build")

	rec.Reset()
	assert.Empty(t, rec.Stages())
}
