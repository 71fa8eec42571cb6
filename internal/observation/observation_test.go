package observation

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/nxthongbk/datahub/internal/sample"
)

func TestHighLimitFilter(t *testing.T) {
	o := New()
	o.SetHighLimit(30)

	accepted, reported, err := o.Push(sample.Numeric, sample.NewNumeric(1.0, 25.0))
	if err != nil || !accepted {
		t.Fatalf("expected 25.0 (below highLimit) to be accepted, err=%v accepted=%v", err, accepted)
	}
	if v, _ := reported.Float(); v != 25.0 {
		t.Fatalf("expected reported 25.0, got %v", v)
	}

	accepted, _, err = o.Push(sample.Numeric, sample.NewNumeric(2.0, 35.0))
	if err != nil {
		t.Fatalf("push error: %v", err)
	}
	if accepted {
		t.Fatal("expected 35.0 (above highLimit) to be rejected")
	}

	cur, _ := o.Current()
	if v, _ := cur.Float(); v != 25.0 {
		t.Fatalf("expected current to remain 25.0 after rejected push, got %v", v)
	}
}

func TestDeadband(t *testing.T) {
	// Scenario S2: lowLimit=10, highLimit=5 (deadband).
	o := New()
	o.SetLowLimit(10)
	o.SetHighLimit(5)

	cases := []struct {
		v    float64
		want bool
	}{
		{7, false},
		{4, true},
		{11, true},
	}

	for _, c := range cases {
		accepted, _, err := o.Push(sample.Numeric, sample.NewNumeric(float64(time.Now().Unix()), c.v))
		if err != nil {
			t.Fatalf("push error: %v", err)
		}
		if accepted != c.want {
			t.Fatalf("value %v: accepted=%v, want %v", c.v, accepted, c.want)
		}
	}
}

func TestTransformMeanWithCapacity(t *testing.T) {
	// Scenario S3: transform=Mean, maxCount=3.
	o := New()
	o.SetTransform(TransformMean)
	o.SetMaxCount(3)

	pushes := []struct {
		ts, v float64
	}{{1, 1.0}, {2, 2.0}, {3, 3.0}, {4, 4.0}}

	var lastReported sample.Sample
	for _, p := range pushes {
		accepted, reported, err := o.Push(sample.Numeric, sample.NewNumeric(p.ts, p.v))
		if err != nil || !accepted {
			t.Fatalf("push(%v) failed: accepted=%v err=%v", p, accepted, err)
		}
		lastReported = reported
	}

	if o.Len() != 3 {
		t.Fatalf("expected buffer len 3, got %d", o.Len())
	}
	got, _ := lastReported.Float()
	if got != 3.0 {
		t.Fatalf("expected reported mean 3.0, got %v", got)
	}

	snap := o.Snapshot()
	want := []float64{2, 3, 4}
	for i, s := range snap {
		v, _ := s.Float()
		if v != want[i] {
			t.Fatalf("buffer[%d] = %v, want %v", i, v, want[i])
		}
	}
}

func TestJSONExtraction(t *testing.T) {
	// Scenario S5.
	o := New()
	o.SetJSONExtraction("sensor.temp")

	accepted, reported, err := o.Push(sample.JSON, sample.NewJSON(1.0, `{"sensor":{"temp":21.5}}`))
	if err != nil {
		t.Fatalf("push error: %v", err)
	}
	if !accepted {
		t.Fatal("expected extraction push to be accepted")
	}
	if reported.Type() != sample.Numeric {
		t.Fatalf("expected Numeric after extraction, got %s", reported.Type())
	}
	v, _ := reported.Float()
	if v != 21.5 {
		t.Fatalf("expected 21.5, got %v", v)
	}
}

func TestChangeByIdempotence(t *testing.T) {
	o := New()
	o.SetChangeBy(1.0)

	accepted, _, err := o.Push(sample.Numeric, sample.NewNumeric(1, 10.0))
	if err != nil || !accepted {
		t.Fatalf("first push should be accepted, err=%v", err)
	}

	accepted, _, err = o.Push(sample.Numeric, sample.NewNumeric(2, 10.0))
	if err != nil {
		t.Fatalf("push error: %v", err)
	}
	if accepted {
		t.Fatal("expected unchanged value within changeBy to be rejected")
	}
}

func TestMinPeriod(t *testing.T) {
	o := New()
	o.SetMinPeriod(1.0)

	now := time.Unix(1000, 0)
	o.SetClock(func() time.Time { return now })

	accepted, _, err := o.Push(sample.Numeric, sample.NewNumeric(1000, 1))
	if err != nil || !accepted {
		t.Fatalf("first push should be accepted, err=%v", err)
	}

	accepted, _, err = o.Push(sample.Numeric, sample.NewNumeric(1000.5, 2))
	if err != nil {
		t.Fatalf("push error: %v", err)
	}
	if accepted {
		t.Fatal("expected push within minPeriod to be rejected")
	}

	now = time.Unix(1002, 0)
	accepted, _, err = o.Push(sample.Numeric, sample.NewNumeric(1002, 3))
	if err != nil || !accepted {
		t.Fatalf("push after minPeriod elapsed should be accepted, err=%v", err)
	}
}

func TestOverrideDominance(t *testing.T) {
	o := New()
	o.SetOverride(sample.NewNumeric(0, 42))

	cur, ok := o.Current()
	if !ok {
		t.Fatal("expected current value to be set")
	}
	v, _ := cur.Float()
	if v != 42 {
		t.Fatalf("expected override value 42, got %v", v)
	}

	accepted, _, err := o.Push(sample.Numeric, sample.NewNumeric(1, 100))
	if err != nil {
		t.Fatalf("push error: %v", err)
	}
	if accepted {
		t.Fatal("expected every push to be rejected while overridden")
	}

	o.ClearOverride()
	accepted, _, err = o.Push(sample.Numeric, sample.NewNumeric(2, 100))
	if err != nil || !accepted {
		t.Fatalf("expected push to be accepted after clearing override, err=%v", err)
	}
}

func TestAggregateQueries(t *testing.T) {
	o := New()
	o.SetMaxCount(10)
	// Pin the clock at t=10 so a 10-second window reaches back to t=0 and
	// covers every sample below.
	o.SetClock(func() time.Time { return time.Unix(10, 0) })

	vals := []float64{1, 2, 3, 4, 5}
	for i, v := range vals {
		if _, _, err := o.Push(sample.Numeric, sample.NewNumeric(float64(i+1), v)); err != nil {
			t.Fatalf("push error: %v", err)
		}
	}

	if mean := o.QueryMean(10); mean != 3 {
		t.Fatalf("expected mean 3, got %v", mean)
	}
	if mx := o.QueryMax(10); mx != 5 {
		t.Fatalf("expected max 5, got %v", mx)
	}
	if mn := o.QueryMin(10); mn != 1 {
		t.Fatalf("expected min 1, got %v", mn)
	}
	want := math.Sqrt(2.0)
	if sd := o.QueryStdDev(10); math.Abs(sd-want) > 1e-9 {
		t.Fatalf("expected stddev %v, got %v", want, sd)
	}
}

func TestQueryEmptyBufferReturnsNaN(t *testing.T) {
	o := New()
	o.SetMaxCount(5)
	if v := o.QueryMean(0); !math.IsNaN(v) {
		t.Fatalf("expected NaN for empty buffer, got %v", v)
	}
}

type fakeSink struct {
	written []byte
	ready   chan struct{}
}

func newFakeSink() *fakeSink {
	return &fakeSink{ready: make(chan struct{})}
}

func (f *fakeSink) TryWrite(p []byte) (int, bool, error) {
	f.written = append(f.written, p...)
	return len(p), true, nil
}

func (f *fakeSink) WriteReady() <-chan struct{} { return f.ready }

func TestReadBufferJSON(t *testing.T) {
	o := New()
	o.SetMaxCount(10)
	o.SetClock(func() time.Time { return time.Unix(10, 0) })
	o.Push(sample.String, sample.NewString(1, "a"))
	o.Push(sample.String, sample.NewString(2, "b"))

	sink := newFakeSink()
	done := make(chan Result, 1)
	o.ReadBufferJSON(context.Background(), 10, sink, func(r Result) { done <- r })

	result := <-done
	if result != ResultOK {
		t.Fatalf("expected ResultOK, got %v", result)
	}

	want := `[{"t":1,"v":"a"},{"t":2,"v":"b"}]`
	if string(sink.written) != want {
		t.Fatalf("got %s, want %s", sink.written, want)
	}
}

type blockingSink struct {
	blockAfter int
	written    []byte
	ready      chan struct{}
	blocked    bool
}

func newBlockingSink(blockAfter int) *blockingSink {
	return &blockingSink{blockAfter: blockAfter, ready: make(chan struct{}, 1)}
}

func (b *blockingSink) TryWrite(p []byte) (int, bool, error) {
	if b.blocked {
		b.blocked = false
		b.written = append(b.written, p...)
		return len(p), true, nil
	}
	if len(b.written)+len(p) > b.blockAfter {
		n := b.blockAfter - len(b.written)
		if n < 0 {
			n = 0
		}
		b.written = append(b.written, p[:n]...)
		b.blocked = true
		go func() { b.ready <- struct{}{} }()
		return n, n == len(p), nil
	}
	b.written = append(b.written, p...)
	return len(p), true, nil
}

func (b *blockingSink) WriteReady() <-chan struct{} { return b.ready }

// stalledSink never accepts a byte and never signals writable again, so a
// reader writing to it stays blocked until it is canceled.
type stalledSink struct{ ready chan struct{} }

func (s *stalledSink) TryWrite(p []byte) (int, bool, error) { return 0, false, nil }
func (s *stalledSink) WriteReady() <-chan struct{}          { return s.ready }

func TestReadBufferJSONBackpressure(t *testing.T) {
	o := New()
	o.SetMaxCount(10)
	o.SetClock(func() time.Time { return time.Unix(10, 0) })
	o.Push(sample.String, sample.NewString(1, "a"))
	o.Push(sample.String, sample.NewString(2, "b"))

	sink := newBlockingSink(8)
	done := make(chan Result, 1)
	o.ReadBufferJSON(context.Background(), 10, sink, func(r Result) { done <- r })

	result := <-done
	if result != ResultOK {
		t.Fatalf("expected ResultOK, got %v", result)
	}

	want := `[{"t":1,"v":"a"},{"t":2,"v":"b"}]`
	if string(sink.written) != want {
		t.Fatalf("got %s, want %s", sink.written, want)
	}
}

func TestCancelReaders(t *testing.T) {
	o := New()
	o.SetMaxCount(10)
	o.Push(sample.String, sample.NewString(1, "a"))

	sink := &stalledSink{ready: make(chan struct{})}
	done := make(chan Result, 1)
	go o.ReadBufferJSON(context.Background(), 0, sink, func(r Result) { done <- r })

	// Give the reader a chance to register and block on the first write.
	time.Sleep(20 * time.Millisecond)
	o.CancelReaders()

	result := <-done
	if result != ResultCanceled {
		t.Fatalf("expected ResultCanceled, got %v", result)
	}
}
