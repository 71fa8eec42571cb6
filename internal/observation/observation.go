// Package observation implements the Observation pipeline: the acceptance
// filter (range/deadband, override, change-by, min-period), JSON
// extraction, the circular sample buffer, the reported-value transform, and
// the streaming JSON buffer reader.
//
// An Observation is a leaf concept: it knows nothing about the resource
// tree or routing. internal/tree attaches one to each Observation-kind
// entry and drives it through Push; internal/backup reads and writes its
// buffer for persistence.
package observation

import (
	"math"
	"sync"
	"time"

	"github.com/nxthongbk/datahub/internal/debug"
	"github.com/nxthongbk/datahub/internal/hublog"
	"github.com/nxthongbk/datahub/internal/sample"
)

// Transform is the aggregate function that replaces an observation's
// reported current value.
type Transform int

const (
	TransformNone Transform = iota
	TransformMean
	TransformStdDev
	TransformMax
	TransformMin
)

func (t Transform) String() string {
	switch t {
	case TransformMean:
		return "mean"
	case TransformStdDev:
		return "stddev"
	case TransformMax:
		return "max"
	case TransformMin:
		return "min"
	default:
		return "none"
	}
}

// bufEntry is one buffered sample. evicted is set once the buffer drops it
// so a concurrent streaming reader holding the entry can notice and
// recover, without requiring a literal atomic reference count: the single
// mutex below already serializes every access, so a plain bool observed
// under that lock is enough.
type bufEntry struct {
	s       sample.Sample
	evicted bool
}

// Observation holds all Observation-specific state: filter limits,
// transform, buffer, backup bookkeeping, and active streaming readers.
type Observation struct {
	mu sync.Mutex

	highLimit float64 // NaN = unset
	lowLimit  float64 // NaN = unset
	changeBy  float64 // NaN or 0 = disabled
	minPeriod float64 // seconds; <= 0 = disabled

	transform Transform
	maxCount  int

	backupPeriod float64 // seconds; owned here for config purposes, driven by internal/backup
	extraction   string

	overridden     bool
	overrideSample sample.Sample

	bufferedType    sample.Type
	hasBufferedType bool
	buffer          []*bufEntry

	hasPrevAccepted bool
	prevAccepted    sample.Sample

	hasCurrent bool
	current    sample.Sample

	lastPushTime time.Time // monotonic clock, used for minPeriod spacing

	// now is overridable for deterministic tests.
	now func() time.Time

	readers map[int]*reader
	nextRdr int
}

// New constructs an empty Observation with both limits and changeBy unset
// (represented as NaN, which the filter treats as disabled).
func New() *Observation {
	return &Observation{
		highLimit: math.NaN(),
		lowLimit:  math.NaN(),
		changeBy:  math.NaN(),
		transform: TransformNone,
		now:       time.Now,
		readers:   make(map[int]*reader),
	}
}

// SetClock overrides the monotonic clock used for minPeriod bookkeeping.
// Test-only.
func (o *Observation) SetClock(now func() time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now = now
}

// --- filter configuration -------------------------------------------------

func (o *Observation) SetHighLimit(v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.highLimit = v
}

func (o *Observation) SetLowLimit(v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lowLimit = v
}

func (o *Observation) SetChangeBy(v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.changeBy = v
}

func (o *Observation) SetMinPeriod(seconds float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.minPeriod = seconds
}

func (o *Observation) SetJSONExtraction(path string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.extraction = path
}

func (o *Observation) JSONExtraction() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.extraction
}

// SetTransform changes the aggregate transform. Changing it clears the
// buffer and current value and, if maxCount is 0, forces maxCount to 1 so
// aggregates have at least one datum.
func (o *Observation) SetTransform(t Transform) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transform = t
	o.buffer = nil
	o.hasBufferedType = false
	o.hasCurrent = false
	if o.maxCount == 0 {
		o.maxCount = 1
	}
}

func (o *Observation) Transform() Transform {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.transform
}

// SetMaxCount changes the buffer capacity. It does not itself evict;
// eviction happens on the next accepted push.
func (o *Observation) SetMaxCount(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.maxCount = n
}

func (o *Observation) MaxCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.maxCount
}

func (o *Observation) SetBackupPeriod(seconds float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.backupPeriod = seconds
}

func (o *Observation) BackupPeriod() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.backupPeriod
}

// --- override --------------------------------------------------------------

// SetOverride sets the override sample. While overridden, every push is
// rejected and the current value is pinned.
func (o *Observation) SetOverride(s sample.Sample) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.overridden = true
	o.overrideSample = s
	o.hasCurrent = true
	o.current = s
}

func (o *Observation) ClearOverride() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.overridden = false
}

func (o *Observation) Overridden() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.overridden
}

// --- reads -------------------------------------------------------------

// Current returns the most recently reported current value.
func (o *Observation) Current() (sample.Sample, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current, o.hasCurrent
}

// BufferedType returns the data type of the buffer's contents.
func (o *Observation) BufferedType() (sample.Type, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.bufferedType, o.hasBufferedType
}

// Len returns the number of buffered samples.
func (o *Observation) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.buffer)
}

// Snapshot returns a copy of the buffered samples, oldest first. Used by
// internal/backup to serialize the buffer.
func (o *Observation) Snapshot() []sample.Sample {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]sample.Sample, len(o.buffer))
	for i, e := range o.buffer {
		out[i] = e.s
	}
	return out
}

// Push runs an incoming (type, sample) through the acceptance filter, the
// buffer, and the transform. It returns (accepted, reported) where
// reported is the value that should become the observation's new current
// value when accepted — it differs from the input sample only when a
// transform is active. Rejections are not errors, and neither is a sample
// dropped for a non-monotonic timestamp (it is logged and reported as not
// accepted); the returned error is always nil.
func (o *Observation) Push(t sample.Type, s sample.Sample) (accepted bool, reported sample.Sample, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	// JSON extraction happens before the range filter; non-JSON samples are
	// dropped when extraction is configured.
	if o.extraction != "" {
		if t != sample.JSON {
			debug.Logf("observation: dropping non-JSON sample, extraction=%q", o.extraction)
			return false, sample.Sample{}, nil
		}
		extracted, extractErr := sample.Extract(s, o.extraction)
		if extractErr != nil {
			hublog.Logger().Debug("json extraction failed", "path", o.extraction, "error", extractErr)
			return false, sample.Sample{}, nil
		}
		s = extracted
		t = extracted.Type()
	}

	if !o.passesRangeFilter(t, s) {
		return false, sample.Sample{}, nil
	}
	if o.overridden {
		debug.Logf("observation: push rejected, overridden")
		return false, sample.Sample{}, nil
	}
	if !o.passesChangeBy(t, s) {
		return false, sample.Sample{}, nil
	}
	if !o.passesMinPeriod() {
		return false, sample.Sample{}, nil
	}

	o.lastPushTime = o.now()
	o.hasPrevAccepted = true
	o.prevAccepted = s

	if o.maxCount > 0 {
		if !o.appendToBuffer(t, s) {
			return false, sample.Sample{}, nil
		}
	}

	reported = s
	if o.transform != TransformNone {
		if agg, ok := o.aggregateLocked(o.transform); ok {
			reported = sample.NewNumeric(s.Timestamp(), agg)
		}
	}

	o.hasCurrent = true
	o.current = reported

	return true, reported, nil
}

func (o *Observation) passesRangeFilter(t sample.Type, s sample.Sample) bool {
	if t != sample.Numeric {
		return true
	}
	v, _ := s.Float()
	h, l := o.highLimit, o.lowLimit

	hSet, lSet := !math.IsNaN(h), !math.IsNaN(l)

	if hSet && lSet && l > h {
		// Deadband: reject values strictly between H and L (i.e. l > x > h).
		if l > v && v > h {
			return false
		}
		return true
	}

	if lSet && v < l {
		return false
	}
	if hSet && v > h {
		return false
	}
	return true
}

func (o *Observation) passesChangeBy(t sample.Type, s sample.Sample) bool {
	if !o.hasPrevAccepted || o.prevAccepted.Type() != t {
		return true
	}

	switch t {
	case sample.Numeric:
		if math.IsNaN(o.changeBy) || o.changeBy == 0 {
			return true
		}
		v, _ := s.Float()
		pv, _ := o.prevAccepted.Float()
		return math.Abs(v-pv) >= o.changeBy
	case sample.Boolean:
		b, _ := s.Bool()
		pb, _ := o.prevAccepted.Bool()
		return b != pb
	case sample.String, sample.JSON:
		text, _ := s.Text()
		prevText, _ := o.prevAccepted.Text()
		return text != prevText
	case sample.Trigger:
		return true
	default:
		return true
	}
}

func (o *Observation) passesMinPeriod() bool {
	if o.minPeriod <= 0 || !o.hasPrevAccepted {
		return true
	}
	elapsed := o.now().Sub(o.lastPushTime)
	return elapsed >= time.Duration(o.minPeriod*float64(time.Second))
}

// appendToBuffer discards the buffer on a type change, appends to the
// tail, enforces monotonic timestamps, and evicts down to maxCount.
// Returns false if the sample violated tail monotonicity and was dropped —
// a logged rejection, not an error.
func (o *Observation) appendToBuffer(t sample.Type, s sample.Sample) bool {
	if !o.hasBufferedType || o.bufferedType != t {
		o.buffer = nil
		o.bufferedType = t
		o.hasBufferedType = true
	}

	if len(o.buffer) > 0 {
		tail := o.buffer[len(o.buffer)-1]
		if s.Timestamp() < tail.s.Timestamp() {
			hublog.Logger().Error("dropping non-monotonic sample",
				"tail_ts", tail.s.Timestamp(), "sample_ts", s.Timestamp())
			return false
		}
	}

	o.buffer = append(o.buffer, &bufEntry{s: s})
	o.evictLocked()
	return true
}

// Restore loads previously-persisted samples directly into the buffer,
// bypassing the acceptance filter. It raises
// maxCount to at least len(samples) but does not touch backupPeriod. It
// returns the newest restored sample so the caller can additionally push
// it through the full resource propagation pipeline (handlers,
// destinations) without that push re-appending it to the buffer.
func (o *Observation) Restore(samples []sample.Sample, bufferedType sample.Type) (newest sample.Sample, hasNewest bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.buffer = make([]*bufEntry, len(samples))
	for i, s := range samples {
		o.buffer[i] = &bufEntry{s: s}
	}

	if len(samples) == 0 {
		return sample.Sample{}, false
	}

	o.bufferedType = bufferedType
	o.hasBufferedType = true
	if o.maxCount < len(samples) {
		o.maxCount = len(samples)
	}

	newest = samples[len(samples)-1]
	o.hasPrevAccepted = true
	o.prevAccepted = newest
	o.hasCurrent = true

	reported := newest
	if o.transform != TransformNone {
		if agg, ok := o.aggregateLocked(o.transform); ok {
			reported = sample.NewNumeric(newest.Timestamp(), agg)
		}
	}
	o.current = reported

	return newest, true
}

func (o *Observation) evictLocked() {
	for o.maxCount > 0 && len(o.buffer) > o.maxCount {
		o.buffer[0].evicted = true
		o.buffer = o.buffer[1:]
	}
}
