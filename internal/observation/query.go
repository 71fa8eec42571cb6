package observation

import (
	"math"
	"time"

	"github.com/nxthongbk/datahub/internal/sample"
)

// thirtyYears draws the line between a relative and an absolute
// startTime: a value below this many seconds is interpreted as
// seconds-before-now; at or above it, as an absolute epoch timestamp.
const thirtyYears = 946684800.0

// resolveStartTime applies the 30-year relative/absolute convention, given
// a wall clock to compute "now" from.
func resolveStartTime(startTime float64, now time.Time) float64 {
	if startTime < thirtyYears {
		return float64(now.Unix()) - startTime
	}
	return startTime
}

// aggregateLocked computes t over the full buffer (no time range), for use
// by the reported-current-value transform. Caller must hold o.mu.
func (o *Observation) aggregateLocked(t Transform) (float64, bool) {
	vals := o.numericValuesLocked(math.Inf(-1))
	if len(vals) == 0 {
		return 0, false
	}
	return compute(t, vals), true
}

// numericValuesLocked collects AsFloat64 values for buffered samples with
// timestamp >= minTS. Returns nil if the buffer isn't Numeric/Boolean.
func (o *Observation) numericValuesLocked(minTS float64) []float64 {
	if !o.hasBufferedType || (o.bufferedType != sample.Numeric && o.bufferedType != sample.Boolean) {
		return nil
	}
	var vals []float64
	for _, e := range o.buffer {
		if e.s.Timestamp() < minTS {
			continue
		}
		if v, ok := e.s.AsFloat64(); ok {
			vals = append(vals, v)
		}
	}
	return vals
}

func compute(t Transform, vals []float64) float64 {
	switch t {
	case TransformMax:
		return maxOf(vals)
	case TransformMin:
		return minOf(vals)
	case TransformStdDev:
		return stddevOf(vals)
	default: // TransformMean and fallback
		return meanOf(vals)
	}
}

func meanOf(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func stddevOf(vals []float64) float64 {
	mean := meanOf(vals)
	sumSq := 0.0
	for _, v := range vals {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(vals)))
}

func maxOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// QueryMean returns the mean of buffered samples with timestamp in range,
// or NaN if bufferedType isn't Numeric/Boolean, the buffer is empty, or no
// samples fall in range.
func (o *Observation) QueryMean(startTime float64) float64 { return o.query(startTime, TransformMean) }

// QueryStdDev returns the population standard deviation (divide by N).
func (o *Observation) QueryStdDev(startTime float64) float64 {
	return o.query(startTime, TransformStdDev)
}

// QueryMax returns the maximum buffered value in range.
func (o *Observation) QueryMax(startTime float64) float64 { return o.query(startTime, TransformMax) }

// QueryMin returns the minimum buffered value in range.
func (o *Observation) QueryMin(startTime float64) float64 { return o.query(startTime, TransformMin) }

func (o *Observation) query(startTime float64, t Transform) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	start := resolveStartTime(startTime, o.now())
	vals := o.numericValuesLocked(start)
	if len(vals) == 0 {
		return math.NaN()
	}
	return compute(t, vals)
}
