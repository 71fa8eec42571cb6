package tree

import (
	"github.com/nxthongbk/datahub/internal/herr"
	"github.com/nxthongbk/datahub/internal/hublog"
	"github.com/nxthongbk/datahub/internal/sample"
)

// SetSource wires dst to read from src, rejecting the edge with
// herr.Duplicate if it would close a cycle in the source graph. The graph
// is left unchanged on rejection.
func (t *Tree) SetSource(dst, src Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	d, err := t.get(dst)
	if err != nil {
		return err
	}
	s, err := t.get(src)
	if err != nil {
		return err
	}

	if t.reachesLocked(dst, src) {
		return herr.New(herr.Duplicate, "setSource(%d, %d) would create a cycle", dst, src)
	}

	old := d.source
	if old != invalidHandle {
		t.removeDestLocked(old, dst)
	}
	d.source = src
	s.destinations = append(s.destinations, dst)

	if old != src {
		t.markFencedLocked(d)
	}

	t.synthesizeDefaultLocked(d)
	return nil
}

// ClearSource removes dst's current source, if any.
func (t *Tree) ClearSource(dst Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, err := t.get(dst)
	if err != nil {
		return err
	}
	if d.source != invalidHandle {
		t.removeDestLocked(d.source, dst)
		d.source = invalidHandle
		t.markFencedLocked(d)
	}
	return nil
}

func (t *Tree) removeDestLocked(src, dst Handle) {
	s := t.entries[src]
	for i, h := range s.destinations {
		if h == dst {
			s.destinations = append(s.destinations[:i], s.destinations[i+1:]...)
			return
		}
	}
}

// reachesLocked reports whether a directed path exists from `from` to
// `to`, following `destinations` edges (i.e. from a resource to what it
// feeds). Wiring dst<-src introduces a path
// src->...->dst via existing edges only if src is already reachable
// from dst by walking destinations, which is equivalent to asking
// whether dst is an ancestor-by-source of src.
func (t *Tree) reachesLocked(from, to Handle) bool {
	if from == to {
		return true
	}
	seen := map[Handle]bool{}
	var walk func(h Handle) bool
	walk = func(h Handle) bool {
		if h == to {
			return true
		}
		if seen[h] {
			return false
		}
		seen[h] = true
		e := t.entries[h]
		for _, d := range e.destinations {
			if walk(d) {
				return true
			}
		}
		return false
	}
	return walk(from)
}

// synthesizeDefaultLocked fires when a route is created and the source has
// no current value but the destination has a default: it pushes the
// default once so downstream handlers observe an initial value.
func (t *Tree) synthesizeDefaultLocked(d *entry) {
	src := t.entries[d.source]
	if src.hasCurrent {
		return
	}
	if !d.hasDefault {
		return
	}
	t.pushLocked(d.handle, d.defaultSample.Type(), d.defaultSample)
}

// Push delivers (T, S) to resource R, running the six-step push algorithm
// and recursing depth-first into R's destinations. Returns whether R
// itself accepted the sample and, if so, the value reported as R's
// current value (which may differ from S under a transform).
func (t *Tree) Push(h Handle, T sample.Type, S sample.Sample) (bool, sample.Sample, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pushLocked(h, T, S)
}

func (t *Tree) pushLocked(h Handle, T sample.Type, S sample.Sample) (bool, sample.Sample, error) {
	e, err := t.get(h)
	if err != nil {
		return false, sample.Sample{}, err
	}

	if e.fenced {
		e.hasPending = true
		e.pendingType = T
		e.pendingValue = S
		return false, sample.Sample{}, nil
	}

	// Step 2: Observation pipeline. Observations own their override state
	// internally as part of their acceptance filter, so the base resource's
	// override (step 1) does not apply to them.
	if e.kind == KindObservation {
		accepted, reported, err := e.obs.Push(T, S)
		if err != nil {
			return false, sample.Sample{}, err
		}
		if !accepted {
			return false, sample.Sample{}, nil
		}
		return t.commitLocked(e, T, S, reported)
	}

	// Step 1: override substitution (non-Observation resources only).
	if e.hasOverride && e.overrideSample.Type() == T {
		S = e.overrideSample.WithTimestamp(S.Timestamp())
	}

	// Step 3: Input/Output declared-type check.
	if (e.kind == KindInput || e.kind == KindOutput) && e.hasDataType && T != e.dataType {
		return false, sample.Sample{}, nil
	}

	if e.hasOverride {
		return false, sample.Sample{}, nil
	}

	return t.commitLocked(e, T, S, S)
}

// commitLocked performs steps 4-6: record pushed/current value, invoke
// handlers, recurse into destinations. reported is the value published as
// currentValue (equal to S except when an Observation transform is active).
func (t *Tree) commitLocked(e *entry, T sample.Type, S, reported sample.Sample) (bool, sample.Sample, error) {
	reportedType := reported.Type()

	e.hasPushed = true
	e.pushed = S
	e.pushedTyp = T

	if !e.hasDataType || e.kind == KindObservation || e.kind == KindPlaceholder || e.dataType == reportedType {
		e.dataType = reportedType
		e.hasDataType = true
		e.current = reported
		e.currentTyp = reportedType
		e.hasCurrent = true
	}

	for _, fn := range e.handlers {
		fn(reported)
	}

	hublog.Logger().Debug("resource push", "handle", e.handle, "name", e.name, "type", reportedType.String())

	for _, dstH := range e.destinations {
		if _, _, err := t.pushLocked(dstH, reportedType, reported); err != nil {
			return true, reported, err
		}
	}

	return true, reported, nil
}
