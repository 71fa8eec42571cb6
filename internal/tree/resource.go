package tree

import (
	"github.com/nxthongbk/datahub/internal/herr"
	"github.com/nxthongbk/datahub/internal/observation"
	"github.com/nxthongbk/datahub/internal/sample"
)

// obsReservedPrefix is the reserved namespace: "/obs/" may only contain
// Observation entries.
const obsReservedPrefix = "obs"

func isUnderReservedNamespace(base Handle, t *Tree, segs []string) bool {
	if base == t.root && len(segs) > 0 && segs[0] == obsReservedPrefix {
		return true
	}
	return false
}

// getOrCreate resolves (or creates, promoting Namespace/Placeholder
// entries along the way) the entry at path relative to base, then
// promotes the final segment to kind, enforcing the promotion rules:
//
//   - Missing intermediate segments are created as Namespaces.
//   - Namespace/Placeholder -> {Input, Output, Observation} promotes in
//     place; the entry keeps its existing default, override, routes and
//     handlers, and the caller supplies units/data type.
//   - Input <-> Output is forbidden.
//   - {Input, Output} <-> Observation is forbidden.
//   - Re-creating with the identical kind/units/dataType is idempotent.
//   - only Observation entries may live directly under "/obs".
func (t *Tree) getOrCreate(base Handle, path string, kind Kind, units string, dt sample.Type) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkPathLength(path); err != nil {
		return invalidHandle, err
	}

	segs := splitPath(path)
	if len(segs) == 0 {
		return invalidHandle, herr.New(herr.Malformed, "path must not be empty")
	}
	if kind != KindObservation && isUnderReservedNamespace(base, t, segs) {
		return invalidHandle, herr.New(herr.Malformed, "only observations may be created under /obs")
	}

	cur, err := t.get(base)
	if err != nil {
		return invalidHandle, err
	}
	h := cur.handle
	for i, seg := range segs {
		if err := validateSegment(seg); err != nil {
			return invalidHandle, err
		}
		last := i == len(segs)-1
		next, err := t.childNamed(h, seg)
		if err != nil {
			if !last {
				next = t.allocLocked(seg, h, KindNamespace)
			} else {
				next = t.allocLocked(seg, h, kind)
				e := t.entries[next]
				t.initResourceLocked(e, kind, units, dt)
				h = next
				break
			}
		}
		h = next
		if last {
			e := t.entries[h]
			if err := t.promoteLocked(e, kind, units, dt); err != nil {
				return invalidHandle, err
			}
		}
	}
	return h, nil
}

func (t *Tree) initResourceLocked(e *entry, kind Kind, units string, dt sample.Type) {
	e.units = units
	if kind == KindInput || kind == KindOutput {
		e.dataType = dt
		e.hasDataType = true
	}
	if kind == KindObservation {
		e.obs = observation.New()
	}
}

// promoteLocked enforces the transition rules above against an existing
// entry e that GetOrCreate walked to.
func (t *Tree) promoteLocked(e *entry, kind Kind, units string, dt sample.Type) error {
	switch e.kind {
	case KindNamespace, KindPlaceholder:
		e.kind = kind
		t.initResourceLocked(e, kind, units, dt)
		return nil
	case KindInput, KindOutput:
		if e.kind != kind {
			return herr.New(herr.WrongKind, "resource already exists as %s, cannot become %s", e.kind, kind)
		}
		if (kind == KindInput || kind == KindOutput) && e.hasDataType && e.dataType != dt {
			return herr.New(herr.Mismatch, "resource data type %s does not match existing %s", dt, e.dataType)
		}
		if e.units != units {
			return herr.New(herr.Mismatch, "resource units %q do not match existing %q", units, e.units)
		}
		return nil
	case KindObservation:
		if kind != KindObservation {
			return herr.New(herr.WrongKind, "resource already exists as observation, cannot become %s", kind)
		}
		return nil
	default:
		return herr.New(herr.Fatal, "unreachable entry kind %v", e.kind)
	}
}

// CreateInput creates (or idempotently re-validates) an Input resource at
// path relative to base.
func (t *Tree) CreateInput(base Handle, path, units string, dt sample.Type) (Handle, error) {
	return t.getOrCreate(base, path, KindInput, units, dt)
}

// CreateOutput creates (or idempotently re-validates) an Output resource.
func (t *Tree) CreateOutput(base Handle, path, units string, dt sample.Type) (Handle, error) {
	return t.getOrCreate(base, path, KindOutput, units, dt)
}

// CreateObservation creates (or returns the existing) Observation resource.
func (t *Tree) CreateObservation(base Handle, path string) (Handle, error) {
	return t.getOrCreate(base, path, KindObservation, "", sample.Trigger)
}

// Kind returns the entry's current kind.
func (t *Tree) Kind(h Handle) (Kind, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := t.get(h)
	if err != nil {
		return 0, err
	}
	return e.kind, nil
}

// Observation returns the underlying observation state for an Observation
// entry, or herr.WrongKind otherwise.
func (t *Tree) Observation(h Handle) (*observation.Observation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := t.get(h)
	if err != nil {
		return nil, err
	}
	if e.kind != KindObservation {
		return nil, herr.New(herr.WrongKind, "handle %d is not an observation", h)
	}
	return e.obs, nil
}

// SetDefault sets the resource's default value, applied whenever it has
// neither a source nor an override.
func (t *Tree) SetDefault(h Handle, s sample.Sample) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := t.get(h)
	if err != nil {
		return err
	}
	changed := !e.hasDefault || !e.defaultSample.Equal(s)
	e.hasDefault = true
	e.defaultSample = s
	if !e.hasPushed && e.source == invalidHandle && !e.hasOverride {
		t.applyValueLocked(e, s)
	}
	if changed {
		t.markFencedLocked(e)
	}
	return nil
}

// SetOverride pins the resource's current value and blocks further pushes
// from changing it. Observations keep their own override state as part of
// their acceptance filter and are delegated to rather than tracked here.
func (t *Tree) SetOverride(h Handle, s sample.Sample) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := t.get(h)
	if err != nil {
		return err
	}
	if e.kind == KindObservation {
		e.obs.SetOverride(s)
		t.applyValueLocked(e, s)
		t.markFencedLocked(e)
		return nil
	}
	changed := !e.hasOverride || !e.overrideSample.Equal(s)
	e.hasOverride = true
	e.overrideSample = s
	t.applyValueLocked(e, s)
	if changed {
		t.markFencedLocked(e)
	}
	return nil
}

// ClearOverride removes a resource-level override, restoring push flow.
func (t *Tree) ClearOverride(h Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := t.get(h)
	if err != nil {
		return err
	}
	if e.kind == KindObservation {
		e.obs.ClearOverride()
		if cur, ok := e.obs.Current(); ok {
			t.applyValueLocked(e, cur)
		}
		t.markFencedLocked(e)
		return nil
	}
	if e.hasOverride {
		t.markFencedLocked(e)
	}
	e.hasOverride = false
	if e.hasPushed {
		t.applyValueLocked(e, e.pushed)
	} else if e.hasDefault {
		t.applyValueLocked(e, e.defaultSample)
	}
	return nil
}

func (t *Tree) applyValueLocked(e *entry, s sample.Sample) {
	e.hasCurrent = true
	e.current = s
	e.currentTyp = s.Type()
}

// Current returns the resource's current reported value.
func (t *Tree) Current(h Handle) (sample.Sample, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := t.get(h)
	if err != nil {
		return sample.Sample{}, false, err
	}
	return e.current, e.hasCurrent, nil
}

// AddPushHandler registers a handler invoked, in registration order, on
// every value this resource accepts.
func (t *Tree) AddPushHandler(h Handle, fn PushHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := t.get(h)
	if err != nil {
		return err
	}
	e.handlers = append(e.handlers, fn)
	return nil
}
