package tree

// hasSettingsLocked reports whether e carries admin state worth
// preserving as a Placeholder rather than pruning outright.
func hasSettingsLocked(e *entry) bool {
	return e.hasDefault || e.hasOverride || e.source != invalidHandle ||
		len(e.destinations) > 0 || len(e.handlers) > 0
}

// Delete removes the entry at h. Input/Output entries with remaining
// admin settings demote to Placeholder instead of disappearing; bare
// Namespaces and settings-free Placeholders are pruned, cascading upward
// through now-empty ancestor Namespaces. Observation deletion cancels its
// active streaming readers; the caller (the hub facade, which owns the
// backup store) is responsible for removing the on-disk backup file —
// wasDeletedObservation reports whether that cleanup is needed.
func (t *Tree) Delete(h Handle) (wasDeletedObservation bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, err := t.get(h)
	if err != nil {
		return false, err
	}

	if e.source != invalidHandle {
		t.removeDestLocked(e.source, h)
	}
	for _, d := range e.destinations {
		t.entries[d].source = invalidHandle
	}

	if e.kind == KindObservation {
		e.obs.CancelReaders()
		t.pruneLocked(e)
		return true, nil
	}

	if (e.kind == KindInput || e.kind == KindOutput) && hasSettingsLocked(e) {
		e.kind = KindPlaceholder
		e.hasDataType = false
		return false, nil
	}

	t.pruneLocked(e)
	return false, nil
}

// pruneLocked removes e from its parent's child list and recurses upward
// while each ancestor Namespace is left empty and settings-free.
func (t *Tree) pruneLocked(e *entry) {
	if e.handle == t.root {
		return
	}
	parent := e.parent
	delete(t.entries, e.handle)

	pe := t.entries[parent]
	for i, c := range pe.children {
		if c == e.handle {
			pe.children = append(pe.children[:i], pe.children[i+1:]...)
			break
		}
	}

	if parent != t.root && pe.kind == KindNamespace && len(pe.children) == 0 {
		t.pruneLocked(pe)
	}
}
