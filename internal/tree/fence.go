package tree

// EnterUpdate raises the process-wide "updating" fence. While raised,
// resources whose routing or filter settings are modified via MarkFenced
// buffer only the latest incoming push and defer propagation.
func (t *Tree) EnterUpdate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.updating = true
}

// MarkFenced flags a resource as "settings modified while updating",
// switching its pushes to buffer-latest-and-defer mode. It is a no-op
// outside an EnterUpdate/LeaveUpdate bracket.
func (t *Tree) MarkFenced(h Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := t.get(h)
	if err != nil {
		return err
	}
	t.markFencedLocked(e)
	return nil
}

// markFencedLocked is MarkFenced's body for callers that already hold
// t.mu and already have the entry resolved (SetSource, SetDefault,
// SetOverride, ClearOverride). A no-op unless the fence is currently
// raised.
func (t *Tree) markFencedLocked(e *entry) {
	if t.updating {
		e.fenced = true
	}
}

// LeaveUpdate lowers the fence and flushes, exactly once each, every
// resource's buffered pending sample.
func (t *Tree) LeaveUpdate() {
	t.mu.Lock()
	t.updating = false
	var pending []*entry
	for _, e := range t.entries {
		if e.fenced {
			e.fenced = false
			if e.hasPending {
				pending = append(pending, e)
			}
		}
	}
	t.mu.Unlock()

	for _, e := range pending {
		t.mu.Lock()
		T, S := e.pendingType, e.pendingValue
		e.hasPending = false
		t.mu.Unlock()

		t.mu.Lock()
		_, _, _ = t.pushLocked(e.handle, T, S)
		t.mu.Unlock()
	}
}
