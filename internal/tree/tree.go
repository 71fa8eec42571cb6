// Package tree implements the resource tree and the per-resource state and
// push algorithm of the resource base.
//
// Every entry — Namespace, Placeholder, Input, Output, Observation — lives
// in one arena keyed by a stable integer Handle; source/destination and
// parent/child edges are handles, not Go pointers. This removes reference
// cycles between entries and handlers and turns cycle detection in
// SetSource into a graph walk over handles.
package tree

import (
	"strings"
	"sync"

	"github.com/nxthongbk/datahub/internal/herr"
	"github.com/nxthongbk/datahub/internal/observation"
	"github.com/nxthongbk/datahub/internal/sample"
)

// Handle is a stable reference to a tree entry.
type Handle int

// invalidHandle marks "no parent" (the root) or "no source".
const invalidHandle Handle = 0

// Kind is the entry variant.
type Kind int

const (
	KindNamespace Kind = iota
	KindPlaceholder
	KindInput
	KindOutput
	KindObservation
)

func (k Kind) String() string {
	switch k {
	case KindNamespace:
		return "namespace"
	case KindPlaceholder:
		return "placeholder"
	case KindInput:
		return "input"
	case KindOutput:
		return "output"
	case KindObservation:
		return "observation"
	default:
		return "unknown"
	}
}

// PushHandler is invoked, in registration order, with every sample a
// resource accepts.
type PushHandler func(s sample.Sample)

// entry is one node in the arena. Namespace entries carry no resource
// state (units/default/override/etc. are meaningless for them).
type entry struct {
	handle Handle
	parent Handle
	name   string
	kind   Kind

	children []Handle

	// Resource state, meaningful for Input/Output/Observation/Placeholder.
	units          string
	hasDefault     bool
	defaultSample  sample.Sample
	hasOverride    bool
	overrideSample sample.Sample

	hasPushed bool
	pushed    sample.Sample
	pushedTyp sample.Type

	hasCurrent bool
	current    sample.Sample
	currentTyp sample.Type

	// dataType/hasDataType are fixed at creation for Input/Output: their
	// data type and units never change after creation. For Observation/
	// Placeholder, hasDataType tracks whatever was last pushed/promoted.
	dataType    sample.Type
	hasDataType bool

	source       Handle // invalidHandle if none
	destinations []Handle

	handlers []PushHandler

	obs *observation.Observation // non-nil only for KindObservation

	// administrative update fence state.
	fenced       bool // settings touched while fence is up
	hasPending   bool
	pendingType  sample.Type
	pendingValue sample.Sample
}

// Tree is the resource tree: a handle-keyed arena plus the root Namespace.
type Tree struct {
	mu      sync.Mutex
	entries map[Handle]*entry
	next    Handle
	root    Handle

	updating bool

	maxPathLength int
}

// New constructs an empty tree with a root Namespace.
func New(maxPathLength int) *Tree {
	t := &Tree{
		entries:       make(map[Handle]*entry),
		next:          invalidHandle + 1,
		maxPathLength: maxPathLength,
	}
	root := t.allocLocked("", invalidHandle, KindNamespace)
	t.root = root
	return t
}

// Root returns the handle of the root Namespace.
func (t *Tree) Root() Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.root
}

func (t *Tree) allocLocked(name string, parent Handle, kind Kind) Handle {
	h := t.next
	t.next++
	e := &entry{handle: h, parent: parent, name: name, kind: kind, source: invalidHandle}
	t.entries[h] = e
	if parent != invalidHandle {
		pe := t.entries[parent]
		pe.children = append(pe.children, h)
	}
	return h
}

func (t *Tree) get(h Handle) (*entry, error) {
	e, ok := t.entries[h]
	if !ok {
		return nil, herr.New(herr.NotFound, "handle %d does not exist", h)
	}
	return e, nil
}

// validateSegment enforces path segment naming rules: non-empty, no "/".
func validateSegment(seg string) error {
	if seg == "" {
		return herr.New(herr.Malformed, "path segment must not be empty")
	}
	if strings.Contains(seg, "/") {
		return herr.New(herr.Malformed, "path segment %q must not contain '/'", seg)
	}
	return nil
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func (t *Tree) checkPathLength(path string) error {
	if t.maxPathLength > 0 && len(path) > t.maxPathLength {
		return herr.New(herr.Overflow, "path %q exceeds maximum length %d", path, t.maxPathLength)
	}
	return nil
}

// FindEntry resolves path relative to base, returning herr.NotFound if any
// segment is missing. It never creates entries.
func (t *Tree) FindEntry(base Handle, path string) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.findLocked(base, path)
}

func (t *Tree) findLocked(base Handle, path string) (Handle, error) {
	cur, err := t.get(base)
	if err != nil {
		return invalidHandle, err
	}
	segs := splitPath(path)
	h := cur.handle
	for _, seg := range segs {
		if err := validateSegment(seg); err != nil {
			return invalidHandle, err
		}
		next, err := t.childNamed(h, seg)
		if err != nil {
			return invalidHandle, err
		}
		h = next
	}
	return h, nil
}

func (t *Tree) childNamed(parent Handle, name string) (Handle, error) {
	pe, err := t.get(parent)
	if err != nil {
		return invalidHandle, err
	}
	for _, c := range pe.children {
		if t.entries[c].name == name {
			return c, nil
		}
	}
	return invalidHandle, herr.New(herr.NotFound, "no child %q under handle %d", name, parent)
}

// GetEntry resolves path relative to base, creating missing Namespace
// entries along the way.
func (t *Tree) GetEntry(base Handle, path string) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkPathLength(path); err != nil {
		return invalidHandle, err
	}

	cur, err := t.get(base)
	if err != nil {
		return invalidHandle, err
	}
	h := cur.handle
	for _, seg := range splitPath(path) {
		if err := validateSegment(seg); err != nil {
			return invalidHandle, err
		}
		next, err := t.childNamed(h, seg)
		if err != nil {
			next = t.allocLocked(seg, h, KindNamespace)
		}
		h = next
	}
	return h, nil
}

// GetPath writes the path from the tree root down to entry, relative form
// without a leading slash for non-root entries.
func (t *Tree) GetPath(base, target Handle) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var segs []string
	h := target
	for h != base {
		e, err := t.get(h)
		if err != nil {
			return "", err
		}
		if h == t.root {
			break
		}
		segs = append([]string{e.name}, segs...)
		h = e.parent
	}
	return strings.Join(segs, "/"), nil
}

// ForEachResource performs a pre-order traversal over every resource entry
// (Input/Output/Observation/Placeholder — not bare Namespaces), in
// insertion order among siblings.
func (t *Tree) ForEachResource(f func(h Handle, kind Kind)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.walkLocked(t.root, f)
}

func (t *Tree) walkLocked(h Handle, f func(Handle, Kind)) {
	e := t.entries[h]
	if e.kind != KindNamespace {
		f(h, e.kind)
	}
	for _, c := range e.children {
		t.walkLocked(c, f)
	}
}
