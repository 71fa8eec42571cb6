// Package hub is the facade wiring the resource tree, the observation
// pipeline, and the backup store into the single surface the rest of the
// repository drives: push/read/subscribe, admin operations, aggregate
// queries, and the update fence.
package hub

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/nxthongbk/datahub/internal/backup"
	"github.com/nxthongbk/datahub/internal/config"
	"github.com/nxthongbk/datahub/internal/hublog"
	"github.com/nxthongbk/datahub/internal/observation"
	"github.com/nxthongbk/datahub/internal/sample"
	"github.com/nxthongbk/datahub/internal/tree"
)

// backupKey maps an observation's resource-tree path (e.g. "obs/log") to
// the path-under-/obs/ the backup store keys files by
// (<backup-root>/<path-under-/obs/>.bak).
func backupKey(obsPath string) string {
	return strings.TrimPrefix(strings.TrimPrefix(obsPath, "/"), "obs/")
}

// Hub is the process-wide Data Hub instance.
type Hub struct {
	tr    *tree.Tree
	store *backup.Store

	mu        sync.Mutex
	obsPeriod map[tree.Handle]float64 // backupPeriod per observation, for cadence + sweep
}

// New constructs a Hub. backupRoot is the directory backing the backup
// store (config key "backup-root"); maxPathLength bounds resource paths
// (config key "max-path-length").
func New(backupRoot string, maxPathLength int) *Hub {
	return &Hub{
		tr:        tree.New(maxPathLength),
		store:     backup.New(backupRoot),
		obsPeriod: make(map[tree.Handle]float64),
	}
}

// NewFromConfig builds a Hub using values read from internal/config.
func NewFromConfig() *Hub {
	return New(config.GetString("backup-root"), config.GetInt("max-path-length"))
}

// Root returns the resource tree's root handle, the base for path-relative
// operations.
func (h *Hub) Root() tree.Handle { return h.tr.Root() }

// CreateInput creates (or idempotently validates) an Input resource.
func (h *Hub) CreateInput(path, units string, t sample.Type) (tree.Handle, error) {
	return h.tr.CreateInput(h.tr.Root(), path, units, t)
}

// CreateOutput creates (or idempotently validates) an Output resource.
func (h *Hub) CreateOutput(path, units string, t sample.Type) (tree.Handle, error) {
	return h.tr.CreateOutput(h.tr.Root(), path, units, t)
}

// CreateObservation creates (or returns) an Observation resource under
// /obs/, restoring any matching backup file and arming it for cadence
// re-evaluation on every subsequently accepted push.
func (h *Hub) CreateObservation(path string) (tree.Handle, error) {
	handle, err := h.tr.CreateObservation(h.tr.Root(), path)
	if err != nil {
		return tree.Handle(0), err
	}
	obs, err := h.tr.Observation(handle)
	if err != nil {
		return handle, err
	}

	h.store.Restore(backupKey(path), obs, func(t sample.Type, s sample.Sample) {
		h.tr.Push(handle, t, s)
	})

	h.mu.Lock()
	_, alreadyWired := h.obsPeriod[handle]
	if !alreadyWired {
		h.obsPeriod[handle] = 0
	}
	h.mu.Unlock()

	if !alreadyWired {
		h.tr.AddPushHandler(handle, func(sample.Sample) {
			h.mu.Lock()
			period := h.obsPeriod[handle]
			h.mu.Unlock()
			if period <= 0 {
				return
			}
			h.store.ArmWriteCadence(backupKey(path), obs, period, func() (sample.Type, []sample.Sample) {
				t, _ := obs.BufferedType()
				return t, obs.Snapshot()
			})
		})
	}

	return handle, nil
}

// Find resolves path relative to base without creating anything.
func (h *Hub) Find(base tree.Handle, path string) (tree.Handle, error) {
	return h.tr.FindEntry(base, path)
}

// Push delivers a sample to the resource at path relative to the root.
func (h *Hub) Push(path string, t sample.Type, s sample.Sample) (bool, sample.Sample, error) {
	handle, err := h.tr.FindEntry(h.tr.Root(), path)
	if err != nil {
		return false, sample.Sample{}, err
	}
	return h.tr.Push(handle, t, s)
}

// PushHandle delivers a sample directly to a known handle.
func (h *Hub) PushHandle(handle tree.Handle, t sample.Type, s sample.Sample) (bool, sample.Sample, error) {
	return h.tr.Push(handle, t, s)
}

// Current returns the current value of the resource at path.
func (h *Hub) Current(path string) (sample.Sample, bool, error) {
	handle, err := h.tr.FindEntry(h.tr.Root(), path)
	if err != nil {
		return sample.Sample{}, false, err
	}
	return h.tr.Current(handle)
}

// SetSource wires dstPath to read from srcPath.
func (h *Hub) SetSource(dstPath, srcPath string) error {
	dst, err := h.tr.FindEntry(h.tr.Root(), dstPath)
	if err != nil {
		return err
	}
	src, err := h.tr.FindEntry(h.tr.Root(), srcPath)
	if err != nil {
		return err
	}
	return h.tr.SetSource(dst, src)
}

// SetDefault sets the default value of the resource at path.
func (h *Hub) SetDefault(path string, s sample.Sample) error {
	handle, err := h.tr.FindEntry(h.tr.Root(), path)
	if err != nil {
		return err
	}
	return h.tr.SetDefault(handle, s)
}

// SetOverride sets (resource- or observation-level) override on path.
func (h *Hub) SetOverride(path string, s sample.Sample) error {
	handle, err := h.tr.FindEntry(h.tr.Root(), path)
	if err != nil {
		return err
	}
	return h.tr.SetOverride(handle, s)
}

// ClearOverride clears the override on path.
func (h *Hub) ClearOverride(path string) error {
	handle, err := h.tr.FindEntry(h.tr.Root(), path)
	if err != nil {
		return err
	}
	return h.tr.ClearOverride(handle)
}

// Observation returns the observation state for an Observation path, to
// inspect or configure filters/transform/backup cadence directly. A
// caller that mutates filter settings through the returned value during
// an EnterUpdate/LeaveUpdate bracket should prefer ConfigureObservation,
// which also raises the update fence on the observation's resource.
func (h *Hub) Observation(path string) (*observation.Observation, tree.Handle, error) {
	handle, err := h.tr.FindEntry(h.tr.Root(), path)
	if err != nil {
		return nil, handle, err
	}
	obs, err := h.tr.Observation(handle)
	return obs, handle, err
}

// ConfigureObservation resolves path, runs configure against its
// Observation, then marks the resource fenced — so if this runs inside
// an EnterUpdate/LeaveUpdate bracket, pushes it receives before the
// fence is lowered buffer only the latest sample rather than propagate
// immediately, the same administrative treatment SetSource/SetDefault/
// SetOverride get.
func (h *Hub) ConfigureObservation(path string, configure func(*observation.Observation)) error {
	obs, handle, err := h.Observation(path)
	if err != nil {
		return err
	}
	configure(obs)
	return h.tr.MarkFenced(handle)
}

// SetBackupPeriod updates an observation's backup cadence and (re)arms its
// write timer.
func (h *Hub) SetBackupPeriod(path string, seconds float64) error {
	obs, handle, err := h.Observation(path)
	if err != nil {
		return err
	}
	obs.SetBackupPeriod(seconds)

	h.mu.Lock()
	h.obsPeriod[handle] = seconds
	h.mu.Unlock()

	h.store.ArmWriteCadence(backupKey(path), obs, seconds, func() (sample.Type, []sample.Sample) {
		t, _ := obs.BufferedType()
		return t, obs.Snapshot()
	})
	return h.tr.MarkFenced(handle)
}

// Delete removes the resource at path, cleaning up its backup file if it
// was an Observation.
func (h *Hub) Delete(path string) error {
	handle, err := h.tr.FindEntry(h.tr.Root(), path)
	if err != nil {
		return err
	}
	wasObs, err := h.tr.Delete(handle)
	if err != nil {
		return err
	}
	if wasObs {
		key := backupKey(path)
		h.store.CancelCadence(key)
		if err := h.store.Delete(key); err != nil {
			hublog.Logger().Warn("delete backup file failed", "path", path, "error", err)
		}
		h.mu.Lock()
		delete(h.obsPeriod, handle)
		h.mu.Unlock()
	}
	return nil
}

// ReadBufferJSON streams the buffered samples of the observation at path.
func (h *Hub) ReadBufferJSON(ctx context.Context, path string, startAfter float64, sink observation.Sink, onDone func(observation.Result)) error {
	obs, _, err := h.Observation(path)
	if err != nil {
		return err
	}
	obs.ReadBufferJSON(ctx, startAfter, sink, onDone)
	return nil
}

// QueryMean/QueryStdDev/QueryMax/QueryMin run an aggregate query over the
// observation at path.
func (h *Hub) QueryMean(path string, startTime float64) (float64, error) {
	return h.query(path, startTime, (*observation.Observation).QueryMean)
}
func (h *Hub) QueryStdDev(path string, startTime float64) (float64, error) {
	return h.query(path, startTime, (*observation.Observation).QueryStdDev)
}
func (h *Hub) QueryMax(path string, startTime float64) (float64, error) {
	return h.query(path, startTime, (*observation.Observation).QueryMax)
}
func (h *Hub) QueryMin(path string, startTime float64) (float64, error) {
	return h.query(path, startTime, (*observation.Observation).QueryMin)
}

func (h *Hub) query(path string, startTime float64, fn func(*observation.Observation, float64) float64) (float64, error) {
	obs, _, err := h.Observation(path)
	if err != nil {
		return 0, err
	}
	return fn(obs, startTime), nil
}

// EnterUpdate/LeaveUpdate bracket an administrative batch of settings
// changes. Leaving the fence also runs the orphan backup sweep.
func (h *Hub) EnterUpdate() { h.tr.EnterUpdate() }

func (h *Hub) LeaveUpdate() {
	h.tr.LeaveUpdate()
	if err := h.SweepOrphanBackups(context.Background()); err != nil {
		hublog.Logger().Warn("orphan backup sweep failed", "error", err)
	}
}

// SweepOrphanBackups removes backup files with no corresponding live,
// backed-up observation.
func (h *Hub) SweepOrphanBackups(ctx context.Context) error {
	var live []backup.LiveObservation
	h.tr.ForEachResource(func(handle tree.Handle, kind tree.Kind) {
		if kind != tree.KindObservation {
			return
		}
		path, err := h.tr.GetPath(h.tr.Root(), handle)
		if err != nil {
			return
		}
		h.mu.Lock()
		period := h.obsPeriod[handle]
		h.mu.Unlock()
		live = append(live, backup.LiveObservation{Path: backupKey(path), BackupPeriod: period})
	})
	_ = ctx
	return h.store.Sweep(live)
}

// WatchBackupRoot starts an optional fsnotify watcher over the backup
// root, forcing any observation whose file is modified externally to be
// re-restored on its next create.
func (h *Hub) WatchBackupRoot(root string) (*backup.Watcher, error) {
	return backup.NewWatcher(h.store, root, func(obsPath string) {
		hublog.Logger().Info("backup file stale, will re-restore on next create", "path", obsPath)
	})
}

// Now is a small convenience re-exported for CLI callers that need the
// wall clock formatted consistently with hub-internal timestamps.
func Now() string { return time.Now().UTC().Format(time.RFC3339) }
