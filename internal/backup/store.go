package backup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/nxthongbk/datahub/internal/backup/index"
	"github.com/nxthongbk/datahub/internal/herr"
	"github.com/nxthongbk/datahub/internal/hublog"
	"github.com/nxthongbk/datahub/internal/observation"
	"github.com/nxthongbk/datahub/internal/sample"
)

// Store persists observation buffers under root, one file per observation
// at <root>/<path-under-/obs/>.bak. It also maintains a small sqlite index
// of every path it has ever backed up, so a sweep can flag a .bak file
// that was never written through this store (dropped in by hand, or left
// over from a different process) rather than treat every unrecognized
// file identically to a merely-orphaned one.
type Store struct {
	root string
	idx  *index.Index // nil if the index could not be opened; degrades gracefully

	mu      sync.Mutex
	entries map[string]*tracked
}

// tracked is the write-cadence bookkeeping for one observation's backup
// file.
type tracked struct {
	obs            *observation.Observation
	lastBackupTime time.Time
	timer          *time.Timer
	period         time.Duration
	snapshot       func() (sample.Type, []sample.Sample)
	mu             sync.Mutex
}

// New constructs a Store rooted at root. The sqlite cross-check index
// lives at <root>/.index.sqlite3; if it cannot be opened (read-only
// filesystem, missing driver data, ...) the store degrades to tracking
// backups purely from the live observation list a caller passes to
// Sweep.
func New(root string) *Store {
	st := &Store{root: root, entries: make(map[string]*tracked)}

	if err := os.MkdirAll(root, 0o755); err != nil {
		hublog.Logger().Warn("create backup root failed, index disabled", "root", root, "error", err)
		return st
	}
	idx, err := index.Open(filepath.Join(root, ".index.sqlite3"))
	if err != nil {
		hublog.Logger().Warn("open backup index failed, sweep will rely on live observations only", "root", root, "error", err)
		return st
	}
	st.idx = idx
	return st
}

func (st *Store) filePath(obsPath string) string {
	return filepath.Join(st.root, filepath.FromSlash(obsPath)+".bak")
}

func (st *Store) lockPath(path string) string {
	return path + ".lock"
}

// Write atomically serializes the observation's buffer to disk using a
// temp-file + fsync + rename pattern, so the .bak path never holds a
// half-written file. An advisory flock on <file>.lock serializes
// concurrent writers of the same file; Sweep does not take it.
func (st *Store) Write(obsPath string, bufferedType sample.Type, samples []sample.Sample) error {
	data, err := Encode(bufferedType, samples)
	if err != nil {
		return err
	}

	path := st.filePath(obsPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return herr.Wrap(herr.IOError, err, "create backup directory for %s", obsPath)
	}

	lock := flock.New(st.lockPath(path))
	if err := lock.Lock(); err != nil {
		return herr.Wrap(herr.IOError, err, "lock backup file %s", path)
	}
	defer lock.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(path), ".bak-*.tmp")
	if err != nil {
		return herr.Wrap(herr.IOError, err, "create temp backup file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return herr.Wrap(herr.IOError, err, "write temp backup file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return herr.Wrap(herr.IOError, err, "fsync temp backup file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return herr.Wrap(herr.IOError, err, "close temp backup file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return herr.Wrap(herr.IOError, err, "rename backup file into place")
	}
	if err := fsyncDir(filepath.Dir(path)); err != nil {
		hublog.Logger().Warn("fsync backup directory failed", "dir", filepath.Dir(path), "error", err)
	}

	if st.idx != nil {
		if err := st.idx.Record(context.Background(), obsPath, time.Now().Unix(), len(samples)); err != nil {
			hublog.Logger().Warn("backup index record failed", "path", obsPath, "error", err)
		}
	}
	return nil
}

// Delete removes the backup file for obsPath, if present.
func (st *Store) Delete(obsPath string) error {
	path := st.filePath(obsPath)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return herr.Wrap(herr.IOError, err, "remove backup file %s", path)
	}
	os.Remove(st.lockPath(path))

	if st.idx != nil {
		if err := st.idx.Forget(context.Background(), obsPath); err != nil {
			hublog.Logger().Warn("backup index forget failed", "path", obsPath, "error", err)
		}
	}
	return nil
}

// Restore loads a matching backup file, if any, directly into obs's buffer
// and pushes the newest record through push so it becomes the current
// value. Any parse error discards the buffer and leaves the observation
// empty rather than propagating — a backup read failure must not block
// startup.
func (st *Store) Restore(obsPath string, obs *observation.Observation, push func(t sample.Type, s sample.Sample)) {
	path := st.filePath(obsPath)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			hublog.Logger().Warn("backup restore read failed", "path", path, "error", err)
		}
		return
	}

	t, samples, err := Decode(data)
	if err != nil {
		hublog.Logger().Error("backup restore parse failed, starting empty", "path", path, "error", err)
		return
	}

	newest, ok := obs.Restore(samples, t)
	if ok && push != nil {
		push(t, newest)
	}
}

// ArmWriteCadence registers obs for cadence-driven backups at obsPath.
// The caller arranges for this to run after every accepted push (see
// internal/hub's push handler on Observation creation) and whenever
// backupPeriod itself changes; write immediately if backupPeriod has
// elapsed since the last write, otherwise (re-)arm a timer for the
// remaining interval. Once armed, the timer keeps rewriting itself every
// backupPeriod seconds on its own — an observation that stops receiving
// pushes still gets its buffer flushed to disk on schedule. snapshot must
// return the observation's current buffered type and samples.
func (st *Store) ArmWriteCadence(obsPath string, obs *observation.Observation, backupPeriod float64, snapshot func() (sample.Type, []sample.Sample)) {
	st.mu.Lock()
	tr, ok := st.entries[obsPath]
	if !ok {
		tr = &tracked{obs: obs}
		st.entries[obsPath] = tr
	}
	st.mu.Unlock()

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.timer != nil {
		tr.timer.Stop()
		tr.timer = nil
	}
	tr.snapshot = snapshot

	if backupPeriod <= 0 {
		tr.period = 0
		if err := st.Delete(obsPath); err != nil {
			hublog.Logger().Warn("delete backup file on disabled cadence failed", "path", obsPath, "error", err)
		}
		return
	}
	tr.period = time.Duration(backupPeriod * float64(time.Second))

	elapsed := time.Since(tr.lastBackupTime)
	if tr.lastBackupTime.IsZero() || elapsed >= tr.period {
		st.writeNowLocked(obsPath, tr)
		return
	}

	st.scheduleLocked(obsPath, tr, tr.period-elapsed)
}

// scheduleLocked arms tr's timer to fire writeNowLocked after delay. The
// caller must hold tr.mu.
func (st *Store) scheduleLocked(obsPath string, tr *tracked, delay time.Duration) {
	tr.timer = time.AfterFunc(delay, func() {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		st.writeNowLocked(obsPath, tr)
	})
}

// writeNowLocked performs one cadence-driven write and, if a period is
// still configured, re-arms the timer for the next cycle — whether or
// not this write succeeded, so a transient failure doesn't permanently
// stop future attempts. The caller must hold tr.mu.
func (st *Store) writeNowLocked(obsPath string, tr *tracked) {
	t, samples := tr.snapshot()
	if err := st.Write(obsPath, t, samples); err != nil {
		hublog.Logger().Error("scheduled backup write failed, will retry next cycle", "path", obsPath, "error", err)
	} else {
		tr.lastBackupTime = time.Now()
	}
	if tr.period > 0 {
		st.scheduleLocked(obsPath, tr, tr.period)
	}
}

// CancelCadence stops any pending timer for obsPath and forgets it.
func (st *Store) CancelCadence(obsPath string) {
	st.mu.Lock()
	tr, ok := st.entries[obsPath]
	delete(st.entries, obsPath)
	st.mu.Unlock()
	if !ok {
		return
	}
	tr.mu.Lock()
	if tr.timer != nil {
		tr.timer.Stop()
	}
	tr.mu.Unlock()
}

// obsPathFromFile derives the /obs/-relative path a backup file path
// corresponds to, stripping the store root and the .bak suffix.
func (st *Store) obsPathFromFile(file string) (string, bool) {
	rel, err := filepath.Rel(st.root, file)
	if err != nil {
		return "", false
	}
	if !strings.HasSuffix(rel, ".bak") {
		return "", false
	}
	rel = strings.TrimSuffix(rel, ".bak")
	return filepath.ToSlash(rel), true
}
