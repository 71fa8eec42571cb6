package backup

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/nxthongbk/datahub/internal/hublog"
)

// LiveObservation is the minimal view the sweep needs per observation
// still present in the tree.
type LiveObservation struct {
	Path         string // /obs/-relative
	BackupPeriod float64
}

// Sweep walks root depth-first and unlinks any .bak file whose derived
// observation path either has no matching live observation or belongs to
// one with backupPeriod = 0. Empty directories left behind are removed.
// It is invoked when the update fence is lowered.
//
// When the sqlite index is available, a .bak file that is neither in
// live nor recorded in the index is logged as unrecognized before being
// removed, distinguishing a file this store genuinely orphaned from one
// dropped into the backup root by something else.
func (st *Store) Sweep(live []LiveObservation) error {
	wanted := make(map[string]bool, len(live))
	for _, l := range live {
		if l.BackupPeriod > 0 {
			wanted[l.Path] = true
		}
	}

	if _, err := os.Stat(st.root); os.IsNotExist(err) {
		return nil
	}

	var known map[string]bool
	if st.idx != nil {
		k, err := st.idx.Known(context.Background())
		if err != nil {
			hublog.Logger().Warn("backup index query failed, sweep continuing without it", "error", err)
		} else {
			known = k
		}
	}

	removed, err := st.sweepDir(st.root, wanted, known)
	if err != nil {
		return err
	}
	hublog.Logger().Debug("orphan backup sweep complete", "removed", removed)
	return nil
}

// sweepDir processes one directory depth-first, returning how many files
// it removed. Subdirectories left empty are removed here; the caller
// checks dir itself. known is the index's bookkeeping, or nil if
// unavailable.
func (st *Store) sweepDir(dir string, wanted, known map[string]bool) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	remaining := 0
	for _, de := range entries {
		full := filepath.Join(dir, de.Name())
		if de.IsDir() {
			n, err := st.sweepDir(full, wanted, known)
			if err != nil {
				return removed, err
			}
			removed += n
			if empty, _ := isDirEmpty(full); empty {
				os.Remove(full)
			} else {
				remaining++
			}
			continue
		}

		if strings.HasSuffix(de.Name(), ".lock") {
			continue
		}
		if !strings.HasSuffix(de.Name(), ".bak") {
			remaining++
			continue
		}

		obsPath, ok := st.obsPathFromFile(full)
		if !ok || !wanted[obsPath] {
			if ok && known != nil && !known[obsPath] {
				hublog.Logger().Warn("orphan sweep: removing unrecognized backup file", "path", full)
			}
			if err := os.Remove(full); err != nil {
				hublog.Logger().Warn("orphan sweep: failed to remove backup file", "path", full, "error", err)
				remaining++
				continue
			}
			os.Remove(st.lockPath(full))
			if st.idx != nil && ok {
				if err := st.idx.Forget(context.Background(), obsPath); err != nil {
					hublog.Logger().Warn("backup index forget failed", "path", obsPath, "error", err)
				}
			}
			removed++
			continue
		}
		remaining++
	}
	return removed, nil
}

func isDirEmpty(dir string) (bool, error) {
	f, err := os.Open(dir)
	if err != nil {
		return false, err
	}
	defer f.Close()
	_, err = f.Readdirnames(1)
	return err != nil, nil
}
