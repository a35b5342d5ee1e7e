package manifest

import (
	"sync"
)

// Version is a table's live file set. Pickers read it to choose compaction
// inputs; flush and compaction install edits against it.
type Version struct {
	mu    sync.RWMutex
	files []*FileMeta
}

// NewVersion creates a version over the given files.
func NewVersion(files []*FileMeta) *Version {
	return &Version{files: files}
}

// Files returns a snapshot of the live files.
func (v *Version) Files() []*FileMeta {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]*FileMeta, len(v.files))
	copy(out, v.files)
	return out
}

// NumFiles returns the number of live files.
func (v *Version) NumFiles() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.files)
}

// AddFiles installs newly written files.
func (v *Version) AddFiles(files ...*FileMeta) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.files = append(v.files, files...)
}

// RemoveFiles drops files by id, typically compaction inputs that have been
// merged away.
func (v *Version) RemoveFiles(ids ...uint64) {
	drop := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	kept := v.files[:0]
	for _, f := range v.files {
		if _, gone := drop[f.ID]; !gone {
			kept = append(kept, f)
		}
	}
	v.files = kept
}
