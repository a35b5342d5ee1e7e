package compaction

import (
	"github.com/tephradb/tephra/internal/manifest"
)

// CompactionTask is the unit of work a picker produces: the input files to
// merge and the shape of the output.
type CompactionTask struct {
	// Inputs are the files to merge.
	Inputs []*manifest.FileMeta

	// OutputTime is the time range the merged output covers.
	OutputTime manifest.TimeRange

	// Reason records why the picker chose these inputs.
	Reason string
}

// IsEmpty reports whether the task has no input files.
func (t *CompactionTask) IsEmpty() bool {
	return len(t.Inputs) == 0
}

// EstimatedTotalInputFileSize sums the input file sizes.
func (t *CompactionTask) EstimatedTotalInputFileSize() uint64 {
	var total uint64
	for _, f := range t.Inputs {
		total += f.Size
	}
	return total
}

// MarkFilesBeingCompacted flips the compaction mark on every input file.
// The scheduler loop is the only caller that sets it, and it runs
// single-consumer, so marking needs no extra locking; workers unset it on
// failure before exiting.
func (t *CompactionTask) MarkFilesBeingCompacted(v bool) {
	for _, f := range t.Inputs {
		f.SetBeingCompacted(v)
	}
}
