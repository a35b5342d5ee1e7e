package compaction

import (
	"testing"
	"time"

	"github.com/tephradb/tephra/internal/manifest"
)

func makeFileMeta(id uint64, size uint64, start, end int64) *manifest.FileMeta {
	return &manifest.FileMeta{
		ID:   id,
		Size: size,
		Time: manifest.TimeRange{InclusiveStart: start, ExclusiveEnd: end},
	}
}

// TestNewPickerContext requires a segment duration.
func TestNewPickerContext(t *testing.T) {
	if _, ok := NewPickerContext(manifest.TableOptions{}); ok {
		t.Error("options without segment duration should yield no context")
	}

	ctx, ok := NewPickerContext(manifest.TableOptions{
		SegmentDuration:    2 * time.Hour,
		TTL:                24 * time.Hour,
		CompactionStrategy: manifest.StrategyTimeWindow,
	})
	if !ok {
		t.Fatal("expected a valid context")
	}
	if ctx.SegmentDuration != 2*time.Hour || ctx.TTL != 24*time.Hour {
		t.Errorf("context fields wrong: %+v", ctx)
	}
}

// TestTimeWindowPickerPicksDensestWindow groups files by window and merges
// the fullest one.
func TestTimeWindowPickerPicksDensestWindow(t *testing.T) {
	hour := time.Hour.Milliseconds()
	v := manifest.NewVersion([]*manifest.FileMeta{
		makeFileMeta(1, 100, 0, hour),
		makeFileMeta(2, 100, 10, hour),
		makeFileMeta(3, 100, 20, hour),
		makeFileMeta(4, 100, hour, 2*hour),
	})

	picker := &TimeWindowPicker{}
	ctx := PickerContext{SegmentDuration: time.Hour}

	task, err := picker.PickCompaction(ctx, v)
	if err != nil {
		t.Fatalf("PickCompaction failed: %v", err)
	}
	if len(task.Inputs) != 3 {
		t.Fatalf("inputs = %d, want 3 (files in window 0)", len(task.Inputs))
	}
	for _, f := range task.Inputs {
		if f.Time.InclusiveStart >= hour {
			t.Errorf("file %d from wrong window", f.ID)
		}
	}
	if task.EstimatedTotalInputFileSize() != 300 {
		t.Errorf("estimated size = %d, want 300", task.EstimatedTotalInputFileSize())
	}
}

// TestTimeWindowPickerSkipsBeingCompacted excludes files already held by a
// running compaction.
func TestTimeWindowPickerSkipsBeingCompacted(t *testing.T) {
	hour := time.Hour.Milliseconds()
	f1 := makeFileMeta(1, 100, 0, hour)
	f2 := makeFileMeta(2, 100, 10, hour)
	f1.SetBeingCompacted(true)
	f2.SetBeingCompacted(true)
	v := manifest.NewVersion([]*manifest.FileMeta{f1, f2})

	picker := &TimeWindowPicker{}
	task, err := picker.PickCompaction(PickerContext{SegmentDuration: time.Hour}, v)
	if err != nil {
		t.Fatalf("PickCompaction failed: %v", err)
	}
	if !task.IsEmpty() {
		t.Errorf("expected empty task when all files are being compacted")
	}
}

// TestSizeTieredPickerMergesSimilarSizes picks a run of similar sizes and
// leaves the outlier alone.
func TestSizeTieredPickerMergesSimilarSizes(t *testing.T) {
	v := manifest.NewVersion([]*manifest.FileMeta{
		makeFileMeta(1, 100, 0, 10),
		makeFileMeta(2, 110, 0, 10),
		makeFileMeta(3, 120, 0, 10),
		makeFileMeta(4, 10000, 0, 10),
	})

	picker := &SizeTieredPicker{}
	task, err := picker.PickCompaction(PickerContext{SegmentDuration: time.Hour}, v)
	if err != nil {
		t.Fatalf("PickCompaction failed: %v", err)
	}
	if len(task.Inputs) != 3 {
		t.Fatalf("inputs = %d, want 3", len(task.Inputs))
	}
	for _, f := range task.Inputs {
		if f.Size > 120 {
			t.Errorf("outlier file %d picked", f.ID)
		}
	}
}

// TestPickerManagerStrategies maps strategies to pickers.
func TestPickerManagerStrategies(t *testing.T) {
	m := NewPickerManager()

	if _, ok := m.GetPicker(manifest.StrategyDefault).(*TimeWindowPicker); !ok {
		t.Error("default strategy should resolve to the time window picker")
	}
	if _, ok := m.GetPicker(manifest.StrategyTimeWindow).(*TimeWindowPicker); !ok {
		t.Error("time window strategy should resolve to the time window picker")
	}
	if _, ok := m.GetPicker(manifest.StrategySizeTiered).(*SizeTieredPicker); !ok {
		t.Error("size tiered strategy should resolve to the size tiered picker")
	}
}

// TestMarkFilesBeingCompacted flips and clears the input marks.
func TestMarkFilesBeingCompacted(t *testing.T) {
	f1 := makeFileMeta(1, 100, 0, 10)
	f2 := makeFileMeta(2, 100, 0, 10)
	task := &CompactionTask{Inputs: []*manifest.FileMeta{f1, f2}}

	task.MarkFilesBeingCompacted(true)
	if !f1.BeingCompacted() || !f2.BeingCompacted() {
		t.Error("files should be marked")
	}
	task.MarkFilesBeingCompacted(false)
	if f1.BeingCompacted() || f2.BeingCompacted() {
		t.Error("files should be unmarked")
	}
}
