package compaction

import (
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/tephradb/tephra/internal/manifest"
)

// PickerContext carries the table options a picker needs.
type PickerContext struct {
	SegmentDuration time.Duration
	TTL             time.Duration
	Strategy        manifest.CompactionStrategy
}

// NewPickerContext builds a context from table options. A table without a
// segment duration cannot be compacted; the second return is false then.
func NewPickerContext(opts manifest.TableOptions) (PickerContext, bool) {
	if opts.SegmentDuration <= 0 {
		return PickerContext{}, false
	}
	return PickerContext{
		SegmentDuration: opts.SegmentDuration,
		TTL:             opts.TTL,
		Strategy:        opts.CompactionStrategy,
	}, true
}

// Picker selects files from a table version to compact together.
type Picker interface {
	// PickCompaction returns the next task for the version. An empty task
	// (no inputs) means nothing to do.
	PickCompaction(ctx PickerContext, v *manifest.Version) (*CompactionTask, error)
}

// PickerManager caches one picker per strategy.
type PickerManager struct {
	timeWindow Picker
	sizeTiered Picker
}

// NewPickerManager creates the manager with the built-in pickers.
func NewPickerManager() *PickerManager {
	return &PickerManager{
		timeWindow: &TimeWindowPicker{},
		sizeTiered: &SizeTieredPicker{},
	}
}

// GetPicker returns the picker for a strategy. The default strategy
// resolves to time-window.
func (m *PickerManager) GetPicker(strategy manifest.CompactionStrategy) Picker {
	if strategy == manifest.StrategySizeTiered {
		return m.sizeTiered
	}
	return m.timeWindow
}

// TimeWindowPicker groups files into segment-duration windows and merges
// within the window holding the most mergeable files.
type TimeWindowPicker struct{}

// PickCompaction implements Picker.
func (p *TimeWindowPicker) PickCompaction(ctx PickerContext, v *manifest.Version) (*CompactionTask, error) {
	if ctx.SegmentDuration <= 0 {
		return nil, errors.New("compaction: time window picker needs a segment duration")
	}
	segmentMs := ctx.SegmentDuration.Milliseconds()

	windows := make(map[int64][]*manifest.FileMeta)
	for _, f := range v.Files() {
		if f.BeingCompacted() {
			continue
		}
		window := f.Time.InclusiveStart / segmentMs
		windows[window] = append(windows[window], f)
	}

	// Merge within the window holding the most files; ties go to the
	// oldest window so history drains first.
	var bestWindow int64
	var best []*manifest.FileMeta
	for w, files := range windows {
		if len(files) > len(best) || (len(files) == len(best) && w < bestWindow) {
			bestWindow, best = w, files
		}
	}
	if len(best) < 2 {
		return &CompactionTask{Reason: "time window: no mergeable window"}, nil
	}

	sort.Slice(best, func(i, j int) bool { return best[i].ID < best[j].ID })
	return &CompactionTask{
		Inputs: best,
		OutputTime: manifest.TimeRange{
			InclusiveStart: bestWindow * segmentMs,
			ExclusiveEnd:   (bestWindow + 1) * segmentMs,
		},
		Reason: "time window",
	}, nil
}

// SizeTieredPicker merges runs of similarly sized files, smallest tier
// first.
type SizeTieredPicker struct {
	// BucketRatio bounds the size spread within a tier (default 1.5).
	BucketRatio float64
	// MinThreshold is the minimum run length to merge (default 2).
	MinThreshold int
}

// PickCompaction implements Picker.
func (p *SizeTieredPicker) PickCompaction(ctx PickerContext, v *manifest.Version) (*CompactionTask, error) {
	ratio := p.BucketRatio
	if ratio <= 1 {
		ratio = 1.5
	}
	minRun := p.MinThreshold
	if minRun < 2 {
		minRun = 2
	}

	var files []*manifest.FileMeta
	for _, f := range v.Files() {
		if !f.BeingCompacted() {
			files = append(files, f)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Size < files[j].Size })

	// Greedy tiering over the sorted sizes: a file joins the current run
	// while it stays within ratio of the run's smallest member.
	runStart := 0
	for i := 1; i <= len(files); i++ {
		if i < len(files) && float64(files[i].Size) <= float64(files[runStart].Size)*ratio {
			continue
		}
		if i-runStart >= minRun {
			run := files[runStart:i]
			return &CompactionTask{
				Inputs:     run,
				OutputTime: unionTimeRange(run),
				Reason:     "size tiered",
			}, nil
		}
		runStart = i
	}
	return &CompactionTask{Reason: "size tiered: no mergeable run"}, nil
}

func unionTimeRange(files []*manifest.FileMeta) manifest.TimeRange {
	out := files[0].Time
	for _, f := range files[1:] {
		if f.Time.InclusiveStart < out.InclusiveStart {
			out.InclusiveStart = f.Time.InclusiveStart
		}
		if f.Time.ExclusiveEnd > out.ExclusiveEnd {
			out.ExclusiveEnd = f.Time.ExclusiveEnd
		}
	}
	return out
}
