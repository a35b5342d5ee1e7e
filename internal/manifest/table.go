package manifest

import (
	"sync/atomic"
	"time"

	"github.com/tephradb/tephra/internal/compression"
)

// CompactionStrategy selects the picker used for a table.
type CompactionStrategy uint8

const (
	// StrategyDefault resolves to time-window compaction.
	StrategyDefault CompactionStrategy = iota
	// StrategyTimeWindow groups files into segment-duration windows and
	// merges within a window.
	StrategyTimeWindow
	// StrategySizeTiered merges runs of similarly sized files.
	StrategySizeTiered
)

// String returns the strategy name.
func (s CompactionStrategy) String() string {
	switch s {
	case StrategyDefault:
		return "default"
	case StrategyTimeWindow:
		return "time_window"
	case StrategySizeTiered:
		return "size_tiered"
	default:
		return "unknown"
	}
}

// TableOptions carries the per-table knobs the scheduler and codec consume.
type TableOptions struct {
	// SegmentDuration is the time-window width for file organization.
	// Zero means unset; compaction cannot be picked for such a table.
	SegmentDuration time.Duration

	// TTL expires data older than this. Zero means no TTL.
	TTL time.Duration

	// CompactionStrategy selects the picker.
	CompactionStrategy CompactionStrategy

	// NumRowsPerRowGroup bounds row-group size in columnar SSTs.
	NumRowsPerRowGroup int

	// Compression is the column-chunk compression codec.
	Compression compression.Type
}

// TableID identifies a table.
type TableID uint64

// TableData is the in-memory descriptor of one table.
type TableData struct {
	ID   TableID
	Name string

	opts    atomic.Pointer[TableOptions]
	version *Version

	// lastFlushTime is a millisecond timestamp.
	lastFlushTime atomic.Int64
}

// NewTableData creates a table descriptor.
func NewTableData(id TableID, name string, opts TableOptions, version *Version) *TableData {
	t := &TableData{ID: id, Name: name, version: version}
	t.opts.Store(&opts)
	return t
}

// Options returns the current table options.
func (t *TableData) Options() TableOptions {
	return *t.opts.Load()
}

// SetOptions replaces the table options.
func (t *TableData) SetOptions(opts TableOptions) {
	t.opts.Store(&opts)
}

// CurrentVersion returns the table's live file set.
func (t *TableData) CurrentVersion() *Version {
	return t.version
}

// LastFlushTime returns the millisecond timestamp of the last flush.
func (t *TableData) LastFlushTime() int64 {
	return t.lastFlushTime.Load()
}

// SetLastFlushTime records a flush at the given millisecond timestamp.
func (t *TableData) SetLastFlushTime(ms int64) {
	t.lastFlushTime.Store(ms)
}
