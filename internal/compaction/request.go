package compaction

import (
	"github.com/tephradb/tephra/internal/manifest"
)

// CompactionNotifier receives fire-and-forget completion events for a
// table's compactions. Implementations must be safe for concurrent use; the
// same notifier may be carried across chained follow-up requests.
type CompactionNotifier interface {
	NotifyOK()
	NotifyErr(err error)
}

// TableCompactionRequest asks the scheduler to compact one table. Two
// requests are equivalent when their table ids match; the admission queue
// keeps at most one per table, newest payload winning.
type TableCompactionRequest struct {
	TableData *manifest.TableData

	// Notifier is optional and fire-and-forget.
	Notifier CompactionNotifier

	// Waiter is an optional channel receiving at most one result: nil on
	// success or the compaction error. Requests dropped at admission (no
	// picker context, picker error) never notify it. It must have capacity
	// for one value.
	Waiter chan error
}

// NoWaiterRequest builds a request carrying only the optional notifier.
func NoWaiterRequest(table *manifest.TableData, notifier CompactionNotifier) *TableCompactionRequest {
	return &TableCompactionRequest{TableData: table, Notifier: notifier}
}

// WaiterNotifier delivers at most one result to an optional waiter channel.
// The zero value (no waiter) drops every result.
type WaiterNotifier struct {
	waiter chan error
}

// NewWaiterNotifier wraps the request's waiter channel; ch may be nil.
func NewWaiterNotifier(ch chan error) WaiterNotifier {
	return WaiterNotifier{waiter: ch}
}

// NotifyWaitResult delivers the result without blocking. A full or nil
// channel drops it, so a waiter observes at most one result.
func (n WaiterNotifier) NotifyWaitResult(err error) {
	if n.waiter == nil {
		return
	}
	select {
	case n.waiter <- err:
	default:
	}
}
