package compaction

import (
	"sync"
	"sync/atomic"

	"github.com/tephradb/tephra/internal/logging"
	"github.com/tephradb/tephra/internal/manifest"
)

// OngoingTaskLimit bounds concurrent in-flight compactions and buffers the
// excess in a deduplicating admission queue. The queue lock and the ongoing
// counter are independent; neither is held across worker spawn or I/O.
type OngoingTaskLimit struct {
	ongoingTasks atomic.Int64

	mu         sync.RWMutex
	requestBuf *RequestQueue[manifest.TableID, *TableCompactionRequest]

	logger logging.Logger
}

// NewOngoingTaskLimit creates a limiter. logger may be nil.
func NewOngoingTaskLimit(logger logging.Logger) *OngoingTaskLimit {
	return &OngoingTaskLimit{
		requestBuf: NewRequestQueue[manifest.TableID, *TableCompactionRequest](),
		logger:     logging.OrDefault(logger),
	}
}

// StartTask records one more in-flight compaction.
func (l *OngoingTaskLimit) StartTask() {
	l.ongoingTasks.Add(1)
}

// FinishTask records one fewer in-flight compaction.
func (l *OngoingTaskLimit) FinishTask() {
	l.ongoingTasks.Add(-1)
}

// AddRequest buffers a request. When the queue is at capacity the oldest
// entries are evicted first; evictions are counted and logged.
func (l *OngoingTaskLimit) AddRequest(req *TableCompactionRequest) {
	dropped := 0

	l.mu.Lock()
	if l.requestBuf.Len() >= maxPendingCompactionTasks {
		for l.requestBuf.Len() >= maxPendingCompactionTasks {
			l.requestBuf.PopFront()
			dropped++
		}
		pendingRequestGauge.Sub(float64(dropped))
	}
	if l.requestBuf.PushBack(req.TableData.ID, req) {
		pendingRequestGauge.Add(1)
	}
	l.mu.Unlock()

	if dropped > 0 {
		l.logger.Warnf(logging.NSSched+"too many compaction pending tasks, limit:%d, dropped %d older tasks",
			maxPendingCompactionTasks, dropped)
	}
}

// DrainRequests pops up to maxNum requests from the head of the queue.
func (l *OngoingTaskLimit) DrainRequests(maxNum int) []*TableCompactionRequest {
	result := make([]*TableCompactionRequest, 0, maxNum)

	l.mu.Lock()
	for len(result) < maxNum {
		req, ok := l.requestBuf.PopFront()
		if !ok {
			break
		}
		result = append(result, req)
	}
	l.mu.Unlock()

	pendingRequestGauge.Sub(float64(len(result)))
	return result
}

// HasPendingRequests reports whether any requests are buffered.
func (l *OngoingTaskLimit) HasPendingRequests() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return !l.requestBuf.IsEmpty()
}

// RequestBufLen returns the number of buffered requests.
func (l *OngoingTaskLimit) RequestBufLen() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.requestBuf.Len()
}

// OngoingTasks returns the number of in-flight compactions.
func (l *OngoingTaskLimit) OngoingTasks() int {
	return int(l.ongoingTasks.Load())
}
