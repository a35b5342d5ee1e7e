package compaction

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/tephradb/tephra/internal/logging"
	"github.com/tephradb/tephra/internal/manifest"
	"github.com/tephradb/tephra/internal/runtime"
)

// fakeSpaceStore blocks every non-empty compaction until the test releases
// it, so admission decisions are observable.
type fakeSpaceStore struct {
	mu      sync.Mutex
	tables  []*manifest.TableData
	err     error
	flushed []manifest.TableID

	started chan manifest.TableID
	release chan struct{}
}

func newFakeSpaceStore(tables ...*manifest.TableData) *fakeSpaceStore {
	return &fakeSpaceStore{
		tables:  tables,
		started: make(chan manifest.TableID, 16),
		release: make(chan struct{}, 16),
	}
}

func (s *fakeSpaceStore) ListAllTables(buf []*manifest.TableData) []*manifest.TableData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(buf, s.tables...)
}

func (s *fakeSpaceStore) CompactTable(rt runtime.Runtime, table *manifest.TableData, requestID string, task *CompactionTask) error {
	if task.IsEmpty() {
		return nil
	}
	s.started <- table.ID
	<-s.release
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSpaceStore) FlushTable(table *manifest.TableData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushed = append(s.flushed, table.ID)
	return nil
}

// recordingNotifier counts fire-and-forget notifications.
type recordingNotifier struct {
	mu   sync.Mutex
	oks  int
	errs []error
}

func (n *recordingNotifier) NotifyOK() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.oks++
}

func (n *recordingNotifier) NotifyErr(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errs = append(n.errs, err)
}

func compactableTable(id manifest.TableID) *manifest.TableData {
	hour := time.Hour.Milliseconds()
	version := manifest.NewVersion([]*manifest.FileMeta{
		{ID: uint64(id)*10 + 1, Size: 100, Time: manifest.TimeRange{InclusiveStart: 0, ExclusiveEnd: hour}},
		{ID: uint64(id)*10 + 2, Size: 100, Time: manifest.TimeRange{InclusiveStart: 10, ExclusiveEnd: hour}},
	})
	return manifest.NewTableData(id, "table", manifest.TableOptions{
		SegmentDuration: time.Hour,
	}, version)
}

func testConfig() SchedulerConfig {
	return SchedulerConfig{
		ScheduleChannelLen:   16,
		ScheduleInterval:     Duration(time.Hour),
		MaxOngoingTasks:      2,
		MaxUnflushedDuration: Duration(time.Hour),
		MemoryLimit:          1 << 30,
	}
}

func waitStarted(t *testing.T, store *fakeSpaceStore) manifest.TableID {
	t.Helper()
	select {
	case id := <-store.started:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a compaction to start")
		return 0
	}
}

func waitResult(t *testing.T, waiter chan error) error {
	t.Helper()
	select {
	case err := <-waiter:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a compaction result")
		return nil
	}
}

// TestSchedulerAdmission submits three requests against max_ongoing=2: the
// third buffers until a completion frees a slot and the schedule nudge
// dispatches it.
func TestSchedulerAdmission(t *testing.T) {
	t1, t2, t3 := compactableTable(1), compactableTable(2), compactableTable(3)
	store := newFakeSpaceStore(t1, t2, t3)
	pool := runtime.NewPool(logging.Discard)
	sched := NewScheduler(store, pool, SystemClock{}, testConfig(), logging.Discard)

	w1 := make(chan error, 1)
	w2 := make(chan error, 1)
	w3 := make(chan error, 1)
	sched.ScheduleTableCompaction(&TableCompactionRequest{TableData: t1, Waiter: w1})
	sched.ScheduleTableCompaction(&TableCompactionRequest{TableData: t2, Waiter: w2})

	first := waitStarted(t, store)
	second := waitStarted(t, store)
	require.ElementsMatch(t, []manifest.TableID{1, 2}, []manifest.TableID{first, second})

	// Both slots busy; the third request must buffer, not dispatch.
	sched.ScheduleTableCompaction(&TableCompactionRequest{TableData: t3, Waiter: w3})
	select {
	case id := <-store.started:
		t.Fatalf("table %d dispatched beyond max_ongoing", id)
	case <-time.After(200 * time.Millisecond):
	}

	// Completing one task triggers the schedule nudge for the third.
	store.release <- struct{}{}
	require.Equal(t, manifest.TableID(3), waitStarted(t, store))

	store.release <- struct{}{}
	store.release <- struct{}{}

	require.NoError(t, waitResult(t, w1))
	require.NoError(t, waitResult(t, w2))
	require.NoError(t, waitResult(t, w3))

	require.NoError(t, sched.StopScheduler())
	pool.Close()
}

// TestSchedulerCompactionFailure delivers the same error to the waiter and
// the notifier and unmarks the input files.
func TestSchedulerCompactionFailure(t *testing.T) {
	table := compactableTable(1)
	store := newFakeSpaceStore(table)
	store.err = errors.New("merge exploded")
	pool := runtime.NewPool(logging.Discard)
	sched := NewScheduler(store, pool, SystemClock{}, testConfig(), logging.Discard)

	notifier := &recordingNotifier{}
	waiter := make(chan error, 1)
	sched.ScheduleTableCompaction(&TableCompactionRequest{TableData: table, Notifier: notifier, Waiter: waiter})

	waitStarted(t, store)
	store.release <- struct{}{}

	err := waitResult(t, waiter)
	require.Error(t, err)
	require.Contains(t, err.Error(), "merge exploded")

	require.Eventually(t, func() bool {
		notifier.mu.Lock()
		defer notifier.mu.Unlock()
		return len(notifier.errs) == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, 0, notifier.oks)

	for _, f := range table.CurrentVersion().Files() {
		require.False(t, f.BeingCompacted(), "file %d should be unmarked after failure", f.ID)
	}

	require.NoError(t, sched.StopScheduler())
	pool.Close()
}

// TestSchedulerSilentDropWithoutSegmentDuration drops requests for tables
// whose options cannot build a picker context; the waiter is never notified.
func TestSchedulerSilentDropWithoutSegmentDuration(t *testing.T) {
	table := manifest.NewTableData(1, "t", manifest.TableOptions{}, manifest.NewVersion(nil))
	store := newFakeSpaceStore(table)
	pool := runtime.NewPool(logging.Discard)
	sched := NewScheduler(store, pool, SystemClock{}, testConfig(), logging.Discard)

	waiter := make(chan error, 1)
	sched.ScheduleTableCompaction(&TableCompactionRequest{TableData: table, Waiter: waiter})

	select {
	case err := <-waiter:
		t.Fatalf("waiter should not be notified on silent drop, got %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	require.NoError(t, sched.StopScheduler())
	pool.Close()
}

// TestSchedulerStopIsIdempotent double-stops and schedules after stop
// without blocking.
func TestSchedulerStopIsIdempotent(t *testing.T) {
	table := compactableTable(1)
	store := newFakeSpaceStore(table)
	pool := runtime.NewPool(logging.Discard)
	sched := NewScheduler(store, pool, SystemClock{}, testConfig(), logging.Discard)

	require.NoError(t, sched.StopScheduler())
	require.NoError(t, sched.StopScheduler())

	// Fire-and-forget after stop: logged and swallowed.
	sched.ScheduleTableCompaction(NoWaiterRequest(table, nil))
	pool.Close()
}

func newTestWorker(channelLen int, memoryLimit uint64) *scheduleWorker {
	sender := make(chan scheduleTask, channelLen)
	running := &atomic.Bool{}
	running.Store(true)
	return &scheduleWorker{
		sender:               sender,
		receiver:             sender,
		scheduleInterval:     time.Hour,
		maxUnflushedDuration: time.Hour,
		pickerManager:        NewPickerManager(),
		maxOngoingTasks:      2,
		limit:                NewOngoingTaskLimit(logging.Discard),
		running:              running,
		memoryLimit:          NewMemoryLimit(memoryLimit),
		logger:               logging.Discard,
	}
}

// TestPutBackRequeuesWhenChannelHasRoom re-queues a memory-refused request
// through the command channel.
func TestPutBackRequeuesWhenChannelHasRoom(t *testing.T) {
	w := newTestWorker(4, 1)

	waiter := make(chan error, 1)
	req := &TableCompactionRequest{TableData: compactableTable(1), Waiter: waiter}
	w.putBackCompactionRequest(req)

	require.Empty(t, waiter)
	select {
	case task := <-w.receiver:
		require.Equal(t, taskRequest, task.kind)
		require.Same(t, req, task.request)
	default:
		t.Fatal("request should have been re-queued on the channel")
	}
}

// TestPutBackChannelFullNotifiesError is the only admission failure that
// becomes user-visible: the requeue send fails and both notifier paths get
// the synthesized error.
func TestPutBackChannelFullNotifiesError(t *testing.T) {
	w := newTestWorker(1, 1)
	w.sender <- scheduleTask{kind: taskSchedule} // fill the channel

	notifier := &recordingNotifier{}
	waiter := make(chan error, 1)
	req := &TableCompactionRequest{TableData: compactableTable(1), Notifier: notifier, Waiter: waiter}
	w.putBackCompactionRequest(req)

	err := waitResult(t, waiter)
	require.Error(t, err)
	require.Contains(t, err.Error(), "memory usage exceeds")
	require.Len(t, notifier.errs, 1)

	// Exactly one result: nothing else arrives.
	require.Empty(t, waiter)
}

// TestHandleRequestMemoryExhaustedPutsBack refuses admission when the
// estimate exceeds the limit and re-queues the request.
func TestHandleRequestMemoryExhaustedPutsBack(t *testing.T) {
	w := newTestWorker(4, 10) // estimate is 2*200 = 400 > 10

	waiter := make(chan error, 1)
	req := &TableCompactionRequest{TableData: compactableTable(1), Waiter: waiter}
	w.handleTableCompactionRequest(req)

	require.Empty(t, waiter)
	select {
	case task := <-w.receiver:
		require.Equal(t, taskRequest, task.kind)
	default:
		t.Fatal("refused request should be re-queued")
	}
	require.Zero(t, w.memoryLimit.Usage(), "refused apply must leave usage unchanged")
}

// TestFlushTablesPolarity pins the observed flush condition:
// lastFlushTime + maxUnflushedDuration > now triggers the flush.
func TestFlushTablesPolarity(t *testing.T) {
	recent := compactableTable(1)
	stale := compactableTable(2)

	now := int64(10_000_000)
	recent.SetLastFlushTime(now - time.Minute.Milliseconds())
	stale.SetLastFlushTime(now - 2*time.Hour.Milliseconds())

	store := newFakeSpaceStore(recent, stale)
	w := newTestWorker(4, 1<<30)
	w.spaceStore = store
	w.clock = fixedClock(now)

	w.flushTables()

	require.Equal(t, []manifest.TableID{1}, store.flushed)
}

type fixedClock int64

func (c fixedClock) NowMillis() int64 { return int64(c) }
