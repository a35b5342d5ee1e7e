package compaction

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/tephradb/tephra/internal/logging"
	"github.com/tephradb/tephra/internal/manifest"
	"github.com/tephradb/tephra/internal/runtime"
)

// SpaceStore is the storage surface the scheduler drives. CompactTable is
// the costly merge primitive; it bounds its own execution time.
type SpaceStore interface {
	// ListAllTables appends every table to buf and returns it.
	ListAllTables(buf []*manifest.TableData) []*manifest.TableData

	// CompactTable merges the task's input files for the table.
	CompactTable(rt runtime.Runtime, table *manifest.TableData, requestID string, task *CompactionTask) error

	// FlushTable flushes the table's in-memory data.
	FlushTable(table *manifest.TableData) error
}

// Clock supplies millisecond-resolution time.
type Clock interface {
	NowMillis() int64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// NowMillis implements Clock.
func (SystemClock) NowMillis() int64 {
	return time.Now().UnixMilli()
}

// Scheduler coordinates background compaction.
type Scheduler interface {
	// StopScheduler stops the schedule loop. In-flight workers drain to
	// completion.
	StopScheduler() error

	// ScheduleTableCompaction submits a request. Fire-and-forget: a
	// submission failure is logged and swallowed.
	ScheduleTableCompaction(req *TableCompactionRequest)
}

type scheduleTaskKind uint8

const (
	taskRequest scheduleTaskKind = iota
	taskSchedule
	taskExit
)

// scheduleTask is one command-channel message.
type scheduleTask struct {
	kind    scheduleTaskKind
	request *TableCompactionRequest
}

// SchedulerImpl runs a single-consumer schedule loop over a bounded command
// channel, dispatching compaction workers up to the configured limits.
type SchedulerImpl struct {
	sender  chan scheduleTask
	running *atomic.Bool

	// loopDone is closed when the schedule loop exits.
	loopDone chan struct{}

	logger logging.Logger
}

// NewScheduler starts the schedule loop on rt and returns the scheduler.
func NewScheduler(
	spaceStore SpaceStore,
	rt runtime.Runtime,
	clock Clock,
	config SchedulerConfig,
	logger logging.Logger,
) *SchedulerImpl {
	config = config.withDefaults()
	logger = logging.OrDefault(logger)
	if clock == nil {
		clock = SystemClock{}
	}

	sender := make(chan scheduleTask, config.ScheduleChannelLen)
	running := &atomic.Bool{}
	running.Store(true)
	loopDone := make(chan struct{})

	worker := &scheduleWorker{
		sender:               sender,
		receiver:             sender,
		spaceStore:           spaceStore,
		rt:                   rt,
		clock:                clock,
		scheduleInterval:     time.Duration(config.ScheduleInterval),
		maxUnflushedDuration: time.Duration(config.MaxUnflushedDuration),
		pickerManager:        NewPickerManager(),
		maxOngoingTasks:      config.MaxOngoingTasks,
		limit:                NewOngoingTaskLimit(logger),
		running:              running,
		memoryLimit:          NewMemoryLimit(uint64(config.MemoryLimit)),
		logger:               logger,
	}

	rt.Spawn(func() {
		defer close(loopDone)
		worker.scheduleLoop()
	})

	return &SchedulerImpl{
		sender:   sender,
		running:  running,
		loopDone: loopDone,
		logger:   logger,
	}
}

// StopScheduler implements Scheduler. It clears the running flag, nudges the
// loop awake without blocking, and waits for the loop to exit.
func (s *SchedulerImpl) StopScheduler() error {
	s.running.Store(false)
	// Wake up the receiver; if the channel is full the worker is busy and
	// will check the running flag on its next iteration.
	select {
	case s.sender <- scheduleTask{kind: taskExit}:
	default:
	}

	<-s.loopDone
	return nil
}

// ScheduleTableCompaction implements Scheduler.
func (s *SchedulerImpl) ScheduleTableCompaction(req *TableCompactionRequest) {
	select {
	case s.sender <- scheduleTask{kind: taskRequest, request: req}:
	case <-s.loopDone:
		s.logger.Errorf(logging.NSSched+"compaction scheduler failed to send request, scheduler stopped, table:%s", req.TableData.Name)
	}
}

// scheduleWorker is the single consumer of the command channel.
type scheduleWorker struct {
	sender   chan scheduleTask
	receiver chan scheduleTask

	spaceStore SpaceStore
	rt         runtime.Runtime
	clock      Clock

	scheduleInterval     time.Duration
	maxUnflushedDuration time.Duration
	pickerManager        *PickerManager
	maxOngoingTasks      int
	limit                *OngoingTaskLimit
	running              *atomic.Bool
	memoryLimit          *MemoryLimit

	logger logging.Logger
}

func (w *scheduleWorker) scheduleLoop() {
	for w.running.Load() {
		timer := time.NewTimer(w.scheduleInterval)
		select {
		case task := <-w.receiver:
			timer.Stop()
			w.handleScheduleTask(task)
		case <-timer.C:
			w.logger.Infof(logging.NSSched + "periodical compaction schedule start")
			w.schedule()
			w.logger.Infof(logging.NSSched + "periodical compaction schedule end")
		}
	}

	w.logger.Infof(logging.NSSched + "compaction schedule loop exit")
}

// handleScheduleTask runs sequentially on the loop goroutine, so files can
// be marked as being-compacted without a race.
func (w *scheduleWorker) handleScheduleTask(task scheduleTask) {
	ongoing := w.limit.OngoingTasks()
	switch task.kind {
	case taskRequest:
		w.logger.Debugf(logging.NSSched+"ongoing compaction tasks:%d", ongoing)
		if ongoing >= w.maxOngoingTasks {
			w.limit.AddRequest(task.request)
			w.logger.Warnf(logging.NSSched+"too many compaction ongoing tasks:%d, max:%d, buf_len:%d",
				ongoing, w.maxOngoingTasks, w.limit.RequestBufLen())
		} else {
			w.handleTableCompactionRequest(task.request)
		}
	case taskSchedule:
		if w.maxOngoingTasks > ongoing {
			pending := w.limit.DrainRequests(w.maxOngoingTasks - ongoing)
			for _, req := range pending {
				w.handleTableCompactionRequest(req)
			}
			w.logger.Debugf(logging.NSSched+"scheduled %d pending compaction tasks", len(pending))
		}
	case taskExit:
		// Loop exit is driven by the running flag.
	}
}

func (w *scheduleWorker) handleTableCompactionRequest(req *TableCompactionRequest) {
	tableData := req.TableData
	tableOpts := tableData.Options()
	picker := w.pickerManager.GetPicker(tableOpts.CompactionStrategy)

	pickerCtx, ok := NewPickerContext(tableOpts)
	if !ok {
		w.logger.Warnf(logging.NSSched+"no valid context can be created, compaction request will be ignored, table_id:%d, table_name:%s",
			tableData.ID, tableData.Name)
		return
	}

	task, err := picker.PickCompaction(pickerCtx, tableData.CurrentVersion())
	if err != nil {
		// Picking errors are not fatal and not sent to the notifiers; the
		// next periodic schedule retries the table.
		w.logger.Errorf(logging.NSSched+"compaction scheduler failed to pick compaction, table:%s, table_id:%d, err:%v",
			tableData.Name, tableData.ID, err)
		return
	}

	token := w.tryApplyMemoryUsageTokenForTask(task)
	if token == nil {
		w.logger.Debugf(logging.NSSched+"compaction task is ignored, because of high memory usage:%d, table:%s",
			w.memoryLimit.Usage(), tableData.Name)
		w.putBackCompactionRequest(req)
		return
	}

	w.doTableCompactionTask(tableData, task, req.Notifier, NewWaiterNotifier(req.Waiter), token)
}

// tryApplyMemoryUsageTokenForTask reserves the task's estimated memory.
// The estimate doubles the input size to cover decode and merge buffers.
func (w *scheduleWorker) tryApplyMemoryUsageTokenForTask(task *CompactionTask) *MemoryUsageToken {
	estimate := task.EstimatedTotalInputFileSize() * 2
	token := w.memoryLimit.TryApplyToken(estimate)

	w.logger.Debugf(logging.NSSched+"apply memory for compaction, current usage:%d, applied:%d, applied_result:%v",
		w.memoryLimit.Usage(), estimate, token != nil)
	return token
}

func (w *scheduleWorker) doTableCompactionTask(
	tableData *manifest.TableData,
	task *CompactionTask,
	notifier CompactionNotifier,
	waiter WaiterNotifier,
	token *MemoryUsageToken,
) {
	task.MarkFilesBeingCompacted(true)
	keepSchedulingCompaction := !task.IsEmpty()

	w.limit.StartTask()
	scheduledTaskCounter.Inc()
	requestID := uuid.NewString()

	w.rt.Spawn(func() {
		// The token is owned by the worker frame so every exit path
		// releases it.
		defer token.Release()

		err := w.spaceStore.CompactTable(w.rt, tableData, requestID, task)
		if err != nil {
			// Unset the compaction mark so the files stay pickable.
			task.MarkFilesBeingCompacted(false)
			failedTaskCounter.Inc()
			w.logger.Errorf(logging.NSCompact+"failed to compact table, table_name:%s, table_id:%d, request_id:%s, err:%v",
				tableData.Name, tableData.ID, requestID, err)
		}

		w.limit.FinishTask()
		w.scheduleWorkerIfNeed()

		if err != nil {
			shared := errors.Wrapf(err, "compact table %s", tableData.Name)
			if notifier != nil {
				notifier.NotifyErr(shared)
			}
			waiter.NotifyWaitResult(shared)
			return
		}

		if notifier != nil {
			notifier.NotifyOK()
		}
		waiter.NotifyWaitResult(nil)

		if keepSchedulingCompaction {
			w.scheduleTableCompaction(NoWaiterRequest(tableData, notifier))
		}
	})
}

// scheduleWorkerIfNeed nudges the loop to drain buffered requests.
// Best-effort: a send failure is only logged.
func (w *scheduleWorker) scheduleWorkerIfNeed() {
	if !w.limit.HasPendingRequests() {
		return
	}
	if !w.trySend(scheduleTask{kind: taskSchedule}) {
		w.logger.Errorf(logging.NSSched + "fail to schedule worker")
	}
}

// scheduleTableCompaction submits a chained follow-up request.
func (w *scheduleWorker) scheduleTableCompaction(req *TableCompactionRequest) {
	if !w.trySend(scheduleTask{kind: taskRequest, request: req}) {
		w.logger.Errorf(logging.NSSched+"fail to send table compaction request, table:%s", req.TableData.Name)
	}
}

// trySend delivers a message unless the channel is full or the scheduler is
// stopping.
func (w *scheduleWorker) trySend(task scheduleTask) bool {
	if !w.running.Load() {
		return false
	}
	select {
	case w.sender <- task:
		return true
	default:
		return false
	}
}

// putBackCompactionRequest re-queues a request refused by the memory limit.
// The send must not block: the loop itself is the only consumer. A full
// channel is the one admission failure that becomes user-visible.
func (w *scheduleWorker) putBackCompactionRequest(req *TableCompactionRequest) {
	select {
	case w.sender <- scheduleTask{kind: taskRequest, request: req}:
	default:
		err := errors.New("failed to put back the compaction request for memory usage exceeds")
		if req.Notifier != nil {
			req.Notifier.NotifyErr(err)
		}
		NewWaiterNotifier(req.Waiter).NotifyWaitResult(err)
	}
}

// schedule runs the periodic sweep: enqueue a compaction for every table,
// then flush stale tables.
func (w *scheduleWorker) schedule() {
	w.compactTables()
	w.flushTables()
}

func (w *scheduleWorker) compactTables() {
	tables := w.spaceStore.ListAllTables(nil)

	requestID := uuid.NewString()
	for _, tableData := range tables {
		w.logger.Infof(logging.NSSched+"period purge, table:%s, table_id:%d, request_id:%s",
			tableData.Name, tableData.ID, requestID)
		w.handleTableCompactionRequest(NoWaiterRequest(tableData, nil))
	}
}

func (w *scheduleWorker) flushTables() {
	tables := w.spaceStore.ListAllTables(nil)

	for _, tableData := range tables {
		lastFlushTime := tableData.LastFlushTime()
		if lastFlushTime+w.maxUnflushedDuration.Milliseconds() > w.clock.NowMillis() {
			if err := w.spaceStore.FlushTable(tableData); err != nil {
				w.logger.Errorf(logging.NSFlush+"failed to flush table, table:%s, err:%v", tableData.Name, err)
			}
		}
	}
}
