package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lunahq/orbiter/internal/observability"
	"github.com/lunahq/orbiter/internal/tracing"
	"github.com/lunahq/orbiter/pkg/routing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// SteerAck is returned to the caller when a message was delivered as an
// interrupt instead of starting its own invocation.
const SteerAck = "steered"

// steerBuffer bounds pending interrupts per active run.
const steerBuffer = 8

// InvokeOptions carries per-invocation metadata into the agent capability.
// Interrupts receives steer messages while the run is active; the agent may
// consume or ignore them.
type InvokeOptions struct {
	CorrelationID string
	Interrupts    <-chan string
}

// Invoker is the opaque agent capability. Invocations may fail and may take
// minutes; there is no cooperative cancellation beyond the context.
type Invoker interface {
	Invoke(ctx context.Context, sessionKey, message string, opts InvokeOptions) (string, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, sessionKey, message string, opts InvokeOptions) (string, error)

func (f InvokerFunc) Invoke(ctx context.Context, sessionKey, message string, opts InvokeOptions) (string, error) {
	return f(ctx, sessionKey, message, opts)
}

// HandleOptions configures one Handle call.
type HandleOptions struct {
	CorrelationID string
	BusyPolicy    routing.BusyPolicy
}

// taskRecord tracks one queued invocation.
type taskRecord struct {
	id            string
	message       string
	correlationID string
	ctx           context.Context
	enqueuedAt    time.Time
	result        chan taskResult
}

type taskResult struct {
	text string
	err  error
}

// laneState serializes execution for a single session key.
type laneState struct {
	queue   []*taskRecord
	running bool
	steerCh chan string
	mu      sync.Mutex
}

// Dispatcher guarantees at most one agent invocation in flight per session
// key. Queued tasks run in FIFO submission order; a failed task never blocks
// the tasks behind it. The steer policy delivers messages into the active
// run's interrupt channel instead of waiting.
type Dispatcher struct {
	invoker Invoker
	audit   *observability.AuditLogger

	lanes     map[string]*laneState
	taskIDSeq int
	mu        sync.Mutex

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a dispatcher in front of the given agent capability.
func New(invoker Invoker, audit *observability.AuditLogger) *Dispatcher {
	observability.EnsureRegistered()

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		invoker: invoker,
		audit:   audit,
		lanes:   make(map[string]*laneState),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Busy reports whether the session currently has an invocation in flight.
func (d *Dispatcher) Busy(sessionKey string) bool {
	ls := d.lane(sessionKey)
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.running
}

// QueueSize returns the number of queued (not yet started) tasks for a
// session.
func (d *Dispatcher) QueueSize(sessionKey string) int {
	ls := d.lane(sessionKey)
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.queue)
}

// Handle submits a message for the session. Under the queue policy the call
// blocks until its own invocation settles. Under the steer policy, a busy
// session receives the message as an interrupt and Handle returns SteerAck
// immediately; an idle session degrades to queue behavior.
func (d *Dispatcher) Handle(ctx context.Context, sessionKey, message string, opts HandleOptions) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := tracing.StartSpan(
		ctx,
		"orbiter.dispatch",
		"dispatch.handle",
		attribute.String("session_key", sessionKey),
		attribute.String("busy_policy", string(opts.BusyPolicy)),
	)
	defer span.End()

	if opts.CorrelationID == "" {
		opts.CorrelationID = tracing.NewCorrelationID()
	}
	ctx = tracing.WithSessionKey(ctx, sessionKey)
	ctx = tracing.WithCorrelationID(ctx, opts.CorrelationID)

	if opts.BusyPolicy == routing.BusySteer {
		if ok := d.trySteer(ctx, sessionKey, message, opts.CorrelationID); ok {
			return SteerAck, nil
		}
	}

	return d.enqueue(ctx, sessionKey, message, opts.CorrelationID, string(opts.BusyPolicy))
}

// trySteer delivers the message into the active run's interrupt channel.
// Returns false when the session is idle so the caller falls back to queuing.
func (d *Dispatcher) trySteer(ctx context.Context, sessionKey, message, correlationID string) bool {
	ls := d.lane(sessionKey)

	ls.mu.Lock()
	if !ls.running || ls.steerCh == nil {
		ls.mu.Unlock()
		return false
	}
	ch := ls.steerCh
	ls.mu.Unlock()

	select {
	case ch <- message:
	default:
		// Interrupt buffer full; the run is not draining steers. Queue
		// instead so the message is not lost.
		return false
	}

	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Info().Msg("Steer delivered to active run")

	observability.RecordSteer()
	d.audit.LogAction(ctx, observability.ActionEntry{
		SessionKey:    sessionKey,
		CorrelationID: correlationID,
		Action:        "steer",
		Status:        "ok",
		Message:       message,
	})
	return true
}

func (d *Dispatcher) enqueue(ctx context.Context, sessionKey, message, correlationID, policy string) (string, error) {
	if policy == "" {
		policy = string(routing.BusyQueue)
	}

	d.mu.Lock()
	d.taskIDSeq++
	taskID := fmt.Sprintf("%s-%d", sessionKey, d.taskIDSeq)
	d.mu.Unlock()

	record := &taskRecord{
		id:            taskID,
		message:       message,
		correlationID: correlationID,
		ctx:           ctx,
		enqueuedAt:    time.Now(),
		result:        make(chan taskResult, 1),
	}

	ls := d.lane(sessionKey)
	ls.mu.Lock()
	ls.queue = append(ls.queue, record)
	queueSize := len(ls.queue)
	ls.mu.Unlock()

	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Debug().
		Str("task_id", taskID).
		Int("queue_size", queueSize).
		Msg("Task enqueued")

	observability.RecordQueueEnqueue(policy, queueSize)

	d.processLane(sessionKey)

	result := <-record.result
	return result.text, result.err
}

// lane returns the state for a session key, creating it on first use.
func (d *Dispatcher) lane(sessionKey string) *laneState {
	d.mu.Lock()
	defer d.mu.Unlock()

	ls, ok := d.lanes[sessionKey]
	if !ok {
		ls = &laneState{}
		d.lanes[sessionKey] = ls
	}
	return ls
}

// processLane starts the next queued task when the lane is idle. Only one
// task per session key ever runs at a time.
func (d *Dispatcher) processLane(sessionKey string) {
	ls := d.lane(sessionKey)

	ls.mu.Lock()
	if ls.running || len(ls.queue) == 0 {
		ls.mu.Unlock()
		return
	}
	record := ls.queue[0]
	ls.queue = ls.queue[1:]
	ls.running = true
	ls.steerCh = make(chan string, steerBuffer)
	steerCh := ls.steerCh
	ls.mu.Unlock()

	d.wg.Add(1)
	go d.executeTask(sessionKey, record, steerCh)
}

func (d *Dispatcher) executeTask(sessionKey string, record *taskRecord, steerCh chan string) {
	defer d.wg.Done()

	taskCtx := record.ctx
	if taskCtx == nil {
		taskCtx = context.Background()
	}
	taskCtx, span := tracing.StartSpan(
		taskCtx,
		"orbiter.dispatch",
		"dispatch.execute",
		attribute.String("session_key", sessionKey),
		attribute.String("task_id", record.id),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(taskCtx, log.Logger)

	runCtx, cancelRun := context.WithCancel(taskCtx)
	stopCancel := context.AfterFunc(d.ctx, cancelRun)
	defer func() {
		stopCancel()
		cancelRun()
	}()

	d.audit.LogAction(taskCtx, observability.ActionEntry{
		SessionKey:    sessionKey,
		CorrelationID: record.correlationID,
		Action:        "prompt",
		Status:        "pending",
		Message:       record.message,
	})

	start := time.Now()
	text, err := d.invoker.Invoke(runCtx, sessionKey, record.message, InvokeOptions{
		CorrelationID: record.correlationID,
		Interrupts:    steerCh,
	})
	duration := time.Since(start)

	ls := d.lane(sessionKey)
	ls.mu.Lock()
	ls.running = false
	ls.steerCh = nil
	ls.mu.Unlock()

	record.result <- taskResult{text: text, err: err}
	close(record.result)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().
			Str("task_id", record.id).
			Dur("duration", duration).
			Err(err).
			Msg("Invocation failed")
		d.audit.LogAction(taskCtx, observability.ActionEntry{
			SessionKey:    sessionKey,
			CorrelationID: record.correlationID,
			Action:        "response",
			Status:        "error",
			Message:       err.Error(),
		})
	} else {
		logger.Debug().
			Str("task_id", record.id).
			Dur("duration", duration).
			Msg("Invocation completed")
		d.audit.LogAction(taskCtx, observability.ActionEntry{
			SessionKey:    sessionKey,
			CorrelationID: record.correlationID,
			Action:        "response",
			Status:        "ok",
			Message:       text,
		})
	}

	observability.RecordQueueCompletion(duration, err == nil)
	observability.RecordInvocation(duration, err == nil)

	// A failure above settles only this task; the chain continues.
	d.processLane(sessionKey)
}

// ActiveSessions returns session keys with an invocation currently running.
func (d *Dispatcher) ActiveSessions() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var active []string
	for key, ls := range d.lanes {
		ls.mu.Lock()
		if ls.running {
			active = append(active, key)
		}
		ls.mu.Unlock()
	}
	return active
}

// Close waits for in-flight invocations after signalling cancellation.
func (d *Dispatcher) Close() error {
	d.cancel()
	d.wg.Wait()
	return nil
}
