package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/angelmondragon/tableside-sync/internal/orders"
	"github.com/angelmondragon/tableside-sync/internal/queue"
	"github.com/angelmondragon/tableside-sync/internal/remote"
	"github.com/angelmondragon/tableside-sync/internal/store"
	"github.com/angelmondragon/tableside-sync/internal/tablelock"
	"github.com/angelmondragon/tableside-sync/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-sync/pkg/errors"
	"github.com/angelmondragon/tableside-sync/pkg/logger"
	"github.com/angelmondragon/tableside-sync/pkg/metrics"
)

const (
	defaultInterval    = 30 * time.Second
	defaultCallTimeout = 10 * time.Second
	passKey            = "reconcile"

	// RemainingUnknown marks a Result whose queue depth could not be read.
	RemainingUnknown int64 = -1
)

// EngineParams wires the reconciliation engine.
type EngineParams struct {
	DB           txRunner
	Store        *store.Repository
	Queue        *queue.Repository
	Remote       RemoteOrders
	Connectivity Connectivity
	Locks        *tablelock.Locker
	Logger       *logger.Logger
	Metrics      *metrics.SyncMetrics
	Interval     time.Duration
	CallTimeout  time.Duration
}

// Result summarizes one pass over the queue.
type Result struct {
	Processed    int      `json:"processed"`
	Synced       int      `json:"synced"`
	Retried      int      `json:"retried"`
	DeadLettered int      `json:"deadLettered"`
	Skipped      int      `json:"skipped"`
	// Remaining is RemainingUnknown when the queue could not be counted.
	Remaining    int64    `json:"remaining"`
	Errors       []string `json:"errors,omitempty"`

	err error
}

// Err combines the per-entry failures of the pass.
func (r Result) Err() error {
	return r.err
}

// Engine replays pending operations against the order service. Each entry is
// checked for existence remotely first so a create that already landed is
// re-sent as a replace instead of a second create.
type Engine struct {
	db          txRunner
	store       *store.Repository
	queue       *queue.Repository
	remote      RemoteOrders
	conn        Connectivity
	locks       *tablelock.Locker
	logg        *logger.Logger
	metrics     *metrics.SyncMetrics
	interval    time.Duration
	callTimeout time.Duration

	passes  singleflight.Group
	trigger chan struct{}

	mu       sync.Mutex
	lifetime context.Context
}

func NewEngine(params EngineParams) (*Engine, error) {
	if params.DB == nil {
		return nil, errors.New("transaction runner is required")
	}
	if params.Store == nil {
		return nil, errors.New("order store is required")
	}
	if params.Queue == nil {
		return nil, errors.New("pending queue is required")
	}
	if params.Remote == nil {
		return nil, errors.New("remote order client is required")
	}
	if params.Connectivity == nil {
		return nil, errors.New("connectivity observer is required")
	}
	if params.Locks == nil {
		params.Locks = tablelock.New()
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Interval <= 0 {
		params.Interval = defaultInterval
	}
	if params.CallTimeout <= 0 {
		params.CallTimeout = defaultCallTimeout
	}
	return &Engine{
		db:          params.DB,
		store:       params.Store,
		queue:       params.Queue,
		remote:      params.Remote,
		conn:        params.Connectivity,
		locks:       params.Locks,
		logg:        params.Logger,
		metrics:     params.Metrics,
		interval:    params.Interval,
		callTimeout: params.CallTimeout,
		trigger:     make(chan struct{}, 1),
	}, nil
}

// Trigger asks Run to start a pass soon. It never blocks.
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Run drives passes until ctx is done: on every offline to online
// transition, on Trigger, and on the interval while online.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	e.lifetime = ctx
	e.mu.Unlock()

	transitions, unsubscribe := e.conn.Subscribe(4)
	defer unsubscribe()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	if e.conn.Online() {
		e.runPass(ctx, "startup")
	}

	for {
		select {
		case <-ctx.Done():
			e.logg.Info(ctx, "reconciliation loop stopped")
			return ctx.Err()
		case t, ok := <-transitions:
			if !ok {
				transitions = nil
				continue
			}
			if t.Online {
				e.runPass(ctx, "reconnect")
			}
		case <-e.trigger:
			if e.conn.Online() {
				e.runPass(ctx, "nudge")
			}
		case <-ticker.C:
			if e.conn.Online() {
				e.runPass(ctx, "timer")
			}
		}
	}
}

func (e *Engine) runPass(ctx context.Context, cause string) {
	logCtx := e.logg.WithField(ctx, "trigger", cause)
	res, err := e.Reconcile(ctx)
	if err != nil {
		e.logg.Error(logCtx, "reconciliation pass failed", err)
		return
	}
	if res.Processed == 0 {
		return
	}
	logCtx = e.logg.WithFields(logCtx, map[string]any{
		"processed":     res.Processed,
		"synced":        res.Synced,
		"retried":       res.Retried,
		"dead_lettered": res.DeadLettered,
		"remaining":     res.Remaining,
	})
	if res.Err() != nil {
		e.logg.Warn(e.logg.WithField(logCtx, "error", res.Err().Error()), "reconciliation pass finished with failures")
		return
	}
	e.logg.Info(logCtx, "reconciliation pass finished")
}

// Reconcile processes the queue snapshot taken now, in sequence order.
// Concurrent callers share one pass. The pass is detached from the caller's
// cancellation and only stops with the Run loop, so a caller that gives up
// returns early without aborting the pass for the others. The error is
// non-nil only when the queue could not be read or ctx ended first; per-entry
// failures are reported through Result.
func (e *Engine) Reconcile(ctx context.Context) (Result, error) {
	ch := e.passes.DoChan(passKey, func() (any, error) {
		passCtx, cancel := e.passContext(ctx)
		defer cancel()
		return e.pass(passCtx)
	})
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}
		return r.Val.(Result), nil
	}
}

// passContext keeps the caller's values but ties cancellation to the Run loop.
func (e *Engine) passContext(ctx context.Context) (context.Context, context.CancelFunc) {
	passCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.mu.Lock()
	lifetime := e.lifetime
	e.mu.Unlock()
	if lifetime == nil {
		return passCtx, cancel
	}
	stop := context.AfterFunc(lifetime, cancel)
	return passCtx, func() {
		stop()
		cancel()
	}
}

func (e *Engine) pass(ctx context.Context) (Result, error) {
	start := time.Now()
	defer func() { e.metrics.ObservePass(time.Since(start)) }()

	entries, err := e.queue.Drain(ctx)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for _, snap := range entries {
		if ctx.Err() != nil {
			res.err = multierr.Append(res.err, ctx.Err())
			break
		}
		res.Processed++
		outcome, err := e.processEntry(ctx, snap)
		e.metrics.IncOutcome(outcome)
		switch outcome {
		case metrics.OutcomeSynced:
			res.Synced++
		case metrics.OutcomeRetry:
			res.Retried++
		case metrics.OutcomeDeadLetter:
			res.DeadLettered++
		case metrics.OutcomeSkipped:
			res.Skipped++
		}
		if err != nil {
			res.err = multierr.Append(res.err, fmt.Errorf("order %s: %w", snap.OrderID, err))
		}
	}

	if remaining, err := e.queue.Count(ctx); err != nil {
		res.Remaining = RemainingUnknown
		res.err = multierr.Append(res.err, err)
	} else {
		res.Remaining = remaining
		e.metrics.SetQueueDepth(int(remaining))
	}
	for _, err := range multierr.Errors(res.err) {
		res.Errors = append(res.Errors, err.Error())
	}
	return res, nil
}

// processEntry replays one entry. The table lock is only held while the local
// queue is read back and written; remote calls run without it so submits on
// the same table never wait on the network.
func (e *Engine) processEntry(ctx context.Context, snap queue.Entry) (string, error) {
	logCtx := e.logg.WithFields(ctx, map[string]any{"order_id": snap.OrderID, "table": snap.Table})

	// a submit may have replaced or removed the entry since the snapshot
	entry, err := e.queue.Get(ctx, snap.OrderID)
	if err != nil {
		return metrics.OutcomeRetry, err
	}
	if entry == nil || entry.Seq != snap.Seq {
		// removed, or re-queued after the snapshot; a later pass owns it
		return metrics.OutcomeSkipped, nil
	}
	logCtx = e.logg.WithFields(logCtx, map[string]any{"kind": entry.Kind.String(), "seq": entry.Seq})

	order, err := entry.Order()
	if err != nil {
		return e.deadLetter(logCtx, *entry, enums.DeadLetterReasonMalformed, err)
	}

	serverRef, err := e.send(ctx, *entry, order)
	if err != nil {
		if pkgerrors.IsRetryable(err) {
			return e.retry(logCtx, *entry, err)
		}
		return e.deadLetter(logCtx, *entry, enums.DeadLetterReasonRejected, err)
	}
	return e.confirm(logCtx, *entry, serverRef)
}

// send performs the existence check and the write the entry calls for. It
// returns the server reference to record.
func (e *Engine) send(ctx context.Context, entry queue.Entry, order orders.Order) (string, error) {
	exists, serverRef, err := e.lookup(ctx, entry.OrderID)
	if err != nil {
		return "", err
	}
	if serverRef == "" {
		serverRef = order.ServerRef
	}

	switch entry.Kind {
	case enums.OperationCreate, enums.OperationUpdate:
		var accepted orders.Order
		if exists {
			accepted, err = e.callReplace(ctx, order)
		} else {
			accepted, err = e.callCreate(ctx, order)
		}
		if err != nil {
			return "", err
		}
		if accepted.ServerRef != "" {
			serverRef = accepted.ServerRef
		}
	case enums.OperationDelete:
		if exists {
			if err := e.callDelete(ctx, entry.OrderID); err != nil && !remote.IsNotFound(err) {
				return "", err
			}
		}
	default:
		return "", pkgerrors.New(pkgerrors.CodeMalformed, "unknown operation kind")
	}
	return serverRef, nil
}

// confirm records an accepted write. The entry is removed only when it still
// holds what was sent; a write queued meanwhile stays for the next pass.
func (e *Engine) confirm(ctx context.Context, entry queue.Entry, serverRef string) (string, error) {
	unlock, err := e.locks.Lock(ctx, entry.Table)
	if err != nil {
		return metrics.OutcomeRetry, err
	}
	defer unlock()

	var settled queue.Settled
	err = e.db.WithTx(ctx, func(tx *gorm.DB) error {
		if entry.Kind != enums.OperationDelete {
			if err := e.store.WithTx(tx).SetServerRef(ctx, entry.OrderID, serverRef); err != nil {
				return err
			}
		}
		var err error
		settled, err = e.queue.WithTx(tx).Settle(ctx, entry, serverRef)
		return err
	})
	if err != nil {
		e.logg.Error(ctx, "failed to record confirmed operation; entry stays queued", err)
		return metrics.OutcomeRetry, err
	}

	logCtx := e.logg.WithFields(ctx, map[string]any{"server_ref": serverRef, "settled": settled.String()})
	switch settled {
	case queue.SettledSuperseded:
		e.logg.Info(logCtx, "queued operation synced; newer write left queued")
	case queue.SettledOrphaned:
		e.logg.Warn(logCtx, "order discarded while its write was in flight; delete queued")
		e.Trigger()
	default:
		e.logg.Info(logCtx, "queued operation synced")
	}
	return metrics.OutcomeSynced, nil
}

// lookup is the mandatory existence check before replaying an entry.
func (e *Engine) lookup(ctx context.Context, orderID string) (bool, string, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	found, err := e.remote.Fetch(callCtx, orderID)
	switch {
	case err == nil:
		return true, found.ServerRef, nil
	case remote.IsNotFound(err):
		return false, "", nil
	default:
		return false, "", err
	}
}

func (e *Engine) callCreate(ctx context.Context, order orders.Order) (orders.Order, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	return e.remote.Create(callCtx, order)
}

func (e *Engine) callReplace(ctx context.Context, order orders.Order) (orders.Order, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	return e.remote.Replace(callCtx, order)
}

func (e *Engine) callDelete(ctx context.Context, orderID string) error {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	return e.remote.Delete(callCtx, orderID)
}

func (e *Engine) retry(ctx context.Context, entry queue.Entry, cause error) (string, error) {
	unlock, err := e.locks.Lock(ctx, entry.Table)
	if err != nil {
		return metrics.OutcomeRetry, multierr.Append(cause, err)
	}
	defer unlock()

	current, same, err := e.queue.Current(ctx, entry)
	switch {
	case err != nil:
		return metrics.OutcomeRetry, multierr.Append(cause, err)
	case current == nil:
		return metrics.OutcomeSkipped, nil
	case !same:
		e.logg.Info(e.logg.WithField(ctx, "error", cause.Error()), "queued operation failed; newer write left queued")
		return metrics.OutcomeRetry, cause
	}

	e.logg.Warn(e.logg.WithFields(ctx, map[string]any{
		"attempt_count": entry.AttemptCount + 1,
		"error":         cause.Error(),
	}), "queued operation failed; will retry")
	if err := e.queue.MarkFailed(ctx, entry.OrderID, cause); err != nil {
		return metrics.OutcomeRetry, multierr.Append(cause, err)
	}
	return metrics.OutcomeRetry, cause
}

// deadLetter moves the entry aside unless a newer write replaced it, in which
// case the newer write gets its own attempt.
func (e *Engine) deadLetter(ctx context.Context, entry queue.Entry, reason enums.DeadLetterReason, cause error) (string, error) {
	unlock, err := e.locks.Lock(ctx, entry.Table)
	if err != nil {
		return metrics.OutcomeRetry, multierr.Append(cause, err)
	}
	defer unlock()

	current, same, err := e.queue.Current(ctx, entry)
	switch {
	case err != nil:
		return metrics.OutcomeRetry, multierr.Append(cause, err)
	case current == nil:
		return metrics.OutcomeSkipped, nil
	case !same:
		e.logg.Info(e.logg.WithField(ctx, "error", cause.Error()), "queued operation rejected; newer write left queued")
		return metrics.OutcomeRetry, cause
	}

	e.logg.Warn(e.logg.WithFields(ctx, map[string]any{
		"reason": string(reason),
		"error":  cause.Error(),
	}), "queued operation will not be retried")
	if _, err := e.queue.DeadLetter(ctx, *current, reason, cause); err != nil {
		return metrics.OutcomeRetry, multierr.Append(cause, err)
	}
	return metrics.OutcomeDeadLetter, cause
}
