package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
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

const defaultSubmitTimeout = 4 * time.Second

// ServiceParams wires the coordinator.
type ServiceParams struct {
	DB            txRunner
	Store         *store.Repository
	Queue         *queue.Repository
	Remote        RemoteOrders
	Connectivity  Connectivity
	Locks         *tablelock.Locker
	Nudger        Nudger
	Logger        *logger.Logger
	Metrics       *metrics.SyncMetrics
	SubmitTimeout time.Duration
	Now           func() time.Time
}

// Service is the order submission coordinator. Every mutation is persisted and
// queued in one local transaction before any remote attempt; the queue entry is
// only removed once the order service confirms the write.
type Service struct {
	db            txRunner
	store         *store.Repository
	queue         *queue.Repository
	remote        RemoteOrders
	conn          Connectivity
	locks         *tablelock.Locker
	nudger        Nudger
	logg          *logger.Logger
	metrics       *metrics.SyncMetrics
	submitTimeout time.Duration
	now           func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("order store is required")
	}
	if params.Queue == nil {
		return nil, fmt.Errorf("pending queue is required")
	}
	if params.Remote == nil {
		return nil, fmt.Errorf("remote order client is required")
	}
	if params.Connectivity == nil {
		return nil, fmt.Errorf("connectivity observer is required")
	}
	if params.Locks == nil {
		params.Locks = tablelock.New()
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.SubmitTimeout <= 0 {
		params.SubmitTimeout = defaultSubmitTimeout
	}
	if params.Now == nil {
		params.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		db:            params.DB,
		store:         params.Store,
		queue:         params.Queue,
		remote:        params.Remote,
		conn:          params.Connectivity,
		locks:         params.Locks,
		nudger:        params.Nudger,
		logg:          params.Logger,
		metrics:       params.Metrics,
		submitTimeout: params.SubmitTimeout,
		now:           params.Now,
	}, nil
}

// Submit records order locally and syncs it when possible. Remote failures are
// never returned; only validation and local storage errors are.
func (s *Service) Submit(ctx context.Context, order orders.Order) (orders.Order, error) {
	order = order.Clone()
	if order.OrderID == "" {
		order.OrderID = orders.NewID()
	}
	if order.Status == "" {
		order.Status = enums.OrderStatusOpen
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = s.now()
	}
	order.Recalculate()
	if err := orders.Validate(order); err != nil {
		return orders.Order{}, err
	}

	unlock, err := s.locks.Lock(ctx, order.Table)
	if err != nil {
		return orders.Order{}, err
	}
	defer unlock()

	return s.submitLocked(ctx, order, unlock)
}

// Mutate applies fn to the latest stored copy of orderID and submits the result.
func (s *Service) Mutate(ctx context.Context, orderID string, fn func(*orders.Order) error) (orders.Order, error) {
	current, err := s.store.Get(ctx, orderID)
	if err != nil {
		return orders.Order{}, err
	}

	unlock, err := s.locks.Lock(ctx, current.Table)
	if err != nil {
		return orders.Order{}, err
	}
	defer unlock()

	// re-read under the lock; table never changes for an order
	current, err = s.store.Get(ctx, orderID)
	if err != nil {
		return orders.Order{}, err
	}
	next := current.Clone()
	if err := fn(&next); err != nil {
		return orders.Order{}, err
	}
	next.Recalculate()
	if err := orders.Validate(next); err != nil {
		return orders.Order{}, err
	}
	return s.submitLocked(ctx, next, unlock)
}

// AddLine adds a line to the open order on table, opening one when needed.
func (s *Service) AddLine(ctx context.Context, table int, in orders.LineInput) (orders.Order, orders.Line, error) {
	if table < 0 {
		return orders.Order{}, orders.Line{}, pkgerrors.New(pkgerrors.CodeValidation, "table must be >= 0")
	}
	unlock, err := s.locks.Lock(ctx, table)
	if err != nil {
		return orders.Order{}, orders.Line{}, err
	}
	defer unlock()

	order, err := s.store.QueryOpenByTable(ctx, table)
	switch {
	case errors.Is(err, store.ErrNotFound):
		order = orders.NewOrder(table, s.now())
	case err != nil:
		return orders.Order{}, orders.Line{}, err
	}

	line, err := order.AddLine(in)
	if err != nil {
		return orders.Order{}, orders.Line{}, err
	}
	saved, err := s.submitLocked(ctx, order, unlock)
	if err != nil {
		return orders.Order{}, orders.Line{}, err
	}
	return saved, line, nil
}

// RemoveLine removes a line locally, then best-effort removes it remotely.
func (s *Service) RemoveLine(ctx context.Context, orderID, lineID string) (orders.Order, error) {
	saved, err := s.Mutate(ctx, orderID, func(o *orders.Order) error {
		return o.RemoveLine(lineID)
	})
	if err != nil {
		return orders.Order{}, err
	}

	if saved.ServerRef != "" && s.conn.Online() {
		callCtx, cancel := context.WithTimeout(ctx, s.submitTimeout)
		defer cancel()
		if err := s.remote.RemoveLine(callCtx, orderID, lineID); err != nil && !remote.IsNotFound(err) {
			logCtx := s.logg.WithFields(ctx, map[string]any{"order_id": orderID, "line_id": lineID})
			s.logg.Warn(logCtx, "remote line removal failed: "+err.Error())
		}
	}
	return saved, nil
}

// SetQuantity changes a line's quantity.
func (s *Service) SetQuantity(ctx context.Context, orderID, lineID string, qty int) (orders.Order, error) {
	return s.Mutate(ctx, orderID, func(o *orders.Order) error {
		return o.SetQuantity(lineID, qty)
	})
}

// SetStatus moves the order to status.
func (s *Service) SetStatus(ctx context.Context, orderID string, status enums.OrderStatus) (orders.Order, error) {
	return s.Mutate(ctx, orderID, func(o *orders.Order) error {
		return o.SetStatus(status)
	})
}

// AddGratuity appends a gratuity line.
func (s *Service) AddGratuity(ctx context.Context, orderID string, kind enums.GratuityKind, value decimal.Decimal) (orders.Order, error) {
	return s.Mutate(ctx, orderID, func(o *orders.Order) error {
		_, err := o.AddGratuity(kind, value)
		return err
	})
}

// GetOrderForTable reads the open order for table from the device, falling
// back to the order service (and caching the result) when online.
func (s *Service) GetOrderForTable(ctx context.Context, table int) (orders.Order, error) {
	order, err := s.store.QueryOpenByTable(ctx, table)
	if err == nil || !errors.Is(err, store.ErrNotFound) {
		return order, err
	}
	if !s.conn.Online() {
		return orders.Order{}, store.ErrNotFound
	}

	callCtx, cancel := context.WithTimeout(ctx, s.submitTimeout)
	fetched, err := s.remote.FetchOpenByTable(callCtx, table)
	cancel()
	if err != nil {
		if !remote.IsNotFound(err) {
			s.logg.Warn(s.logg.WithTable(ctx, table), "remote open order lookup failed: "+err.Error())
		}
		return orders.Order{}, store.ErrNotFound
	}
	if err := orders.Validate(fetched); err != nil {
		s.logg.Warn(s.logg.WithOrderID(ctx, fetched.OrderID), "remote order failed validation; not cached")
		return orders.Order{}, store.ErrNotFound
	}

	unlock, err := s.locks.Lock(ctx, table)
	if err != nil {
		return orders.Order{}, err
	}
	defer unlock()

	// a local order may have appeared while fetching
	if local, err := s.store.QueryOpenByTable(ctx, table); err == nil {
		return local, nil
	}
	// a pending local change (e.g. a discard) wins over the remote copy
	if entry, err := s.queue.Get(ctx, fetched.OrderID); err != nil {
		return orders.Order{}, err
	} else if entry != nil {
		return orders.Order{}, store.ErrNotFound
	}
	if err := s.store.Put(ctx, fetched); err != nil {
		return orders.Order{}, err
	}
	return fetched, nil
}

// Discard deletes the order locally and queues its remote deletion. An order
// that never reached the order service simply disappears.
func (s *Service) Discard(ctx context.Context, orderID string) error {
	current, err := s.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	unlock, err := s.locks.Lock(ctx, current.Table)
	if err != nil {
		return err
	}
	defer unlock()

	current, err = s.store.Get(ctx, orderID)
	if err != nil {
		return err
	}

	var (
		hadEntry bool
		entry    *queue.Entry
	)
	table := current.Table
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		q := s.queue.WithTx(tx)
		prior, err := q.Get(ctx, orderID)
		if err != nil {
			return err
		}
		hadEntry = prior != nil
		if err := s.store.WithTx(tx).Delete(ctx, orderID); err != nil {
			return err
		}
		if prior == nil && current.ServerRef == "" {
			// never left the device
			return nil
		}
		entry, err = q.Enqueue(ctx, enums.OperationDelete, current)
		return err
	})
	if err != nil {
		return err
	}
	s.refreshDepth(ctx)

	logCtx := s.logg.WithOrderID(ctx, orderID)
	switch {
	case entry == nil:
		s.logg.Info(logCtx, "order discarded before sync")
		return nil
	case !s.conn.Online():
		s.metrics.IncSubmit(metrics.SubmitPathQueued)
		return nil
	case hadEntry:
		s.metrics.IncSubmit(metrics.SubmitPathDeferred)
		s.nudge()
		return nil
	}

	unlock()
	callCtx, cancel := context.WithTimeout(ctx, s.submitTimeout)
	err = s.remote.Delete(callCtx, orderID)
	cancel()
	if err != nil && !remote.IsNotFound(err) {
		s.recordFailure(ctx, table, *entry, err)
		return nil
	}
	if _, err := s.confirm(ctx, table, *entry, ""); err != nil {
		s.logg.Error(logCtx, "failed to record confirmed delete; entry stays queued", err)
		return nil
	}
	s.metrics.IncSubmit(metrics.SubmitPathDirect)
	s.refreshDepth(ctx)
	return nil
}

// submitLocked runs with the table lock held. It calls unlock before any remote
// call; unlock must be safe to call more than once.
func (s *Service) submitLocked(ctx context.Context, order orders.Order, unlock func()) (orders.Order, error) {
	logCtx := s.logg.WithFields(ctx, map[string]any{"order_id": order.OrderID, "table": order.Table})

	stored, err := s.store.Get(ctx, order.OrderID)
	switch {
	case err == nil:
		if stored.Table != order.Table {
			return orders.Order{}, pkgerrors.New(pkgerrors.CodeValidation, "an order cannot move to another table").
				WithDetails(map[string]any{"table": stored.Table})
		}
		order.CreatedAt = stored.CreatedAt
		if order.ServerRef == "" {
			order.ServerRef = stored.ServerRef
		}
	case errors.Is(err, store.ErrNotFound):
		if order.IsOpen() {
			existing, qerr := s.store.QueryOpenByTable(ctx, order.Table)
			switch {
			case qerr == nil && existing.OrderID != order.OrderID:
				s.logg.Info(logCtx, "table already has an open order; folding submission into "+existing.OrderID)
				order = fold(existing, order)
			case qerr != nil && !errors.Is(qerr, store.ErrNotFound):
				return orders.Order{}, qerr
			}
		}
	default:
		return orders.Order{}, err
	}
	order.UpdatedAt = s.now()

	kind := enums.OperationCreate
	if order.ServerRef != "" {
		kind = enums.OperationUpdate
	}

	var (
		hadEntry bool
		entry    *queue.Entry
	)
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.store.WithTx(tx).Put(ctx, order); err != nil {
			return err
		}
		q := s.queue.WithTx(tx)
		prior, err := q.Get(ctx, order.OrderID)
		if err != nil {
			return err
		}
		hadEntry = prior != nil
		entry, err = q.Enqueue(ctx, kind, order)
		return err
	})
	if err != nil {
		s.logg.Error(logCtx, "order could not be saved locally", err)
		return orders.Order{}, err
	}
	s.refreshDepth(ctx)

	if !s.conn.Online() {
		s.metrics.IncSubmit(metrics.SubmitPathQueued)
		return order, nil
	}
	if hadEntry {
		// an earlier write for this order is still queued; keep replay order
		s.metrics.IncSubmit(metrics.SubmitPathDeferred)
		s.nudge()
		return order, nil
	}

	unlock()
	callCtx, cancel := context.WithTimeout(ctx, s.submitTimeout)
	var accepted orders.Order
	if order.ServerRef == "" {
		accepted, err = s.remote.Create(callCtx, order)
	} else {
		accepted, err = s.remote.Replace(callCtx, order)
	}
	cancel()
	if err != nil {
		s.recordFailure(ctx, order.Table, *entry, err)
		return order, nil
	}

	if accepted.ServerRef != "" {
		order.ServerRef = accepted.ServerRef
	}
	settled, err := s.confirm(ctx, order.Table, *entry, order.ServerRef)
	if err != nil {
		s.logg.Error(logCtx, "failed to record confirmed write; entry stays queued", err)
		return order, nil
	}
	s.metrics.IncSubmit(metrics.SubmitPathDirect)
	s.refreshDepth(ctx)
	switch settled {
	case queue.SettledSuperseded, queue.SettledOrphaned:
		// a write made while this one was in flight still needs replay
		s.logg.Info(s.logg.WithField(logCtx, "settled", settled.String()), "order synced directly; later write left queued")
		s.nudge()
	default:
		s.logg.Debug(logCtx, "order synced directly")
	}
	return order, nil
}

// confirm records a write the order service accepted, re-taking the table
// lock. The queue entry is removed only if it still holds sent.
func (s *Service) confirm(ctx context.Context, table int, sent queue.Entry, serverRef string) (queue.Settled, error) {
	// the remote write happened; record it even if the caller has gone
	ctx = context.WithoutCancel(ctx)
	unlock, err := s.locks.Lock(ctx, table)
	if err != nil {
		return queue.SettledGone, err
	}
	defer unlock()

	var settled queue.Settled
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if sent.Kind != enums.OperationDelete {
			if err := s.store.WithTx(tx).SetServerRef(ctx, sent.OrderID, serverRef); err != nil {
				return err
			}
		}
		var err error
		settled, err = s.queue.WithTx(tx).Settle(ctx, sent, serverRef)
		return err
	})
	return settled, err
}

// recordFailure counts a failed direct attempt against sent, unless a newer
// write replaced it meanwhile.
func (s *Service) recordFailure(ctx context.Context, table int, sent queue.Entry, cause error) {
	ctx = context.WithoutCancel(ctx)
	logCtx := s.logg.WithOrderID(ctx, sent.OrderID)
	s.logg.Warn(logCtx, "direct write failed; left queued: "+cause.Error())
	s.metrics.IncSubmit(metrics.SubmitPathQueued)

	unlock, err := s.locks.Lock(ctx, table)
	if err != nil {
		s.logg.Error(logCtx, "failed to record attempt", err)
		return
	}
	defer unlock()

	_, same, err := s.queue.Current(ctx, sent)
	switch {
	case err != nil:
		s.logg.Error(logCtx, "failed to record attempt", err)
	case same:
		if err := s.queue.MarkFailed(ctx, sent.OrderID, cause); err != nil {
			s.logg.Error(logCtx, "failed to record attempt", err)
		}
	}
}

func (s *Service) refreshDepth(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	if n, err := s.queue.Count(ctx); err == nil {
		s.metrics.SetQueueDepth(int(n))
	}
}

func (s *Service) nudge() {
	if s.nudger != nil {
		s.nudger.Trigger()
	}
}

// fold merges a new open order into the order already open on the same table.
func fold(existing, incoming orders.Order) orders.Order {
	out := incoming.Clone()
	out.OrderID = existing.OrderID
	out.ServerRef = existing.ServerRef
	out.CreatedAt = existing.CreatedAt

	merged := existing.Clone().Lines
	for _, line := range incoming.Lines {
		if !existing.HasLine(line.LineID) {
			merged = append(merged, line)
		}
	}
	out.Lines = merged
	out.Recalculate()
	return out
}
