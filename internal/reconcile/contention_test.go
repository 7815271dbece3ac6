package reconcile

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tableside-sync/internal/orders"
	"github.com/angelmondragon/tableside-sync/internal/orderserver"
	"github.com/angelmondragon/tableside-sync/internal/remote"
	"github.com/angelmondragon/tableside-sync/internal/store"
	"github.com/angelmondragon/tableside-sync/internal/submission"
	"github.com/angelmondragon/tableside-sync/pkg/db"
	"github.com/angelmondragon/tableside-sync/pkg/enums"
	"github.com/angelmondragon/tableside-sync/pkg/logger"
)

// hangingService accepts requests and answers none of them until the test ends.
func hangingService(t *testing.T) (string, <-chan struct{}) {
	t.Helper()
	arrived := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case arrived <- struct{}{}:
		default:
		}
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })
	return srv.URL, arrived
}

// newSlowHarness fronts a real order service with a fixed delay per request.
func newSlowHarness(t *testing.T, delay time.Duration) (*harness, <-chan struct{}) {
	t.Helper()
	ctx := context.Background()

	device, err := store.Open(ctx, store.MemoryDSN(), logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = device.Close() })

	serverDB, err := orderserver.Open(ctx, db.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverDB.Close() })
	serverRepo := orderserver.NewRepository(serverDB.DB())

	arrived := make(chan struct{}, 1)
	router := orderserver.NewRouter(serverRepo, serverDB, logger.Nop())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case arrived <- struct{}{}:
		default:
		}
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	h := newHarnessWithRemote(t, device, srv.URL, true)
	h.server = serverRepo
	return h, arrived
}

func TestHungServiceDoesNotDelaySameTableAddLine(t *testing.T) {
	url, arrived := hangingService(t)
	ctx := context.Background()

	device, err := store.Open(ctx, store.MemoryDSN(), logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = device.Close() })
	h := newHarnessWithRemote(t, device, url, false)

	client, err := remote.NewClient(url)
	require.NoError(t, err)
	svc, err := submission.NewService(submission.ServiceParams{
		DB:           device,
		Store:        h.store,
		Queue:        h.queue,
		Remote:       client,
		Connectivity: h.observer,
		Locks:        h.locks,
	})
	require.NoError(t, err)

	queued := testOrder(t, "hung", 5, "7.00", 1)
	h.queueLocal(t, enums.OperationCreate, queued)

	type passResult struct {
		res Result
		err error
	}
	done := make(chan passResult, 1)
	go func() {
		res, err := h.engine.Reconcile(ctx)
		done <- passResult{res, err}
	}()

	select {
	case <-arrived:
	case <-time.After(2 * time.Second):
		t.Fatal("pass never reached the order service")
	}

	start := time.Now()
	order, _, err := svc.AddLine(ctx, 5, orders.LineInput{Name: "Bread", Price: decimal.RequireFromString("2.00"), Quantity: 1})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, "hung", order.OrderID)

	var pass passResult
	select {
	case pass = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pass did not finish")
	}
	require.NoError(t, pass.err)
	assert.Equal(t, 1, pass.res.Retried)

	// the failure belonged to the snapshot the pass sent, not the newer one
	entry, err := h.queue.Get(ctx, "hung")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Zero(t, entry.AttemptCount)
	latest, err := entry.Order()
	require.NoError(t, err)
	assert.Len(t, latest.Lines, 2)
}

func TestWriteQueuedDuringPassIsReplayedNext(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	o := testOrder(t, "busy", 3, "6.00", 1)
	h.queueLocal(t, enums.OperationCreate, o)

	entries, err := h.queue.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	order, err := entries[0].Order()
	require.NoError(t, err)

	serverRef, err := h.engine.send(ctx, entries[0], order)
	require.NoError(t, err)
	require.NotEmpty(t, serverRef)

	// a line is added while the create is in flight
	_, err = o.AddLine(orders.LineInput{Name: "Tea", Price: decimal.RequireFromString("1.50")})
	require.NoError(t, err)
	h.queueLocal(t, enums.OperationCreate, o)

	_, err = h.engine.confirm(ctx, entries[0], serverRef)
	require.NoError(t, err)

	local, err := h.store.Get(ctx, "busy")
	require.NoError(t, err)
	assert.Equal(t, serverRef, local.ServerRef)
	pending, err := h.queue.Get(ctx, "busy")
	require.NoError(t, err)
	require.NotNil(t, pending)

	res, err := h.engine.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Synced)
	assert.EqualValues(t, 0, res.Remaining)
	assert.Equal(t, 1, h.calls.count("POST /orders"))
	assert.Equal(t, 1, h.calls.count("PUT /orders/busy"))

	doc, err := h.server.Get(ctx, "busy")
	require.NoError(t, err)
	assert.Len(t, doc.Items, 2)
}

func TestCancelledCallerDoesNotAbortSharedPass(t *testing.T) {
	h, arrived := newSlowHarness(t, 100*time.Millisecond)
	for i := 1; i <= 3; i++ {
		h.queueLocal(t, enums.OperationCreate, testOrder(t, fmt.Sprintf("shared-%d", i), i, "5.00", 1))
	}

	callerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := make(chan error, 1)
	go func() {
		_, err := h.engine.Reconcile(callerCtx)
		first <- err
	}()

	select {
	case <-arrived:
	case <-time.After(2 * time.Second):
		t.Fatal("pass never reached the order service")
	}

	type passResult struct {
		res Result
		err error
	}
	second := make(chan passResult, 1)
	go func() {
		res, err := h.engine.Reconcile(context.Background())
		second <- passResult{res, err}
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-first:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	var pass passResult
	select {
	case pass = <-second:
	case <-time.After(5 * time.Second):
		t.Fatal("shared pass did not finish")
	}
	require.NoError(t, pass.err)
	require.NoError(t, pass.res.Err())
	assert.Equal(t, 3, pass.res.Synced)
	assert.EqualValues(t, 0, pass.res.Remaining)
	assert.Empty(t, pass.res.Errors)

	n, err := h.queue.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUncountableQueueReportsUnknownRemaining(t *testing.T) {
	h, arrived := newSlowHarness(t, 100*time.Millisecond)
	h.queueLocal(t, enums.OperationCreate, testOrder(t, "lost", 2, "5.00", 1))

	done := make(chan Result, 1)
	go func() {
		res, err := h.engine.Reconcile(context.Background())
		if err != nil {
			t.Error(err)
		}
		done <- res
	}()

	select {
	case <-arrived:
	case <-time.After(2 * time.Second):
		t.Fatal("pass never reached the order service")
	}
	// local storage goes away mid-pass
	require.NoError(t, h.device.Close())

	select {
	case res := <-done:
		assert.Equal(t, RemainingUnknown, res.Remaining)
		assert.NotEmpty(t, res.Errors)
		assert.Error(t, res.Err())
	case <-time.After(5 * time.Second):
		t.Fatal("pass did not finish")
	}
}
