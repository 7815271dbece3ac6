package queue

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tableside-sync/internal/orders"
	"github.com/angelmondragon/tableside-sync/internal/store"
	"github.com/angelmondragon/tableside-sync/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-sync/pkg/errors"
)

func TestSettleRemovesUnchangedEntry(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()

	sent, err := q.Enqueue(ctx, enums.OperationCreate, newOrder(t, 3))
	require.NoError(t, err)
	require.NoError(t, q.MarkFailed(ctx, sent.OrderID, assert.AnError))

	settled, err := q.Settle(ctx, *sent, "srv-1")
	require.NoError(t, err)
	assert.Equal(t, SettledRemoved, settled)

	left, err := q.Get(ctx, sent.OrderID)
	require.NoError(t, err)
	assert.Nil(t, left)
}

func TestSettleKeepsNewerWrite(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()

	order := newOrder(t, 3)
	sent, err := q.Enqueue(ctx, enums.OperationCreate, order)
	require.NoError(t, err)

	_, err = order.AddLine(orders.LineInput{Name: "Cola", Price: decimal.RequireFromString("2.50")})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, enums.OperationUpdate, order)
	require.NoError(t, err)

	current, same, err := q.Current(ctx, *sent)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.False(t, same)

	settled, err := q.Settle(ctx, *sent, "srv-1")
	require.NoError(t, err)
	assert.Equal(t, SettledSuperseded, settled)

	left, err := q.Get(ctx, order.OrderID)
	require.NoError(t, err)
	require.NotNil(t, left)
	decoded, err := left.Order()
	require.NoError(t, err)
	assert.Len(t, decoded.Lines, 2)
}

func TestSettleQueuesDeleteForOrderDiscardedInFlight(t *testing.T) {
	q, client := newQueue(t)
	ctx := context.Background()

	order := newOrder(t, 5)
	sent, err := q.Enqueue(ctx, enums.OperationCreate, order)
	require.NoError(t, err)

	// discarded locally before the create was confirmed
	_, err = q.Enqueue(ctx, enums.OperationDelete, order)
	require.NoError(t, err)

	settled, err := q.Settle(ctx, *sent, "srv-5")
	require.NoError(t, err)
	assert.Equal(t, SettledOrphaned, settled)

	left, err := q.Get(ctx, order.OrderID)
	require.NoError(t, err)
	require.NotNil(t, left)
	assert.Equal(t, enums.OperationDelete, left.Kind)
	decoded, err := left.Order()
	require.NoError(t, err)
	assert.Equal(t, "srv-5", decoded.ServerRef)

	// a row still on the device means another writer already settled it
	other := newOrder(t, 6)
	require.NoError(t, store.NewRepository(client.DB()).Put(ctx, other))
	stale := Entry{OrderID: other.OrderID, Kind: enums.OperationUpdate, Table: 6, EnqueuedAt: time.Now()}
	settled, err = q.Settle(ctx, stale, "srv-6")
	require.NoError(t, err)
	assert.Equal(t, SettledGone, settled)
	n, err := q.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestSettleOfDeleteWithNothingQueued(t *testing.T) {
	q, _ := newQueue(t)
	settled, err := q.Settle(context.Background(), Entry{OrderID: "gone", Kind: enums.OperationDelete}, "")
	require.NoError(t, err)
	assert.Equal(t, SettledGone, settled)
	assert.Equal(t, "gone", settled.String())
}

func TestEntryOrderRejectsUnknownKind(t *testing.T) {
	_, err := Entry{OrderID: "x", Kind: enums.OperationKind("upsert"), Snapshot: []byte(`{}`)}.Order()
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeMalformed))
	assert.Contains(t, err.Error(), "upsert")
}
