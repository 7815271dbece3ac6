package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/tableside-sync/internal/orders"
	"github.com/angelmondragon/tableside-sync/internal/store"
	"github.com/angelmondragon/tableside-sync/pkg/db"
	"github.com/angelmondragon/tableside-sync/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-sync/pkg/errors"
)

func newQueue(t *testing.T) (*Repository, *db.Client) {
	t.Helper()
	client, err := store.Open(context.Background(), store.MemoryDSN(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return NewRepository(client.DB()), client
}

func newOrder(t *testing.T, table int) orders.Order {
	t.Helper()
	order := orders.NewOrder(table, time.Now().UTC())
	_, err := order.AddLine(orders.LineInput{Name: "Pizza", Price: decimal.RequireFromString("8.00")})
	require.NoError(t, err)
	return order
}

func TestEnqueueCoalescingTable(t *testing.T) {
	const none = enums.OperationKind("")
	tests := []struct {
		existing enums.OperationKind
		incoming enums.OperationKind
		want     enums.OperationKind
		removed  bool
	}{
		{existing: none, incoming: enums.OperationCreate, want: enums.OperationCreate},
		{existing: none, incoming: enums.OperationUpdate, want: enums.OperationUpdate},
		{existing: none, incoming: enums.OperationDelete, want: enums.OperationDelete},
		{existing: enums.OperationCreate, incoming: enums.OperationCreate, want: enums.OperationCreate},
		{existing: enums.OperationCreate, incoming: enums.OperationUpdate, want: enums.OperationCreate},
		{existing: enums.OperationCreate, incoming: enums.OperationDelete, removed: true},
		{existing: enums.OperationUpdate, incoming: enums.OperationCreate, want: enums.OperationUpdate},
		{existing: enums.OperationUpdate, incoming: enums.OperationUpdate, want: enums.OperationUpdate},
		{existing: enums.OperationUpdate, incoming: enums.OperationDelete, want: enums.OperationDelete},
		{existing: enums.OperationDelete, incoming: enums.OperationCreate, want: enums.OperationCreate},
		{existing: enums.OperationDelete, incoming: enums.OperationUpdate, want: enums.OperationCreate},
		{existing: enums.OperationDelete, incoming: enums.OperationDelete, want: enums.OperationDelete},
	}
	for _, tt := range tests {
		name := string(tt.existing) + "+" + string(tt.incoming)
		t.Run(name, func(t *testing.T) {
			q, _ := newQueue(t)
			ctx := context.Background()
			order := newOrder(t, 4)

			if tt.existing != none {
				_, err := q.Enqueue(ctx, tt.existing, order)
				require.NoError(t, err)
			}
			entry, err := q.Enqueue(ctx, tt.incoming, order)
			require.NoError(t, err)

			all, err := q.Drain(ctx)
			require.NoError(t, err)
			if tt.removed {
				assert.Nil(t, entry)
				assert.Empty(t, all)
				return
			}
			require.NotNil(t, entry)
			assert.Equal(t, tt.want, entry.Kind)
			require.Len(t, all, 1)
			assert.Equal(t, tt.want, all[0].Kind)
		})
	}
}

func TestCreateUpdateDeleteCancelsOut(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()
	order := newOrder(t, 7)

	_, err := q.Enqueue(ctx, enums.OperationCreate, order)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, enums.OperationUpdate, order)
	require.NoError(t, err)
	entry, err := q.Enqueue(ctx, enums.OperationDelete, order)
	require.NoError(t, err)
	assert.Nil(t, entry)

	got, err := q.Get(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Nil(t, got)
	n, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReplacementKeepsSequenceAndLatestSnapshot(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()
	first := newOrder(t, 1)
	second := newOrder(t, 2)

	e1, err := q.Enqueue(ctx, enums.OperationCreate, first)
	require.NoError(t, err)
	e2, err := q.Enqueue(ctx, enums.OperationCreate, second)
	require.NoError(t, err)
	require.Less(t, e1.Seq, e2.Seq)

	_, err = first.AddLine(orders.LineInput{Name: "Salad", Price: decimal.RequireFromString("6.50")})
	require.NoError(t, err)
	replaced, err := q.Enqueue(ctx, enums.OperationUpdate, first)
	require.NoError(t, err)
	assert.Equal(t, e1.Seq, replaced.Seq)

	drained, err := q.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, drained, 2)
	assert.Equal(t, first.OrderID, drained[0].OrderID)
	assert.Equal(t, second.OrderID, drained[1].OrderID)

	snap, err := drained[0].Order()
	require.NoError(t, err)
	assert.Len(t, snap.Lines, 2)
	assert.Equal(t, "14.50", snap.TotalPrice.StringFixed(2))

	peek, err := q.PeekAll(ctx)
	require.NoError(t, err)
	assert.Len(t, peek, 2)
}

func TestRemoveAndMarkFailed(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()
	order := newOrder(t, 3)
	_, err := q.Enqueue(ctx, enums.OperationCreate, order)
	require.NoError(t, err)

	require.NoError(t, q.MarkFailed(ctx, order.OrderID, errors.New("dial tcp: connection refused")))
	require.NoError(t, q.MarkFailed(ctx, order.OrderID, errors.New("503")))
	got, err := q.Get(ctx, order.OrderID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.AttemptCount)
	assert.Equal(t, "503", got.LastError)

	require.NoError(t, q.Remove(ctx, order.OrderID))
	require.NoError(t, q.Remove(ctx, order.OrderID))
	got, err = q.Get(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeadLetterMovesEntry(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()
	order := newOrder(t, 5)
	entry, err := q.Enqueue(ctx, enums.OperationCreate, order)
	require.NoError(t, err)

	dl, err := q.DeadLetter(ctx, *entry, enums.DeadLetterReasonRejected, errors.New("400 bad request"))
	require.NoError(t, err)
	assert.Equal(t, order.OrderID, dl.OrderID)
	assert.Equal(t, 1, dl.AttemptCount)

	n, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	letters, err := q.ListDeadLetters(ctx, 0)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, enums.DeadLetterReasonRejected, letters[0].Reason)
	assert.Equal(t, "400 bad request", letters[0].ErrorMessage)
	assert.JSONEq(t, string(entry.Snapshot), string(letters[0].Snapshot))

	dn, err := q.CountDeadLetters(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dn)

	_, err = q.DeadLetter(ctx, *entry, enums.DeadLetterReason("other"), nil)
	assert.Error(t, err)
}

func TestEnqueueInsideRolledBackTx(t *testing.T) {
	q, client := newQueue(t)
	ctx := context.Background()
	order := newOrder(t, 6)

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := q.WithTx(tx).Enqueue(ctx, enums.OperationCreate, order); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	n, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEnqueueRejectsInvalidInput(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()
	_, err := q.Enqueue(ctx, enums.OperationKind("upsert"), newOrder(t, 1))
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	_, err = q.Enqueue(ctx, enums.OperationCreate, orders.Order{})
	assert.Error(t, err)
}

func TestEntryOrderDetectsMalformedSnapshots(t *testing.T) {
	order := newOrder(t, 2)
	q, _ := newQueue(t)
	entry, err := q.Enqueue(context.Background(), enums.OperationCreate, order)
	require.NoError(t, err)

	_, err = entry.Order()
	require.NoError(t, err)

	garbage := *entry
	garbage.Snapshot = []byte(`{not json`)
	_, err = garbage.Order()
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeMalformed))

	badTotal := order.Clone()
	badTotal.TotalPrice = decimal.RequireFromString("1.00")
	raw, err := q.Enqueue(context.Background(), enums.OperationUpdate, badTotal)
	require.NoError(t, err)
	_, err = raw.Order()
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeMalformed))

	mismatch := *entry
	mismatch.OrderID = "other"
	_, err = mismatch.Order()
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeMalformed))

	unknownKind := *entry
	unknownKind.Kind = "replace"
	_, err = unknownKind.Order()
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeMalformed))
}
