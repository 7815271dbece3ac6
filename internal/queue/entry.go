package queue

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/tableside-sync/internal/orders"
	"github.com/angelmondragon/tableside-sync/pkg/db/models"
	"github.com/angelmondragon/tableside-sync/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-sync/pkg/errors"
)

// Entry is one pending operation. Snapshot holds the order as it was when the
// entry was last written.
type Entry struct {
	Seq          int64               `json:"seq"`
	OrderID      string              `json:"orderId"`
	Kind         enums.OperationKind `json:"kind"`
	Table        int                 `json:"table"`
	Snapshot     json.RawMessage     `json:"snapshot"`
	AttemptCount int                 `json:"attemptCount"`
	LastError    string              `json:"lastError,omitempty"`
	EnqueuedAt   time.Time           `json:"enqueuedAt"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}

// Order decodes and validates the snapshot. Failures carry MALFORMED_OPERATION.
func (e Entry) Order() (orders.Order, error) {
	if _, err := enums.ParseOperationKind(string(e.Kind)); err != nil {
		return orders.Order{}, pkgerrors.Wrap(pkgerrors.CodeMalformed, err, "unknown operation kind").
			WithDetails(map[string]any{"kind": string(e.Kind)})
	}
	var order orders.Order
	if err := json.Unmarshal(e.Snapshot, &order); err != nil {
		return orders.Order{}, pkgerrors.Wrap(pkgerrors.CodeMalformed, err, "decode snapshot")
	}
	if order.OrderID != e.OrderID {
		return orders.Order{}, pkgerrors.New(pkgerrors.CodeMalformed, "snapshot orderId does not match entry")
	}
	if err := orders.Validate(order); err != nil {
		return orders.Order{}, pkgerrors.Wrap(pkgerrors.CodeMalformed, err, "invalid snapshot")
	}
	return order, nil
}

// DeadLetter is an entry that was removed from the queue because it can never apply.
type DeadLetter struct {
	ID           string                 `json:"id"`
	OrderID      string                 `json:"orderId"`
	Seq          int64                  `json:"seq"`
	Kind         enums.OperationKind    `json:"kind"`
	Table        int                    `json:"table"`
	Snapshot     json.RawMessage        `json:"snapshot"`
	Reason       enums.DeadLetterReason `json:"reason"`
	ErrorMessage string                 `json:"errorMessage,omitempty"`
	AttemptCount int                    `json:"attemptCount"`
	FailedAt     time.Time              `json:"failedAt"`
}

func entryFromRow(row models.PendingOperation) Entry {
	e := Entry{
		Seq:          row.Seq,
		OrderID:      row.OrderID,
		Kind:         row.Kind,
		Table:        row.TableNumber,
		Snapshot:     json.RawMessage(row.Snapshot),
		AttemptCount: row.AttemptCount,
		EnqueuedAt:   row.EnqueuedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
	if row.LastError != nil {
		e.LastError = *row.LastError
	}
	return e
}

func deadLetterFromRow(row models.DeadLetter) DeadLetter {
	d := DeadLetter{
		ID:           row.ID,
		OrderID:      row.OrderID,
		Seq:          row.Seq,
		Kind:         row.Kind,
		Table:        row.TableNumber,
		Snapshot:     json.RawMessage(row.Snapshot),
		Reason:       row.Reason,
		AttemptCount: row.AttemptCount,
		FailedAt:     row.FailedAt.UTC(),
	}
	if row.ErrorMessage != nil {
		d.ErrorMessage = *row.ErrorMessage
	}
	return d
}
