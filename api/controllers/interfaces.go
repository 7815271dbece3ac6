package controllers

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tableside-sync/internal/connectivity"
	"github.com/angelmondragon/tableside-sync/internal/orders"
	"github.com/angelmondragon/tableside-sync/internal/queue"
	"github.com/angelmondragon/tableside-sync/internal/reconcile"
	"github.com/angelmondragon/tableside-sync/pkg/enums"
)

// OrderService is the coordinator surface the UI drives.
type OrderService interface {
	Submit(ctx context.Context, order orders.Order) (orders.Order, error)
	GetOrderForTable(ctx context.Context, table int) (orders.Order, error)
	AddLine(ctx context.Context, table int, in orders.LineInput) (orders.Order, orders.Line, error)
	RemoveLine(ctx context.Context, orderID, lineID string) (orders.Order, error)
	SetQuantity(ctx context.Context, orderID, lineID string, qty int) (orders.Order, error)
	SetStatus(ctx context.Context, orderID string, status enums.OrderStatus) (orders.Order, error)
	AddGratuity(ctx context.Context, orderID string, kind enums.GratuityKind, value decimal.Decimal) (orders.Order, error)
	Discard(ctx context.Context, orderID string) error
}

// QueueReader exposes read-only queue diagnostics.
type QueueReader interface {
	PeekAll(ctx context.Context) ([]queue.Entry, error)
	Count(ctx context.Context) (int64, error)
	ListDeadLetters(ctx context.Context, limit int) ([]queue.DeadLetter, error)
	CountDeadLetters(ctx context.Context) (int64, error)
}

// Reconciler runs a reconciliation pass on demand.
type Reconciler interface {
	Reconcile(ctx context.Context) (reconcile.Result, error)
}

// Connectivity reports the online state and streams transitions.
type Connectivity interface {
	Online() bool
	Subscribe(buffer int) (<-chan connectivity.Transition, func())
}
