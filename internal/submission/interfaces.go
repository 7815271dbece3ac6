package submission

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/tableside-sync/internal/orders"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RemoteOrders is the slice of the order service the coordinator writes through.
type RemoteOrders interface {
	Create(ctx context.Context, order orders.Order) (orders.Order, error)
	Replace(ctx context.Context, order orders.Order) (orders.Order, error)
	Delete(ctx context.Context, orderID string) error
	RemoveLine(ctx context.Context, orderID, lineID string) error
	FetchOpenByTable(ctx context.Context, table int) (orders.Order, error)
}

// Connectivity exposes the current online state.
type Connectivity interface {
	Online() bool
}

// Nudger asks the reconciliation loop to run soon.
type Nudger interface {
	Trigger()
}
