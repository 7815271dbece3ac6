package reconcile

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/tableside-sync/internal/connectivity"
	"github.com/angelmondragon/tableside-sync/internal/orders"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RemoteOrders is the slice of the order service replayed against.
type RemoteOrders interface {
	Fetch(ctx context.Context, orderID string) (orders.Order, error)
	Create(ctx context.Context, order orders.Order) (orders.Order, error)
	Replace(ctx context.Context, order orders.Order) (orders.Order, error)
	Delete(ctx context.Context, orderID string) error
}

// Connectivity reports reachability and delivers transitions.
type Connectivity interface {
	Online() bool
	Subscribe(buffer int) (<-chan connectivity.Transition, func())
}
