package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tableside-sync/pkg/enums"
)

// Order is a table's collection of purchased lines. OrderID is client-generated
// and is the idempotency key for every remote call; ServerRef is only set once
// the order service has accepted the order.
type Order struct {
	OrderID    string            `json:"orderId"`
	ServerRef  string            `json:"serverRef,omitempty"`
	Table      int               `json:"table"`
	Lines      []Line            `json:"lines"`
	TotalPrice decimal.Decimal   `json:"totalPrice"`
	Status     enums.OrderStatus `json:"status"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// Line is one item on an order. Price is the unit price captured when the line
// was added; only Quantity changes afterwards.
type Line struct {
	LineID    string          `json:"lineId"`
	ItemID    string          `json:"itemId"`
	Name      string          `json:"name"`
	Variation string          `json:"variation"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Modifiers []string        `json:"modifiers,omitempty"`
	Note      string          `json:"note,omitempty"`
}

// LineInput describes a line to add.
type LineInput struct {
	ItemID    string
	Name      string
	Variation string
	Price     decimal.Decimal
	Quantity  int
	Modifiers []string
	Note      string
}

// NewOrder starts an open, empty order for table.
func NewOrder(table int, now time.Time) Order {
	return Order{
		OrderID:    NewID(),
		Table:      table,
		Lines:      []Line{},
		TotalPrice: decimal.Zero,
		Status:     enums.OrderStatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// NewID returns a fresh client-side identifier for orders and lines.
func NewID() string {
	return uuid.NewString()
}

// IsOpen reports whether the order is still being served.
func (o Order) IsOpen() bool {
	return o.Status == enums.OrderStatusOpen
}

// HasLine reports whether lineID is on the order.
func (o Order) HasLine(lineID string) bool {
	return o.lineIndex(lineID) >= 0
}

// Clone returns a deep copy so callers can mutate without aliasing stored slices.
func (o Order) Clone() Order {
	out := o
	out.Lines = make([]Line, len(o.Lines))
	for i, line := range o.Lines {
		if line.Modifiers != nil {
			line.Modifiers = append([]string(nil), line.Modifiers...)
		}
		out.Lines[i] = line
	}
	return out
}

func (o Order) lineIndex(lineID string) int {
	for i := range o.Lines {
		if o.Lines[i].LineID == lineID {
			return i
		}
	}
	return -1
}
