package remote

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tableside-sync/internal/orders"
	"github.com/angelmondragon/tableside-sync/pkg/enums"
)

// WireOrder is the order document exchanged with the order service.
type WireOrder struct {
	ID          string     `json:"_id,omitempty"`
	OrderID     string     `json:"orderId" validate:"required,max=64"`
	TableNumber int        `json:"tableNumber" validate:"gte=0"`
	Items       []WireItem `json:"items" validate:"dive"`
	TotalPrice  float64    `json:"totalPrice" validate:"gte=0"`
	OrderStatus string     `json:"orderStatus" validate:"omitempty,oneof=open paid_cash paid_card paid_other cancelled"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// WireItem is one line of a WireOrder.
type WireItem struct {
	OrderItemID string   `json:"orderItemId" validate:"required"`
	ItemID      string   `json:"itemId"`
	Name        string   `json:"name" validate:"required"`
	Variation   string   `json:"variation"`
	Price       float64  `json:"price" validate:"gte=0"`
	Quantity    int      `json:"quantity" validate:"gte=1"`
	Modifiers   []string `json:"modifiers"`
	Notes       string   `json:"notes"`
}

// OrderEnvelope is the body returned by create.
type OrderEnvelope struct {
	Message string    `json:"message"`
	Order   WireOrder `json:"order"`
}

// ToWire renders order in the order service's representation.
func ToWire(order orders.Order) WireOrder {
	items := make([]WireItem, 0, len(order.Lines))
	for _, line := range order.Lines {
		modifiers := line.Modifiers
		if modifiers == nil {
			modifiers = []string{}
		}
		items = append(items, WireItem{
			OrderItemID: line.LineID,
			ItemID:      line.ItemID,
			Name:        line.Name,
			Variation:   line.Variation,
			Price:       line.Price.InexactFloat64(),
			Quantity:    line.Quantity,
			Modifiers:   modifiers,
			Notes:       line.Note,
		})
	}
	return WireOrder{
		ID:          order.ServerRef,
		OrderID:     order.OrderID,
		TableNumber: order.Table,
		Items:       items,
		TotalPrice:  order.TotalPrice.InexactFloat64(),
		OrderStatus: string(order.Status),
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
}

// FromWire converts a service document into a domain order. Prices are
// rounded to cents and the total is recomputed from the lines.
func FromWire(w WireOrder) orders.Order {
	lines := make([]orders.Line, 0, len(w.Items))
	for _, item := range w.Items {
		lineID := item.OrderItemID
		if lineID == "" {
			lineID = orders.NewID()
		}
		var modifiers []string
		if len(item.Modifiers) > 0 {
			modifiers = append([]string(nil), item.Modifiers...)
		}
		lines = append(lines, orders.Line{
			LineID:    lineID,
			ItemID:    item.ItemID,
			Name:      item.Name,
			Variation: item.Variation,
			Price:     decimal.NewFromFloat(item.Price).Round(2),
			Quantity:  item.Quantity,
			Modifiers: modifiers,
			Note:      item.Notes,
		})
	}
	status := enums.OrderStatus(w.OrderStatus)
	if status == "" {
		status = enums.OrderStatusOpen
	}
	return orders.Order{
		OrderID:    w.OrderID,
		ServerRef:  w.ID,
		Table:      w.TableNumber,
		Lines:      lines,
		TotalPrice: orders.Total(lines),
		Status:     status,
		CreatedAt:  w.CreatedAt.UTC(),
		UpdatedAt:  w.UpdatedAt.UTC(),
	}
}
