package orders

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tableside-sync/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-sync/pkg/errors"
)

const (
	GratuityLineName      = "Gratuity"
	GratuityLineItemID    = "gratuity"
	GratuityLineVariation = "flat"
)

var hundred = decimal.NewFromInt(100)

// AddLine appends a new line with a fresh lineId and recomputes the total.
func (o *Order) AddLine(in LineInput) (Line, error) {
	if strings.TrimSpace(in.Name) == "" {
		return Line{}, pkgerrors.New(pkgerrors.CodeValidation, "line name is required")
	}
	if in.Price.IsNegative() {
		return Line{}, pkgerrors.New(pkgerrors.CodeValidation, "line price must be >= 0")
	}
	qty := in.Quantity
	if qty == 0 {
		qty = 1
	}
	if qty < 1 {
		return Line{}, ErrInvalidQuantity
	}

	line := Line{
		LineID:    NewID(),
		ItemID:    in.ItemID,
		Name:      in.Name,
		Variation: in.Variation,
		Price:     in.Price.Round(2),
		Quantity:  qty,
		Note:      in.Note,
	}
	if len(in.Modifiers) > 0 {
		line.Modifiers = append([]string(nil), in.Modifiers...)
	}
	o.Lines = append(o.Lines, line)
	o.Recalculate()
	return line, nil
}

// RemoveLine drops the line with lineID and recomputes the total.
func (o *Order) RemoveLine(lineID string) error {
	idx := o.lineIndex(lineID)
	if idx < 0 {
		return ErrLineNotFound
	}
	o.Lines = append(o.Lines[:idx:idx], o.Lines[idx+1:]...)
	o.Recalculate()
	return nil
}

// SetQuantity changes the quantity of an existing line.
func (o *Order) SetQuantity(lineID string, qty int) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	idx := o.lineIndex(lineID)
	if idx < 0 {
		return ErrLineNotFound
	}
	o.Lines[idx].Quantity = qty
	o.Recalculate()
	return nil
}

// SetStatus moves the order to status.
func (o *Order) SetStatus(status enums.OrderStatus) error {
	if !status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid order status").
			WithDetails(map[string]any{"status": string(status)})
	}
	o.Status = status
	return nil
}

// AddGratuity appends a flat gratuity line. A percentage is taken of the
// current total; the amount is rounded to 2dp.
func (o *Order) AddGratuity(kind enums.GratuityKind, value decimal.Decimal) (Line, error) {
	if !kind.IsValid() {
		return Line{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid gratuity kind")
	}
	if !value.IsPositive() {
		return Line{}, pkgerrors.New(pkgerrors.CodeValidation, "gratuity value must be > 0")
	}

	amount := value
	if kind == enums.GratuityPercentage {
		amount = o.TotalPrice.Mul(value).Div(hundred)
	}

	return o.AddLine(LineInput{
		ItemID:    GratuityLineItemID,
		Name:      GratuityLineName,
		Variation: GratuityLineVariation,
		Price:     amount.Round(2),
		Quantity:  1,
		Note:      GratuityLineName,
	})
}

// Recalculate rounds every line price to 2dp and sets TotalPrice to the sum
// of price x quantity over all lines.
func (o *Order) Recalculate() {
	for i := range o.Lines {
		o.Lines[i].Price = o.Lines[i].Price.Round(2)
	}
	o.TotalPrice = Total(o.Lines)
}

// Total sums price x quantity, rounded to 2dp.
func Total(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total.Round(2)
}
