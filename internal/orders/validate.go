package orders

import (
	"fmt"
	"strings"

	pkgerrors "github.com/angelmondragon/tableside-sync/pkg/errors"
)

var (
	ErrLineNotFound    = pkgerrors.New(pkgerrors.CodeNotFound, "order line not found")
	ErrInvalidQuantity = pkgerrors.New(pkgerrors.CodeValidation, "quantity must be >= 1")
)

// Validate checks the structural invariants of an order, including that the
// stored total matches its lines.
func Validate(o Order) error {
	var problems []string
	if strings.TrimSpace(o.OrderID) == "" {
		problems = append(problems, "orderId is required")
	}
	if o.Table < 0 {
		problems = append(problems, "table must be >= 0")
	}
	if !o.Status.IsValid() {
		problems = append(problems, fmt.Sprintf("status %q is invalid", o.Status))
	}

	seen := make(map[string]struct{}, len(o.Lines))
	for i, line := range o.Lines {
		if strings.TrimSpace(line.LineID) == "" {
			problems = append(problems, fmt.Sprintf("lines[%d].lineId is required", i))
		} else if _, dup := seen[line.LineID]; dup {
			problems = append(problems, fmt.Sprintf("lines[%d].lineId %q is duplicated", i, line.LineID))
		} else {
			seen[line.LineID] = struct{}{}
		}
		if line.Price.IsNegative() {
			problems = append(problems, fmt.Sprintf("lines[%d].price must be >= 0", i))
		}
		if line.Quantity < 1 {
			problems = append(problems, fmt.Sprintf("lines[%d].quantity must be >= 1", i))
		}
	}

	if want := Total(o.Lines); !o.TotalPrice.Equal(want) {
		problems = append(problems, fmt.Sprintf("totalPrice %s does not match lines total %s", o.TotalPrice, want))
	}

	if len(problems) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid order").
		WithDetails(map[string]any{"problems": problems})
}
