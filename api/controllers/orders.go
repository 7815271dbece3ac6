package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tableside-sync/api/responses"
	"github.com/angelmondragon/tableside-sync/api/validators"
	"github.com/angelmondragon/tableside-sync/internal/orders"
	"github.com/angelmondragon/tableside-sync/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-sync/pkg/errors"
	"github.com/angelmondragon/tableside-sync/pkg/logger"
)

const maxNoteLen = 280

// SubmitOrder records a full order computed by the UI.
func SubmitOrder(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload submitOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := payload.toOrder()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		saved, err := svc.Submit(logg.WithTable(r.Context(), order.Table), order)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, saved)
	}
}

// TableOrder returns the open order for a table.
func TableOrder(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		table, err := validators.ParseTableParam(r, "table")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.GetOrderForTable(r.Context(), table)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// AddLine adds a line to the table's open order, opening one when needed.
func AddLine(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		table, err := validators.ParseTableParam(r, "table")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload linePayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.Price.IsNegative() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "price must be >= 0"))
			return
		}

		ctx := logg.WithTable(r.Context(), table)
		order, line, err := svc.AddLine(ctx, table, payload.toInput())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, lineResponse{Order: order, Line: line})
	}
}

// SetLineQuantity changes a line's quantity.
func SetLineQuantity(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, lineID, err := orderAndLine(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload quantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithOrderID(r.Context(), orderID)
		order, err := svc.SetQuantity(ctx, orderID, lineID, payload.Quantity)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// RemoveLine removes a line from an order.
func RemoveLine(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, lineID, err := orderAndLine(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithOrderID(r.Context(), orderID)
		order, err := svc.RemoveLine(ctx, orderID, lineID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// SetOrderStatus moves an order to a new status.
func SetOrderStatus(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.RequireParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload statusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := enums.ParseOrderStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		ctx := logg.WithOrderID(r.Context(), orderID)
		order, err := svc.SetStatus(ctx, orderID, status)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// AddGratuity appends a gratuity line.
func AddGratuity(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.RequireParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload gratuityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		kind, err := enums.ParseGratuityKind(payload.Kind)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid gratuity kind"))
			return
		}

		ctx := logg.WithOrderID(r.Context(), orderID)
		order, err := svc.AddGratuity(ctx, orderID, kind, payload.Value)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// DiscardOrder deletes an order on the device and queues the remote delete.
func DiscardOrder(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.RequireParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithOrderID(r.Context(), orderID)
		if err := svc.Discard(ctx, orderID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"orderId": orderID, "discarded": true})
	}
}

func orderAndLine(r *http.Request) (string, string, error) {
	orderID, err := validators.RequireParam(r, "orderId")
	if err != nil {
		return "", "", err
	}
	lineID, err := validators.RequireParam(r, "lineId")
	if err != nil {
		return "", "", err
	}
	return orderID, lineID, nil
}

type submitOrderRequest struct {
	OrderID string              `json:"orderId" validate:"omitempty,max=64"`
	Table   *int                `json:"table" validate:"required,gte=0"`
	Status  string              `json:"status"`
	Lines   []submitLinePayload `json:"lines" validate:"dive"`
}

type submitLinePayload struct {
	LineID string `json:"lineId" validate:"omitempty,max=64"`
	linePayload
}

type linePayload struct {
	ItemID    string          `json:"itemId"`
	Name      string          `json:"name" validate:"required,max=120"`
	Variation string          `json:"variation" validate:"max=60"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity" validate:"gte=0"`
	Modifiers []string        `json:"modifiers"`
	Note      string          `json:"note"`
}

func (p linePayload) toInput() orders.LineInput {
	return orders.LineInput{
		ItemID:    validators.SanitizeString(p.ItemID, 64),
		Name:      validators.SanitizeString(p.Name, 120),
		Variation: validators.SanitizeString(p.Variation, 60),
		Price:     p.Price,
		Quantity:  p.Quantity,
		Modifiers: p.Modifiers,
		Note:      validators.SanitizeString(p.Note, maxNoteLen),
	}
}

// toOrder builds the order through the domain mutations so ids and the
// total are always derived the same way.
func (p submitOrderRequest) toOrder() (orders.Order, error) {
	order := orders.Order{
		OrderID: p.OrderID,
		Table:   *p.Table,
		Lines:   []orders.Line{},
		Status:  enums.OrderStatusOpen,
	}
	if p.Status != "" {
		status, err := enums.ParseOrderStatus(p.Status)
		if err != nil {
			return orders.Order{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status")
		}
		order.Status = status
	}
	for _, lp := range p.Lines {
		if lp.Price.IsNegative() {
			return orders.Order{}, pkgerrors.New(pkgerrors.CodeValidation, "price must be >= 0")
		}
		if _, err := order.AddLine(lp.toInput()); err != nil {
			return orders.Order{}, err
		}
		if lp.LineID != "" {
			order.Lines[len(order.Lines)-1].LineID = lp.LineID
		}
	}
	return order, nil
}

type quantityRequest struct {
	Quantity int `json:"quantity" validate:"required,gte=1"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type gratuityRequest struct {
	Kind  string          `json:"kind" validate:"required"`
	Value decimal.Decimal `json:"value"`
}

type lineResponse struct {
	Order orders.Order `json:"order"`
	Line  orders.Line  `json:"line"`
}
