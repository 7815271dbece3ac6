package orderserver

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/tableside-sync/api/middleware"
	"github.com/angelmondragon/tableside-sync/api/responses"
	"github.com/angelmondragon/tableside-sync/api/validators"
	"github.com/angelmondragon/tableside-sync/internal/remote"
	"github.com/angelmondragon/tableside-sync/pkg/db"
	"github.com/angelmondragon/tableside-sync/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-sync/pkg/errors"
	"github.com/angelmondragon/tableside-sync/pkg/logger"
)

type messageBody struct {
	Message string `json:"message"`
}

// NewRouter mounts the order service routes. Successful responses are bare
// documents; errors use the shared error envelope.
func NewRouter(repo *Repository, pinger db.Pinger, logg *logger.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Get("/healthz", health(pinger, logg))
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", createOrder(repo, logg))
		r.Get("/", listOrders(repo, logg))
		r.Get("/{orderId}", getOrder(repo, logg))
		r.Put("/{orderId}", replaceOrder(repo, logg))
		r.Delete("/{orderId}", deleteOrder(repo, logg))
		r.Delete("/{orderId}/items/{itemId}", removeItem(repo, logg))
	})
	return r
}

func health(pinger db.Pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pinger != nil {
			if err := pinger.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unreachable"))
				return
			}
		}
		responses.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func createOrder(repo *Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var doc remote.WireOrder
		if err := validators.DecodeJSONBody(r, &doc); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := logg.WithOrderID(r.Context(), doc.OrderID)

		created, err := repo.Create(ctx, doc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteJSON(w, http.StatusCreated, remote.OrderEnvelope{Message: "Order created", Order: created})
	}
}

func listOrders(repo *Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var filter Filter
		if raw := strings.TrimSpace(r.URL.Query().Get("tableNumber")); raw != "" {
			table, err := strconv.Atoi(raw)
			if err != nil || table < 0 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "tableNumber must be a non-negative integer"))
				return
			}
			filter.TableNumber = &table
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseOrderStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filter.Status = status
		}

		list, err := repo.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteJSON(w, http.StatusOK, list)
	}
}

func getOrder(repo *Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.RequireParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		doc, err := repo.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteJSON(w, http.StatusOK, doc)
	}
}

func replaceOrder(repo *Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.RequireParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var doc remote.WireOrder
		if err := validators.DecodeJSONBody(r, &doc); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if doc.OrderID != orderID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "orderId does not match path"))
			return
		}
		ctx := logg.WithOrderID(r.Context(), orderID)

		updated, err := repo.Replace(ctx, doc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteJSON(w, http.StatusOK, updated)
	}
}

func deleteOrder(repo *Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.RequireParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := repo.Delete(r.Context(), orderID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteJSON(w, http.StatusOK, messageBody{Message: "Order deleted"})
	}
}

func removeItem(repo *Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.RequireParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.RequireParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		updated, err := repo.RemoveItem(r.Context(), orderID, itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteJSON(w, http.StatusOK, updated)
	}
}
