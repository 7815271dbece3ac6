package orderserver

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tableside-sync/internal/orders"
	"github.com/angelmondragon/tableside-sync/internal/remote"
	"github.com/angelmondragon/tableside-sync/pkg/db"
	"github.com/angelmondragon/tableside-sync/pkg/db/models"
	"github.com/angelmondragon/tableside-sync/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-sync/pkg/errors"
)

var (
	ErrOrderNotFound     = pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	ErrItemNotFound      = pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
	ErrDuplicateOrder    = pkgerrors.New(pkgerrors.CodeConflict, "order already exists")
	ErrTableHasOpenOrder = pkgerrors.New(pkgerrors.CodeConflict, "table already has an open order")
)

// Filter narrows List. Zero values match everything.
type Filter struct {
	TableNumber *int
	Status      enums.OrderStatus
}

// Repository stores order service documents. orderId is the lookup key; id
// is assigned on create and never changes.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{db: conn, now: time.Now}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx, now: r.now}
}

// Create inserts doc, assigning its id and timestamps.
func (r *Repository) Create(ctx context.Context, doc remote.WireOrder) (remote.WireOrder, error) {
	now := r.now().UTC()
	doc.ID = uuid.NewString()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	row, err := toRow(doc)
	if err != nil {
		return remote.WireOrder{}, err
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return remote.WireOrder{}, translateWriteError(err, "create order")
	}
	return fromRow(row)
}

func (r *Repository) Get(ctx context.Context, orderID string) (remote.WireOrder, error) {
	row, err := r.find(ctx, r.db, orderID)
	if err != nil {
		return remote.WireOrder{}, err
	}
	return fromRow(row)
}

// Replace overwrites the stored document for doc.OrderID, keeping id and createdAt.
func (r *Repository) Replace(ctx context.Context, doc remote.WireOrder) (remote.WireOrder, error) {
	var out remote.WireOrder
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := r.find(ctx, tx, doc.OrderID)
		if err != nil {
			return err
		}
		doc.ID = existing.ID
		doc.CreatedAt = existing.CreatedAt
		doc.UpdatedAt = r.now().UTC()

		row, err := toRow(doc)
		if err != nil {
			return err
		}
		if err := tx.Save(&row).Error; err != nil {
			return translateWriteError(err, "replace order")
		}
		out, err = fromRow(row)
		return err
	})
	return out, err
}

func (r *Repository) Delete(ctx context.Context, orderID string) error {
	res := r.db.WithContext(ctx).Where("order_id = ?", orderID).Delete(&models.RemoteOrder{})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "delete order")
	}
	if res.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// RemoveItem drops one item by orderItemId and recomputes the total.
func (r *Repository) RemoveItem(ctx context.Context, orderID, itemID string) (remote.WireOrder, error) {
	var out remote.WireOrder
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := r.find(ctx, tx, orderID)
		if err != nil {
			return err
		}
		doc, err := fromRow(row)
		if err != nil {
			return err
		}
		kept := make([]remote.WireItem, 0, len(doc.Items))
		for _, item := range doc.Items {
			if item.OrderItemID != itemID {
				kept = append(kept, item)
			}
		}
		if len(kept) == len(doc.Items) {
			return ErrItemNotFound
		}
		doc.Items = kept
		doc.UpdatedAt = r.now().UTC()

		updated, err := toRow(doc)
		if err != nil {
			return err
		}
		if err := tx.Save(&updated).Error; err != nil {
			return translateWriteError(err, "remove order item")
		}
		out, err = fromRow(updated)
		return err
	})
	return out, err
}

// List returns matching documents, newest first.
func (r *Repository) List(ctx context.Context, filter Filter) ([]remote.WireOrder, error) {
	query := r.db.WithContext(ctx).Model(&models.RemoteOrder{})
	if filter.TableNumber != nil {
		query = query.Where("table_number = ?", *filter.TableNumber)
	}
	if filter.Status != "" {
		query = query.Where("order_status = ?", filter.Status)
	}

	var rows []models.RemoteOrder
	if err := query.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	out := make([]remote.WireOrder, 0, len(rows))
	for _, row := range rows {
		doc, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (r *Repository) find(ctx context.Context, conn *gorm.DB, orderID string) (models.RemoteOrder, error) {
	var row models.RemoteOrder
	err := conn.WithContext(ctx).Where("order_id = ?", orderID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.RemoteOrder{}, ErrOrderNotFound
		}
		return models.RemoteOrder{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find order")
	}
	return row, nil
}

func translateWriteError(err error, op string) error {
	switch {
	case db.IsUniqueViolation(err, "order_id"):
		return ErrDuplicateOrder
	case db.IsUniqueViolation(err, ""):
		return ErrTableHasOpenOrder
	default:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, op)
	}
}

// toRow normalizes doc: the total is recomputed from items and status
// defaults to open.
func toRow(doc remote.WireOrder) (models.RemoteOrder, error) {
	normalized := remote.FromWire(doc)
	items := doc.Items
	if items == nil {
		items = []remote.WireItem{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return models.RemoteOrder{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode order items")
	}
	return models.RemoteOrder{
		ID:          doc.ID,
		OrderID:     doc.OrderID,
		TableNumber: doc.TableNumber,
		Status:      normalized.Status,
		TotalPrice:  orders.Total(normalized.Lines),
		Items:       models.JSONDocument(payload),
		CreatedAt:   doc.CreatedAt.UTC(),
		UpdatedAt:   doc.UpdatedAt.UTC(),
	}, nil
}

func fromRow(row models.RemoteOrder) (remote.WireOrder, error) {
	items := []remote.WireItem{}
	if len(row.Items) > 0 {
		if err := json.Unmarshal([]byte(row.Items), &items); err != nil {
			return remote.WireOrder{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode order items")
		}
	}
	return remote.WireOrder{
		ID:          row.ID,
		OrderID:     row.OrderID,
		TableNumber: row.TableNumber,
		Items:       items,
		TotalPrice:  row.TotalPrice.InexactFloat64(),
		OrderStatus: string(row.Status),
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}, nil
}
