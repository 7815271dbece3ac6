package store

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/tableside-sync/internal/orders"
	"github.com/angelmondragon/tableside-sync/pkg/db/models"
	"github.com/angelmondragon/tableside-sync/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-sync/pkg/errors"
)

// ErrNotFound is returned when no order matches.
var ErrNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "order not found on device")

// Repository is the device's durable order store. Every failure other than a
// missing row surfaces as LOCAL_STORAGE_ERROR.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Get(ctx context.Context, orderID string) (orders.Order, error) {
	var row models.Order
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return orders.Order{}, ErrNotFound
		}
		return orders.Order{}, storageError(err, "get order")
	}
	return fromRow(row)
}

// Put upserts order by orderId.
func (r *Repository) Put(ctx context.Context, order orders.Order) error {
	row, err := toRow(order)
	if err != nil {
		return err
	}
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	if err != nil {
		return storageError(err, "put order")
	}
	return nil
}

// Delete removes order; deleting a missing order is not an error.
func (r *Repository) Delete(ctx context.Context, orderID string) error {
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Delete(&models.Order{}).Error; err != nil {
		return storageError(err, "delete order")
	}
	return nil
}

// QueryOpenByTable returns the most recently updated open order on table.
func (r *Repository) QueryOpenByTable(ctx context.Context, table int) (orders.Order, error) {
	var row models.Order
	err := r.db.WithContext(ctx).
		Where("table_number = ? AND status = ?", table, enums.OrderStatusOpen).
		Order("updated_at DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return orders.Order{}, ErrNotFound
		}
		return orders.Order{}, storageError(err, "query open order")
	}
	return fromRow(row)
}

// All returns every stored order, oldest first.
func (r *Repository) All(ctx context.Context) ([]orders.Order, error) {
	var rows []models.Order
	if err := r.db.WithContext(ctx).Order("created_at ASC").Order("order_id ASC").Find(&rows).Error; err != nil {
		return nil, storageError(err, "list orders")
	}
	out := make([]orders.Order, 0, len(rows))
	for _, row := range rows {
		order, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, order)
	}
	return out, nil
}

// SetServerRef records the server-assigned reference without touching anything else.
func (r *Repository) SetServerRef(ctx context.Context, orderID, serverRef string) error {
	if serverRef == "" {
		return nil
	}
	err := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("order_id = ?", orderID).
		Update("server_ref", serverRef).Error
	if err != nil {
		return storageError(err, "set server ref")
	}
	return nil
}

func toRow(order orders.Order) (models.Order, error) {
	lines := order.Lines
	if lines == nil {
		lines = []orders.Line{}
	}
	raw, err := json.Marshal(lines)
	if err != nil {
		return models.Order{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode order lines")
	}
	row := models.Order{
		OrderID:     order.OrderID,
		TableNumber: order.Table,
		Status:      order.Status,
		TotalPrice:  order.TotalPrice,
		Lines:       models.JSONDocument(raw),
		CreatedAt:   order.CreatedAt.UTC(),
		UpdatedAt:   order.UpdatedAt.UTC(),
	}
	if order.ServerRef != "" {
		ref := order.ServerRef
		row.ServerRef = &ref
	}
	return row, nil
}

func fromRow(row models.Order) (orders.Order, error) {
	order := orders.Order{
		OrderID:    row.OrderID,
		Table:      row.TableNumber,
		Status:     row.Status,
		TotalPrice: row.TotalPrice,
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
		Lines:      []orders.Line{},
	}
	if row.ServerRef != nil {
		order.ServerRef = *row.ServerRef
	}
	if len(row.Lines) > 0 {
		if err := json.Unmarshal([]byte(row.Lines), &order.Lines); err != nil {
			return orders.Order{}, storageError(err, "decode order lines")
		}
		if order.Lines == nil {
			order.Lines = []orders.Line{}
		}
	}
	return order, nil
}

func storageError(err error, op string) error {
	return pkgerrors.Wrap(pkgerrors.CodeLocalStorage, err, op)
}
