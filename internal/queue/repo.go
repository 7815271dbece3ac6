package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tableside-sync/internal/orders"
	"github.com/angelmondragon/tableside-sync/pkg/db/models"
	"github.com/angelmondragon/tableside-sync/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-sync/pkg/errors"
)

const maxErrorLen = 1024

// Repository is the pending-operation queue: at most one entry per order,
// replayed in sequence order.
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

// Enqueue records kind for order, coalescing with any entry already queued
// for the same orderId. A replaced entry keeps its sequence number. The
// returned entry is nil when the operation cancelled the existing entry out.
func (r *Repository) Enqueue(ctx context.Context, kind enums.OperationKind, order orders.Order) (*Entry, error) {
	if !kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid operation kind")
	}
	if order.OrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "orderId is required")
	}
	snapshot, err := json.Marshal(order)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode snapshot")
	}

	var result *Entry
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()

		var existing models.PendingOperation
		err := tx.Where("order_id = ?", order.OrderID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			var maxSeq int64
			if err := tx.Model(&models.PendingOperation{}).
				Select("COALESCE(MAX(seq), 0)").
				Scan(&maxSeq).Error; err != nil {
				return err
			}
			row := models.PendingOperation{
				OrderID:     order.OrderID,
				Seq:         maxSeq + 1,
				Kind:        kind,
				TableNumber: order.Table,
				Snapshot:    models.JSONDocument(snapshot),
				EnqueuedAt:  now,
				UpdatedAt:   now,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			entry := entryFromRow(row)
			result = &entry
			return nil
		case err != nil:
			return err
		}

		next, keep := coalesce(existing.Kind, kind)
		if !keep {
			return tx.Where("order_id = ?", order.OrderID).Delete(&models.PendingOperation{}).Error
		}
		existing.Kind = next
		existing.TableNumber = order.Table
		existing.Snapshot = models.JSONDocument(snapshot)
		existing.UpdatedAt = now
		if err := tx.Model(&models.PendingOperation{}).
			Where("order_id = ?", order.OrderID).
			Updates(map[string]any{
				"kind":         existing.Kind,
				"table_number": existing.TableNumber,
				"snapshot":     existing.Snapshot,
				"updated_at":   existing.UpdatedAt,
			}).Error; err != nil {
			return err
		}
		entry := entryFromRow(existing)
		result = &entry
		return nil
	})
	if err != nil {
		return nil, storageError(err, "enqueue operation")
	}
	return result, nil
}

// Drain returns the queue snapshot in replay order, oldest first. Entries stay
// queued until Remove.
func (r *Repository) Drain(ctx context.Context) ([]Entry, error) {
	var rows []models.PendingOperation
	if err := r.db.WithContext(ctx).Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, storageError(err, "drain queue")
	}
	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, entryFromRow(row))
	}
	return out, nil
}

// PeekAll is the read-only diagnostics view of the queue.
func (r *Repository) PeekAll(ctx context.Context) ([]Entry, error) {
	return r.Drain(ctx)
}

// Get returns the entry for orderID, or nil when none is queued.
func (r *Repository) Get(ctx context.Context, orderID string) (*Entry, error) {
	var row models.PendingOperation
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storageError(err, "get queue entry")
	}
	entry := entryFromRow(row)
	return &entry, nil
}

// Remove drops the entry for orderID; removing a missing entry is a no-op.
func (r *Repository) Remove(ctx context.Context, orderID string) error {
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Delete(&models.PendingOperation{}).Error; err != nil {
		return storageError(err, "remove queue entry")
	}
	return nil
}

// MarkFailed records a failed attempt and leaves the entry queued.
func (r *Repository) MarkFailed(ctx context.Context, orderID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = truncateError(cause.Error())
	}
	err := r.db.WithContext(ctx).Model(&models.PendingOperation{}).
		Where("order_id = ?", orderID).
		Updates(map[string]any{
			"last_error":    msg,
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"updated_at":    time.Now().UTC(),
		}).Error
	if err != nil {
		return storageError(err, "mark queue entry failed")
	}
	return nil
}

// Count returns the number of queued entries.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.PendingOperation{}).Count(&n).Error; err != nil {
		return 0, storageError(err, "count queue")
	}
	return n, nil
}

func truncateError(message string) string {
	if len(message) <= maxErrorLen {
		return message
	}
	return message[:maxErrorLen]
}

func storageError(err error, op string) error {
	return pkgerrors.Wrap(pkgerrors.CodeLocalStorage, err, op)
}

func newDeadLetterID() string {
	return uuid.NewString()
}
