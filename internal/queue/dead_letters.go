package queue

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/tableside-sync/pkg/db/models"
	"github.com/angelmondragon/tableside-sync/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-sync/pkg/errors"
)

// DeadLetter moves entry out of the queue into dead_letters in one transaction.
func (r *Repository) DeadLetter(ctx context.Context, entry Entry, reason enums.DeadLetterReason, cause error) (DeadLetter, error) {
	if !reason.IsValid() {
		return DeadLetter{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid dead letter reason")
	}
	row := models.DeadLetter{
		ID:           newDeadLetterID(),
		OrderID:      entry.OrderID,
		Seq:          entry.Seq,
		Kind:         entry.Kind,
		TableNumber:  entry.Table,
		Snapshot:     models.JSONDocument(entry.Snapshot),
		Reason:       reason,
		AttemptCount: entry.AttemptCount + 1,
		FailedAt:     time.Now().UTC(),
	}
	if len(row.Snapshot) == 0 {
		row.Snapshot = models.JSONDocument("null")
	}
	if cause != nil {
		msg := truncateError(cause.Error())
		row.ErrorMessage = &msg
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return tx.Where("order_id = ?", entry.OrderID).Delete(&models.PendingOperation{}).Error
	})
	if err != nil {
		return DeadLetter{}, storageError(err, "dead letter queue entry")
	}
	return deadLetterFromRow(row), nil
}

// ListDeadLetters returns the most recent dead letters first.
func (r *Repository) ListDeadLetters(ctx context.Context, limit int) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.DeadLetter
	err := r.db.WithContext(ctx).
		Order("failed_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, storageError(err, "list dead letters")
	}
	out := make([]DeadLetter, 0, len(rows))
	for _, row := range rows {
		out = append(out, deadLetterFromRow(row))
	}
	return out, nil
}

// CountDeadLetters returns the number of dead letters.
func (r *Repository) CountDeadLetters(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.DeadLetter{}).Count(&n).Error; err != nil {
		return 0, storageError(err, "count dead letters")
	}
	return n, nil
}
