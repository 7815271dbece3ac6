package models

import (
	"time"

	"github.com/angelmondragon/tableside-sync/pkg/enums"
)

// PendingOperation is a queued mutation awaiting confirmation from the order
// service. There is at most one entry per order; Seq defines replay order.
type PendingOperation struct {
	OrderID      string              `gorm:"column:order_id;primaryKey"`
	Seq          int64               `gorm:"column:seq;not null"`
	Kind         enums.OperationKind `gorm:"column:kind;not null"`
	TableNumber  int                 `gorm:"column:table_number;not null"`
	Snapshot     JSONDocument        `gorm:"column:snapshot;type:text;not null"`
	AttemptCount int                 `gorm:"column:attempt_count;not null;default:0"`
	LastError    *string             `gorm:"column:last_error"`
	EnqueuedAt   time.Time           `gorm:"column:enqueued_at;not null"`
	UpdatedAt    time.Time           `gorm:"column:updated_at;autoUpdateTime:false"`
}

func (PendingOperation) TableName() string { return "pending_operations" }
