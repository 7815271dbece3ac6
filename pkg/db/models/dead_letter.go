package models

import (
	"time"

	"github.com/angelmondragon/tableside-sync/pkg/enums"
)

// DeadLetter captures queue entries that can never be applied remotely.
type DeadLetter struct {
	ID           string                 `gorm:"column:id;primaryKey"`
	OrderID      string                 `gorm:"column:order_id;not null"`
	Seq          int64                  `gorm:"column:seq;not null"`
	Kind         enums.OperationKind    `gorm:"column:kind;not null"`
	TableNumber  int                    `gorm:"column:table_number;not null"`
	Snapshot     JSONDocument           `gorm:"column:snapshot;type:text;not null"`
	Reason       enums.DeadLetterReason `gorm:"column:reason;not null"`
	ErrorMessage *string                `gorm:"column:error_message"`
	AttemptCount int                    `gorm:"column:attempt_count;not null;default:0"`
	FailedAt     time.Time              `gorm:"column:failed_at;not null"`
}

func (DeadLetter) TableName() string { return "dead_letters" }
