package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tableside-sync/pkg/enums"
)

// RemoteOrder is the order service's stored document. ID is the server-assigned
// reference; OrderID is the client idempotency key.
type RemoteOrder struct {
	ID          string            `gorm:"column:id;primaryKey"`
	OrderID     string            `gorm:"column:order_id;not null;uniqueIndex"`
	TableNumber int               `gorm:"column:table_number;not null"`
	Status      enums.OrderStatus `gorm:"column:order_status;not null"`
	TotalPrice  decimal.Decimal   `gorm:"column:total_price;type:numeric(12,2);not null"`
	Items       JSONDocument      `gorm:"column:items;type:text;not null"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime:false"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime:false"`
}

func (RemoteOrder) TableName() string { return "orders" }
