package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tableside-sync/pkg/enums"
)

// Order is the device-local record of an order. Lines are kept as a JSON array.
type Order struct {
	OrderID     string            `gorm:"column:order_id;primaryKey"`
	ServerRef   *string           `gorm:"column:server_ref"`
	TableNumber int               `gorm:"column:table_number;not null"`
	Status      enums.OrderStatus `gorm:"column:status;not null"`
	TotalPrice  decimal.Decimal   `gorm:"column:total_price;type:text;not null"`
	Lines       JSONDocument      `gorm:"column:lines;type:text;not null"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime:false"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime:false"`
}

func (Order) TableName() string { return "orders" }
