package pg

import (
	"time"

	"github.com/shopspring/decimal"
)

type productRow struct {
	ID          string          `gorm:"primaryKey;size:64"`
	Name        string          `gorm:"not null;size:200"`
	Description string          `gorm:"type:text"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	ImageURL    string          `gorm:"size:500"`
	Position    int             `gorm:"not null;default:0;index"`
}

func (productRow) TableName() string { return "products" }

type storeRow struct {
	ID           string  `gorm:"primaryKey;size:64"`
	Name         string  `gorm:"not null;size:200"`
	Address      string  `gorm:"not null;size:500"`
	Lon          float64 `gorm:"not null"`
	Lat          float64 `gorm:"not null"`
	DelivererKey string  `gorm:"size:100"`
}

func (storeRow) TableName() string { return "stores" }

type cartLineRow struct {
	ID        uint       `gorm:"primaryKey"`
	CartRef   string     `gorm:"not null;size:100;index:idx_cart_product,unique"`
	ProductID string     `gorm:"not null;size:64;index:idx_cart_product,unique"`
	Product   productRow `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	Quantity  int        `gorm:"not null;check:quantity > 0"`
	CreatedAt time.Time
}

func (cartLineRow) TableName() string { return "cart_lines" }

type customerEntryRow struct {
	ID           uint   `gorm:"primaryKey"`
	OrderRef     string `gorm:"not null;size:100;index"`
	CustomerName string `gorm:"size:200"`
	Lon          float64
	Lat          float64
	CreatedAt    time.Time
}

func (customerEntryRow) TableName() string { return "customer_entries" }
