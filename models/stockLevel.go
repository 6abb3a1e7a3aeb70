package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockLevel is current warehouse stock per (product, coating, color).
type StockLevel struct {
	ID        int             `gorm:"primary_key" json:"id"`
	ProductId int             `gorm:"uniqueIndex:idx_stock_key;not null" json:"_id"`
	Coating   string          `gorm:"uniqueIndex:idx_stock_key;size:100" json:"coating"`
	Color     string          `gorm:"uniqueIndex:idx_stock_key;size:100" json:"color"`
	Qty       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"stock"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// StockHistory is the append-only audit trail of writeoffs against stock.
type StockHistory struct {
	ID          int             `gorm:"primary_key" json:"id"`
	ProductId   int             `gorm:"index;not null" json:"product_id"`
	Coating     string          `gorm:"size:100" json:"coating"`
	Color       string          `gorm:"size:100" json:"color"`
	OrderId     int             `gorm:"index" json:"order_id"`
	ItemId      int             `json:"item_id"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	QtyAfter    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty_after"`
	PerformedBy string          `gorm:"size:100" json:"performed_by"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type StockLevelQuery struct {
	ProductId int    `json:"_id"`
	Coating   string `json:"coating"`
	Color     string `json:"color"`
}

func GetStockForKeys(ctx context.Context, keys []StockLevelQuery) ([]StockLevel, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	db := config.GetDB()
	var levels []StockLevel
	tx := db.WithContext(ctx)
	// OR-chain of composite keys; the deduplicated key list is small (one
	// journal detail panel at a time).
	query := tx.Where("1 = 0")
	for _, k := range keys {
		query = query.Or(tx.Session(&gorm.Session{NewDB: true}).
			Where("product_id = ? AND coating = ? AND color = ?", k.ProductId, k.Coating, k.Color))
	}
	if err := tx.Where(query).Find(&levels).Error; err != nil {
		return nil, err
	}
	return levels, nil
}

// ApplyStockWriteoff debits stock inside the caller's transaction and records
// a history row attributed to the acting user from the context. Stock may go
// negative: the floor inventory is authoritative, the numbers get reconciled
// by a later count.
func ApplyStockWriteoff(ctx context.Context, tx *gorm.DB, orderId int, itemId int, productId int, coating string, color string, amount decimal.Decimal) (*StockLevel, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("writeoff amount must be positive")
	}
	performedBy, _ := utils.GetUserNameFromContext(ctx)

	var level StockLevel
	err := tx.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ? AND coating = ? AND color = ?", productId, coating, color).
		First(&level).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			level = StockLevel{
				ProductId: productId,
				Coating:   coating,
				Color:     color,
				Qty:       decimal.Zero,
			}
			if err := tx.Create(&level).Error; err != nil {
				return nil, err
			}
		} else {
			return nil, err
		}
	}

	level.Qty = level.Qty.Sub(amount)
	if err := tx.Model(&StockLevel{}).Where("id = ?", level.ID).
		Update("qty", level.Qty).Error; err != nil {
		return nil, err
	}

	history := StockHistory{
		ProductId:   productId,
		Coating:     coating,
		Color:       color,
		OrderId:     orderId,
		ItemId:      itemId,
		Amount:      amount,
		QtyAfter:    level.Qty,
		PerformedBy: performedBy,
	}
	if err := tx.Create(&history).Error; err != nil {
		return nil, err
	}
	return &level, nil
}
