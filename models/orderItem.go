package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type MaterialOrigin string

const (
	OriginWarehouse    MaterialOrigin = "w"
	OriginManufactured MaterialOrigin = "m"
	OriginNone         MaterialOrigin = "c"
)

// Inventory is the per-item (and per-bundle-row) sourcing/issuance record.
// Origin 'w' and 'm' are mutually exclusive; writeoff_amount only carries
// meaning while origin is 'w'; isu_date requires rdy_date.
type Inventory struct {
	Origin         MaterialOrigin  `gorm:"type:enum('w','m','c');default:'c'" json:"origin"`
	WriteoffAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"writeoff_amount"`
	RdyDate        *time.Time      `json:"rdy_date"`
	IsuDate        *time.Time      `json:"isu_date"`
}

type OrderItem struct {
	ID          int               `gorm:"primary_key" json:"id"`
	OrderId     int               `gorm:"index;not null" json:"order_id"`
	Idx         int               `gorm:"not null" json:"index"`
	ProductId   int               `gorm:"index;not null" json:"_id"`
	Title       string            `gorm:"size:255" json:"title"`
	Coating     string            `gorm:"size:100" json:"coating"`
	Color       string            `gorm:"size:100" json:"color"`
	Qty         decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"qty"`
	Unit        string            `gorm:"size:20" json:"unit"`
	GroupLabel  string            `gorm:"size:100" json:"group"`
	Worklog     json.RawMessage   `gorm:"type:json" json:"worklog"`
	Inventory   Inventory         `gorm:"embedded;embeddedPrefix:inv_" json:"inventory"`
	BundleItems []OrderBundleItem `gorm:"foreignKey:OrderItemId" json:"bundle_items"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// OrderBundleItem is a kit component row attached to an order item. Identity
// is (order_item_id, bundle_id); qty is bundle ratio x parent item qty.
type OrderBundleItem struct {
	ID          int             `gorm:"primary_key" json:"-"`
	OrderItemId int             `gorm:"uniqueIndex:idx_item_bundle;not null" json:"item_id"`
	BundleId    int             `gorm:"uniqueIndex:idx_item_bundle;not null" json:"bundle_id"`
	ProductId   int             `gorm:"not null" json:"product_id"`
	Title       string          `gorm:"size:255" json:"title"`
	Coating     string          `gorm:"size:100" json:"coating"`
	Color       string          `gorm:"size:100" json:"color"`
	Qty         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	Unit        string          `gorm:"size:20" json:"unit"`
	Inventory   Inventory       `gorm:"embedded;embeddedPrefix:inv_" json:"inventory"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// ReplaceOrderItem overwrites one item row (and its bundle rows) inside the
// caller's transaction. The incoming item is the full authoritative state.
func ReplaceOrderItem(tx *gorm.DB, orderId int, itemId int, item *OrderItem) error {
	item.ID = itemId
	item.OrderId = orderId

	if err := tx.Model(&OrderItem{}).Where("id = ? AND order_id = ?", itemId, orderId).
		Updates(map[string]interface{}{
			"title":               item.Title,
			"coating":             item.Coating,
			"color":               item.Color,
			"qty":                 item.Qty,
			"unit":                item.Unit,
			"group_label":         item.GroupLabel,
			"inv_origin":          item.Inventory.Origin,
			"inv_writeoff_amount": item.Inventory.WriteoffAmount,
			"inv_rdy_date":        item.Inventory.RdyDate,
			"inv_isu_date":        item.Inventory.IsuDate,
		}).Error; err != nil {
		return err
	}

	// Bundle rows: upsert by (order_item_id, bundle_id); rows absent from the
	// payload are stale and removed.
	keepIds := make([]int, 0, len(item.BundleItems))
	for i := range item.BundleItems {
		bi := &item.BundleItems[i]
		bi.OrderItemId = itemId
		keepIds = append(keepIds, bi.BundleId)

		var existing OrderBundleItem
		err := tx.Where("order_item_id = ? AND bundle_id = ?", itemId, bi.BundleId).First(&existing).Error
		if err == nil {
			if err := tx.Model(&OrderBundleItem{}).Where("id = ?", existing.ID).
				Updates(map[string]interface{}{
					"product_id":          bi.ProductId,
					"title":               bi.Title,
					"coating":             bi.Coating,
					"color":               bi.Color,
					"qty":                 bi.Qty,
					"unit":                bi.Unit,
					"inv_origin":          bi.Inventory.Origin,
					"inv_writeoff_amount": bi.Inventory.WriteoffAmount,
					"inv_rdy_date":        bi.Inventory.RdyDate,
					"inv_isu_date":        bi.Inventory.IsuDate,
				}).Error; err != nil {
				return err
			}
			continue
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}
		if err := tx.Create(bi).Error; err != nil {
			return err
		}
	}

	if len(keepIds) == 0 {
		return tx.Where("order_item_id = ?", itemId).Delete(&OrderBundleItem{}).Error
	}
	return tx.Where("order_item_id = ? AND bundle_id NOT IN ?", itemId, keepIds).
		Delete(&OrderBundleItem{}).Error
}
