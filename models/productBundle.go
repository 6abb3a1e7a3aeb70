package models

import (
	"context"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProductBundle is one component row of a kit definition. A kit is looked up
// by (product_id, coating, color); each row names a component product and the
// per-unit ratio.
type ProductBundle struct {
	ID              int             `gorm:"primary_key" json:"bundle_id"`
	ProductId       int             `gorm:"index:idx_bundle_key;not null" json:"product_id"`
	Coating         string          `gorm:"index:idx_bundle_key;size:100" json:"coating"`
	Color           string          `gorm:"index:idx_bundle_key;size:100" json:"color"`
	BundleProductId int             `gorm:"not null" json:"bundle_product_id"`
	Title           string          `gorm:"size:255" json:"title"`
	Unit            string          `gorm:"size:20" json:"unit"`
	Qty             decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	CreatedAt       int64           `gorm:"autoCreateTime" json:"created_at"`
}

type NewProductBundle struct {
	ProductId       int             `json:"product_id" binding:"required"`
	Coating         string          `json:"coating"`
	Color           string          `json:"color"`
	BundleProductId int             `json:"bundle_product_id" binding:"required"`
	Title           string          `json:"title"`
	Unit            string          `json:"unit"`
	Qty             decimal.Decimal `json:"qty" binding:"required"`
}

func CreateProductBundle(ctx context.Context, input *NewProductBundle) (*ProductBundle, error) {
	if err := utils.ValidateResourceId[Product](ctx, input.ProductId); err != nil {
		return nil, err
	}
	if err := utils.ValidateResourceId[Product](ctx, input.BundleProductId); err != nil {
		return nil, err
	}

	bundle := ProductBundle{
		ProductId:       input.ProductId,
		Coating:         input.Coating,
		Color:           input.Color,
		BundleProductId: input.BundleProductId,
		Title:           input.Title,
		Unit:            input.Unit,
		Qty:             input.Qty,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&bundle).Error; err != nil {
		return nil, err
	}
	return &bundle, nil
}

// GetBundlesForKey returns the kit rows for a single (product, coating, color)
// key, empty when the product is not a kit.
func GetBundlesForKey(ctx context.Context, productId int, coating string, color string) ([]ProductBundle, error) {
	var bundles []ProductBundle
	db := config.GetDB()
	err := db.WithContext(ctx).
		Where("product_id = ? AND coating = ? AND color = ?", productId, coating, color).
		Order("id ASC").
		Find(&bundles).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}
	return bundles, nil
}
