package models

import (
	"context"
	"errors"
	"strings"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"gorm.io/gorm"
)

type Product struct {
	ID        int    `gorm:"primary_key" json:"_id"`
	Name      string `gorm:"size:255;not null" json:"title" binding:"required"`
	Sku       string `gorm:"size:100;index" json:"sku"`
	Unit      string `gorm:"size:20" json:"unit"`
	IsBundle  *bool  `gorm:"not null;default:false" json:"is_bundle"`
	IsActive  *bool  `gorm:"not null;default:true" json:"is_active"`
	CreatedAt int64  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt int64  `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	Name     string `json:"title" binding:"required"`
	Sku      string `json:"sku"`
	Unit     string `json:"unit"`
	IsBundle *bool  `json:"is_bundle"`
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, errors.New("product name is required")
	}

	product := Product{
		Name:     strings.TrimSpace(input.Name),
		Sku:      strings.TrimSpace(input.Sku),
		Unit:     input.Unit,
		IsBundle: input.IsBundle,
		IsActive: utils.NewTrue(),
	}
	if product.IsBundle == nil {
		product.IsBundle = utils.NewFalse()
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func GetProductById(ctx context.Context, id int) (*Product, error) {
	var product Product
	db := config.GetDB()
	err := db.WithContext(ctx).Where("id = ?", id).First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &product, nil
}
