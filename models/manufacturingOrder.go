package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ManufacturingOrder struct {
	ID       int       `gorm:"primary_key" json:"id"`
	Uuid     uuid.UUID `gorm:"type:char(36);uniqueIndex;not null" json:"_id"`
	DueDate  time.Time `gorm:"index;not null" json:"due_date"`
	Operator string    `gorm:"size:100" json:"operator"`
	Notes    string    `gorm:"type:text" json:"notes"`
	// Status is derived from due date + item readiness/issuance. Only the
	// classifier result is ever written here.
	Status    string      `gorm:"size:20;index" json:"status"`
	IsOpen    *bool       `gorm:"not null;default:true" json:"is_open"`
	Items     []OrderItem `gorm:"foreignKey:OrderId" json:"items"`
	CreatedAt time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewOrderItem struct {
	ProductId  int             `json:"_id" binding:"required"`
	Title      string          `json:"title" binding:"required"`
	Coating    string          `json:"coating"`
	Color      string          `json:"color"`
	Qty        decimal.Decimal `json:"qty" binding:"required"`
	Unit       string          `json:"unit"`
	GroupLabel string          `json:"group"`
}

type NewManufacturingOrder struct {
	DueDate  time.Time      `json:"due_date" binding:"required"`
	Operator string         `json:"operator"`
	Notes    string         `json:"notes"`
	Items    []NewOrderItem `json:"items" binding:"required"`
}

func CreateManufacturingOrder(ctx context.Context, input *NewManufacturingOrder) (*ManufacturingOrder, error) {
	if len(input.Items) == 0 {
		return nil, errors.New("order requires at least one item")
	}
	productIds := make([]int, 0, len(input.Items))
	for _, item := range input.Items {
		productIds = append(productIds, item.ProductId)
	}
	if err := utils.ValidateResourcesId[Product](ctx, productIds); err != nil {
		return nil, errors.New("product not found")
	}

	order := ManufacturingOrder{
		Uuid:     uuid.New(),
		DueDate:  input.DueDate,
		Operator: input.Operator,
		Notes:    input.Notes,
		Status:   "manufacturing",
		IsOpen:   utils.NewTrue(),
	}
	for i, item := range input.Items {
		order.Items = append(order.Items, OrderItem{
			Idx:        i,
			ProductId:  item.ProductId,
			Title:      item.Title,
			Coating:    item.Coating,
			Color:      item.Color,
			Qty:        item.Qty,
			Unit:       item.Unit,
			GroupLabel: item.GroupLabel,
			Inventory:  Inventory{Origin: OriginNone, WriteoffAmount: decimal.Zero},
		})
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOpenOrders loads the manufacturing journal: every open order with its
// items and bundle rows, in item position order.
func GetOpenOrders(ctx context.Context) ([]*ManufacturingOrder, error) {
	var orders []*ManufacturingOrder
	db := config.GetDB()
	err := db.WithContext(ctx).
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("order_items.idx ASC") }).
		Preload("Items.BundleItems").
		Where("is_open = ?", true).
		Order("due_date ASC, id ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func GetOrderById(ctx context.Context, id int) (*ManufacturingOrder, error) {
	var order ManufacturingOrder
	db := config.GetDB()
	err := db.WithContext(ctx).
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("order_items.idx ASC") }).
		Preload("Items.BundleItems").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &order, nil
}

// UpdateOrderStatus persists the classifier result. Callers never set status
// by hand.
func UpdateOrderStatus(tx *gorm.DB, orderId int, status string) error {
	return tx.Model(&ManufacturingOrder{}).Where("id = ?", orderId).
		Update("status", status).Error
}
