package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/journal"
	"bitbucket.org/mmdatafocus/factory_backend/models"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
)

const actionHandlerName = "order-item-action"

// journalCacheKey holds the serialized journal response between mutations.
const journalCacheKey = "journal:open-orders"

const journalCacheTTL = 30 * time.Second

// nowFunc is swappable in tests.
var nowFunc = time.Now

// requestUser resolves the acting user from the X-User-Id header. Missing or
// unknown users fall back to an anonymous actor; writes still go through.
func requestUser(c *gin.Context) (int, string) {
	raw := strings.TrimSpace(c.GetHeader("X-User-Id"))
	if raw == "" {
		return 0, ""
	}
	userId, err := strconv.Atoi(raw)
	if err != nil {
		return 0, ""
	}
	user, err := models.GetUserById(c.Request.Context(), userId)
	if err != nil {
		return userId, ""
	}
	return userId, user.Name
}

// publishJournalEvent pushes one event to the local Redis channel and, when
// mirroring is enabled, to the cross-site Pub/Sub topic as well.
func publishJournalEvent(ctx context.Context, logger *logrus.Logger, event journal.PushEvent) {
	if err := config.PublishRedis(ctx, config.JournalEventsChannel(), event); err != nil {
		config.LogError(logger, "server", "publishJournalEvent", "redis publish", event, err)
	}
	if config.MirrorEventsToPubSub() {
		_ = config.PublishJournalEvent(ctx, event)
	}
}

// updatedByFromContext builds the push-event attribution from the acting user
// stamped into the request context. Anonymous writes carry no attribution.
func updatedByFromContext(ctx context.Context) *journal.UpdatedBy {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return nil
	}
	name, _ := utils.GetUserNameFromContext(ctx)
	return &journal.UpdatedBy{UserId: userId, Name: name}
}

/* wire <-> model conversion */

func toWireInventory(inv models.Inventory) journal.Inventory {
	origin := journal.Origin(inv.Origin)
	if !origin.Valid() {
		origin = journal.OriginNone
	}
	return journal.Inventory{
		Origin:         origin,
		WriteoffAmount: inv.WriteoffAmount,
		RdyDate:        inv.RdyDate,
		IsuDate:        inv.IsuDate,
	}
}

func fromWireInventory(inv journal.Inventory) models.Inventory {
	return models.Inventory{
		Origin:         models.MaterialOrigin(inv.Origin),
		WriteoffAmount: inv.WriteoffAmount,
		RdyDate:        inv.RdyDate,
		IsuDate:        inv.IsuDate,
	}
}

func toWireItem(item models.OrderItem) journal.Item {
	var worklog map[string]journal.WorklogEntry
	if len(item.Worklog) > 0 {
		_ = json.Unmarshal(item.Worklog, &worklog)
	}
	bundles := make([]journal.BundleItem, 0, len(item.BundleItems))
	for _, bi := range item.BundleItems {
		bundles = append(bundles, journal.BundleItem{
			ItemId:    bi.OrderItemId,
			BundleId:  bi.BundleId,
			ProductId: bi.ProductId,
			Title:     bi.Title,
			Coating:   bi.Coating,
			Color:     bi.Color,
			Qty:       bi.Qty,
			Unit:      bi.Unit,
			Inventory: toWireInventory(bi.Inventory),
		})
	}
	return journal.Item{
		Id:          item.ID,
		ProductId:   item.ProductId,
		Title:       item.Title,
		Coating:     item.Coating,
		Color:       item.Color,
		Qty:         item.Qty,
		Unit:        item.Unit,
		Group:       item.GroupLabel,
		Worklog:     worklog,
		BundleItems: bundles,
		Inventory:   toWireInventory(item.Inventory),
	}
}

func fromWireItem(item journal.Item) models.OrderItem {
	var worklog json.RawMessage
	if len(item.Worklog) > 0 {
		worklog, _ = json.Marshal(item.Worklog)
	}
	bundles := make([]models.OrderBundleItem, 0, len(item.BundleItems))
	for _, bi := range item.BundleItems {
		bundles = append(bundles, models.OrderBundleItem{
			BundleId:  bi.BundleId,
			ProductId: bi.ProductId,
			Title:     bi.Title,
			Coating:   bi.Coating,
			Color:     bi.Color,
			Qty:       bi.Qty,
			Unit:      bi.Unit,
			Inventory: fromWireInventory(bi.Inventory),
		})
	}
	return models.OrderItem{
		ID:          item.Id,
		ProductId:   item.ProductId,
		Title:       item.Title,
		Coating:     item.Coating,
		Color:       item.Color,
		Qty:         item.Qty,
		Unit:        item.Unit,
		GroupLabel:  item.Group,
		Worklog:     worklog,
		Inventory:   fromWireInventory(item.Inventory),
		BundleItems: bundles,
	}
}

func toWireOrder(order *models.ManufacturingOrder) journal.Order {
	items := make([]journal.Item, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, toWireItem(item))
	}
	return journal.Order{
		Id:       order.ID,
		Key:      order.Uuid.String(),
		DueDate:  order.DueDate,
		Status:   journal.OrderStatus(order.Status),
		Operator: order.Operator,
		Notes:    order.Notes,
		Items:    items,
	}
}

// validateWireInventory enforces the sourcing rules the UI also enforces, in
// case a stale or hand-rolled client sends bad state.
func validateWireInventory(inv *journal.Inventory) error {
	if !inv.Origin.Valid() {
		return fmt.Errorf("unknown origin %q", inv.Origin)
	}
	if inv.Origin != journal.OriginWarehouse && !inv.WriteoffAmount.IsZero() {
		// writeoff is meaningless outside warehouse sourcing
		inv.WriteoffAmount = decimal.Zero
	}
	if inv.WriteoffAmount.IsNegative() {
		return errors.New("writeoff amount must not be negative")
	}
	if inv.IsuDate != nil && inv.RdyDate == nil {
		return errors.New("item cannot be issued before it is ready")
	}
	return nil
}

func orderIdOfRequest(req journal.ExecOrderItemActionRequest) int {
	if req.UpdateItem != nil {
		return req.UpdateItem.OrderId
	}
	if req.UpdateStock != nil {
		return req.UpdateStock.OrderId
	}
	if len(req.Issue) > 0 {
		return req.Issue[0].OrderId
	}
	return 0
}

func loadOrderForUpdate(tx *gorm.DB, orderId int) (*models.ManufacturingOrder, error) {
	var order models.ManufacturingOrder
	err := tx.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("order_items.idx ASC") }).
		Preload("Items.BundleItems").
		First(&order, orderId).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func orderItemActionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		ctx := c.Request.Context()

		var req journal.ExecOrderItemActionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, journal.ActionResponse{Message: "invalid request body"})
			return
		}
		orderId := orderIdOfRequest(req)
		if orderId == 0 {
			c.JSON(http.StatusBadRequest, journal.ActionResponse{Message: "request carries no action"})
			return
		}
		if req.UpdateItem != nil {
			if err := validateWireInventory(&req.UpdateItem.Item.Inventory); err != nil {
				c.JSON(http.StatusUnprocessableEntity, journal.ActionResponse{Message: err.Error()})
				return
			}
			for i := range req.UpdateItem.Item.BundleItems {
				if err := validateWireInventory(&req.UpdateItem.Item.BundleItems[i].Inventory); err != nil {
					c.JSON(http.StatusUnprocessableEntity, journal.ActionResponse{Message: err.Error()})
					return
				}
			}
		}

		userId, userName := requestUser(c)
		ctx = utils.SetUserIdInContext(ctx, userId)
		ctx = utils.SetUserNameInContext(ctx, userName)

		// One writer per order at a time.
		lock, err := utils.ObtainOrderLock(ctx, orderId, "server", "orderItemActionHandler")
		if err != nil {
			if errors.Is(err, redislock.ErrNotObtained) {
				c.JSON(http.StatusConflict, journal.ActionResponse{Message: "order is being modified by another request"})
				return
			}
			config.LogError(logger, "server", "orderItemActionHandler", "obtain order lock", orderId, err)
			c.JSON(http.StatusInternalServerError, journal.ActionResponse{Message: "internal error"})
			return
		}
		defer func() { _ = lock.Release(ctx) }()

		var (
			skipped      bool
			freshItems   []journal.Item
			stockTouched bool
			updatedItem  int
		)

		txErr := config.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if req.ActionId != "" {
				skip, err := models.BeginAction(tx, actionHandlerName, req.ActionId)
				if err != nil {
					return err
				}
				if skip {
					skipped = true
					return nil
				}
			}

			order, err := loadOrderForUpdate(tx, orderId)
			if err != nil {
				return err
			}

			if req.UpdateItem != nil {
				row := findItemByIdx(order, req.UpdateItem.Index)
				if row == nil {
					return fmt.Errorf("order %d has no item at index %d", orderId, req.UpdateItem.Index)
				}
				replacement := fromWireItem(req.UpdateItem.Item)
				if err := models.ReplaceOrderItem(tx, orderId, row.ID, &replacement); err != nil {
					return err
				}
				updatedItem = row.ID
			}

			for _, action := range req.Issue {
				row := findItemById(order, action.ItemId)
				if row == nil {
					return fmt.Errorf("order %d has no item %d", orderId, action.ItemId)
				}
				if action.IsuDate != nil && row.Inventory.RdyDate == nil {
					return fmt.Errorf("item %d is not ready and cannot be issued", action.ItemId)
				}
				if err := tx.Model(&models.OrderItem{}).Where("id = ?", row.ID).
					Update("inv_isu_date", action.IsuDate).Error; err != nil {
					return err
				}
				updatedItem = row.ID
			}

			if req.UpdateStock != nil {
				productId, itemId, err := resolveStockTarget(order, req.UpdateStock)
				if err != nil {
					return err
				}
				if _, err := models.ApplyStockWriteoff(ctx, tx, orderId, itemId,
					productId, req.UpdateStock.Coating, req.UpdateStock.Color,
					req.UpdateStock.Amount); err != nil {
					return err
				}
				stockTouched = true
			}

			// Reclassify from fresh state and keep it for the push event.
			order, err = loadOrderForUpdate(tx, orderId)
			if err != nil {
				return err
			}
			wire := toWireOrder(order)
			status := journal.Classify(wire, nowFunc())
			if err := models.UpdateOrderStatus(tx, orderId, string(status)); err != nil {
				return err
			}
			freshItems = wire.Items

			if req.ActionId != "" {
				return models.FinishAction(tx, actionHandlerName, req.ActionId, nil)
			}
			return nil
		})
		if txErr != nil {
			config.LogError(logger, "server", "orderItemActionHandler", "action transaction", req, txErr)
			c.JSON(http.StatusUnprocessableEntity, journal.ActionResponse{Message: txErr.Error()})
			return
		}
		if skipped {
			// Retried action already applied; report success without repeating it.
			c.JSON(http.StatusOK, journal.ActionResponse{Success: true, Message: "already applied"})
			return
		}

		_ = config.RemoveRedisKey(journalCacheKey)

		updatedBy := updatedByFromContext(ctx)
		publishJournalEvent(ctx, logger, journal.PushEvent{
			Type:      journal.EventItemsUpdate,
			OrderId:   orderId,
			ItemId:    updatedItem,
			Items:     freshItems,
			UpdatedBy: updatedBy,
		})
		if stockTouched {
			publishJournalEvent(ctx, logger, journal.PushEvent{
				Type:      journal.EventStockUpdate,
				OrderId:   orderId,
				UpdatedBy: updatedBy,
			})
		}

		c.JSON(http.StatusOK, journal.ActionResponse{Success: true})
	}
}

func findItemByIdx(order *models.ManufacturingOrder, idx int) *models.OrderItem {
	for i := range order.Items {
		if order.Items[i].Idx == idx {
			return &order.Items[i]
		}
	}
	return nil
}

func findItemById(order *models.ManufacturingOrder, itemId int) *models.OrderItem {
	for i := range order.Items {
		if order.Items[i].ID == itemId {
			return &order.Items[i]
		}
	}
	return nil
}

// resolveStockTarget maps a stock action to the product it deducts: the item
// itself when coating/color match the item, otherwise the kit component row
// with that coating/color.
func resolveStockTarget(order *models.ManufacturingOrder, action *journal.UpdateStockAction) (productId int, itemId int, err error) {
	row := findItemByIdx(order, action.Index)
	if row == nil {
		return 0, 0, fmt.Errorf("order %d has no item at index %d", order.ID, action.Index)
	}
	if row.Coating == action.Coating && row.Color == action.Color {
		return row.ProductId, row.ID, nil
	}
	for _, bi := range row.BundleItems {
		if bi.Coating == action.Coating && bi.Color == action.Color {
			return bi.ProductId, row.ID, nil
		}
	}
	return 0, 0, fmt.Errorf("no stock target with coating %q color %q under item %d", action.Coating, action.Color, row.ID)
}

func productBundlesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		var queries []journal.BundleQuery
		if err := c.ShouldBindJSON(&queries); err != nil {
			c.JSON(http.StatusBadRequest, journal.BundlesResponse{})
			return
		}
		components := make([]journal.BundleItem, 0)
		for _, q := range queries {
			rows, err := models.GetBundlesForKey(c.Request.Context(), q.ProductId, q.Coating, q.Color)
			if err != nil {
				config.LogError(logger, "server", "productBundlesHandler", "bundle lookup", q, err)
				c.JSON(http.StatusInternalServerError, journal.BundlesResponse{})
				return
			}
			for _, row := range rows {
				components = append(components, journal.BundleItem{
					ItemId:    q.ItemId,
					BundleId:  row.ID,
					ProductId: row.BundleProductId,
					Title:     row.Title,
					Coating:   row.Coating,
					Color:     row.Color,
					Qty:       row.Qty,
					Unit:      row.Unit,
					Inventory: journal.Inventory{Origin: journal.OriginNone},
				})
			}
		}
		c.JSON(http.StatusOK, journal.BundlesResponse{Success: true, Products: components})
	}
}

func productStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		var queries []journal.StockQuery
		if err := c.ShouldBindJSON(&queries); err != nil {
			c.JSON(http.StatusBadRequest, journal.StockResponse{})
			return
		}
		keys := make([]models.StockLevelQuery, 0, len(queries))
		for _, q := range queries {
			keys = append(keys, models.StockLevelQuery{
				ProductId: q.ProductId,
				Coating:   q.Coating,
				Color:     q.Color,
			})
		}
		rows, err := models.GetStockForKeys(c.Request.Context(), keys)
		if err != nil {
			config.LogError(logger, "server", "productStockHandler", "stock lookup", keys, err)
			c.JSON(http.StatusInternalServerError, journal.StockResponse{})
			return
		}
		entries := make([]journal.StockEntry, 0, len(rows))
		for _, row := range rows {
			entries = append(entries, journal.StockEntry{
				ProductId: row.ProductId,
				Coating:   row.Coating,
				Color:     row.Color,
				Stock:     row.Qty,
			})
		}
		c.JSON(http.StatusOK, journal.StockResponse{Success: true, Products: entries})
	}
}

func journalHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		var cached journal.JournalResponse
		if hit, err := config.GetRedisObject(journalCacheKey, &cached); err == nil && hit {
			c.JSON(http.StatusOK, cached)
			return
		}

		orders, err := models.GetOpenOrders(c.Request.Context())
		if err != nil {
			config.LogError(logger, "server", "journalHandler", "load open orders", nil, err)
			c.JSON(http.StatusInternalServerError, journal.JournalResponse{})
			return
		}
		wire := make([]journal.Order, 0, len(orders))
		now := nowFunc()
		for _, order := range orders {
			w := toWireOrder(order)
			w.Status = journal.Classify(w, now)
			wire = append(wire, w)
		}
		resp := journal.JournalResponse{Success: true, Orders: wire}
		if err := config.SetRedisObject(journalCacheKey, resp, journalCacheTTL); err != nil {
			config.LogError(logger, "server", "journalHandler", "cache journal", nil, err)
		}
		c.JSON(http.StatusOK, resp)
	}
}

func orderDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
			return
		}
		order, err := models.GetOrderById(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
				return
			}
			config.LogError(logger, "server", "orderDetailHandler", "load order", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		wire := toWireOrder(order)
		wire.Status = journal.Classify(wire, nowFunc())
		c.JSON(http.StatusOK, wire)
	}
}

func createOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		var input models.NewManufacturingOrder
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		order, err := models.CreateManufacturingOrder(c.Request.Context(), &input)
		if err != nil {
			config.LogError(logger, "server", "createOrderHandler", "create order", input, err)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		_ = config.RemoveRedisKey(journalCacheKey)
		c.JSON(http.StatusCreated, toWireOrder(order))
	}
}

// journalPubSubHandler bridges cross-site Pub/Sub push deliveries into the
// local Redis channel. Malformed payloads are acked so they are not retried
// forever.
func journalPubSubHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			config.LogError(logger, "server", "journalPubSubHandler", "io.ReadAll", nil, err)
			c.Status(http.StatusNoContent)
			return
		}
		event, err := journal.DecodePushEnvelope(body)
		if err != nil {
			config.LogError(logger, "server", "journalPubSubHandler", "decode envelope", string(body), err)
			c.Status(http.StatusNoContent)
			return
		}
		if err := config.PublishRedis(c.Request.Context(), config.JournalEventsChannel(), event); err != nil {
			config.LogError(logger, "server", "journalPubSubHandler", "republish event", event, err)
			// NACK so Pub/Sub redelivers once Redis is back.
			c.Status(http.StatusServiceUnavailable)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
