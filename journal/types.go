package journal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Origin says where an item's material comes from: warehouse stock, fresh
// manufacturing, or not decided yet. Picking one always clears the other.
type Origin string

const (
	OriginWarehouse    Origin = "w"
	OriginManufactured Origin = "m"
	OriginNone         Origin = "c"
)

func (o Origin) Valid() bool {
	return o == OriginWarehouse || o == OriginManufactured || o == OriginNone
}

type Inventory struct {
	Origin         Origin          `json:"origin"`
	WriteoffAmount decimal.Decimal `json:"writeoff_amount"`
	RdyDate        *time.Time      `json:"rdy_date"`
	IsuDate        *time.Time      `json:"isu_date"`
}

type WorklogEntry struct {
	Qty  decimal.Decimal `json:"qty"`
	Time decimal.Decimal `json:"time"`
}

// BundleItem is a kit component row under an order item. Qty is already the
// line amount (kit ratio x parent item qty).
type BundleItem struct {
	ItemId    int             `json:"item_id"`
	BundleId  int             `json:"bundle_id"`
	ProductId int             `json:"product_id"`
	Title     string          `json:"title"`
	Coating   string          `json:"coating"`
	Color     string          `json:"color"`
	Qty       decimal.Decimal `json:"qty"`
	Unit      string          `json:"unit"`
	Inventory Inventory       `json:"inventory"`
}

type Item struct {
	Id          int                     `json:"id"`
	ProductId   int                     `json:"_id"`
	Title       string                  `json:"title"`
	Coating     string                  `json:"coating"`
	Color       string                  `json:"color"`
	Qty         decimal.Decimal         `json:"qty"`
	Unit        string                  `json:"unit"`
	Group       string                  `json:"group"`
	Worklog     map[string]WorklogEntry `json:"worklog,omitempty"`
	BundleItems []BundleItem            `json:"bundle_items"`
	Inventory   Inventory               `json:"inventory"`
}

type Order struct {
	Id       int         `json:"id"`
	Key      string      `json:"_id"`
	DueDate  time.Time   `json:"due_date"`
	Status   OrderStatus `json:"status"`
	Operator string      `json:"operator"`
	Notes    string      `json:"notes"`
	Items    []Item      `json:"items"`
}

// ItemSource says whether an ItemRef points at the item itself or at one of
// its kit component rows.
type ItemSource string

const (
	SourceItem   ItemSource = "item"
	SourceBundle ItemSource = "bundle"
)

// ItemRef identifies the target of an inventory operation.
type ItemRef struct {
	OrderId   int        `json:"order_id"`
	ItemIndex int        `json:"item_index"`
	Source    ItemSource `json:"source"`
	BundleId  int        `json:"bundle_id,omitempty"`
}

/* push-update events */

const (
	EventItemsUpdate = "items-update"
	EventStockUpdate = "stock-update"
)

type UpdatedBy struct {
	UserId int    `json:"user_id"`
	Name   string `json:"name"`
}

type PushEvent struct {
	Type      string     `json:"type" validate:"required,oneof=items-update stock-update"`
	OrderId   int        `json:"order_id" validate:"required"`
	ItemId    int        `json:"item_id,omitempty"`
	Items     []Item     `json:"items,omitempty"`
	UpdatedBy *UpdatedBy `json:"updated_by,omitempty"`
}

// PushEnvelope is the GCP Pub/Sub push-delivery wrapper used when events are
// mirrored across sites.
type PushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

var validate = validator.New()

// DecodePushEvent parses and validates a raw event payload.
func DecodePushEvent(raw []byte) (PushEvent, error) {
	var event PushEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return PushEvent{}, err
	}
	if err := validate.Struct(event); err != nil {
		return PushEvent{}, err
	}
	return event, nil
}

// DecodePushEnvelope unwraps a Pub/Sub push delivery down to the event.
func DecodePushEnvelope(body []byte) (PushEvent, error) {
	var envelope PushEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return PushEvent{}, err
	}
	if len(envelope.Message.Data) == 0 {
		return PushEvent{}, errors.New("empty pubsub message")
	}
	return DecodePushEvent(envelope.Message.Data)
}

/* collaborator contract (§ server API) */

type IssueAction struct {
	OrderId   int        `json:"order_id"`
	ItemId    int        `json:"item_id"`
	ProductId int        `json:"product_id"`
	IsuDate   *time.Time `json:"isu_date"`
}

type UpdateItemAction struct {
	OrderId int  `json:"order_id"`
	Index   int  `json:"index"`
	Item    Item `json:"item"`
}

type UpdateStockAction struct {
	OrderId int             `json:"order_id"`
	ItemId  int             `json:"item_id"`
	Index   int             `json:"index"`
	Coating string          `json:"coating"`
	Color   string          `json:"color"`
	Amount  decimal.Decimal `json:"amount"`
}

// ExecOrderItemActionRequest can carry several action kinds in one call.
type ExecOrderItemActionRequest struct {
	ActionId    string             `json:"action_id,omitempty"`
	Issue       []IssueAction      `json:"issue,omitempty"`
	UpdateItem  *UpdateItemAction  `json:"update_item,omitempty"`
	UpdateStock *UpdateStockAction `json:"update_stock,omitempty"`
}

type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type BundleQuery struct {
	ItemId    int    `json:"item_id"`
	ProductId int    `json:"product_id"`
	Coating   string `json:"coating"`
	Color     string `json:"color"`
}

type BundlesResponse struct {
	Success  bool         `json:"success"`
	Products []BundleItem `json:"products"`
}

type StockQuery struct {
	ProductId int    `json:"_id"`
	Hash      string `json:"hash"`
	Coating   string `json:"coating"`
	Color     string `json:"color"`
}

type StockEntry struct {
	ProductId int             `json:"_id"`
	Coating   string          `json:"coating"`
	Color     string          `json:"color"`
	Stock     decimal.Decimal `json:"stock"`
}

type StockResponse struct {
	Success  bool         `json:"success"`
	Products []StockEntry `json:"products"`
}

type JournalResponse struct {
	Success bool    `json:"success"`
	Orders  []Order `json:"orders"`
}

/* client interfaces (implemented by the HTTP client; faked in tests) */

type ActionClient interface {
	ExecOrderItemAction(ctx context.Context, req ExecOrderItemActionRequest) (ActionResponse, error)
}

type CatalogClient interface {
	GetProductBundles(ctx context.Context, queries []BundleQuery) ([]BundleItem, error)
}

type StockClient interface {
	GetProductStock(ctx context.Context, queries []StockQuery) ([]StockEntry, error)
}

type JournalClient interface {
	GetJournal(ctx context.Context) ([]Order, error)
}

type Client interface {
	ActionClient
	CatalogClient
	StockClient
	JournalClient
}

/* typed commands consumed by the store actor */

type Command interface{ isCommand() }

type SetOrigin struct {
	Ref    ItemRef
	Origin Origin
}

type SetWriteoffAmount struct {
	Ref ItemRef
	Raw string
}

type CommitInventory struct {
	Ref ItemRef
}

type IssueItem struct {
	OrderId int
	ItemId  int
	Issue   bool
}

type IssueOrder struct {
	OrderId   int
	Issue     bool
	Confirmed bool
}

type OpenOrder struct {
	OrderId int
}

type ApplyEvent struct {
	Event PushEvent
}

type Refresh struct {
	Force bool
}

type actionResult struct {
	err error
}

type snapshotReq struct {
	reply chan View
}

func (SetOrigin) isCommand()         {}
func (SetWriteoffAmount) isCommand() {}
func (CommitInventory) isCommand()   {}
func (IssueItem) isCommand()         {}
func (IssueOrder) isCommand()        {}
func (OpenOrder) isCommand()         {}
func (ApplyEvent) isCommand()        {}
func (Refresh) isCommand()           {}
func (actionResult) isCommand()      {}
func (snapshotReq) isCommand()       {}
