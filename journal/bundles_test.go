package journal

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestOpenOrderResolvesBundleLineAmounts(t *testing.T) {
	parent := testItem(10, nil, nil)
	parent.Qty = decimal.NewFromInt(5)
	client := newFakeClient(demoOrder(1, parent))
	client.bundles = []BundleItem{
		{ItemId: 10, BundleId: 77, ProductId: 300, Title: "hinge", Coating: "powder", Color: "white", Qty: decimal.NewFromInt(2), Unit: "set"},
		{ItemId: 10, BundleId: 78, ProductId: 301, Title: "lock", Coating: "powder", Color: "white", Qty: decimal.NewFromInt(1), Unit: "pcs"},
	}
	store, _, stop := startStore(t, client)
	defer stop()

	store.Dispatch(OpenOrder{OrderId: 1})
	view := store.Snapshot()
	rows := view.Orders[0].Items[0].BundleItems
	if len(rows) != 2 {
		t.Fatalf("bundle rows = %d, want 2", len(rows))
	}
	// Line amount is catalog ratio x parent qty.
	if !rows[0].Qty.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("row qty = %s, want 10 (2 x 5)", rows[0].Qty)
	}
	if !rows[1].Qty.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("row qty = %s, want 5 (1 x 5)", rows[1].Qty)
	}
}

func TestBundleWriteoffDefaultsToLineAmount(t *testing.T) {
	parent := testItem(10, nil, nil)
	parent.Qty = decimal.NewFromInt(5)
	client := newFakeClient(demoOrder(1, parent))
	client.bundles = []BundleItem{
		{ItemId: 10, BundleId: 77, ProductId: 300, Title: "hinge", Qty: decimal.NewFromInt(2), Unit: "set"},
	}
	store, _, stop := startStore(t, client)
	defer stop()

	store.Dispatch(OpenOrder{OrderId: 1})
	ref := ItemRef{OrderId: 1, ItemIndex: 0, Source: SourceBundle, BundleId: 77}
	store.Dispatch(SetOrigin{Ref: ref, Origin: OriginWarehouse})

	view := store.Snapshot()
	row := view.Orders[0].Items[0].BundleItems[0]
	if !row.Inventory.WriteoffAmount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("bundle writeoff = %s, want full line amount 10", row.Inventory.WriteoffAmount)
	}
}

func TestBundleRefreshPreservesEnteredInventory(t *testing.T) {
	parent := testItem(10, nil, nil)
	client := newFakeClient(demoOrder(1, parent))
	client.bundles = []BundleItem{
		{ItemId: 10, BundleId: 77, ProductId: 300, Title: "hinge", Qty: decimal.NewFromInt(2)},
	}
	store, _, stop := startStore(t, client)
	defer stop()

	store.Dispatch(OpenOrder{OrderId: 1})
	ref := ItemRef{OrderId: 1, ItemIndex: 0, Source: SourceBundle, BundleId: 77}
	store.Dispatch(SetOrigin{Ref: ref, Origin: OriginWarehouse})
	store.Dispatch(SetWriteoffAmount{Ref: ref, Raw: "4"})

	// The items-update path re-resolves bundles for the open order; the rows
	// come back without inventory and must be re-married by bundle id.
	store.Dispatch(ApplyEvent{Event: PushEvent{
		Type:    EventItemsUpdate,
		OrderId: 1,
		Items:   []Item{parent},
	}})

	view := store.Snapshot()
	row := view.Orders[0].Items[0].BundleItems[0]
	if row.Inventory.Origin != OriginWarehouse {
		t.Fatalf("origin = %q after refresh, want w", row.Inventory.Origin)
	}
	if !row.Inventory.WriteoffAmount.Equal(decimal.NewFromInt(4)) {
		t.Fatalf("writeoff = %s after refresh, want 4", row.Inventory.WriteoffAmount)
	}
}

func TestCommitBundleRowCarriesStockAction(t *testing.T) {
	parent := testItem(10, nil, nil)
	parent.Coating = "raw"
	parent.Color = "silver"
	client := newFakeClient(demoOrder(1, parent))
	client.bundles = []BundleItem{
		{ItemId: 10, BundleId: 77, ProductId: 300, Title: "hinge", Coating: "powder", Color: "white", Qty: decimal.NewFromInt(2)},
	}
	store, _, stop := startStore(t, client)
	defer stop()

	store.Dispatch(OpenOrder{OrderId: 1})
	ref := ItemRef{OrderId: 1, ItemIndex: 0, Source: SourceBundle, BundleId: 77}
	store.Dispatch(SetOrigin{Ref: ref, Origin: OriginWarehouse})
	store.Dispatch(CommitInventory{Ref: ref})
	waitFor(t, func() bool { return client.execCount() == 1 })
	waitFor(t, func() bool { return !store.Snapshot().InFlight })

	req := client.lastExec()
	if req.UpdateItem == nil {
		t.Fatal("commit request missing update_item")
	}
	if req.UpdateStock == nil {
		t.Fatal("warehouse commit with positive writeoff must carry update_stock")
	}
	// Stock is deducted against the component's coordinate, not the parent's.
	if req.UpdateStock.Coating != "powder" || req.UpdateStock.Color != "white" {
		t.Fatalf("stock action key = %s/%s, want powder/white", req.UpdateStock.Coating, req.UpdateStock.Color)
	}
	if !req.UpdateStock.Amount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("stock amount = %s, want 10", req.UpdateStock.Amount)
	}
}

func TestCommitManufacturedOriginSkipsStockAction(t *testing.T) {
	client := newFakeClient(demoOrder(1, testItem(10, nil, nil)))
	store, _, stop := startStore(t, client)
	defer stop()

	ref := ItemRef{OrderId: 1, ItemIndex: 0, Source: SourceItem}
	store.Dispatch(SetOrigin{Ref: ref, Origin: OriginManufactured})
	store.Dispatch(CommitInventory{Ref: ref})
	waitFor(t, func() bool { return client.execCount() == 1 })

	req := client.lastExec()
	if req.UpdateStock != nil {
		t.Fatal("manufactured sourcing must not deduct stock")
	}
	if req.UpdateItem == nil || req.UpdateItem.Item.Inventory.Origin != OriginManufactured {
		t.Fatal("commit did not carry the manufactured origin")
	}
}
