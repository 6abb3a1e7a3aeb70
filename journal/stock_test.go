package journal

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestStockKeysAreStructured(t *testing.T) {
	// The legacy concatenated hash made these two the same bucket.
	a := StockKey{Coating: "AB", Color: "", ProductID: 1}
	b := StockKey{Coating: "A", Color: "B", ProductID: 1}
	if a == b {
		t.Fatal("distinct coordinates compare equal")
	}
	if a.String() == b.String() {
		t.Fatalf("string forms collide: %q", a.String())
	}

	levels := map[StockKey]decimal.Decimal{
		a: decimal.NewFromInt(3),
		b: decimal.NewFromInt(9),
	}
	if len(levels) != 2 {
		t.Fatal("map collapsed distinct keys")
	}
}

func TestStockKeysForOrderDeduplicates(t *testing.T) {
	item1 := testItem(10, nil, nil)
	item1.Coating = "powder"
	item1.Color = "white"
	item1.BundleItems = []BundleItem{
		{BundleId: 1, ProductId: 300, Coating: "powder", Color: "white"},
		{BundleId: 2, ProductId: 300, Coating: "powder", Color: "white"}, // same coordinate
	}
	item2 := testItem(11, nil, nil)
	item2.ProductId = item1.ProductId
	item2.Coating = "powder"
	item2.Color = "white"

	order := demoOrder(1, item1, item2)
	keys := stockKeysForOrder(&order)
	// item1 product, bundle product, nothing else (item2 shares item1's key).
	if len(keys) != 2 {
		t.Fatalf("keys = %d, want 2: %v", len(keys), keys)
	}
}

func TestStockUpdateEventRefreshesOpenOrder(t *testing.T) {
	item := testItem(10, nil, nil)
	item.Coating = "powder"
	item.Color = "white"
	client := newFakeClient(demoOrder(1, item))
	key := StockKey{Coating: "powder", Color: "white", ProductID: item.ProductId}
	client.stock = []StockEntry{{ProductId: item.ProductId, Coating: "powder", Color: "white", Stock: decimal.NewFromInt(42)}}
	store, _, stop := startStore(t, client)
	defer stop()

	store.Dispatch(OpenOrder{OrderId: 1})
	view := store.Snapshot()
	if got, ok := view.StockFor(key); !ok || !got.Equal(decimal.NewFromInt(42)) {
		t.Fatalf("stock after open = %v (known=%v), want 42", got, ok)
	}

	client.mu.Lock()
	client.stock = []StockEntry{{ProductId: item.ProductId, Coating: "powder", Color: "white", Stock: decimal.NewFromInt(17)}}
	client.mu.Unlock()

	store.Dispatch(ApplyEvent{Event: PushEvent{Type: EventStockUpdate, OrderId: 1}})
	view = store.Snapshot()
	if got, _ := view.StockFor(key); !got.Equal(decimal.NewFromInt(17)) {
		t.Fatalf("stock after event = %s, want 17", got)
	}
}

func TestStockUpdateEventReresolvesBundles(t *testing.T) {
	parent := testItem(10, nil, nil)
	client := newFakeClient(demoOrder(1, parent))
	client.bundles = []BundleItem{
		{ItemId: 10, BundleId: 77, ProductId: 300, Title: "hinge", Qty: decimal.NewFromInt(2)},
	}
	store, _, stop := startStore(t, client)
	defer stop()

	store.Dispatch(OpenOrder{OrderId: 1})
	view := store.Snapshot()
	if got := len(view.Orders[0].Items[0].BundleItems); got != 1 {
		t.Fatalf("bundle rows after open = %d, want 1", got)
	}

	// The kit gains a component; a stock-update must refresh the kit rows of
	// the open order, not only the levels.
	client.mu.Lock()
	client.bundles = append(client.bundles,
		BundleItem{ItemId: 10, BundleId: 78, ProductId: 301, Title: "lock", Qty: decimal.NewFromInt(1)})
	client.mu.Unlock()

	store.Dispatch(ApplyEvent{Event: PushEvent{Type: EventStockUpdate, OrderId: 1}})
	view = store.Snapshot()
	if got := len(view.Orders[0].Items[0].BundleItems); got != 2 {
		t.Fatalf("bundle rows after stock update = %d, want 2", got)
	}
}

func TestStockUpdateIgnoredWithoutOpenOrder(t *testing.T) {
	client := newFakeClient(demoOrder(1, testItem(10, nil, nil)))
	store, _, stop := startStore(t, client)
	defer stop()

	store.Dispatch(ApplyEvent{Event: PushEvent{Type: EventStockUpdate, OrderId: 1}})
	view := store.Snapshot()
	if len(view.Stock) != 0 {
		t.Fatal("stock fetched although no detail panel is open")
	}
}
