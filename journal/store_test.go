package journal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/factory_backend/config"
)

// fakeClient is an in-memory server double. Exec can be made to block so the
// in-flight gate is observable deterministically.
type fakeClient struct {
	mu sync.Mutex

	orders  []Order
	bundles []BundleItem
	stock   []StockEntry

	execCalls    []ExecOrderItemActionRequest
	journalCalls int
	execGate     chan struct{}
	execErr      error
}

func newFakeClient(orders ...Order) *fakeClient {
	return &fakeClient{orders: orders}
}

func (f *fakeClient) ExecOrderItemAction(ctx context.Context, req ExecOrderItemActionRequest) (ActionResponse, error) {
	f.mu.Lock()
	f.execCalls = append(f.execCalls, req)
	gate := f.execGate
	err := f.execErr
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return ActionResponse{}, err
	}
	return ActionResponse{Success: true}, nil
}

func (f *fakeClient) GetProductBundles(ctx context.Context, queries []BundleQuery) ([]BundleItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bundles, nil
}

func (f *fakeClient) GetProductStock(ctx context.Context, queries []StockQuery) ([]StockEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stock, nil
}

func (f *fakeClient) GetJournal(ctx context.Context) ([]Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.journalCalls++
	out := make([]Order, len(f.orders))
	copy(out, f.orders)
	return out, nil
}

func (f *fakeClient) execCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.execCalls)
}

func (f *fakeClient) lastExec() ExecOrderItemActionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.execCalls[len(f.execCalls)-1]
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []string
}

func (n *fakeNotifier) Notice(level NoticeLevel, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, string(level)+": "+message)
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notices)
}

func startStore(t *testing.T, client *fakeClient) (*Store, *fakeNotifier, func()) {
	t.Helper()
	notifier := &fakeNotifier{}
	store := NewStore(config.GetLogger(), client, 7,
		WithNotifier(notifier),
		WithClock(func() time.Time { return testNow }))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = store.Run(ctx)
		close(done)
	}()
	return store, notifier, func() {
		cancel()
		<-done
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func demoOrder(id int, items ...Item) Order {
	return Order{
		Id:      id,
		Key:     "ord-1",
		DueDate: testNow.AddDate(0, 0, 3),
		Items:   items,
	}
}

func TestSetOriginDefaultsWriteoffAndClearsIt(t *testing.T) {
	client := newFakeClient(demoOrder(1, testItem(10, nil, nil)))
	store, _, stop := startStore(t, client)
	defer stop()

	ref := ItemRef{OrderId: 1, ItemIndex: 0, Source: SourceItem}
	store.Dispatch(SetOrigin{Ref: ref, Origin: OriginWarehouse})
	view := store.Snapshot()
	inv := view.Orders[0].Items[0].Inventory
	if inv.Origin != OriginWarehouse {
		t.Fatalf("origin = %q, want w", inv.Origin)
	}
	if !inv.WriteoffAmount.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("writeoff defaulted to %s, want item qty 5", inv.WriteoffAmount)
	}

	// Switching to manufacturing must zero the writeoff.
	store.Dispatch(SetOrigin{Ref: ref, Origin: OriginManufactured})
	view = store.Snapshot()
	inv = view.Orders[0].Items[0].Inventory
	if inv.Origin != OriginManufactured {
		t.Fatalf("origin = %q, want m", inv.Origin)
	}
	if !inv.WriteoffAmount.IsZero() {
		t.Fatalf("writeoff = %s after leaving warehouse sourcing, want 0", inv.WriteoffAmount)
	}
}

func TestSetWriteoffRequiresWarehouseOrigin(t *testing.T) {
	client := newFakeClient(demoOrder(1, testItem(10, nil, nil)))
	store, notifier, stop := startStore(t, client)
	defer stop()

	ref := ItemRef{OrderId: 1, ItemIndex: 0, Source: SourceItem}
	store.Dispatch(SetWriteoffAmount{Ref: ref, Raw: "3"})
	view := store.Snapshot()
	if !view.Orders[0].Items[0].Inventory.WriteoffAmount.IsZero() {
		t.Fatal("writeoff changed without warehouse sourcing")
	}
	if notifier.count() == 0 {
		t.Fatal("expected a notice")
	}

	store.Dispatch(SetOrigin{Ref: ref, Origin: OriginWarehouse})
	store.Dispatch(SetWriteoffAmount{Ref: ref, Raw: "3.5"})
	view = store.Snapshot()
	if got := view.Orders[0].Items[0].Inventory.WriteoffAmount; !got.Equal(decimal.RequireFromString("3.5")) {
		t.Fatalf("writeoff = %s, want 3.5", got)
	}
}

func TestSetWriteoffRejectsBadAmount(t *testing.T) {
	client := newFakeClient(demoOrder(1, testItem(10, nil, nil)))
	store, notifier, stop := startStore(t, client)
	defer stop()

	ref := ItemRef{OrderId: 1, ItemIndex: 0, Source: SourceItem}
	store.Dispatch(SetOrigin{Ref: ref, Origin: OriginWarehouse})
	store.Dispatch(SetWriteoffAmount{Ref: ref, Raw: "abc"})
	view := store.Snapshot()
	// Keeps the defaulted qty, does not zero or NaN out.
	if got := view.Orders[0].Items[0].Inventory.WriteoffAmount; !got.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("writeoff = %s after invalid input, want unchanged 5", got)
	}
	if notifier.count() == 0 {
		t.Fatal("expected an invalid-amount notice")
	}
}

func TestSecondActionDroppedWhileInFlight(t *testing.T) {
	rdy := ts(testNow.Add(-time.Hour))
	client := newFakeClient(demoOrder(1, testItem(10, rdy, nil), testItem(11, rdy, nil)))
	client.execGate = make(chan struct{})
	store, notifier, stop := startStore(t, client)
	defer stop()

	store.Dispatch(IssueItem{OrderId: 1, ItemId: 10, Issue: true})
	view := store.Snapshot()
	if !view.InFlight {
		t.Fatal("expected an in-flight action")
	}
	waitFor(t, func() bool { return client.execCount() == 1 })

	// Second mutation while the first is saving: dropped with a notice, no
	// second server call.
	store.Dispatch(IssueItem{OrderId: 1, ItemId: 11, Issue: true})
	view = store.Snapshot()
	if view.Orders[0].Items[1].Inventory.IsuDate != nil {
		t.Fatal("second issue applied while another action was in flight")
	}
	if notifier.count() == 0 {
		t.Fatal("expected a dropped-action notice")
	}
	if got := client.execCount(); got != 1 {
		t.Fatalf("exec calls = %d, want 1", got)
	}

	close(client.execGate)
	waitFor(t, func() bool { return !store.Snapshot().InFlight })

	// Gate is open again.
	store.Dispatch(IssueItem{OrderId: 1, ItemId: 11, Issue: true})
	waitFor(t, func() bool { return client.execCount() == 2 })
}

func TestIssueItemRequiresReadiness(t *testing.T) {
	client := newFakeClient(demoOrder(1, testItem(10, nil, nil)))
	store, notifier, stop := startStore(t, client)
	defer stop()

	store.Dispatch(IssueItem{OrderId: 1, ItemId: 10, Issue: true})
	view := store.Snapshot()
	if view.Orders[0].Items[0].Inventory.IsuDate != nil {
		t.Fatal("unready item was issued")
	}
	if notifier.count() == 0 {
		t.Fatal("expected a not-ready notice")
	}
	if client.execCount() != 0 {
		t.Fatal("no server call expected")
	}
}

func TestIssueOrderBatchSkipsAlreadyIssued(t *testing.T) {
	rdy := ts(testNow.Add(-time.Hour))
	already := ts(testNow.Add(-30 * time.Minute))
	client := newFakeClient(demoOrder(1,
		testItem(10, rdy, already),
		testItem(11, rdy, nil),
		testItem(12, rdy, nil),
	))
	store, _, stop := startStore(t, client)
	defer stop()

	store.Dispatch(IssueOrder{OrderId: 1, Issue: true})
	waitFor(t, func() bool { return client.execCount() == 1 })

	req := client.lastExec()
	if len(req.Issue) != 2 {
		t.Fatalf("issue batch size = %d, want 2 (already-issued item skipped)", len(req.Issue))
	}
	view := store.Snapshot()
	if view.Orders[0].Status != StatusIssued {
		t.Fatalf("status = %q after full issue, want issued", view.Orders[0].Status)
	}
	// The pre-existing issue timestamp is untouched.
	if got := view.Orders[0].Items[0].Inventory.IsuDate; got == nil || !got.Equal(*already) {
		t.Fatalf("existing isu_date changed: %v", got)
	}
}

func TestCancelWholeOrderNeedsConfirmation(t *testing.T) {
	rdy := ts(testNow.Add(-time.Hour))
	isu := ts(testNow.Add(-30 * time.Minute))
	client := newFakeClient(demoOrder(1, testItem(10, rdy, isu)))
	store, notifier, stop := startStore(t, client)
	defer stop()

	store.Dispatch(IssueOrder{OrderId: 1, Issue: false})
	view := store.Snapshot()
	if view.Orders[0].Items[0].Inventory.IsuDate == nil {
		t.Fatal("cancel applied without confirmation")
	}
	if notifier.count() == 0 {
		t.Fatal("expected a confirmation notice")
	}

	store.Dispatch(IssueOrder{OrderId: 1, Issue: false, Confirmed: true})
	view = store.Snapshot()
	if view.Orders[0].Items[0].Inventory.IsuDate != nil {
		t.Fatal("confirmed cancel did not clear isu_date")
	}
}

func TestItemsUpdateReplacesAndReclassifies(t *testing.T) {
	client := newFakeClient(demoOrder(1, testItem(10, nil, nil), testItem(11, nil, nil)))
	store, notifier, stop := startStore(t, client)
	defer stop()

	rdy := ts(testNow.Add(-time.Hour))
	fresh := []Item{testItem(10, rdy, nil), testItem(11, rdy, nil)}
	event := PushEvent{
		Type:      EventItemsUpdate,
		OrderId:   1,
		Items:     fresh,
		UpdatedBy: &UpdatedBy{UserId: 99, Name: "aye"},
	}
	store.Dispatch(ApplyEvent{Event: event})
	view := store.Snapshot()
	if view.Orders[0].Status != StatusReady {
		t.Fatalf("status = %q after update, want ready", view.Orders[0].Status)
	}
	if notifier.count() == 0 {
		t.Fatal("expected a someone-else-changed-this notice")
	}

	// Replaying the same event converges to the same state.
	store.Dispatch(ApplyEvent{Event: event})
	again := store.Snapshot()
	if len(again.Orders[0].Items) != len(view.Orders[0].Items) {
		t.Fatal("replay changed item count")
	}
	if again.Orders[0].Status != view.Orders[0].Status {
		t.Fatal("replay changed status")
	}
}

func TestItemsUpdateOwnChangeIsSilent(t *testing.T) {
	client := newFakeClient(demoOrder(1, testItem(10, nil, nil)))
	store, notifier, stop := startStore(t, client)
	defer stop()

	store.Dispatch(ApplyEvent{Event: PushEvent{
		Type:      EventItemsUpdate,
		OrderId:   1,
		Items:     []Item{testItem(10, nil, nil)},
		UpdatedBy: &UpdatedBy{UserId: 7, Name: "self"},
	}})
	store.Snapshot()
	if notifier.count() != 0 {
		t.Fatal("own update must not raise a notice")
	}
}

func TestItemsUpdateForUnknownOrderIsSkipped(t *testing.T) {
	client := newFakeClient(demoOrder(1, testItem(10, nil, nil)))
	store, _, stop := startStore(t, client)
	defer stop()

	store.Dispatch(ApplyEvent{Event: PushEvent{
		Type:    EventItemsUpdate,
		OrderId: 999,
		Items:   []Item{testItem(50, nil, nil)},
	}})
	view := store.Snapshot()
	if len(view.Orders) != 1 || view.Orders[0].Id != 1 {
		t.Fatal("unknown-order event changed the order list")
	}
	if len(view.Orders[0].Items) != 1 || view.Orders[0].Items[0].Id != 10 {
		t.Fatal("unknown-order event leaked into an existing order")
	}
}

func TestRefreshDeferredWhileInFlight(t *testing.T) {
	client := newFakeClient(demoOrder(1, testItem(10, ts(testNow), nil)))
	client.execGate = make(chan struct{})
	store, _, stop := startStore(t, client)
	defer stop()

	waitFor(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.journalCalls == 1
	})

	store.Dispatch(IssueItem{OrderId: 1, ItemId: 10, Issue: true})
	store.Dispatch(Refresh{Force: true})
	view := store.Snapshot()
	if !view.PendingRefresh {
		t.Fatal("refresh during in-flight action should be pending")
	}
	client.mu.Lock()
	calls := client.journalCalls
	client.mu.Unlock()
	if calls != 1 {
		t.Fatalf("journal fetched %d times during in-flight action, want 1", calls)
	}

	close(client.execGate)
	waitFor(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.journalCalls == 2
	})
	if store.Snapshot().PendingRefresh {
		t.Fatal("pending refresh not cleared")
	}
}

func TestSnapshotIsIsolated(t *testing.T) {
	client := newFakeClient(demoOrder(1, testItem(10, nil, nil)))
	store, _, stop := startStore(t, client)
	defer stop()

	view := store.Snapshot()
	view.Orders[0].Items[0].Inventory.Origin = OriginWarehouse
	view.Orders[0].Items[0].Qty = decimal.NewFromInt(999)

	again := store.Snapshot()
	if again.Orders[0].Items[0].Inventory.Origin != OriginNone {
		t.Fatal("mutating a snapshot leaked into the store")
	}
}
