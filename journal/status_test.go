package journal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var testNow = time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)

func ts(t time.Time) *time.Time { return &t }

func testItem(id int, rdy, isu *time.Time) Item {
	return Item{
		Id:        id,
		ProductId: 100 + id,
		Title:     "item",
		Qty:       decimal.NewFromInt(5),
		Inventory: Inventory{Origin: OriginNone, RdyDate: rdy, IsuDate: isu},
	}
}

func TestClassifyPrecedence(t *testing.T) {
	yesterday := testNow.AddDate(0, 0, -1)
	nextWeek := testNow.AddDate(0, 0, 7)
	rdy := ts(testNow.Add(-2 * time.Hour))
	isu := ts(testNow.Add(-time.Hour))

	cases := []struct {
		name  string
		order Order
		want  OrderStatus
	}{
		{
			name:  "all issued wins over overdue",
			order: Order{DueDate: yesterday, Items: []Item{testItem(1, rdy, isu), testItem(2, rdy, isu)}},
			want:  StatusIssued,
		},
		{
			name:  "all ready wins over overdue",
			order: Order{DueDate: yesterday, Items: []Item{testItem(1, rdy, nil), testItem(2, rdy, isu)}},
			want:  StatusReady,
		},
		{
			name:  "overdue and not ready is urgent",
			order: Order{DueDate: yesterday, Items: []Item{testItem(1, nil, nil), testItem(2, rdy, nil)}},
			want:  StatusUrgent,
		},
		{
			name:  "due today and not ready is today",
			order: Order{DueDate: testNow.Add(5 * time.Hour), Items: []Item{testItem(1, nil, nil)}},
			want:  StatusToday,
		},
		{
			name:  "due earlier today counts as overdue",
			order: Order{DueDate: testNow.Add(-3 * time.Hour), Items: []Item{testItem(1, nil, nil)}},
			want:  StatusUrgent,
		},
		{
			name:  "future due date and in progress",
			order: Order{DueDate: nextWeek, Items: []Item{testItem(1, rdy, nil), testItem(2, nil, nil)}},
			want:  StatusManufacturing,
		},
		{
			name:  "no items stays manufacturing",
			order: Order{DueDate: yesterday},
			want:  StatusManufacturing,
		},
	}
	for _, tc := range cases {
		got := Classify(tc.order, testNow)
		if got != tc.want {
			t.Fatalf("%s: got %q want %q", tc.name, got, tc.want)
		}
	}
}

func TestClassifyLastItemReady(t *testing.T) {
	// An overdue order flips straight from urgent to ready when the last item
	// becomes ready.
	rdy := ts(testNow.Add(-time.Hour))
	order := Order{
		DueDate: testNow.AddDate(0, 0, -2),
		Items:   []Item{testItem(1, rdy, nil), testItem(2, nil, nil)},
	}
	if got := Classify(order, testNow); got != StatusUrgent {
		t.Fatalf("before: got %q want %q", got, StatusUrgent)
	}
	order.Items[1].Inventory.RdyDate = rdy
	if got := Classify(order, testNow); got != StatusReady {
		t.Fatalf("after: got %q want %q", got, StatusReady)
	}
}

func TestClassifyDoesNotMutate(t *testing.T) {
	rdy := ts(testNow)
	order := Order{DueDate: testNow, Items: []Item{testItem(1, rdy, nil)}}
	before := order.Items[0].Inventory
	_ = Classify(order, testNow)
	if order.Items[0].Inventory != before {
		t.Fatal("Classify mutated the order")
	}
}

func TestIssueActionFor(t *testing.T) {
	rdy := ts(testNow.Add(-2 * time.Hour))
	first := ts(testNow.Add(-30 * time.Minute))
	second := ts(testNow.Add(-10 * time.Minute))

	all := Order{Items: []Item{testItem(1, rdy, first), testItem(2, rdy, second)}}
	action := IssueActionFor(all)
	if action.Kind != IssueActionCancel {
		t.Fatalf("all issued: got %q want cancel", action.Kind)
	}
	if action.IssuedAt == nil || !action.IssuedAt.Equal(*second) {
		t.Fatalf("cancel should carry the latest issue time, got %v", action.IssuedAt)
	}

	partial := Order{Items: []Item{testItem(1, rdy, first), testItem(2, rdy, nil)}}
	if got := IssueActionFor(partial).Kind; got != IssueActionIssue {
		t.Fatalf("ready with one issued: got %q want issue", got)
	}

	notReady := Order{Items: []Item{testItem(1, rdy, first), testItem(2, nil, nil)}}
	if got := IssueActionFor(notReady).Kind; got != IssueActionNone {
		t.Fatalf("not ready: got %q want none", got)
	}

	empty := Order{}
	if got := IssueActionFor(empty).Kind; got != IssueActionNone {
		t.Fatalf("empty order: got %q want none", got)
	}
}
