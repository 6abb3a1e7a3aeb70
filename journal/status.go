package journal

import "time"

// OrderStatus is a pure function of the order's items and due date, recomputed
// after every mutation. Nothing else writes it.
type OrderStatus string

const (
	StatusUrgent        OrderStatus = "urgent"
	StatusToday         OrderStatus = "today"
	StatusManufacturing OrderStatus = "manufacturing"
	StatusReady         OrderStatus = "ready"
	StatusIssued        OrderStatus = "issued"
)

func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Classify derives the order status from item readiness and the due date.
// Readiness beats the due date: a fully ready or issued order is never
// urgent, however overdue. A due date in the past (even earlier the same
// day) makes an unready order urgent. An order with no items is still being
// entered and stays in manufacturing.
func Classify(order Order, now time.Time) OrderStatus {
	if len(order.Items) == 0 {
		return StatusManufacturing
	}
	ready := true
	issued := true
	for i := range order.Items {
		if order.Items[i].Inventory.RdyDate == nil {
			ready = false
		}
		if order.Items[i].Inventory.IsuDate == nil {
			issued = false
		}
	}
	overdue := order.DueDate.Before(now)
	switch {
	case ready && issued:
		return StatusIssued
	case ready:
		return StatusReady
	case !issued && overdue:
		return StatusUrgent
	case !issued && sameCalendarDay(order.DueDate, now):
		return StatusToday
	default:
		return StatusManufacturing
	}
}

// IssueActionKind is the whole-order action the journal row offers.
type IssueActionKind string

const (
	IssueActionNone   IssueActionKind = ""
	IssueActionIssue  IssueActionKind = "issue"
	IssueActionCancel IssueActionKind = "cancel"
)

type OrderIssueAction struct {
	Kind IssueActionKind
	// IssuedAt is the latest per-item issue timestamp, set for cancel.
	IssuedAt *time.Time
}

// IssueActionFor decides which whole-order issue control applies: "issue" when
// every item is ready and at least one is not yet issued, "cancel" when every
// item is issued, nothing otherwise.
func IssueActionFor(order Order) OrderIssueAction {
	if len(order.Items) == 0 {
		return OrderIssueAction{Kind: IssueActionNone}
	}
	ready := true
	issuedCount := 0
	var latest *time.Time
	for i := range order.Items {
		inv := order.Items[i].Inventory
		if inv.RdyDate == nil {
			ready = false
		}
		if inv.IsuDate != nil {
			issuedCount++
			if latest == nil || inv.IsuDate.After(*latest) {
				ts := *inv.IsuDate
				latest = &ts
			}
		}
	}
	if issuedCount == len(order.Items) {
		return OrderIssueAction{Kind: IssueActionCancel, IssuedAt: latest}
	}
	if ready {
		return OrderIssueAction{Kind: IssueActionIssue}
	}
	return OrderIssueAction{Kind: IssueActionNone}
}
