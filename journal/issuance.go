package journal

import "fmt"

func (s *Store) findItemById(orderId, itemId int) (*Order, *Item) {
	order := s.findOrder(orderId)
	if order == nil {
		return nil, nil
	}
	for i := range order.Items {
		if order.Items[i].Id == itemId {
			return order, &order.Items[i]
		}
	}
	return order, nil
}

// applyIssueItem toggles a single item between issued and not issued. Issuing
// requires readiness; cancelling requires a prior issue. The change is applied
// optimistically and then persisted.
func (s *Store) applyIssueItem(cmd IssueItem) {
	if s.inflight {
		s.notifier.Notice(NoticeWarn, "another change is still being saved")
		return
	}
	order, item := s.findItemById(cmd.OrderId, cmd.ItemId)
	if item == nil {
		s.notifier.Notice(NoticeError, "item not found")
		return
	}
	inv := &item.Inventory
	if cmd.Issue {
		if inv.RdyDate == nil {
			s.notifier.Notice(NoticeWarn, "item is not ready yet")
			return
		}
		if inv.IsuDate != nil {
			return
		}
		now := s.now()
		inv.IsuDate = &now
	} else {
		if inv.IsuDate == nil {
			return
		}
		inv.IsuDate = nil
	}
	order.Status = Classify(*order, s.now())
	s.touch()
	s.sendAction(ExecOrderItemActionRequest{
		Issue: []IssueAction{{
			OrderId:   cmd.OrderId,
			ItemId:    item.Id,
			ProductId: item.ProductId,
			IsuDate:   item.Inventory.IsuDate,
		}},
	})
}

// applyIssueOrder issues or cancels every item of an order in one batch.
// Issuing skips items already issued; cancelling the whole order needs an
// explicit confirmation.
func (s *Store) applyIssueOrder(cmd IssueOrder) {
	if s.inflight {
		s.notifier.Notice(NoticeWarn, "another change is still being saved")
		return
	}
	order := s.findOrder(cmd.OrderId)
	if order == nil {
		s.notifier.Notice(NoticeError, fmt.Sprintf("order %d not found", cmd.OrderId))
		return
	}
	if cmd.Issue {
		for i := range order.Items {
			if order.Items[i].Inventory.RdyDate == nil {
				s.notifier.Notice(NoticeWarn, "order has items that are not ready yet")
				return
			}
		}
	} else if !cmd.Confirmed {
		s.notifier.Notice(NoticeWarn, "cancelling a full issue must be confirmed")
		return
	}
	var actions []IssueAction
	now := s.now()
	for i := range order.Items {
		item := &order.Items[i]
		inv := &item.Inventory
		if cmd.Issue {
			if inv.IsuDate != nil {
				continue
			}
			ts := now
			inv.IsuDate = &ts
		} else {
			if inv.IsuDate == nil {
				continue
			}
			inv.IsuDate = nil
		}
		actions = append(actions, IssueAction{
			OrderId:   cmd.OrderId,
			ItemId:    item.Id,
			ProductId: item.ProductId,
			IsuDate:   inv.IsuDate,
		})
	}
	if len(actions) == 0 {
		return
	}
	order.Status = Classify(*order, s.now())
	s.touch()
	s.sendAction(ExecOrderItemActionRequest{Issue: actions})
}
