package journal

import (
	"fmt"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/factory_backend/utils"
)

func (s *Store) findOrder(orderId int) *Order {
	return s.byId[orderId]
}

// findInventory resolves an ItemRef to the inventory it targets, along with
// the owning item. Returns nils when the ref points nowhere.
func (s *Store) findInventory(ref ItemRef) (*Item, *Inventory) {
	order := s.findOrder(ref.OrderId)
	if order == nil || ref.ItemIndex < 0 || ref.ItemIndex >= len(order.Items) {
		return nil, nil
	}
	item := &order.Items[ref.ItemIndex]
	if ref.Source == SourceBundle {
		for i := range item.BundleItems {
			if item.BundleItems[i].BundleId == ref.BundleId {
				return item, &item.BundleItems[i].Inventory
			}
		}
		return nil, nil
	}
	return item, &item.Inventory
}

// expectedAmount is the default writeoff: the full line quantity of whatever
// the ref points at.
func (s *Store) expectedAmount(ref ItemRef) decimal.Decimal {
	order := s.findOrder(ref.OrderId)
	if order == nil || ref.ItemIndex >= len(order.Items) {
		return decimal.Zero
	}
	item := order.Items[ref.ItemIndex]
	if ref.Source == SourceBundle {
		for _, bi := range item.BundleItems {
			if bi.BundleId == ref.BundleId {
				return bi.Qty
			}
		}
		return decimal.Zero
	}
	return item.Qty
}

func (s *Store) applySetOrigin(cmd SetOrigin) {
	if !cmd.Origin.Valid() {
		s.notifier.Notice(NoticeError, fmt.Sprintf("unknown material origin %q", cmd.Origin))
		return
	}
	_, inv := s.findInventory(cmd.Ref)
	if inv == nil {
		s.notifier.Notice(NoticeError, "item not found")
		return
	}
	if inv.IsuDate != nil {
		s.notifier.Notice(NoticeWarn, "item already issued; sourcing can no longer change")
		return
	}
	inv.Origin = cmd.Origin
	if cmd.Origin == OriginWarehouse {
		if inv.WriteoffAmount.IsZero() {
			inv.WriteoffAmount = s.expectedAmount(cmd.Ref)
		}
	} else {
		// writeoff only means something for warehouse sourcing
		inv.WriteoffAmount = decimal.Zero
	}
	s.touch()
}

func (s *Store) applySetWriteoff(cmd SetWriteoffAmount) {
	_, inv := s.findInventory(cmd.Ref)
	if inv == nil {
		s.notifier.Notice(NoticeError, "item not found")
		return
	}
	if inv.Origin != OriginWarehouse {
		s.notifier.Notice(NoticeWarn, "writeoff amount applies to warehouse sourcing only")
		return
	}
	if cmd.Raw == "" {
		inv.WriteoffAmount = s.expectedAmount(cmd.Ref)
		s.touch()
		return
	}
	amount, err := utils.ParseAmount(cmd.Raw)
	if err != nil {
		if s.lenientAmounts {
			inv.WriteoffAmount = decimal.Zero
			s.touch()
			return
		}
		s.notifier.Notice(NoticeError, fmt.Sprintf("invalid writeoff amount %q", cmd.Raw))
		return
	}
	inv.WriteoffAmount = amount
	s.touch()
}

// buildCommitRequest turns the current inventory state of a ref into the
// server action that persists it. A warehouse origin with a positive writeoff
// also carries the stock deduction.
func (s *Store) buildCommitRequest(ref ItemRef) (ExecOrderItemActionRequest, bool) {
	item, inv := s.findInventory(ref)
	if item == nil || inv == nil {
		return ExecOrderItemActionRequest{}, false
	}
	req := ExecOrderItemActionRequest{
		UpdateItem: &UpdateItemAction{
			OrderId: ref.OrderId,
			Index:   ref.ItemIndex,
			Item:    cloneItem(*item),
		},
	}
	if inv.Origin == OriginWarehouse && inv.WriteoffAmount.IsPositive() {
		coating, color := item.Coating, item.Color
		if ref.Source == SourceBundle {
			for _, bi := range item.BundleItems {
				if bi.BundleId == ref.BundleId {
					coating, color = bi.Coating, bi.Color
				}
			}
		}
		req.UpdateStock = &UpdateStockAction{
			OrderId: ref.OrderId,
			ItemId:  item.Id,
			Index:   ref.ItemIndex,
			Coating: coating,
			Color:   color,
			Amount:  inv.WriteoffAmount,
		}
	}
	return req, true
}
