package journal

import "context"

// resolveBundles refreshes the kit component rows of every bundle item in the
// order. The catalog returns per-unit ratios; line amounts are the ratio
// multiplied by the parent item qty. Inventory state already entered on a
// component row survives the refresh, matched by bundle id.
func (s *Store) resolveBundles(ctx context.Context, order *Order) error {
	var queries []BundleQuery
	queried := make(map[int]bool)
	for i := range order.Items {
		item := &order.Items[i]
		if item.ProductId == 0 {
			continue
		}
		queries = append(queries, BundleQuery{
			ItemId:    item.Id,
			ProductId: item.ProductId,
			Coating:   item.Coating,
			Color:     item.Color,
		})
		queried[item.Id] = true
	}
	if len(queries) == 0 {
		return nil
	}
	components, err := s.client.GetProductBundles(ctx, queries)
	if err != nil {
		return err
	}
	byItem := make(map[int][]BundleItem)
	for _, c := range components {
		byItem[c.ItemId] = append(byItem[c.ItemId], c)
	}
	for i := range order.Items {
		item := &order.Items[i]
		if !queried[item.Id] {
			continue
		}
		fresh := byItem[item.Id]
		prior := make(map[int]Inventory, len(item.BundleItems))
		for _, old := range item.BundleItems {
			prior[old.BundleId] = old.Inventory
		}
		rebuilt := make([]BundleItem, 0, len(fresh))
		for _, c := range fresh {
			row := c
			row.ItemId = item.Id
			row.Qty = c.Qty.Mul(item.Qty)
			if inv, ok := prior[c.BundleId]; ok {
				row.Inventory = inv
			}
			rebuilt = append(rebuilt, row)
		}
		item.BundleItems = rebuilt
	}
	return nil
}
