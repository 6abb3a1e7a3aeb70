package journal

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// StockKey identifies a stock level by its full coordinate. The legacy wire
// hash concatenated the fields without a separator, so ("AB","",1) and
// ("A","B",1) collided; the structured key keeps them distinct.
type StockKey struct {
	Coating   string
	Color     string
	ProductID int
}

func (k StockKey) String() string {
	return fmt.Sprintf("%s|%s|%d", k.Coating, k.Color, k.ProductID)
}

// KeyForItem is the stock coordinate an item draws from.
func KeyForItem(item Item) StockKey {
	return StockKey{Coating: item.Coating, Color: item.Color, ProductID: item.ProductId}
}

func KeyForBundleItem(bi BundleItem) StockKey {
	return StockKey{Coating: bi.Coating, Color: bi.Color, ProductID: bi.ProductId}
}

// stockKeysForOrder collects every stock coordinate the order's detail view
// shows: one per item plus one per kit component row, deduplicated.
func stockKeysForOrder(order *Order) []StockKey {
	seen := make(map[StockKey]struct{})
	var keys []StockKey
	add := func(k StockKey) {
		if k.ProductID == 0 {
			return
		}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	for i := range order.Items {
		add(KeyForItem(order.Items[i]))
		for _, bi := range order.Items[i].BundleItems {
			add(KeyForBundleItem(bi))
		}
	}
	return keys
}

// resolveStock fetches current stock for the given keys and merges the result
// into the store's stock map. Keys the server does not know stay absent.
func (s *Store) resolveStock(ctx context.Context, keys []StockKey) error {
	if len(keys) == 0 {
		return nil
	}
	queries := make([]StockQuery, 0, len(keys))
	for _, k := range keys {
		queries = append(queries, StockQuery{
			ProductId: k.ProductID,
			Hash:      k.String(),
			Coating:   k.Coating,
			Color:     k.Color,
		})
	}
	entries, err := s.client.GetProductStock(ctx, queries)
	if err != nil {
		return err
	}
	for _, e := range entries {
		key := StockKey{Coating: e.Coating, Color: e.Color, ProductID: e.ProductId}
		s.stock[key] = e.Stock
	}
	return nil
}

// StockFor reports the known stock level for a key, if any.
func (v View) StockFor(key StockKey) (decimal.Decimal, bool) {
	qty, ok := v.Stock[key]
	return qty, ok
}
