package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/models"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
)

// Seeds a small demo dataset: products, one kit definition, stock levels and
// a few open manufacturing orders. Intended for local development only.
func main() {
	orderCount := flag.Int("orders", 3, "number of demo orders to create")
	flag.Parse()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx = utils.SetUserNameInContext(ctx, "SeedDemo")

	// Running twice would duplicate everything; bail if the catalog is there.
	if p, err := models.GetProductById(ctx, 1); err == nil {
		fmt.Fprintf(os.Stderr, "catalog already seeded (product 1 is %q), refusing to seed again\n", p.Name)
		os.Exit(1)
	}

	products := []models.NewProduct{
		{Name: "Steel Door Frame", Sku: "SDF-001", Unit: "pcs"},
		{Name: "Hinge Set", Sku: "HNG-010", Unit: "set"},
		{Name: "Lock Cylinder", Sku: "LCK-020", Unit: "pcs"},
		{Name: "Door Kit Standard", Sku: "KIT-100", Unit: "pcs", IsBundle: utils.NewTrue()},
	}
	created := make([]*models.Product, 0, len(products))
	for i := range products {
		p, err := models.CreateProduct(ctx, &products[i])
		if err != nil {
			fmt.Fprintf(os.Stderr, "create product %s: %v\n", products[i].Name, err)
			os.Exit(1)
		}
		created = append(created, p)
		fmt.Printf("product %d %s\n", p.ID, p.Name)
	}

	// Kit: one standard door kit = 1 frame + 2 hinge sets + 1 lock.
	kit := created[3]
	components := []struct {
		product *models.Product
		qty     string
	}{
		{created[0], "1"},
		{created[1], "2"},
		{created[2], "1"},
	}
	for _, comp := range components {
		qty, _ := decimal.NewFromString(comp.qty)
		_, err := models.CreateProductBundle(ctx, &models.NewProductBundle{
			ProductId:       kit.ID,
			Coating:         "powder",
			Color:           "white",
			BundleProductId: comp.product.ID,
			Title:           comp.product.Name,
			Unit:            comp.product.Unit,
			Qty:             qty,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "create bundle row for %s: %v\n", comp.product.Name, err)
			os.Exit(1)
		}
	}

	for _, p := range created {
		level := models.StockLevel{
			ProductId: p.ID,
			Coating:   "powder",
			Color:     "white",
			Qty:       decimal.NewFromInt(100),
		}
		if err := db.WithContext(ctx).Create(&level).Error; err != nil {
			fmt.Fprintf(os.Stderr, "seed stock for %s: %v\n", p.Name, err)
			os.Exit(1)
		}
	}

	for i := 0; i < *orderCount; i++ {
		due := time.Now().AddDate(0, 0, i+2)
		order, err := models.CreateManufacturingOrder(ctx, &models.NewManufacturingOrder{
			DueDate:  due,
			Operator: "demo",
			Notes:    fmt.Sprintf("demo order %d", i+1),
			Items: []models.NewOrderItem{
				{
					ProductId:  kit.ID,
					Title:      kit.Name,
					Coating:    "powder",
					Color:      "white",
					Qty:        decimal.NewFromInt(int64(5 + i)),
					Unit:       kit.Unit,
					GroupLabel: "doors",
				},
				{
					ProductId: created[0].ID,
					Title:     created[0].Name,
					Coating:   "powder",
					Color:     "grey",
					Qty:       decimal.NewFromInt(2),
					Unit:      created[0].Unit,
				},
			},
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "create order %d: %v\n", i+1, err)
			os.Exit(1)
		}
		fmt.Printf("order %d due %s\n", order.ID, due.Format("2006-01-02"))
	}

	fmt.Println("seed complete")
}
