package models

import (
	"log"

	"bitbucket.org/mmdatafocus/factory_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Product{}, &ProductBundle{},
		&StockLevel{}, &StockHistory{},
		&ManufacturingOrder{}, &OrderItem{}, &OrderBundleItem{},
		&User{},
		&ActionKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
