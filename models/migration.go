package models

import (
	"log"

	"github.com/invoiceflow/invoiceflow_backend/config"
	"gorm.io/gorm"
)

// AllModels lists every table, in creation order.
func AllModels() []interface{} {
	return []interface{}{
		&NumberingSettings{}, &AppSetting{},
		&InvoiceNumberCounter{},
		&Customer{}, &Product{},
		&Invoice{}, &InvoiceItem{},
		&IdempotencyKey{},
	}
}

func AutoMigrateModels(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}

func MigrateTable() {
	if err := AutoMigrateModels(config.GetDB()); err != nil {
		log.Fatal(err)
	}
}
