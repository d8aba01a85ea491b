package models

import (
	"context"
	"time"

	"github.com/invoiceflow/invoiceflow_backend/config"
	"github.com/invoiceflow/invoiceflow_backend/utils"
	"gorm.io/gorm"
)

const DataTransferVersion = 1

// BusinessSnapshot is the JSON export of one business.
type BusinessSnapshot struct {
	Version    int                    `json:"version"`
	BusinessId string                 `json:"business_id"`
	ExportedAt time.Time              `json:"exported_at"`
	Settings   *NumberingSettings     `json:"settings,omitempty"`
	Customers  []*Customer            `json:"customers"`
	Products   []*Product             `json:"products"`
	Invoices   []*Invoice             `json:"invoices"`
	Counters   []InvoiceNumberCounter `json:"counters"`
}

type ImportSummary struct {
	Customers int `json:"customers"`
	Products  int `json:"products"`
	Invoices  int `json:"invoices"`
	Counters  int `json:"counters"`
}

// ExportBusinessData reads everything the business owns.
func ExportBusinessData(ctx context.Context) (*BusinessSnapshot, error) {
	businessId, err := utils.RequireBusinessId(ctx)
	if err != nil {
		return nil, err
	}
	db := config.GetDB().WithContext(ctx)

	snapshot := &BusinessSnapshot{
		Version:    DataTransferVersion,
		BusinessId: businessId,
		ExportedAt: time.Now().UTC(),
	}
	var settings NumberingSettings
	if err := db.Where("business_id = ?", businessId).Limit(1).Find(&settings).Error; err != nil {
		return nil, err
	}
	if settings.ID > 0 {
		snapshot.Settings = &settings
	}
	if err := db.Where("business_id = ?", businessId).Order("id").Find(&snapshot.Customers).Error; err != nil {
		return nil, err
	}
	if err := db.Where("business_id = ?", businessId).Order("id").Find(&snapshot.Products).Error; err != nil {
		return nil, err
	}
	if err := db.Where("business_id = ?", businessId).Preload("Items").Order("id").Find(&snapshot.Invoices).Error; err != nil {
		return nil, err
	}
	if err := db.Where("business_id = ?", businessId).Order("scope, date_key").Find(&snapshot.Counters).Error; err != nil {
		return nil, err
	}
	return snapshot, nil
}

// ImportBusinessData writes a snapshot into the business of ctx in one transaction.
// Rows get new ids; invoice numbers are kept and counters only move up.
func ImportBusinessData(ctx context.Context, snapshot *BusinessSnapshot) (*ImportSummary, error) {
	businessId, err := utils.RequireBusinessId(ctx)
	if err != nil {
		return nil, err
	}
	if snapshot.Version != DataTransferVersion {
		return nil, invalidInput("unsupported snapshot version %d", snapshot.Version)
	}

	summary := &ImportSummary{}
	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if snapshot.Settings != nil {
			s := *snapshot.Settings
			s.ID = 0
			s.BusinessId = businessId
			if err := tx.Where("business_id = ?", businessId).Delete(&NumberingSettings{}).Error; err != nil {
				return err
			}
			if err := tx.Create(&s).Error; err != nil {
				return err
			}
		}

		customerIds := map[int]int{}
		for _, c := range snapshot.Customers {
			row := *c
			oldId := row.ID
			row.ID = 0
			row.BusinessId = businessId
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			customerIds[oldId] = row.ID
			summary.Customers++
		}

		productIds := map[int]int{}
		for _, p := range snapshot.Products {
			row := *p
			oldId := row.ID
			row.ID = 0
			row.BusinessId = businessId
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			productIds[oldId] = row.ID
			summary.Products++
		}

		for _, inv := range snapshot.Invoices {
			if err := checkInvoiceNumber(inv); err != nil {
				return err
			}
			row := *inv
			row.ID = 0
			row.BusinessId = businessId
			if row.CustomerId != nil {
				if newId, ok := customerIds[*row.CustomerId]; ok {
					row.CustomerId = &newId
				} else {
					row.CustomerId = nil
				}
			}
			items := make([]InvoiceItem, 0, len(inv.Items))
			for _, it := range inv.Items {
				item := it
				item.ID = 0
				item.InvoiceId = 0
				item.BusinessId = businessId
				if item.ProductId != nil {
					if newId, ok := productIds[*item.ProductId]; ok {
						item.ProductId = &newId
					} else {
						item.ProductId = nil
					}
				}
				items = append(items, item)
			}
			row.Items = items
			if err := tx.Create(&row).Error; err != nil {
				return translateInvoiceError(err)
			}
			summary.Invoices++
		}

		counters := NewGormCounterStore(tx, false)
		for _, c := range snapshot.Counters {
			if err := counters.raiseScope(ctx, businessId, c.Scope, c.DateKey, c.LastValue); err != nil {
				return err
			}
			summary.Counters++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// checkInvoiceNumber rejects a snapshot row whose number disagrees with its stored parts,
// since counters are raised from those parts.
func checkInvoiceNumber(inv *Invoice) error {
	prefix, dateKey, seq, ok := ParseInvoiceNumber(inv.InvoiceNumber)
	if !ok {
		return invalidInput("invoice number %q is malformed", inv.InvoiceNumber)
	}
	if prefix != inv.Prefix || dateKey != inv.DateKey || seq != inv.SequenceNo {
		return invalidInput("invoice number %q does not match prefix %q, date %q, sequence %d", inv.InvoiceNumber, inv.Prefix, inv.DateKey, inv.SequenceNo)
	}
	return nil
}
