package models

import (
	"context"
	"errors"
	"time"

	"github.com/invoiceflow/invoiceflow_backend/config"
	"github.com/invoiceflow/invoiceflow_backend/utils"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("invoiceflow/models")

const documentNumberLockType = "DocumentNumber"

// Invoice is any numbered document: invoice, proforma, quotation or purchase.
type Invoice struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"size:64;not null;index;uniqueIndex:idx_invoices_business_number,priority:1" json:"business_id"`
	DocumentType    DocumentType    `gorm:"size:20;not null;index" json:"document_type"`
	InvoiceNumber   string          `gorm:"size:32;not null;uniqueIndex:idx_invoices_business_number,priority:2" json:"invoice_number"`
	Prefix          string          `gorm:"size:3;not null" json:"prefix"`
	DateKey         string          `gorm:"size:8;not null" json:"date_key"`
	SequenceNo      int             `gorm:"not null" json:"sequence_no"`
	InvoiceDate     time.Time       `gorm:"index;not null" json:"invoice_date"`
	CustomerId      *int            `gorm:"index" json:"customer_id"`
	CustomerName    string          `gorm:"size:100" json:"customer_name"`
	Notes           string          `gorm:"type:text" json:"notes"`
	RoundOffApplied bool            `gorm:"not null" json:"round_off_applied"`
	Subtotal        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"subtotal"`
	IgstAmount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"igst_amount"`
	CgstAmount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cgst_amount"`
	SgstAmount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sgst_amount"`
	TotalTax        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_tax"`
	Total           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total"`
	RoundOff        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"round_off"`
	FinalTotal      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"final_total"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	Status          InvoiceStatus   `gorm:"size:20;not null;default:Issued;index" json:"status"`
	CancelledAt     *time.Time      `json:"cancelled_at"`
	Items           []InvoiceItem   `gorm:"foreignKey:InvoiceId" json:"items"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// InvoiceItem is a stored line item with its computed, unrounded amounts.
type InvoiceItem struct {
	ID         int    `gorm:"primary_key" json:"id"`
	InvoiceId  int    `gorm:"index;not null" json:"invoice_id"`
	BusinessId string `gorm:"size:64;index;not null" json:"business_id"`
	InvoiceLineItem
	Amount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	IgstAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"igst_amount"`
	CgstAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cgst_amount"`
	SgstAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sgst_amount"`
}

type NewInvoice struct {
	DocumentType  DocumentType  `json:"document_type" binding:"required"`
	InvoiceDate   time.Time     `json:"invoice_date" binding:"required"`
	CustomerId    *int          `json:"customer_id"`
	CustomerName  string        `json:"customer_name" binding:"max=100"`
	Notes         string        `json:"notes"`
	ApplyRounding *bool         `json:"apply_rounding"`
	Items         []NewLineItem `json:"items" binding:"required,min=1,dive"`
}

// InvoiceUpdate changes the content of a document. Type, date and number stay.
type InvoiceUpdate struct {
	CustomerId    *int          `json:"customer_id"`
	CustomerName  string        `json:"customer_name" binding:"max=100"`
	Notes         string        `json:"notes"`
	ApplyRounding *bool         `json:"apply_rounding"`
	Items         []NewLineItem `json:"items" binding:"required,min=1,dive"`
}

type InvoiceFilter struct {
	DocumentType *DocumentType
	CustomerId   *int
	Status       *InvoiceStatus
	FromDate     *time.Time
	ToDate       *time.Time
}

func (inv *Invoice) LineItems() []InvoiceLineItem {
	items := make([]InvoiceLineItem, 0, len(inv.Items))
	for _, it := range inv.Items {
		items = append(items, it.InvoiceLineItem)
	}
	return items
}

// Totals rebuilds the stored totals.
func (inv *Invoice) Totals() InvoiceTotals {
	return InvoiceTotals{
		Subtotal:   inv.Subtotal,
		IgstAmount: inv.IgstAmount,
		CgstAmount: inv.CgstAmount,
		SgstAmount: inv.SgstAmount,
		TotalTax:   inv.TotalTax,
		Total:      inv.Total,
		RoundOff:   inv.RoundOff,
		FinalTotal: inv.FinalTotal,
	}
}

func (inv *Invoice) applyTotals(totals InvoiceTotals, rounding bool) {
	inv.Subtotal = totals.Subtotal
	inv.IgstAmount = totals.IgstAmount
	inv.CgstAmount = totals.CgstAmount
	inv.SgstAmount = totals.SgstAmount
	inv.TotalTax = totals.TotalTax
	inv.Total = totals.Total
	inv.RoundOff = totals.RoundOff
	inv.FinalTotal = totals.FinalTotal
	inv.Amount = totals.FinalTotal
	inv.RoundOffApplied = rounding
}

func mapInvoiceItems(businessId string, items []InvoiceLineItem) []InvoiceItem {
	out := make([]InvoiceItem, 0, len(items))
	for _, item := range items {
		tax := item.Tax()
		out = append(out, InvoiceItem{
			BusinessId:      businessId,
			InvoiceLineItem: item,
			Amount:          tax.Amount,
			IgstAmount:      tax.IgstAmount,
			CgstAmount:      tax.CgstAmount,
			SgstAmount:      tax.SgstAmount,
		})
	}
	return out
}

// prepareItems converts request items and checks scheme rules and product/customer references.
func prepareItems(ctx context.Context, businessId string, inputs []NewLineItem, customerId *int) ([]InvoiceLineItem, error) {
	items, err := ToLineItems(inputs)
	if err != nil {
		return nil, err
	}
	strict := config.StrictGstSchemes()
	for _, item := range items {
		if strict {
			if err := ValidateTaxScheme(item); err != nil {
				return nil, err
			}
		}
		if item.ProductId != nil {
			if err := utils.ValidateResourceId[Product](ctx, businessId, *item.ProductId); err != nil {
				return nil, err
			}
		}
	}
	if customerId != nil {
		if err := utils.ValidateResourceId[Customer](ctx, businessId, *customerId); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func translateInvoiceError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateInvoiceNumber
	}
	return err
}

// PreviewDocumentNumber shows the number the next document of docType dated date would get.
// Counters are not touched.
func PreviewDocumentNumber(ctx context.Context, store InvoiceNumberCounterStore, docType DocumentType, date time.Time) (string, error) {
	businessId, err := utils.RequireBusinessId(ctx)
	if err != nil {
		return "", err
	}
	if !docType.IsValid() {
		return "", ErrUnknownDocumentType
	}
	settings, err := GetNumberingSettings(ctx)
	if err != nil {
		return "", err
	}
	prefix, err := settings.PrefixFor(docType)
	if err != nil {
		return "", err
	}
	state, err := store.Load(ctx, businessId, prefix)
	if err != nil {
		return "", err
	}
	number, _, err := GenerateInvoiceNumber(date, state, false)
	return number, err
}

// CreateInvoice validates and totals the document, reserves its number and stores it.
// Invoices take stock out, purchases bring it in. A reserved number is not handed out
// again even if storing the document fails.
func CreateInvoice(ctx context.Context, store InvoiceNumberCounterStore, input *NewInvoice) (*Invoice, error) {
	ctx, span := tracer.Start(ctx, "CreateInvoice")
	defer span.End()

	businessId, err := utils.RequireBusinessId(ctx)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if !input.DocumentType.IsValid() {
		return nil, &ValidationError{Err: ErrUnknownDocumentType, Details: string(input.DocumentType)}
	}
	span.SetAttributes(attribute.String("business_id", businessId), attribute.String("document_type", input.DocumentType.String()))

	items, err := prepareItems(ctx, businessId, input.Items, input.CustomerId)
	if err != nil {
		return nil, err
	}
	settings, err := GetNumberingSettings(ctx)
	if err != nil {
		return nil, err
	}
	prefix, err := settings.PrefixFor(input.DocumentType)
	if err != nil {
		return nil, err
	}
	rounding := settings.RoundOff()
	if input.ApplyRounding != nil {
		rounding = *input.ApplyRounding
	}
	totals, err := ComputeInvoiceTotals(items, rounding)
	if err != nil {
		return nil, err
	}

	release, err := utils.BusinessLock(ctx, businessId, documentNumberLockType, "Invoice", "CreateInvoice")
	if err != nil {
		return nil, err
	}
	defer release()

	dateKey := DateKey(input.InvoiceDate)
	seq, err := store.Reserve(ctx, businessId, prefix, dateKey)
	if err != nil {
		config.LogError(config.GetLogger(), "Invoice", "CreateInvoice", "reserve number", businessId, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	invoice := Invoice{
		BusinessId:    businessId,
		DocumentType:  input.DocumentType,
		InvoiceNumber: FormatInvoiceNumber(prefix, dateKey, seq),
		Prefix:        prefix,
		DateKey:       dateKey,
		SequenceNo:    seq,
		InvoiceDate:   input.InvoiceDate,
		CustomerId:    input.CustomerId,
		CustomerName:  input.CustomerName,
		Notes:         input.Notes,
		Status:        InvoiceStatusIssued,
		Items:         mapInvoiceItems(businessId, items),
	}
	invoice.applyTotals(totals, rounding)
	span.SetAttributes(attribute.String("invoice_number", invoice.InvoiceNumber))

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&invoice).Error; err != nil {
			return translateInvoiceError(err)
		}
		return adjustStock(ctx, tx, businessId, items, input.DocumentType.stockDirection())
	})
	if err != nil {
		config.LogError(config.GetLogger(), "Invoice", "CreateInvoice", "store document", invoice.InvoiceNumber, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	publishDocumentEvent(ctx, &invoice, DocumentActionIssued)
	return &invoice, nil
}

// UpdateInvoice replaces the items and recomputes the totals. The number is kept.
func UpdateInvoice(ctx context.Context, id int, input *InvoiceUpdate) (*Invoice, error) {
	ctx, span := tracer.Start(ctx, "UpdateInvoice")
	defer span.End()

	businessId, err := utils.RequireBusinessId(ctx)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	oldInvoice, err := utils.FetchModel[Invoice](ctx, businessId, id, "Items")
	if err != nil {
		return nil, err
	}
	if oldInvoice.Status == InvoiceStatusCancelled {
		return nil, ErrDocumentCancelled
	}
	items, err := prepareItems(ctx, businessId, input.Items, input.CustomerId)
	if err != nil {
		return nil, err
	}
	rounding := oldInvoice.RoundOffApplied
	if input.ApplyRounding != nil {
		rounding = *input.ApplyRounding
	}
	totals, err := ComputeInvoiceTotals(items, rounding)
	if err != nil {
		return nil, err
	}

	invoice := *oldInvoice
	invoice.CustomerId = input.CustomerId
	invoice.CustomerName = input.CustomerName
	invoice.Notes = input.Notes
	invoice.applyTotals(totals, rounding)
	invoice.Items = mapInvoiceItems(businessId, items)

	direction := invoice.DocumentType.stockDirection()
	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := adjustStock(ctx, tx, businessId, oldInvoice.LineItems(), -direction); err != nil {
			return err
		}
		if err := tx.Where("invoice_id = ? AND business_id = ?", id, businessId).Delete(&InvoiceItem{}).Error; err != nil {
			return err
		}
		for i := range invoice.Items {
			invoice.Items[i].InvoiceId = id
		}
		if err := tx.Create(&invoice.Items).Error; err != nil {
			return err
		}
		if err := tx.Model(&Invoice{ID: id}).Where("business_id = ?", businessId).Updates(map[string]interface{}{
			"CustomerId":      invoice.CustomerId,
			"CustomerName":    invoice.CustomerName,
			"Notes":           invoice.Notes,
			"RoundOffApplied": invoice.RoundOffApplied,
			"Subtotal":        invoice.Subtotal,
			"IgstAmount":      invoice.IgstAmount,
			"CgstAmount":      invoice.CgstAmount,
			"SgstAmount":      invoice.SgstAmount,
			"TotalTax":        invoice.TotalTax,
			"Total":           invoice.Total,
			"RoundOff":        invoice.RoundOff,
			"FinalTotal":      invoice.FinalTotal,
			"Amount":          invoice.Amount,
		}).Error; err != nil {
			return err
		}
		return adjustStock(ctx, tx, businessId, items, direction)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	publishDocumentEvent(ctx, &invoice, DocumentActionUpdated)
	return GetInvoice(ctx, id)
}

// CancelInvoice marks the document cancelled and reverses its stock movement.
// The number stays used.
func CancelInvoice(ctx context.Context, id int) (*Invoice, error) {
	businessId, err := utils.RequireBusinessId(ctx)
	if err != nil {
		return nil, err
	}
	invoice, err := utils.FetchModel[Invoice](ctx, businessId, id, "Items")
	if err != nil {
		return nil, err
	}
	if invoice.Status == InvoiceStatusCancelled {
		return nil, ErrDocumentCancelled
	}

	now := time.Now()
	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Invoice{ID: id}).Where("business_id = ?", businessId).Updates(map[string]interface{}{
			"Status":      InvoiceStatusCancelled,
			"CancelledAt": now,
		}).Error; err != nil {
			return err
		}
		return adjustStock(ctx, tx, businessId, invoice.LineItems(), -invoice.DocumentType.stockDirection())
	})
	if err != nil {
		return nil, err
	}
	invoice.Status = InvoiceStatusCancelled
	invoice.CancelledAt = &now

	publishDocumentEvent(ctx, invoice, DocumentActionCancelled)
	return invoice, nil
}

func GetInvoice(ctx context.Context, id int) (*Invoice, error) {
	businessId, err := utils.RequireBusinessId(ctx)
	if err != nil {
		return nil, err
	}
	return utils.FetchModel[Invoice](ctx, businessId, id, "Items")
}

func (filter InvoiceFilter) apply(dbCtx *gorm.DB) *gorm.DB {
	if filter.DocumentType != nil {
		dbCtx = dbCtx.Where("document_type = ?", *filter.DocumentType)
	}
	if filter.CustomerId != nil {
		dbCtx = dbCtx.Where("customer_id = ?", *filter.CustomerId)
	}
	if filter.Status != nil {
		dbCtx = dbCtx.Where("status = ?", *filter.Status)
	}
	if filter.FromDate != nil {
		dbCtx = dbCtx.Where("invoice_date >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		dbCtx = dbCtx.Where("invoice_date < ?", filter.ToDate.AddDate(0, 0, 1))
	}
	return dbCtx
}

// ListInvoices returns documents newest first, without items.
func ListInvoices(ctx context.Context, filter InvoiceFilter) ([]*Invoice, error) {
	businessId, err := utils.RequireBusinessId(ctx)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	dbCtx := filter.apply(db.WithContext(ctx).Where("business_id = ?", businessId))
	var results []*Invoice
	if err := dbCtx.Order("invoice_date DESC, id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

type InvoiceEdge struct {
	Cursor string   `json:"cursor"`
	Node   *Invoice `json:"node"`
}

type InvoiceConnection struct {
	Edges    []*InvoiceEdge `json:"edges"`
	PageInfo *PageInfo      `json:"page_info"`
}

// PaginateInvoices pages ListInvoices' order with an (invoice_date, id) cursor.
func PaginateInvoices(ctx context.Context, filter InvoiceFilter, limit int, after *string) (*InvoiceConnection, error) {
	businessId, err := utils.RequireBusinessId(ctx)
	if err != nil {
		return nil, err
	}
	limit = pageSize(limit)

	db := config.GetDB()
	dbCtx := filter.apply(db.WithContext(ctx).Where("business_id = ?", businessId))
	if date, id := DecodeCompositeCursor(after); id > 0 {
		dbCtx = dbCtx.Where("invoice_date < ? OR (invoice_date = ? AND id < ?)", date, date, id)
	}
	var results []*Invoice
	if err := dbCtx.Order("invoice_date DESC, id DESC").Limit(limit + 1).Find(&results).Error; err != nil {
		return nil, err
	}

	hasNextPage := len(results) > limit
	if hasNextPage {
		results = results[:limit]
	}
	edges := make([]*InvoiceEdge, len(results))
	for i, inv := range results {
		edges[i] = &InvoiceEdge{Cursor: EncodeCompositeCursor(inv.InvoiceDate, inv.ID), Node: inv}
	}
	pageInfo := &PageInfo{HasNextPage: &hasNextPage}
	if len(edges) > 0 {
		pageInfo.StartCursor = edges[0].Cursor
		pageInfo.EndCursor = edges[len(edges)-1].Cursor
	}
	return &InvoiceConnection{Edges: edges, PageInfo: pageInfo}, nil
}
