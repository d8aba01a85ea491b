package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/invoiceflow/invoiceflow_backend/config"
	"github.com/invoiceflow/invoiceflow_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

type Product struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BusinessId    string          `gorm:"size:64;index;not null" json:"business_id"`
	Name          string          `gorm:"size:100;not null" json:"name"`
	Description   string          `gorm:"type:text" json:"description"`
	HsnCode       string          `gorm:"size:20;index" json:"hsn_code"`
	Unit          string          `gorm:"size:20" json:"unit"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	ApplyIgst     bool            `gorm:"not null;default:false" json:"apply_igst"`
	ApplyCgst     bool            `gorm:"not null;default:false" json:"apply_cgst"`
	ApplySgst     bool            `gorm:"not null;default:false" json:"apply_sgst"`
	IgstRate      decimal.Decimal `gorm:"type:decimal(7,4);default:0" json:"igst_rate"`
	CgstRate      decimal.Decimal `gorm:"type:decimal(7,4);default:0" json:"cgst_rate"`
	SgstRate      decimal.Decimal `gorm:"type:decimal(7,4);default:0" json:"sgst_rate"`
	IsService     bool            `gorm:"not null;default:false" json:"is_service"`
	StockQuantity decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"stock_quantity"`
	IsActive      *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	Name          string          `json:"name" binding:"required,max=100"`
	Description   string          `json:"description"`
	HsnCode       string          `json:"hsn_code" binding:"max=20"`
	Unit          string          `json:"unit" binding:"max=20"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	ApplyIgst     bool            `json:"apply_igst"`
	ApplyCgst     bool            `json:"apply_cgst"`
	ApplySgst     bool            `json:"apply_sgst"`
	IgstRate      decimal.Decimal `json:"igst_rate"`
	CgstRate      decimal.Decimal `json:"cgst_rate"`
	SgstRate      decimal.Decimal `json:"sgst_rate"`
	IsService     bool            `json:"is_service"`
	StockQuantity decimal.Decimal `json:"stock_quantity"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewProduct) validate(ctx context.Context, businessId string, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if id > 0 {
		if err := utils.ValidateResourceId[Product](ctx, businessId, id); err != nil {
			return err
		}
	}
	if err := utils.ValidateUnique[Product](ctx, businessId, "name", input.Name, id, ErrDuplicateProductName); err != nil {
		return err
	}
	defaults := input.lineItemDefaults()
	if err := defaults.validate(-1); err != nil {
		return err
	}
	if config.StrictGstSchemes() {
		if err := ValidateTaxScheme(defaults); err != nil {
			return err
		}
	}
	if input.StockQuantity.IsNegative() {
		return invalidInput("stock_quantity must not be negative, got %s", input.StockQuantity.String())
	}
	return nil
}

func (input *NewProduct) lineItemDefaults() InvoiceLineItem {
	return InvoiceLineItem{
		Name:      input.Name,
		HsnCode:   input.HsnCode,
		Quantity:  decimal.Zero,
		UnitPrice: input.UnitPrice,
		ApplyIgst: input.ApplyIgst,
		ApplyCgst: input.ApplyCgst,
		ApplySgst: input.ApplySgst,
		IgstRate:  input.IgstRate,
		CgstRate:  input.CgstRate,
		SgstRate:  input.SgstRate,
	}
}

// LineItemFromProduct fills a line item from the product's price and GST defaults.
func LineItemFromProduct(p *Product, quantity decimal.Decimal) (InvoiceLineItem, error) {
	id := p.ID
	item := InvoiceLineItem{
		ProductId: &id,
		Name:      p.Name,
		HsnCode:   p.HsnCode,
		Quantity:  quantity,
		UnitPrice: p.UnitPrice,
		ApplyIgst: p.ApplyIgst,
		ApplyCgst: p.ApplyCgst,
		ApplySgst: p.ApplySgst,
		IgstRate:  p.IgstRate,
		CgstRate:  p.CgstRate,
		SgstRate:  p.SgstRate,
	}
	if err := item.validate(-1); err != nil {
		return InvoiceLineItem{}, err
	}
	return item, nil
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {
	businessId, err := utils.RequireBusinessId(ctx)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	product := Product{
		BusinessId:    businessId,
		Name:          strings.TrimSpace(input.Name),
		Description:   input.Description,
		HsnCode:       strings.TrimSpace(input.HsnCode),
		Unit:          input.Unit,
		UnitPrice:     input.UnitPrice,
		ApplyIgst:     input.ApplyIgst,
		ApplyCgst:     input.ApplyCgst,
		ApplySgst:     input.ApplySgst,
		IgstRate:      input.IgstRate,
		CgstRate:      input.CgstRate,
		SgstRate:      input.SgstRate,
		IsService:     input.IsService,
		StockQuantity: input.StockQuantity,
		IsActive:      utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// UpdateProduct changes the product master. Stock only moves through documents.
func UpdateProduct(ctx context.Context, id int, input *NewProduct) (*Product, error) {
	businessId, err := utils.RequireBusinessId(ctx)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	product, err := utils.FetchModel[Product](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(product).Updates(map[string]interface{}{
		"Name":        strings.TrimSpace(input.Name),
		"Description": input.Description,
		"HsnCode":     strings.TrimSpace(input.HsnCode),
		"Unit":        input.Unit,
		"UnitPrice":   input.UnitPrice,
		"ApplyIgst":   input.ApplyIgst,
		"ApplyCgst":   input.ApplyCgst,
		"ApplySgst":   input.ApplySgst,
		"IgstRate":    input.IgstRate,
		"CgstRate":    input.CgstRate,
		"SgstRate":    input.SgstRate,
		"IsService":   input.IsService,
	}).Error
	if err != nil {
		return nil, err
	}
	return utils.FetchModel[Product](ctx, businessId, id)
}

func DeleteProduct(ctx context.Context, id int) (*Product, error) {
	businessId, err := utils.RequireBusinessId(ctx)
	if err != nil {
		return nil, err
	}

	result, err := utils.FetchModel[Product](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	count, err := utils.ResourceCountWhere[InvoiceItem](ctx, businessId, "product_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrResourceInUse
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

func GetProduct(ctx context.Context, id int) (*Product, error) {
	businessId, err := utils.RequireBusinessId(ctx)
	if err != nil {
		return nil, err
	}
	return utils.FetchModel[Product](ctx, businessId, id)
}

func GetProducts(ctx context.Context, name *string) ([]*Product, error) {
	businessId, err := utils.RequireBusinessId(ctx)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}

	var results []*Product
	if err := dbCtx.Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// adjustStock moves stock of the non-service products on items by direction*quantity.
// Taking stock out fails with ErrInsufficientStock rather than going negative.
func adjustStock(ctx context.Context, tx *gorm.DB, businessId string, items []InvoiceLineItem, direction int) error {
	if direction == 0 {
		return nil
	}
	for _, item := range items {
		if item.ProductId == nil || item.Quantity.IsZero() {
			continue
		}
		q := tx.WithContext(ctx).Model(&Product{}).
			Where("business_id = ? AND id = ? AND is_service = ?", businessId, *item.ProductId, false)
		var res *gorm.DB
		if direction < 0 {
			res = q.Where("stock_quantity >= ?", item.Quantity).
				Update("stock_quantity", gorm.Expr("stock_quantity - ?", item.Quantity))
		} else {
			res = q.Update("stock_quantity", gorm.Expr("stock_quantity + ?", item.Quantity))
		}
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 && direction < 0 {
			// a service product matches nothing above and is fine
			var product Product
			if err := tx.WithContext(ctx).Where("business_id = ? AND id = ?", businessId, *item.ProductId).Take(&product).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return utils.ErrorRecordNotFound
				}
				return err
			}
			if !product.IsService {
				return &ValidationError{
					Err:     ErrInsufficientStock,
					Details: fmt.Sprintf("%s has %s, needs %s", product.Name, product.StockQuantity.String(), item.Quantity.String()),
				}
			}
		}
	}
	return nil
}

// product import sheet columns
const (
	importColName = iota
	importColHsn
	importColUnit
	importColUnitPrice
	importColIgstRate
	importColCgstRate
	importColSgstRate
	importColStock
	importColCount
)

// ImportProductsFromXlsx creates one product per row of the first sheet, after a header row:
// name, hsn, unit, unit price, igst %, cgst %, sgst %, opening stock.
// A positive igst rate applies IGST; otherwise positive cgst/sgst rates apply CGST/SGST.
// Names that already exist are skipped and returned.
func ImportProductsFromXlsx(ctx context.Context, r io.Reader) (created int, skipped []string, err error) {
	businessId, err := utils.RequireBusinessId(ctx)
	if err != nil {
		return 0, nil, err
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return 0, nil, fmt.Errorf("unable to open Excel file: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return 0, nil, invalidInput("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return 0, nil, fmt.Errorf("unable to read sheet: %v", err)
	}

	inputs := make([]*NewProduct, 0, len(rows))
	for i, row := range rows {
		if i == 0 || len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		input, err := productFromRow(row)
		if err != nil {
			return 0, nil, invalidInput("row %d: %v", i+1, err)
		}
		inputs = append(inputs, input)
	}

	for _, input := range inputs {
		if _, err := CreateProduct(ctx, input); err != nil {
			if errors.Is(err, ErrDuplicateProductName) {
				skipped = append(skipped, input.Name)
				continue
			}
			config.LogError(config.GetLogger(), "Product", "ImportProductsFromXlsx", "CreateProduct", businessId, err)
			return created, skipped, err
		}
		created++
	}
	return created, skipped, nil
}

func productFromRow(row []string) (*NewProduct, error) {
	cells := make([]string, importColCount)
	copy(cells, row)
	decimalAt := func(col int, name string) (decimal.Decimal, error) {
		if strings.TrimSpace(cells[col]) == "" {
			return decimal.Zero, nil
		}
		d, err := utils.ParseDecimal(cells[col])
		if err != nil {
			return decimal.Zero, fmt.Errorf("could not parse %s: %v", name, err)
		}
		return d, nil
	}

	input := &NewProduct{
		Name:    strings.TrimSpace(cells[importColName]),
		HsnCode: strings.TrimSpace(cells[importColHsn]),
		Unit:    strings.TrimSpace(cells[importColUnit]),
	}
	var err error
	if input.UnitPrice, err = decimalAt(importColUnitPrice, "unit price"); err != nil {
		return nil, err
	}
	if input.IgstRate, err = decimalAt(importColIgstRate, "igst rate"); err != nil {
		return nil, err
	}
	if input.CgstRate, err = decimalAt(importColCgstRate, "cgst rate"); err != nil {
		return nil, err
	}
	if input.SgstRate, err = decimalAt(importColSgstRate, "sgst rate"); err != nil {
		return nil, err
	}
	if input.StockQuantity, err = decimalAt(importColStock, "stock"); err != nil {
		return nil, err
	}
	if input.IgstRate.IsPositive() {
		input.ApplyIgst = true
	} else {
		input.ApplyCgst = input.CgstRate.IsPositive()
		input.ApplySgst = input.SgstRate.IsPositive()
	}
	return input, nil
}
