package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var decimalOneHundred = decimal.NewFromInt(100)

const (
	// decimal(20,4) holds 16 integer digits
	maxAmountIntegerDigits = 16
	maxFractionDigits      = 10
	maxRateIntegerDigits   = 3
)

// InvoiceLineItem is one taxable line. Rates are percentages.
type InvoiceLineItem struct {
	ProductId *int            `gorm:"index" json:"product_id,omitempty"`
	Name      string          `gorm:"size:100" json:"name,omitempty"`
	HsnCode   string          `gorm:"size:20" json:"hsn_code,omitempty"`
	Quantity  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	ApplyIgst bool            `gorm:"not null" json:"apply_igst"`
	ApplyCgst bool            `gorm:"not null" json:"apply_cgst"`
	ApplySgst bool            `gorm:"not null" json:"apply_sgst"`
	IgstRate  decimal.Decimal `gorm:"type:decimal(7,4);not null" json:"igst_rate"`
	CgstRate  decimal.Decimal `gorm:"type:decimal(7,4);not null" json:"cgst_rate"`
	SgstRate  decimal.Decimal `gorm:"type:decimal(7,4);not null" json:"sgst_rate"`
}

// InvoiceTotals is derived from line items and never edited directly.
type InvoiceTotals struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	IgstAmount decimal.Decimal `json:"igst_amount"`
	CgstAmount decimal.Decimal `json:"cgst_amount"`
	SgstAmount decimal.Decimal `json:"sgst_amount"`
	TotalTax   decimal.Decimal `json:"total_tax"`
	Total      decimal.Decimal `json:"total"`
	RoundOff   decimal.Decimal `json:"round_off"`
	FinalTotal decimal.Decimal `json:"final_total"`
}

// LineTax holds the unrounded amounts of one line.
type LineTax struct {
	Amount     decimal.Decimal
	IgstAmount decimal.Decimal
	CgstAmount decimal.Decimal
	SgstAmount decimal.Decimal
}

// NewInvoiceLineItem builds a line item from every tax field; negative values are rejected.
func NewInvoiceLineItem(quantity, unitPrice decimal.Decimal, applyIgst, applyCgst, applySgst bool, igstRate, cgstRate, sgstRate decimal.Decimal) (InvoiceLineItem, error) {
	item := InvoiceLineItem{
		Quantity:  quantity,
		UnitPrice: unitPrice,
		ApplyIgst: applyIgst,
		ApplyCgst: applyCgst,
		ApplySgst: applySgst,
		IgstRate:  igstRate,
		CgstRate:  cgstRate,
		SgstRate:  sgstRate,
	}
	if err := item.validate(-1); err != nil {
		return InvoiceLineItem{}, err
	}
	return item, nil
}

func (item InvoiceLineItem) validate(index int) error {
	field := func(name string) string {
		if index < 0 {
			return name
		}
		return fmt.Sprintf("items[%d].%s", index, name)
	}
	checks := []struct {
		name          string
		value         decimal.Decimal
		integerDigits int
		isRate        bool
	}{
		{"quantity", item.Quantity, maxAmountIntegerDigits, false},
		{"unit_price", item.UnitPrice, maxAmountIntegerDigits, false},
		{"igst_rate", item.IgstRate, maxRateIntegerDigits, true},
		{"cgst_rate", item.CgstRate, maxRateIntegerDigits, true},
		{"sgst_rate", item.SgstRate, maxRateIntegerDigits, true},
	}
	for _, c := range checks {
		if c.value.IsNegative() {
			return invalidInput("%s must not be negative", field(c.name))
		}
		// size is checked on digits and exponent only; comparing or printing a huge
		// exponent expands it digit by digit
		if integerDigits(c.value) > c.integerDigits || fractionDigits(c.value) > maxFractionDigits {
			return invalidInput("%s is out of range", field(c.name))
		}
		if c.isRate && c.value.GreaterThan(decimalOneHundred) {
			return invalidInput("%s must not exceed 100, got %s", field(c.name), c.value.String())
		}
	}
	return nil
}

func integerDigits(d decimal.Decimal) int {
	if d.IsZero() {
		return 0
	}
	return d.NumDigits() + int(d.Exponent())
}

func fractionDigits(d decimal.Decimal) int {
	if d.Exponent() >= 0 {
		return 0
	}
	return -int(d.Exponent())
}

// Tax returns the line amount and the tax of every scheme whose flag is set.
func (item InvoiceLineItem) Tax() LineTax {
	amount := item.Quantity.Mul(item.UnitPrice)
	tax := LineTax{
		Amount:     amount,
		IgstAmount: decimal.Zero,
		CgstAmount: decimal.Zero,
		SgstAmount: decimal.Zero,
	}
	if item.ApplyIgst {
		tax.IgstAmount = amount.Mul(item.IgstRate).Div(decimalOneHundred)
	}
	if item.ApplyCgst {
		tax.CgstAmount = amount.Mul(item.CgstRate).Div(decimalOneHundred)
	}
	if item.ApplySgst {
		tax.SgstAmount = amount.Mul(item.SgstRate).Div(decimalOneHundred)
	}
	return tax
}

// ComputeInvoiceTotals sums the items without intermediate rounding. With applyRounding
// the final total is rounded to the nearest whole unit (half away from zero) and the
// signed difference is reported as RoundOff.
func ComputeInvoiceTotals(items []InvoiceLineItem, applyRounding bool) (InvoiceTotals, error) {
	totals := InvoiceTotals{
		Subtotal:   decimal.Zero,
		IgstAmount: decimal.Zero,
		CgstAmount: decimal.Zero,
		SgstAmount: decimal.Zero,
	}
	for i, item := range items {
		if err := item.validate(i); err != nil {
			return InvoiceTotals{}, err
		}
		tax := item.Tax()
		totals.Subtotal = totals.Subtotal.Add(tax.Amount)
		totals.IgstAmount = totals.IgstAmount.Add(tax.IgstAmount)
		totals.CgstAmount = totals.CgstAmount.Add(tax.CgstAmount)
		totals.SgstAmount = totals.SgstAmount.Add(tax.SgstAmount)
	}
	totals.TotalTax = totals.IgstAmount.Add(totals.CgstAmount).Add(totals.SgstAmount)
	totals.Total = totals.Subtotal.Add(totals.TotalTax)

	if applyRounding {
		totals.FinalTotal = totals.Total.Round(0)
		totals.RoundOff = totals.FinalTotal.Sub(totals.Total)
	} else {
		totals.FinalTotal = totals.Total
		totals.RoundOff = decimal.Zero
	}
	return totals, nil
}

// ValidateTaxScheme rejects an item that applies IGST together with CGST or SGST.
func ValidateTaxScheme(item InvoiceLineItem) error {
	if item.ApplyIgst && (item.ApplyCgst || item.ApplySgst) {
		return &ValidationError{Err: ErrMixedTaxScheme, Details: item.describe()}
	}
	return nil
}

func (item InvoiceLineItem) describe() string {
	if item.Name != "" {
		return item.Name
	}
	if item.HsnCode != "" {
		return "hsn " + item.HsnCode
	}
	return "line item"
}

// NewLineItem is the request shape of a line item. Every tax field must be present.
type NewLineItem struct {
	ProductId *int             `json:"product_id"`
	Name      string           `json:"name" binding:"max=100"`
	HsnCode   string           `json:"hsn_code" binding:"max=20"`
	Quantity  *decimal.Decimal `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
	ApplyIgst *bool            `json:"apply_igst"`
	ApplyCgst *bool            `json:"apply_cgst"`
	ApplySgst *bool            `json:"apply_sgst"`
	IgstRate  *decimal.Decimal `json:"igst_rate"`
	CgstRate  *decimal.Decimal `json:"cgst_rate"`
	SgstRate  *decimal.Decimal `json:"sgst_rate"`
}

// ToLineItem rejects partial records instead of defaulting missing fields.
func (input NewLineItem) ToLineItem(index int) (InvoiceLineItem, error) {
	missing := ""
	switch {
	case input.Quantity == nil:
		missing = "quantity"
	case input.UnitPrice == nil:
		missing = "unit_price"
	case input.ApplyIgst == nil:
		missing = "apply_igst"
	case input.ApplyCgst == nil:
		missing = "apply_cgst"
	case input.ApplySgst == nil:
		missing = "apply_sgst"
	case input.IgstRate == nil:
		missing = "igst_rate"
	case input.CgstRate == nil:
		missing = "cgst_rate"
	case input.SgstRate == nil:
		missing = "sgst_rate"
	}
	if missing != "" {
		return InvoiceLineItem{}, invalidInput("items[%d].%s is required", index, missing)
	}
	item := InvoiceLineItem{
		ProductId: input.ProductId,
		Name:      input.Name,
		HsnCode:   input.HsnCode,
		Quantity:  *input.Quantity,
		UnitPrice: *input.UnitPrice,
		ApplyIgst: *input.ApplyIgst,
		ApplyCgst: *input.ApplyCgst,
		ApplySgst: *input.ApplySgst,
		IgstRate:  *input.IgstRate,
		CgstRate:  *input.CgstRate,
		SgstRate:  *input.SgstRate,
	}
	if err := item.validate(index); err != nil {
		return InvoiceLineItem{}, err
	}
	return item, nil
}

// ToLineItems converts a request, stopping at the first bad item.
func ToLineItems(inputs []NewLineItem) ([]InvoiceLineItem, error) {
	items := make([]InvoiceLineItem, 0, len(inputs))
	for i, in := range inputs {
		item, err := in.ToLineItem(i)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
