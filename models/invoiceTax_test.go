package models_test

import (
	"errors"
	"testing"

	"github.com/invoiceflow/invoiceflow_backend/models"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func igstItem(qty, price, rate string) models.InvoiceLineItem {
	return models.InvoiceLineItem{
		Quantity:  dec(qty),
		UnitPrice: dec(price),
		ApplyIgst: true,
		IgstRate:  dec(rate),
	}
}

func intraStateItem(qty, price, cgst, sgst string) models.InvoiceLineItem {
	return models.InvoiceLineItem{
		Quantity:  dec(qty),
		UnitPrice: dec(price),
		ApplyCgst: true,
		ApplySgst: true,
		CgstRate:  dec(cgst),
		SgstRate:  dec(sgst),
	}
}

func TestComputeInvoiceTotalsExample(t *testing.T) {
	items := []models.InvoiceLineItem{
		igstItem("2", "75000", "18"),
		igstItem("1", "45000", "12"),
	}
	totals, err := models.ComputeInvoiceTotals(items, true)
	if err != nil {
		t.Fatalf("ComputeInvoiceTotals: %v", err)
	}
	want := map[string]struct{ got, want decimal.Decimal }{
		"subtotal":    {totals.Subtotal, dec("195000")},
		"igst":        {totals.IgstAmount, dec("32400")},
		"cgst":        {totals.CgstAmount, decimal.Zero},
		"sgst":        {totals.SgstAmount, decimal.Zero},
		"total_tax":   {totals.TotalTax, dec("32400")},
		"total":       {totals.Total, dec("227400")},
		"final_total": {totals.FinalTotal, dec("227400")},
		"round_off":   {totals.RoundOff, decimal.Zero},
	}
	for name, c := range want {
		if !c.got.Equal(c.want) {
			t.Fatalf("%s expected %s, got %s", name, c.want, c.got)
		}
	}
}

func TestComputeInvoiceTotalsTotalIsSumOfParts(t *testing.T) {
	cases := [][]models.InvoiceLineItem{
		nil,
		{igstItem("3", "33.33", "18")},
		{intraStateItem("1.5", "99.99", "9", "9"), igstItem("7", "0.07", "5")},
		{intraStateItem("0", "100", "6", "6")},
		// mixed flags are summed as given
		{{Quantity: dec("2"), UnitPrice: dec("10.01"), ApplyIgst: true, ApplyCgst: true, ApplySgst: true,
			IgstRate: dec("18"), CgstRate: dec("9"), SgstRate: dec("9")}},
	}
	for i, items := range cases {
		for _, rounding := range []bool{false, true} {
			totals, err := models.ComputeInvoiceTotals(items, rounding)
			if err != nil {
				t.Fatalf("case %d: %v", i, err)
			}
			sum := totals.Subtotal.Add(totals.IgstAmount).Add(totals.CgstAmount).Add(totals.SgstAmount)
			if !totals.Total.Equal(sum) {
				t.Fatalf("case %d: total %s != parts %s", i, totals.Total, sum)
			}
			if !totals.TotalTax.Equal(totals.IgstAmount.Add(totals.CgstAmount).Add(totals.SgstAmount)) {
				t.Fatalf("case %d: total tax mismatch", i)
			}
		}
	}
}

func TestComputeInvoiceTotalsNoFlagsNoTax(t *testing.T) {
	item := models.InvoiceLineItem{
		Quantity:  dec("4"),
		UnitPrice: dec("250.50"),
		IgstRate:  dec("18"),
		CgstRate:  dec("9"),
		SgstRate:  dec("9"),
	}
	totals, err := models.ComputeInvoiceTotals([]models.InvoiceLineItem{item, igstItem("1", "100", "5")}, false)
	if err != nil {
		t.Fatalf("ComputeInvoiceTotals: %v", err)
	}
	if !totals.IgstAmount.Equal(dec("5")) {
		t.Fatalf("expected only the flagged item to be taxed, igst=%s", totals.IgstAmount)
	}
	if !totals.CgstAmount.IsZero() || !totals.SgstAmount.IsZero() {
		t.Fatalf("expected zero cgst/sgst, got %s/%s", totals.CgstAmount, totals.SgstAmount)
	}
	tax := item.Tax()
	if !tax.IgstAmount.IsZero() || !tax.CgstAmount.IsZero() || !tax.SgstAmount.IsZero() {
		t.Fatalf("unflagged item produced tax: %+v", tax)
	}
}

func TestComputeInvoiceTotalsRounding(t *testing.T) {
	cases := []struct {
		items    []models.InvoiceLineItem
		final    string
		roundOff string
	}{
		{[]models.InvoiceLineItem{intraStateItem("1", "100.40", "0", "0")}, "100", "-0.4"},
		{[]models.InvoiceLineItem{intraStateItem("1", "100.50", "0", "0")}, "101", "0.5"},
		{[]models.InvoiceLineItem{intraStateItem("3", "33.33", "9", "9")}, "118", "0.0118"},
		{[]models.InvoiceLineItem{igstItem("1", "999.99", "0")}, "1000", "0.01"},
	}
	for _, tc := range cases {
		totals, err := models.ComputeInvoiceTotals(tc.items, true)
		if err != nil {
			t.Fatalf("ComputeInvoiceTotals: %v", err)
		}
		if !totals.FinalTotal.Equal(dec(tc.final)) {
			t.Fatalf("expected final %s, got %s (total %s)", tc.final, totals.FinalTotal, totals.Total)
		}
		if !totals.FinalTotal.Equal(totals.FinalTotal.Truncate(0)) {
			t.Fatalf("final total %s is not whole", totals.FinalTotal)
		}
		if !totals.RoundOff.Equal(dec(tc.roundOff)) {
			t.Fatalf("expected round off %s, got %s", tc.roundOff, totals.RoundOff)
		}
		if !totals.RoundOff.Equal(totals.FinalTotal.Sub(totals.Total)) {
			t.Fatalf("round off %s != final - total", totals.RoundOff)
		}

		unrounded, _ := models.ComputeInvoiceTotals(tc.items, false)
		if !unrounded.FinalTotal.Equal(unrounded.Total) || !unrounded.RoundOff.IsZero() {
			t.Fatalf("without rounding expected final == total and zero round off, got %+v", unrounded)
		}
	}
}

func TestComputeInvoiceTotalsRejectsNegatives(t *testing.T) {
	cases := []models.InvoiceLineItem{
		igstItem("-1", "10", "18"),
		igstItem("1", "-10", "18"),
		igstItem("1", "10", "-18"),
		intraStateItem("1", "10", "9", "-9"),
	}
	for i, item := range cases {
		_, err := models.ComputeInvoiceTotals([]models.InvoiceLineItem{igstItem("1", "1", "0"), item}, false)
		if !errors.Is(err, models.ErrInvalidInput) {
			t.Fatalf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
		var verr *models.ValidationError
		if !errors.As(err, &verr) || verr.Details == "" {
			t.Fatalf("case %d: expected details on the validation error, got %v", i, err)
		}
	}
}

func TestComputeInvoiceTotalsRange(t *testing.T) {
	cases := []struct {
		name  string
		item  models.InvoiceLineItem
		valid bool
	}{
		{"16 digit quantity", igstItem("9999999999999999", "1", "18"), true},
		{"16 digit price with fraction", igstItem("1", "1234567890123456.7891", "18"), true},
		{"rate of 100", igstItem("1", "10", "100"), true},
		{"17 digit quantity", igstItem("10000000000000000", "1", "18"), false},
		{"huge quantity exponent", igstItem("1e100000000", "1", "18"), false},
		{"huge price exponent", igstItem("1", "5e2000000000", "18"), false},
		{"tiny price exponent", igstItem("1", "1e-100000000", "18"), false},
		{"rate above 100", igstItem("1", "10", "100.5"), false},
		{"huge rate exponent", intraStateItem("1", "10", "9", "9e900000000"), false},
	}
	for _, tc := range cases {
		_, err := models.ComputeInvoiceTotals([]models.InvoiceLineItem{tc.item}, true)
		if tc.valid && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.valid && !errors.Is(err, models.ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", tc.name, err)
		}
	}
}

func TestNewInvoiceLineItem(t *testing.T) {
	item, err := models.NewInvoiceLineItem(dec("2"), dec("50"), false, true, true, decimal.Zero, dec("9"), dec("9"))
	if err != nil {
		t.Fatalf("NewInvoiceLineItem: %v", err)
	}
	tax := item.Tax()
	if !tax.Amount.Equal(dec("100")) || !tax.CgstAmount.Equal(dec("9")) || !tax.SgstAmount.Equal(dec("9")) {
		t.Fatalf("unexpected tax %+v", tax)
	}
	if _, err := models.NewInvoiceLineItem(dec("-2"), dec("50"), false, false, false, decimal.Zero, decimal.Zero, decimal.Zero); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestToLineItemRequiresEveryField(t *testing.T) {
	q, p, r := dec("1"), dec("10"), dec("18")
	yes, no := true, false
	full := models.NewLineItem{
		Quantity: &q, UnitPrice: &p,
		ApplyIgst: &yes, ApplyCgst: &no, ApplySgst: &no,
		IgstRate: &r, CgstRate: &r, SgstRate: &r,
	}
	if _, err := full.ToLineItem(0); err != nil {
		t.Fatalf("complete item rejected: %v", err)
	}

	strip := []func(*models.NewLineItem){
		func(i *models.NewLineItem) { i.Quantity = nil },
		func(i *models.NewLineItem) { i.UnitPrice = nil },
		func(i *models.NewLineItem) { i.ApplyIgst = nil },
		func(i *models.NewLineItem) { i.ApplyCgst = nil },
		func(i *models.NewLineItem) { i.ApplySgst = nil },
		func(i *models.NewLineItem) { i.IgstRate = nil },
		func(i *models.NewLineItem) { i.CgstRate = nil },
		func(i *models.NewLineItem) { i.SgstRate = nil },
	}
	for i, s := range strip {
		partial := full
		s(&partial)
		if _, err := models.ToLineItems([]models.NewLineItem{full, partial}); !errors.Is(err, models.ErrInvalidInput) {
			t.Fatalf("case %d: expected ErrInvalidInput for partial item, got %v", i, err)
		}
	}
}

func TestValidateTaxScheme(t *testing.T) {
	cases := []struct {
		item  models.InvoiceLineItem
		mixed bool
	}{
		{igstItem("1", "1", "18"), false},
		{intraStateItem("1", "1", "9", "9"), false},
		{models.InvoiceLineItem{ApplyIgst: true, ApplyCgst: true}, true},
		{models.InvoiceLineItem{ApplyIgst: true, ApplySgst: true, Name: "Widget"}, true},
		{models.InvoiceLineItem{}, false},
	}
	for i, tc := range cases {
		err := models.ValidateTaxScheme(tc.item)
		if tc.mixed != errors.Is(err, models.ErrMixedTaxScheme) {
			t.Fatalf("case %d: mixed=%v, got %v", i, tc.mixed, err)
		}
	}
}
