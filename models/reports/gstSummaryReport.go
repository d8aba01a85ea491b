package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/invoiceflow/invoiceflow_backend/config"
	"github.com/invoiceflow/invoiceflow_backend/models"
	"github.com/invoiceflow/invoiceflow_backend/utils"
	"github.com/shopspring/decimal"
)

type GstSummaryResponse struct {
	DocumentType  models.DocumentType `json:"document_type"`
	DocumentCount int                 `json:"document_count"`
	Subtotal      decimal.Decimal     `json:"subtotal"`
	IgstAmount    decimal.Decimal     `json:"igst_amount"`
	CgstAmount    decimal.Decimal     `json:"cgst_amount"`
	SgstAmount    decimal.Decimal     `json:"sgst_amount"`
	TotalTax      decimal.Decimal     `json:"total_tax"`
	RoundOff      decimal.Decimal     `json:"round_off"`
	FinalTotal    decimal.Decimal     `json:"final_total"`
}

type HsnSummaryResponse struct {
	HsnCode      string          `json:"hsn_code"`
	Quantity     decimal.Decimal `json:"quantity"`
	TaxableValue decimal.Decimal `json:"taxable_value"`
	IgstAmount   decimal.Decimal `json:"igst_amount"`
	CgstAmount   decimal.Decimal `json:"cgst_amount"`
	SgstAmount   decimal.Decimal `json:"sgst_amount"`
	TotalTax     decimal.Decimal `json:"total_tax"`
}

// GstReport is what the summary endpoint and the xlsx export show.
type GstReport struct {
	FromDate  time.Time             `json:"from_date"`
	ToDate    time.Time             `json:"to_date"`
	Documents []*GstSummaryResponse `json:"documents"`
	Hsn       []*HsnSummaryResponse `json:"hsn"`
}

// GetGstSummaryReport totals issued documents per type between fromDate and toDate (inclusive days).
func GetGstSummaryReport(ctx context.Context, fromDate time.Time, toDate time.Time) ([]*GstSummaryResponse, error) {
	businessId, err := utils.RequireBusinessId(ctx)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	defer logSlowReport(ctx, "GstSummary", started, nil)

	sql := `
SELECT
    document_type,
    COUNT(id) AS document_count,
    SUM(subtotal) AS subtotal,
    SUM(igst_amount) AS igst_amount,
    SUM(cgst_amount) AS cgst_amount,
    SUM(sgst_amount) AS sgst_amount,
    SUM(total_tax) AS total_tax,
    SUM(round_off) AS round_off,
    SUM(final_total) AS final_total
FROM
    invoices
WHERE
    business_id = @businessId
    AND status = @status
    AND invoice_date >= @fromDate AND invoice_date < @toDate
GROUP BY document_type
ORDER BY document_type
`
	var results []*GstSummaryResponse
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, map[string]interface{}{
		"businessId": businessId,
		"status":     models.InvoiceStatusIssued,
		"fromDate":   fromDate,
		"toDate":     toDate.AddDate(0, 0, 1),
	}).Scan(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// GetHsnSummaryReport groups line items of issued documents by HSN/SAC code.
// documentType nil means invoices only.
func GetHsnSummaryReport(ctx context.Context, fromDate time.Time, toDate time.Time, documentType *models.DocumentType) ([]*HsnSummaryResponse, error) {
	businessId, err := utils.RequireBusinessId(ctx)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	defer logSlowReport(ctx, "HsnSummary", started, nil)

	docType := utils.DereferencePtr(documentType, models.DocumentTypeInvoice)
	if !docType.IsValid() {
		return nil, models.ErrUnknownDocumentType
	}

	sqlT := `
SELECT
    COALESCE(it.hsn_code, '') AS hsn_code,
    SUM(it.quantity) AS quantity,
    SUM(it.amount) AS taxable_value,
    SUM(it.igst_amount) AS igst_amount,
    SUM(it.cgst_amount) AS cgst_amount,
    SUM(it.sgst_amount) AS sgst_amount,
    SUM(it.igst_amount + it.cgst_amount + it.sgst_amount) AS total_tax
FROM
    invoice_items AS it
        JOIN
    invoices AS iv ON iv.id = it.invoice_id
WHERE
    iv.business_id = @businessId
    AND iv.status = @status
    AND iv.invoice_date >= @fromDate AND iv.invoice_date < @toDate
    {{- if .documentType }} AND iv.document_type = @documentType {{- end }}
GROUP BY COALESCE(it.hsn_code, '')
ORDER BY hsn_code
`
	sql, err := utils.ExecTemplate(sqlT, map[string]interface{}{
		"documentType": docType,
	})
	if err != nil {
		return nil, err
	}

	var results []*HsnSummaryResponse
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, map[string]interface{}{
		"businessId":   businessId,
		"status":       models.InvoiceStatusIssued,
		"fromDate":     fromDate,
		"toDate":       toDate.AddDate(0, 0, 1),
		"documentType": docType,
	}).Scan(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// GetGstReport combines both summaries and is cached in Redis when ENABLE_REPORT_CACHE is set.
func GetGstReport(ctx context.Context, fromDate time.Time, toDate time.Time) (*GstReport, error) {
	businessId, err := utils.RequireBusinessId(ctx)
	if err != nil {
		return nil, err
	}
	if toDate.Before(fromDate) {
		return nil, &models.ValidationError{Err: models.ErrInvalidInput, Details: "to date is before from date"}
	}
	cacheKey := fmt.Sprintf("GstReport:%s:%s:%s", businessId, models.DateKey(fromDate), models.DateKey(toDate))
	var cached GstReport
	if cacheGet(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	documents, err := GetGstSummaryReport(ctx, fromDate, toDate)
	if err != nil {
		return nil, err
	}
	hsn, err := GetHsnSummaryReport(ctx, fromDate, toDate, nil)
	if err != nil {
		return nil, err
	}
	report := &GstReport{FromDate: fromDate, ToDate: toDate, Documents: documents, Hsn: hsn}
	cacheSet(ctx, cacheKey, report)
	return report, nil
}
