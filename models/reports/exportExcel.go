package reports

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/invoiceflow/invoiceflow_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	gstSheetName = "GST Summary"
	hsnSheetName = "HSN Summary"
)

type ExcelExporter interface {
	GetCellValues() []interface{}
}

// money cells are rounded to two places here and nowhere else
func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func (r GstSummaryResponse) GetCellValues() []interface{} {
	return []interface{}{
		string(r.DocumentType),
		r.DocumentCount,
		money(r.Subtotal),
		money(r.IgstAmount),
		money(r.CgstAmount),
		money(r.SgstAmount),
		money(r.TotalTax),
		money(r.RoundOff),
		money(r.FinalTotal),
	}
}

func (r HsnSummaryResponse) GetCellValues() []interface{} {
	return []interface{}{
		r.HsnCode,
		r.Quantity.InexactFloat64(),
		money(r.TaxableValue),
		money(r.IgstAmount),
		money(r.CgstAmount),
		money(r.SgstAmount),
		money(r.TotalTax),
	}
}

func writeSheet(f *excelize.File, sheetName string, data []ExcelExporter, headings ...string) error {
	if _, err := f.NewSheet(sheetName); err != nil {
		return err
	}
	for i, h := range headings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return err
		}
	}
	for rowNo, d := range data {
		for col, value := range d.GetCellValues() {
			cell, err := excelize.CoordinatesToCellName(col+1, rowNo+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// ExportGstReportExcel renders both summaries as an xlsx workbook.
func ExportGstReportExcel(report *GstReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	docs := make([]ExcelExporter, 0, len(report.Documents))
	for _, d := range report.Documents {
		docs = append(docs, *d)
	}
	if err := writeSheet(f, gstSheetName, docs,
		"DocumentType", "Documents", "Subtotal", "IGST", "CGST", "SGST", "TotalTax", "RoundOff", "FinalTotal"); err != nil {
		return nil, err
	}

	hsn := make([]ExcelExporter, 0, len(report.Hsn))
	for _, h := range report.Hsn {
		hsn = append(hsn, *h)
	}
	if err := writeSheet(f, hsnSheetName, hsn,
		"HSN/SAC", "Quantity", "TaxableValue", "IGST", "CGST", "SGST", "TotalTax"); err != nil {
		return nil, err
	}

	// excelize starts with an empty Sheet1
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}
	if idx, err := f.GetSheetIndex(gstSheetName); err == nil {
		f.SetActiveSheet(idx)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExportFileName is the download and object name of a report.
func ExportFileName(businessId string, fromDate time.Time, toDate time.Time) string {
	return fmt.Sprintf("gst-summary_%s_%s_%s.xlsx", businessId, fromDate.Format("20060102"), toDate.Format("20060102"))
}

// UploadGstReportExcel stores the workbook under reports/ in GCS_BUCKET and returns the gs:// URI.
func UploadGstReportExcel(ctx context.Context, businessId string, report *GstReport, data []byte) (string, error) {
	objectName := "reports/" + ExportFileName(businessId, report.FromDate, report.ToDate)
	return utils.UploadBytesToGCS(ctx, objectName, data, utils.ContentTypeXlsx)
}
