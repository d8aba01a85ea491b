package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/invoiceflow/invoiceflow_backend/config"
	"github.com/invoiceflow/invoiceflow_backend/models"
	"github.com/shopspring/decimal"
)

func setupServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := config.OpenDatabase(config.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := conn.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := models.AutoMigrateModels(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	prev := config.GetDB()
	config.SetDB(conn)
	t.Cleanup(func() {
		_ = sqlDB.Close()
		config.SetDB(prev)
	})
	return newRouter(config.GetLogger(), models.NewMemoryCounterStore(false))
}

func doRequest(t *testing.T, r http.Handler, method, path, businessId string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if businessId != "" {
		req.Header.Set("x-business-id", businessId)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

var exampleItems = []map[string]interface{}{
	{"quantity": "2", "unit_price": "75000", "apply_igst": true, "apply_cgst": false, "apply_sgst": false, "igst_rate": "18", "cgst_rate": "0", "sgst_rate": "0"},
	{"quantity": "1", "unit_price": "45000", "apply_igst": true, "apply_cgst": false, "apply_sgst": false, "igst_rate": "12", "cgst_rate": "0", "sgst_rate": "0"},
}

func TestHealthzAndSession(t *testing.T) {
	r := setupServer(t)

	if w := doRequest(t, r, http.MethodGet, "/healthz", "", nil); w.Code != http.StatusNoContent {
		t.Fatalf("healthz expected 204, got %d", w.Code)
	}
	w := doRequest(t, r, http.MethodGet, "/api/invoices", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing business expected 400, got %d", w.Code)
	}
	if w.Header().Get("x-correlation-id") == "" {
		t.Fatalf("expected a correlation id on every response")
	}
	if w := doRequest(t, r, http.MethodGet, "/nope", "biz-1", nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown route expected 404, got %d", w.Code)
	}
}

func TestTaxTotalsEndpoint(t *testing.T) {
	r := setupServer(t)

	w := doRequest(t, r, http.MethodPost, "/api/tax/totals", "biz-1", map[string]interface{}{
		"apply_rounding": true,
		"items":          exampleItems,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Totals models.InvoiceTotals `json:"totals"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Totals.Total.Equal(decimal.NewFromInt(227400)) || !resp.Totals.RoundOff.IsZero() {
		t.Fatalf("unexpected totals %+v", resp.Totals)
	}

	partial := []map[string]interface{}{{"quantity": "1", "unit_price": "10"}}
	if w := doRequest(t, r, http.MethodPost, "/api/tax/totals", "biz-1", map[string]interface{}{"items": partial}); w.Code != http.StatusBadRequest {
		t.Fatalf("partial item expected 400, got %d", w.Code)
	}
	negative := []map[string]interface{}{{"quantity": "-1", "unit_price": "10", "apply_igst": false, "apply_cgst": false, "apply_sgst": false, "igst_rate": "0", "cgst_rate": "0", "sgst_rate": "0"}}
	if w := doRequest(t, r, http.MethodPost, "/api/tax/totals", "biz-1", map[string]interface{}{"items": negative}); w.Code != http.StatusBadRequest {
		t.Fatalf("negative quantity expected 400, got %d", w.Code)
	}
	huge := []map[string]interface{}{{"quantity": "1e100000000", "unit_price": "10", "apply_igst": true, "apply_cgst": false, "apply_sgst": false, "igst_rate": "18", "cgst_rate": "0", "sgst_rate": "0"}}
	if w := doRequest(t, r, http.MethodPost, "/api/tax/totals", "biz-1", map[string]interface{}{"items": huge}); w.Code != http.StatusBadRequest {
		t.Fatalf("out of range quantity expected 400, got %d", w.Code)
	}
}

func TestInvoiceEndpoints(t *testing.T) {
	r := setupServer(t)

	w := doRequest(t, r, http.MethodGet, "/api/documents/next-number?type=invoice&date=2024-05-01", "biz-1", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "INV010520240001") {
		t.Fatalf("preview expected INV010520240001, got %d %s", w.Code, w.Body.String())
	}

	body := map[string]interface{}{
		"document_type": "invoice",
		"invoice_date":  "2024-05-01",
		"items":         exampleItems,
	}
	w = doRequest(t, r, http.MethodPost, "/api/invoices", "biz-1", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created models.Invoice
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.InvoiceNumber != "INV010520240001" || !created.Amount.Equal(decimal.NewFromInt(227400)) {
		t.Fatalf("unexpected invoice %s amount %s", created.InvoiceNumber, created.Amount)
	}

	w = doRequest(t, r, http.MethodGet, "/api/documents/next-number?date=2024-05-01", "biz-1", nil)
	if !strings.Contains(w.Body.String(), "INV010520240002") {
		t.Fatalf("preview after create expected INV010520240002, got %s", w.Body.String())
	}

	path := fmt.Sprintf("/api/invoices/%d", created.ID)
	if w := doRequest(t, r, http.MethodGet, path, "biz-1", nil); w.Code != http.StatusOK {
		t.Fatalf("get expected 200, got %d", w.Code)
	}
	if w := doRequest(t, r, http.MethodGet, path, "biz-2", nil); w.Code != http.StatusNotFound {
		t.Fatalf("other business expected 404, got %d", w.Code)
	}
	if w := doRequest(t, r, http.MethodPost, path+"/cancel", "biz-1", nil); w.Code != http.StatusOK {
		t.Fatalf("cancel expected 200, got %d", w.Code)
	}
	if w := doRequest(t, r, http.MethodPost, path+"/cancel", "biz-1", nil); w.Code != http.StatusConflict {
		t.Fatalf("second cancel expected 409, got %d", w.Code)
	}

	body["document_type"] = "receipt"
	if w := doRequest(t, r, http.MethodPost, "/api/invoices", "biz-1", body); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown type expected 400, got %d", w.Code)
	}
	body["document_type"] = "invoice"
	body["invoice_date"] = "01/05/2024"
	if w := doRequest(t, r, http.MethodPost, "/api/invoices", "biz-1", body); w.Code != http.StatusBadRequest {
		t.Fatalf("bad date expected 400, got %d", w.Code)
	}

	w = doRequest(t, r, http.MethodGet, "/api/invoices?status=Cancelled", "biz-1", nil)
	var list models.InvoiceConnection
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil || len(list.Edges) != 1 {
		t.Fatalf("expected one cancelled invoice, got %s", w.Body.String())
	}
	if w := doRequest(t, r, http.MethodGet, "/api/invoices?limit=0", "biz-1", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("limit=0 expected 400, got %d", w.Code)
	}
}

func TestCreateInvoiceIdempotencyKey(t *testing.T) {
	r := setupServer(t)

	post := func(key string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(map[string]interface{}{
			"document_type": "invoice",
			"invoice_date":  "2024-05-01",
			"items":         exampleItems,
		}); err != nil {
			t.Fatalf("encode body: %v", err)
		}
		req := httptest.NewRequest(http.MethodPost, "/api/invoices", &buf)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-business-id", "biz-1")
		req.Header.Set("Idempotency-Key", key)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	if w := post(strings.Repeat("x", 256)); w.Code != http.StatusBadRequest {
		t.Fatalf("over-long key expected 400, got %d: %s", w.Code, w.Body.String())
	}

	first := post("submit-42")
	if first.Code != http.StatusCreated {
		t.Fatalf("first submit expected 201, got %d: %s", first.Code, first.Body.String())
	}
	second := post("submit-42")
	if second.Code != http.StatusOK {
		t.Fatalf("replayed submit expected 200, got %d: %s", second.Code, second.Body.String())
	}
	var a, b models.Invoice
	if err := json.Unmarshal(first.Body.Bytes(), &a); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := json.Unmarshal(second.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.ID != b.ID || b.InvoiceNumber != "INV010520240001" {
		t.Fatalf("replay returned %d/%s, want %d/INV010520240001", b.ID, b.InvoiceNumber, a.ID)
	}

	w := doRequest(t, r, http.MethodGet, "/api/documents/next-number?date=2024-05-01", "biz-1", nil)
	if !strings.Contains(w.Body.String(), "INV010520240002") {
		t.Fatalf("replay must not take a number, preview got %s", w.Body.String())
	}
}

func TestSettingsAndProductEndpoints(t *testing.T) {
	r := setupServer(t)

	w := doRequest(t, r, http.MethodPut, "/api/settings/numbering", "biz-1", map[string]interface{}{
		"invoice_prefix":    "bill",
		"round_off_default": false,
	})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"invoice_prefix":"BIL"`) {
		t.Fatalf("settings update got %d %s", w.Code, w.Body.String())
	}
	if w := doRequest(t, r, http.MethodPut, "/api/settings/numbering", "biz-1", map[string]interface{}{
		"invoice_prefix":    "b1",
		"round_off_default": false,
	}); w.Code != http.StatusBadRequest {
		t.Fatalf("malformed prefix expected 400, got %d", w.Code)
	}

	w = doRequest(t, r, http.MethodPost, "/api/products", "biz-1", map[string]interface{}{
		"name": "Router", "hsn_code": "8517", "unit_price": "2500",
		"apply_cgst": true, "apply_sgst": true, "cgst_rate": "9", "sgst_rate": "9",
		"stock_quantity": "3",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create product expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var product models.Product
	if err := json.Unmarshal(w.Body.Bytes(), &product); err != nil {
		t.Fatalf("decode: %v", err)
	}
	w = doRequest(t, r, http.MethodPost, "/api/products", "biz-1", map[string]interface{}{"name": "Router"})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate product expected 409, got %d", w.Code)
	}

	w = doRequest(t, r, http.MethodGet, fmt.Sprintf("/api/products/%d/line-item?quantity=2", product.ID), "biz-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("line item expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var item models.InvoiceLineItem
	if err := json.Unmarshal(w.Body.Bytes(), &item); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !item.Quantity.Equal(decimal.NewFromInt(2)) || !item.CgstRate.Equal(decimal.NewFromInt(9)) || !item.ApplySgst {
		t.Fatalf("unexpected line item %+v", item)
	}

	w = doRequest(t, r, http.MethodPost, "/api/invoices", "biz-1", map[string]interface{}{
		"document_type": "invoice",
		"invoice_date":  "2024-05-01",
		"items": []map[string]interface{}{{
			"product_id": product.ID, "quantity": "5", "unit_price": "2500",
			"apply_igst": false, "apply_cgst": true, "apply_sgst": true,
			"igst_rate": "0", "cgst_rate": "9", "sgst_rate": "9",
		}},
	})
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "insufficient stock") {
		t.Fatalf("insufficient stock expected 400, got %d %s", w.Code, w.Body.String())
	}

	if w := doRequest(t, r, http.MethodGet, "/api/products/abc", "biz-1", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id expected 400, got %d", w.Code)
	}
}

func TestGstSummaryEndpoint(t *testing.T) {
	r := setupServer(t)
	doRequest(t, r, http.MethodPost, "/api/invoices", "biz-1", map[string]interface{}{
		"document_type": "invoice",
		"invoice_date":  "2024-05-01",
		"items":         exampleItems,
	})

	w := doRequest(t, r, http.MethodGet, "/api/reports/gst-summary?from=2024-05-01&to=2024-05-31", "biz-1", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"document_count":1`) {
		t.Fatalf("summary got %d %s", w.Code, w.Body.String())
	}
	w = doRequest(t, r, http.MethodGet, "/api/reports/gst-summary/export?from=2024-05-01&to=2024-05-31", "biz-1", nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("export got %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "gst-summary_biz-1_20240501_20240531.xlsx") {
		t.Fatalf("unexpected disposition %s", w.Header().Get("Content-Disposition"))
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(" https://a.example , ,https://b.example")
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("unexpected %v", got)
	}
	if splitAndTrim("  ") != nil {
		t.Fatalf("expected nil for blank input")
	}
}
