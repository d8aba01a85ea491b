package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/invoiceflow/invoiceflow_backend/config"
	"github.com/invoiceflow/invoiceflow_backend/models"
	"github.com/invoiceflow/invoiceflow_backend/models/reports"
	"github.com/invoiceflow/invoiceflow_backend/utils"
	"github.com/shopspring/decimal"
)

// api carries what handlers need beyond the request.
type api struct {
	counters models.InvoiceNumberCounterStore
}

func statusForError(err error) int {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrDuplicateInvoiceNumber),
		errors.Is(err, utils.ErrLockNotObtained),
		errors.Is(err, models.ErrDuplicateProductName),
		errors.Is(err, models.ErrDuplicateCustomer),
		errors.Is(err, models.ErrResourceInUse),
		errors.Is(err, models.ErrDocumentCancelled),
		errors.Is(err, models.ErrIdempotencyInProgress):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidInput),
		errors.Is(err, models.ErrMalformedPrefix),
		errors.Is(err, models.ErrMixedTaxScheme),
		errors.Is(err, models.ErrUnknownDocumentType),
		errors.Is(err, models.ErrInsufficientStock),
		errors.Is(err, utils.ErrBusinessIdRequired),
		errors.As(err, &validationErrors):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respondError writes the error body and records the error for customErrorLogger.
func respondError(c *gin.Context, err error) {
	status := statusForError(err)
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.AbortWithStatusJSON(status, gin.H{"error": "validation failed", "fields": utils.ProcessValidationErrors(err)})
		return
	}
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			respondError(c, err)
			return false
		}
		respondError(c, &models.ValidationError{Err: models.ErrInvalidInput, Details: err.Error()})
		return false
	}
	return true
}

func paramId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		respondError(c, &models.ValidationError{Err: models.ErrInvalidInput, Details: "id must be a positive integer"})
		return 0, false
	}
	return id, true
}

func optionalQuery(c *gin.Context, key string) *string {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return nil
	}
	return &v
}

func queryDate(c *gin.Context, key string, def *time.Time) (*time.Time, bool) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return def, true
	}
	d, err := utils.ParseDate(v)
	if err != nil {
		respondError(c, &models.ValidationError{Err: models.ErrInvalidInput, Details: key + ": " + err.Error()})
		return nil, false
	}
	return &d, true
}

type taxTotalsRequest struct {
	ApplyRounding bool                 `json:"apply_rounding"`
	Items         []models.NewLineItem `json:"items" binding:"dive"`
}

func (a *api) computeTotals(c *gin.Context) {
	var req taxTotalsRequest
	if !bindJSON(c, &req) {
		return
	}
	items, err := models.ToLineItems(req.Items)
	if err != nil {
		respondError(c, err)
		return
	}
	totals, err := models.ComputeInvoiceTotals(items, req.ApplyRounding)
	if err != nil {
		respondError(c, err)
		return
	}
	resp := gin.H{"totals": totals}
	if config.StrictGstSchemes() {
		warnings := make([]string, 0)
		for _, item := range items {
			if err := models.ValidateTaxScheme(item); err != nil {
				warnings = append(warnings, err.Error())
			}
		}
		if len(warnings) > 0 {
			resp["warnings"] = warnings
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (a *api) previewNumber(c *gin.Context) {
	docType := models.DocumentType(c.DefaultQuery("type", string(models.DocumentTypeInvoice)))
	today := utils.ConvertToDate(time.Now(), config.AppLocation())
	date, ok := queryDate(c, "date", &today)
	if !ok {
		return
	}
	number, err := models.PreviewDocumentNumber(c.Request.Context(), a.counters, docType, *date)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"document_type": docType, "date": date.Format("2006-01-02"), "invoice_number": number})
}

type newInvoiceRequest struct {
	DocumentType  models.DocumentType  `json:"document_type" binding:"required"`
	InvoiceDate   string               `json:"invoice_date" binding:"required"`
	CustomerId    *int                 `json:"customer_id"`
	CustomerName  string               `json:"customer_name"`
	Notes         string               `json:"notes"`
	ApplyRounding *bool                `json:"apply_rounding"`
	Items         []models.NewLineItem `json:"items" binding:"required,min=1,dive"`
}

func (a *api) createInvoice(c *gin.Context) {
	var req newInvoiceRequest
	if !bindJSON(c, &req) {
		return
	}
	date, err := utils.ParseDate(req.InvoiceDate)
	if err != nil {
		respondError(c, &models.ValidationError{Err: models.ErrInvalidInput, Details: "invoice_date: " + err.Error()})
		return
	}
	key := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	invoice, replayed, err := models.CreateInvoiceOnce(c.Request.Context(), a.counters, key, &models.NewInvoice{
		DocumentType:  req.DocumentType,
		InvoiceDate:   date,
		CustomerId:    req.CustomerId,
		CustomerName:  req.CustomerName,
		Notes:         req.Notes,
		ApplyRounding: req.ApplyRounding,
		Items:         req.Items,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if replayed {
		c.JSON(http.StatusOK, invoice)
		return
	}
	c.JSON(http.StatusCreated, invoice)
}

func (a *api) listInvoices(c *gin.Context) {
	var filter models.InvoiceFilter
	if v := optionalQuery(c, "type"); v != nil {
		t := models.DocumentType(*v)
		filter.DocumentType = &t
	}
	if v := optionalQuery(c, "status"); v != nil {
		s := models.InvoiceStatus(*v)
		filter.Status = &s
	}
	if v := optionalQuery(c, "customer_id"); v != nil {
		id, err := strconv.Atoi(*v)
		if err != nil {
			respondError(c, &models.ValidationError{Err: models.ErrInvalidInput, Details: "customer_id must be an integer"})
			return
		}
		filter.CustomerId = &id
	}
	var ok bool
	if filter.FromDate, ok = queryDate(c, "from", nil); !ok {
		return
	}
	if filter.ToDate, ok = queryDate(c, "to", nil); !ok {
		return
	}
	limit := 0
	if v := optionalQuery(c, "limit"); v != nil {
		n, err := strconv.Atoi(*v)
		if err != nil || n < 1 {
			respondError(c, &models.ValidationError{Err: models.ErrInvalidInput, Details: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	results, err := models.PaginateInvoices(c.Request.Context(), filter, limit, optionalQuery(c, "after"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func (a *api) getInvoice(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	invoice, err := models.GetInvoice(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

func (a *api) updateInvoice(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	var req models.InvoiceUpdate
	if !bindJSON(c, &req) {
		return
	}
	invoice, err := models.UpdateInvoice(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

func (a *api) cancelInvoice(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	invoice, err := models.CancelInvoice(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

func (a *api) getNumberingSettings(c *gin.Context) {
	settings, err := models.GetNumberingSettings(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (a *api) updateNumberingSettings(c *gin.Context) {
	var req models.NewNumberingSettings
	if !bindJSON(c, &req) {
		return
	}
	settings, err := models.UpdateNumberingSettings(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (a *api) createCustomer(c *gin.Context) {
	var req models.NewCustomer
	if !bindJSON(c, &req) {
		return
	}
	customer, err := models.CreateCustomer(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, customer)
}

func (a *api) listCustomers(c *gin.Context) {
	results, err := models.GetCustomers(c.Request.Context(), optionalQuery(c, "q"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func (a *api) getCustomer(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	customer, err := models.GetCustomer(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (a *api) updateCustomer(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	var req models.NewCustomer
	if !bindJSON(c, &req) {
		return
	}
	customer, err := models.UpdateCustomer(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (a *api) deleteCustomer(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	customer, err := models.DeleteCustomer(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (a *api) createProduct(c *gin.Context) {
	var req models.NewProduct
	if !bindJSON(c, &req) {
		return
	}
	product, err := models.CreateProduct(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (a *api) listProducts(c *gin.Context) {
	results, err := models.GetProducts(c.Request.Context(), optionalQuery(c, "name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func (a *api) getProduct(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	product, err := models.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (a *api) updateProduct(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	var req models.NewProduct
	if !bindJSON(c, &req) {
		return
	}
	product, err := models.UpdateProduct(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (a *api) deleteProduct(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	product, err := models.DeleteProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// productLineItem returns the product's defaults as a line item for ?quantity= (default 1).
func (a *api) productLineItem(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	quantity := decimal.NewFromInt(1)
	if v := optionalQuery(c, "quantity"); v != nil {
		q, err := utils.ParseDecimal(*v)
		if err != nil {
			respondError(c, &models.ValidationError{Err: models.ErrInvalidInput, Details: "quantity: " + err.Error()})
			return
		}
		quantity = q
	}
	product, err := models.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	item, err := models.LineItemFromProduct(product, quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (a *api) importProducts(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		respondError(c, &models.ValidationError{Err: models.ErrInvalidInput, Details: "file: " + err.Error()})
		return
	}
	if !strings.HasSuffix(strings.ToLower(file.Filename), ".xlsx") {
		respondError(c, &models.ValidationError{Err: models.ErrInvalidInput, Details: "only .xlsx files are allowed"})
		return
	}
	r, err := file.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer r.Close()
	created, skipped, err := models.ImportProductsFromXlsx(c.Request.Context(), r)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"created": created, "skipped": skipped})
}

func reportRange(c *gin.Context) (time.Time, time.Time, bool) {
	today := utils.ConvertToDate(time.Now(), config.AppLocation())
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
	from, ok := queryDate(c, "from", &monthStart)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	to, ok := queryDate(c, "to", &today)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	return *from, *to, true
}

func (a *api) gstSummary(c *gin.Context) {
	from, to, ok := reportRange(c)
	if !ok {
		return
	}
	report, err := reports.GetGstReport(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// gstSummaryExport downloads the xlsx, or with ?upload=true stores it in GCS and returns the URI.
func (a *api) gstSummaryExport(c *gin.Context) {
	from, to, ok := reportRange(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	report, err := reports.GetGstReport(ctx, from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	data, err := reports.ExportGstReportExcel(report)
	if err != nil {
		respondError(c, err)
		return
	}
	businessId, _ := utils.GetBusinessIdFromContext(ctx)
	if upload, _ := strconv.ParseBool(c.Query("upload")); upload {
		if !utils.GCSEnabled() {
			respondError(c, &models.ValidationError{Err: models.ErrInvalidInput, Details: "GCS_BUCKET is not configured"})
			return
		}
		uri, err := reports.UploadGstReportExcel(ctx, businessId, report, data)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"uri": uri})
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+reports.ExportFileName(businessId, from, to))
	c.Data(http.StatusOK, utils.ContentTypeXlsx, data)
}
