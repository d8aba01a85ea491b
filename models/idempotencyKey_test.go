package models_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/invoiceflow/invoiceflow_backend/config"
	"github.com/invoiceflow/invoiceflow_backend/models"
)

func TestCreateInvoiceOnce(t *testing.T) {
	setupTestDB(t)
	ctx := businessCtx("biz-1")
	store := models.NewMemoryCounterStore(false)
	input := &models.NewInvoice{
		DocumentType: models.DocumentTypeInvoice,
		InvoiceDate:  date(2024, 5, 1),
		Items:        []models.NewLineItem{lineInput(nil, "1", "100", "18", "0", "0")},
	}

	first, replayed, err := models.CreateInvoiceOnce(ctx, store, "key-1", input)
	if err != nil || replayed {
		t.Fatalf("first call: replayed=%v err=%v", replayed, err)
	}
	again, replayed, err := models.CreateInvoiceOnce(ctx, store, "key-1", input)
	if err != nil || !replayed || again.ID != first.ID {
		t.Fatalf("replay: replayed=%v err=%v id=%v", replayed, err, again)
	}

	// same key in another business is a different request
	other, replayed, err := models.CreateInvoiceOnce(businessCtx("biz-2"), store, "key-1", input)
	if err != nil || replayed || other.BusinessId != "biz-2" {
		t.Fatalf("other business: replayed=%v err=%v", replayed, err)
	}

	unkeyed, replayed, err := models.CreateInvoiceOnce(ctx, store, "", input)
	if err != nil || replayed || unkeyed.InvoiceNumber != "INV010520240002" {
		t.Fatalf("empty key should create normally, got %v %v", unkeyed, err)
	}
}

func TestCreateInvoiceOnceRetriesAfterFailure(t *testing.T) {
	setupTestDB(t)
	ctx := businessCtx("biz-1")
	store := models.NewMemoryCounterStore(false)

	bad := &models.NewInvoice{
		DocumentType: models.DocumentTypeInvoice,
		InvoiceDate:  date(2024, 5, 1),
		Items:        []models.NewLineItem{lineInput(nil, "-1", "100", "18", "0", "0")},
	}
	if _, _, err := models.CreateInvoiceOnce(ctx, store, "key-2", bad); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	var key models.IdempotencyKey
	if err := config.GetDB().Where("request_key = ?", "key-2").Take(&key).Error; err != nil {
		t.Fatalf("load key: %v", err)
	}
	if key.Status != models.IdempotencyStatusFailed || key.LastError == nil {
		t.Fatalf("expected FAILED with last error, got %s", key.Status)
	}

	bad.Items = []models.NewLineItem{lineInput(nil, "1", "100", "18", "0", "0")}
	invoice, replayed, err := models.CreateInvoiceOnce(ctx, store, "key-2", bad)
	if err != nil || replayed || invoice.InvoiceNumber != "INV010520240001" {
		t.Fatalf("retry after failure: replayed=%v err=%v", replayed, err)
	}
}

func TestCreateInvoiceOnceInProgress(t *testing.T) {
	setupTestDB(t)
	ctx := businessCtx("biz-1")
	started := models.IdempotencyKey{
		BusinessId:  "biz-1",
		HandlerName: "CreateInvoice",
		RequestKey:  "key-3",
		Status:      models.IdempotencyStatusStarted,
	}
	if err := config.GetDB().Create(&started).Error; err != nil {
		t.Fatalf("seed key: %v", err)
	}
	_, _, err := models.CreateInvoiceOnce(ctx, models.NewMemoryCounterStore(false), "key-3", &models.NewInvoice{
		DocumentType: models.DocumentTypeInvoice,
		InvoiceDate:  date(2024, 5, 1),
		Items:        []models.NewLineItem{lineInput(nil, "1", "100", "18", "0", "0")},
	})
	if !errors.Is(err, models.ErrIdempotencyInProgress) {
		t.Fatalf("expected ErrIdempotencyInProgress, got %v", err)
	}

	purged, err := models.PurgeIdempotencyKeys(ctx, -time.Hour)
	if err != nil || purged != 1 {
		t.Fatalf("purge: %d %v", purged, err)
	}
}

func TestCreateInvoiceOnceKeyLength(t *testing.T) {
	setupTestDB(t)
	ctx := businessCtx("biz-1")
	store := models.NewMemoryCounterStore(false)
	input := &models.NewInvoice{
		DocumentType: models.DocumentTypeInvoice,
		InvoiceDate:  date(2024, 5, 1),
		Items:        []models.NewLineItem{lineInput(nil, "1", "100", "18", "0", "0")},
	}

	if _, _, err := models.CreateInvoiceOnce(ctx, store, strings.Repeat("k", 256), input); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for a 256 character key, got %v", err)
	}
	invoice, _, err := models.CreateInvoiceOnce(ctx, store, strings.Repeat("k", 255), input)
	if err != nil {
		t.Fatalf("255 character key: %v", err)
	}
	if invoice.InvoiceNumber != "INV010520240001" {
		t.Fatalf("rejected key must not take a number, got %s", invoice.InvoiceNumber)
	}
}
