package models_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/invoiceflow/invoiceflow_backend/config"
	"github.com/invoiceflow/invoiceflow_backend/models"
)

func TestGormCounterStoreReserveAndLoad(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	store := models.NewGormCounterStore(config.GetDB(), false)

	for want := 1; want <= 3; want++ {
		got, err := store.Reserve(ctx, "biz-1", "INV", "01052024")
		if err != nil {
			t.Fatalf("Reserve: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}
	if got, _ := store.Reserve(ctx, "biz-1", "INV", "02052024"); got != 1 {
		t.Fatalf("a new day starts at 1, got %d", got)
	}
	if got, _ := store.Reserve(ctx, "biz-1", "PRO", "01052024"); got != 1 {
		t.Fatalf("each prefix has its own counter, got %d", got)
	}

	state, err := store.Load(ctx, "biz-1", "INV")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state.Prefix != "INV" || state.DailyCounters["01052024"] != 3 || state.DailyCounters["02052024"] != 1 {
		t.Fatalf("unexpected state %+v", state)
	}
	if _, ok := state.DailyCounters["03052024"]; ok {
		t.Fatalf("unexpected counter for an unused day")
	}
}

func TestGormCounterStoreSharedNamespace(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	store := models.NewGormCounterStore(nil, true)

	_, _ = store.Reserve(ctx, "biz-1", "INV", "01052024")
	got, err := store.Reserve(ctx, "biz-1", "QUO", "01052024")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if got != 2 {
		t.Fatalf("shared counters continue across prefixes, got %d", got)
	}
}

func TestGormCounterStoreRaiseNeverLowers(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	store := models.NewGormCounterStore(config.GetDB(), false)

	if err := store.Raise(ctx, "biz-1", "INV", "01052024", 7); err != nil {
		t.Fatalf("Raise: %v", err)
	}
	if err := store.Raise(ctx, "biz-1", "INV", "01052024", 3); err != nil {
		t.Fatalf("Raise: %v", err)
	}
	got, err := store.Reserve(ctx, "biz-1", "INV", "01052024")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if got != 8 {
		t.Fatalf("expected 8 after raising to 7, got %d", got)
	}
}

func TestImportLegacyCountersAndRebuild(t *testing.T) {
	setupTestDB(t)
	ctx := businessCtx("biz-1")
	db := config.GetDB()
	kv := models.NewGormKeyValueStore(db)
	if err := kv.SetValue(context.Background(), "biz-1", models.LegacyCounterKey, `{"01052024":4,"02052024":1}`); err != nil {
		t.Fatalf("SetValue: %v", err)
	}

	store := models.NewGormCounterStore(db, false)
	n, err := models.ImportLegacyCounters(context.Background(), models.NewLegacyCounterStore(kv), store, "biz-1", "INV")
	if err != nil {
		t.Fatalf("ImportLegacyCounters: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 imported counters, got %d", n)
	}

	number, err := models.PreviewDocumentNumber(ctx, store, models.DocumentTypeInvoice, date(2024, 5, 1))
	if err != nil {
		t.Fatalf("PreviewDocumentNumber: %v", err)
	}
	if number != "INV010520240005" {
		t.Fatalf("expected INV010520240005, got %s", number)
	}

	// a document stored with a number above the counter, e.g. from an older system
	invoice := models.Invoice{
		BusinessId:    "biz-1",
		DocumentType:  models.DocumentTypeInvoice,
		InvoiceNumber: "INV010520240009",
		Prefix:        "INV",
		DateKey:       "01052024",
		SequenceNo:    9,
		InvoiceDate:   date(2024, 5, 1),
		Status:        models.InvoiceStatusIssued,
	}
	if err := db.Create(&invoice).Error; err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if _, err := models.RebuildCounters(context.Background(), store, "biz-1"); err != nil {
		t.Fatalf("RebuildCounters: %v", err)
	}
	number, _ = models.PreviewDocumentNumber(ctx, store, models.DocumentTypeInvoice, date(2024, 5, 1))
	if number != "INV010520240010" {
		t.Fatalf("expected INV010520240010 after rebuild, got %s", number)
	}
	number, _ = models.PreviewDocumentNumber(ctx, store, models.DocumentTypeInvoice, date(2024, 5, 2))
	if number != "INV020520240002" {
		t.Fatalf("rebuild must not lower other days, got %s", number)
	}
}

func TestGormCounterStoreConcurrentReserveIsUnique(t *testing.T) {
	// a file database so several connections really run side by side
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_txlock=immediate", filepath.Join(t.TempDir(), "counters.db"))
	conn, err := config.OpenDatabase(config.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(4)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := models.AutoMigrateModels(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := models.NewGormCounterStore(conn, false)
	ctx := context.Background()

	const workers = 40
	results := make(chan int, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq, err := store.Reserve(ctx, "biz-1", "INV", "01052024")
			if err != nil {
				t.Errorf("Reserve: %v", err)
				return
			}
			results <- seq
		}()
	}
	wg.Wait()
	close(results)

	seen := map[int]bool{}
	for seq := range results {
		if seen[seq] {
			t.Fatalf("sequence %d handed out twice", seq)
		}
		seen[seq] = true
	}
	if len(seen) != workers {
		t.Fatalf("expected %d sequences, got %d", workers, len(seen))
	}

	state, err := store.Load(ctx, "biz-1", "INV")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state.DailyCounters["01052024"] != workers {
		t.Fatalf("expected counter %d, got %d", workers, state.DailyCounters["01052024"])
	}
}
