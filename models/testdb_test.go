package models_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/invoiceflow/invoiceflow_backend/config"
	"github.com/invoiceflow/invoiceflow_backend/models"
	"github.com/invoiceflow/invoiceflow_backend/utils"
	"github.com/shopspring/decimal"
)

// setupTestDB points the global connection at a fresh in-memory sqlite database.
func setupTestDB(t *testing.T) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := config.OpenDatabase(config.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := models.AutoMigrateModels(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	prev := config.GetDB()
	config.SetDB(conn)
	config.SetRedis(nil)
	t.Cleanup(func() {
		_ = sqlDB.Close()
		config.SetDB(prev)
	})
}

func businessCtx(businessId string) context.Context {
	return utils.SetBusinessIdInContext(context.Background(), businessId)
}

func ptr[T any](v T) *T {
	return &v
}

func lineInput(productId *int, qty, price string, igst, cgst, sgst string) models.NewLineItem {
	igstRate, cgstRate, sgstRate := dec(igst), dec(cgst), dec(sgst)
	return models.NewLineItem{
		ProductId: productId,
		Quantity:  ptr(dec(qty)),
		UnitPrice: ptr(dec(price)),
		ApplyIgst: ptr(igstRate.IsPositive()),
		ApplyCgst: ptr(cgstRate.IsPositive()),
		ApplySgst: ptr(sgstRate.IsPositive()),
		IgstRate:  &igstRate,
		CgstRate:  &cgstRate,
		SgstRate:  &sgstRate,
	}
}

func mustCreateProduct(t *testing.T, ctx context.Context, name string, stock string, service bool) *models.Product {
	t.Helper()
	p, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:          name,
		HsnCode:       "8471",
		UnitPrice:     dec("100"),
		ApplyCgst:     true,
		ApplySgst:     true,
		CgstRate:      dec("9"),
		SgstRate:      dec("9"),
		IsService:     service,
		StockQuantity: dec(stock),
	})
	if err != nil {
		t.Fatalf("CreateProduct(%s): %v", name, err)
	}
	return p
}

func stockOf(t *testing.T, ctx context.Context, id int) decimal.Decimal {
	t.Helper()
	p, err := models.GetProduct(ctx, id)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	return p.StockQuantity
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
