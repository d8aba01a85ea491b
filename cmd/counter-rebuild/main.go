package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/invoiceflow/invoiceflow_backend/config"
	"github.com/invoiceflow/invoiceflow_backend/models"
	"github.com/joho/godotenv"
)

// counter-rebuild raises document number counters so that no stored number can be
// handed out again. With -from-legacy it first copies the old settings blob in.
func main() {
	_ = godotenv.Load()

	businessID := flag.String("business", "", "Optional: business id. Empty rebuilds every business")
	fromLegacy := flag.Bool("from-legacy", false, "Import the legacy invoiceCounters setting before rebuilding (needs -business)")
	legacyPrefix := flag.String("legacy-prefix", models.DefaultInvoicePrefix, "Prefix the legacy counters were used for")
	flag.Parse()

	businessId := strings.TrimSpace(*businessID)
	if *fromLegacy && businessId == "" {
		fmt.Fprintln(os.Stderr, "-from-legacy requires -business")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	ctx := context.Background()
	store := models.NewGormCounterStore(db, config.SharedCounterNamespace())

	if *fromLegacy {
		prefix, err := models.NormalizePrefix(*legacyPrefix, models.DefaultInvoicePrefix)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -legacy-prefix: %v\n", err)
			os.Exit(1)
		}
		legacy := models.NewLegacyCounterStore(models.NewGormKeyValueStore(db))
		n, err := models.ImportLegacyCounters(ctx, legacy, store, businessId, prefix)
		if err != nil {
			fmt.Fprintf(os.Stderr, "legacy import failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("imported %d legacy counters for business=%s prefix=%s\n", n, businessId, prefix)
	}

	n, err := models.RebuildCounters(ctx, store, businessId)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rebuild failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("counter rebuild complete (%d counters checked)\n", n)
}
