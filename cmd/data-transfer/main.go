package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/invoiceflow/invoiceflow_backend/config"
	"github.com/invoiceflow/invoiceflow_backend/models"
	"github.com/invoiceflow/invoiceflow_backend/utils"
	"github.com/joho/godotenv"
)

// data-transfer exports one business to JSON or imports such a file into a business.
// Files live on disk, or in GCS_BUCKET when -gcs-object is given.
func main() {
	_ = godotenv.Load()

	mode := flag.String("mode", "", "Required: export or import")
	businessID := flag.String("business", "", "Required: business id")
	file := flag.String("file", "", "Local JSON file to write (export) or read (import)")
	gcsObject := flag.String("gcs-object", "", "Object name in GCS_BUCKET instead of a local file")
	flag.Parse()

	businessId := strings.TrimSpace(*businessID)
	if businessId == "" {
		fmt.Fprintln(os.Stderr, "-business is required")
		os.Exit(1)
	}
	if (*file == "") == (*gcsObject == "") {
		fmt.Fprintln(os.Stderr, "exactly one of -file or -gcs-object is required")
		os.Exit(1)
	}
	if *gcsObject != "" && !utils.GCSEnabled() {
		fmt.Fprintln(os.Stderr, "-gcs-object needs GCS_BUCKET")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	ctx := utils.SetBusinessIdInContext(context.Background(), businessId)

	switch *mode {
	case "export":
		if err := export(ctx, *file, *gcsObject); err != nil {
			fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
			os.Exit(1)
		}
	case "import":
		if err := importSnapshot(ctx, *file, *gcsObject); err != nil {
			fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintln(os.Stderr, "-mode must be export or import")
		os.Exit(1)
	}
}

func export(ctx context.Context, file string, gcsObject string) error {
	snapshot, err := models.ExportBusinessData(ctx)
	if err != nil {
		return err
	}
	if file != "" {
		if err := utils.WriteJSONFile(file, snapshot); err != nil {
			return err
		}
		fmt.Printf("exported %d invoices to %s\n", len(snapshot.Invoices), file)
		return nil
	}
	data, err := utils.MarshalToJSON(snapshot)
	if err != nil {
		return err
	}
	uri, err := utils.UploadBytesToGCS(ctx, gcsObject, []byte(data), utils.ContentTypeJSON)
	if err != nil {
		return err
	}
	fmt.Printf("exported %d invoices to %s\n", len(snapshot.Invoices), uri)
	return nil
}

func importSnapshot(ctx context.Context, file string, gcsObject string) error {
	var (
		data []byte
		err  error
	)
	if file != "" {
		data, err = os.ReadFile(file)
	} else {
		data, err = utils.DownloadFromGCS(ctx, gcsObject)
	}
	if err != nil {
		return err
	}
	var snapshot models.BusinessSnapshot
	if err := utils.UnmarshalFromJSON(data, &snapshot); err != nil {
		return err
	}
	summary, err := models.ImportBusinessData(ctx, &snapshot)
	if err != nil {
		return err
	}
	fmt.Printf("imported customers=%d products=%d invoices=%d counters=%d\n",
		summary.Customers, summary.Products, summary.Invoices, summary.Counters)
	return nil
}
