package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/rolloy/scm-import/pkg/configuration"
	"github.com/rolloy/scm-import/pkg/importer"
	"github.com/rolloy/scm-import/pkg/sheet"
	"github.com/rolloy/scm-import/pkg/store"
)

type importOptions struct {
	file     string
	colmap   string
	storeURL string
	storeKey string
	execute  bool
	strict   bool
}

func newImportCmd() *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a supply chain workbook into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runImport(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.file, "file", "", "Workbook to import (.xlsx, required)")
	cmd.Flags().StringVar(&opts.colmap, "colmap", "", "Column map YAML (default: built-in)")
	cmd.Flags().StringVar(&opts.storeURL, "store-url", "", "Store base URL (default: STORE_URL)")
	cmd.Flags().StringVar(&opts.storeKey, "store-key", "", "Store service key (default: STORE_SERVICE_KEY)")
	cmd.Flags().BoolVar(&opts.execute, "execute", false, "Write to the store (default is dry-run)")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Exit non-zero when any row fails validation")

	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runImport(ctx context.Context, opts importOptions) error {
	conf := configuration.Use()
	defer conf.Unload()
	log := conf.Logger()

	storeURL := opts.storeURL
	if storeURL == "" {
		storeURL = conf.Store.URL
	}
	storeKey := opts.storeKey
	if storeKey == "" {
		storeKey = conf.Store.ServiceKey
	}
	if storeURL == "" {
		return withCode(exitUsage, fmt.Errorf("store url is required (--store-url or STORE_URL)"))
	}

	colmapPath := opts.colmap
	if colmapPath == "" {
		colmapPath = conf.ColumnMap
	}
	cm, err := importer.LoadColumnMap(colmapPath)
	if err != nil {
		return withCode(exitValidation, err)
	}

	wb, err := sheet.Open(opts.file)
	if err != nil {
		return withCode(exitUsage, fmt.Errorf("open workbook: %w", err))
	}
	defer wb.Close()

	client, err := store.New(store.Options{
		BaseURL:           storeURL,
		ServiceKey:        storeKey,
		Timeout:           conf.Store.Timeout,
		RequestsPerSecond: conf.Store.WriteRPS,
		Logger:            log,
	})
	if err != nil {
		return withCode(exitUsage, err)
	}
	if err := client.Ping(ctx); err != nil {
		return withCode(exitStore, fmt.Errorf("store unreachable: %w", err))
	}

	mode := importer.ModeDryRun
	var st store.Store = client
	var dry *store.DryRun
	if !opts.execute {
		dry = store.NewDryRun(client)
		st = dry
	} else {
		mode = importer.ModeApply
	}

	orch := &importer.Orchestrator{
		Source:            wb,
		Store:             st,
		Map:               cm,
		Log:               log.WithField("run", mode),
		Mode:              mode,
		File:              opts.file,
		MaxReportedErrors: conf.MaxReportedErrors,
	}
	report, err := orch.Run(ctx)
	if err != nil {
		return withCode(classifyRunError(err), err)
	}

	if dry != nil {
		log.WithField("writes", dry.Writes()).Info("dry-run complete, nothing written")
	} else {
		manifest := filepath.Join(conf.ManifestDir,
			fmt.Sprintf("import-%s.json", time.Now().UTC().Format("20060102-150405")))
		if err := writeJSONFile(manifest, report); err != nil {
			return err
		}
		log.WithField("manifest", manifest).Info("run manifest written")
	}
	if err := writeJSONLine(report); err != nil {
		return err
	}
	if opts.strict && report.HasErrors() {
		return withCode(exitValidation,
			fmt.Errorf("%d rows failed validation", report.ErrorsTotal))
	}
	return nil
}

func classifyRunError(err error) int {
	var te *store.TransportError
	if errors.As(err, &te) {
		if te.Op == "upsert" || te.Op == "insert" {
			return exitStoreWrite
		}
		return exitStore
	}
	var se *importer.StructuralError
	var ve *importer.ValidationError
	if errors.As(err, &se) || errors.As(err, &ve) {
		return exitValidation
	}
	return 1
}
