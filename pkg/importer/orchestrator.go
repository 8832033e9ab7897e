package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rolloy/scm-import/pkg/sheet"
	"github.com/rolloy/scm-import/pkg/store"
)

// Run modes.
const (
	ModeDryRun = "dry-run"
	ModeApply  = "apply"
)

// SheetStats counts what happened to one sheet's rows.
type SheetStats struct {
	Rows    int `json:"rows"`
	Written int `json:"written"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// Report summarizes one import run. It is what the CLI prints and, in
// apply mode, persists as the run manifest.
type Report struct {
	RunID       string                 `json:"run_id"`
	Mode        string                 `json:"mode"`
	File        string                 `json:"file,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	DurationMS  int64                  `json:"duration_ms"`
	Sheets      map[string]*SheetStats `json:"sheets"`
	LazyCreated map[string]int         `json:"lazy_created,omitempty"`
	ErrorsTotal int                    `json:"errors_total"`
	Errors      []string               `json:"errors,omitempty"`
}

// HasErrors reports whether any row failed validation.
func (r *Report) HasErrors() bool { return r.ErrorsTotal > 0 }

// Orchestrator drives one full workbook import in dependency order:
// master data first, then weekly facts, then the order, delivery and
// shipment flows that reference them.
type Orchestrator struct {
	Source sheet.Source
	Store  store.Store
	Map    *ColumnMap
	Log    *logrus.Entry
	Mode   string
	File   string

	// MaxReportedErrors caps the error excerpt carried in the report;
	// the full count is always reported.
	MaxReportedErrors int

	resolver *Resolver
	report   *Report
}

// Run imports every recognized sheet of the source. Row-level validation
// failures are recorded and skipped; structural and transport failures
// abort the run.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	o.resolver = NewResolver(o.Store, o.Log)
	o.report = &Report{
		RunID:     uuid.New().String(),
		Mode:      o.Mode,
		File:      o.File,
		StartedAt: start.UTC(),
		Sheets:    make(map[string]*SheetStats),
	}

	if err := o.resolver.SeedChannels(ctx); err != nil {
		return nil, err
	}
	if _, err := o.resolver.EnsureSupplier(ctx); err != nil {
		return nil, err
	}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{o.Map.Sheets.BaseInfo, o.importBaseInfo},
		{legacySheetProducts, o.importLegacyProducts},
		{legacySheetChannels, o.importLegacyChannels},
		{legacySheetWarehouses, o.importLegacyWarehouses},
		{legacySheetSuppliers, o.importLegacySuppliers},
		{o.Map.Sheets.Forecasts, func(ctx context.Context) error {
			return o.importFacts(ctx, o.Map.Sheets.Forecasts, FactForecast)
		}},
		{o.Map.Sheets.Orders, o.importOrders},
		{o.Map.Sheets.Deliveries, o.importDeliveries},
		{o.Map.Sheets.Shipments, o.importShipments},
		{o.Map.Sheets.Actuals, func(ctx context.Context) error {
			return o.importFacts(ctx, o.Map.Sheets.Actuals, FactActual)
		}},
		{legacySheetInventory, o.importLegacyInventory},
	}
	present := make(map[string]bool)
	for _, name := range o.Source.Sheets() {
		present[name] = true
	}
	for _, step := range steps {
		if !present[step.name] {
			o.Log.WithField("sheet", step.name).Debug("sheet absent, skipping")
			continue
		}
		if err := step.fn(ctx); err != nil {
			return nil, fmt.Errorf("sheet %s: %w", step.name, err)
		}
	}

	o.report.LazyCreated = o.resolver.LazyCreated
	o.report.DurationMS = time.Since(start).Milliseconds()
	return o.report, nil
}

// loadSheet reads, cleans and header-checks one sheet.
func (o *Orchestrator) loadSheet(name string, required ...string) ([]sheet.Row, *SheetStats, error) {
	rows, err := o.Source.Rows(name)
	if err != nil {
		return nil, nil, err
	}
	rows, cleaned := Clean(rows)
	if cleaned.EmptyRows > 0 || cleaned.Duplicates > 0 {
		o.Log.WithFields(logrus.Fields{
			"sheet":      name,
			"empty":      cleaned.EmptyRows,
			"duplicates": cleaned.Duplicates,
		}).Info("dropped rows during cleanup")
	}
	if err := RequireColumns(name, rows, required...); err != nil {
		return nil, nil, err
	}
	stats := &SheetStats{Rows: len(rows)}
	o.report.Sheets[name] = stats
	return rows, stats, nil
}

// rowFailure records a row-level failure (validation or transport) and
// moves on. Only a structural failure escalates: without its required
// columns the rest of the sheet cannot mean anything.
func (o *Orchestrator) rowFailure(stats *SheetStats, sheetName string, rowIdx int, err error) error {
	var se *StructuralError
	if errors.As(err, &se) {
		return err
	}
	stats.Errors++
	o.report.ErrorsTotal++
	if len(o.report.Errors) < o.maxErrors() {
		o.report.Errors = append(o.report.Errors,
			fmt.Sprintf("%s row %d: %v", sheetName, rowIdx+2, err))
	}
	o.Log.WithFields(logrus.Fields{
		"sheet": sheetName,
		"row":   rowIdx + 2,
	}).WithError(err).Warn("row skipped")
	return nil
}

func (o *Orchestrator) maxErrors() int {
	if o.MaxReportedErrors > 0 {
		return o.MaxReportedErrors
	}
	return 10
}
