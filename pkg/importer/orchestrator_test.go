package importer

import (
	"context"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolloy/scm-import/pkg/sheet"
	"github.com/rolloy/scm-import/pkg/store"
)

// fakeStore keeps records in memory with the same merge semantics the
// REST client declares: upserts merge on their conflict columns, inserts
// collide on previously inserted identical delivery numbers.
type fakeStore struct {
	data   map[string][]store.Record
	nextID int
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string][]store.Record)}
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) id() string {
	f.nextID++
	return fmt.Sprintf("id-%04d", f.nextID)
}

func matches(rec store.Record, key map[string]string) bool {
	for col, val := range key {
		if rec.Str(col) != val {
			return false
		}
	}
	return true
}

func (f *fakeStore) Upsert(_ context.Context, collection string, records []store.Record, conflictCols ...string) ([]store.Record, error) {
	out := make([]store.Record, 0, len(records))
	for _, rec := range records {
		key := make(map[string]string, len(conflictCols))
		for _, col := range conflictCols {
			key[col] = rec.Str(col)
		}
		merged := false
		for _, existing := range f.data[collection] {
			if len(conflictCols) > 0 && matches(existing, key) {
				for k, v := range rec {
					existing[k] = v
				}
				out = append(out, existing)
				merged = true
				break
			}
		}
		if !merged {
			stored := make(store.Record, len(rec)+1)
			for k, v := range rec {
				stored[k] = v
			}
			stored["id"] = f.id()
			f.data[collection] = append(f.data[collection], stored)
			out = append(out, stored)
		}
	}
	return out, nil
}

func (f *fakeStore) Insert(_ context.Context, collection string, rec store.Record) (store.Record, error) {
	if num := rec.Str("delivery_number"); num != "" {
		for _, existing := range f.data[collection] {
			if existing.Str("delivery_number") == num {
				return nil, &store.ConflictError{Collection: collection}
			}
		}
	}
	stored := make(store.Record, len(rec)+1)
	for k, v := range rec {
		stored[k] = v
	}
	stored["id"] = f.id()
	f.data[collection] = append(f.data[collection], stored)
	return stored, nil
}

func (f *fakeStore) Query(_ context.Context, collection string, filter map[string]string) ([]store.Record, error) {
	var out []store.Record
	for _, rec := range f.data[collection] {
		if matches(rec, filter) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStore) one(t *testing.T, collection string, filter map[string]string) store.Record {
	t.Helper()
	recs, err := f.Query(context.Background(), collection, filter)
	require.NoError(t, err)
	require.Len(t, recs, 1, "%s %v", collection, filter)
	return recs[0]
}

func testOrchestrator(t *testing.T, src sheet.Source, st store.Store) *Orchestrator {
	t.Helper()
	cm, err := LoadColumnMap("")
	require.NoError(t, err)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return &Orchestrator{
		Source: src,
		Store:  st,
		Map:    cm,
		Log:    log.WithField("test", t.Name()),
		Mode:   ModeApply,
	}
}

func run(t *testing.T, src sheet.Source, st store.Store) *Report {
	t.Helper()
	report, err := testOrchestrator(t, src, st).Run(context.Background())
	require.NoError(t, err)
	return report
}

func TestRunSeedsChannelsAndSupplier(t *testing.T) {
	fs := newFakeStore()
	run(t, sheet.NewMemory(), fs)

	assert.Len(t, fs.data[colChannels], 3)
	sup := fs.one(t, colSuppliers, map[string]string{"supplier_code": "SUP001"})
	assert.Equal(t, 60, sup["payment_terms_days"])
}

func TestOrdersAggregatePerBatch(t *testing.T) {
	fs := newFakeStore()
	src := sheet.NewMemory().Add("02 采购下单数据表",
		sheet.Row{
			"下单批次":     sheet.String("B-2025-01"),
			"下单日期":     sheet.String("2025-01-06"),
			"预计出货日期":   sheet.String("2025-02-01"),
			"A2RD 亚马逊": sheet.String("5"),
		},
		sheet.Row{
			"下单批次":     sheet.String("B-2025-01"),
			"下单日期":     sheet.String("2025-01-07"),
			"A2RD 亚马逊": sheet.String("5"),
			"W1RD 亚马逊": sheet.String("3"),
		},
	)
	report := run(t, src, fs)

	po := fs.one(t, colPurchaseOrders, map[string]string{"batch_code": "B-2025-01"})
	assert.Equal(t, "PO-B-2025-01", po.Str("po_number"))
	assert.Equal(t, "Delivered", po.Str("po_status"))
	// first row of the batch wins the dates
	assert.Equal(t, "2025-01-06", po.Str("actual_order_date"))
	assert.Equal(t, "2025-02-01", po.Str("planned_ship_date"))

	item := fs.one(t, colPOItems, map[string]string{"sku": "A2RD", "channel_code": "AMZ-US"})
	assert.Equal(t, 10, item["ordered_qty"], "quantities accumulate across rows")
	assert.Equal(t, float64(50), item["unit_price_usd"])

	other := fs.one(t, colPOItems, map[string]string{"sku": "W1RD"})
	assert.Equal(t, 3, other["ordered_qty"])
	assert.Equal(t, float64(35), other["unit_price_usd"])

	assert.False(t, report.HasErrors())
	// ordered SKUs become products with family defaults
	prod := fs.one(t, colProducts, map[string]string{"sku": "A2RD"})
	assert.Equal(t, "A2", prod.Str("spu"))
}

// batchRejectingStore refuses the purchase order upsert for one batch so
// its flush fails after the scan already accepted the rows.
type batchRejectingStore struct {
	*fakeStore
	batch string
}

func (s *batchRejectingStore) Upsert(ctx context.Context, collection string, records []store.Record, conflictCols ...string) ([]store.Record, error) {
	if collection == colPurchaseOrders && len(records) == 1 && records[0].Str("batch_code") == s.batch {
		return nil, &store.TransportError{Op: "upsert", Collection: collection, StatusCode: 500}
	}
	return s.fakeStore.Upsert(ctx, collection, records, conflictCols...)
}

func TestOrderRowsCountedOnlyWhenBatchFlushes(t *testing.T) {
	fs := &batchRejectingStore{fakeStore: newFakeStore(), batch: "B-BAD"}
	src := sheet.NewMemory().Add("02 采购下单数据表",
		sheet.Row{
			"下单批次":     sheet.String("B-BAD"),
			"下单日期":     sheet.String("2025-01-06"),
			"A2RD 亚马逊": sheet.String("5"),
		},
		sheet.Row{
			"下单批次":     sheet.String("B-BAD"),
			"下单日期":     sheet.String("2025-01-07"),
			"A2RD 亚马逊": sheet.String("5"),
		},
		sheet.Row{
			"下单批次":     sheet.String("B-OK"),
			"下单日期":     sheet.String("2025-01-08"),
			"W1RD 亚马逊": sheet.String("3"),
		},
	)
	report := run(t, src, fs)

	stats := report.Sheets["02 采购下单数据表"]
	require.NotNil(t, stats)
	assert.Equal(t, 3, stats.Rows)
	assert.Equal(t, 1, stats.Written, "only the flushed batch counts its rows")
	assert.Equal(t, 1, stats.Errors)

	fs.one(t, colPurchaseOrders, map[string]string{"batch_code": "B-OK"})
	recs, err := fs.Query(context.Background(), colPurchaseOrders,
		map[string]string{"batch_code": "B-BAD"})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestDeliveriesCreateMissingOrderLineage(t *testing.T) {
	fs := newFakeStore()
	src := sheet.NewMemory().Add("03 生产交付数据表",
		sheet.Row{
			"生产批次":     sheet.String("B99"),
			"实际交付日期":   sheet.String("2025-03-01"),
			"交付单价":     sheet.String("48"),
			"备注":       sheet.String("rush"),
			"亚马逊-A2RD": sheet.String("20"),
		},
	)
	report := run(t, src, fs)
	require.False(t, report.HasErrors())

	po := fs.one(t, colPurchaseOrders, map[string]string{"batch_code": "B99"})
	assert.Equal(t, "PO-B99", po.Str("po_number"))

	item := fs.one(t, colPOItems, map[string]string{"sku": "A2RD"})
	assert.Equal(t, 0, item["ordered_qty"], "lazy line carries zero ordered qty")
	assert.Equal(t, po.ID(), item.Str("po_id"))

	del := fs.one(t, colDeliveries, map[string]string{"delivery_number": "DEL-0001-A2RD"})
	assert.Equal(t, item.ID(), del.Str("po_item_id"))
	assert.Equal(t, 20, del["delivered_qty"])
	assert.Equal(t, float64(48), del["unit_cost_usd"])
	assert.Equal(t, "Pending", del.Str("payment_status"))
	assert.Equal(t, "rush", del.Str("remarks"))

	assert.Equal(t, 1, report.LazyCreated[colPurchaseOrders])
	assert.Equal(t, 1, report.LazyCreated[colPOItems])
	assert.Equal(t, 1, report.LazyCreated[colProducts])
}

func TestDeliveriesAreIdempotentAcrossRuns(t *testing.T) {
	fs := newFakeStore()
	src := sheet.NewMemory().Add("03 生产交付数据表",
		sheet.Row{
			"生产批次":     sheet.String("B99"),
			"实际交付日期":   sheet.String("2025-03-01"),
			"亚马逊-A2RD": sheet.String("20"),
		},
	)
	run(t, src, fs)
	report := run(t, src, fs)
	require.False(t, report.HasErrors())

	assert.Len(t, fs.data[colDeliveries], 1, "re-run must not duplicate deliveries")
	assert.Len(t, fs.data[colPurchaseOrders], 1)
	assert.Len(t, fs.data[colPOItems], 1)
}

func TestFactsNormalizeOntoISOWeeks(t *testing.T) {
	fs := newFakeStore()
	src := sheet.NewMemory().Add("01 周度目标销量表",
		sheet.Row{
			"周初":      sheet.String("2025-01-08"), // Wednesday
			"A2RD亚马逊": sheet.String("100"),
		},
	)
	report := run(t, src, fs)
	require.False(t, report.HasErrors())

	f := fs.one(t, colSalesForecasts, map[string]string{"sku": "A2RD"})
	assert.Equal(t, "2025-W02", f.Str("week_iso"))
	assert.Equal(t, "2025-01-06", f.Str("week_start_date"))
	assert.Equal(t, "2025-01-12", f.Str("week_end_date"))
	assert.Equal(t, 100, f["forecast_qty"])
	assert.Equal(t, "AMZ-US", f.Str("channel_code"))
}

func TestFactsWeekEndOverrideKeepsDerivedStart(t *testing.T) {
	fs := newFakeStore()
	src := sheet.NewMemory().Add("05 周度实际销量表",
		sheet.Row{
			"周初":      sheet.String("2025-01-06"),
			"周末":      sheet.String("2025-01-10"),
			"A2RD亚马逊": sheet.String("42"),
		},
	)
	run(t, src, fs)

	f := fs.one(t, colSalesActuals, map[string]string{"sku": "A2RD"})
	assert.Equal(t, "2025-01-06", f.Str("week_start_date"))
	assert.Equal(t, "2025-01-10", f.Str("week_end_date"))
	assert.Equal(t, 42, f["actual_qty"])
}

func TestBadRowsAreIsolated(t *testing.T) {
	fs := newFakeStore()
	src := sheet.NewMemory()
	rows := make([]sheet.Row, 0, 11)
	for i := 0; i < 10; i++ {
		rows = append(rows, sheet.Row{
			"周初":      sheet.String(fmt.Sprintf("2025-01-%02d", 6+i)),
			"A2RD亚马逊": sheet.String("10"),
		})
	}
	rows = append(rows, sheet.Row{
		"周初":      sheet.String("not a date"),
		"A2RD亚马逊": sheet.String("10"),
	})
	src.Add("01 周度目标销量表", rows...)

	report := run(t, src, fs)
	stats := report.Sheets["01 周度目标销量表"]
	require.NotNil(t, stats)
	assert.Equal(t, 10, stats.Written)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 1, report.ErrorsTotal)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "row 12")
}

func TestNegativeUnitCostSkipsOnlyThatRow(t *testing.T) {
	fs := newFakeStore()
	src := sheet.NewMemory()
	rows := make([]sheet.Row, 0, 11)
	for i := 0; i < 10; i++ {
		rows = append(rows, sheet.Row{
			"SKU":       sheet.String(fmt.Sprintf("A2C%d", i)),
			"Unit Cost": sheet.String("50"),
		})
	}
	rows = append(rows, sheet.Row{
		"SKU":       sheet.String("A2BAD"),
		"Unit Cost": sheet.String("-5"),
	})
	src.Add("Products", rows...)

	report := run(t, src, fs)
	stats := report.Sheets["Products"]
	require.NotNil(t, stats)
	assert.Equal(t, 10, stats.Written)
	assert.Equal(t, 1, stats.Errors)
	assert.Len(t, fs.data[colProducts], 10)
}

func TestMissingRequiredColumnAbortsSheet(t *testing.T) {
	fs := newFakeStore()
	src := sheet.NewMemory().Add("02 采购下单数据表",
		sheet.Row{"A2RD 亚马逊": sheet.String("5")},
	)
	_, err := testOrchestrator(t, src, fs).Run(context.Background())
	var se *StructuralError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Missing, "下单批次")
}

func TestShipmentsResolveWarehouseAndItems(t *testing.T) {
	fs := newFakeStore()
	src := sheet.NewMemory().Add("04 物流数据表",
		sheet.Row{
			"单号":     sheet.String("TRK-100"),
			"物流批次":   sheet.String("L-01"),
			"仓库":     sheet.String("TEB4"),
			"报关":     sheet.String("是"),
			"方案":     sheet.String("海运"),
			"开船日期":   sheet.String("2025-04-01"),
			"预计签收天数": sheet.String("30"),
			"公斤数":    sheet.String("120.5"),
			"台数":     sheet.String("60"),
			"公斤单价":   sheet.String("2.4"),
			"其他杂费":   sheet.String("15"),
			"A2RD":   sheet.String("40"),
			"W1BK":   sheet.String("20"),
		},
	)
	report := run(t, src, fs)
	require.False(t, report.HasErrors())

	wh := fs.one(t, colWarehouses, map[string]string{"warehouse_code": "TEB4"})
	assert.Equal(t, "FBA", wh.Str("warehouse_type"))
	assert.Equal(t, RegionEast, wh.Str("region"))

	sh := fs.one(t, colShipments, map[string]string{"tracking_number": "TRK-100"})
	assert.Equal(t, wh.ID(), sh.Str("destination_warehouse_id"))
	assert.Equal(t, true, sh["customs_clearance"])
	assert.Equal(t, RegionEast, sh.Str("logistics_region"))
	assert.Equal(t, "2025-04-01", sh.Str("actual_departure_date"))
	// derived from departure + planned days
	assert.Equal(t, "2025-05-01", sh.Str("planned_arrival_date"))

	items, err := fs.Query(context.Background(), colShipmentItems,
		map[string]string{"shipment_id": sh.ID()})
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestShipmentItemsFoldChannelSuffixedColumns(t *testing.T) {
	fs := newFakeStore()
	src := sheet.NewMemory().Add("04 物流数据表",
		sheet.Row{
			"单号":       sheet.String("TRK-200"),
			"仓库":       sheet.String("ORD2"),
			"A2RD亚马逊":  sheet.String("40"),
			"A2RD官网":   sheet.String("10"),
			"W1BK 亚马逊": sheet.String("20"),
		},
	)
	report := run(t, src, fs)
	require.False(t, report.HasErrors())

	sh := fs.one(t, colShipments, map[string]string{"tracking_number": "TRK-200"})
	items, err := fs.Query(context.Background(), colShipmentItems,
		map[string]string{"shipment_id": sh.ID()})
	require.NoError(t, err)
	require.Len(t, items, 2)

	// the same SKU shipped for two channels collapses into one line
	a2 := fs.one(t, colShipmentItems, map[string]string{"shipment_id": sh.ID(), "sku": "A2RD"})
	assert.Equal(t, 50, a2["shipped_qty"])
	w1 := fs.one(t, colShipmentItems, map[string]string{"shipment_id": sh.ID(), "sku": "W1BK"})
	assert.Equal(t, 20, w1["shipped_qty"])
}

func TestLegacyMasterSheets(t *testing.T) {
	fs := newFakeStore()
	src := sheet.NewMemory().
		Add("Products", sheet.Row{
			"SKU":          sheet.String("A2RD"),
			"Product Name": sheet.String("Scooter A2 Red"),
			"Unit Cost":    sheet.String("52.5"),
		}).
		Add("Warehouses", sheet.Row{
			"Warehouse Code": sheet.String("NJ-08810"),
			"Type":           sheet.String("3PL"),
		}).
		Add("Inventory", sheet.Row{
			"SKU":            sheet.String("A2RD"),
			"Warehouse Code": sheet.String("NJ-08810"),
			"Qty On Hand":    sheet.String("150"),
			"Last Counted":   sheet.String("2025-05-01"),
		})
	report := run(t, src, fs)
	require.False(t, report.HasErrors())

	prod := fs.one(t, colProducts, map[string]string{"sku": "A2RD"})
	assert.Equal(t, "Scooter A2 Red", prod.Str("product_name"))
	assert.Equal(t, 52.5, prod["unit_cost_usd"])

	wh := fs.one(t, colWarehouses, map[string]string{"warehouse_code": "NJ-08810"})
	assert.Equal(t, "NJ", wh.Str("state"))
	assert.Equal(t, "08810", wh.Str("postal_code"))

	inv := fs.one(t, colInventorySnaps, map[string]string{"sku": "A2RD"})
	assert.Equal(t, wh.ID(), inv.Str("warehouse_id"))
	assert.Equal(t, 150, inv["qty_on_hand"])
}

func TestInventoryRejectsUnknownWarehouse(t *testing.T) {
	fs := newFakeStore()
	src := sheet.NewMemory().Add("Inventory", sheet.Row{
		"SKU":            sheet.String("A2RD"),
		"Warehouse Code": sheet.String("GHOST"),
		"Qty On Hand":    sheet.String("5"),
	})
	report := run(t, src, fs)
	assert.Equal(t, 1, report.ErrorsTotal)
	assert.Empty(t, fs.data[colInventorySnaps])
	assert.Empty(t, fs.data[colWarehouses], "snapshots never create warehouses")
}

func TestDryRunWritesNothing(t *testing.T) {
	fs := newFakeStore()
	dry := store.NewDryRun(fs)
	src := sheet.NewMemory().Add("02 采购下单数据表",
		sheet.Row{
			"下单批次":     sheet.String("B-2025-01"),
			"下单日期":     sheet.String("2025-01-06"),
			"A2RD 亚马逊": sheet.String("5"),
		},
	)
	orch := testOrchestrator(t, src, dry)
	orch.Mode = ModeDryRun
	report, err := orch.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.HasErrors())

	for collection, recs := range fs.data {
		assert.Empty(t, recs, "collection %s written during dry run", collection)
	}
	assert.Greater(t, dry.Writes(), 0)
}

func TestReportCapsErrorExcerpt(t *testing.T) {
	fs := newFakeStore()
	src := sheet.NewMemory()
	rows := make([]sheet.Row, 0, 15)
	for i := 0; i < 15; i++ {
		rows = append(rows, sheet.Row{
			"周初":      sheet.String(fmt.Sprintf("bogus-%d", i)),
			"A2RD亚马逊": sheet.String("1"),
		})
	}
	src.Add("01 周度目标销量表", rows...)

	orch := testOrchestrator(t, src, fs)
	orch.MaxReportedErrors = 10
	report, err := orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 15, report.ErrorsTotal)
	assert.Len(t, report.Errors, 10)
}
