package importer

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rolloy/scm-import/pkg/sheet"
	"github.com/rolloy/scm-import/pkg/store"
)

// Key column labels on the transactional sheets.
const (
	labelWeekStart      = "周初"
	labelWeekEnd        = "周末"
	labelBatch          = "下单批次"
	labelOrderDate      = "下单日期"
	labelShipDate       = "预计出货日期"
	labelProdBatch      = "生产批次"
	labelDeliveryDate   = "实际交付日期"
	labelDeliveryPrice  = "交付单价"
	labelRemarks        = "备注"
	labelTracking       = "单号"
	labelLogisticsBatch = "物流批次"
	labelWarehouse      = "仓库"
	labelCustoms        = "报关"
	labelPlan           = "方案"
	labelRegion         = "区域"
	labelDeparture      = "开船日期"
	labelArrivalDays    = "预计签收天数"
	labelArrivalPlan    = "预计签收日期"
	labelArrivalActual  = "实际签收日期"
	labelWeightKG       = "公斤数"
	labelUnitCount      = "台数"
	labelCostPerKG      = "公斤单价"
	labelSurcharge      = "其他杂费"
)

// importFacts loads one weekly wide sheet, either forecasts or actuals.
// The week start column anchors each row onto its ISO week; an explicit
// week end overrides only the derived end date.
func (o *Orchestrator) importFacts(ctx context.Context, name string, kind FactKind) error {
	rows, stats, err := o.loadSheet(name, labelWeekStart)
	if err != nil {
		return err
	}
	for i, row := range rows {
		ws, ok := row.Get(labelWeekStart).Time()
		if !ok {
			if err := o.rowFailure(stats, name, i,
				&ValidationError{Field: "week_start", Message: "not a date: " + row.Get(labelWeekStart).String()}); err != nil {
				return err
			}
			continue
		}
		week := WeekOf(ws)
		if we, ok := row.Get(labelWeekEnd).Time(); ok {
			week.End = we
		}
		facts := o.Map.Facts(row)
		if len(facts) == 0 {
			stats.Skipped++
			continue
		}
		failed := false
		for _, f := range facts {
			sf := SalesFact{
				Kind:        kind,
				SKU:         f.SKU,
				ChannelCode: f.ChannelCode,
				WeekISO:     week.ISO,
				WeekStart:   week.Start,
				WeekEnd:     week.End,
				Qty:         f.Qty,
			}
			werr := o.writeFact(ctx, sf)
			if werr != nil {
				if err := o.rowFailure(stats, name, i, werr); err != nil {
					return err
				}
				failed = true
				break
			}
		}
		if !failed {
			stats.Written++
		}
	}
	return nil
}

func (o *Orchestrator) writeFact(ctx context.Context, sf SalesFact) error {
	if err := checkStruct(sf); err != nil {
		return err
	}
	if _, err := o.resolver.EnsureProduct(ctx, sf.SKU); err != nil {
		return err
	}
	if _, err := o.resolver.EnsureChannel(ctx, sf.ChannelCode); err != nil {
		return err
	}
	_, err := o.resolver.upsertOne(ctx, sf.collection(), sf.record(),
		"sku", "channel_code", "week_iso")
	return err
}

type itemKey struct{ sku, channel string }

type orderBatch struct {
	code      string
	row       int // first sheet row of the batch, for error reporting
	rows      int // contributing sheet rows, counted as written on flush
	orderDate *time.Time
	shipDate  *time.Time
	qty       map[itemKey]int
	keys      []itemKey
}

// importOrders folds the order sheet into one purchase order per batch.
// Quantities for the same (sku, channel) accumulate across rows; the
// first row of a batch wins its dates.
func (o *Orchestrator) importOrders(ctx context.Context) error {
	name := o.Map.Sheets.Orders
	rows, stats, err := o.loadSheet(name, labelBatch, labelOrderDate)
	if err != nil {
		return err
	}

	batches := make(map[string]*orderBatch)
	var order []string
	for i, row := range rows {
		code := row.Get(labelBatch).String()
		if code == "" {
			if err := o.rowFailure(stats, name, i,
				&ValidationError{Field: "batch_code", Message: "is required"}); err != nil {
				return err
			}
			continue
		}
		b := batches[code]
		if b == nil {
			b = &orderBatch{code: code, row: i, qty: make(map[itemKey]int)}
			batches[code] = b
			order = append(order, code)
		}
		if t, ok := row.Get(labelOrderDate).Time(); ok {
			b.orderDate = firstDate(b.orderDate, &t)
		}
		if t, ok := row.Get(labelShipDate).Time(); ok {
			b.shipDate = firstDate(b.shipDate, &t)
		}
		for _, f := range o.Map.Facts(row) {
			k := itemKey{sku: f.SKU, channel: f.ChannelCode}
			if _, seen := b.qty[k]; !seen {
				b.keys = append(b.keys, k)
			}
			b.qty[k] += f.Qty
		}
		b.rows++
	}

	supplierID, err := o.resolver.EnsureSupplier(ctx)
	if err != nil {
		return err
	}
	for _, code := range order {
		b := batches[code]
		if berr := o.flushOrderBatch(ctx, b, supplierID); berr != nil {
			if err := o.rowFailure(stats, name, b.row, berr); err != nil {
				return err
			}
			continue
		}
		stats.Written += b.rows
	}
	return nil
}

func (o *Orchestrator) flushOrderBatch(ctx context.Context, b *orderBatch, supplierID string) error {
	po := PurchaseOrder{
		PONumber:        PONumberFor(b.code),
		BatchCode:       b.code,
		SupplierID:      supplierID,
		Status:          "Delivered",
		OrderDate:       b.orderDate,
		PlannedShipDate: b.shipDate,
	}
	poID, err := o.resolver.UpsertOrder(ctx, po)
	if err != nil {
		return err
	}
	for _, k := range b.keys {
		if _, err := o.resolver.EnsureProduct(ctx, k.sku); err != nil {
			return err
		}
		if _, err := o.resolver.EnsureChannel(ctx, k.channel); err != nil {
			return err
		}
		it := PurchaseOrderItem{
			POID:         poID,
			SKU:          k.sku,
			ChannelCode:  k.channel,
			OrderedQty:   b.qty[k],
			UnitPriceUSD: FamilyUnitPrice(k.sku),
		}
		if _, err := o.resolver.UpsertOrderItem(ctx, it); err != nil {
			return err
		}
	}
	return nil
}

// importDeliveries records factory output rows against order lines,
// creating skeleton orders and zero-quantity lines for batches the order
// sheet never mentioned.
func (o *Orchestrator) importDeliveries(ctx context.Context) error {
	name := o.Map.Sheets.Deliveries
	rows, stats, err := o.loadSheet(name, labelProdBatch)
	if err != nil {
		return err
	}
	for i, row := range rows {
		batch := row.Get(labelProdBatch).String()
		if batch == "" {
			if err := o.rowFailure(stats, name, i,
				&ValidationError{Field: "batch_code", Message: "is required"}); err != nil {
				return err
			}
			continue
		}
		facts := o.Map.Facts(row)
		if len(facts) == 0 {
			stats.Skipped++
			continue
		}
		poID, oerr := o.resolver.EnsureOrder(ctx, batch)
		if oerr != nil {
			if err := o.rowFailure(stats, name, i, oerr); err != nil {
				return err
			}
			continue
		}
		var deliveryDate *time.Time
		if t, ok := row.Get(labelDeliveryDate).Time(); ok {
			deliveryDate = &t
		}
		price := decimal.Zero
		if f, ok := row.Get(labelDeliveryPrice).Float(); ok {
			price = decimal.NewFromFloat(f)
		}
		remarks := row.Get(labelRemarks).String()

		failed := false
		for _, f := range facts {
			if _, perr := o.resolver.EnsureProduct(ctx, f.SKU); perr != nil {
				if err := o.rowFailure(stats, name, i, perr); err != nil {
					return err
				}
				failed = true
				break
			}
			if _, cerr := o.resolver.EnsureChannel(ctx, f.ChannelCode); cerr != nil {
				if err := o.rowFailure(stats, name, i, cerr); err != nil {
					return err
				}
				failed = true
				break
			}
			itemID, ierr := o.resolver.EnsureOrderItem(ctx, poID, f.SKU, f.ChannelCode)
			if ierr != nil {
				if err := o.rowFailure(stats, name, i, ierr); err != nil {
					return err
				}
				failed = true
				break
			}
			d := ProductionDelivery{
				DeliveryNumber: DeliveryNumberFor(i+1, f.SKU),
				POItemID:       itemID,
				SKU:            f.SKU,
				ChannelCode:    f.ChannelCode,
				DeliveredQty:   f.Qty,
				DeliveryDate:   deliveryDate,
				UnitCostUSD:    withDefaultPrice(price, f.SKU),
				PaymentStatus:  "Pending",
				Remarks:        remarks,
			}
			if verr := checkStruct(d); verr != nil {
				if err := o.rowFailure(stats, name, i, verr); err != nil {
					return err
				}
				failed = true
				break
			}
			// Delivery numbers are deterministic, so a re-run hits the same
			// key; the duplicate is the idempotency signal, not a failure.
			if _, werr := o.Store.Insert(ctx, colDeliveries, d.record()); werr != nil && !store.IsConflict(werr) {
				if err := o.rowFailure(stats, name, i, werr); err != nil {
					return err
				}
				failed = true
				break
			}
		}
		if !failed {
			stats.Written++
		}
	}
	return nil
}

// skuLabelRe matches bare SKU column headers on the shipments sheet,
// e.g. "A2RD" or "W1BK". The usual layout suffixes a channel alias to
// each header; the bare form shows up on older workbooks.
var skuLabelRe = regexp.MustCompile(`^[A-Z][0-9][A-Z0-9]{1,8}$`)

// importShipments records logistics movements and their per-SKU contents.
func (o *Orchestrator) importShipments(ctx context.Context) error {
	name := o.Map.Sheets.Shipments
	rows, stats, err := o.loadSheet(name, labelTracking, labelWarehouse)
	if err != nil {
		return err
	}
	for i, row := range rows {
		tracking := row.Get(labelTracking).String()
		code := strings.ToUpper(row.Get(labelWarehouse).String())
		if tracking == "" || code == "" {
			if err := o.rowFailure(stats, name, i,
				&ValidationError{Field: "tracking_number", Message: "tracking and warehouse are required"}); err != nil {
				return err
			}
			continue
		}
		// FBA-bound loads carry an FBA-prefixed tracking number; anything
		// else goes to a third-party warehouse. Known fulfillment center
		// codes settle the ambiguous cases.
		typ := Warehouse3PL
		if _, ok := fbaRegions[code]; ok || strings.HasPrefix(strings.ToUpper(tracking), "FBA") {
			typ = WarehouseFBA
		}
		whID, werr := o.resolver.EnsureWarehouse(ctx, code, typ)
		if werr != nil {
			if err := o.rowFailure(stats, name, i, werr); err != nil {
				return err
			}
			continue
		}

		sh := Shipment{
			TrackingNumber:     tracking,
			BatchCode:          row.Get(labelBatch).String(),
			LogisticsBatchCode: row.Get(labelLogisticsBatch).String(),
			WarehouseID:        whID,
			CustomsClearance:   isAffirmative(row.Get(labelCustoms).String()),
			LogisticsPlan:      row.Get(labelPlan).String(),
			PaymentStatus:      "Pending",
		}
		if txt := row.Get(labelRegion).String(); txt != "" {
			sh.LogisticsRegion = RegionFromText(txt)
		} else if typ == WarehouseFBA {
			sh.LogisticsRegion = FBARegion(code)
		} else {
			sh.LogisticsRegion = ThirdPartyRegion(code)
		}
		if t, ok := row.Get(labelDeparture).Time(); ok {
			sh.DepartureDate = &t
		}
		if days, ok := row.Get(labelArrivalDays).Int(); ok {
			sh.PlannedArrivalDays = &days
		}
		if t, ok := row.Get(labelArrivalPlan).Time(); ok {
			sh.PlannedArrivalDate = &t
		} else if sh.DepartureDate != nil && sh.PlannedArrivalDays != nil {
			t := sh.DepartureDate.AddDate(0, 0, *sh.PlannedArrivalDays)
			sh.PlannedArrivalDate = &t
		}
		if t, ok := row.Get(labelArrivalActual).Time(); ok {
			sh.ActualArrivalDate = &t
		}
		if f, ok := row.Get(labelWeightKG).Float(); ok {
			sh.WeightKG = &f
		}
		if n, ok := row.Get(labelUnitCount).Int(); ok {
			sh.UnitCount = &n
		}
		if f, ok := row.Get(labelCostPerKG).Float(); ok {
			sh.CostPerKgUSD = &f
		}
		if f, ok := row.Get(labelSurcharge).Float(); ok {
			sh.SurchargeUSD = f
		}

		if verr := checkStruct(sh); verr != nil {
			if err := o.rowFailure(stats, name, i, verr); err != nil {
				return err
			}
			continue
		}
		shID, uerr := o.resolver.upsertOne(ctx, colShipments, sh.record(), "tracking_number")
		if uerr != nil {
			if err := o.rowFailure(stats, name, i, uerr); err != nil {
				return err
			}
			continue
		}

		failed := false
		for _, si := range shipmentItemSKUs(o.Map, row) {
			if _, perr := o.resolver.EnsureProduct(ctx, si.sku); perr != nil {
				if err := o.rowFailure(stats, name, i, perr); err != nil {
					return err
				}
				failed = true
				break
			}
			it := ShipmentItem{ShipmentID: shID, SKU: si.sku, ShippedQty: si.qty}
			if _, ierr := o.resolver.upsertOne(ctx, colShipmentItems, it.record(), "shipment_id", "sku"); ierr != nil {
				if err := o.rowFailure(stats, name, i, ierr); err != nil {
					return err
				}
				failed = true
				break
			}
		}
		if !failed {
			stats.Written++
		}
	}
	return nil
}

type shipmentItem struct {
	sku string
	qty int
}

// shipmentItemSKUs lifts the per-SKU quantities out of a shipments row.
// Headers normally carry a channel alias like the other wide sheets; the
// channel is irrelevant to the shipment, so quantities for the same SKU
// fold together across channels. Bare SKU headers are accepted too.
func shipmentItemSKUs(m *ColumnMap, row sheet.Row) []shipmentItem {
	qty := make(map[string]int)
	var skus []string
	for label, cell := range row {
		n, ok := cell.Int()
		if !ok || n <= 0 {
			continue
		}
		sku, _, ok := m.ParseFactLabel(label)
		if !ok {
			bare := strings.ToUpper(strings.TrimSpace(label))
			if !skuLabelRe.MatchString(bare) {
				continue
			}
			sku = bare
		}
		if _, seen := qty[sku]; !seen {
			skus = append(skus, sku)
		}
		qty[sku] += n
	}
	sort.Strings(skus)
	out := make([]shipmentItem, 0, len(skus))
	for _, sku := range skus {
		out = append(out, shipmentItem{sku: sku, qty: qty[sku]})
	}
	return out
}

func isAffirmative(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "Y", "YES", "是", "TRUE", "1":
		return true
	}
	return false
}
