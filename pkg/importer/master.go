package importer

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Legacy workbooks carry master data on English long-format sheets, one
// entity per row. Newer workbooks put the same data on the base info
// sheet instead; both are accepted.
const (
	legacySheetProducts   = "Products"
	legacySheetChannels   = "Channels"
	legacySheetWarehouses = "Warehouses"
	legacySheetSuppliers  = "Suppliers"
	legacySheetInventory  = "Inventory"
)

// Base info sheet columns. Each column is an independent list; the rows
// do not relate to each other.
const (
	labelMasterSKU     = "产品SKU"
	labelMasterSPU     = "产品SPU"
	labelMasterChannel = "销售渠道"
	labelFBACode       = "仓库代号(FBA)"
	labelWinitCode     = "仓库代号(Winit)"
)

// importBaseInfo reads the base info sheet, where each column holds an
// independent catalog list.
func (o *Orchestrator) importBaseInfo(ctx context.Context) error {
	name := o.Map.Sheets.BaseInfo
	rows, stats, err := o.loadSheet(name, labelMasterSKU)
	if err != nil {
		return err
	}
	for i, row := range rows {
		wrote := false
		if sku := row.Get(labelMasterSKU).String(); sku != "" {
			p, perr := NormalizeProduct(sku)
			if perr == nil {
				_, perr = o.resolver.UpsertProduct(ctx, p)
			}
			if perr != nil {
				if err := o.rowFailure(stats, name, i, perr); err != nil {
					return err
				}
				continue
			}
			wrote = true
		}
		if code := row.Get(labelFBACode).String(); code != "" {
			if _, werr := o.resolver.EnsureWarehouse(ctx, code, WarehouseFBA); werr != nil {
				if err := o.rowFailure(stats, name, i, werr); err != nil {
					return err
				}
				continue
			}
			wrote = true
		}
		if code := row.Get(labelWinitCode).String(); code != "" {
			if _, werr := o.resolver.EnsureWarehouse(ctx, code, Warehouse3PL); werr != nil {
				if err := o.rowFailure(stats, name, i, werr); err != nil {
					return err
				}
				continue
			}
			wrote = true
		}
		if label := row.Get(labelMasterChannel).String(); label != "" {
			if _, ok := o.Map.ChannelCode(label); !ok {
				codes := make([]string, 0, len(DefaultChannels()))
				for _, ch := range DefaultChannels() {
					codes = append(codes, ch.Code)
				}
				if err := o.rowFailure(stats, name, i, enumError("channel", label, codes...)); err != nil {
					return err
				}
				continue
			}
		}
		if wrote {
			stats.Written++
		} else {
			stats.Skipped++
		}
	}
	return nil
}

func (o *Orchestrator) importLegacyProducts(ctx context.Context) error {
	rows, stats, err := o.loadSheet(legacySheetProducts, "SKU")
	if err != nil {
		return err
	}
	for i, row := range rows {
		sku := strings.ToUpper(row.Get("SKU").String())
		spu, color := SplitSKU(sku)
		p := Product{
			SKU:              sku,
			SPU:              spu,
			ColorCode:        color,
			ProductName:      row.Get("Product Name").String(),
			Category:         row.Get("Category").String(),
			UnitCostUSD:      FamilyUnitPrice(sku),
			SafetyStockWeeks: 4,
			IsActive:         true,
		}
		if p.ProductName == "" {
			p.ProductName = sku
		}
		if cost, ok := row.Get("Unit Cost").Float(); ok {
			p.UnitCostUSD = decimal.NewFromFloat(cost)
		}
		if weeks, ok := row.Get("Safety Stock Weeks").Int(); ok {
			p.SafetyStockWeeks = weeks
		}
		if !p.UnitCostUSD.IsPositive() {
			if err := o.rowFailure(stats, legacySheetProducts, i,
				&ValidationError{Field: "unit_cost_usd", Message: "must be > 0"}); err != nil {
				return err
			}
			continue
		}
		if _, uerr := o.resolver.UpsertProduct(ctx, p); uerr != nil {
			if err := o.rowFailure(stats, legacySheetProducts, i, uerr); err != nil {
				return err
			}
			continue
		}
		stats.Written++
	}
	return nil
}

func (o *Orchestrator) importLegacyChannels(ctx context.Context) error {
	rows, stats, err := o.loadSheet(legacySheetChannels, "Channel Code")
	if err != nil {
		return err
	}
	for i, row := range rows {
		ch := Channel{
			Code:     strings.ToUpper(row.Get("Channel Code").String()),
			Name:     row.Get("Channel Name").String(),
			Platform: row.Get("Platform").String(),
			Region:   row.Get("Region").String(),
		}
		if cerr := checkStruct(ch); cerr != nil {
			if err := o.rowFailure(stats, legacySheetChannels, i, cerr); err != nil {
				return err
			}
			continue
		}
		if _, uerr := o.resolver.upsertOne(ctx, colChannels, ch.record(), "channel_code"); uerr != nil {
			if err := o.rowFailure(stats, legacySheetChannels, i, uerr); err != nil {
				return err
			}
			continue
		}
		stats.Written++
	}
	return nil
}

func (o *Orchestrator) importLegacyWarehouses(ctx context.Context) error {
	rows, stats, err := o.loadSheet(legacySheetWarehouses, "Warehouse Code", "Type")
	if err != nil {
		return err
	}
	for i, row := range rows {
		code := strings.ToUpper(row.Get("Warehouse Code").String())
		w, werr := NormalizeWarehouse(code, strings.ToUpper(row.Get("Type").String()))
		if werr == nil {
			if name := row.Get("Warehouse Name").String(); name != "" {
				w.Name = name
			}
			if region := row.Get("Region").String(); region != "" {
				w.Region = RegionFromText(region)
			}
			_, werr = o.resolver.UpsertWarehouse(ctx, w)
		}
		if werr != nil {
			if err := o.rowFailure(stats, legacySheetWarehouses, i, werr); err != nil {
				return err
			}
			continue
		}
		stats.Written++
	}
	return nil
}

func (o *Orchestrator) importLegacySuppliers(ctx context.Context) error {
	rows, stats, err := o.loadSheet(legacySheetSuppliers, "Supplier Code")
	if err != nil {
		return err
	}
	for i, row := range rows {
		s := Supplier{
			Code:             strings.ToUpper(row.Get("Supplier Code").String()),
			Name:             row.Get("Supplier Name").String(),
			PaymentTermsDays: 60,
			IsActive:         true,
		}
		if days, ok := row.Get("Payment Terms (Days)").Int(); ok {
			s.PaymentTermsDays = days
		}
		if _, uerr := o.resolver.UpsertSupplier(ctx, s); uerr != nil {
			if err := o.rowFailure(stats, legacySheetSuppliers, i, uerr); err != nil {
				return err
			}
			continue
		}
		stats.Written++
	}
	return nil
}

// importLegacyInventory loads on-hand snapshots. Unknown warehouses are a
// row error rather than a lazy create: a count against a warehouse nobody
// defined is operator input worth flagging.
func (o *Orchestrator) importLegacyInventory(ctx context.Context) error {
	rows, stats, err := o.loadSheet(legacySheetInventory, "SKU", "Warehouse Code")
	if err != nil {
		return err
	}
	for i, row := range rows {
		sku := strings.ToUpper(row.Get("SKU").String())
		code := strings.ToUpper(row.Get("Warehouse Code").String())
		whID, werr := o.resolver.FindWarehouse(ctx, code)
		if werr != nil {
			return werr
		}
		if whID == "" {
			if err := o.rowFailure(stats, legacySheetInventory, i,
				&ValidationError{Field: "warehouse_code", Message: "unknown warehouse " + code}); err != nil {
				return err
			}
			continue
		}
		if _, perr := o.resolver.EnsureProduct(ctx, sku); perr != nil {
			if err := o.rowFailure(stats, legacySheetInventory, i, perr); err != nil {
				return err
			}
			continue
		}
		qty, _ := row.Get("Qty On Hand").Int()
		inv := InventorySnapshot{SKU: sku, WarehouseID: whID, QtyOnHand: qty}
		if t, ok := row.Get("Last Counted").Time(); ok {
			inv.LastCountedAt = t
		} else {
			inv.LastCountedAt = o.report.StartedAt
		}
		if verr := checkStruct(inv); verr != nil {
			if err := o.rowFailure(stats, legacySheetInventory, i, verr); err != nil {
				return err
			}
			continue
		}
		if _, uerr := o.resolver.upsertOne(ctx, colInventorySnaps, inv.record(), "sku", "warehouse_id"); uerr != nil {
			if err := o.rowFailure(stats, legacySheetInventory, i, uerr); err != nil {
				return err
			}
			continue
		}
		stats.Written++
		o.Log.WithFields(logrus.Fields{"sku": sku, "warehouse": code}).Debug("snapshot recorded")
	}
	return nil
}
