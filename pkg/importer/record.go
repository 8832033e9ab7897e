package importer

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/rolloy/scm-import/pkg/store"
)

// Store collection names.
const (
	colProducts       = "products"
	colChannels       = "channels"
	colWarehouses     = "warehouses"
	colSuppliers      = "suppliers"
	colSalesForecasts = "sales_forecasts"
	colSalesActuals   = "sales_actuals"
	colPurchaseOrders = "purchase_orders"
	colPOItems        = "purchase_order_items"
	colDeliveries     = "production_deliveries"
	colShipments      = "shipments"
	colShipmentItems  = "shipment_items"
	colInventorySnaps = "inventory_snapshots"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// checkStruct runs tag validation and converts the first failure into a
// ValidationError so the orchestrator can record-and-continue.
func checkStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	ve := &ValidationError{Field: fe.Field()}
	switch fe.Tag() {
	case "oneof":
		ve.Message = "invalid value " + strings.TrimSpace(fe.Value().(string))
		ve.Allowed = strings.Fields(fe.Param())
	case "required":
		ve.Message = "is required"
	case "min", "gte":
		ve.Message = "must be >= " + fe.Param()
	case "max", "lte":
		ve.Message = "must be <= " + fe.Param()
	default:
		ve.Message = "failed " + fe.Tag() + " check"
	}
	return ve
}

// Product is the master record for one sellable SKU.
type Product struct {
	SKU              string          `json:"sku" validate:"required"`
	SPU              string          `json:"spu"`
	ColorCode        string          `json:"color_code" validate:"max=10"`
	ProductName      string          `json:"product_name"`
	Category         string          `json:"category"`
	UnitCostUSD      decimal.Decimal `json:"unit_cost_usd"`
	SafetyStockWeeks int             `json:"safety_stock_weeks" validate:"min=0,max=52"`
	IsActive         bool            `json:"is_active"`
}

func (p Product) record() store.Record {
	rec := store.Record{
		"sku":                p.SKU,
		"spu":                p.SPU,
		"color_code":         p.ColorCode,
		"product_name":       p.ProductName,
		"unit_cost_usd":      p.UnitCostUSD.InexactFloat64(),
		"safety_stock_weeks": p.SafetyStockWeeks,
		"is_active":          p.IsActive,
	}
	if p.Category != "" {
		rec["category"] = p.Category
	}
	return rec
}

// Channel is a sales channel (marketplace or own storefront).
type Channel struct {
	Code     string `json:"channel_code" validate:"required"`
	Name     string `json:"channel_name"`
	Platform string `json:"platform"`
	Region   string `json:"region"`
}

func (c Channel) record() store.Record {
	return store.Record{
		"channel_code": c.Code,
		"channel_name": c.Name,
		"platform":     c.Platform,
		"region":       c.Region,
	}
}

// Warehouse is a fulfillment destination.
type Warehouse struct {
	Code       string `json:"warehouse_code" validate:"required"`
	Name       string `json:"warehouse_name"`
	Type       string `json:"warehouse_type" validate:"oneof=FBA 3PL"`
	Region     string `json:"region" validate:"oneof=East Central West"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	IsActive   bool   `json:"is_active"`
}

func (w Warehouse) record() store.Record {
	rec := store.Record{
		"warehouse_code": w.Code,
		"warehouse_name": w.Name,
		"warehouse_type": w.Type,
		"region":         w.Region,
		"is_active":      w.IsActive,
	}
	if w.State != "" {
		rec["state"] = w.State
	}
	if w.PostalCode != "" {
		rec["postal_code"] = w.PostalCode
	}
	return rec
}

// Supplier is a manufacturing counterparty.
type Supplier struct {
	Code             string `json:"supplier_code" validate:"required"`
	Name             string `json:"supplier_name"`
	PaymentTermsDays int    `json:"payment_terms_days" validate:"min=0"`
	IsActive         bool   `json:"is_active"`
}

func (s Supplier) record() store.Record {
	return store.Record{
		"supplier_code":      s.Code,
		"supplier_name":      s.Name,
		"payment_terms_days": s.PaymentTermsDays,
		"is_active":          s.IsActive,
	}
}

// FactKind selects which weekly sales table a fact belongs to.
type FactKind string

const (
	FactForecast FactKind = "forecast"
	FactActual   FactKind = "actual"
)

// SalesFact is one weekly quantity for a (sku, channel, week) key, either
// forecast or actual.
type SalesFact struct {
	Kind        FactKind  `json:"-"`
	SKU         string    `json:"sku" validate:"required"`
	ChannelCode string    `json:"channel_code" validate:"required"`
	WeekISO     string    `json:"week_iso" validate:"required"`
	WeekStart   time.Time `json:"-"`
	WeekEnd     time.Time `json:"-"`
	Qty         int       `json:"qty" validate:"min=0"`
}

func (f SalesFact) collection() string {
	if f.Kind == FactActual {
		return colSalesActuals
	}
	return colSalesForecasts
}

func (f SalesFact) record() store.Record {
	rec := store.Record{
		"sku":             f.SKU,
		"channel_code":    f.ChannelCode,
		"week_iso":        f.WeekISO,
		"week_start_date": dateStr(f.WeekStart),
		"week_end_date":   dateStr(f.WeekEnd),
	}
	if f.Kind == FactActual {
		rec["actual_qty"] = f.Qty
	} else {
		rec["forecast_qty"] = f.Qty
	}
	return rec
}

// PurchaseOrder groups the order rows of one production batch.
type PurchaseOrder struct {
	PONumber        string     `json:"po_number" validate:"required"`
	BatchCode       string     `json:"batch_code" validate:"required"`
	SupplierID      string     `json:"supplier_id"`
	Status          string     `json:"po_status"`
	OrderDate       *time.Time `json:"-"`
	PlannedShipDate *time.Time `json:"-"`
}

func (po PurchaseOrder) record() store.Record {
	rec := store.Record{
		"po_number":  po.PONumber,
		"batch_code": po.BatchCode,
		"po_status":  po.Status,
	}
	if po.SupplierID != "" {
		rec["supplier_id"] = po.SupplierID
	}
	if po.OrderDate != nil {
		rec["actual_order_date"] = dateStr(*po.OrderDate)
	}
	if po.PlannedShipDate != nil {
		rec["planned_ship_date"] = dateStr(*po.PlannedShipDate)
	}
	return rec
}

// PurchaseOrderItem is one (sku, channel) line of a purchase order.
type PurchaseOrderItem struct {
	POID         string          `json:"po_id" validate:"required"`
	SKU          string          `json:"sku" validate:"required"`
	ChannelCode  string          `json:"channel_code" validate:"required"`
	OrderedQty   int             `json:"ordered_qty" validate:"min=0"`
	DeliveredQty int             `json:"delivered_qty" validate:"min=0"`
	UnitPriceUSD decimal.Decimal `json:"unit_price_usd"`
}

func (it PurchaseOrderItem) record() store.Record {
	return store.Record{
		"po_id":          it.POID,
		"sku":            it.SKU,
		"channel_code":   it.ChannelCode,
		"ordered_qty":    it.OrderedQty,
		"delivered_qty":  it.DeliveredQty,
		"unit_price_usd": it.UnitPriceUSD.InexactFloat64(),
	}
}

// ProductionDelivery records factory output against a PO item.
type ProductionDelivery struct {
	DeliveryNumber string          `json:"delivery_number" validate:"required"`
	POItemID       string          `json:"po_item_id" validate:"required"`
	SKU            string          `json:"sku" validate:"required"`
	ChannelCode    string          `json:"channel_code"`
	DeliveredQty   int             `json:"delivered_qty" validate:"min=0"`
	DeliveryDate   *time.Time      `json:"-"`
	UnitCostUSD    decimal.Decimal `json:"unit_cost_usd"`
	PaymentStatus  string          `json:"payment_status"`
	Remarks        string          `json:"remarks"`
}

func (d ProductionDelivery) record() store.Record {
	rec := store.Record{
		"delivery_number": d.DeliveryNumber,
		"po_item_id":      d.POItemID,
		"sku":             d.SKU,
		"channel_code":    d.ChannelCode,
		"delivered_qty":   d.DeliveredQty,
		"unit_cost_usd":   d.UnitCostUSD.InexactFloat64(),
		"payment_status":  d.PaymentStatus,
	}
	if d.DeliveryDate != nil {
		rec["actual_delivery_date"] = dateStr(*d.DeliveryDate)
	}
	if d.Remarks != "" {
		rec["remarks"] = d.Remarks
	}
	return rec
}

// Shipment is one logistics movement toward a destination warehouse.
type Shipment struct {
	TrackingNumber     string     `json:"tracking_number" validate:"required"`
	BatchCode          string     `json:"batch_code"`
	LogisticsBatchCode string     `json:"logistics_batch_code"`
	WarehouseID        string     `json:"destination_warehouse_id" validate:"required"`
	CustomsClearance   bool       `json:"customs_clearance"`
	LogisticsPlan      string     `json:"logistics_plan"`
	LogisticsRegion    string     `json:"logistics_region" validate:"oneof=East Central West"`
	DepartureDate      *time.Time `json:"-"`
	PlannedArrivalDays *int       `json:"planned_arrival_days"`
	PlannedArrivalDate *time.Time `json:"-"`
	ActualArrivalDate  *time.Time `json:"-"`
	WeightKG           *float64   `json:"weight_kg"`
	UnitCount          *int       `json:"unit_count"`
	CostPerKgUSD       *float64   `json:"cost_per_kg_usd"`
	SurchargeUSD       float64    `json:"surcharge_usd"`
	PaymentStatus      string     `json:"payment_status"`
}

func (sh Shipment) record() store.Record {
	rec := store.Record{
		"tracking_number":          sh.TrackingNumber,
		"destination_warehouse_id": sh.WarehouseID,
		"customs_clearance":        sh.CustomsClearance,
		"logistics_region":         sh.LogisticsRegion,
		"surcharge_usd":            sh.SurchargeUSD,
		"payment_status":           sh.PaymentStatus,
	}
	if sh.BatchCode != "" {
		rec["batch_code"] = sh.BatchCode
	}
	if sh.LogisticsBatchCode != "" {
		rec["logistics_batch_code"] = sh.LogisticsBatchCode
	}
	if sh.LogisticsPlan != "" {
		rec["logistics_plan"] = sh.LogisticsPlan
	}
	if sh.DepartureDate != nil {
		rec["actual_departure_date"] = dateStr(*sh.DepartureDate)
	}
	if sh.PlannedArrivalDays != nil {
		rec["planned_arrival_days"] = *sh.PlannedArrivalDays
	}
	if sh.PlannedArrivalDate != nil {
		rec["planned_arrival_date"] = dateStr(*sh.PlannedArrivalDate)
	}
	if sh.ActualArrivalDate != nil {
		rec["actual_arrival_date"] = dateStr(*sh.ActualArrivalDate)
	}
	if sh.WeightKG != nil {
		rec["weight_kg"] = *sh.WeightKG
	}
	if sh.UnitCount != nil {
		rec["unit_count"] = *sh.UnitCount
	}
	if sh.CostPerKgUSD != nil {
		rec["cost_per_kg_usd"] = *sh.CostPerKgUSD
	}
	return rec
}

// ShipmentItem is the shipped quantity of one SKU within a shipment.
type ShipmentItem struct {
	ShipmentID string `json:"shipment_id" validate:"required"`
	SKU        string `json:"sku" validate:"required"`
	ShippedQty int    `json:"shipped_qty" validate:"min=0"`
}

func (it ShipmentItem) record() store.Record {
	return store.Record{
		"shipment_id": it.ShipmentID,
		"sku":         it.SKU,
		"shipped_qty": it.ShippedQty,
	}
}

// InventorySnapshot is an on-hand count for (sku, warehouse).
type InventorySnapshot struct {
	SKU           string    `json:"sku" validate:"required"`
	WarehouseID   string    `json:"warehouse_id" validate:"required"`
	QtyOnHand     int       `json:"qty_on_hand" validate:"min=0"`
	LastCountedAt time.Time `json:"-"`
}

func (inv InventorySnapshot) record() store.Record {
	return store.Record{
		"sku":             inv.SKU,
		"warehouse_id":    inv.WarehouseID,
		"qty_on_hand":     inv.QtyOnHand,
		"last_counted_at": inv.LastCountedAt.UTC().Format(time.RFC3339),
	}
}

func dateStr(t time.Time) string { return t.Format("2006-01-02") }
