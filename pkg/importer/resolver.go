package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rolloy/scm-import/pkg/store"
)

// Resolver turns business keys from the sheets into store row ids,
// creating missing parents on the way. Resolved ids are cached for the
// lifetime of one run, so a SKU seen on five sheets hits the store once.
type Resolver struct {
	store store.Store
	log   *logrus.Entry
	ids   map[string]string

	// LazyCreated counts parents that had to be created because a child
	// row referenced them before any sheet defined them.
	LazyCreated map[string]int
}

func NewResolver(st store.Store, log *logrus.Entry) *Resolver {
	return &Resolver{
		store:       st,
		log:         log,
		ids:         make(map[string]string),
		LazyCreated: make(map[string]int),
	}
}

func cacheKey(collection string, parts ...string) string {
	key := collection
	for _, p := range parts {
		key += "\x00" + p
	}
	return key
}

// upsertOne writes a single record and returns the id the store assigned
// or merged onto.
func (r *Resolver) upsertOne(ctx context.Context, collection string, rec store.Record, conflictCols ...string) (string, error) {
	out, err := r.store.Upsert(ctx, collection, []store.Record{rec}, conflictCols...)
	if err != nil {
		return "", err
	}
	if len(out) == 0 || out[0].ID() == "" {
		return "", fmt.Errorf("%s: upsert returned no id", collection)
	}
	return out[0].ID(), nil
}

// lookup queries for an existing row and returns its id, or "" when the
// row does not exist.
func (r *Resolver) lookup(ctx context.Context, collection string, filter map[string]string) (string, error) {
	recs, err := r.store.Query(ctx, collection, filter)
	if err != nil {
		return "", err
	}
	if len(recs) == 0 {
		return "", nil
	}
	return recs[0].ID(), nil
}

// SeedChannels upserts the canonical channel catalog and primes the id
// cache so that fact rows resolve without further lookups.
func (r *Resolver) SeedChannels(ctx context.Context) error {
	for _, ch := range DefaultChannels() {
		id, err := r.upsertOne(ctx, colChannels, ch.record(), "channel_code")
		if err != nil {
			return err
		}
		r.ids[cacheKey(colChannels, ch.Code)] = id
	}
	return nil
}

// EnsureChannel resolves a canonical channel code to its id.
func (r *Resolver) EnsureChannel(ctx context.Context, code string) (string, error) {
	key := cacheKey(colChannels, code)
	if id, ok := r.ids[key]; ok {
		return id, nil
	}
	id, err := r.lookup(ctx, colChannels, map[string]string{"channel_code": code})
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", &ValidationError{Field: "channel_code", Message: "unknown channel " + code}
	}
	r.ids[key] = id
	return id, nil
}

// EnsureProduct resolves a SKU to its product id, creating the product
// with family defaults when no sheet defined it.
func (r *Resolver) EnsureProduct(ctx context.Context, sku string) (string, error) {
	key := cacheKey(colProducts, sku)
	if id, ok := r.ids[key]; ok {
		return id, nil
	}
	id, err := r.lookup(ctx, colProducts, map[string]string{"sku": sku})
	if err != nil {
		return "", err
	}
	if id == "" {
		p, perr := NormalizeProduct(sku)
		if perr != nil {
			return "", perr
		}
		id, err = r.upsertOne(ctx, colProducts, p.record(), "sku")
		if err != nil {
			return "", err
		}
		r.LazyCreated[colProducts]++
		r.log.WithField("sku", sku).Warn("product not in master data, created with family defaults")
	}
	r.ids[key] = id
	return id, nil
}

// UpsertProduct writes a fully specified product from the master sheet.
func (r *Resolver) UpsertProduct(ctx context.Context, p Product) (string, error) {
	if err := checkStruct(p); err != nil {
		return "", err
	}
	id, err := r.upsertOne(ctx, colProducts, p.record(), "sku")
	if err != nil {
		return "", err
	}
	r.ids[cacheKey(colProducts, p.SKU)] = id
	return id, nil
}

// EnsureWarehouse resolves a warehouse code, creating it with the region
// inferred from the code when it is new.
func (r *Resolver) EnsureWarehouse(ctx context.Context, code, typ string) (string, error) {
	key := cacheKey(colWarehouses, code)
	if id, ok := r.ids[key]; ok {
		return id, nil
	}
	id, err := r.lookup(ctx, colWarehouses, map[string]string{"warehouse_code": code})
	if err != nil {
		return "", err
	}
	if id == "" {
		w, werr := NormalizeWarehouse(code, typ)
		if werr != nil {
			return "", werr
		}
		id, err = r.upsertOne(ctx, colWarehouses, w.record(), "warehouse_code")
		if err != nil {
			return "", err
		}
		r.LazyCreated[colWarehouses]++
		r.log.WithFields(logrus.Fields{
			"warehouse": code,
			"region":    w.Region,
		}).Warn("warehouse not in master data, created from code")
	}
	r.ids[key] = id
	return id, nil
}

// FindWarehouse resolves a warehouse code without creating anything.
// Returns "" when the warehouse does not exist.
func (r *Resolver) FindWarehouse(ctx context.Context, code string) (string, error) {
	key := cacheKey(colWarehouses, code)
	if id, ok := r.ids[key]; ok {
		return id, nil
	}
	id, err := r.lookup(ctx, colWarehouses, map[string]string{"warehouse_code": code})
	if err != nil {
		return "", err
	}
	if id != "" {
		r.ids[key] = id
	}
	return id, nil
}

// UpsertWarehouse writes a fully specified warehouse from the master sheet.
func (r *Resolver) UpsertWarehouse(ctx context.Context, w Warehouse) (string, error) {
	if err := checkStruct(w); err != nil {
		return "", err
	}
	id, err := r.upsertOne(ctx, colWarehouses, w.record(), "warehouse_code")
	if err != nil {
		return "", err
	}
	r.ids[cacheKey(colWarehouses, w.Code)] = id
	return id, nil
}

// EnsureSupplier resolves the default supplier, seeding it on first use.
func (r *Resolver) EnsureSupplier(ctx context.Context) (string, error) {
	s := DefaultSupplier()
	key := cacheKey(colSuppliers, s.Code)
	if id, ok := r.ids[key]; ok {
		return id, nil
	}
	id, err := r.upsertOne(ctx, colSuppliers, s.record(), "supplier_code")
	if err != nil {
		return "", err
	}
	r.ids[key] = id
	return id, nil
}

// UpsertSupplier writes a supplier from the master sheet.
func (r *Resolver) UpsertSupplier(ctx context.Context, s Supplier) (string, error) {
	if err := checkStruct(s); err != nil {
		return "", err
	}
	id, err := r.upsertOne(ctx, colSuppliers, s.record(), "supplier_code")
	if err != nil {
		return "", err
	}
	r.ids[cacheKey(colSuppliers, s.Code)] = id
	return id, nil
}

// UpsertOrder writes a purchase order from the order sheet. Dates follow
// first-wins: when multiple rows share a batch the caller folds them
// before this is reached.
func (r *Resolver) UpsertOrder(ctx context.Context, po PurchaseOrder) (string, error) {
	if err := checkStruct(po); err != nil {
		return "", err
	}
	id, err := r.upsertOne(ctx, colPurchaseOrders, po.record(), "batch_code")
	if err != nil {
		return "", err
	}
	r.ids[cacheKey(colPurchaseOrders, po.BatchCode)] = id
	return id, nil
}

// EnsureOrder resolves a batch code to its purchase order id, creating a
// skeleton order when a delivery or shipment row mentions a batch that
// was never ordered.
func (r *Resolver) EnsureOrder(ctx context.Context, batchCode string) (string, error) {
	key := cacheKey(colPurchaseOrders, batchCode)
	if id, ok := r.ids[key]; ok {
		return id, nil
	}
	id, err := r.lookup(ctx, colPurchaseOrders, map[string]string{"batch_code": batchCode})
	if err != nil {
		return "", err
	}
	if id == "" {
		supplierID, serr := r.EnsureSupplier(ctx)
		if serr != nil {
			return "", serr
		}
		po := PurchaseOrder{
			PONumber:   PONumberFor(batchCode),
			BatchCode:  batchCode,
			SupplierID: supplierID,
			Status:     "Delivered",
		}
		id, err = r.upsertOne(ctx, colPurchaseOrders, po.record(), "batch_code")
		if err != nil {
			return "", err
		}
		r.LazyCreated[colPurchaseOrders]++
		r.log.WithField("batch", batchCode).Warn("batch has no purchase order, created skeleton")
	}
	r.ids[key] = id
	return id, nil
}

// UpsertOrderItem writes an order line with its full ordered quantity.
func (r *Resolver) UpsertOrderItem(ctx context.Context, it PurchaseOrderItem) (string, error) {
	if err := checkStruct(it); err != nil {
		return "", err
	}
	id, err := r.upsertOne(ctx, colPOItems, it.record(), "po_id", "sku", "channel_code")
	if err != nil {
		return "", err
	}
	r.ids[cacheKey(colPOItems, it.POID, it.SKU, it.ChannelCode)] = id
	return id, nil
}

// EnsureOrderItem resolves an order line, creating it with zero ordered
// quantity when a delivery references a line that was never ordered.
// The zero keeps delivered-vs-ordered variance visible instead of
// silently backfilling demand.
func (r *Resolver) EnsureOrderItem(ctx context.Context, poID, sku, channelCode string) (string, error) {
	key := cacheKey(colPOItems, poID, sku, channelCode)
	if id, ok := r.ids[key]; ok {
		return id, nil
	}
	id, err := r.lookup(ctx, colPOItems, map[string]string{
		"po_id":        poID,
		"sku":          sku,
		"channel_code": channelCode,
	})
	if err != nil {
		return "", err
	}
	if id == "" {
		it := PurchaseOrderItem{
			POID:         poID,
			SKU:          sku,
			ChannelCode:  channelCode,
			OrderedQty:   0,
			UnitPriceUSD: FamilyUnitPrice(sku),
		}
		id, err = r.upsertOne(ctx, colPOItems, it.record(), "po_id", "sku", "channel_code")
		if err != nil {
			return "", err
		}
		r.LazyCreated[colPOItems]++
		r.log.WithFields(logrus.Fields{
			"sku":     sku,
			"channel": channelCode,
		}).Warn("delivery references unordered line, created with zero ordered qty")
	}
	r.ids[key] = id
	return id, nil
}

// withDefaultPrice fills a zero unit price from the SKU's family.
func withDefaultPrice(price decimal.Decimal, sku string) decimal.Decimal {
	if price.IsPositive() {
		return price
	}
	return FamilyUnitPrice(sku)
}

// firstDate keeps the earlier non-nil date, used to fold per-row dates
// of one batch onto its order.
func firstDate(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	return a
}
