package importer

import (
	"fmt"
	"regexp"
	"strings"
)

// spuPrefixes are the known product family prefixes. SKUs outside these
// families fall back to their first two characters.
var spuPrefixes = []string{"A2", "A5", "W1", "W2"}

// colorTokens are the catalog color codes, longest first so compound
// tokens win over their prefixes.
var colorTokens = []string{"RD", "BK", "WH", "GY", "BL", "GN"}

// SplitSKU derives the SPU family and color code from a SKU like "A2RD".
// The color is the first known token found anywhere in the SKU; SKUs
// without one get an empty color.
func SplitSKU(sku string) (spu, color string) {
	upper := strings.ToUpper(strings.TrimSpace(sku))
	spu = ""
	for _, p := range spuPrefixes {
		if strings.HasPrefix(upper, p) {
			spu = p
			break
		}
	}
	if spu == "" && len(upper) >= 2 {
		spu = upper[:2]
	}
	for _, tok := range colorTokens {
		if strings.Contains(upper, tok) {
			return spu, tok
		}
	}
	return spu, ""
}

// NormalizeProduct builds a full product record from a bare SKU, filling
// family defaults for everything the sheet does not carry.
func NormalizeProduct(sku string) (Product, error) {
	sku = strings.ToUpper(strings.TrimSpace(sku))
	spu, color := SplitSKU(sku)
	p := Product{
		SKU:              sku,
		SPU:              spu,
		ColorCode:        color,
		ProductName:      sku,
		UnitCostUSD:      FamilyUnitPrice(sku),
		SafetyStockWeeks: 4,
		IsActive:         true,
	}
	if err := checkStruct(p); err != nil {
		return Product{}, err
	}
	if !p.UnitCostUSD.IsPositive() {
		return Product{}, &ValidationError{Field: "unit_cost_usd", Message: "must be > 0"}
	}
	return p, nil
}

// DefaultChannels is the canonical sales channel catalog seeded on every
// run so that fact rows always have a resolvable channel.
func DefaultChannels() []Channel {
	return []Channel{
		{Code: "AMZ-US", Name: "Amazon US", Platform: "amazon", Region: "US"},
		{Code: "SPF-US", Name: "Shopify US", Platform: "shopify", Region: "US"},
		{Code: "WMT-US", Name: "Walmart US", Platform: "walmart", Region: "US"},
	}
}

// DefaultSupplier is the placeholder counterparty assigned to purchase
// orders whose sheet carries no supplier column.
func DefaultSupplier() Supplier {
	return Supplier{
		Code:             "SUP001",
		Name:             "Default Supplier",
		PaymentTermsDays: 60,
		IsActive:         true,
	}
}

// Warehouse types.
const (
	WarehouseFBA = "FBA"
	Warehouse3PL = "3PL"
)

var postalRe = regexp.MustCompile(`^\d{5}$`)

// NormalizeWarehouse builds a warehouse record from a sheet code. FBA
// codes are Amazon fulfillment centers; everything else is treated as a
// third-party warehouse whose code may embed "STATE-ZIP".
func NormalizeWarehouse(code, typ string) (Warehouse, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	w := Warehouse{
		Code:     code,
		Name:     code,
		Type:     typ,
		IsActive: true,
	}
	switch typ {
	case WarehouseFBA:
		w.Region = FBARegion(code)
	case Warehouse3PL:
		w.Region = ThirdPartyRegion(code)
		if state, postal, ok := splitPostal(code); ok {
			w.State = state
			w.PostalCode = postal
		}
	}
	if err := checkStruct(w); err != nil {
		return Warehouse{}, err
	}
	return w, nil
}

// splitPostal decomposes 3PL codes like "NJ-08810" into state and ZIP.
func splitPostal(code string) (state, postal string, ok bool) {
	parts := strings.FieldsFunc(code, func(r rune) bool {
		return r == '-' || r == ' ' || r == '_'
	})
	if len(parts) != 2 || !postalRe.MatchString(parts[1]) {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// PONumberFor derives the stable purchase order number for a batch code.
// Batch codes are operator-entered and can run long, so they are capped
// before prefixing.
func PONumberFor(batchCode string) string {
	batchCode = strings.TrimSpace(batchCode)
	if len(batchCode) > 30 {
		batchCode = batchCode[:30]
	}
	return "PO-" + batchCode
}

// DeliveryNumberFor derives a deterministic delivery number from the
// sheet row position and the SKU, matching historic numbering.
func DeliveryNumberFor(seq int, sku string) string {
	return fmt.Sprintf("DEL-%04d-%s", seq, strings.ToUpper(strings.TrimSpace(sku)))
}
