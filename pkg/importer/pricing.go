package importer

import (
	"strings"

	"github.com/shopspring/decimal"
)

var (
	premiumFamilyPrice  = decimal.NewFromInt(50)
	standardFamilyPrice = decimal.NewFromInt(35)
)

// FamilyUnitPrice returns the default purchase unit price for a SKU based
// on its product family. The A2 and A5 families carry the premium price,
// everything else the standard one.
func FamilyUnitPrice(sku string) decimal.Decimal {
	upper := strings.ToUpper(strings.TrimSpace(sku))
	if strings.HasPrefix(upper, "A2") || strings.HasPrefix(upper, "A5") {
		return premiumFamilyPrice
	}
	return standardFamilyPrice
}
