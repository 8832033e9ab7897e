package importer

import "strings"

// Region values used across warehouses and shipments.
const (
	RegionEast    = "East"
	RegionCentral = "Central"
	RegionWest    = "West"
)

// fbaRegions maps Amazon fulfillment center codes to the coarse US region
// used for logistics planning.
var fbaRegions = map[string]string{
	// East coast
	"TEB4": RegionEast,
	"TEB9": RegionEast,
	"ACY2": RegionEast,
	"PHL4": RegionEast,
	"ABE8": RegionEast,
	"RDU2": RegionEast,
	"CLT2": RegionEast,
	"MDT1": RegionEast,
	// Central
	"ORD2": RegionCentral,
	"STL4": RegionCentral,
	"DFW6": RegionCentral,
	"FTW1": RegionCentral,
	"IND9": RegionCentral,
	"MDW2": RegionCentral,
	"SAT1": RegionCentral,
	// West coast
	"OAK3": RegionWest,
	"OAK4": RegionWest,
	"SBD2": RegionWest,
	"LGB4": RegionWest,
	"LGB8": RegionWest,
	"ONT8": RegionWest,
	"SMF3": RegionWest,
	"GEG1": RegionWest,
}

// FBARegion resolves an Amazon fulfillment center code to its region.
// Unknown codes default to Central.
func FBARegion(code string) string {
	if r, ok := fbaRegions[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return r
	}
	return RegionCentral
}

// ThirdPartyRegion resolves a 3PL warehouse code to a region by its
// location prefix, e.g. "WC-01" is West and "NJ-02" is East.
func ThirdPartyRegion(code string) string {
	upper := strings.ToUpper(strings.TrimSpace(code))
	switch {
	case strings.HasPrefix(upper, "WC"):
		return RegionWest
	case strings.HasPrefix(upper, "NJ"):
		return RegionEast
	default:
		return RegionCentral
	}
}

// RegionFromText maps localized region labels onto canonical values.
// Unrecognized text defaults to Central.
func RegionFromText(s string) string {
	switch strings.TrimSpace(s) {
	case "东部", RegionEast:
		return RegionEast
	case "西部", RegionWest:
		return RegionWest
	case "中部", RegionCentral:
		return RegionCentral
	default:
		return RegionCentral
	}
}
