package importer

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rolloy/scm-import/pkg/sheet"
)

//go:embed colmap.yaml
var defaultColmap []byte

// SheetNames binds the logical sheets of the workbook to their localized
// tab names.
type SheetNames struct {
	BaseInfo   string `yaml:"base_info"`
	Forecasts  string `yaml:"forecasts"`
	Orders     string `yaml:"orders"`
	Deliveries string `yaml:"deliveries"`
	Shipments  string `yaml:"shipments"`
	Actuals    string `yaml:"actuals"`
}

// ColumnMap describes how wide fact headers decompose into (sku, channel)
// pairs. The mapping ships embedded in the binary and can be overridden
// with a YAML file for workbooks that predate the current layout.
type ColumnMap struct {
	Version        int               `yaml:"version"`
	Sheets         SheetNames        `yaml:"sheets"`
	ChannelAliases map[string]string `yaml:"channel_aliases"`

	aliases []string // sorted longest first for greedy matching
}

// LoadColumnMap reads a column map from path, or the embedded default when
// path is empty.
func LoadColumnMap(path string) (*ColumnMap, error) {
	raw := defaultColmap
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read column map: %w", err)
		}
		raw = b
	}
	var m ColumnMap
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse column map: %w", err)
	}
	if m.Version < 1 {
		return nil, fmt.Errorf("column map: missing version")
	}
	if len(m.ChannelAliases) == 0 {
		return nil, fmt.Errorf("column map: no channel aliases")
	}
	for alias := range m.ChannelAliases {
		m.aliases = append(m.aliases, alias)
	}
	sort.Slice(m.aliases, func(i, j int) bool {
		if len(m.aliases[i]) != len(m.aliases[j]) {
			return len(m.aliases[i]) > len(m.aliases[j])
		}
		return m.aliases[i] < m.aliases[j]
	})
	return &m, nil
}

// ChannelCode resolves a standalone channel label to its canonical code.
func (m *ColumnMap) ChannelCode(label string) (string, bool) {
	code, ok := m.ChannelAliases[strings.TrimSpace(label)]
	return code, ok
}

// ParseFactLabel splits a wide header like "A2RD亚马逊", "A2RD 亚马逊" or
// "官网-W1RD" into the SKU and canonical channel code. Channel aliases are
// matched longest first at either end of the label, so that an alias that
// is a substring of another never wins. Labels that carry no known alias
// are not fact columns.
func (m *ColumnMap) ParseFactLabel(label string) (sku, channel string, ok bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", "", false
	}
	for _, alias := range m.aliases {
		var rest string
		switch {
		case strings.HasPrefix(label, alias):
			rest = label[len(alias):]
		case strings.HasSuffix(label, alias):
			rest = label[:len(label)-len(alias)]
		default:
			continue
		}
		rest = strings.Trim(rest, " -_")
		if rest == "" {
			continue
		}
		return strings.ToUpper(rest), m.ChannelAliases[alias], true
	}
	return "", "", false
}

// Fact is one quantity cell lifted out of a wide row.
type Fact struct {
	SKU         string
	ChannelCode string
	Qty         int
}

// Facts extracts every positive (sku, channel) quantity from a wide row.
// Cells that are empty, non-numeric or not positive are skipped; key
// columns never match an alias and fall through untouched.
func (m *ColumnMap) Facts(row sheet.Row) []Fact {
	var out []Fact
	for label, cell := range row {
		sku, channel, ok := m.ParseFactLabel(label)
		if !ok {
			continue
		}
		qty, ok := cell.Int()
		if !ok || qty <= 0 {
			continue
		}
		out = append(out, Fact{SKU: sku, ChannelCode: channel, Qty: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SKU != out[j].SKU {
			return out[i].SKU < out[j].SKU
		}
		return out[i].ChannelCode < out[j].ChannelCode
	})
	return out
}
