package sheet

import (
	"strconv"
	"strings"
	"time"
)

// Cell holds a single raw spreadsheet value. Human-authored sheets mix
// strings, numbers and dates freely, so accessors coerce on demand and
// report whether the coercion made sense.
type Cell struct {
	s    string
	f    float64
	t    time.Time
	kind cellKind
}

type cellKind int

const (
	kindEmpty cellKind = iota
	kindString
	kindNumber
	kindTime
)

func String(v string) Cell {
	v = strings.TrimSpace(v)
	if v == "" || isMissingToken(v) {
		return Cell{}
	}
	return Cell{s: v, kind: kindString}
}

func Number(v float64) Cell { return Cell{f: v, kind: kindNumber} }

func Time(v time.Time) Cell {
	if v.IsZero() {
		return Cell{}
	}
	return Cell{t: v, kind: kindTime}
}

func Empty() Cell { return Cell{} }

// isMissingToken reports textual stand-ins for "no value" that upstream
// tools leave behind when they stringify empty cells.
func isMissingToken(v string) bool {
	switch strings.ToLower(v) {
	case "nan", "n/a", "na", "null", "none", "-":
		return true
	}
	return false
}

func (c Cell) IsEmpty() bool { return c.kind == kindEmpty }

// String returns the trimmed textual form of the cell.
func (c Cell) String() string {
	switch c.kind {
	case kindString:
		return c.s
	case kindNumber:
		return strconv.FormatFloat(c.f, 'f', -1, 64)
	case kindTime:
		return c.t.Format("2006-01-02")
	}
	return ""
}

func (c Cell) Float() (float64, bool) {
	switch c.kind {
	case kindNumber:
		return c.f, true
	case kindString:
		s := strings.ReplaceAll(c.s, ",", "")
		s = strings.TrimPrefix(s, "$")
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil
	}
	return 0, false
}

func (c Cell) Int() (int, bool) {
	f, ok := c.Float()
	if !ok {
		return 0, false
	}
	return int(f), true
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006-01-02 15:04:05",
	"01-02-06",
	time.RFC3339,
}

func (c Cell) Time() (time.Time, bool) {
	switch c.kind {
	case kindTime:
		return c.t, true
	case kindString:
		for _, layout := range dateLayouts {
			if t, err := time.ParseInLocation(layout, c.s, time.UTC); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// Row maps a column label to its raw cell value.
type Row map[string]Cell

// Get returns the cell for a label, or an empty cell when the column is
// absent from the sheet.
func (r Row) Get(label string) Cell {
	if c, ok := r[label]; ok {
		return c
	}
	return Cell{}
}

// IsEmpty reports whether every cell of the row is empty.
func (r Row) IsEmpty() bool {
	for _, c := range r {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}
