package sheet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringCoalescesMissingTokens(t *testing.T) {
	for _, raw := range []string{"", "  ", "nan", "NaN", "N/A", "null", "None", "-"} {
		assert.True(t, String(raw).IsEmpty(), "raw=%q", raw)
	}
	assert.False(t, String("A2RD").IsEmpty())
	assert.Equal(t, "A2RD", String("  A2RD  ").String())
}

func TestFloatStripsCurrencyNoise(t *testing.T) {
	f, ok := String("$1,234.5").Float()
	require.True(t, ok)
	assert.InDelta(t, 1234.5, f, 1e-9)

	_, ok = String("twelve").Float()
	assert.False(t, ok)

	n, ok := String("42").Int()
	require.True(t, ok)
	assert.Equal(t, 42, n)
}

func TestTimeAcceptsCommonLayouts(t *testing.T) {
	for _, raw := range []string{"2025-01-06", "2025/01/06"} {
		got, ok := String(raw).Time()
		require.True(t, ok, "raw=%q", raw)
		assert.Equal(t, time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), got)
	}
	_, ok := String("06.01.2025").Time()
	assert.False(t, ok)
}

func TestRowHelpers(t *testing.T) {
	row := Row{"a": String("x"), "b": Empty()}
	assert.Equal(t, "x", row.Get("a").String())
	assert.True(t, row.Get("missing").IsEmpty())
	assert.False(t, row.IsEmpty())
	assert.True(t, Row{"a": Empty()}.IsEmpty())
}

func TestMemorySource(t *testing.T) {
	src := NewMemory().Add("S1", Row{"a": String("1")})
	assert.Equal(t, []string{"S1"}, src.Sheets())

	rows, err := src.Rows("S1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, err = src.Rows("S2")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}
