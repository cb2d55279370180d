package attrval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		in     string
		digits string
		exp    int64
		neg    bool
	}{
		{"123.45", "12345", -2, false},
		{"-5e3", "5", 3, true},
		{"0", "0", 0, false},
		{"0.000", "0", 0, false},
		{"-0", "0", 0, false},
		{"100", "1", 2, false},
		{"+3.50", "35", -1, false},
		{"0.001", "1", -3, false},
		{"1.5E-10", "15", -11, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := ParseDecimal(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.digits, d.Digits)
			assert.Equal(t, tt.exp, d.Exp)
			assert.Equal(t, tt.neg, d.Negative)
		})
	}

	t.Run("invalid inputs", func(t *testing.T) {
		for _, s := range []string{"", "abc", "1.2.3", "1e", "--1", "5 6"} {
			_, err := ParseDecimal(s)
			assert.Error(t, err, "input %q", s)
		}
	})
}

func TestAddNumbers(t *testing.T) {
	tests := []struct {
		a, b     string
		subtract bool
		want     string
	}{
		{"1", "2", false, "3"},
		{"10", "5", false, "15"},
		{"0.1", "0.2", false, "0.3"},
		{"1.5", "2.5", false, "4"},
		{"5", "3", true, "2"},
		{"3", "5", true, "-2"},
		{"-1", "-2", false, "-3"},
		{"0", "7", false, "7"},
		{"7", "0", true, "7"},
		{"99999999999999999999", "1", false, "100000000000000000000"},
		{"1e3", "1", false, "1001"},
		{"2.5", "2.5", true, "0"},
		{"0.000001", "0.000002", false, "0.000003"},
	}
	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			got, err := AddNumbers(tt.a, tt.b, tt.subtract)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("overflow past 38 digits", func(t *testing.T) {
		big := "99999999999999999999999999999999999999" // 38 nines
		_, err := AddNumbers(big, "1", false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "overflow")
	})

	t.Run("float drift does not happen", func(t *testing.T) {
		got, err := AddNumbers("0.1", "0.2", false)
		require.NoError(t, err)
		assert.Equal(t, "0.3", got)
	})
}

func TestCompareNumbers(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1", "2", -1},
		{"2", "1", 1},
		{"1.0", "1", 0},
		{"-1", "1", -1},
		{"-2", "-1", -1},
		{"0", "0.0", 0},
		{"10", "9.999999", 1},
		{"1e10", "9999999999", 1},
		{"0.001", "0.01", -1},
	}
	for _, tt := range tests {
		got, err := CompareNumbers(tt.a, tt.b)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s vs %s", tt.a, tt.b)
	}
}

func TestDecimalString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"123.450", "123.45"},
		{"00100", "100"},
		{"-0.500", "-0.5"},
		{"1e10", "10000000000"},
	}
	for _, tt := range tests {
		d, err := ParseDecimal(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, d.String())
	}

	t.Run("scientific notation for extreme magnitudes", func(t *testing.T) {
		d, err := ParseDecimal("1.5e40")
		require.NoError(t, err)
		assert.Equal(t, "1.5E40", d.String())

		d, err = ParseDecimal("2e-20")
		require.NoError(t, err)
		assert.Equal(t, "2E-20", d.String())
	})
}
