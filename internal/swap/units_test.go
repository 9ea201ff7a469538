package swap

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"moff.io/moff-wallet/pkg/errors"
)

func TestParseUnits(t *testing.T) {
	cases := map[string]struct {
		value    string
		decimals int
		want     string
	}{
		"whole":          {"1", 18, "1000000000000000000"},
		"fraction":       {"1.5", 6, "1500000"},
		"leading dot":    {".25", 2, "25"},
		"trailing zeros": {"2.5000", 2, "250"},
		"negative":       {"-0.1", 3, "-100"},
		"spaces":         {" 3 ", 0, "3"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			n, err := ParseUnits(c.value, c.decimals)
			require.NoError(t, err)
			assert.Equal(t, c.want, n.String())
		})
	}

	for _, bad := range []string{"", ".", "1.234", "abc", "1e3", "1.2.3"} {
		_, err := ParseUnits(bad, 2)
		assert.True(t, errors.Is(err, ErrInvalidAmount), bad)
	}
}

func TestFormatUnits(t *testing.T) {
	assert.Equal(t, "1.0", FormatUnits(big.NewInt(1000000), 6))
	assert.Equal(t, "0.000001", FormatUnits(big.NewInt(1), 6))
	assert.Equal(t, "12.345", FormatUnits(big.NewInt(12345), 3))
	assert.Equal(t, "-0.5", FormatUnits(big.NewInt(-50), 2))
	assert.Equal(t, "7.0", FormatUnits(big.NewInt(7), 0))
	assert.Equal(t, "0.0", FormatUnits(nil, 18))
	assert.Equal(t, "0.000002", FormatEther(FallbackFee))
}

func TestHasNumericValue(t *testing.T) {
	assert.True(t, HasNumericValue("0.1"))
	assert.False(t, HasNumericValue("0"))
	assert.False(t, HasNumericValue(""))
	assert.False(t, HasNumericValue("abc"))
}
