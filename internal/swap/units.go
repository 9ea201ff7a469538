package swap

import (
	"math/big"
	"strconv"
	"strings"

	"moff.io/moff-wallet/pkg/errors"
)

const etherDecimals = 18

var ErrInvalidAmount = errors.New("invalid amount")

// ParseUnits converts a decimal string such as "1.5" into its integer base unit amount.
func ParseUnits(value string, decimals int) (*big.Int, error) {
	s := strings.TrimSpace(value)
	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return nil, errors.Wrapf(ErrInvalidAmount, "%q", value)
	}
	if whole == "" {
		whole = "0"
	}
	frac = strings.TrimRight(frac, "0")
	if len(frac) > decimals {
		return nil, errors.Wrapf(ErrInvalidAmount, "%q has more than %d decimals", value, decimals)
	}
	digits := whole + frac + strings.Repeat("0", decimals-len(frac))
	for _, r := range digits {
		if r < '0' || r > '9' {
			return nil, errors.Wrapf(ErrInvalidAmount, "%q", value)
		}
	}
	n, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidAmount, "%q", value)
	}
	if negative {
		n.Neg(n)
	}
	return n, nil
}

// FormatUnits renders a base unit amount with decimals, keeping at least one fractional digit ("1.0").
func FormatUnits(v *big.Int, decimals int) string {
	if v == nil {
		v = new(big.Int)
	}
	s := new(big.Int).Abs(v).String()
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	whole, frac := s[:len(s)-decimals], strings.TrimRight(s[len(s)-decimals:], "0")
	if frac == "" {
		frac = "0"
	}
	if v.Sign() < 0 {
		whole = "-" + whole
	}
	return whole + "." + frac
}

func FormatEther(wei *big.Int) string {
	return FormatUnits(wei, etherDecimals)
}

// HasNumericValue reports whether s is a number other than zero.
func HasNumericValue(s string) bool {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil && f != 0
}
