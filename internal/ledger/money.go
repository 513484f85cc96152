package ledger

import (
	"fmt"
	"strconv"
	"strings"
)

// Balances are held as int64 minor units (cents) internally so that no
// arithmetic ever goes through floating point. Public surfaces accept and
// return decimal strings with up to two fractional digits.

// Amount is a decimal amount in minor units. It unmarshals from decimal
// text, which lets configuration fields be written as "100.00".
type Amount int64

func (a *Amount) UnmarshalText(text []byte) error {
	v, err := ParseAmount(string(text))
	if err != nil {
		return err
	}

	*a = Amount(v)

	return nil
}

func (a Amount) String() string {
	return FormatAmount(int64(a))
}

// ParseAmount converts a signed decimal string with up to 2 fractional
// digits into minor units.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("amount required")
	}

	neg := false
	if s[0] == '+' {
		s = s[1:]
	} else if s[0] == '-' {
		neg = true
		s = s[1:]
	}

	if s == "" {
		return 0, fmt.Errorf("invalid amount")
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, fmt.Errorf("invalid amount")
	}

	frac := "00"
	if len(parts) == 2 {
		if len(parts[1]) > 2 {
			return 0, fmt.Errorf("amount supports up to 2 decimals")
		}

		frac = parts[1] + strings.Repeat("0", 2-len(parts[1]))
	}

	ip, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount integer")
	}

	fp, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount fractional")
	}

	total := ip*100 + fp
	if neg {
		total = -total
	}

	return total, nil
}

// FormatAmount renders minor units as a decimal string with 2 fractional
// digits, e.g. 1015 -> "10.15".
func FormatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}

	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
