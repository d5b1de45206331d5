package types

import (
	"bytes"

	"github.com/shopspring/decimal"
)

// LooseDecimal decodes a JSON number or numeric string. Null, empty and
// unparseable values decode to an invalid value instead of failing the
// whole payload.
type LooseDecimal struct {
	decimal.NullDecimal
}

func (d *LooseDecimal) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(bytes.TrimSpace(b), `"`))
	if s == "" || s == "null" {
		d.NullDecimal = decimal.NullDecimal{}
		return nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		d.NullDecimal = decimal.NullDecimal{}
		return nil
	}
	d.NullDecimal = decimal.NewNullDecimal(v)
	return nil
}

// Positive returns the value when it is present and greater than zero.
// A zero or missing price is treated as absent.
func (d LooseDecimal) Positive() (decimal.Decimal, bool) {
	if !d.Valid || !d.Decimal.IsPositive() {
		return decimal.Zero, false
	}
	return d.Decimal, true
}
