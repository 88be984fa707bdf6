package market

import "github.com/shopspring/decimal"

var (
	thousand = decimal.NewFromInt(1_000)
	million  = decimal.NewFromInt(1_000_000)
)

// FormatAmount renders currency units compactly: 1200000 -> "1.2M",
// 850000 -> "850K", 999 -> "999".
func FormatAmount(v int64) string {
	d := decimal.NewFromInt(v)
	abs := d.Abs()
	switch {
	case abs.GreaterThanOrEqual(million):
		return d.Div(million).Round(2).String() + "M"
	case abs.GreaterThanOrEqual(thousand):
		return d.Div(thousand).Round(1).String() + "K"
	default:
		return d.String()
	}
}
