package normalize

import "github.com/shopspring/decimal"

// maxStat is the upper bound for any numeric stat column.
var maxStat = decimal.RequireFromString("99999999.9999")

// Cap clamps a stat value to [0, 99999999.9999] rounded to four decimal
// places, matching the numeric(12,4) columns it is written to.
func Cap(v float64) float64 {
	d := decimal.NewFromFloat(v)
	if d.IsNegative() {
		return 0
	}
	if d.GreaterThan(maxStat) {
		d = maxStat
	}
	f, _ := d.Round(4).Float64()
	return f
}
