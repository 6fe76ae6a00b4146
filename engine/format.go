package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FormatHours renders a signed hour quantity as ±H:MMh for the account
// display: -23.5 → "-23:30h", 8.33 → "8:20h". Minutes round to the nearest
// whole minute; the sign stays on the hour part even when hours are zero
// (-0.5 → "-0:30h").
func FormatHours(hours decimal.Decimal) string {
	sign := ""
	if hours.IsNegative() {
		sign = "-"
	}
	totalMinutes := hours.Abs().Mul(decimal.NewFromInt(60)).Round(0).IntPart()
	h := totalMinutes / 60
	m := totalMinutes % 60
	return fmt.Sprintf("%s%d:%02dh", sign, h, m)
}
