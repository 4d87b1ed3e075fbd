package dashboard

import (
	"strconv"
)

// FormatNumber abbreviates n with one decimal: 15420 → "15.4K",
// 2500000 → "2.5M". Values below 1000, negatives included, are printed as-is.
func FormatNumber(n int) string {
	switch {
	case n >= 1000000:
		return abbreviate(n, 1000000) + "M"
	case n >= 1000:
		return abbreviate(n, 1000) + "K"
	default:
		return strconv.Itoa(n)
	}
}

// abbreviate prints n/unit with one decimal. Exact halfway cases (a
// remainder of a quarter or three quarters of unit) round up; FormatFloat
// would round them to even.
func abbreviate(n, unit int) string {
	if r := n % unit; r == unit/4 || r == unit*3/4 {
		tenths := n*10/unit + 1
		return strconv.Itoa(tenths/10) + "." + strconv.Itoa(tenths%10)
	}
	return strconv.FormatFloat(float64(n)/float64(unit), 'f', 1, 64)
}
