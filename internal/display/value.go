package display

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

const (
	smallNumberThreshold = 0.001
	bigNumberThreshold   = 1_000_000
)

// FormatValue renders a raw value the way the instrument control GUI shows blocks.
//
// With a nil or negative precision the value is returned unchanged. Otherwise numbers with
// 0.001 < |v| < 1e6, and zero, are rendered in fixed point with precision decimals and every other
// number in scientific notation with precision significant digits ("5.67E-08"). Text that is not
// a number, including the literals inf and nan, is returned unchanged. A decimal literal too large
// for a float64 renders as "INF".
func FormatValue(raw string, precision *int) string {
	if precision == nil || *precision < 0 {
		return raw
	}

	value, ok := parseNumber(raw)
	if !ok {
		return raw
	}

	abs := math.Abs(value)
	if (smallNumberThreshold < abs && abs < bigNumberThreshold) || value == 0 {
		return strconv.FormatFloat(value, 'f', *precision, 64)
	}
	return formatGeneral(value, *precision)
}

func parseNumber(raw string) (float64, bool) {
	text := strings.TrimSpace(raw)
	if text == "" || strings.ContainsAny(text, "xXpP_") {
		return 0, false
	}

	value, err := strconv.ParseFloat(text, 64)
	if errors.Is(err, strconv.ErrRange) {
		// overflow parses to ±Inf, underflow to the nearest representable value
		return value, true
	}
	if err != nil || math.IsInf(value, 0) || math.IsNaN(value) {
		return 0, false
	}
	return value, true
}

// formatGeneral is the %G rendering: at least two exponent digits, no trailing zeros, and an
// upper case INF for overflowed values.
func formatGeneral(value float64, precision int) string {
	if math.IsInf(value, 1) {
		return "INF"
	}
	if math.IsInf(value, -1) {
		return "-INF"
	}
	if precision == 0 {
		precision = 1
	}
	return strconv.FormatFloat(value, 'G', precision, 64)
}
