package extract

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	minInt64 = decimal.NewFromInt(math.MinInt64)
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
)

// ParseAmount coerces a producer supplied amount to an integer. Text is
// parsed as a base-10 integer prefix ("12.9" -> 12, "-7kg" -> -7); numbers
// are truncated toward zero. Anything unparsable yields 0.
func ParseAmount(v any) int64 {
	switch x := v.(type) {
	case string:
		return parseIntPrefix(x)
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return 0
		}
		return truncate(d)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0
		}
		return truncate(decimal.NewFromFloat(x))
	case int:
		return int64(x)
	case int64:
		return x
	}
	return 0
}

// maxIntDigits is the number of decimal digits in math.MaxInt64.
const maxIntDigits = 19

func truncate(d decimal.Decimal) int64 {
	if d.IsZero() {
		return 0
	}
	// Rescaling to exponent 0 costs 10^|exp|, so decide from the digit
	// count first: intDigits is the number of digits before the point.
	coef := d.Coefficient()
	intDigits := int64(d.Exponent()) + int64(len(coef.Abs(coef).String()))
	if intDigits <= 0 {
		return 0
	}
	if intDigits > maxIntDigits {
		return 0
	}
	d = d.Truncate(0)
	if d.LessThan(minInt64) || d.GreaterThan(maxInt64) {
		return 0
	}
	return d.IntPart()
}

func parseIntPrefix(s string) int64 {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)

	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}

	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0
	}
	return n
}
