package xendit

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/smallbiznis/nclexprep/internal/payment/domain"
)

const minorPerMajor = 100

// toMajor converts a stored minor-unit amount into the major-unit value the
// invoice API expects. Amounts that would need rounding are refused.
func toMajor(minor int64) (int64, error) {
	if minor <= 0 {
		return 0, &domain.GatewayError{
			Code:    domain.GatewayCodeInvalidAmount,
			Message: fmt.Sprintf("amount %d must be positive", minor),
		}
	}
	if minor%minorPerMajor != 0 {
		return 0, &domain.GatewayError{
			Code:    domain.GatewayCodeInvalidAmount,
			Message: fmt.Sprintf("amount %d is not a whole major unit", minor),
		}
	}
	return minor / minorPerMajor, nil
}

// toMinor parses a provider amount such as "200" or "200.50" into minor units
// without passing through floating point.
func toMinor(value json.Number) (int64, error) {
	raw := strings.TrimSpace(value.String())
	if raw == "" {
		return 0, fmt.Errorf("empty amount")
	}
	if strings.ContainsAny(raw, "eE") {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, err
		}
		raw = strconv.FormatFloat(parsed, 'f', -1, 64)
	}

	negative := strings.HasPrefix(raw, "-")
	raw = strings.TrimPrefix(raw, "-")

	whole, frac, _ := strings.Cut(raw, ".")
	frac = strings.TrimRight(frac, "0")
	if len(frac) > 2 {
		return 0, fmt.Errorf("amount %s has sub-minor precision", value)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	if whole == "" {
		whole = "0"
	}

	major, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, err
	}
	minor, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, err
	}
	if major < 0 || major > (math.MaxInt64-minor)/minorPerMajor {
		return 0, fmt.Errorf("amount %s is out of range", value)
	}
	total := major*minorPerMajor + minor
	if negative {
		total = -total
	}
	return total, nil
}
