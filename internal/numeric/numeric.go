// Package numeric parses amounts and quantities whose locale formatting is
// unknown, such as "1.234,56", "1,234.56" or "60.000 unidades".
package numeric

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrUnparseable is returned by Parse when no number can be recovered.
var ErrUnparseable = errors.New("unparseable number")

// Normalize converts raw into a float64. It never fails: values that cannot be
// parsed yield 0 and a warning is logged so one bad field does not abort an
// ingestion.
func Normalize(raw any) float64 {
	v, err := Parse(raw)
	if err != nil {
		slog.Warn("numeric value defaulted to 0", "value", raw, "error", err)
		return 0
	}
	return v
}

// Parse converts raw into a float64 following the separator rules:
//
//   - non-text input is converted directly;
//   - text is reduced to digits, ',' and '.';
//   - with both separators present, the last one is the decimal separator;
//   - a lone ',' is a decimal separator;
//   - repeated '.' are thousands separators.
func Parse(raw any) (float64, error) {
	s, ok := raw.(string)
	if !ok {
		return direct(raw)
	}

	clean := Clean(s)
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return 0, fmt.Errorf("%w: %q -> %q", ErrUnparseable, s, clean)
	}
	return d.InexactFloat64(), nil
}

// Clean rewrites s into a canonical decimal string with '.' as the decimal
// separator and no thousands separators. The result may still be invalid
// (for example empty) when s holds no digits.
func Clean(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' {
			b.WriteRune(r)
		}
	}
	clean := b.String()

	hasComma := strings.Contains(clean, ",")
	hasDot := strings.Contains(clean, ".")
	switch {
	case hasComma && hasDot:
		if strings.LastIndex(clean, ",") > strings.LastIndex(clean, ".") {
			clean = strings.ReplaceAll(clean, ".", "")
			clean = strings.ReplaceAll(clean, ",", ".")
		} else {
			clean = strings.ReplaceAll(clean, ",", "")
		}
	case hasComma:
		clean = strings.ReplaceAll(clean, ",", ".")
	case strings.Count(clean, ".") > 1:
		clean = strings.ReplaceAll(clean, ".", "")
	}
	return clean
}

func direct(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrUnparseable, v.String())
		}
		return f, nil
	case decimal.Decimal:
		return v.InexactFloat64(), nil
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrUnparseable, raw)
	}
}
