package output

import (
	"encoding/json"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var amountPrinter = message.NewPrinter(language.English)

// FormatAmount renders a decimal amount with thousands separators and two
// fraction digits. Values that do not parse as numbers are returned as-is.
func FormatAmount(v any) string {
	var s string
	switch n := v.(type) {
	case json.Number:
		s = n.String()
	case string:
		s = n
	case float64:
		return amountPrinter.Sprintf("%.2f", n)
	case int:
		return amountPrinter.Sprintf("%.2f", float64(n))
	default:
		return ""
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	return amountPrinter.Sprintf("%.2f", f)
}
