package schedule

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// decimalString decodes an hour value that the external API may send as a
// JSON number, a dot-decimal string, or a comma-decimal string ("7,5").
// Unparseable input decodes to zero, matching the engine's parse-failure
// taxonomy (recover locally, never fail the fetch).
type decimalString struct {
	value decimal.Decimal
}

func (v *decimalString) UnmarshalJSON(data []byte) error {
	var asNumber float64
	if err := json.Unmarshal(data, &asNumber); err == nil {
		v.value = decimal.NewFromFloat(asNumber)
		return nil
	}

	var asString string
	if err := json.Unmarshal(data, &asString); err != nil {
		v.value = decimal.Zero
		return nil
	}
	asString = strings.ReplaceAll(strings.TrimSpace(asString), ",", ".")
	d, err := decimal.NewFromString(asString)
	if err != nil {
		v.value = decimal.Zero
		return nil
	}
	v.value = d
	return nil
}

func (v decimalString) Decimal() decimal.Decimal {
	return v.value
}
