package pricefeed

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/R3E-Network/feed_layer/internal/feederr"
)

const ancillaryTwapLength = "twapLength"

// ancillaryOverrides holds per-request settings parsed from ancillary data.
type ancillaryOverrides struct {
	twapLength    int64
	hasTwapLength bool
}

// parseAncillary parses "key:value,key:value" text, optionally 0x-hex
// encoded. Unknown keys are ignored; malformed pairs are a parse error.
func parseAncillary(raw []byte) (ancillaryOverrides, error) {
	var out ancillaryOverrides
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return out, nil
	}
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		decoded, err := hex.DecodeString(text[2:])
		if err != nil {
			return out, feederr.Parse("ancillary data is not valid hex: %v", err)
		}
		text = strings.TrimSpace(string(decoded))
		if text == "" {
			return out, nil
		}
	}

	for _, pair := range strings.Split(text, ",") {
		key, value, ok := strings.Cut(pair, ":")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if !ok || key == "" || value == "" {
			return out, feederr.Parse("malformed ancillary pair %q", pair)
		}
		if key != ancillaryTwapLength {
			continue
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n < 0 {
			return out, feederr.Parse("invalid %s %q", ancillaryTwapLength, value)
		}
		out.twapLength, out.hasTwapLength = n, true
	}
	return out, nil
}
