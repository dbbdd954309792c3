package sandbox

import (
	"encoding/json"
	"strings"
)

// decodeJSON decodes a payload with numbers preserved so large integers
// survive the trip through the tool-response boundary.
func decodeJSON(raw string, v any) error {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}
