package exportstore

import "github.com/tidwall/gjson"

// ExtractPayloadMetrics reads known scalar fields out of an opaque exportData
// JSON blob by path, without unmarshaling/re-marshaling the blob itself —
// the byte-for-byte passthrough guarantee (spec §9) depends on never
// decoding-then-re-encoding the payload. Missing fields are simply absent
// from the result, not zero-filled.
func ExtractPayloadMetrics(exportData []byte) map[string]any {
	metrics := make(map[string]any)
	if len(exportData) == 0 || !gjson.ValidBytes(exportData) {
		return metrics
	}

	fields := []string{"compressed", "entityCount", "tileCount", "uniqueItemTypes", "uniqueFluidTypes", "totalSize"}
	parsed := gjson.GetManyBytes(exportData, fields...)

	for i, field := range fields {
		result := parsed[i]
		if !result.Exists() {
			continue
		}
		switch result.Type {
		case gjson.True, gjson.False:
			metrics[field] = result.Bool()
		case gjson.Number:
			metrics[field] = result.Num
		default:
			metrics[field] = result.Value()
		}
	}
	return metrics
}
