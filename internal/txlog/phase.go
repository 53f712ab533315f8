package txlog

import "github.com/platformforge/transfer-coordinator/domain/transfer"

// StartPhase records phases[phaseName].StartMs on tr. Thin wrapper over
// transfer.Transfer.OpenPhase kept at this layer so callers read
// "txlog.StartPhase"/"txlog.EndPhase" matching the spec's component
// vocabulary, even though the mutation lives on the domain type.
func StartPhase(tr *transfer.Transfer, phaseName string, nowMs int64) {
	tr.OpenPhase(phaseName, nowMs)
}

// EndPhase records endMs/durationMs for phaseName on tr and returns the
// computed duration (0 if the phase was never started).
func EndPhase(tr *transfer.Transfer, phaseName string, nowMs int64) int64 {
	return tr.ClosePhase(phaseName, nowMs)
}

// TickToMillisecondFactor is the fixed conversion factor for tick-based
// metrics fields (1 tick = 16.67 ms per spec §6 "Observed timings").
const TickToMillisecondFactor = 16.67

// ConvertTickMetrics transforms raw tick-valued fields in metrics into
// millisecond-valued fields. A field is treated as tick-valued if its key
// ends in "Ticks"; the converted field is written back under the same key
// with the "Ticks" suffix replaced by "Ms". Every other field (counts,
// flags, already-millisecond fields) passes through unchanged. Returns nil
// if metrics is nil (spec §4.5 step 2: "If metrics absent, importMetrics
// = null").
func ConvertTickMetrics(metrics map[string]any, factor float64) map[string]any {
	if metrics == nil {
		return nil
	}
	if factor <= 0 {
		factor = TickToMillisecondFactor
	}

	out := make(map[string]any, len(metrics))
	for key, value := range metrics {
		if convertedKey, ok := tickFieldToMsField(key); ok {
			if ticks, ok := asFloat(value); ok {
				out[convertedKey] = ticks * factor
				continue
			}
		}
		out[key] = value
	}
	return out
}

func tickFieldToMsField(key string) (string, bool) {
	const suffix = "Ticks"
	if len(key) <= len(suffix) || key[len(key)-len(suffix):] != suffix {
		return "", false
	}
	return key[:len(key)-len(suffix)] + "Ms", true
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
