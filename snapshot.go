package relay

import (
	"encoding/json"
	"log/slog"
)

// validateSnapshot drops entries whose value shape contradicts the
// declared type and pins each entry's Key to the map key it is stored
// under. One bad flag must not reject the whole snapshot.
func validateSnapshot(raw map[string]Flag, log *slog.Logger) Snapshot {
	next := make(Snapshot, len(raw))
	for key, flag := range raw {
		flag.Key = key
		if !valueMatchesType(flag.Value, flag.Type) {
			log.Warn("dropping flag with mismatched value type",
				"key", key, "type", string(flag.Type))
			continue
		}
		next[key] = flag
	}
	return next
}

func valueMatchesType(value any, t FlagType) bool {
	if value == nil {
		// Disabled flags ship without a value.
		return true
	}
	switch t {
	case FlagTypeBoolean:
		_, ok := value.(bool)
		return ok
	case FlagTypeString:
		_, ok := value.(string)
		return ok
	case FlagTypeNumber:
		switch value.(type) {
		case float64, float32, int, int32, int64, json.Number:
			return true
		}
		return false
	case FlagTypeJSON:
		switch value.(type) {
		case map[string]any, []any:
			return true
		}
		return false
	default:
		// Unknown type tags pass through untouched; the server may grow
		// new types before the SDK does.
		return true
	}
}

// flattenSnapshot derives the flat value view: canonical key to value
// for every enabled flag, plus the alternate-form key for canonical
// keys containing separators. Disabled flags are absent.
func flattenSnapshot(s Snapshot) map[string]any {
	flat := make(map[string]any, len(s)*2)
	for key, flag := range s {
		if !flag.Enabled {
			continue
		}
		flat[key] = flag.Value
		if hasSeparators(key) {
			flat[alternateKey(key)] = flag.Value
		}
	}
	return flat
}

func copySnapshot(s Snapshot) Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
