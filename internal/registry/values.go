package registry

import (
	"fmt"
	"math"
)

// CheckJSONValue reports an error when v is not a plain JSON value: nil,
// bool, string, a finite number, or []any / map[string]any of those.
func CheckJSONValue(v any) error {
	return checkJSON(v, "$")
}

func checkJSON(v any, path string) error {
	switch x := v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return nil
	case float32:
		return checkFloat(float64(x), path)
	case float64:
		return checkFloat(x, path)
	case []any:
		for i, e := range x {
			if err := checkJSON(e, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	case []string, []float64, []int:
		return nil
	case map[string]any:
		for k, e := range x {
			if err := checkJSON(e, path+"."+k); err != nil {
				return err
			}
		}
		return nil
	case Settings:
		return checkJSON(map[string]any(x), path)
	default:
		return fmt.Errorf("%s: %T is not a JSON value", path, v)
	}
}

func checkFloat(f float64, path string) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("%s: %v is not a JSON number", path, f)
	}
	return nil
}

// cloneSettings deep-copies s. Values are assumed to pass CheckJSONValue.
func cloneSettings(s Settings) Settings {
	if s == nil {
		return Settings{}
	}
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = cloneValue(e)
		}
		return out
	case Settings:
		return map[string]any(cloneSettings(x))
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), x...)
	case []float64:
		return append([]float64(nil), x...)
	case []int:
		return append([]int(nil), x...)
	default:
		return v
	}
}

func cloneConfig(c Config) Config {
	c.Settings = cloneSettings(c.Settings)
	return c
}
