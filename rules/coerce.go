package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// CoercionResult is the typed variable set handed to the condition evaluator
type CoercionResult struct {
	// Values holds every payload key that is registered and representable
	// in its declared type
	Values map[string]any

	// Dropped names registered keys whose value could not be coerced
	Dropped []string

	// Unknown names payload keys with no registry entry
	Unknown []string
}

// Coerce converts a decoded payload into the declared types of the registry.
// It never fails: unknown keys and unrepresentable values are left out of
// Values and listed for the caller to log.
func Coerce(payload map[string]any, registry map[string]VariableType) CoercionResult {
	result := CoercionResult{Values: make(map[string]any, len(payload))}

	for name, raw := range payload {
		typ, known := registry[name]
		if !known {
			result.Unknown = append(result.Unknown, name)
			continue
		}

		value, err := CoerceValue(raw, typ)
		if err != nil {
			result.Dropped = append(result.Dropped, name)
			continue
		}
		result.Values[name] = value
	}

	sort.Strings(result.Dropped)
	sort.Strings(result.Unknown)
	return result
}

// CoerceValue converts one decoded JSON value to typ.
// INTEGER yields int64, FLOAT float64 and STRING string.
func CoerceValue(raw any, typ VariableType) (any, error) {
	switch typ {
	case TypeInteger:
		return toInteger(raw)
	case TypeFloat:
		return toFloat(raw)
	case TypeString:
		return toString(raw)
	default:
		return nil, fmt.Errorf("unknown variable type %q", typ)
	}
}

func toInteger(raw any) (int64, error) {
	var text string
	switch v := raw.(type) {
	case json.Number:
		text = v.String()
	case string:
		text = strings.TrimSpace(v)
	case float64:
		return truncate(v)
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("cannot convert %T to INTEGER", raw)
	}

	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("cannot convert %q to INTEGER", text)
	}
	return truncate(f)
}

// truncate drops the fractional part, refusing values outside int64
func truncate(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("cannot convert %v to INTEGER", f)
	}
	t := math.Trunc(f)
	// float64(math.MaxInt64) rounds up to 2^63, which is out of range
	if t < math.MinInt64 || t >= math.MaxInt64 {
		return 0, fmt.Errorf("%v overflows INTEGER", f)
	}
	return int64(t), nil
}

func toFloat(raw any) (float64, error) {
	var text string
	switch v := raw.(type) {
	case json.Number:
		text = v.String()
	case string:
		text = strings.TrimSpace(v)
	case float64:
		text = strconv.FormatFloat(v, 'g', -1, 64)
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("cannot convert %T to FLOAT", raw)
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("cannot convert %q to FLOAT", text)
	}
	return f, nil
}

func toString(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	default:
		return "", fmt.Errorf("cannot convert %T to STRING", raw)
	}
}
