package rules

import (
	"encoding/json"
	"reflect"
	"testing"
)

// TestCoerceValue verifies conversions into each declared type
func TestCoerceValue(t *testing.T) {
	testCases := []struct {
		name    string
		raw     any
		typ     VariableType
		want    any
		wantErr bool
	}{
		{"Integer from number", json.Number("42"), TypeInteger, int64(42), false},
		{"Integer from string", "42", TypeInteger, int64(42), false},
		{"Integer from padded string", " -7 ", TypeInteger, int64(-7), false},
		{"Integer truncates fraction", json.Number("3.9"), TypeInteger, int64(3), false},
		{"Integer truncates toward zero", json.Number("-3.9"), TypeInteger, int64(-3), false},
		{"Integer from exponent", json.Number("1e3"), TypeInteger, int64(1000), false},
		{"Integer keeps precision", json.Number("9007199254740993"), TypeInteger, int64(9007199254740993), false},
		{"Integer overflow", json.Number("1e30"), TypeInteger, nil, true},
		{"Integer from word", "abc", TypeInteger, nil, true},
		{"Integer from bool", true, TypeInteger, nil, true},
		{"Integer from null", nil, TypeInteger, nil, true},
		{"Float from number", json.Number("2.5"), TypeFloat, 2.5, false},
		{"Float from string", "0.125", TypeFloat, 0.125, false},
		{"Float from integer text", "7", TypeFloat, 7.0, false},
		{"Float rejects NaN", "NaN", TypeFloat, nil, true},
		{"Float rejects Inf", "Inf", TypeFloat, nil, true},
		{"Float from object", map[string]any{}, TypeFloat, nil, true},
		{"String as is", "hello", TypeString, "hello", false},
		{"String from number", json.Number("1.50"), TypeString, "1.50", false},
		{"String from bool", false, TypeString, "false", false},
		{"String from null", nil, TypeString, nil, true},
		{"String from array", []any{"a"}, TypeString, nil, true},
		{"Unknown type", "x", VariableType("BOOLEAN"), nil, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CoerceValue(tc.raw, tc.typ)
			if tc.wantErr {
				if err == nil {
					t.Errorf("CoerceValue(%v, %s) = %v, want error", tc.raw, tc.typ, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("CoerceValue(%v, %s) failed: %v", tc.raw, tc.typ, err)
			}
			if got != tc.want {
				t.Errorf("CoerceValue(%v, %s) = %#v, want %#v", tc.raw, tc.typ, got, tc.want)
			}
		})
	}
}

// TestCoerceDropsUnknownAndInvalid verifies the stage never fails and reports what it left out
func TestCoerceDropsUnknownAndInvalid(t *testing.T) {
	registry := map[string]VariableType{
		"a":     TypeInteger,
		"b":     TypeInteger,
		"price": TypeFloat,
		"name":  TypeString,
	}
	payload := map[string]any{
		"a":     "42",
		"b":     "not a number",
		"price": json.Number("9.99"),
		"name":  "Ada",
		"zeta":  1,
		"extra": true,
	}

	result := Coerce(payload, registry)

	wantValues := map[string]any{"a": int64(42), "price": 9.99, "name": "Ada"}
	if !reflect.DeepEqual(result.Values, wantValues) {
		t.Errorf("Values = %#v, want %#v", result.Values, wantValues)
	}
	if !reflect.DeepEqual(result.Dropped, []string{"b"}) {
		t.Errorf("Dropped = %v, want [b]", result.Dropped)
	}
	if !reflect.DeepEqual(result.Unknown, []string{"extra", "zeta"}) {
		t.Errorf("Unknown = %v, want [extra zeta]", result.Unknown)
	}
}

// TestCoerceEmpty verifies empty inputs produce an empty, usable result
func TestCoerceEmpty(t *testing.T) {
	result := Coerce(nil, nil)
	if result.Values == nil {
		t.Fatal("Values should be non-nil")
	}
	if len(result.Values) != 0 || len(result.Dropped) != 0 || len(result.Unknown) != 0 {
		t.Errorf("Expected empty result, got %+v", result)
	}
}
