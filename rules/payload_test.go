package rules

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
)

// TestDecodePayloadEncodings verifies every accepted base64 alphabet
func TestDecodePayloadEncodings(t *testing.T) {
	// {"s":"~~~"} encodes with '+' in the standard alphabet and '-' in the URL one
	raw := []byte(`{"s":"~~~"}`)

	testCases := []struct {
		name    string
		encoded string
	}{
		{"Standard", base64.StdEncoding.EncodeToString(raw)},
		{"Standard unpadded", base64.RawStdEncoding.EncodeToString(raw)},
		{"URL safe", base64.URLEncoding.EncodeToString(raw)},
		{"URL safe unpadded", base64.RawURLEncoding.EncodeToString(raw)},
		{"Plus decoded as space", "eyJzIjoifn5 In0="},
		{"Surrounding whitespace", "  eyJzIjoifn5+In0=\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			payload, err := DecodePayload(tc.encoded)
			if err != nil {
				t.Fatalf("DecodePayload(%q) failed: %v", tc.encoded, err)
			}
			if payload["s"] != "~~~" {
				t.Errorf("payload[s] = %v, want ~~~", payload["s"])
			}
		})
	}
}

// TestDecodePayloadPreservesNumbers verifies numbers are left as json.Number
func TestDecodePayloadPreservesNumbers(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte(`{"big":9007199254740993,"f":1.5}`))

	payload, err := DecodePayload(encoded)
	if err != nil {
		t.Fatalf("DecodePayload() failed: %v", err)
	}

	if n, ok := payload["big"].(json.Number); !ok || n.String() != "9007199254740993" {
		t.Errorf("payload[big] = %#v, want json.Number 9007199254740993", payload["big"])
	}
	if n, ok := payload["f"].(json.Number); !ok || n.String() != "1.5" {
		t.Errorf("payload[f] = %#v, want json.Number 1.5", payload["f"])
	}
}

// TestDecodePayloadErrors verifies malformed payloads are reported as DecodeError
func TestDecodePayloadErrors(t *testing.T) {
	enc := func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

	testCases := []struct {
		name    string
		encoded string
	}{
		{"Empty", ""},
		{"Blank", "   "},
		{"Not base64", "!!!not-base64!!!"},
		{"Not JSON", enc("a > 0")},
		{"Array", enc(`[1,2,3]`)},
		{"String", enc(`"hello"`)},
		{"Null", enc(`null`)},
		{"Trailing data", enc(`{"a":1} {"b":2}`)},
		{"Truncated", enc(`{"a":`)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodePayload(tc.encoded)
			var decErr *DecodeError
			if !errors.As(err, &decErr) {
				t.Errorf("Expected DecodeError, got %v", err)
			}
		})
	}
}

// TestEncodePayloadRoundTrip verifies EncodePayload output is accepted by DecodePayload
func TestEncodePayloadRoundTrip(t *testing.T) {
	encoded, err := EncodePayload(map[string]any{"a": 1, "name": "<b>"})
	if err != nil {
		t.Fatalf("EncodePayload() failed: %v", err)
	}

	payload, err := DecodePayload(encoded)
	if err != nil {
		t.Fatalf("DecodePayload() failed: %v", err)
	}
	if payload["a"] != json.Number("1") || payload["name"] != "<b>" {
		t.Errorf("Round trip = %#v", payload)
	}
}
