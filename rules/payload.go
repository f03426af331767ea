package rules

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// Accepted alphabets, tried in order. Standard padded base64 is the contract;
// the rest tolerate clients that strip padding or use the URL-safe alphabet.
var payloadEncodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// DecodePayload turns the base64 JSON carried by the evaluation request into
// a map of variable name to value. Numbers are returned as json.Number so integer
// precision survives until coercion.
func DecodePayload(encoded string) (map[string]any, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, &DecodeError{Reason: "payload is empty"}
	}
	// Query-string decoding turns an unescaped '+' into a space
	encoded = strings.ReplaceAll(encoded, " ", "+")

	raw, err := decodeBase64(encoded)
	if err != nil {
		return nil, &DecodeError{Reason: "invalid base64", Err: err}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, &DecodeError{Reason: "invalid JSON", Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &DecodeError{Reason: "unexpected data after JSON value"}
	}

	obj, ok := payload.(map[string]any)
	if !ok {
		return nil, &DecodeError{Reason: "payload must be a JSON object"}
	}
	return obj, nil
}

func decodeBase64(s string) ([]byte, error) {
	var firstErr error
	for _, enc := range payloadEncodings {
		raw, err := enc.DecodeString(s)
		if err == nil {
			return raw, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

// EncodePayload is the inverse of DecodePayload, used by clients and tests
func EncodePayload(values map[string]any) (string, error) {
	raw, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
