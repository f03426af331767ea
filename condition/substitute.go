package condition

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Substitute replaces every variable reference in expr with the JSON literal
// of its value and returns the resulting text.
//
// Only whole identifier tokens are replaced: a variable named "a" leaves "abc"
// and the contents of string literals alone. All references are resolved in a
// single pass over the original tokens, so a substituted value is never
// scanned again for other variable names.
func Substitute(expr string, vars map[string]any) (string, error) {
	tokens, err := lex(expr)
	if err != nil {
		return "", err
	}
	tokens, err = substitute(tokens, vars)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	last := 0
	for _, tok := range tokens {
		if !tok.substituted {
			continue
		}
		b.WriteString(expr[last:tok.pos])
		b.WriteString(tok.text)
		last = tok.end
	}
	b.WriteString(expr[last:])
	return b.String(), nil
}

// substitute returns a copy of tokens with identifiers found in vars turned
// into literal tokens.
func substitute(tokens []token, vars map[string]any) ([]token, error) {
	out := make([]token, len(tokens))
	for i, tok := range tokens {
		if tok.kind != tokIdent {
			out[i] = tok
			continue
		}
		value, ok := vars[tok.text]
		if !ok {
			out[i] = tok
			continue
		}
		lit, err := literalToken(value)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", tok.text, err)
		}
		lit.pos, lit.end = tok.pos, tok.end
		out[i] = lit
	}
	return out, nil
}

func literalToken(value any) (token, error) {
	tok := token{substituted: true}
	switch v := value.(type) {
	case nil:
		tok.kind = tokNull
	case bool:
		tok.kind, tok.value = tokBool, v
	case string:
		tok.kind, tok.value = tokString, v
	case int:
		tok.kind, tok.value = tokNumber, int64(v)
	case int32:
		tok.kind, tok.value = tokNumber, int64(v)
	case int64:
		tok.kind, tok.value = tokNumber, v
	case float32:
		tok.kind, tok.value = tokNumber, float64(v)
	case float64:
		tok.kind, tok.value = tokNumber, v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			tok.kind, tok.value = tokNumber, n
			break
		}
		f, err := v.Float64()
		if err != nil {
			return token{}, fmt.Errorf("invalid number %q", v.String())
		}
		tok.kind, tok.value = tokNumber, f
	default:
		return token{}, fmt.Errorf("unsupported value type %T", value)
	}

	if f, ok := tok.value.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return token{}, fmt.Errorf("non-finite number %v", f)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return token{}, fmt.Errorf("encode literal: %w", err)
	}
	tok.text = strings.TrimSuffix(buf.String(), "\n")
	return tok, nil
}
