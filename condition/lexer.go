package condition

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokBool
	tokNull
	tokIdent
	tokOp
	tokLParen
	tokRParen
)

// token is a lexical unit of a condition. Literal tokens carry their decoded
// value; operator tokens carry the canonical operator in op, so "and" and "&&"
// lex to the same thing.
type token struct {
	kind  tokenKind
	text  string
	op    string
	value any
	pos   int
	end   int

	// substituted marks a literal that replaced a variable reference.
	substituted bool
}

func (t token) describe() string {
	if t.kind == tokEOF {
		return "end of expression"
	}
	return strconv.Quote(t.text)
}

var keywordOps = map[string]string{
	"and": "&&",
	"or":  "||",
	"not": "!",
}

// lex splits a condition into tokens, always terminated by a tokEOF token.
func lex(src string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case isDigit(c) || (c == '.' && i+1 < len(src) && isDigit(src[i+1])):
			tok, err := lexNumber(src, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i = tok.end

		case c == '"' || c == '\'':
			tok, err := lexString(src, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i = tok.end

		case isIdentStart(c):
			j := i + 1
			for j < len(src) && isIdentPart(src[j]) {
				j++
			}
			tokens = append(tokens, wordToken(src[i:j], i, j))
			i = j

		case c == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i, end: i + 1})
			i++

		case c == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i, end: i + 1})
			i++

		default:
			tok, err := lexOperator(src, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i = tok.end
		}
	}
	tokens = append(tokens, token{kind: tokEOF, pos: len(src), end: len(src)})
	return tokens, nil
}

func wordToken(word string, pos, end int) token {
	tok := token{text: word, pos: pos, end: end}
	switch word {
	case "true", "false":
		tok.kind = tokBool
		tok.value = word == "true"
	case "null":
		tok.kind = tokNull
	default:
		if op, ok := keywordOps[word]; ok {
			tok.kind = tokOp
			tok.op = op
		} else {
			tok.kind = tokIdent
		}
	}
	return tok
}

func lexNumber(src string, start int) (token, error) {
	i := start
	for i < len(src) && isDigit(src[i]) {
		i++
	}
	if i < len(src) && src[i] == '.' {
		i++
		for i < len(src) && isDigit(src[i]) {
			i++
		}
	}
	if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
		j := i + 1
		if j < len(src) && (src[j] == '+' || src[j] == '-') {
			j++
		}
		if j < len(src) && isDigit(src[j]) {
			for j < len(src) && isDigit(src[j]) {
				j++
			}
			i = j
		}
	}
	if i < len(src) && isIdentPart(src[i]) {
		return token{}, fmt.Errorf("malformed number at offset %d", start)
	}

	text := src[start:i]
	if !strings.ContainsAny(text, ".eE") {
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return token{kind: tokNumber, text: text, value: n, pos: start, end: i}, nil
		}
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, fmt.Errorf("malformed number %q at offset %d", text, start)
	}
	return token{kind: tokNumber, text: text, value: value, pos: start, end: i}, nil
}

func lexString(src string, start int) (token, error) {
	quote := src[start]
	var b strings.Builder
	i := start + 1
	for i < len(src) {
		c := src[i]
		switch {
		case c == quote:
			return token{kind: tokString, text: src[start : i+1], value: b.String(), pos: start, end: i + 1}, nil

		case c == '\\':
			if i+1 >= len(src) {
				return token{}, fmt.Errorf("unterminated string starting at offset %d", start)
			}
			n, err := unescape(src, i, &b)
			if err != nil {
				return token{}, err
			}
			i += n

		default:
			r, size := utf8.DecodeRuneInString(src[i:])
			if r == utf8.RuneError && size == 1 {
				return token{}, fmt.Errorf("invalid UTF-8 in string at offset %d", i)
			}
			b.WriteRune(r)
			i += size
		}
	}
	return token{}, fmt.Errorf("unterminated string starting at offset %d", start)
}

// unescape decodes the escape sequence at src[i] (a backslash) into b and
// returns the number of bytes consumed.
func unescape(src string, i int, b *strings.Builder) (int, error) {
	switch esc := src[i+1]; esc {
	case '\\', '\'', '"', '/':
		b.WriteByte(esc)
	case 'n':
		b.WriteByte('\n')
	case 't':
		b.WriteByte('\t')
	case 'r':
		b.WriteByte('\r')
	case 'b':
		b.WriteByte('\b')
	case 'f':
		b.WriteByte('\f')
	case 'u':
		if i+6 > len(src) {
			return 0, fmt.Errorf("truncated unicode escape at offset %d", i)
		}
		code, err := strconv.ParseUint(src[i+2:i+6], 16, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid unicode escape %q at offset %d", src[i:i+6], i)
		}
		b.WriteRune(rune(code))
		return 6, nil
	default:
		return 0, fmt.Errorf("unknown escape sequence \\%c at offset %d", esc, i)
	}
	return 2, nil
}

func lexOperator(src string, i int) (token, error) {
	if i+1 < len(src) {
		switch two := src[i : i+2]; two {
		case ">=", "<=", "==", "!=", "&&", "||":
			return token{kind: tokOp, text: two, op: two, pos: i, end: i + 2}, nil
		}
	}

	switch c := src[i]; c {
	case '>', '<', '!', '+', '-', '*', '/':
		return token{kind: tokOp, text: string(c), op: string(c), pos: i, end: i + 1}, nil
	case '=':
		return token{}, fmt.Errorf("unexpected '=' at offset %d (use '==' for equality)", i)
	case '&', '|':
		return token{}, fmt.Errorf("unexpected %q at offset %d (use '%c%c')", c, i, c, c)
	default:
		r, _ := utf8.DecodeRuneInString(src[i:])
		return token{}, fmt.Errorf("unexpected character %q at offset %d", r, i)
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }
