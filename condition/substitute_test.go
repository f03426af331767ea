package condition

import (
	"encoding/json"
	"testing"
)

// TestSubstituteWholeWord verifies that only complete identifiers are replaced
func TestSubstituteWholeWord(t *testing.T) {
	got, err := Substitute("abc > 1 && a > 0", map[string]any{"a": int64(5)})
	if err != nil {
		t.Fatalf("Substitute() failed: %v", err)
	}
	if want := "abc > 1 && 5 > 0"; got != want {
		t.Errorf("Substitute() = %q, want %q", got, want)
	}
}

// TestSubstituteSinglePass verifies a substituted value is never rescanned
func TestSubstituteSinglePass(t *testing.T) {
	vars := map[string]any{
		"greeting": "hello b",
		"b":        int64(2),
	}

	got, err := Substitute(`greeting == "x" && b == 2`, vars)
	if err != nil {
		t.Fatalf("Substitute() failed: %v", err)
	}
	if want := `"hello b" == "x" && 2 == 2`; got != want {
		t.Errorf("Substitute() = %q, want %q", got, want)
	}
}

// TestSubstituteLeavesStringLiterals verifies quoted text is not treated as a reference
func TestSubstituteLeavesStringLiterals(t *testing.T) {
	got, err := Substitute(`name == "name"`, map[string]any{"name": "bob"})
	if err != nil {
		t.Fatalf("Substitute() failed: %v", err)
	}
	if want := `"bob" == "name"`; got != want {
		t.Errorf("Substitute() = %q, want %q", got, want)
	}
}

func TestSubstituteLiteralEncoding(t *testing.T) {
	testCases := []struct {
		name    string
		value   any
		literal string
	}{
		{"integer", int64(42), "42"},
		{"float", 2.5, "2.5"},
		{"string", "a<b", `"a<b"`},
		{"quoted string", `say "hi"`, `"say \"hi\""`},
		{"bool", true, "true"},
		{"json number", json.Number("7"), "7"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Substitute("x == x", map[string]any{"x": tc.value})
			if err != nil {
				t.Fatalf("Substitute() failed: %v", err)
			}
			if want := tc.literal + " == " + tc.literal; got != want {
				t.Errorf("Substitute() = %q, want %q", got, want)
			}
		})
	}
}

func TestSubstituteUnsupportedValue(t *testing.T) {
	_, err := Substitute("x > 1", map[string]any{"x": []int{1}})
	if err == nil {
		t.Fatal("Substitute() should reject values that have no literal form")
	}
}

func TestLexErrors(t *testing.T) {
	testCases := []struct {
		name string
		expr string
	}{
		{"single equals", "a = 1"},
		{"single ampersand", "a & b"},
		{"unterminated string", `a == "abc`},
		{"number glued to identifier", "5bc > 1"},
		{"unknown character", "a > 1 # comment"},
		{"bad escape", `a == "\q"`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := lex(tc.expr); err == nil {
				t.Errorf("lex(%q) should return error", tc.expr)
			}
		})
	}
}

func TestLexKeywords(t *testing.T) {
	tokens, err := lex("not a and b or true")
	if err != nil {
		t.Fatalf("lex() failed: %v", err)
	}

	wantOps := map[int]string{0: "!", 2: "&&", 4: "||"}
	for i, op := range wantOps {
		if tokens[i].kind != tokOp || tokens[i].op != op {
			t.Errorf("token %d = %+v, want operator %s", i, tokens[i], op)
		}
	}
	if tokens[5].kind != tokBool || tokens[5].value != true {
		t.Errorf("token 5 = %+v, want boolean true", tokens[5])
	}
	if tokens[len(tokens)-1].kind != tokEOF {
		t.Error("token stream should end with EOF")
	}
}
