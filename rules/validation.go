package rules

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxNameLength      = 100
	maxConditionLength = 4096
	maxActionLength    = 4096
)

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateVariable checks a variable before it is written to the registry.
// Names must be referencable from a condition: identifier syntax, and not one
// of the condition grammar's keywords.
func ValidateVariable(v *Variable) error {
	if strings.TrimSpace(v.Name) == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if err := validateIdentifier(v.Name); err != nil {
		return &ValidationError{Field: "name", Reason: err.Error()}
	}

	if v.Type == "" {
		return &ValidationError{Field: "type", Reason: "is required"}
	}
	if _, err := ParseVariableType(string(v.Type)); err != nil {
		return &ValidationError{Field: "type", Reason: err.Error()}
	}

	return nil
}

// ValidateRule checks that a rule carries every required field. The condition
// is deliberately not parsed: malformed conditions are only detected, and
// skipped, at evaluation time.
func ValidateRule(r *Rule) error {
	if strings.TrimSpace(r.Name) == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if len(r.Name) > maxNameLength {
		return &ValidationError{Field: "name", Reason: fmt.Sprintf("length %d exceeds maximum of %d characters", len(r.Name), maxNameLength)}
	}

	if strings.TrimSpace(r.Condition) == "" {
		return &ValidationError{Field: "condition", Reason: "is required"}
	}
	if len(r.Condition) > maxConditionLength {
		return &ValidationError{Field: "condition", Reason: fmt.Sprintf("length %d exceeds maximum of %d characters", len(r.Condition), maxConditionLength)}
	}

	if r.Action == "" {
		return &ValidationError{Field: "action", Reason: "is required"}
	}
	if len(r.Action) > maxActionLength {
		return &ValidationError{Field: "action", Reason: fmt.Sprintf("length %d exceeds maximum of %d characters", len(r.Action), maxActionLength)}
	}

	return nil
}

func validateIdentifier(name string) error {
	if len(name) > maxNameLength {
		return fmt.Errorf("identifier length %d exceeds maximum of %d characters", len(name), maxNameLength)
	}

	if !validIdentifier.MatchString(name) {
		return fmt.Errorf("must match pattern ^[a-zA-Z_][a-zA-Z0-9_]*$ (start with letter or underscore, followed by letters, digits, or underscores)")
	}

	if isReservedKeyword(name) {
		return fmt.Errorf("cannot use reserved keyword %q as identifier", name)
	}

	return nil
}

// isReservedKeyword reports words the condition grammar gives a meaning to
func isReservedKeyword(name string) bool {
	reservedKeywords := map[string]bool{
		"true":  true,
		"false": true,
		"null":  true,
		"and":   true,
		"or":    true,
		"not":   true,
	}

	return reservedKeywords[name]
}
