package rules

import (
	"fmt"
	"time"
)

// VariableType is the declared scalar type of a variable
type VariableType string

const (
	TypeInteger VariableType = "INTEGER"
	TypeFloat   VariableType = "FLOAT"
	TypeString  VariableType = "STRING"
)

// VariableTypes lists the accepted types in their canonical spelling
var VariableTypes = []VariableType{TypeString, TypeFloat, TypeInteger}

// ParseVariableType validates a type name. Names are case-sensitive.
func ParseVariableType(s string) (VariableType, error) {
	for _, t := range VariableTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("invalid variable type %q (must be one of: STRING, FLOAT, INTEGER)", s)
}

// Variable is a named, typed slot whose value is supplied per evaluation
type Variable struct {
	ID        int64        `json:"id"`
	Name      string       `json:"name"`
	Type      VariableType `json:"type"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Rule pairs a condition with the action returned when it holds
type Rule struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Condition string    `json:"condition"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EvaluationResult is emitted for every rule whose condition is satisfied
type EvaluationResult struct {
	RuleID int64  `json:"rule_id"`
	Result string `json:"result"`
}

// Snapshot is a point-in-time copy of the registry and the rule store
type Snapshot struct {
	Variables []*Variable `json:"variables"`
	Rules     []*Rule     `json:"rules"`
}

// Registry returns the name to type view of the snapshot's variables
func (s *Snapshot) Registry() map[string]VariableType {
	registry := make(map[string]VariableType, len(s.Variables))
	for _, v := range s.Variables {
		registry[v.Name] = v.Type
	}
	return registry
}
