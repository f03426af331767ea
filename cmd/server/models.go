package main

import (
	"github.com/liamcoop/ruleeval/rules"
)

// API request and response models

// RuleRequest is the body of POST and PUT on /api/v1/rules
type RuleRequest struct {
	Name      string `json:"name" example:"Large order"`
	Condition string `json:"condition" example:"amount > 1000 && country == \"FR\""`
	Action    string `json:"action" example:"review"`
}

func (req RuleRequest) toRule(id int64) *rules.Rule {
	return &rules.Rule{
		ID:        id,
		Name:      req.Name,
		Condition: req.Condition,
		Action:    req.Action,
	}
}

// VariableRequest is the body of POST and PUT on /api/v1/variables
type VariableRequest struct {
	Name string             `json:"name" example:"amount"`
	Type rules.VariableType `json:"type" example:"FLOAT"`
}

func (req VariableRequest) toVariable(id int64) *rules.Variable {
	return &rules.Variable{
		ID:   id,
		Name: req.Name,
		Type: req.Type,
	}
}

// RulesListResponse represents the response for listing rules
type RulesListResponse struct {
	Rules []*rules.Rule `json:"rules"`
}

// VariablesListResponse represents the response for listing variables
type VariablesListResponse struct {
	Variables []*rules.Variable `json:"variables"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"validation failed: type: is required"`
	Details string `json:"details,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string `json:"status" example:"healthy"`
	Error  string `json:"error,omitempty"`
}
