// Package condition evaluates rule conditions: boolean and arithmetic
// expressions over literals whose variable references are substituted from a
// caller-supplied value set.
//
// Conditions are parsed with a restricted grammar (literals, comparison,
// logical and arithmetic operators, parentheses) and executed as CEL programs
// under a cost limit, so no condition can reach anything beyond its own
// literals.
package condition

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/cel-go/cel"
)

const (
	// DefaultCostLimit bounds the work a single condition may perform.
	DefaultCostLimit uint64 = 1000000

	interruptCheckFrequency uint = 100
)

// Evaluator evaluates conditions. It is safe for concurrent use.
type Evaluator struct {
	env       *cel.Env
	costLimit uint64
	timeout   time.Duration
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithCostLimit overrides DefaultCostLimit.
func WithCostLimit(limit uint64) Option {
	return func(e *Evaluator) {
		e.costLimit = limit
	}
}

// WithTimeout bounds the evaluation time of a single condition. Zero means no
// bound beyond the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		e.timeout = d
	}
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(opts ...Option) (*Evaluator, error) {
	env, err := newCELEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Evaluator{
		env:       env,
		costLimit: DefaultCostLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Evaluate substitutes vars into condition and reports whether the result is
// truthy. Failures are returned as *EvaluationError.
func (e *Evaluator) Evaluate(ctx context.Context, condition string, vars map[string]any) (bool, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	tokens, err := lex(condition)
	if err != nil {
		return false, stageError(StageLex, condition, err)
	}

	tokens, err = substitute(tokens, vars)
	if err != nil {
		return false, stageError(StageSubstitute, condition, err)
	}

	root, err := parse(tokens)
	if err != nil {
		return false, stageError(StageParse, condition, err)
	}

	if err := ctx.Err(); err != nil {
		return false, stageError(StageCompile, condition, err)
	}
	prog, err := e.compile(root)
	if err != nil {
		return false, stageError(StageCompile, condition, err)
	}

	if err := ctx.Err(); err != nil {
		return false, stageError(StageEval, condition, err)
	}
	out, _, err := prog.ContextEval(ctx, map[string]any{})
	if err != nil {
		return false, stageError(StageEval, condition, err)
	}
	return truthy(out.Value()), nil
}

func (e *Evaluator) compile(root node) (cel.Program, error) {
	ast, issues := e.env.Compile(toCEL(root))
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}

	prog, err := e.env.Program(ast,
		cel.CostLimit(e.costLimit),
		cel.InterruptCheckFrequency(interruptCheckFrequency),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	return prog, nil
}

// truthy maps a result to a boolean: numbers are true when non-zero, strings
// when non-empty, null is false.
func truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case float64:
		return val != 0 && !math.IsNaN(val)
	case int64:
		return val != 0
	case uint64:
		return val != 0
	case string:
		return val != ""
	default:
		return false
	}
}
