package rules

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/liamcoop/ruleeval/condition"
	"github.com/liamcoop/ruleeval/internal/logger"
	"github.com/liamcoop/ruleeval/internal/tracing"
)

// ConditionEvaluator decides whether a condition holds for a set of typed
// variable values
type ConditionEvaluator interface {
	Evaluate(ctx context.Context, condition string, vars map[string]any) (bool, error)
}

// Outcome classifies the evaluation of a single rule
type Outcome string

const (
	OutcomeMatched   Outcome = "matched"
	OutcomeUnmatched Outcome = "unmatched"
	OutcomeError     Outcome = "error"
)

// Recorder receives evaluation statistics, typically for metrics export
type Recorder interface {
	RecordRuleOutcome(outcome Outcome)
	RecordSnapshotLoad(cached bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordRuleOutcome(Outcome) {}
func (nopRecorder) RecordSnapshotLoad(bool)   {}

// Engine ties the registry and rule store to the condition evaluator.
// Safe for concurrent use; all mutations go through the stores and invalidate
// the snapshot cache.
type Engine struct {
	rules     RuleStore
	variables VariableStore
	evaluator ConditionEvaluator
	cache     SnapshotCache
	recorder  Recorder
	workers   int
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithCache replaces the default in-memory snapshot cache
func WithCache(cache SnapshotCache) EngineOption {
	return func(en *Engine) {
		en.cache = cache
	}
}

// WithRecorder sets where rule outcomes and cache hits are reported
func WithRecorder(r Recorder) EngineOption {
	return func(en *Engine) {
		en.recorder = r
	}
}

// WithWorkers bounds how many rules are evaluated in parallel
func WithWorkers(n int) EngineOption {
	return func(en *Engine) {
		if n > 0 {
			en.workers = n
		}
	}
}

// WithEvaluator replaces the default condition evaluator
func WithEvaluator(ev ConditionEvaluator) EngineOption {
	return func(en *Engine) {
		en.evaluator = ev
	}
}

// NewEngine creates a new rules engine over the given stores
func NewEngine(rules RuleStore, variables VariableStore, opts ...EngineOption) (*Engine, error) {
	en := &Engine{
		rules:     rules,
		variables: variables,
		cache:     NewInMemorySnapshotCache(DefaultCacheConfig()),
		recorder:  nopRecorder{},
		workers:   runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(en)
	}

	if en.evaluator == nil {
		ev, err := condition.NewEvaluator()
		if err != nil {
			return nil, fmt.Errorf("failed to create condition evaluator: %w", err)
		}
		en.evaluator = ev
	}

	return en, nil
}

// ListRules returns every rule ordered by id
func (en *Engine) ListRules(ctx context.Context) ([]*Rule, error) {
	return en.rules.List(ctx)
}

// GetRule returns a rule by id
func (en *Engine) GetRule(ctx context.Context, id int64) (*Rule, error) {
	return en.rules.Get(ctx, id)
}

// CreateRule validates and stores a rule. The condition is not parsed.
func (en *Engine) CreateRule(ctx context.Context, r *Rule) error {
	if err := ValidateRule(r); err != nil {
		return err
	}
	if err := en.rules.Create(ctx, r); err != nil {
		return err
	}

	// Invalidate cache since rules list changed
	en.cache.Invalidate(ctx)
	return nil
}

// UpdateRule validates and replaces an existing rule
func (en *Engine) UpdateRule(ctx context.Context, r *Rule) error {
	if err := ValidateRule(r); err != nil {
		return err
	}
	if err := en.rules.Update(ctx, r); err != nil {
		return err
	}

	en.cache.Invalidate(ctx)
	return nil
}

// DeleteRule removes a rule
func (en *Engine) DeleteRule(ctx context.Context, id int64) error {
	if err := en.rules.Delete(ctx, id); err != nil {
		return err
	}

	en.cache.Invalidate(ctx)
	return nil
}

// ListVariables returns the registry ordered by id
func (en *Engine) ListVariables(ctx context.Context) ([]*Variable, error) {
	return en.variables.List(ctx)
}

// GetVariable returns a variable by id
func (en *Engine) GetVariable(ctx context.Context, id int64) (*Variable, error) {
	return en.variables.Get(ctx, id)
}

// CreateVariable validates and registers a variable
func (en *Engine) CreateVariable(ctx context.Context, v *Variable) error {
	if err := ValidateVariable(v); err != nil {
		return err
	}
	if err := en.variables.Create(ctx, v); err != nil {
		return err
	}

	en.cache.Invalidate(ctx)
	return nil
}

// UpdateVariable validates and replaces an existing variable
func (en *Engine) UpdateVariable(ctx context.Context, v *Variable) error {
	if err := ValidateVariable(v); err != nil {
		return err
	}
	if err := en.variables.Update(ctx, v); err != nil {
		return err
	}

	en.cache.Invalidate(ctx)
	return nil
}

// DeleteVariable removes a variable from the registry
func (en *Engine) DeleteVariable(ctx context.Context, id int64) error {
	if err := en.variables.Delete(ctx, id); err != nil {
		return err
	}

	en.cache.Invalidate(ctx)
	return nil
}

// snapshot returns the registry and rule list, from cache when possible
func (en *Engine) snapshot(ctx context.Context) (*Snapshot, error) {
	span := trace.SpanFromContext(ctx)
	if s := en.cache.Get(ctx); s != nil {
		en.recorder.RecordSnapshotLoad(true)
		span.SetAttributes(tracing.SnapshotCachedKey.Bool(true))
		return s, nil
	}
	span.SetAttributes(tracing.SnapshotCachedKey.Bool(false))

	gen := en.cache.Generation(ctx)
	variables, err := en.variables.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load variables: %w", err)
	}
	rulesList, err := en.rules.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	s := &Snapshot{Variables: variables, Rules: rulesList}
	en.cache.Set(ctx, gen, s)
	en.recorder.RecordSnapshotLoad(false)
	return s, nil
}

// Evaluate runs every rule against the payload and returns the actions of
// the rules whose condition holds, in rule store order. Rules whose condition
// cannot be evaluated are logged and skipped. The result is never nil.
func (en *Engine) Evaluate(ctx context.Context, payload map[string]any) (_ []EvaluationResult, err error) {
	ctx, span := tracing.Tracer().Start(ctx, "rules.Evaluate")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	snap, err := en.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	coerced := Coerce(payload, snap.Registry())
	span.SetAttributes(
		tracing.RulesTotalKey.Int(len(snap.Rules)),
		tracing.PayloadDroppedKey.StringSlice(coerced.Dropped),
		tracing.PayloadUnknownKey.StringSlice(coerced.Unknown),
	)
	if len(coerced.Unknown) > 0 {
		logger.Debug("Ignoring unregistered payload keys", "keys", coerced.Unknown)
	}
	if len(coerced.Dropped) > 0 {
		logger.Warn("Dropping payload values that do not fit their declared type", "keys", coerced.Dropped)
	}

	matched := make([]bool, len(snap.Rules))
	var skipped atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(en.workers)
	for i, rule := range snap.Rules {
		i, rule := i, rule
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			ok, err := en.evaluator.Evaluate(gctx, rule.Condition, coerced.Values)
			if err != nil {
				// A canceled request aborts the batch; anything else skips the rule
				if ctx.Err() != nil {
					return ctx.Err()
				}
				en.recorder.RecordRuleOutcome(OutcomeError)
				skipped.Add(1)
				logRuleFailure(rule, coerced.Values, err)
				return nil
			}

			if ok {
				en.recorder.RecordRuleOutcome(OutcomeMatched)
			} else {
				en.recorder.RecordRuleOutcome(OutcomeUnmatched)
			}
			matched[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("evaluation aborted: %w", err)
	}
	span.SetAttributes(tracing.RulesSkippedKey.Int64(skipped.Load()))

	results := make([]EvaluationResult, 0, len(snap.Rules))
	for i, rule := range snap.Rules {
		if matched[i] {
			results = append(results, EvaluationResult{RuleID: rule.ID, Result: rule.Action})
		}
	}
	span.SetAttributes(tracing.RulesMatchedKey.Int(len(results)))
	return results, nil
}

// EvaluateEncoded decodes a base64 JSON payload and evaluates it
func (en *Engine) EvaluateEncoded(ctx context.Context, encoded string) ([]EvaluationResult, error) {
	payload, err := DecodePayload(encoded)
	if err != nil {
		return nil, err
	}
	return en.Evaluate(ctx, payload)
}

func logRuleFailure(rule *Rule, values map[string]any, err error) {
	args := []any{"rule_id", rule.ID, "condition", rule.Condition, "error", err}

	var evalErr *condition.EvaluationError
	if errors.As(err, &evalErr) {
		args = append(args, "stage", string(evalErr.Stage))
	}
	if substituted, subErr := condition.Substitute(rule.Condition, values); subErr == nil {
		args = append(args, "expression", substituted)
	}

	logger.WarnSkippedRule()
	logger.Warn("Skipping rule that failed to evaluate", args...)
}
