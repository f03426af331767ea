package condition

import "fmt"

// Stage names the step of evaluation that failed.
type Stage string

const (
	StageLex        Stage = "lex"
	StageSubstitute Stage = "substitute"
	StageParse      Stage = "parse"
	StageCompile    Stage = "compile"
	StageEval       Stage = "eval"
)

// EvaluationError reports a condition that could not be evaluated.
type EvaluationError struct {
	Stage     Stage
	Condition string
	Err       error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("condition %q: %s: %v", e.Condition, e.Stage, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

func stageError(stage Stage, condition string, err error) error {
	return &EvaluationError{Stage: stage, Condition: condition, Err: err}
}
