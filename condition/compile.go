package condition

import (
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// checkedDivFunction is the CEL function every '/' compiles to. CEL's own
// double division yields +Inf on a zero divisor; conditions treat that as an
// evaluation failure instead.
const checkedDivFunction = "checkedDiv"

// truthyFunction converts an operand of '!', '&&' or '||' to bool with the
// same rules that decide the outcome of a whole condition.
const truthyFunction = "truthy"

// newCELEnv returns an environment with no variables declared. A compiled
// condition can only see the literals written into it.
func newCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Function(checkedDivFunction,
			cel.Overload("checked_div_double_double",
				[]*cel.Type{cel.DoubleType, cel.DoubleType},
				cel.DoubleType,
				cel.BinaryBinding(checkedDiv),
			),
		),
		cel.Function(truthyFunction,
			cel.Overload("truthy_bool", []*cel.Type{cel.BoolType}, cel.BoolType, cel.UnaryBinding(celTruthy)),
			cel.Overload("truthy_int", []*cel.Type{cel.IntType}, cel.BoolType, cel.UnaryBinding(celTruthy)),
			cel.Overload("truthy_double", []*cel.Type{cel.DoubleType}, cel.BoolType, cel.UnaryBinding(celTruthy)),
			cel.Overload("truthy_string", []*cel.Type{cel.StringType}, cel.BoolType, cel.UnaryBinding(celTruthy)),
			cel.Overload("truthy_null", []*cel.Type{cel.NullType}, cel.BoolType, cel.UnaryBinding(celTruthy)),
		),
	)
}

func checkedDiv(lhs, rhs ref.Val) ref.Val {
	l, lok := lhs.(types.Double)
	r, rok := rhs.(types.Double)
	if !lok || !rok {
		return types.NewErr("no such overload for %s", checkedDivFunction)
	}
	if r == 0 {
		return types.NewErr("division by zero")
	}
	return l / r
}

func celTruthy(v ref.Val) ref.Val {
	return types.Bool(truthy(v.Value()))
}

// celWriter renders a condition tree as CEL source.
//
// Numbers are written as doubles so that mixed integer and float arithmetic
// type-checks, the way the payload's JSON numbers behave. Where every number
// under an operator is an integer they are written as CEL ints instead, so
// comparisons stay exact beyond 2^53. Integer arithmetic that overflows int64
// is an evaluation error.
type celWriter struct {
	strings.Builder
}

func toCEL(root node) string {
	var w celWriter
	root.writeCEL(&w, root.integral())
	return w.String()
}

func (n *literalNode) integral() bool {
	_, ok := n.value.(int64)
	return ok
}

func (n *literalNode) writeCEL(w *celWriter, exact bool) {
	switch v := n.value.(type) {
	case nil:
		w.WriteString("null")
	case bool:
		w.WriteString(strconv.FormatBool(v))
	case string:
		w.WriteString(strconv.Quote(v))
	case int64:
		if exact {
			w.WriteString(formatInt(v))
		} else {
			w.WriteString(formatDouble(float64(v)))
		}
	case float64:
		w.WriteString(formatDouble(v))
	}
}

func (n *unaryNode) integral() bool {
	return n.op == "-" && n.operand.integral()
}

func (n *unaryNode) writeCEL(w *celWriter, exact bool) {
	w.WriteString(n.op)
	w.WriteByte('(')
	if n.op == "!" {
		writeTruthy(w, n.operand)
	} else {
		n.operand.writeCEL(w, exact)
	}
	w.WriteByte(')')
}

func (n *binaryNode) integral() bool {
	switch n.op {
	case "+", "-", "*":
		return n.left.integral() && n.right.integral()
	}
	return false
}

func (n *binaryNode) writeCEL(w *celWriter, exact bool) {
	switch n.op {
	case "/":
		w.WriteString(checkedDivFunction)
		w.WriteByte('(')
		n.left.writeCEL(w, false)
		w.WriteString(", ")
		n.right.writeCEL(w, false)
		w.WriteByte(')')
		return
	case "&&", "||":
		w.WriteByte('(')
		writeTruthy(w, n.left)
		w.WriteString(" " + n.op + " ")
		writeTruthy(w, n.right)
		w.WriteByte(')')
		return
	case "+", "-", "*":
		// exact already reflects whether both operands are integers
	default:
		exact = n.left.integral() && n.right.integral()
	}

	w.WriteByte('(')
	n.left.writeCEL(w, exact)
	w.WriteByte(' ')
	w.WriteString(n.op)
	w.WriteByte(' ')
	n.right.writeCEL(w, exact)
	w.WriteByte(')')
}

// writeTruthy writes n as a boolean operand, converting it unless it is
// already known to be a bool
func writeTruthy(w *celWriter, n node) {
	if isBoolean(n) {
		n.writeCEL(w, false)
		return
	}
	w.WriteString(truthyFunction)
	w.WriteByte('(')
	n.writeCEL(w, n.integral())
	w.WriteByte(')')
}

func isBoolean(n node) bool {
	switch v := n.(type) {
	case *literalNode:
		_, ok := v.value.(bool)
		return ok
	case *unaryNode:
		return v.op == "!"
	case *binaryNode:
		switch v.op {
		case "+", "-", "*", "/":
			return false
		}
		return true
	}
	return false
}

func formatInt(i int64) string {
	s := strconv.FormatInt(i, 10)
	if i < 0 {
		return "(" + s + ")"
	}
	return s
}

func formatDouble(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	if f < 0 {
		return "(" + s + ")"
	}
	return s
}
