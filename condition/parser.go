package condition

import "fmt"

// node is an element of a parsed condition. The grammar has no identifiers,
// so a tree is built from literals and operators only.
type node interface {
	// writeCEL renders the node; exact writes integer literals as CEL ints
	writeCEL(w *celWriter, exact bool)

	// integral reports whether the node always yields an integer
	integral() bool
}

type literalNode struct {
	value any // int64, float64, string, bool or nil
}

type unaryNode struct {
	op      string
	operand node
}

type binaryNode struct {
	op          string
	left, right node
}

// Binding powers, lowest first. Every binary operator is left associative.
const (
	bpOr = iota + 1
	bpAnd
	bpEquality
	bpCompare
	bpAdditive
	bpMultiplicative
	bpUnary
)

var infixBindingPower = map[string]int{
	"||": bpOr,
	"&&": bpAnd,
	"==": bpEquality,
	"!=": bpEquality,
	"<":  bpCompare,
	">":  bpCompare,
	"<=": bpCompare,
	">=": bpCompare,
	"+":  bpAdditive,
	"-":  bpAdditive,
	"*":  bpMultiplicative,
	"/":  bpMultiplicative,
}

type parser struct {
	tokens []token
	pos    int
}

// parse builds a tree from substituted tokens. Any identifier still present
// did not name a known variable and is rejected.
func parse(tokens []token) (node, error) {
	p := &parser{tokens: tokens}
	if p.peek().kind == tokEOF {
		return nil, fmt.Errorf("empty condition")
	}

	root, err := p.expression(0)
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %s at offset %d", tok.describe(), tok.pos)
	}
	return root, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) expression(minBP int) (node, error) {
	left, err := p.prefix()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.peek()
		if tok.kind != tokOp {
			break
		}
		bp, ok := infixBindingPower[tok.op]
		if !ok {
			return nil, fmt.Errorf("unexpected %s at offset %d", tok.describe(), tok.pos)
		}
		if bp <= minBP {
			break
		}
		p.next()

		right, err := p.expression(bp)
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: tok.op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) prefix() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber, tokString, tokBool:
		return &literalNode{value: tok.value}, nil

	case tokNull:
		return &literalNode{}, nil

	case tokOp:
		if tok.op != "!" && tok.op != "-" {
			return nil, fmt.Errorf("unexpected %s at offset %d", tok.describe(), tok.pos)
		}
		operand, err := p.expression(bpUnary)
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: tok.op, operand: operand}, nil

	case tokLParen:
		inner, err := p.expression(0)
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, fmt.Errorf("expected ')' at offset %d, found %s", closing.pos, closing.describe())
		}
		return inner, nil

	case tokIdent:
		if p.peek().kind == tokLParen {
			return nil, fmt.Errorf("function calls are not supported (%q at offset %d)", tok.text, tok.pos)
		}
		return nil, fmt.Errorf("unknown identifier %q at offset %d", tok.text, tok.pos)

	case tokEOF:
		return nil, fmt.Errorf("unexpected end of expression")

	default:
		return nil, fmt.Errorf("unexpected %s at offset %d", tok.describe(), tok.pos)
	}
}
