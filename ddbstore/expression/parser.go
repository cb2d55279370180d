package expression

import (
	"fmt"
	"strings"

	"github.com/dynalocal/dynalocal/ddbstore/expression/ast"
)

// maxPathDepth matches the item nesting limit.
const maxPathDepth = 32

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) peekAt(offset int) token {
	if p.pos+offset >= len(p.tokens) {
		return token{kind: tokEOF}
	}
	return p.tokens[p.pos+offset]
}

func (p *parser) advance() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.peek()
	if t.kind != kind {
		return token{}, fmt.Errorf("expected %s but found %q", what, t.String())
	}
	return p.advance(), nil
}

// keywordIs matches a reserved word case-insensitively.
func (p *parser) keywordIs(word string) bool {
	t := p.peek()
	return t.kind == tokIdent && strings.EqualFold(t.text, word)
}

// ParseCondition parses a condition, filter or key condition expression.
func ParseCondition(input string) (ast.Condition, error) {
	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("unexpected token %q after expression", p.peek().String())
	}
	return cond, nil
}

func (p *parser) parseOr() (ast.Condition, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.keywordIs("OR") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = ast.Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (ast.Condition, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.keywordIs("AND") {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = ast.And{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (ast.Condition, error) {
	if p.keywordIs("NOT") {
		p.advance()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return ast.Not{Inner: inner}, nil
	}
	return p.parsePrimaryCondition()
}

func (p *parser) parsePrimaryCondition() (ast.Condition, error) {
	if p.peek().kind == tokLParen {
		p.advance()
		cond, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "\")\""); err != nil {
			return nil, err
		}
		return cond, nil
	}

	// A function call in condition position. Function names are
	// case-sensitive; keywords are not.
	if p.peek().kind == tokIdent && p.peekAt(1).kind == tokLParen && p.peek().text != "size" {
		name := p.peek().text
		switch name {
		case "attribute_exists", "attribute_not_exists":
			p.advance()
			p.advance() // (
			path, err := p.parsePath()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokRParen, "\")\""); err != nil {
				return nil, err
			}
			fn := ast.FnAttributeExists
			if name == "attribute_not_exists" {
				fn = ast.FnAttributeNotExists
			}
			return ast.Function{Name: fn, Args: []ast.Operand{path}}, nil
		case "attribute_type", "begins_with", "contains":
			p.advance()
			p.advance() // (
			first, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokComma, "\",\""); err != nil {
				return nil, err
			}
			second, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokRParen, "\")\""); err != nil {
				return nil, err
			}
			return ast.Function{Name: ast.FunctionName(name), Args: []ast.Operand{first, second}}, nil
		case "if_not_exists", "list_append":
			return nil, fmt.Errorf("the function %q is not allowed in a condition expression", name)
		default:
			return nil, fmt.Errorf("invalid function name; function: %s", name)
		}
	}

	operand, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return p.parsePostfix(operand)
}

// parsePostfix handles the comparison, BETWEEN and IN forms after a leading
// operand. A bare operand is not a condition.
func (p *parser) parsePostfix(left ast.Operand) (ast.Condition, error) {
	switch t := p.peek(); {
	case t.kind == tokEq, t.kind == tokNe, t.kind == tokLt, t.kind == tokLe, t.kind == tokGt, t.kind == tokGe:
		op := compareOpFor(t.kind)
		p.advance()
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return ast.Compare{Op: op, Left: left, Right: right}, nil

	case p.keywordIs("BETWEEN"):
		p.advance()
		low, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		if !p.keywordIs("AND") {
			return nil, fmt.Errorf("expected AND in BETWEEN condition but found %q", p.peek().String())
		}
		p.advance()
		high, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return ast.Between{Value: left, Low: low, High: high}, nil

	case p.keywordIs("IN"):
		p.advance()
		if _, err := p.expect(tokLParen, "\"(\""); err != nil {
			return nil, err
		}
		var options []ast.Operand
		first, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		options = append(options, first)
		for p.peek().kind == tokComma {
			p.advance()
			next, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			options = append(options, next)
		}
		if _, err := p.expect(tokRParen, "\")\""); err != nil {
			return nil, err
		}
		return ast.In{Value: left, Options: options}, nil
	}
	return nil, fmt.Errorf("syntax error; expected a comparison, BETWEEN or IN but found %q", p.peek().String())
}

func compareOpFor(kind tokenKind) ast.CompareOp {
	switch kind {
	case tokEq:
		return ast.CompareEq
	case tokNe:
		return ast.CompareNe
	case tokLt:
		return ast.CompareLt
	case tokLe:
		return ast.CompareLe
	case tokGt:
		return ast.CompareGt
	case tokGe:
		return ast.CompareGe
	}
	panic("not a comparison token")
}

// parseOperand parses a :value reference, a size() call or a document path.
func (p *parser) parseOperand() (ast.Operand, error) {
	t := p.peek()
	switch {
	case t.kind == tokValueRef:
		p.advance()
		return ast.ValueRef{Name: t.text}, nil
	case t.kind == tokIdent && t.text == "size" && p.peekAt(1).kind == tokLParen:
		p.advance()
		p.advance() // (
		arg, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		if p.peek().kind == tokComma {
			return nil, fmt.Errorf("the function size takes exactly one argument")
		}
		if _, err := p.expect(tokRParen, "\")\""); err != nil {
			return nil, err
		}
		return ast.SizeOf{Arg: arg}, nil
	case t.kind == tokIdent || t.kind == tokNameRef:
		return p.parsePath()
	}
	return nil, fmt.Errorf("expected an operand but found %q", t.String())
}

// parsePath parses `head(.name | [index])*` where names may be #references.
func (p *parser) parsePath() (ast.Path, error) {
	head := p.peek()
	if head.kind != tokIdent && head.kind != tokNameRef {
		return ast.Path{}, fmt.Errorf("expected an attribute name but found %q", head.String())
	}
	p.advance()
	elements := []ast.PathElement{ast.Attribute{Name: head.text}}

	for {
		switch p.peek().kind {
		case tokDot:
			p.advance()
			name := p.peek()
			if name.kind != tokIdent && name.kind != tokNameRef {
				return ast.Path{}, fmt.Errorf("expected an attribute name after \".\" but found %q", name.String())
			}
			p.advance()
			elements = append(elements, ast.Attribute{Name: name.text})
		case tokLBracket:
			p.advance()
			idx := p.peek()
			if idx.kind == tokMinus {
				return ast.Path{}, fmt.Errorf("list index must not be negative")
			}
			if idx.kind != tokInt {
				return ast.Path{}, fmt.Errorf("expected a list index but found %q", idx.String())
			}
			p.advance()
			if _, err := p.expect(tokRBracket, "\"]\""); err != nil {
				return ast.Path{}, err
			}
			elements = append(elements, ast.Index{Value: idx.num})
		default:
			return ast.Path{Elements: elements}, nil
		}
	}
}

// ParseUpdate parses an update expression: SET, REMOVE, ADD and DELETE
// clauses in any order, each appearing at most once.
func ParseUpdate(input string) (*ast.UpdateExpression, error) {
	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	expr := &ast.UpdateExpression{}
	seen := make(map[string]bool)

	for p.peek().kind != tokEOF {
		t := p.peek()
		if t.kind != tokIdent {
			return nil, fmt.Errorf("expected an update clause but found %q", t.String())
		}
		clause := strings.ToUpper(t.text)
		switch clause {
		case "SET", "REMOVE", "ADD", "DELETE":
		default:
			return nil, fmt.Errorf("expected SET, REMOVE, ADD or DELETE but found %q", t.text)
		}
		if seen[clause] {
			return nil, fmt.Errorf("the %q section can only be used once in an update expression", clause)
		}
		seen[clause] = true
		p.advance()

		switch clause {
		case "SET":
			if err := p.parseSetClause(expr); err != nil {
				return nil, err
			}
		case "REMOVE":
			if err := p.parseRemoveClause(expr); err != nil {
				return nil, err
			}
		case "ADD":
			if err := p.parseAddClause(expr); err != nil {
				return nil, err
			}
		case "DELETE":
			if err := p.parseDeleteClause(expr); err != nil {
				return nil, err
			}
		}
	}

	if len(expr.Set) == 0 && len(expr.Remove) == 0 && len(expr.Add) == 0 && len(expr.Delete) == 0 {
		return nil, fmt.Errorf("update expression must contain at least one clause")
	}
	return expr, nil
}

func (p *parser) parseSetClause(expr *ast.UpdateExpression) error {
	for {
		path, err := p.parsePath()
		if err != nil {
			return err
		}
		if _, err := p.expect(tokEq, "\"=\""); err != nil {
			return err
		}
		value, err := p.parseSetValue()
		if err != nil {
			return err
		}
		expr.Set = append(expr.Set, ast.SetAction{Path: path, Value: value})
		if p.peek().kind != tokComma {
			return nil
		}
		p.advance()
	}
}

// parseSetValue parses a primary SET value with an optional trailing
// `+ value` or `- value`, so `if_not_exists(c, :zero) + :one` works.
func (p *parser) parseSetValue() (ast.SetValue, error) {
	primary, err := p.parseSetValuePrimary()
	if err != nil {
		return nil, err
	}
	switch p.peek().kind {
	case tokPlus:
		p.advance()
		right, err := p.parseSetValuePrimary()
		if err != nil {
			return nil, err
		}
		return ast.Arithmetic{Op: ast.ArithmeticPlus, Left: primary, Right: right}, nil
	case tokMinus:
		p.advance()
		right, err := p.parseSetValuePrimary()
		if err != nil {
			return nil, err
		}
		return ast.Arithmetic{Op: ast.ArithmeticMinus, Left: primary, Right: right}, nil
	}
	return primary, nil
}

func (p *parser) parseSetValuePrimary() (ast.SetValue, error) {
	t := p.peek()
	if t.kind == tokIdent && p.peekAt(1).kind == tokLParen {
		switch t.text {
		case "if_not_exists":
			p.advance()
			p.advance() // (
			path, err := p.parsePath()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokComma, "\",\""); err != nil {
				return nil, err
			}
			def, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokRParen, "\")\""); err != nil {
				return nil, err
			}
			return ast.IfNotExists{Path: path, Default: def}, nil
		case "list_append":
			p.advance()
			p.advance() // (
			first, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokComma, "\",\""); err != nil {
				return nil, err
			}
			second, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokRParen, "\")\""); err != nil {
				return nil, err
			}
			return ast.ListAppend{First: first, Second: second}, nil
		case "size":
			// size() is a valid operand.
		default:
			return nil, fmt.Errorf("invalid function name; function: %s", t.text)
		}
	}
	operand, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return ast.OperandValue{Operand: operand}, nil
}

func (p *parser) parseRemoveClause(expr *ast.UpdateExpression) error {
	for {
		path, err := p.parsePath()
		if err != nil {
			return err
		}
		expr.Remove = append(expr.Remove, path)
		if p.peek().kind != tokComma {
			return nil
		}
		p.advance()
	}
}

func (p *parser) parseAddClause(expr *ast.UpdateExpression) error {
	for {
		path, err := p.parsePath()
		if err != nil {
			return err
		}
		value, err := p.parseOperand()
		if err != nil {
			return err
		}
		expr.Add = append(expr.Add, ast.AddAction{Path: path, Value: value})
		if p.peek().kind != tokComma {
			return nil
		}
		p.advance()
	}
}

func (p *parser) parseDeleteClause(expr *ast.UpdateExpression) error {
	for {
		path, err := p.parsePath()
		if err != nil {
			return err
		}
		value, err := p.parseOperand()
		if err != nil {
			return err
		}
		expr.Delete = append(expr.Delete, ast.DeleteAction{Path: path, Value: value})
		if p.peek().kind != tokComma {
			return nil
		}
		p.advance()
	}
}

// ParseProjection parses a comma-separated list of document paths and
// rejects overlapping or conflicting paths.
func ParseProjection(input string) ([]ast.Path, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, fmt.Errorf("projection expression must not be empty")
	}
	if strings.HasPrefix(trimmed, ",") || strings.HasSuffix(trimmed, ",") {
		return nil, fmt.Errorf("projection expression has an empty path segment")
	}

	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	var paths []ast.Path
	for {
		path, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		if len(path.Elements) > maxPathDepth {
			return nil, fmt.Errorf("projection paths must not exceed %d nesting levels", maxPathDepth)
		}
		paths = append(paths, path)
		if p.peek().kind != tokComma {
			break
		}
		p.advance()
		if p.peek().kind == tokEOF {
			return nil, fmt.Errorf("projection expression has an empty path segment")
		}
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("unexpected token %q in projection expression", p.peek().String())
	}

	for i := 0; i < len(paths); i++ {
		for j := i + 1; j < len(paths); j++ {
			if err := checkPathPair(paths[i], paths[j]); err != nil {
				return nil, err
			}
		}
	}
	return paths, nil
}

// checkPathPair rejects paths where one is a prefix of the other (overlap)
// or where the same position is accessed both as a map key and as a list
// index (conflict).
func checkPathPair(a, b ast.Path) error {
	n := len(a.Elements)
	if len(b.Elements) < n {
		n = len(b.Elements)
	}
	for i := 0; i < n; i++ {
		ea, eb := a.Elements[i], b.Elements[i]
		attrA, aIsAttr := ea.(ast.Attribute)
		attrB, bIsAttr := eb.(ast.Attribute)
		if aIsAttr != bIsAttr {
			if i == 0 {
				return fmt.Errorf("invalid projection expression")
			}
			return fmt.Errorf("two document paths conflict with each other; path one: %s, path two: %s", PathString(a), PathString(b))
		}
		if aIsAttr {
			if attrA.Name != attrB.Name {
				return nil
			}
			continue
		}
		if ea.(ast.Index).Value != eb.(ast.Index).Value {
			return nil
		}
	}
	return fmt.Errorf("two document paths overlap with each other; must remove or rewrite one of these paths; path one: %s, path two: %s", PathString(a), PathString(b))
}

// PathString renders a path the way it was written, with #references kept.
func PathString(p ast.Path) string {
	var sb strings.Builder
	for i, elem := range p.Elements {
		switch e := elem.(type) {
		case ast.Attribute:
			if i > 0 {
				sb.WriteByte('.')
			}
			sb.WriteString(e.Name)
		case ast.Index:
			fmt.Fprintf(&sb, "[%d]", e.Value)
		}
	}
	return sb.String()
}
