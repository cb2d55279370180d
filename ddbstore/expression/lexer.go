// Package expression implements the expression language: a lexer, a
// recursive-descent parser producing the ast package's nodes, and the
// evaluators for conditions, updates and projections.
package expression

import (
	"fmt"
	"strconv"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNameRef  // #name
	tokValueRef // :value
	tokInt      // bare integer, only valid inside [ ]
	tokEq       // =
	tokNe       // <>
	tokLt       // <
	tokLe       // <=
	tokGt       // >
	tokGe       // >=
	tokPlus
	tokMinus
	tokDot
	tokComma
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
)

type token struct {
	kind tokenKind
	text string
	num  int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "<end of expression>"
	case tokInt:
		return strconv.Itoa(t.num)
	default:
		return t.text
	}
}

// tokenize splits an expression string into tokens. Keywords and function
// names are returned as plain identifiers; the parser classifies them.
func tokenize(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '=':
			tokens = append(tokens, token{kind: tokEq, text: "="})
			i++
		case c == '<':
			if i+1 < len(input) && input[i+1] == '>' {
				tokens = append(tokens, token{kind: tokNe, text: "<>"})
				i += 2
			} else if i+1 < len(input) && input[i+1] == '=' {
				tokens = append(tokens, token{kind: tokLe, text: "<="})
				i += 2
			} else {
				tokens = append(tokens, token{kind: tokLt, text: "<"})
				i++
			}
		case c == '>':
			if i+1 < len(input) && input[i+1] == '=' {
				tokens = append(tokens, token{kind: tokGe, text: ">="})
				i += 2
			} else {
				tokens = append(tokens, token{kind: tokGt, text: ">"})
				i++
			}
		case c == '+':
			tokens = append(tokens, token{kind: tokPlus, text: "+"})
			i++
		case c == '-':
			tokens = append(tokens, token{kind: tokMinus, text: "-"})
			i++
		case c == '.':
			tokens = append(tokens, token{kind: tokDot, text: "."})
			i++
		case c == ',':
			tokens = append(tokens, token{kind: tokComma, text: ","})
			i++
		case c == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "("})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")"})
			i++
		case c == '[':
			tokens = append(tokens, token{kind: tokLBracket, text: "["})
			i++
		case c == ']':
			tokens = append(tokens, token{kind: tokRBracket, text: "]"})
			i++
		case c == '#':
			start := i
			i++
			for i < len(input) && isIdentChar(input[i]) {
				i++
			}
			if i == start+1 {
				return nil, fmt.Errorf("invalid expression attribute name reference at position %d", start)
			}
			tokens = append(tokens, token{kind: tokNameRef, text: input[start:i]})
		case c == ':':
			start := i
			i++
			for i < len(input) && isIdentChar(input[i]) {
				i++
			}
			if i == start+1 {
				return nil, fmt.Errorf("invalid expression attribute value reference at position %d", start)
			}
			tokens = append(tokens, token{kind: tokValueRef, text: input[start:i]})
		case c >= '0' && c <= '9':
			start := i
			for i < len(input) && input[i] >= '0' && input[i] <= '9' {
				i++
			}
			n, err := strconv.ParseInt(input[start:i], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("index %q is out of range", input[start:i])
			}
			tokens = append(tokens, token{kind: tokInt, text: input[start:i], num: int(n)})
		case isIdentStart(c):
			start := i
			for i < len(input) && isIdentChar(input[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokIdent, text: input[start:i]})
		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", string(c), i)
		}
	}
	tokens = append(tokens, token{kind: tokEOF})
	return tokens, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
