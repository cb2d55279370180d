// Package ast defines the syntax tree shared by the condition, key
// condition, filter, update and projection expression dialects.
package ast

// Condition is a boolean expression node.
type Condition interface {
	conditionMarker()
}

type CompareOp string

const (
	CompareEq CompareOp = "="
	CompareNe CompareOp = "<>"
	CompareLt CompareOp = "<"
	CompareLe CompareOp = "<="
	CompareGt CompareOp = ">"
	CompareGe CompareOp = ">="
)

type Compare struct {
	Op    CompareOp
	Left  Operand
	Right Operand
}

type Between struct {
	Value Operand
	Low   Operand
	High  Operand
}

type In struct {
	Value   Operand
	Options []Operand
}

type And struct {
	Left  Condition
	Right Condition
}

type Or struct {
	Left  Condition
	Right Condition
}

type Not struct {
	Inner Condition
}

// FunctionName identifies the condition-level built-ins. size() is an
// operand, not a condition, and lives in SizeOf.
type FunctionName string

const (
	FnAttributeExists    FunctionName = "attribute_exists"
	FnAttributeNotExists FunctionName = "attribute_not_exists"
	FnAttributeType      FunctionName = "attribute_type"
	FnBeginsWith         FunctionName = "begins_with"
	FnContains           FunctionName = "contains"
)

type Function struct {
	Name FunctionName
	Args []Operand
}

func (Compare) conditionMarker()  {}
func (Between) conditionMarker()  {}
func (In) conditionMarker()       {}
func (And) conditionMarker()      {}
func (Or) conditionMarker()       {}
func (Not) conditionMarker()      {}
func (Function) conditionMarker() {}

// Operand is a value-producing expression node: a document path, a :value
// placeholder, or size(...).
type Operand interface {
	operandMarker()
}

// ValueRef is a ":name" placeholder resolved from ExpressionAttributeValues.
type ValueRef struct {
	Name string // includes the leading colon
}

// SizeOf is the size(operand) built-in used in operand position.
type SizeOf struct {
	Arg Operand
}

// Path is a document path: a leading attribute name followed by .name and
// [index] accessors. Attribute elements keep "#name" placeholders verbatim;
// resolution happens at evaluation time.
type Path struct {
	Elements []PathElement
}

type PathElement interface {
	pathElementMarker()
}

type Attribute struct {
	Name string
}

type Index struct {
	Value int
}

func (ValueRef) operandMarker() {}
func (SizeOf) operandMarker()  {}
func (Path) operandMarker()    {}

func (Attribute) pathElementMarker() {}
func (Index) pathElementMarker()     {}

// UpdateExpression is the parsed form of an update: the four clauses in
// declaration order, each holding per-path actions.
type UpdateExpression struct {
	Set    []SetAction
	Remove []Path
	Add    []AddAction
	Delete []DeleteAction
}

type SetAction struct {
	Path  Path
	Value SetValue
}

// SetValue is the right-hand side of a SET action.
type SetValue interface {
	setValueMarker()
}

// OperandValue wraps a plain operand assignment.
type OperandValue struct {
	Operand Operand
}

type ArithmeticOp string

const (
	ArithmeticPlus  ArithmeticOp = "+"
	ArithmeticMinus ArithmeticOp = "-"
)

// Arithmetic is `left ± right` where each side is a primary SET value
// (operand, if_not_exists or list_append).
type Arithmetic struct {
	Op    ArithmeticOp
	Left  SetValue
	Right SetValue
}

type IfNotExists struct {
	Path    Path
	Default Operand
}

type ListAppend struct {
	First  Operand
	Second Operand
}

func (OperandValue) setValueMarker() {}
func (Arithmetic) setValueMarker()   {}
func (IfNotExists) setValueMarker()  {}
func (ListAppend) setValueMarker()   {}

type AddAction struct {
	Path  Path
	Value Operand
}

type DeleteAction struct {
	Path  Path
	Value Operand
}
