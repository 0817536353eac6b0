// Package ast defines the statement and expression sum types produced by
// the parser. Variants are modeled as a small closed interface plus
// concrete structs, no inheritance, so consumers dispatch with exhaustive
// type switches.
package ast

import (
	"github.com/webql/webql/token"
	"github.com/webql/webql/types"
)

// Expression is the sum type of all expression AST nodes: LITERAL,
// IDENTIFIER, BINARY, UNARY, CALL, MEMBER, ARRAY, OBJECT.
type Expression interface {
	expressionNode()
	Pos() token.Position
}

type base struct {
	Position token.Position
}

func (base) expressionNode() {}
func (b base) Pos() token.Position { return b.Position }

// Literal is a constant value of a known data type.
type Literal struct {
	base
	DataType types.DataType
	Value    interface{}
}

// NewLiteral constructs a Literal expression.
func NewLiteral(pos token.Position, dataType types.DataType, value interface{}) *Literal {
	return &Literal{base: base{pos}, DataType: dataType, Value: value}
}

// Identifier references a bound name (variable, field, or CTE).
type Identifier struct {
	base
	Name string
}

// NewIdentifier constructs an Identifier expression.
func NewIdentifier(pos token.Position, name string) *Identifier {
	return &Identifier{base: base{pos}, Name: name}
}

// BinaryOp enumerates the closed set of binary operators.
type BinaryOp int

const (
	OpEq BinaryOp = iota
	OpNeq
	OpGt
	OpGte
	OpLt
	OpLte
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpAnd
	OpOr
	OpIn
	OpNotIn
	OpLike
	OpNotLike
	OpMatches
	OpContains
	OpConcat
)

func (op BinaryOp) String() string {
	names := map[BinaryOp]string{
		OpEq: "=", OpNeq: "!=", OpGt: ">", OpGte: ">=", OpLt: "<", OpLte: "<=",
		OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%",
		OpAnd: "AND", OpOr: "OR", OpIn: "IN", OpNotIn: "NOT IN",
		OpLike: "LIKE", OpNotLike: "NOT LIKE", OpMatches: "MATCHES",
		OpContains: "CONTAINS", OpConcat: "||",
	}
	if n, ok := names[op]; ok {
		return n
	}
	return "?"
}

// Binary is a two-operand expression, e.g. `age > 18`.
type Binary struct {
	base
	Op    BinaryOp
	Left  Expression
	Right Expression
}

// NewBinary constructs a Binary expression.
func NewBinary(pos token.Position, op BinaryOp, left, right Expression) *Binary {
	return &Binary{base: base{pos}, Op: op, Left: left, Right: right}
}

// UnaryOp enumerates the closed set of unary operators.
type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpNeg
	OpPos
)

func (op UnaryOp) String() string {
	switch op {
	case OpNot:
		return "NOT"
	case OpNeg:
		return "-"
	case OpPos:
		return "+"
	}
	return "?"
}

// Unary is a single-operand prefix expression.
type Unary struct {
	base
	Op      UnaryOp
	Operand Expression
}

// NewUnary constructs a Unary expression.
func NewUnary(pos token.Position, op UnaryOp, operand Expression) *Unary {
	return &Unary{base: base{pos}, Op: op, Operand: operand}
}

// Call is a function invocation, e.g. `UPPER(name)`.
type Call struct {
	base
	Callee string
	Args   []Expression
}

// NewCall constructs a Call expression.
func NewCall(pos token.Position, callee string, args []Expression) *Call {
	return &Call{base: base{pos}, Callee: callee, Args: args}
}

// Member is a property access, e.g. `response.status` or `items[0]`.
type Member struct {
	base
	Object   Expression
	Property Expression
	Computed bool
}

// NewMember constructs a Member expression. Computed is true for `obj[expr]`
// bracket access and false for `obj.name` dotted access.
func NewMember(pos token.Position, object, property Expression, computed bool) *Member {
	return &Member{base: base{pos}, Object: object, Property: property, Computed: computed}
}

// Array is an array literal.
type Array struct {
	base
	Elements []Expression
}

// NewArray constructs an Array expression.
func NewArray(pos token.Position, elements []Expression) *Array {
	return &Array{base: base{pos}, Elements: elements}
}

// ObjectProperty is one key/value pair of an Object literal.
type ObjectProperty struct {
	Key   string
	Value Expression
}

// Object is an object literal.
type Object struct {
	base
	Properties []ObjectProperty
}

// NewObject constructs an Object expression.
func NewObject(pos token.Position, properties []ObjectProperty) *Object {
	return &Object{base: base{pos}, Properties: properties}
}

// DottedPath returns the full dotted field path of a (possibly nested)
// Member/Identifier chain, and the root identifier name. Used by the parser
// and planner's field-name/selector heuristics.
func DottedPath(e Expression) (root string, path string, ok bool) {
	switch n := e.(type) {
	case *Identifier:
		return n.Name, n.Name, true
	case *Member:
		if n.Computed {
			return "", "", false
		}
		prop, ok := n.Property.(*Identifier)
		if !ok {
			return "", "", false
		}
		rootName, parentPath, ok := DottedPath(n.Object)
		if !ok {
			return "", "", false
		}
		return rootName, parentPath + "." + prop.Name, true
	default:
		return "", "", false
	}
}
