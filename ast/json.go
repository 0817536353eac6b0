package ast

import (
	"encoding/json"
	"fmt"

	"github.com/webql/webql/token"
	"github.com/webql/webql/types"
)

// exprDTO is the tagged-union wire shape every Expression variant encodes
// to. Only the fields a given Type needs are populated; this mirrors the
// fat-struct-over-interface{} convention the plan.Step payload already
// uses, applied here so json.Marshal/Unmarshal never needs a type switch
// outside this file.
type exprDTO struct {
	Type     string            `json:"type"`
	Pos      token.Position    `json:"pos"`
	DataType string            `json:"dataType,omitempty"`
	Value    interface{}       `json:"value,omitempty"`
	Name     string            `json:"name,omitempty"`
	Op       string            `json:"op,omitempty"`
	Left     json.RawMessage   `json:"left,omitempty"`
	Right    json.RawMessage   `json:"right,omitempty"`
	Operand  json.RawMessage   `json:"operand,omitempty"`
	Callee   string            `json:"callee,omitempty"`
	Args     []json.RawMessage `json:"args,omitempty"`
	Object   json.RawMessage   `json:"object,omitempty"`
	Property json.RawMessage   `json:"property,omitempty"`
	Computed bool              `json:"computed,omitempty"`
	Elements []json.RawMessage `json:"elements,omitempty"`
	Props    []propDTO         `json:"properties,omitempty"`
}

type propDTO struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// MarshalExpression renders e as a tagged-union JSON document. nil encodes
// to JSON null.
func MarshalExpression(e Expression) (json.RawMessage, error) {
	if e == nil {
		return json.RawMessage("null"), nil
	}
	switch n := e.(type) {
	case *Literal:
		return json.Marshal(exprDTO{Type: "literal", Pos: n.Position, DataType: n.DataType.String(), Value: n.Value})
	case *Identifier:
		return json.Marshal(exprDTO{Type: "identifier", Pos: n.Position, Name: n.Name})
	case *Binary:
		left, err := MarshalExpression(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := MarshalExpression(n.Right)
		if err != nil {
			return nil, err
		}
		return json.Marshal(exprDTO{Type: "binary", Pos: n.Position, Op: n.Op.String(), Left: left, Right: right})
	case *Unary:
		operand, err := MarshalExpression(n.Operand)
		if err != nil {
			return nil, err
		}
		return json.Marshal(exprDTO{Type: "unary", Pos: n.Position, Op: n.Op.String(), Operand: operand})
	case *Call:
		args := make([]json.RawMessage, len(n.Args))
		for i, a := range n.Args {
			raw, err := MarshalExpression(a)
			if err != nil {
				return nil, err
			}
			args[i] = raw
		}
		return json.Marshal(exprDTO{Type: "call", Pos: n.Position, Callee: n.Callee, Args: args})
	case *Member:
		object, err := MarshalExpression(n.Object)
		if err != nil {
			return nil, err
		}
		property, err := MarshalExpression(n.Property)
		if err != nil {
			return nil, err
		}
		return json.Marshal(exprDTO{Type: "member", Pos: n.Position, Object: object, Property: property, Computed: n.Computed})
	case *Array:
		elems := make([]json.RawMessage, len(n.Elements))
		for i, el := range n.Elements {
			raw, err := MarshalExpression(el)
			if err != nil {
				return nil, err
			}
			elems[i] = raw
		}
		return json.Marshal(exprDTO{Type: "array", Pos: n.Position, Elements: elems})
	case *Object:
		props := make([]propDTO, len(n.Properties))
		for i, p := range n.Properties {
			raw, err := MarshalExpression(p.Value)
			if err != nil {
				return nil, err
			}
			props[i] = propDTO{Key: p.Key, Value: raw}
		}
		return json.Marshal(exprDTO{Type: "object", Pos: n.Position, Props: props})
	default:
		return nil, fmt.Errorf("ast: unsupported expression type %T", e)
	}
}

// UnmarshalExpression parses a document produced by MarshalExpression back
// into an Expression tree. A JSON null decodes to a nil Expression.
func UnmarshalExpression(data []byte) (Expression, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var dto exprDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, err
	}
	switch dto.Type {
	case "literal":
		dt, err := parseDataType(dto.DataType)
		if err != nil {
			return nil, err
		}
		return &Literal{base: base{dto.Pos}, DataType: dt, Value: dto.Value}, nil
	case "identifier":
		return &Identifier{base: base{dto.Pos}, Name: dto.Name}, nil
	case "binary":
		op, err := parseBinaryOp(dto.Op)
		if err != nil {
			return nil, err
		}
		left, err := UnmarshalExpression(dto.Left)
		if err != nil {
			return nil, err
		}
		right, err := UnmarshalExpression(dto.Right)
		if err != nil {
			return nil, err
		}
		return &Binary{base: base{dto.Pos}, Op: op, Left: left, Right: right}, nil
	case "unary":
		op, err := parseUnaryOp(dto.Op)
		if err != nil {
			return nil, err
		}
		operand, err := UnmarshalExpression(dto.Operand)
		if err != nil {
			return nil, err
		}
		return &Unary{base: base{dto.Pos}, Op: op, Operand: operand}, nil
	case "call":
		args := make([]Expression, len(dto.Args))
		for i, raw := range dto.Args {
			arg, err := UnmarshalExpression(raw)
			if err != nil {
				return nil, err
			}
			args[i] = arg
		}
		return &Call{base: base{dto.Pos}, Callee: dto.Callee, Args: args}, nil
	case "member":
		object, err := UnmarshalExpression(dto.Object)
		if err != nil {
			return nil, err
		}
		property, err := UnmarshalExpression(dto.Property)
		if err != nil {
			return nil, err
		}
		return &Member{base: base{dto.Pos}, Object: object, Property: property, Computed: dto.Computed}, nil
	case "array":
		elems := make([]Expression, len(dto.Elements))
		for i, raw := range dto.Elements {
			el, err := UnmarshalExpression(raw)
			if err != nil {
				return nil, err
			}
			elems[i] = el
		}
		return &Array{base: base{dto.Pos}, Elements: elems}, nil
	case "object":
		props := make([]ObjectProperty, len(dto.Props))
		for i, p := range dto.Props {
			v, err := UnmarshalExpression(p.Value)
			if err != nil {
				return nil, err
			}
			props[i] = ObjectProperty{Key: p.Key, Value: v}
		}
		return &Object{base: base{dto.Pos}, Properties: props}, nil
	default:
		return nil, fmt.Errorf("ast: unknown expression type %q", dto.Type)
	}
}

func parseDataType(s string) (types.DataType, error) {
	kinds := map[string]types.DataType{
		"STRING": types.STRING, "NUMBER": types.NUMBER, "BOOLEAN": types.BOOLEAN,
		"NULL": types.NULL, "URL": types.URL, "ARRAY": types.ARRAY, "OBJECT": types.OBJECT,
		"BYTES": types.BYTES, "DURATION": types.DURATION, "DOCUMENT": types.DOCUMENT,
		"UNKNOWN": types.UNKNOWN, "": types.UNKNOWN,
	}
	if dt, ok := kinds[s]; ok {
		return dt, nil
	}
	return types.UNKNOWN, fmt.Errorf("ast: unknown data type %q", s)
}

func parseBinaryOp(s string) (BinaryOp, error) {
	ops := map[string]BinaryOp{
		"=": OpEq, "!=": OpNeq, ">": OpGt, ">=": OpGte, "<": OpLt, "<=": OpLte,
		"+": OpAdd, "-": OpSub, "*": OpMul, "/": OpDiv, "%": OpMod,
		"AND": OpAnd, "OR": OpOr, "IN": OpIn, "NOT IN": OpNotIn,
		"LIKE": OpLike, "NOT LIKE": OpNotLike, "MATCHES": OpMatches,
		"CONTAINS": OpContains, "||": OpConcat,
	}
	if op, ok := ops[s]; ok {
		return op, nil
	}
	return 0, fmt.Errorf("ast: unknown binary operator %q", s)
}

func parseUnaryOp(s string) (UnaryOp, error) {
	switch s {
	case "NOT":
		return OpNot, nil
	case "-":
		return OpNeg, nil
	case "+":
		return OpPos, nil
	}
	return 0, fmt.Errorf("ast: unknown unary operator %q", s)
}
