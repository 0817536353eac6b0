package exec

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/webql/webql/ast"
	werrors "github.com/webql/webql/errors"
	"github.com/webql/webql/evalcore"
	"github.com/webql/webql/types"
)

// EvalContext is threaded explicitly through expression recursion rather
// than held as a hidden field, so a PARALLEL or LOOP composition evaluating
// several expressions concurrently can't have one evaluation's currentRow
// bleed into another's.
type EvalContext struct {
	Vars       *Stack
	CurrentRow interface{} // non-nil only while evaluating inside FILTER/MAP/REDUCE
}

// Eval evaluates expr against ctx, returning a typed evalcore.Value.
func Eval(ctx EvalContext, expr ast.Expression) (evalcore.Value, error) {
	switch n := expr.(type) {
	case nil:
		return evalcore.Value{}, nil
	case *ast.Literal:
		return evalcore.FromLiteral(n), nil
	case *ast.Identifier:
		return evalIdentifier(ctx, n)
	case *ast.Binary:
		l, err := Eval(ctx, n.Left)
		if err != nil {
			return evalcore.Value{}, err
		}
		r, err := Eval(ctx, n.Right)
		if err != nil {
			return evalcore.Value{}, err
		}
		v, err := evalcore.Binary(n.Op, l, r)
		if err != nil {
			return evalcore.Value{}, werrors.Execution.New(fmt.Sprintf("cannot evaluate binary expression: %v", err))
		}
		return v, nil
	case *ast.Unary:
		operand, err := Eval(ctx, n.Operand)
		if err != nil {
			return evalcore.Value{}, err
		}
		v, err := evalcore.Unary(n.Op, operand)
		if err != nil {
			return evalcore.Value{}, werrors.Execution.New(fmt.Sprintf("cannot evaluate unary expression: %v", err))
		}
		return v, nil
	case *ast.Call:
		return evalCall(ctx, n)
	case *ast.Member:
		return evalMember(ctx, n)
	case *ast.Array:
		elems := make([]evalcore.Value, len(n.Elements))
		for i, e := range n.Elements {
			v, err := Eval(ctx, e)
			if err != nil {
				return evalcore.Value{}, err
			}
			elems[i] = v
		}
		return evalcore.Value{Type: types.ARRAY, Val: elems}, nil
	case *ast.Object:
		obj := map[string]evalcore.Value{}
		for _, p := range n.Properties {
			v, err := Eval(ctx, p.Value)
			if err != nil {
				return evalcore.Value{}, err
			}
			obj[p.Key] = v
		}
		return evalcore.Value{Type: types.OBJECT, Val: obj}, nil
	}
	return evalcore.Value{}, werrors.Execution.New(fmt.Sprintf("unhandled expression kind %T", expr))
}

func evalIdentifier(ctx EvalContext, n *ast.Identifier) (evalcore.Value, error) {
	if ctx.CurrentRow != nil {
		if row, ok := ctx.CurrentRow.(map[string]evalcore.Value); ok {
			if v, ok := row[n.Name]; ok {
				return v, nil
			}
		}
	}
	if v, ok := ctx.Vars.Read(n.Name); ok {
		if tv, ok := v.(evalcore.Value); ok {
			return tv, nil
		}
		return evalcore.Value{Val: v}, nil
	}
	return evalcore.Value{}, werrors.Execution.New(fmt.Sprintf("undefined variable %q", n.Name))
}

func evalMember(ctx EvalContext, n *ast.Member) (evalcore.Value, error) {
	obj, err := Eval(ctx, n.Object)
	if err != nil {
		return evalcore.Value{}, err
	}
	var key string
	if n.Computed {
		prop, err := Eval(ctx, n.Property)
		if err != nil {
			return evalcore.Value{}, err
		}
		switch o := obj.Val.(type) {
		case []evalcore.Value:
			idx, ok := prop.Val.(float64)
			if !ok || int(idx) < 0 || int(idx) >= len(o) {
				return evalcore.Value{}, werrors.Execution.New("array index out of range")
			}
			return o[int(idx)], nil
		case map[string]evalcore.Value:
			key = fmt.Sprintf("%v", prop.Val)
			if v, ok := o[key]; ok {
				return v, nil
			}
			return evalcore.Value{Type: types.NULL}, nil
		}
		return evalcore.Value{}, werrors.Execution.New("member access on a non-object/array value")
	}
	id, ok := n.Property.(*ast.Identifier)
	if !ok {
		return evalcore.Value{}, werrors.Execution.New("dotted member access requires a bare property name")
	}
	m, ok := obj.Val.(map[string]evalcore.Value)
	if !ok {
		return evalcore.Value{}, werrors.Execution.New("dotted member access on a non-object value")
	}
	if v, ok := m[id.Name]; ok {
		return v, nil
	}
	return evalcore.Value{Type: types.NULL}, nil
}

// evalCall dispatches a function call against the closed builtin
// dictionary: pure string/collection builtins are computed
// directly; DOM/response-derived builtins (TEXT/HTML/ATTR/HEADER/BODY/
// STATUS/CACHED/SCREENSHOT/PDF) read the value a DOM_QUERY or NAVIGATE step
// already stashed into currentRow under the builtin's lowercase name - the
// evaluator itself never calls a browser/proxy controller, keeping those
// collaborators reachable only from step dispatch.
func evalCall(ctx EvalContext, n *ast.Call) (evalcore.Value, error) {
	args := make([]evalcore.Value, len(n.Args))
	for i, a := range n.Args {
		v, err := Eval(ctx, a)
		if err != nil {
			return evalcore.Value{}, err
		}
		args[i] = v
	}
	name := strings.ToUpper(n.Callee)
	switch name {
	case "UPPER":
		return evalcore.Value{Type: types.STRING, Val: strings.ToUpper(argString(args, 0))}, nil
	case "LOWER":
		return evalcore.Value{Type: types.STRING, Val: strings.ToLower(argString(args, 0))}, nil
	case "TRIM":
		return evalcore.Value{Type: types.STRING, Val: strings.TrimSpace(argString(args, 0))}, nil
	case "SUBSTRING":
		s := argString(args, 0)
		start := int(argNumber(args, 1))
		length := len(s) - start
		if len(args) > 2 {
			length = int(argNumber(args, 2))
		}
		if start < 0 || start > len(s) {
			return evalcore.Value{Type: types.STRING, Val: ""}, nil
		}
		end := start + length
		if end > len(s) {
			end = len(s)
		}
		return evalcore.Value{Type: types.STRING, Val: s[start:end]}, nil
	case "REPLACE":
		return evalcore.Value{Type: types.STRING, Val: strings.ReplaceAll(argString(args, 0), argString(args, 1), argString(args, 2))}, nil
	case "COUNT":
		if arr, ok := args[0].Val.([]evalcore.Value); ok {
			return evalcore.Value{Type: types.NUMBER, Val: float64(len(arr))}, nil
		}
		return evalcore.Value{Type: types.NUMBER, Val: 0.0}, nil
	case "EXISTS":
		return evalcore.Value{Type: types.BOOLEAN, Val: args[0].Val != nil}, nil
	case "PARSE_JSON":
		var parsed interface{}
		if err := json.Unmarshal([]byte(argString(args, 0)), &parsed); err != nil {
			return evalcore.Value{}, werrors.Execution.New(fmt.Sprintf("PARSE_JSON: %v", err))
		}
		return evalcore.Value{Type: types.OBJECT, Val: fromJSON(parsed)}, nil
	case "PARSE_HTML":
		return evalcore.Value{Type: types.DOCUMENT, Val: argString(args, 0)}, nil
	case "TEXT", "HTML", "ATTR", "HEADER", "BODY", "STATUS", "CACHED", "SCREENSHOT", "PDF":
		return rowDerivedCall(ctx, name)
	}
	return evalcore.Value{}, werrors.Execution.New(fmt.Sprintf("unknown function %q", n.Callee))
}

func rowDerivedCall(ctx EvalContext, name string) (evalcore.Value, error) {
	row, ok := ctx.CurrentRow.(map[string]evalcore.Value)
	if !ok {
		return evalcore.Value{}, werrors.Execution.New(fmt.Sprintf("%s() requires a current row", name))
	}
	if v, ok := row[strings.ToLower(name)]; ok {
		return v, nil
	}
	return evalcore.Value{Type: types.NULL}, nil
}

func fromJSON(v interface{}) interface{} {
	switch x := v.(type) {
	case map[string]interface{}:
		obj := map[string]evalcore.Value{}
		for k, val := range x {
			obj[k] = wrapJSON(val)
		}
		return obj
	case []interface{}:
		arr := make([]evalcore.Value, len(x))
		for i, val := range x {
			arr[i] = wrapJSON(val)
		}
		return arr
	}
	return v
}

func wrapJSON(v interface{}) evalcore.Value {
	switch x := v.(type) {
	case map[string]interface{}:
		return evalcore.Value{Type: types.OBJECT, Val: fromJSON(x)}
	case []interface{}:
		return evalcore.Value{Type: types.ARRAY, Val: fromJSON(x)}
	case string:
		return evalcore.Value{Type: types.STRING, Val: x}
	case float64:
		return evalcore.Value{Type: types.NUMBER, Val: x}
	case bool:
		return evalcore.Value{Type: types.BOOLEAN, Val: x}
	case nil:
		return evalcore.Value{Type: types.NULL, Val: nil}
	}
	return evalcore.Value{Val: v}
}

// argString coerces args[i] to a string permissively (NUMBER/BOOLEAN fold
// to their textual form) using cast, the way the evaluator's runtime
// coercions are meant to tolerate a caller passing e.g. a number where a
// string builtin argument is expected.
func argString(args []evalcore.Value, i int) string {
	if i >= len(args) {
		return ""
	}
	return cast.ToString(args[i].Val)
}

func argNumber(args []evalcore.Value, i int) float64 {
	if i >= len(args) {
		return 0
	}
	return cast.ToFloat64(args[i].Val)
}
