package exec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webql/webql/ast"
	"github.com/webql/webql/evalcore"
	"github.com/webql/webql/token"
	"github.com/webql/webql/types"
)

var pos = token.Position{Line: 1, Column: 1}

func lit(dt types.DataType, v interface{}) *ast.Literal { return ast.NewLiteral(pos, dt, v) }
func num(n float64) *ast.Literal                        { return lit(types.NUMBER, n) }
func str(s string) *ast.Literal                          { return lit(types.STRING, s) }

func TestEvalLiteral(t *testing.T) {
	v, err := Eval(EvalContext{}, num(42))
	require.NoError(t, err)
	require.Equal(t, 42.0, v.Val)
}

func TestEvalIdentifierReadsCurrentRowFirst(t *testing.T) {
	row := map[string]evalcore.Value{"name": {Type: types.STRING, Val: "row-value"}}
	vars := NewStack()
	vars.Write("name", evalcore.Value{Type: types.STRING, Val: "var-value"})

	v, err := Eval(EvalContext{Vars: vars, CurrentRow: row}, ast.NewIdentifier(pos, "name"))
	require.NoError(t, err)
	require.Equal(t, "row-value", v.Val)
}

func TestEvalIdentifierFallsBackToVariables(t *testing.T) {
	vars := NewStack()
	vars.Write("count", evalcore.Value{Type: types.NUMBER, Val: 7.0})

	v, err := Eval(EvalContext{Vars: vars}, ast.NewIdentifier(pos, "count"))
	require.NoError(t, err)
	require.Equal(t, 7.0, v.Val)
}

func TestEvalIdentifierUndefinedFails(t *testing.T) {
	_, err := Eval(EvalContext{Vars: NewStack()}, ast.NewIdentifier(pos, "missing"))
	require.Error(t, err)
}

func TestEvalBinaryExpression(t *testing.T) {
	expr := ast.NewBinary(pos, ast.OpAdd, num(2), num(3))
	v, err := Eval(EvalContext{}, expr)
	require.NoError(t, err)
	require.Equal(t, 5.0, v.Val)
}

func TestEvalMemberDottedAccess(t *testing.T) {
	obj := ast.NewObject(pos, []ast.ObjectProperty{{Key: "status", Value: num(200)}})
	member := ast.NewMember(pos, obj, ast.NewIdentifier(pos, "status"), false)
	v, err := Eval(EvalContext{}, member)
	require.NoError(t, err)
	require.Equal(t, 200.0, v.Val)
}

func TestEvalMemberComputedArrayAccess(t *testing.T) {
	arr := ast.NewArray(pos, []ast.Expression{num(10), num(20)})
	member := ast.NewMember(pos, arr, num(1), true)
	v, err := Eval(EvalContext{}, member)
	require.NoError(t, err)
	require.Equal(t, 20.0, v.Val)
}

func TestEvalCallStringBuiltins(t *testing.T) {
	v, err := Eval(EvalContext{}, ast.NewCall(pos, "UPPER", []ast.Expression{str("abc")}))
	require.NoError(t, err)
	require.Equal(t, "ABC", v.Val)

	v, err = Eval(EvalContext{}, ast.NewCall(pos, "TRIM", []ast.Expression{str("  x  ")}))
	require.NoError(t, err)
	require.Equal(t, "x", v.Val)
}

func TestEvalCallParseJSON(t *testing.T) {
	v, err := Eval(EvalContext{}, ast.NewCall(pos, "PARSE_JSON", []ast.Expression{str(`{"a":1}`)}))
	require.NoError(t, err)
	obj, ok := v.Val.(map[string]evalcore.Value)
	require.True(t, ok)
	require.Equal(t, 1.0, obj["a"].Val)
}

func TestEvalCallRowDerivedBuiltinReadsCurrentRow(t *testing.T) {
	row := map[string]evalcore.Value{"text": {Type: types.STRING, Val: "hello"}}
	v, err := Eval(EvalContext{CurrentRow: row}, ast.NewCall(pos, "TEXT", nil))
	require.NoError(t, err)
	require.Equal(t, "hello", v.Val)
}

func TestEvalCallRowDerivedBuiltinWithoutRowFails(t *testing.T) {
	_, err := Eval(EvalContext{}, ast.NewCall(pos, "TEXT", nil))
	require.Error(t, err)
}

func TestEvalCallUnknownFunctionFails(t *testing.T) {
	_, err := Eval(EvalContext{}, ast.NewCall(pos, "NOPE", nil))
	require.Error(t, err)
}
