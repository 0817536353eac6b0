package evalcore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webql/webql/ast"
	"github.com/webql/webql/types"
)

func num(n float64) Value    { return Value{Type: types.NUMBER, Val: n} }
func str(s string) Value     { return Value{Type: types.STRING, Val: s} }
func boolean(b bool) Value   { return Value{Type: types.BOOLEAN, Val: b} }

func TestBinaryArithmetic(t *testing.T) {
	v, err := Binary(ast.OpAdd, num(2), num(3))
	require.NoError(t, err)
	require.Equal(t, 5.0, v.Val)

	v, err = Binary(ast.OpMul, num(4), num(5))
	require.NoError(t, err)
	require.Equal(t, 20.0, v.Val)
}

func TestBinaryDivideByZeroIsNotFoldable(t *testing.T) {
	_, err := Binary(ast.OpDiv, num(1), num(0))
	require.ErrorIs(t, err, ErrNotFoldable)

	_, err = Binary(ast.OpMod, num(1), num(0))
	require.ErrorIs(t, err, ErrNotFoldable)
}

func TestBinaryStringConcat(t *testing.T) {
	v, err := Binary(ast.OpConcat, str("foo"), str("bar"))
	require.NoError(t, err)
	require.Equal(t, "foobar", v.Val)

	v, err = Binary(ast.OpAdd, str("foo"), num(1))
	require.NoError(t, err)
	require.Equal(t, "foo1", v.Val)
}

func TestBinaryComparison(t *testing.T) {
	v, err := Binary(ast.OpGt, num(3), num(2))
	require.NoError(t, err)
	require.Equal(t, true, v.Val)

	v, err = Binary(ast.OpLte, str("abc"), str("abd"))
	require.NoError(t, err)
	require.Equal(t, true, v.Val)
}

func TestBinaryLogical(t *testing.T) {
	v, err := Binary(ast.OpAnd, boolean(true), boolean(false))
	require.NoError(t, err)
	require.Equal(t, false, v.Val)

	v, err = Binary(ast.OpOr, boolean(true), boolean(false))
	require.NoError(t, err)
	require.Equal(t, true, v.Val)
}

func TestBinaryEquality(t *testing.T) {
	v, err := Binary(ast.OpEq, num(1), num(1))
	require.NoError(t, err)
	require.Equal(t, true, v.Val)

	v, err = Binary(ast.OpNeq, str("a"), str("b"))
	require.NoError(t, err)
	require.Equal(t, true, v.Val)
}

func TestUnary(t *testing.T) {
	v, err := Unary(ast.OpNeg, num(5))
	require.NoError(t, err)
	require.Equal(t, -5.0, v.Val)

	v, err = Unary(ast.OpNot, boolean(false))
	require.NoError(t, err)
	require.Equal(t, true, v.Val)
}

func TestLikePatternTranslation(t *testing.T) {
	re, err := CompileLikePattern("foo%bar_")
	require.NoError(t, err)
	require.True(t, re.MatchString("fooXXXbarZ"))
	require.False(t, re.MatchString("fooXXXbar"))
}

func TestLikePatternEscapes(t *testing.T) {
	re, err := CompileLikePattern(`100\%`)
	require.NoError(t, err)
	require.True(t, re.MatchString("100%"))
	require.False(t, re.MatchString("100X"))
}

func TestLikeOperator(t *testing.T) {
	v, err := Binary(ast.OpLike, str("hello world"), str("hello%"))
	require.NoError(t, err)
	require.Equal(t, true, v.Val)

	v, err = Binary(ast.OpNotLike, str("hello world"), str("hello%"))
	require.NoError(t, err)
	require.Equal(t, false, v.Val)
}

func TestInOperator(t *testing.T) {
	arr := Value{Type: types.ARRAY, Val: []Value{num(1), num(2), num(3)}}
	v, err := Binary(ast.OpIn, num(2), arr)
	require.NoError(t, err)
	require.Equal(t, true, v.Val)

	v, err = Binary(ast.OpNotIn, num(5), arr)
	require.NoError(t, err)
	require.Equal(t, true, v.Val)
}

func TestTruthy(t *testing.T) {
	require.True(t, Truthy(num(1)))
	require.False(t, Truthy(num(0)))
	require.True(t, Truthy(str("x")))
	require.False(t, Truthy(str("")))
	require.False(t, Truthy(Value{Val: nil}))
}
