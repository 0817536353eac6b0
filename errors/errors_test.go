package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindNewAndIs(t *testing.T) {
	require := require.New(t)

	err := Lexer.New("unexpected char %q", '$')
	require.True(Lexer.Is(err))
	require.False(Parser.Is(err))
	require.Equal("LexerError", err.Kind().Name())
	require.Contains(err.Error(), "unexpected char")
}

func TestWithContext(t *testing.T) {
	require := require.New(t)

	err := At(Parser, 3, 7, "unexpected token")
	require.Equal(3, err.Context()["line"])
	require.Equal(7, err.Context()["column"])
}

func TestWithRecoverable(t *testing.T) {
	require := require.New(t)

	err := Network.New("connection reset").WithRecoverable(true)
	require.True(err.Recoverable())
}

func TestWrap(t *testing.T) {
	require := require.New(t)

	cause := errors.New("connection refused")
	err := Wrap(Browser, cause, "navigating to page")

	require.True(Browser.Is(err))
	require.Equal("connection refused", err.Context()["cause"])
	require.Contains(err.Error(), "navigating to page")
	require.Contains(err.Error(), "connection refused")
}
