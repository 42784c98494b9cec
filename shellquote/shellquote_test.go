package shellquote

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQuote_Plain(t *testing.T) {
	require.Equal(t, "'hello'", Quote("hello"))
}

func TestQuote_Empty(t *testing.T) {
	require.Equal(t, "''", Quote(""))
}

func TestQuote_SingleQuote(t *testing.T) {
	require.Equal(t, `'it'\''s'`, Quote("it's"))
}

func TestQuote_MultipleSingleQuotes(t *testing.T) {
	require.Equal(t, `''\'''\'''`, Quote("''"))
}

func TestQuote_PreservesWhitespaceAndBackslashes(t *testing.T) {
	require.Equal(t, "'a\tb\\nc'", Quote("a\tb\\nc"))
}

func TestQuote_PreservesUnicode(t *testing.T) {
	require.Equal(t, "'héllo/wörld'", Quote("héllo/wörld"))
}

func TestQuote_PreservesNewline(t *testing.T) {
	require.Equal(t, "'a\nb'", Quote("a\nb"))
}
