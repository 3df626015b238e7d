// ABOUTME: Tests for the state-machine tokenizer
// ABOUTME: Covers keywords, compounds, line tracking and failure positions

package stmt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func types(toks []Token) []TokenType {
	out := make([]TokenType, len(toks))
	for i, t := range toks {
		out[i] = t.Type
	}
	return out
}

func lexemes(toks []Token) []string {
	out := make([]string, len(toks))
	for i, t := range toks {
		out[i] = t.Lexeme
	}
	return out
}

func TestTokenizeArithmetic(t *testing.T) {
	toks, err := Tokenize("-34 + (-7 * 5);")
	require.NoError(t, err)

	assert.Equal(t, []TokenType{
		TokMinus, TokNumber, TokPlus, TokLeftParen, TokMinus,
		TokNumber, TokStar, TokNumber, TokRightParen, TokSemicolon,
	}, types(toks))
	assert.Equal(t, []string{"-", "34", "+", "(", "-", "7", "*", "5", ")", ";"}, lexemes(toks))
}

func TestTokenizeKeywordsAndIdentifiers(t *testing.T) {
	toks, err := Tokenize("select col_1 from tbl where ya and not na;")
	require.NoError(t, err)

	assert.Equal(t, []TokenType{
		TokSelect, TokIdentifier, TokFrom, TokIdentifier, TokWhere,
		TokYa, TokAnd, TokNot, TokNa, TokSemicolon,
	}, types(toks))

	// Keyword lookup is case-sensitive.
	toks, err = Tokenize("Select let;")
	require.NoError(t, err)
	assert.Equal(t, []TokenType{TokIdentifier, TokLet, TokSemicolon}, types(toks))
}

func TestTokenizeCompoundSymbols(t *testing.T) {
	toks, err := Tokenize("a == b != c >= d <= e && f || g <> h;")
	require.NoError(t, err)

	assert.Equal(t, []TokenType{
		TokIdentifier, TokEqualEqual,
		TokIdentifier, TokBangEqual,
		TokIdentifier, TokGreaterEqual,
		TokIdentifier, TokLessEqual,
		TokIdentifier, TokAndAnd,
		TokIdentifier, TokOrOr,
		TokIdentifier, TokBangEqual,
		TokIdentifier, TokSemicolon,
	}, types(toks))
	// <> keeps its own spelling while meaning inequality.
	assert.Equal(t, "<>", toks[13].Lexeme)
}

func TestTokenizeSingleSymbols(t *testing.T) {
	toks, err := Tokenize("a = b < c > d ! e & f | g;")
	require.NoError(t, err)
	assert.Equal(t, []TokenType{
		TokIdentifier, TokEqual,
		TokIdentifier, TokLess,
		TokIdentifier, TokGreater,
		TokIdentifier, TokBang,
		TokIdentifier, TokAmpersand,
		TokIdentifier, TokBeam,
		TokIdentifier, TokSemicolon,
	}, types(toks))
}

func TestTokenizeString(t *testing.T) {
	toks, err := Tokenize(`"hello world" + "x";`)
	require.NoError(t, err)
	assert.Equal(t, []TokenType{TokString, TokPlus, TokString, TokSemicolon}, types(toks))
	assert.Equal(t, "hello world", toks[0].Lexeme)
}

func TestTokenizeDecimalNumber(t *testing.T) {
	toks, err := Tokenize("3.14;")
	require.NoError(t, err)
	assert.Equal(t, []TokenType{TokNumber, TokSemicolon}, types(toks))
	assert.Equal(t, "3.14", toks[0].Lexeme)

	_, err = Tokenize("3.1.4;")
	assert.ErrorIs(t, err, ErrUnexpectedChar)
}

func TestLineTracking(t *testing.T) {
	toks, err := Tokenize("let a; let b;")
	require.NoError(t, err)
	require.Len(t, toks, 6)

	// The semicolon closes a line; everything after it is on the next one.
	for _, tok := range toks[:3] {
		assert.Equal(t, 1, tok.Line, "token %q", tok.Lexeme)
	}
	for _, tok := range toks[3:] {
		assert.Equal(t, 2, tok.Line, "token %q", tok.Lexeme)
	}
}

func TestTokenizeUnendedStmt(t *testing.T) {
	_, err := Tokenize("select a")
	assert.ErrorIs(t, err, ErrUnendedStmt)

	_, err = Tokenize("")
	assert.ErrorIs(t, err, ErrUnendedStmt)

	// A trailing semicolon is all it takes.
	_, err = Tokenize("select a;")
	assert.NoError(t, err)
}

func TestTokenizeUnexpectedChar(t *testing.T) {
	_, err := Tokenize("12ab;")
	require.ErrorIs(t, err, ErrUnexpectedChar)

	var scanErr *ScanError
	require.ErrorAs(t, err, &scanErr)
	assert.Equal(t, 1, scanErr.Line)
	assert.Equal(t, 3, scanErr.Col)

	_, err = Tokenize("a # b;")
	assert.ErrorIs(t, err, ErrUnexpectedChar)
}

func TestTokenizeMissingQuote(t *testing.T) {
	_, err := Tokenize(`"unterminated`)
	require.ErrorIs(t, err, ErrMissingQuote)

	var scanErr *ScanError
	require.ErrorAs(t, err, &scanErr)
	assert.Equal(t, 1, scanErr.Line)
}

func TestTokenizeNoNullTokens(t *testing.T) {
	toks, err := Tokenize("let x = 1 + 2; select x;")
	require.NoError(t, err)
	for _, tok := range toks {
		assert.NotEqual(t, TokNull, tok.Type)
	}
	assert.Equal(t, TokSemicolon, toks[len(toks)-1].Type)
}

// TestTokenizeRoundTrip re-tokenizes the space-joined lexemes of a
// statement and expects the same sequence back.
func TestTokenizeRoundTrip(t *testing.T) {
	inputs := []string{
		"-34 + (-7 * 5);",
		"select col1, col2 from tbl where col1 >= 3 && col2 <> 4;",
		"let x = 1 + 2 * 3 / 4;",
	}
	for _, input := range inputs {
		first, err := Tokenize(input)
		require.NoError(t, err, input)

		joined := strings.Join(lexemes(first), " ")
		second, err := Tokenize(joined)
		require.NoError(t, err, joined)

		assert.Equal(t, types(first), types(second), input)
		assert.Equal(t, lexemes(first), lexemes(second), input)
	}
}
