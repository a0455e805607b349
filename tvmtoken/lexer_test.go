package tvmtoken

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lexAll(t *testing.T, src string) []Token {
	t.Helper()

	l := NewLexer("test.tvm", []byte(src))

	var toks []Token

	for {
		tok, err := l.Lex()
		require.NoError(t, err)

		toks = append(toks, tok)

		if tok.ID == EOF {
			return toks
		}
	}
}

func TestLexerKeywordsAndOperators(t *testing.T) {
	toks := lexAll(t, "global function add")

	require.Len(t, toks, 4) // 3 words + EOF
	assert.Equal(t, KwGlobal, toks[0].ID)
	assert.Equal(t, KwFunction, toks[1].ID)
	assert.Equal(t, Operator, toks[2].ID)
	assert.Equal(t, "add", toks[2].Text)
}

func TestLexerIdentifierAndEscape(t *testing.T) {
	toks := lexAll(t, "%a %foo%%42bar")

	require.GreaterOrEqual(t, len(toks), 2)
	assert.Equal(t, Identifier, toks[0].ID)
	assert.Equal(t, "a", toks[0].Text)
	assert.Equal(t, Identifier, toks[1].ID)
	assert.Equal(t, "foo"+string(rune(42))+"bar", toks[1].Text)
}

func TestLexerNumberLiteral(t *testing.T) {
	toks := lexAll(t, "#i32 #ul64 #ix-1a")

	require.GreaterOrEqual(t, len(toks), 3)

	assert.Equal(t, Number, toks[0].ID)
	assert.True(t, toks[0].NumSigned)
	assert.Equal(t, Width32, toks[0].NumWidth)
	assert.Equal(t, 10, toks[0].NumBase)
	assert.Equal(t, "32", toks[0].NumDigits)

	assert.Equal(t, Number, toks[1].ID)
	assert.False(t, toks[1].NumSigned)
	assert.Equal(t, Width64, toks[1].NumWidth)

	assert.Equal(t, Number, toks[2].ID)
	assert.Equal(t, 16, toks[2].NumBase)
	assert.True(t, toks[2].NumNeg)
	assert.Equal(t, "1a", toks[2].NumDigits)
}

func TestLexerSingleCharTokens(t *testing.T) {
	toks := lexAll(t, "(a,b);")

	ids := make([]ID, 0, len(toks))
	for _, tk := range toks {
		ids = append(ids, tk.ID)
	}

	assert.Equal(t, []ID{ID('('), Operator, ID(','), Operator, ID(')'), ID(';'), EOF}, ids)
}

func TestLexerMalformedNumber(t *testing.T) {
	l := NewLexer("test.tvm", []byte("#z32"))
	_, err := l.Lex()
	assert.Error(t, err)
}
