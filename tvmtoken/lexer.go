package tvmtoken

import (
	"github.com/tvmlang/tvm/diag"
	"github.com/tvmlang/tvm/internal/lexkernel"
	"github.com/tvmlang/tvm/internal/position"
)

// Lexer is the TVM-specific callback plugged into the shared lexkernel.
type Lexer struct {
	r *lexkernel.Reader
}

// NewLexer creates a Lexer over the given named source text.
func NewLexer(file string, data []byte) *Lexer {
	return &Lexer{r: lexkernel.NewReader(file, data)}
}

// NewKernel wraps a Lexer in a backtracking ring buffer, ready for the
// parser to Peek/Accept/Back against. A depth of 2 matches the parser's
// accept2 two-token lookahead.
func NewKernel(file string, data []byte) *lexkernel.Kernel[Token] {
	return lexkernel.New[Token](NewLexer(file, data), 2)
}

// ErrorName implements lexkernel.Source.
func (l *Lexer) ErrorName(t Token) string {
	return t.Name()
}

func isTokenChar(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}

func isDecDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isHexDigit(b byte) bool {
	return isDecDigit(b) || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func (l *Lexer) skipSpace() {
	for {
		b, ok := l.r.Peek()
		if !ok {
			return
		}

		if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
			l.r.Next()
			continue
		}

		return
	}
}

// Lex implements lexkernel.Source: it produces the next TVM token.
func (l *Lexer) Lex() (Token, error) {
	l.skipSpace()

	l.r.MarkStart()

	b, ok := l.r.Peek()
	if !ok {
		return Token{ID: EOF, Range: l.rng()}, nil
	}

	switch {
	case b == '#':
		return l.lexNumber()
	case b == '%':
		return l.lexIdentifier()
	case isTokenChar(b):
		return l.lexWord()
	default:
		l.r.Next()
		return Token{ID: ID(b), Text: string(b), Range: l.rng()}, nil
	}
}

func (l *Lexer) rng() position.Range {
	return position.Range{Begin: l.r.StartPos(), End: l.r.Pos()}
}

func (l *Lexer) lexWord() (Token, error) {
	var buf []byte

	for {
		b, ok := l.r.Peek()
		if !ok || !isTokenChar(b) {
			break
		}

		l.r.Next()
		buf = append(buf, b)
	}

	name := string(buf)

	if id, ok := lookupKeyword(name); ok {
		return Token{ID: id, Text: name, Range: l.rng()}, nil
	}

	return Token{ID: Operator, Text: name, Range: l.rng()}, nil
}

func (l *Lexer) lexIdentifier() (Token, error) {
	l.r.Next() // consume leading '%'

	var buf []byte

	for {
		b, ok := l.r.Peek()
		if !ok {
			break
		}

		if b == '%' {
			nb, ok2 := l.r.PeekAt(1)
			if !ok2 || nb != '%' {
				break
			}

			l.r.Next()
			l.r.Next()

			d1, ok3 := l.r.Next()
			d2, ok4 := l.r.Next()

			if !ok3 || !ok4 || !isDecDigit(d1) || !isDecDigit(d2) {
				return Token{}, diag.New(diag.LexError, l.r.Pos(), "malformed %%DD escape in identifier")
			}

			buf = append(buf, (d1-'0')*10+(d2-'0'))

			continue
		}

		if !isTokenChar(b) {
			break
		}

		l.r.Next()
		buf = append(buf, b)
	}

	return Token{ID: Identifier, Text: string(buf), Range: l.rng()}, nil
}

func (l *Lexer) lexNumber() (Token, error) {
	l.r.Next() // consume '#'

	signed := true

	if b, ok := l.r.Peek(); ok && b == 'u' {
		l.r.Next()

		signed = false
	}

	wb, ok := l.r.Next()
	if !ok {
		return Token{}, diag.New(diag.LexError, l.r.Pos(), "unterminated numeric literal: missing width letter")
	}

	width, ok := widthLetters[wb]
	if !ok {
		return Token{}, diag.New(diag.LexError, l.r.Pos(), "invalid width letter %q, expected one of b s i l q p", wb)
	}

	base := 10

	if b, ok := l.r.Peek(); ok && b == 'x' {
		l.r.Next()

		base = 16
	}

	neg := false

	if b, ok := l.r.Peek(); ok && b == '-' {
		l.r.Next()

		neg = true
	}

	var digits []byte

	for {
		b, ok := l.r.Peek()
		if !ok {
			break
		}

		if base == 16 {
			if !isHexDigit(b) {
				break
			}
		} else if !isDecDigit(b) {
			break
		}

		l.r.Next()
		digits = append(digits, b)
	}

	if len(digits) == 0 {
		return Token{}, diag.New(diag.LexError, l.r.Pos(), "malformed numeric literal: no digits")
	}

	return Token{
		ID:        Number,
		Range:     l.rng(),
		NumSigned: signed,
		NumWidth:  width,
		NumBase:   base,
		NumDigits: string(digits),
		NumNeg:    neg,
	}, nil
}
