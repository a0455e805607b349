package surfacelex

import (
	"github.com/tvmlang/tvm/diag"
	"github.com/tvmlang/tvm/internal/lexkernel"
	"github.com/tvmlang/tvm/internal/position"
)

// Lexer is the surface-language callback plugged into the shared lexkernel.
type Lexer struct {
	r *lexkernel.Reader
}

// NewLexer creates a Lexer over the given named source text.
func NewLexer(file string, data []byte) *Lexer {
	return &Lexer{r: lexkernel.NewReader(file, data)}
}

// NewKernel wraps a Lexer in a backtracking ring buffer.
func NewKernel(file string, data []byte) *lexkernel.Kernel[Token] {
	return lexkernel.New[Token](NewLexer(file, data), 2)
}

// ErrorName implements lexkernel.Source.
func (l *Lexer) ErrorName(t Token) string {
	return t.Name()
}

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdentChar(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9')
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func (l *Lexer) skipSpace() {
	for {
		b, ok := l.r.Peek()
		if !ok || (b != ' ' && b != '\t' && b != '\n' && b != '\r') {
			return
		}

		l.r.Next()
	}
}

func (l *Lexer) rng() position.Range {
	return position.Range{Begin: l.r.StartPos(), End: l.r.Pos()}
}

// Lex implements lexkernel.Source: it produces the next surface token.
func (l *Lexer) Lex() (Token, error) {
	l.skipSpace()
	l.r.MarkStart()

	b, ok := l.r.Peek()
	if !ok {
		return Token{ID: EOF, Range: l.rng()}, nil
	}

	switch {
	case b == '(' || b == '[' || b == '{':
		return l.lexBracketGroup(b)
	case isIdentStart(b):
		return l.lexIdentifier()
	case isDigit(b):
		return l.lexNumber()
	}

	if tok, ok := l.tryCompoundOperator(); ok {
		return tok, nil
	}

	l.r.Next()

	return Token{ID: ID(b), Text: string(b), Range: l.rng()}, nil
}

func (l *Lexer) tryCompoundOperator() (Token, bool) {
	for _, op := range compoundOperators {
		if l.matchesAt(op.text) {
			for range op.text {
				l.r.Next()
			}

			return Token{ID: op.id, Text: op.text, Range: l.rng()}, true
		}
	}

	return Token{}, false
}

func (l *Lexer) matchesAt(s string) bool {
	for i := 0; i < len(s); i++ {
		b, ok := l.r.PeekAt(i)
		if !ok || b != s[i] {
			return false
		}
	}

	return true
}

func (l *Lexer) lexIdentifier() (Token, error) {
	var buf []byte

	for {
		b, ok := l.r.Peek()
		if !ok || !isIdentChar(b) {
			break
		}

		l.r.Next()
		buf = append(buf, b)
	}

	return Token{ID: Identifier, Text: string(buf), Range: l.rng()}, nil
}

func (l *Lexer) lexNumber() (Token, error) {
	var buf []byte

	for {
		b, ok := l.r.Peek()
		if !ok || !isDigit(b) {
			break
		}

		l.r.Next()
		buf = append(buf, b)
	}

	if b, ok := l.r.Peek(); ok && b == '.' {
		if nb, ok2 := l.r.PeekAt(1); ok2 && isDigit(nb) {
			l.r.Next()
			buf = append(buf, '.')

			for {
				b, ok := l.r.Peek()
				if !ok || !isDigit(b) {
					break
				}

				l.r.Next()
				buf = append(buf, b)
			}
		}
	}

	return Token{ID: Number, Text: string(buf), Range: l.rng()}, nil
}

func (l *Lexer) lexBracketGroup(open byte) (Token, error) {
	l.r.Next() // consume the opening bracket

	inner, _, err := lexkernel.CaptureGroup(l.r, open)
	if err != nil {
		return Token{}, diag.Wrap(diag.LexError, l.r.StartPos(), err, "unbalanced %q bracket group", string(open))
	}

	return Token{
		ID:         BracketGroup,
		Range:      l.rng(),
		GroupOpen:  open,
		GroupInner: inner,
	}, nil
}
