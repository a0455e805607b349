package lexkernel

import (
	"github.com/pkg/errors"

	"github.com/tvmlang/tvm/internal/position"
)

// ErrUnterminatedGroup is the cause wrapped by CaptureGroup when the input
// ends before the opening bracket is matched.
var ErrUnterminatedGroup = errors.New("unterminated bracket group")

// ErrUnmatchedCloser is the cause wrapped by CaptureGroup when a closing
// bracket appears with nothing open of that kind.
var ErrUnmatchedCloser = errors.New("unmatched closing bracket")

var closerOf = map[byte]byte{'(': ')', '[': ']', '{': '}'}

// CaptureGroup reads the text enclosed by a bracket group whose opening
// character (one of '(', '[', '{') has already been consumed from r. It
// tracks three independent depth counters, one per bracket kind, so that
// unrelated bracket kinds may appear nested inside without being mistaken
// for the group's own terminator. Per spec §4.1, whenever the brace-depth
// counter is nonzero the round and square counters are suspended: a ')' or
// ']' occurring inside an unbalanced '{' is copied verbatim rather than
// being treated as (a potentially unmatched) closer. A single backslash
// escapes the following byte, copying both through untouched.
//
// CaptureGroup returns the inner text (excluding the outer brackets) and the
// position of the byte following the matching closer.
func CaptureGroup(r *Reader, open byte) (string, position.Pos, error) {
	close := closerOf[open]

	depth := map[byte]int{'(': 0, '[': 0, '{': 0}
	depth[open] = 1

	var text []byte

	for {
		b, ok := r.Next()
		if !ok {
			return "", r.Pos(), errors.Wrapf(ErrUnterminatedGroup, "at %s", r.Pos())
		}

		if b == '\\' {
			nb, ok := r.Next()
			if !ok {
				return "", r.Pos(), errors.Wrapf(ErrUnterminatedGroup, "unterminated escape at %s", r.Pos())
			}

			text = append(text, b, nb)

			continue
		}

		suspended := depth['{'] > 0 && (b == '(' || b == ')' || b == '[' || b == ']')
		if suspended {
			text = append(text, b)
			continue
		}

		switch b {
		case '(', '[', '{':
			depth[b]++
			text = append(text, b)
		case ')', ']', '}':
			k := openerOf(b)

			if depth[k] == 0 {
				return "", r.Pos(), errors.Wrapf(ErrUnmatchedCloser, "'%c' at %s", b, r.Pos())
			}

			depth[k]--

			if k == open && depth[k] == 0 && b == close {
				return string(text), r.Pos(), nil
			}

			text = append(text, b)
		default:
			text = append(text, b)
		}
	}
}

func openerOf(closeByte byte) byte {
	switch closeByte {
	case ')':
		return '('
	case ']':
		return '['
	case '}':
		return '{'
	}

	return 0
}
