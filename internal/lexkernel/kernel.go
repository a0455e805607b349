package lexkernel

import "github.com/pkg/errors"

// Source is the language-specific callback supplied to a Kernel: it
// produces the next token from whatever Reader it owns, and names a token
// for use in diagnostics.
type Source[T any] interface {
	Lex() (T, error)
	ErrorName(T) string
}

type slot[T any] struct {
	tok T
	err error
}

// Kernel is a fixed-depth backtracking token buffer. It holds depth+1
// prefetched tokens in a circular array addressed by three monotonically
// increasing indices: begin (oldest token still reachable by Back/Value),
// pos (the token Peek/Accept currently act on) and end (the next free slot
// to be lexed into). A depth of 2 is enough for both the TVM and the
// surface parser.
type Kernel[T any] struct {
	src   Source[T]
	buf   []slot[T]
	depth int

	begin, pos, end int
}

// New creates a Kernel over src with the given backtrack depth and primes
// it with the first token.
func New[T any](src Source[T], depth int) *Kernel[T] {
	k := &Kernel[T]{
		src:   src,
		buf:   make([]slot[T], depth+1),
		depth: depth,
	}
	k.fetch()

	return k
}

func (k *Kernel[T]) at(i int) *slot[T] {
	return &k.buf[i%len(k.buf)]
}

func (k *Kernel[T]) fetch() {
	tok, err := k.src.Lex()
	*k.at(k.end) = slot[T]{tok: tok, err: err}
	k.end++
}

// Peek returns the token currently at pos without consuming it.
func (k *Kernel[T]) Peek() (T, error) {
	s := k.at(k.pos)
	return s.tok, s.err
}

// Accept consumes the token at pos and returns it, advancing pos. A fresh
// token is lexed once pos reaches end; once more than depth tokens have
// accumulated behind pos, the oldest is evicted by advancing begin.
func (k *Kernel[T]) Accept() (T, error) {
	s := k.at(k.pos)
	k.pos++

	if k.pos == k.end {
		k.fetch()
	}

	if k.pos-k.begin > k.depth {
		k.begin++
	}

	return s.tok, s.err
}

// Back rolls pos back one slot. It is an error to back past begin: that
// would require a token the kernel has already evicted.
func (k *Kernel[T]) Back() error {
	if k.pos == k.begin {
		return errors.New("lexkernel: cannot back past the oldest retained token")
	}

	k.pos--

	return nil
}

// Value returns the token n+1 positions before pos: Value(0) is the token
// most recently returned by Accept, Value(1) the one before that, and so
// on up to the configured backtrack depth.
func (k *Kernel[T]) Value(n int) (T, error) {
	idx := k.pos - (n + 1)
	if idx < k.begin || idx >= k.pos {
		var zero T
		return zero, errors.Errorf("lexkernel: value(%d) is outside the retained backtrack window", n)
	}

	s := k.at(idx)

	return s.tok, s.err
}

// ErrorName delegates to the underlying Source for diagnostic rendering.
func (k *Kernel[T]) ErrorName(tok T) string {
	return k.src.ErrorName(tok)
}
