package ssa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tvmlang/tvm/internal/position"
)

func noPos() position.Pos {
	return position.Pos{File: "t", Line: 1, Col: 1}
}

func TestNewModuleMetatypeIsSelfTyped(t *testing.T) {
	m := NewModule("t")
	assert.Same(t, m.Metatype, m.Metatype.Type)
}

func TestInternDedupsStructurallyIdenticalValues(t *testing.T) {
	m := NewModule("t")
	i32, _ := m.NewGlobal(noPos(), "i32", m.Metatype)

	x := NewValue(Parameter, "x", i32, 0)
	y := NewValue(Parameter, "y", i32, 0)

	a1 := m.Intern("add", i32, []*Value{x, y})
	a2 := m.Intern("add", i32, []*Value{x, y})

	assert.Same(t, a1, a2)
	assert.Len(t, x.Users(), 1, "interning should not duplicate the operand edge")
}

func TestInternDistinguishesDifferentOperands(t *testing.T) {
	m := NewModule("t")
	i32, _ := m.NewGlobal(noPos(), "i32", m.Metatype)

	x := NewValue(Parameter, "x", i32, 0)
	y := NewValue(Parameter, "y", i32, 0)

	a := m.Intern("add", i32, []*Value{x, y})
	b := m.Intern("add", i32, []*Value{x, x})

	assert.NotSame(t, a, b)
}

func TestDuplicateGlobalNameRejected(t *testing.T) {
	m := NewModule("t")

	_, err := m.NewGlobal(noPos(), "g", m.Metatype)
	require.NoError(t, err)

	_, err = m.NewFunction(noPos(), "g", m.Metatype, 0)
	assert.Error(t, err)
}

func TestSymbolsSortedAndLookup(t *testing.T) {
	m := NewModule("t")
	_, _ = m.NewGlobal(noPos(), "b", m.Metatype)
	_, _ = m.NewGlobal(noPos(), "a", m.Metatype)

	assert.Equal(t, []string{"a", "b"}, m.Symbols())
	assert.NotNil(t, m.Lookup("a"))
	assert.Nil(t, m.Lookup("missing"))
}
