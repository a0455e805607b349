package ssa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetOperandWiresBidirectionalEdge(t *testing.T) {
	typ := NewValue(Global, "i32", nil, 0)
	x := NewValue(Parameter, "x", typ, 0)
	u := NewValue(Functional, "add", typ, 2)

	u.SetOperand(0, x)

	assert.Equal(t, x, u.Operand(0))
	require.Len(t, x.Users(), 1)
	assert.Equal(t, UserRef{Value: u, Slot: 0}, x.Users()[0])
}

func TestSetOperandUnlinksPreviousTarget(t *testing.T) {
	typ := NewValue(Global, "i32", nil, 0)
	x := NewValue(Parameter, "x", typ, 0)
	y := NewValue(Parameter, "y", typ, 0)
	u := NewValue(Functional, "add", typ, 1)

	u.SetOperand(0, x)
	u.SetOperand(0, y)

	assert.False(t, x.HasUsers())
	assert.Equal(t, y, u.Operand(0))
	require.Len(t, y.Users(), 1)
}

func TestClearUsesDetachesOwnOperands(t *testing.T) {
	typ := NewValue(Global, "i32", nil, 0)
	x := NewValue(Parameter, "x", typ, 0)
	y := NewValue(Parameter, "y", typ, 0)
	u := NewValue(Functional, "add", typ, 2)

	u.SetOperand(0, x)
	u.SetOperand(1, y)

	u.ClearUses()

	assert.Nil(t, u.Operand(0))
	assert.Nil(t, u.Operand(1))
	assert.False(t, x.HasUsers())
	assert.False(t, y.HasUsers())
}

// TestScenarioS5ReplaceUses matches spec §8 scenario S5.
func TestScenarioS5ReplaceUses(t *testing.T) {
	m := NewModule("s5")
	i32, _ := m.NewGlobal(noPos(), "i32", m.Metatype)

	x := NewValue(Parameter, "x", i32, 0)
	y := NewValue(Parameter, "y", i32, 0)
	z := NewValue(Parameter, "z", i32, 0)
	w := NewValue(Parameter, "w", i32, 0)

	a := m.Intern("add", i32, []*Value{x, y})
	b := m.Intern("add", i32, []*Value{a, z})
	c := m.Intern("add", i32, []*Value{a, w})

	aPrime := m.Intern("add", i32, []*Value{x, x})

	ReplaceUses(a, aPrime)

	assert.Equal(t, aPrime, b.Operand(0))
	assert.Equal(t, aPrime, c.Operand(0))
	assert.Empty(t, a.Users())
	assert.Len(t, aPrime.Users(), 2)
}

func TestReplaceUsesIsNoopWhenUnused(t *testing.T) {
	typ := NewValue(Global, "i32", nil, 0)
	v := NewValue(Functional, "add", typ, 0)
	w := NewValue(Functional, "sub", typ, 0)

	ReplaceUses(v, w)

	assert.Empty(t, w.Users())
}

func TestReplaceUsesOntoValueWithExistingUsers(t *testing.T) {
	typ := NewValue(Global, "i32", nil, 0)
	v := NewValue(Parameter, "v", typ, 0)
	w := NewValue(Parameter, "w", typ, 0)

	u1 := NewValue(Functional, "add", typ, 1)
	u1.SetOperand(0, v)

	u2 := NewValue(Functional, "sub", typ, 1)
	u2.SetOperand(0, w)

	ReplaceUses(v, w)

	assert.Equal(t, w, u1.Operand(0))
	require.Len(t, w.Users(), 2)

	slots := map[int]*Value{}
	for _, ref := range w.Users() {
		slots[ref.Slot] = ref.Value
	}

	assert.Contains(t, []*Value{u1, u2}, slots[0])
}
