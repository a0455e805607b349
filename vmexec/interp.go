package vmexec

import (
	"strconv"
	"strings"

	"github.com/tvmlang/tvm/diag"
	"github.com/tvmlang/tvm/internal/position"
	"github.com/tvmlang/tvm/ssa"
)

// maxBlockSteps bounds the interpreter's block-to-block walk so a malformed
// or genuinely cyclic control-flow graph (a goto loop with no reachable
// return) fails with a diagnostic instead of hanging the host process.
const maxBlockSteps = 1_000_000

// defaultAllocaSize is the interpreter's memory-cell size for an alloca
// whose operand type carries no usable size (the synthesized "sret"
// parameter, in particular — see lower.LowerFunction's sret rewrite, which
// leaves the parameter's Type nil since nothing downstream of the
// interpreter needs it to be a real pointer type).
const defaultAllocaSize = 64

// machine is one call's interpreter state: the env binds every value
// computed so far (parameters and instruction results) to its integer
// value, heap holds one growable byte buffer per alloca'd address. A fresh
// machine is built per call (including a recursive call to another
// compiled function), so locals never leak across calls.
type machine struct {
	a    *artifact
	env  map[*ssa.Value]int64
	heap map[int64][]byte
	next int64
}

func newMachine(a *artifact) *machine {
	return &machine{a: a, env: map[*ssa.Value]int64{}, heap: map[int64][]byte{}, next: 0x1000}
}

// call interprets cf's lowered body against args, binding each ordinary
// parameter positionally and, when the function was rewritten with a
// synthesized sret slot, reading the return value back out of it instead of
// off the function's own return instruction.
func (m *machine) call(cf *compiledFunction, args []int64) (int64, error) {
	lf := cf.lf

	var sretParam *ssa.Value

	ai := 0

	for _, p := range lf.Params {
		if p.Tag == "sret" {
			sretParam = p
			m.env[p] = m.alloc(defaultAllocaSize)

			continue
		}

		if ai < len(args) {
			m.env[p] = args[ai]
			ai++
		}
	}

	if len(lf.Blocks) == 0 {
		return 0, diag.New(diag.BackendError, position.Pos{}, "compiled function has no blocks")
	}

	cur, prev := lf.Blocks[0], (*ssa.Value)(nil)

	for steps := 0; ; steps++ {
		if steps > maxBlockSteps {
			return 0, diag.New(diag.BackendError, position.Pos{}, "interpreter exceeded %d block transitions", maxBlockSteps)
		}

		next, retVal, done, err := m.runBlock(cur, prev)
		if err != nil {
			return 0, err
		}

		if done {
			if sretParam != nil {
				return m.readInt(m.env[sretParam], 8), nil
			}

			return retVal, nil
		}

		prev, cur = cur, next
	}
}

// runBlock executes blk's instructions in order. It returns (nextBlock,
// _, false, nil) on a goto/cond_br terminator, (_, value, true, nil) on a
// return, or (_, 0, true, nil) if control falls off the end of a block with
// no terminator (an empty or malformed block — treated as an implicit void
// return rather than an error, since nothing in the grammar requires every
// block to end in one of the control tags).
func (m *machine) runBlock(blk *ssa.Value, prev *ssa.Value) (*ssa.Value, int64, bool, error) {
	for _, inst := range blk.Insts {
		switch inst.Tag {
		case "goto":
			if inst.NumOperands() == 0 {
				return nil, 0, false, diag.New(diag.BackendError, position.Pos{}, "goto has no target block")
			}

			return inst.Operand(0), 0, false, nil

		case "cond_br":
			if inst.NumOperands() != 3 {
				return nil, 0, false, diag.New(diag.BackendError, position.Pos{}, "cond_br expects (cond, then, else), got %d operands", inst.NumOperands())
			}

			cond, err := m.eval(inst.Operand(0))
			if err != nil {
				return nil, 0, false, err
			}

			if cond != 0 {
				return inst.Operand(1), 0, false, nil
			}

			return inst.Operand(2), 0, false, nil

		case "return":
			if inst.NumOperands() == 0 {
				return nil, 0, true, nil
			}

			v, err := m.eval(inst.Operand(0))
			if err != nil {
				return nil, 0, false, err
			}

			return nil, v, true, nil

		case "unreachable":
			return nil, 0, false, diag.New(diag.BackendError, position.Pos{}, "interpreter reached an unreachable instruction")

		case "phi":
			v, err := m.evalPhi(inst, prev)
			if err != nil {
				return nil, 0, false, err
			}

			m.env[inst] = v

		default:
			v, err := m.eval(inst)
			if err != nil {
				return nil, 0, false, err
			}

			m.env[inst] = v
		}
	}

	return nil, 0, true, nil
}

func (m *machine) evalPhi(inst *ssa.Value, prev *ssa.Value) (int64, error) {
	var fallback *ssa.Value

	for i := 0; i*2+1 < inst.NumOperands(); i++ {
		pred := inst.Operand(i * 2)
		val := inst.Operand(i*2 + 1)

		if pred == nil {
			fallback = val
			continue
		}

		if pred == prev {
			return m.eval(val)
		}
	}

	if fallback != nil {
		return m.eval(fallback)
	}

	return 0, diag.New(diag.BackendError, position.Pos{}, "phi has no entry for predecessor block %q", blockName(prev))
}

func blockName(b *ssa.Value) string {
	if b == nil {
		return "<entry>"
	}

	return b.Tag
}

// eval recursively reduces a value to an int64: a literal, a bound
// parameter/instruction result, an effectful instruction (alloca/load/
// store/element_ptr/call), or arithmetic on already-evaluated operands —
// the same switch-on-tag dispatch shape as ngaro's opcode loop but over a
// value DAG instead of a linear tape.
func (m *machine) eval(v *ssa.Value) (int64, error) {
	if v == nil {
		return 0, diag.New(diag.BackendError, position.Pos{}, "cannot evaluate a nil value")
	}

	if n, ok := m.env[v]; ok {
		return n, nil
	}

	if strings.HasPrefix(v.Tag, "lit:") {
		n, err := strconv.ParseInt(strings.TrimPrefix(v.Tag, "lit:"), 10, 64)
		if err != nil {
			return 0, diag.Wrap(diag.BackendError, position.Pos{}, err, "invalid integer literal %q", v.Tag)
		}

		return n, nil
	}

	if v.Category == ssa.Parameter {
		return 0, diag.New(diag.BackendError, position.Pos{}, "unbound parameter %%%s", v.Tag)
	}

	switch v.Tag {
	case "alloca":
		size := defaultAllocaSize
		if v.NumOperands() > 0 && v.Operand(0) != nil {
			size = sizeOfType(v.Operand(0))
		}

		addr := m.alloc(size)
		m.env[v] = addr

		return addr, nil

	case "load":
		if v.NumOperands() == 0 {
			return 0, diag.New(diag.BackendError, position.Pos{}, "load has no address operand")
		}

		addr, err := m.eval(v.Operand(0))
		if err != nil {
			return 0, err
		}

		return m.readInt(addr, sizeOfType(v.Type)), nil

	case "store":
		if v.NumOperands() != 2 {
			return 0, diag.New(diag.BackendError, position.Pos{}, "store expects (address, value), got %d operands", v.NumOperands())
		}

		addr, err := m.eval(v.Operand(0))
		if err != nil {
			return 0, err
		}

		val, err := m.eval(v.Operand(1))
		if err != nil {
			return 0, err
		}

		m.writeInt(addr, 8, val)

		return 0, nil

	case "element_ptr", "struct_ep", "outer_ptr":
		if v.NumOperands() < 2 {
			return 0, diag.New(diag.BackendError, position.Pos{}, "%s expects a base pointer and an offset", v.Tag)
		}

		base, err := m.eval(v.Operand(0))
		if err != nil {
			return 0, err
		}

		off, err := m.eval(v.Operand(1))
		if err != nil {
			return 0, err
		}

		return base + off, nil

	case "cast", "freea":
		if v.NumOperands() == 0 {
			return 0, nil
		}

		return m.eval(v.Operand(0))

	case "call":
		return m.evalCall(v)
	}

	if v.Category == ssa.Instruction {
		if cf, ok := m.a.compiled[v.Tag]; ok {
			args, err := m.evalArgs(v)
			if err != nil {
				return 0, err
			}

			return newMachine(m.a).call(cf, args)
		}
	}

	args, err := m.evalArgs(v)
	if err != nil {
		return 0, err
	}

	return evalArith(v.Tag, args)
}

func (m *machine) evalArgs(v *ssa.Value) ([]int64, error) {
	args := make([]int64, v.NumOperands())

	for i := range args {
		op := v.Operand(i)
		if op == nil {
			continue
		}

		n, err := m.eval(op)
		if err != nil {
			return nil, err
		}

		args[i] = n
	}

	return args, nil
}

func (m *machine) evalCall(v *ssa.Value) (int64, error) {
	if v.NumOperands() == 0 {
		return 0, diag.New(diag.BackendError, position.Pos{}, "call has no callee operand")
	}

	callee := v.Operand(0)

	args := make([]int64, 0, v.NumOperands()-1)

	for i := 1; i < v.NumOperands(); i++ {
		n, err := m.eval(v.Operand(i))
		if err != nil {
			return 0, err
		}

		args = append(args, n)
	}

	cf, ok := m.a.compiled[callee.Tag]
	if !ok {
		return 0, diag.New(diag.BackendError, position.Pos{}, "call to unresolved function %q", callee.Tag)
	}

	return newMachine(m.a).call(cf, args)
}

func evalArith(tag string, args []int64) (int64, error) {
	need := func(n int) error {
		if len(args) < n {
			return diag.New(diag.BackendError, position.Pos{}, "operator %q expects %d operands, got %d", tag, n, len(args))
		}

		return nil
	}

	switch tag {
	case "add":
		if err := need(2); err != nil {
			return 0, err
		}

		return args[0] + args[1], nil
	case "sub":
		if err := need(2); err != nil {
			return 0, err
		}

		return args[0] - args[1], nil
	case "mul":
		if err := need(2); err != nil {
			return 0, err
		}

		return args[0] * args[1], nil
	case "div":
		if err := need(2); err != nil {
			return 0, err
		}

		if args[1] == 0 {
			return 0, diag.New(diag.BackendError, position.Pos{}, "division by zero")
		}

		return args[0] / args[1], nil
	case "rem":
		if err := need(2); err != nil {
			return 0, err
		}

		if args[1] == 0 {
			return 0, diag.New(diag.BackendError, position.Pos{}, "division by zero")
		}

		return args[0] % args[1], nil
	case "and":
		if err := need(2); err != nil {
			return 0, err
		}

		return args[0] & args[1], nil
	case "or":
		if err := need(2); err != nil {
			return 0, err
		}

		return args[0] | args[1], nil
	case "xor":
		if err := need(2); err != nil {
			return 0, err
		}

		return args[0] ^ args[1], nil
	case "shl":
		if err := need(2); err != nil {
			return 0, err
		}

		return args[0] << uint(args[1]), nil
	case "shr":
		if err := need(2); err != nil {
			return 0, err
		}

		return args[0] >> uint(args[1]), nil
	case "cmp_eq":
		if err := need(2); err != nil {
			return 0, err
		}

		return boolToInt(args[0] == args[1]), nil
	case "cmp_ne":
		if err := need(2); err != nil {
			return 0, err
		}

		return boolToInt(args[0] != args[1]), nil
	case "cmp_lt":
		if err := need(2); err != nil {
			return 0, err
		}

		return boolToInt(args[0] < args[1]), nil
	case "cmp_gt":
		if err := need(2); err != nil {
			return 0, err
		}

		return boolToInt(args[0] > args[1]), nil
	case "cmp_le":
		if err := need(2); err != nil {
			return 0, err
		}

		return boolToInt(args[0] <= args[1]), nil
	case "cmp_ge":
		if err := need(2); err != nil {
			return 0, err
		}

		return boolToInt(args[0] >= args[1]), nil
	default:
		return 0, diag.New(diag.BackendError, position.Pos{}, "vmexec cannot evaluate operator %q", tag)
	}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}

	return 0
}

// alloc reserves a fresh, zeroed memory cell of size bytes and returns its
// address. Addresses are dense small integers rather than real pointers;
// the interpreter never exposes them outside the process.
func (m *machine) alloc(size int) int64 {
	if size <= 0 {
		size = 8
	}

	addr := m.next
	m.heap[addr] = make([]byte, size)
	m.next += int64(size)

	if rem := m.next % 8; rem != 0 {
		m.next += 8 - rem
	}

	return addr
}

// cellFor finds the heap buffer containing addr and the byte offset into it,
// or reports false for an address the interpreter never allocated.
func (m *machine) cellFor(addr int64) ([]byte, int, bool) {
	for base, buf := range m.heap {
		if addr >= base && int(addr-base) < len(buf) {
			return buf, int(addr - base), true
		}
	}

	return nil, 0, false
}

func (m *machine) readInt(addr int64, size int) int64 {
	buf, off, ok := m.cellFor(addr)
	if !ok {
		return 0
	}

	var n int64
	for i := 0; i < size && off+i < len(buf); i++ {
		n |= int64(buf[off+i]) << uint(8*i)
	}

	return n
}

func (m *machine) writeInt(addr int64, size int, val int64) {
	buf, off, ok := m.cellFor(addr)
	if !ok {
		return
	}

	for i := 0; i < size && off+i < len(buf); i++ {
		buf[off+i] = byte(val >> uint(8*i))
	}
}

// sizeOfType reports the byte size the interpreter uses for a register
// type's load/store/alloca width, following the same letter scheme
// tvmbuild.primitiveTypeName produces tags from, plus the "bytesN"
// coercion-type convention lower.Lowerer.TypeFromSize round-trips through.
func sizeOfType(t *ssa.Value) int {
	if t == nil {
		return defaultAllocaSize
	}

	tag := t.Tag

	if tag == "ptr" || tag == "iptr" || tag == "uptr" {
		return 8
	}

	if n, ok := parseSizedTag(tag, "bytes"); ok {
		return n
	}

	letters := strings.TrimPrefix(tag, "u")
	if letters == "" {
		return defaultAllocaSize
	}

	switch letters[0] {
	case 'b':
		return 1
	case 's':
		return 2
	case 'i':
		return 4
	case 'l', 'q':
		return 8
	default:
		return defaultAllocaSize
	}
}

func parseSizedTag(tag, prefix string) (int, bool) {
	if !strings.HasPrefix(tag, prefix) {
		return 0, false
	}

	n, err := strconv.Atoi(strings.TrimPrefix(tag, prefix))
	if err != nil {
		return 0, false
	}

	return n, true
}
