// Package tvmast defines the TVM module AST produced by tvmparse: the
// ordered list of named top-level elements described in spec §3.3.
package tvmast

import (
	"github.com/tvmlang/tvm/bigint"
	"github.com/tvmlang/tvm/internal/position"
)

// Linkage is the visibility of a top-level symbol across modules.
type Linkage string

const (
	Local   Linkage = "local"
	Private Linkage = "private" // the default when no linkage keyword is written
	ODR     Linkage = "odr"
	Export  Linkage = "export"
	Import  Linkage = "import"
)

// ParamAttr is a per-parameter attribute bit.
type ParamAttr uint8

const (
	AttrByval ParamAttr = 1 << iota
	AttrInreg
)

// Module is an ordered list of named top-level elements, matching source
// order so diagnostics and the C backend can report things in the order
// the author wrote them.
type Module struct {
	Name     string
	Elements []TopLevel
}

// TopLevel is implemented by every kind of named top-level element.
type TopLevel interface {
	topLevelName() string
	Range() position.Range
}

// Param is a function or recursive-type parameter.
type Param struct {
	Name  string // empty if unnamed
	Attrs ParamAttr
	Type  Expr
}

// FunctionType describes calling convention, phantom/ordinary parameters
// and the result type of a function value.
type FunctionType struct {
	CC          string // "" for the default target convention, "c" for cc_c
	Sret        bool
	Phantom     []Param
	Params      []Param
	ResultAttrs ParamAttr
	Result      Expr
	Rng         position.Range
}

// Function is a top-level function: its type plus, unless it is a
// declaration, an ordered list of basic blocks.
type Function struct {
	Name    string
	Linkage Linkage
	Type    *FunctionType
	Blocks  []*Block // nil for a declaration-only function
	Rng     position.Range
}

func (f *Function) topLevelName() string       { return f.Name }
func (f *Function) Range() position.Range      { return f.Rng }

// GlobalVar is a top-level storage location.
type GlobalVar struct {
	Name    string
	Const   bool
	Linkage Linkage
	Type    Expr
	Init    Expr // nil if uninitialized
	Rng     position.Range
}

func (g *GlobalVar) topLevelName() string  { return g.Name }
func (g *GlobalVar) Range() position.Range { return g.Rng }

// GlobalDefine is a named alias for an expression; it introduces no
// storage.
type GlobalDefine struct {
	Name string
	Expr Expr
	Rng  position.Range
}

func (g *GlobalDefine) topLevelName() string  { return g.Name }
func (g *GlobalDefine) Range() position.Range { return g.Rng }

// RecursiveType is a named, possibly self-referential type constructor.
type RecursiveType struct {
	Name    string
	Phantom []Param
	Params  []Param
	Body    Expr
	Rng     position.Range
}

func (r *RecursiveType) topLevelName() string  { return r.Name }
func (r *RecursiveType) Range() position.Range { return r.Rng }

// Block is a straight-line sequence of named statements.
type Block struct {
	Name       string // empty for the default entry block
	Dominator  string // empty if not explicitly declared
	LandingPad bool
	Stmts      []*Stmt
	Rng        position.Range
}

// Stmt is one named (or anonymous) instruction.
type Stmt struct {
	Name string // empty if the result is unnamed/unused
	Expr Expr
	Rng  position.Range
}

// PhiNode is one (predecessor, value) entry of a phi instruction.
type PhiNode struct {
	Pred  string // empty means "unconditional"/unnamed predecessor entry
	Value Expr
}

// Expr is the tagged union of spec §3.3: name reference, call, integer
// literal, function-type literal, exists-type, phi.
type Expr interface {
	exprNode()
	Range() position.Range
}

// NameRef references a previously bound %name.
type NameRef struct {
	Name string
	Rng  position.Range
}

func (NameRef) exprNode()               {}
func (n NameRef) Range() position.Range { return n.Rng }

// Call is "(operator operand...)": the operator is itself an expression so
// that both bareword mnemonics (operator tokens) and %name references can
// appear in operator position.
type Call struct {
	Op   Expr
	Args []Expr
	Rng  position.Range
}

func (Call) exprNode()               {}
func (c Call) Range() position.Range { return c.Rng }

// Operator is a bareword mnemonic used in operator position of a Call
// (e.g. "add", "load", "return") that did not match a keyword.
type Operator struct {
	Name string
	Rng  position.Range
}

func (Operator) exprNode()               {}
func (o Operator) Range() position.Range { return o.Rng }

// IntLit is a `#...` numeric literal.
type IntLit struct {
	Value  *bigint.Int
	Signed bool
	Width  int // bit width, -1 for intptr
	Rng    position.Range
}

func (IntLit) exprNode()               {}
func (i IntLit) Range() position.Range { return i.Rng }

// FuncTypeLit is a bare function type used as an expression (e.g. as the
// type of a parameter or the body of a recursive type).
type FuncTypeLit struct {
	Type *FunctionType
	Rng  position.Range
}

func (FuncTypeLit) exprNode()               {}
func (f FuncTypeLit) Range() position.Range { return f.Rng }

// ExistsExpr is the "exists"-quantified type expression.
type ExistsExpr struct {
	Inner Expr
	Rng   position.Range
}

func (ExistsExpr) exprNode()               {}
func (e ExistsExpr) Range() position.Range { return e.Rng }

// PhiExpr is a block-entry phi instruction's right-hand side.
type PhiExpr struct {
	Type  Expr
	Nodes []PhiNode
	Rng   position.Range
}

func (PhiExpr) exprNode()               {}
func (p PhiExpr) Range() position.Range { return p.Rng }
