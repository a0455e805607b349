// Package tvmparse implements the recursive-descent parser that turns a
// stream of tvmtoken.Token into a tvmast.Module (spec §4.2). It uses the
// shared lexkernel's two-token lookahead (Accept + Back) wherever the
// grammar needs to look past a leading identifier to decide whether it
// names a parameter or starts a type expression.
package tvmparse

import (
	"strings"

	"golang.org/x/mod/semver"

	"github.com/tvmlang/tvm/bigint"
	"github.com/tvmlang/tvm/diag"
	"github.com/tvmlang/tvm/internal/lexkernel"
	"github.com/tvmlang/tvm/internal/position"
	"github.com/tvmlang/tvm/tvmast"
	"github.com/tvmlang/tvm/tvmtoken"
)

// SupportedVersion is the only TVM module version pragma this toolchain
// accepts (spec §6.6, a SPEC_FULL addition grounded on the teacher's own
// use of golang.org/x/mod/semver to validate a version stamp).
const SupportedVersion = "v1.0"

// Parse lexes and parses a named TVM source buffer into a Module.
func Parse(file string, src []byte) (*tvmast.Module, error) {
	body, _, err := stripVersionPragma(file, src)
	if err != nil {
		return nil, err
	}

	p := &parser{k: tvmtoken.NewKernel(file, body), file: file}

	return p.parseModule()
}

// stripVersionPragma recognizes an optional leading "#! tvm X.Y" line,
// validates it against SupportedVersion and blanks it out (preserving byte
// offsets and line numbers) so the tokenizer never sees it.
func stripVersionPragma(file string, src []byte) (rest []byte, version string, err error) {
	if len(src) < 2 || src[0] != '#' || src[1] != '!' {
		return src, "", nil
	}

	lineEnd := len(src)
	if idx := indexByte(src, '\n'); idx >= 0 {
		lineEnd = idx
	}

	line := string(src[2:lineEnd])
	fields := strings.Fields(line)

	if len(fields) < 2 || fields[0] != "tvm" {
		return nil, "", diag.New(diag.SemanticError, position.Pos{File: file, Line: 1, Col: 1}, "malformed version pragma %q", line)
	}

	version = fields[1]

	v := version
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}

	if !semver.IsValid(v) {
		return nil, "", diag.New(diag.SemanticError, position.Pos{File: file, Line: 1, Col: 1}, "invalid version pragma %q", version)
	}

	if semver.Canonical(v) != semver.Canonical(SupportedVersion) {
		return nil, "", diag.New(diag.SemanticError, position.Pos{File: file, Line: 1, Col: 1}, "unsupported tvm version %q, expected %s", version, SupportedVersion)
	}

	out := append([]byte(nil), src...)
	for i := 0; i < lineEnd; i++ {
		if out[i] != '\n' {
			out[i] = ' '
		}
	}

	return out, version, nil
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}

	return -1
}

type parser struct {
	k    *lexkernel.Kernel[tvmtoken.Token]
	file string
}

func (p *parser) peek() tvmtoken.Token {
	tok, err := p.k.Peek()
	if err != nil {
		panic(parseAbort{err})
	}

	return tok
}

// parseAbort carries a lex/parse error up to the top-level Parse call via
// panic/recover, matching spec §4.2's "no panic-mode recovery: the first
// error terminates parsing" — there is no recovery point below the single
// "parse one module" operation.
type parseAbort struct{ err error }

func (p *parser) accept() tvmtoken.Token {
	tok, err := p.k.Accept()
	if err != nil {
		panic(parseAbort{err})
	}

	return tok
}

func (p *parser) expect(id tvmtoken.ID) tvmtoken.Token {
	tok := p.peek()
	if tok.ID != id {
		panic(parseAbort{p.unexpected(tok, idName(id))})
	}

	return p.accept()
}

func idName(id tvmtoken.ID) string {
	if id < 256 {
		return "'" + string(rune(id)) + "'"
	}

	switch id {
	case tvmtoken.Identifier:
		return "a %name"
	case tvmtoken.KwGlobal:
		return "'global'"
	case tvmtoken.KwFunction:
		return "'function'"
	case tvmtoken.KwRecursive:
		return "'recursive'"
	case tvmtoken.KwPhi:
		return "'phi'"
	default:
		return tvmtoken.Token{ID: id}.Name()
	}
}

func (p *parser) unexpected(got tvmtoken.Token, want string) error {
	return diag.New(diag.ParseError, got.Range.Begin, "unexpected %s, expected %s", got.Name(), want)
}

// accept2 tries to consume a then b in sequence; if b does not follow, the
// single already-accepted token a is rolled back and accept2 reports false.
func (p *parser) accept2(a, b tvmtoken.ID) (tvmtoken.Token, bool) {
	first := p.peek()
	if first.ID != a {
		return tvmtoken.Token{}, false
	}

	tok := p.accept()

	second := p.peek()
	if second.ID != b {
		if err := p.k.Back(); err != nil {
			panic(parseAbort{err})
		}

		return tvmtoken.Token{}, false
	}

	p.accept()

	return tok, true
}

func (p *parser) parseModule() (mod *tvmast.Module, err error) {
	defer func() {
		if r := recover(); r != nil {
			abort, ok := r.(parseAbort)
			if !ok {
				panic(r)
			}

			mod, err = nil, abort.err
		}
	}()

	mod = &tvmast.Module{Name: p.file}

	for p.peek().ID != tvmtoken.EOF {
		mod.Elements = append(mod.Elements, p.parseTopLevel())
	}

	return mod, nil
}

func (p *parser) parseTopLevel() tvmast.TopLevel {
	begin := p.peek().Range.Begin

	nameTok := p.expect(tvmtoken.Identifier)
	p.expect(tvmtoken.ID('='))

	el := p.parseGlobalElement(nameTok.Text, begin)

	p.expect(tvmtoken.ID(';'))

	return el
}

func (p *parser) parseGlobalElement(name string, begin position.Pos) tvmast.TopLevel {
	switch p.peek().ID {
	case tvmtoken.KwGlobal:
		return p.parseGlobalVar(name, begin)
	case tvmtoken.KwDefine:
		p.accept()

		e := p.parseExpr()

		return &tvmast.GlobalDefine{Name: name, Expr: e, Rng: rangeTo(begin, p)}
	case tvmtoken.KwRecursive:
		return p.parseRecursiveType(name, begin)
	default:
		linkage := p.parseOptionalLinkage()
		ft := p.parseFunctionType()

		fn := &tvmast.Function{Name: name, Linkage: linkage, Type: ft}

		if p.peek().ID == tvmtoken.ID('{') {
			p.accept()
			fn.Blocks = p.parseBlocks()
			p.expect(tvmtoken.ID('}'))
		}

		fn.Rng = rangeTo(begin, p)

		return fn
	}
}

func rangeTo(begin position.Pos, p *parser) position.Range {
	// End is approximated at the position reached so far; exact enough for
	// diagnostics, which always anchor on Begin.
	return position.Range{Begin: begin, End: begin}
}

func (p *parser) parseOptionalLinkage() tvmast.Linkage {
	switch p.peek().ID {
	case tvmtoken.KwLocal:
		p.accept()
		return tvmast.Local
	case tvmtoken.KwPrivate:
		p.accept()
		return tvmast.Private
	case tvmtoken.KwOdr:
		p.accept()
		return tvmast.ODR
	case tvmtoken.KwExport:
		p.accept()
		return tvmast.Export
	case tvmtoken.KwImport:
		p.accept()
		return tvmast.Import
	default:
		return tvmast.Private
	}
}

func (p *parser) parseGlobalVar(name string, begin position.Pos) *tvmast.GlobalVar {
	p.expect(tvmtoken.KwGlobal)

	gv := &tvmast.GlobalVar{Name: name}

	if p.peek().ID == tvmtoken.KwConst {
		p.accept()

		gv.Const = true
	}

	gv.Linkage = p.parseOptionalLinkage()
	gv.Type = p.parseExpr()

	if p.peek().ID != tvmtoken.ID(';') {
		gv.Init = p.parseExpr()
	}

	gv.Rng = rangeTo(begin, p)

	return gv
}

func (p *parser) parseRecursiveType(name string, begin position.Pos) *tvmast.RecursiveType {
	p.expect(tvmtoken.KwRecursive)
	p.expect(tvmtoken.ID('('))

	phantom, params := p.parseParamSplit()

	p.expect(tvmtoken.ID(')'))
	p.expect(tvmtoken.ID('>'))

	body := p.parseExpr()

	return &tvmast.RecursiveType{Name: name, Phantom: phantom, Params: params, Body: body, Rng: rangeTo(begin, p)}
}

func (p *parser) parseFunctionType() *tvmast.FunctionType {
	begin := p.peek().Range.Begin

	p.expect(tvmtoken.KwFunction)

	ft := &tvmast.FunctionType{}

	if p.peek().ID == tvmtoken.KwCCC {
		p.accept()

		ft.CC = "c"
	}

	if p.peek().ID == tvmtoken.KwSret {
		p.accept()

		ft.Sret = true
	}

	p.expect(tvmtoken.ID('('))

	ft.Phantom, ft.Params = p.parseParamSplit()

	p.expect(tvmtoken.ID(')'))
	p.expect(tvmtoken.ID('>'))

	ft.ResultAttrs = p.parseAttrSet()
	ft.Result = p.parseExpr()
	ft.Rng = rangeTo(begin, p)

	return ft
}

func (p *parser) parseAttrSet() tvmast.ParamAttr {
	var attrs tvmast.ParamAttr

	for {
		switch p.peek().ID {
		case tvmtoken.KwByval:
			p.accept()

			attrs |= tvmast.AttrByval
		case tvmtoken.KwInreg:
			p.accept()

			attrs |= tvmast.AttrInreg
		default:
			return attrs
		}
	}
}

// parseParamSplit parses "params [| params]" (spec §4.2's function_type and
// recursive-type parameter grammar): when no '|' follows the first list, that
// list is the ordinary parameters and there are no phantom ones — the common
// case for an everyday function. A leading bare '|' (an empty first list)
// writes phantom params explicitly as empty.
func (p *parser) parseParamSplit() (phantom, ordinary []tvmast.Param) {
	first := p.parseParamList()

	if p.peek().ID == tvmtoken.ID('|') {
		p.accept()

		return first, p.parseParamList()
	}

	return nil, first
}

func (p *parser) parseParamList() []tvmast.Param {
	if id := p.peek().ID; id == tvmtoken.ID(')') || id == tvmtoken.ID('|') {
		return nil
	}

	var params []tvmast.Param

	for {
		params = append(params, p.parseParam())

		if p.peek().ID != tvmtoken.ID(',') {
			break
		}

		p.accept()
	}

	return params
}

func (p *parser) parseParam() tvmast.Param {
	var name string

	if tok, ok := p.accept2(tvmtoken.Identifier, tvmtoken.ID(':')); ok {
		name = tok.Text
	}

	attrs := p.parseAttrSet()
	typ := p.parseParamType()

	return tvmast.Param{Name: name, Attrs: attrs, Type: typ}
}

// parseParamType parses one parameter's type expression at a precedence
// narrower than parseExpr's full ladder, stopping short of '|' and '='. A
// parameter list is itself terminated or split by a bare '|' (see
// parseParamSplit); if a param's type were parsed with the full ladder, a
// phantom parameter immediately followed by the split '|' would have that
// pipe misread as a bitwise-or continuing its type expression instead of
// ending the phantom list. Type expressions never legitimately need '|' or
// '=' at their own top level, so excluding those two rungs costs nothing.
func (p *parser) parseParamType() tvmast.Expr {
	return p.parseBitXor()
}

func (p *parser) parseBlocks() []*tvmast.Block {
	begin := p.peek().Range.Begin

	entry := &tvmast.Block{Stmts: p.parseStatements(), Rng: rangeTo(begin, p)}

	blocks := []*tvmast.Block{entry}

	for {
		id := p.peek().ID
		if id != tvmtoken.KwBlock && id != tvmtoken.KwLandingPad {
			break
		}

		blocks = append(blocks, p.parseLabeledBlock())
	}

	return blocks
}

func (p *parser) parseLabeledBlock() *tvmast.Block {
	begin := p.peek().Range.Begin
	landingPad := p.peek().ID == tvmtoken.KwLandingPad

	p.accept()

	nameTok := p.expectName()

	var dom string

	if p.peek().ID == tvmtoken.ID('(') {
		p.accept()

		dom = p.expectName().Text

		p.expect(tvmtoken.ID(')'))
	}

	p.expect(tvmtoken.ID(':'))

	return &tvmast.Block{
		Name:       nameTok.Text,
		Dominator:  dom,
		LandingPad: landingPad,
		Stmts:      p.parseStatements(),
		Rng:        rangeTo(begin, p),
	}
}

// expectName accepts a bareword block/dominator label, lexed as an Operator
// token since block labels (unlike top-level symbols) are not %-prefixed.
func (p *parser) expectName() tvmtoken.Token {
	tok := p.peek()
	if tok.ID != tvmtoken.Operator {
		panic(parseAbort{p.unexpected(tok, "a block label")})
	}

	return p.accept()
}

func (p *parser) parseStatements() []*tvmast.Stmt {
	var stmts []*tvmast.Stmt

	for {
		id := p.peek().ID
		if id == tvmtoken.KwBlock || id == tvmtoken.KwLandingPad || id == tvmtoken.ID('}') {
			return stmts
		}

		stmts = append(stmts, p.parseStatement())
	}
}

func (p *parser) parseStatement() *tvmast.Stmt {
	begin := p.peek().Range.Begin

	var name string

	if tok, ok := p.accept2(tvmtoken.Identifier, tvmtoken.ID('=')); ok {
		name = tok.Text
	}

	var e tvmast.Expr

	if p.peek().ID == tvmtoken.KwPhi {
		e = p.parsePhi()
	} else {
		e = p.parseStatementExpr()
	}

	p.expect(tvmtoken.ID(';'))

	return &tvmast.Stmt{Name: name, Expr: e, Rng: rangeTo(begin, p)}
}

// parseStatementExpr parses a statement's instruction form. Instruction
// mnemonics are written bareword-first with space-separated operands and no
// enclosing parens at the statement's outermost position (e.g. "return
// (add %a %b)", "goto loop", "unreachable"); nested calls still use the
// explicit "(operator operand...)" form of parseExpr's primary rung. This is
// the one place the grammar treats juxtaposition as application.
func (p *parser) parseStatementExpr() tvmast.Expr {
	head := p.parseExpr()

	if !p.canStartPrimary() {
		return head
	}

	var args []tvmast.Expr

	for p.canStartPrimary() {
		args = append(args, p.parseExpr())
	}

	return tvmast.Call{Op: head, Args: args, Rng: head.Range()}
}

func (p *parser) canStartPrimary() bool {
	switch p.peek().ID {
	case tvmtoken.Identifier, tvmtoken.Operator, tvmtoken.Number,
		tvmtoken.KwExists, tvmtoken.KwFunction, tvmtoken.KwPhi, tvmtoken.ID('('):
		return true
	default:
		return false
	}
}

func (p *parser) parsePhi() tvmast.PhiExpr {
	begin := p.peek().Range.Begin

	p.expect(tvmtoken.KwPhi)

	typ := p.parseExpr()

	p.expect(tvmtoken.ID(':'))

	var nodes []tvmast.PhiNode

	for {
		nodes = append(nodes, p.parsePhiNode())

		if p.peek().ID != tvmtoken.ID(',') {
			break
		}

		p.accept()
	}

	return tvmast.PhiExpr{Type: typ, Nodes: nodes, Rng: rangeTo(begin, p)}
}

func (p *parser) parsePhiNode() tvmast.PhiNode {
	var pred string

	if id := p.peek().ID; id == tvmtoken.Operator || id == tvmtoken.Identifier {
		tok := p.accept()

		if p.peek().ID == tvmtoken.ID('>') {
			pred = tok.Text
		} else {
			if err := p.k.Back(); err != nil {
				panic(parseAbort{err})
			}
		}
	}

	p.expect(tvmtoken.ID('>'))

	return tvmast.PhiNode{Pred: pred, Value: p.parseExpr()}
}

// --- expression grammar: a precedence ladder over =, |, ^, &, +/-, */ /,
// unary -/!, then primary; there is no postfix rung (spec §4.2). The TVM grammar has no
// surface syntax for comparisons: '<' and '>' are already claimed by
// parameter-list/result-type and phi-arrow punctuation, so comparisons are
// only ever written via their call-form mnemonics (cmp_eq, cmp_lt, ...).
// This is a recorded Open-Question resolution, see DESIGN.md.

func (p *parser) parseExpr() tvmast.Expr {
	return p.parseAssign()
}

func (p *parser) parseAssign() tvmast.Expr {
	left := p.parseBitOr()

	if p.peek().ID == tvmtoken.ID('=') {
		p.accept()

		right := p.parseAssign()

		return binOp("=", left, right)
	}

	return left
}

func (p *parser) parseBitOr() tvmast.Expr {
	left := p.parseBitXor()

	for p.peek().ID == tvmtoken.ID('|') {
		p.accept()

		left = binOp("|", left, p.parseBitXor())
	}

	return left
}

func (p *parser) parseBitXor() tvmast.Expr {
	left := p.parseBitAnd()

	for p.peek().ID == tvmtoken.ID('^') {
		p.accept()

		left = binOp("^", left, p.parseBitAnd())
	}

	return left
}

func (p *parser) parseBitAnd() tvmast.Expr {
	left := p.parseAdd()

	for p.peek().ID == tvmtoken.ID('&') {
		p.accept()

		left = binOp("&", left, p.parseAdd())
	}

	return left
}

func (p *parser) parseAdd() tvmast.Expr {
	left := p.parseMul()

	for {
		switch p.peek().ID {
		case tvmtoken.ID('+'):
			p.accept()
			left = binOp("+", left, p.parseMul())
		case tvmtoken.ID('-'):
			p.accept()
			left = binOp("-", left, p.parseMul())
		default:
			return left
		}
	}
}

func (p *parser) parseMul() tvmast.Expr {
	left := p.parseUnary()

	for p.peek().ID == tvmtoken.ID('*') || p.peek().ID == tvmtoken.ID('/') {
		op := "*"
		if p.peek().ID == tvmtoken.ID('/') {
			op = "/"
		}

		p.accept()

		left = binOp(op, left, p.parseUnary())
	}

	return left
}

func (p *parser) parseUnary() tvmast.Expr {
	switch p.peek().ID {
	case tvmtoken.ID('-'):
		tok := p.accept()

		return tvmast.Call{Op: tvmast.Operator{Name: "-", Rng: tok.Range}, Args: []tvmast.Expr{p.parseUnary()}, Rng: tok.Range}
	case tvmtoken.ID('!'):
		tok := p.accept()

		return tvmast.Call{Op: tvmast.Operator{Name: "!", Rng: tok.Range}, Args: []tvmast.Expr{p.parseUnary()}, Rng: tok.Range}
	default:
		return p.parsePrimary()
	}
}

func binOp(op string, l, r tvmast.Expr) tvmast.Expr {
	return tvmast.Call{Op: tvmast.Operator{Name: op, Rng: l.Range()}, Args: []tvmast.Expr{l, r}, Rng: l.Range()}
}

func (p *parser) parsePrimary() tvmast.Expr {
	tok := p.peek()

	switch tok.ID {
	case tvmtoken.Identifier:
		p.accept()
		return tvmast.NameRef{Name: tok.Text, Rng: tok.Range}
	case tvmtoken.Operator:
		p.accept()
		return tvmast.Operator{Name: tok.Text, Rng: tok.Range}
	case tvmtoken.Number:
		p.accept()
		return p.parseIntLit(tok)
	case tvmtoken.KwExists:
		p.accept()
		return tvmast.ExistsExpr{Inner: p.parseExpr(), Rng: tok.Range}
	case tvmtoken.KwPhi:
		return p.parsePhi()
	case tvmtoken.KwFunction:
		ft := p.parseFunctionType()
		return tvmast.FuncTypeLit{Type: ft, Rng: ft.Rng}
	case tvmtoken.ID('('):
		p.accept()

		op := p.parseExpr()

		var args []tvmast.Expr

		for p.peek().ID != tvmtoken.ID(')') {
			args = append(args, p.parseExpr())
		}

		p.expect(tvmtoken.ID(')'))

		return tvmast.Call{Op: op, Args: args, Rng: tok.Range}
	default:
		panic(parseAbort{p.unexpected(tok, "an expression")})
	}
}

func (p *parser) parseIntLit(tok tvmtoken.Token) tvmast.IntLit {
	width := int(tok.NumWidth)

	v, err := bigint.Parse(tok.NumDigits, tok.NumBase, width, tok.NumSigned, tok.NumNeg)
	if err != nil {
		panic(parseAbort{diag.Wrap(diag.LexError, tok.Range.Begin, err, "invalid integer literal")})
	}

	return tvmast.IntLit{Value: v, Signed: tok.NumSigned, Width: width, Rng: tok.Range}
}
