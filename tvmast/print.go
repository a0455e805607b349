package tvmast

import (
	"fmt"
	"strings"
)

// Print renders a Module back to the textual form of spec §6.1. It exists
// to support the round-trip law of spec §8 (parse → print → parse yields a
// structurally equal AST) without requiring an external pretty-printer.
func Print(m *Module) string {
	var b strings.Builder

	for _, el := range m.Elements {
		fmt.Fprintf(&b, "%%%s = ", el.topLevelName())
		printTopLevel(&b, el)
		b.WriteString(";\n")
	}

	return b.String()
}

func printTopLevel(b *strings.Builder, el TopLevel) {
	switch t := el.(type) {
	case *Function:
		if t.Linkage != Private {
			b.WriteString(string(t.Linkage))
			b.WriteByte(' ')
		}

		printFunctionType(b, t.Type)

		if t.Blocks != nil {
			b.WriteString(" {\n")

			for _, blk := range t.Blocks {
				printBlock(b, blk)
			}

			b.WriteString("}")
		}
	case *GlobalVar:
		b.WriteString("global ")

		if t.Const {
			b.WriteString("const ")
		}

		if t.Linkage != Private {
			b.WriteString(string(t.Linkage))
			b.WriteByte(' ')
		}

		printExpr(b, t.Type)

		if t.Init != nil {
			b.WriteByte(' ')
			printExpr(b, t.Init)
		}
	case *GlobalDefine:
		b.WriteString("define ")
		printExpr(b, t.Expr)
	case *RecursiveType:
		b.WriteString("recursive (")
		printParamSplit(b, t.Phantom, t.Params)
		b.WriteString(") > ")
		printExpr(b, t.Body)
	}
}

func printFunctionType(b *strings.Builder, ft *FunctionType) {
	b.WriteString("function ")

	if ft.CC != "" {
		b.WriteString("cc_" + ft.CC + " ")
	}

	if ft.Sret {
		b.WriteString("sret ")
	}

	b.WriteByte('(')
	printParamSplit(b, ft.Phantom, ft.Params)
	b.WriteString(") > ")

	if ft.ResultAttrs&AttrByval != 0 {
		b.WriteString("byval ")
	}

	if ft.ResultAttrs&AttrInreg != 0 {
		b.WriteString("inreg ")
	}

	printExpr(b, ft.Result)
}

func printParams(b *strings.Builder, params []Param) {
	for i, p := range params {
		if i > 0 {
			b.WriteString(", ")
		}

		if p.Name != "" {
			fmt.Fprintf(b, "%%%s:", p.Name)
		}

		if p.Attrs&AttrByval != 0 {
			b.WriteString("byval ")
		}

		if p.Attrs&AttrInreg != 0 {
			b.WriteString("inreg ")
		}

		printExpr(b, p.Type)
	}
}

// printParamSplit renders "phantom | ordinary", omitting the pipe entirely
// when there are no phantom parameters — the common case — so that a plain
// function signature round-trips without growing a spurious empty phantom
// list.
func printParamSplit(b *strings.Builder, phantom, ordinary []Param) {
	if len(phantom) > 0 {
		printParams(b, phantom)
		b.WriteString(" | ")
	}

	printParams(b, ordinary)
}

func printBlock(b *strings.Builder, blk *Block) {
	if blk.Name != "" {
		kw := "block"
		if blk.LandingPad {
			kw = "landing_pad"
		}

		fmt.Fprintf(b, "%s %s", kw, blk.Name)

		if blk.Dominator != "" {
			fmt.Fprintf(b, " (%s)", blk.Dominator)
		}

		b.WriteString(":\n")
	}

	for _, s := range blk.Stmts {
		b.WriteString("  ")

		if s.Name != "" {
			fmt.Fprintf(b, "%%%s = ", s.Name)
		}

		printExpr(b, s.Expr)
		b.WriteString(";\n")
	}
}

func printExpr(b *strings.Builder, e Expr) {
	switch t := e.(type) {
	case NameRef:
		fmt.Fprintf(b, "%%%s", t.Name)
	case Operator:
		b.WriteString(t.Name)
	case Call:
		b.WriteByte('(')
		printExpr(b, t.Op)

		for _, a := range t.Args {
			b.WriteByte(' ')
			printExpr(b, a)
		}

		b.WriteByte(')')
	case IntLit:
		b.WriteByte('#')

		if !t.Signed {
			b.WriteByte('u')
		}

		b.WriteByte(widthLetter(t.Width))

		if t.Value != nil {
			digits := t.Value.String()
			if strings.HasPrefix(digits, "-") {
				b.WriteByte('-')
				digits = digits[1:]
			}

			b.WriteString(digits)
		}
	case FuncTypeLit:
		printFunctionType(b, t.Type)
	case ExistsExpr:
		b.WriteString("exists ")
		printExpr(b, t.Inner)
	case PhiExpr:
		b.WriteString("phi ")
		printExpr(b, t.Type)
		b.WriteString(" :")

		for i, n := range t.Nodes {
			if i > 0 {
				b.WriteByte(',')
			}

			b.WriteByte(' ')

			if n.Pred != "" {
				b.WriteString(n.Pred)
			}

			b.WriteString(" > ")
			printExpr(b, n.Value)
		}
	}
}

func widthLetter(width int) byte {
	switch width {
	case 8:
		return 'b'
	case 16:
		return 's'
	case 32:
		return 'i'
	case 64:
		return 'l'
	case 128:
		return 'q'
	default:
		return 'p'
	}
}
