// Package surfacelex implements the surface-language tokenizer: the second
// consumer of the shared lexkernel, producing identifiers, numbers,
// compound operators and whole bracket groups captured as single tokens
// (spec §4.1). The surface language's parser and semantic analyzer are out
// of scope; only its lexer is specified here.
package surfacelex

import "github.com/tvmlang/tvm/internal/position"

// ID identifies a surface token kind. Values below 256 are literal ASCII
// bytes (single-character operators not covered by a compound form).
type ID int

const idBase ID = 256

const EOF ID = -1

const (
	Identifier ID = idBase + iota
	Number
	BracketGroup

	OpEq     // ==
	OpNeq    // !=
	OpLe     // <=
	OpGe     // >=
	OpArrow  // ->
	OpFatArrow // =>
	OpDashColon // -:
	OpDashAmp   // -&
	OpDashAmpAmp // -&&
	OpColonColon // ::
	OpColonAmp   // :&
	OpColonAmpAmp // :&&
	OpColonGt     // :>
)

var compoundOperators = []struct {
	text string
	id   ID
}{
	// Longest-first so a greedy scan never stops early on a shared prefix.
	{"-&&", OpDashAmpAmp},
	{":&&", OpColonAmpAmp},
	{"==", OpEq},
	{"!=", OpNeq},
	{"<=", OpLe},
	{">=", OpGe},
	{"->", OpArrow},
	{"=>", OpFatArrow},
	{"-:", OpDashColon},
	{"-&", OpDashAmp},
	{"::", OpColonColon},
	{":&", OpColonAmp},
	{":>", OpColonGt},
}

// Token is a single lexed surface-language token.
type Token struct {
	ID    ID
	Range position.Range
	Text  string // lexeme for Identifier/Number/compound operators

	// GroupOpen/GroupInner are only meaningful when ID == BracketGroup.
	GroupOpen  byte
	GroupInner string
}

// Name renders a human name for diagnostics.
func (t Token) Name() string {
	switch {
	case t.ID == EOF:
		return "end of input"
	case t.ID < idBase:
		return "'" + string(rune(t.ID)) + "'"
	case t.ID == Identifier:
		return "identifier " + t.Text
	case t.ID == Number:
		return "number " + t.Text
	case t.ID == BracketGroup:
		return "bracket group"
	default:
		return "operator " + t.Text
	}
}
