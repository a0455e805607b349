// Package tvmtoken implements the TVM textual tokenizer: the first
// language-specific callback plugged into the shared lexkernel (§4.1 of the
// specification this toolchain implements).
package tvmtoken

import "github.com/tvmlang/tvm/internal/position"

// ID identifies a token kind. Values below 256 are literal ASCII bytes;
// values at or above idBase name keywords, operators, identifiers, numbers.
type ID int

const idBase ID = 256

// EOF is returned once the input is exhausted.
const EOF ID = -1

const (
	Identifier ID = idBase + iota // %name
	Number                       // #... literal
	Operator                     // bareword that isn't a keyword, e.g. "add"

	KwGlobal
	KwConst
	KwDefine
	KwRecursive
	KwFunction
	KwCCC
	KwSret
	KwBlock
	KwLandingPad
	KwPhi
	KwLocal
	KwPrivate
	KwOdr
	KwExport
	KwImport
	KwByval
	KwInreg
	KwExists
)

// keywords is the sorted table of the 18 TVM keywords; kept in sorted order
// so lookups can binary-search it, per spec §4.1.
var keywords = []struct {
	name string
	id   ID
}{
	{"block", KwBlock},
	{"byval", KwByval},
	{"cc_c", KwCCC},
	{"const", KwConst},
	{"define", KwDefine},
	{"exists", KwExists},
	{"export", KwExport},
	{"function", KwFunction},
	{"global", KwGlobal},
	{"import", KwImport},
	{"inreg", KwInreg},
	{"landing_pad", KwLandingPad},
	{"local", KwLocal},
	{"odr", KwOdr},
	{"phi", KwPhi},
	{"private", KwPrivate},
	{"recursive", KwRecursive},
	{"sret", KwSret},
}

func lookupKeyword(name string) (ID, bool) {
	lo, hi := 0, len(keywords)

	for lo < hi {
		mid := (lo + hi) / 2

		switch {
		case keywords[mid].name == name:
			return keywords[mid].id, true
		case keywords[mid].name < name:
			lo = mid + 1
		default:
			hi = mid
		}
	}

	return 0, false
}

// Width names a literal's declared bit width, per the b/s/i/l/q/p letters of
// §4.1.
type Width int

const (
	Width8 Width = 8
	Width16 Width = 16
	Width32 Width = 32
	Width64 Width = 64
	Width128 Width = 128
	WidthIntptr Width = -1 // platform pointer width; resolved by the target
)

var widthLetters = map[byte]Width{
	'b': Width8,
	's': Width16,
	'i': Width32,
	'l': Width64,
	'q': Width128,
	'p': WidthIntptr,
}

// Token is a single lexed TVM token.
type Token struct {
	ID    ID
	Range position.Range

	// Text carries the lexeme for Identifier (name, without the '%'),
	// Operator (bareword) and keyword tokens (the matched keyword text).
	Text string

	// The following fields are only meaningful when ID == Number.
	NumSigned bool
	NumWidth  Width
	NumBase   int
	NumDigits string // digits as written, base NumBase, sign already stripped
	NumNeg    bool
}

// Name returns a human name for diagnostics, mirroring the callback
// contract of §4.1 ("error_name(token)").
func (t Token) Name() string {
	switch {
	case t.ID == EOF:
		return "end of input"
	case t.ID < idBase:
		return "'" + string(rune(t.ID)) + "'"
	case t.ID == Identifier:
		return "identifier %" + t.Text
	case t.ID == Number:
		return "number literal"
	case t.ID == Operator:
		return "operator " + t.Text
	default:
		return "keyword " + t.Text
	}
}
