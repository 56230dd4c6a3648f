package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ardanlabs/ffi-extract/decl"
)

var intLiteralRe = regexp.MustCompile(`^(0[xX][0-9a-fA-F']+|0[bB][01']+|[0-9][0-9']*)([uU](?:ll|LL|l|L)?|(?:ll|LL|l|L)[uU]?)?$`)
var floatLiteralRe = regexp.MustCompile(`^((?:[0-9]+\.[0-9]*|\.[0-9]+)(?:[eE][+-]?[0-9]+)?|[0-9]+[eE][+-]?[0-9]+|0[xX][0-9a-fA-F]*\.?[0-9a-fA-F]*[pP][+-]?[0-9]+)([fFlL]?)$`)

type macroDef struct {
	name   string
	pos    decl.Position
	tokens []Token
}

type macroResult struct {
	v   value
	err error
}

// captureMacro records the body of an object-like macro for folding once
// the whole translation unit has been visited.
func (b *builder) captureMacro(c Cursor) {
	if !b.keep(c) || c.IsFunctionLikeMacro() {
		return
	}
	name := c.Spelling()
	toks := b.tu.Tokens(c)
	if len(toks) > 0 && toks[0].Spelling == name {
		toks = toks[1:]
	}
	body := make([]Token, 0, len(toks))
	for _, t := range toks {
		if t.Kind != TokenComment {
			body = append(body, t)
		}
	}

	def := macroDef{name: name, pos: b.position(c), tokens: body}
	if i, ok := b.macroIndex[name]; ok {
		b.macros[i] = def
		return
	}
	b.macroIndex[name] = len(b.macros)
	b.macros = append(b.macros, def)
}

// foldMacros evaluates every captured macro and returns the constant ones
// in definition order.
func (b *builder) foldMacros() []decl.Declaration {
	results := make(map[string]macroResult, len(b.macros))
	var out []decl.Declaration
	for _, m := range b.macros {
		v, err := b.evalMacro(m.name, results, map[string]bool{})
		if err != nil {
			b.logger.Debug("macro is not a constant", zap.String("name", m.name), zap.Error(err))
			continue
		}
		out = append(out, v.constant(m.name, m.pos))
	}
	return out
}

func (b *builder) evalMacro(name string, results map[string]macroResult, active map[string]bool) (value, error) {
	if r, ok := results[name]; ok {
		return r.v, r.err
	}
	i, ok := b.macroIndex[name]
	if !ok {
		return value{}, fmt.Errorf("unknown identifier %s", name)
	}
	if active[name] {
		return value{}, fmt.Errorf("macro %s refers to itself", name)
	}
	active[name] = true
	defer delete(active, name)

	e := &evaluator{b: b, toks: b.macros[i].tokens, results: results, active: active}
	v, err := e.parse()
	results[name] = macroResult{v: v, err: err}
	return v, err
}

type valueKind int

const (
	intKind valueKind = iota
	floatKind
	stringKind
	addressKind
)

// value is an intermediate result of constant folding. Integer bits are
// kept sign or zero extended to 64 bits according to prim.
type value struct {
	kind valueKind
	prim decl.PrimKind
	bits uint64
	f    float64
	s    string
	typ  decl.Type
}

func intValue(k decl.PrimKind, bits uint64) value {
	return value{kind: intKind, prim: k, bits: bits}
}

// enumerantValue types an enumerator the way C does: int when it fits.
func enumerantValue(signed int64, unsigned uint64, isUnsigned bool) value {
	switch {
	case isUnsigned && unsigned <= 1<<31-1:
		return intValue(decl.Int, unsigned)
	case isUnsigned:
		return intValue(decl.ULongLong, unsigned)
	case signed >= -1<<31 && signed <= 1<<31-1:
		return intValue(decl.Int, uint64(signed))
	default:
		return intValue(decl.LongLong, uint64(signed))
	}
}

func (v value) constant(name string, pos decl.Position) *decl.Constant {
	c := &decl.Constant{Info: decl.Info{Name: name, Pos: pos}}
	switch v.kind {
	case intKind:
		c.Type = decl.Prim(v.prim)
		if v.prim.IsUnsigned() {
			c.Value = v.bits
		} else {
			c.Value = int64(v.bits)
		}
	case floatKind:
		c.Type = decl.Prim(v.prim)
		if v.prim == decl.Float {
			c.Value = float32(v.f)
		} else {
			c.Value = v.f
		}
	case stringKind:
		c.Type = decl.PointerTo(decl.Prim(decl.Char))
		c.Value = v.s
	case addressKind:
		c.Type = v.typ
		c.Value = decl.Address(v.bits)
	}
	return c
}

type evaluator struct {
	b       *builder
	toks    []Token
	pos     int
	results map[string]macroResult
	active  map[string]bool
}

func (e *evaluator) parse() (value, error) {
	if len(e.toks) == 0 {
		return value{}, fmt.Errorf("empty macro")
	}
	v, err := e.ternary()
	if err != nil {
		return value{}, err
	}
	if e.pos != len(e.toks) {
		return value{}, fmt.Errorf("unexpected token %q", e.toks[e.pos].Spelling)
	}
	return v, nil
}

func (e *evaluator) peek() (Token, bool) {
	if e.pos >= len(e.toks) {
		return Token{}, false
	}
	return e.toks[e.pos], true
}

func (e *evaluator) peekPunct(s string) bool {
	t, ok := e.peek()
	return ok && t.Kind == TokenPunctuation && t.Spelling == s
}

func (e *evaluator) expect(s string) error {
	if !e.peekPunct(s) {
		return fmt.Errorf("expected %q", s)
	}
	e.pos++
	return nil
}

func (e *evaluator) ternary() (value, error) {
	cond, err := e.binary(1)
	if err != nil || !e.peekPunct("?") {
		return cond, err
	}
	e.pos++
	a, err := e.ternary()
	if err != nil {
		return value{}, err
	}
	if err := e.expect(":"); err != nil {
		return value{}, err
	}
	b, err := e.ternary()
	if err != nil {
		return value{}, err
	}
	t, err := cond.truth()
	if err != nil {
		return value{}, err
	}
	if a.kind == stringKind || b.kind == stringKind || a.kind == addressKind || b.kind == addressKind {
		if t {
			return a, nil
		}
		return b, nil
	}
	k := e.common(a, b)
	if t {
		return e.convert(a, k), nil
	}
	return e.convert(b, k), nil
}

var precedence = map[string]int{
	"||": 1,
	"&&": 2,
	"|":  3,
	"^":  4,
	"&":  5,
	"==": 6, "!=": 6,
	"<": 7, ">": 7, "<=": 7, ">=": 7,
	"<<": 8, ">>": 8,
	"+": 9, "-": 9,
	"*": 10, "/": 10, "%": 10,
}

func (e *evaluator) binary(minPrec int) (value, error) {
	lhs, err := e.unary()
	if err != nil {
		return value{}, err
	}
	for {
		t, ok := e.peek()
		if !ok || t.Kind != TokenPunctuation {
			return lhs, nil
		}
		p, ok := precedence[t.Spelling]
		if !ok || p < minPrec {
			return lhs, nil
		}
		e.pos++
		rhs, err := e.binary(p + 1)
		if err != nil {
			return value{}, err
		}
		if lhs, err = e.apply(t.Spelling, lhs, rhs); err != nil {
			return value{}, err
		}
	}
}

func (e *evaluator) unary() (value, error) {
	t, ok := e.peek()
	if !ok {
		return value{}, fmt.Errorf("unexpected end of expression")
	}
	if t.Kind == TokenPunctuation {
		switch t.Spelling {
		case "+", "-", "~", "!":
			e.pos++
			v, err := e.unary()
			if err != nil {
				return value{}, err
			}
			return e.applyUnary(t.Spelling, v)
		case "(":
			if typ, ok := e.castType(); ok {
				v, err := e.unary()
				if err != nil {
					return value{}, err
				}
				return e.cast(v, typ)
			}
			e.pos++
			v, err := e.ternary()
			if err != nil {
				return value{}, err
			}
			return v, e.expect(")")
		}
		return value{}, fmt.Errorf("unexpected %q", t.Spelling)
	}
	return e.primary()
}

func (e *evaluator) primary() (value, error) {
	t, _ := e.peek()
	e.pos++
	switch t.Kind {
	case TokenLiteral:
		if isStringLiteral(t.Spelling) {
			s, err := unquoteString(t.Spelling)
			if err != nil {
				return value{}, err
			}
			for {
				next, ok := e.peek()
				if !ok || next.Kind != TokenLiteral || !isStringLiteral(next.Spelling) {
					break
				}
				e.pos++
				more, err := unquoteString(next.Spelling)
				if err != nil {
					return value{}, err
				}
				s += more
			}
			return value{kind: stringKind, s: s}, nil
		}
		return e.b.literal(t.Spelling)
	case TokenIdentifier:
		if v, ok := e.b.enumerants[t.Spelling]; ok {
			return v, nil
		}
		return e.b.evalMacro(t.Spelling, e.results, e.active)
	}
	return value{}, fmt.Errorf("unexpected %q", t.Spelling)
}

var typeKeywords = map[string]bool{
	"void": true, "char": true, "short": true, "int": true, "long": true,
	"float": true, "double": true, "signed": true, "unsigned": true,
	"_Bool": true, "bool": true, "const": true, "volatile": true,
}

// castType consumes a parenthesized type name if one starts at the
// current position.
func (e *evaluator) castType() (decl.Type, bool) {
	var words []string
	var base decl.Type
	stars := 0
	i := e.pos + 1
	closed := false
scan:
	for ; i < len(e.toks); i++ {
		t := e.toks[i]
		switch {
		case t.Kind == TokenKeyword && typeKeywords[t.Spelling] && stars == 0:
			words = append(words, t.Spelling)
		case t.Kind == TokenIdentifier && base == nil && len(words) == 0 && stars == 0:
			typ, ok := e.b.typedefs[t.Spelling]
			if !ok {
				return nil, false
			}
			base = typ
		case t.Kind == TokenPunctuation && t.Spelling == "*":
			stars++
		case t.Kind == TokenPunctuation && t.Spelling == ")":
			closed = true
			break scan
		default:
			return nil, false
		}
	}
	if !closed {
		return nil, false
	}

	if base == nil {
		k, ok := primFromWords(words)
		if !ok {
			return nil, false
		}
		base = decl.Prim(k)
	}
	for range stars {
		base = decl.PointerTo(base)
	}
	e.pos = i + 1
	return base, true
}

func primFromWords(words []string) (decl.PrimKind, bool) {
	var signed, unsigned, short, char, void, boolean, float, double bool
	long := 0
	for _, w := range words {
		switch w {
		case "signed":
			signed = true
		case "unsigned":
			unsigned = true
		case "short":
			short = true
		case "long":
			long++
		case "char":
			char = true
		case "void":
			void = true
		case "_Bool", "bool":
			boolean = true
		case "float":
			float = true
		case "double":
			double = true
		}
	}
	switch {
	case void:
		return decl.Void, true
	case boolean:
		return decl.Bool, true
	case float:
		return decl.Float, true
	case double && long > 0:
		return decl.LongDouble, true
	case double:
		return decl.Double, true
	case char && unsigned:
		return decl.UChar, true
	case char && signed:
		return decl.SChar, true
	case char:
		return decl.Char, true
	case short && unsigned:
		return decl.UShort, true
	case short:
		return decl.Short, true
	case long >= 2 && unsigned:
		return decl.ULongLong, true
	case long >= 2:
		return decl.LongLong, true
	case long == 1 && unsigned:
		return decl.ULong, true
	case long == 1:
		return decl.Long, true
	case unsigned:
		return decl.UInt, true
	case len(words) > 0:
		return decl.Int, true
	}
	return 0, false
}

func (e *evaluator) cast(v value, t decl.Type) (value, error) {
	switch t := decl.Strip(t).(type) {
	case decl.Pointer:
		switch v.kind {
		case intKind:
			return value{kind: addressKind, bits: v.bits, typ: t}, nil
		case addressKind:
			v.typ = t
			return v, nil
		}
		return value{}, fmt.Errorf("cannot cast to a pointer")
	case decl.Primitive:
		if t.Kind == decl.Void || v.kind == stringKind {
			return value{}, fmt.Errorf("invalid cast to %s", t.Kind)
		}
		if v.kind == addressKind {
			v = intValue(decl.ULong, v.bits)
		}
		return e.convert(v, t.Kind), nil
	}
	return value{}, fmt.Errorf("unsupported cast")
}

func (b *builder) literal(s string) (value, error) {
	if strings.HasPrefix(s, "'") || strings.HasPrefix(s, "L'") || strings.HasPrefix(s, "u'") || strings.HasPrefix(s, "U'") {
		r, err := unquoteChar(s[strings.IndexByte(s, '\''):], s[0] == '\'')
		if err != nil {
			return value{}, err
		}
		return intValue(decl.Int, uint64(int64(r))), nil
	}
	if m := intLiteralRe.FindStringSubmatch(s); m != nil {
		return b.intLiteral(strings.ReplaceAll(m[1], "'", ""), strings.ToLower(m[2]))
	}
	if m := floatLiteralRe.FindStringSubmatch(s); m != nil {
		f, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return value{}, err
		}
		switch strings.ToLower(m[2]) {
		case "f":
			return value{kind: floatKind, prim: decl.Float, f: float64(float32(f))}, nil
		case "l":
			return value{kind: floatKind, prim: decl.LongDouble, f: f}, nil
		}
		return value{kind: floatKind, prim: decl.Double, f: f}, nil
	}
	return value{}, fmt.Errorf("unsupported literal %s", s)
}

func (b *builder) intLiteral(digits, suffix string) (value, error) {
	base := 10
	switch {
	case strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X"):
		base, digits = 16, digits[2:]
	case strings.HasPrefix(digits, "0b") || strings.HasPrefix(digits, "0B"):
		base, digits = 2, digits[2:]
	case len(digits) > 1 && digits[0] == '0':
		base, digits = 8, digits[1:]
	}
	n, err := strconv.ParseUint(digits, base, 64)
	if err != nil {
		return value{}, err
	}

	unsigned := strings.Contains(suffix, "u")
	long := strings.Count(suffix, "l")

	// Candidate types in the order C tries them.
	var candidates []decl.PrimKind
	switch {
	case long == 0 && !unsigned && base == 10:
		candidates = []decl.PrimKind{decl.Int, decl.Long, decl.LongLong}
	case long == 0 && !unsigned:
		candidates = []decl.PrimKind{decl.Int, decl.UInt, decl.Long, decl.ULong, decl.LongLong, decl.ULongLong}
	case long == 0:
		candidates = []decl.PrimKind{decl.UInt, decl.ULong, decl.ULongLong}
	case long == 1 && !unsigned && base == 10:
		candidates = []decl.PrimKind{decl.Long, decl.LongLong}
	case long == 1 && !unsigned:
		candidates = []decl.PrimKind{decl.Long, decl.ULong, decl.LongLong, decl.ULongLong}
	case long == 1:
		candidates = []decl.PrimKind{decl.ULong, decl.ULongLong}
	case !unsigned && base == 10:
		candidates = []decl.PrimKind{decl.LongLong}
	case !unsigned:
		candidates = []decl.PrimKind{decl.LongLong, decl.ULongLong}
	default:
		candidates = []decl.PrimKind{decl.ULongLong}
	}
	for _, k := range candidates {
		if b.fits(n, k) {
			return intValue(k, n), nil
		}
	}
	return intValue(decl.ULongLong, n), nil
}

func (b *builder) fits(n uint64, k decl.PrimKind) bool {
	w := b.model.Bits(k)
	if k.IsUnsigned() {
		return w >= 64 || n < 1<<w
	}
	return n < 1<<(w-1)
}

func isStringLiteral(s string) bool {
	for _, p := range []string{`"`, `u8"`, `L"`, `u"`, `U"`} {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// unquoteString decodes a narrow C string literal.
func unquoteString(s string) (string, error) {
	s = strings.TrimPrefix(s, "u8")
	if !strings.HasPrefix(s, `"`) {
		return "", fmt.Errorf("wide string literal %s", s)
	}
	if len(s) < 2 || !strings.HasSuffix(s, `"`) {
		return "", fmt.Errorf("malformed string literal %s", s)
	}
	return unescape(s[1 : len(s)-1])
}

// unquoteChar decodes a character literal. A narrow literal holding one
// byte is a plain char, which is signed; a wide one takes the byte as its
// code unit.
func unquoteChar(s string, narrow bool) (rune, error) {
	if len(s) < 3 || s[0] != '\'' || s[len(s)-1] != '\'' {
		return 0, fmt.Errorf("malformed character literal %s", s)
	}
	body, err := unescape(s[1 : len(s)-1])
	if err != nil {
		return 0, err
	}
	if len(body) == 1 {
		if narrow {
			return rune(int8(body[0])), nil
		}
		return rune(body[0]), nil
	}
	r := []rune(body)
	if len(r) != 1 {
		return 0, fmt.Errorf("multi-character literal %s", s)
	}
	return r[0], nil
}

// unescape handles C escapes. Octal escapes take one to three digits and
// hex escapes any number of digits, unlike Go.
func unescape(s string) (string, error) {
	var sb strings.Builder
	for i := 0; i < len(s); {
		if s[i] != '\\' || i+1 >= len(s) {
			sb.WriteByte(s[i])
			i++
			continue
		}
		c := s[i+1]
		switch {
		case c >= '0' && c <= '7':
			j := i + 1
			n := 0
			for ; j < len(s) && j < i+4 && s[j] >= '0' && s[j] <= '7'; j++ {
				n = n*8 + int(s[j]-'0')
			}
			sb.WriteByte(byte(n))
			i = j
		case c == 'x':
			j := i + 2
			for j < len(s) && strings.IndexByte("0123456789abcdefABCDEF", s[j]) >= 0 {
				j++
			}
			n, err := strconv.ParseUint(s[i+2:j], 16, 8)
			if err != nil {
				return "", fmt.Errorf("bad hex escape in %q", s)
			}
			sb.WriteByte(byte(n))
			i = j
		case c == '?' || c == '\'' || c == '"':
			sb.WriteByte(c)
			i += 2
		default:
			r, _, tail, err := strconv.UnquoteChar(s[i:], '"')
			if err != nil {
				return "", fmt.Errorf("bad escape in %q", s)
			}
			sb.WriteRune(r)
			i = len(s) - len(tail)
		}
	}
	return sb.String(), nil
}
