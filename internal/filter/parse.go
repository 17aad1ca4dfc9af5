package filter

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/roach88/haybind/internal/haystack"
)

// ParseError reports a syntax error with the byte offset where it occurred.
type ParseError struct {
	Filter string
	Pos    int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("filter %q: %s at offset %d", e.Filter, e.Msg, e.Pos)
}

// Parse turns filter text into a Predicate.
//
// Grammar:
//
//	filter  := or
//	or      := and ("or" and)*
//	and     := term ("and" term)*
//	term    := "(" filter ")" | "not" path | path (op literal)?
//	path    := name ("->" name)*
//	literal := bool | ref | str | number
func Parse(text string) (Predicate, error) {
	p := &parser{src: text}
	p.next()
	if p.tok.kind == tokEOF {
		return nil, p.errorf("empty filter")
	}
	pred, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.err != nil {
		return nil, p.err
	}
	if p.tok.kind != tokEOF {
		return nil, p.errorf("unexpected %q", p.tok.text)
	}
	return pred, nil
}

// MustParse is like Parse but panics on error.
// Use only in tests or with constant filters.
func MustParse(text string) Predicate {
	pred, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return pred
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokName
	tokOp
	tokArrow
	tokLParen
	tokRParen
	tokStr
	tokRef
	tokNumber
)

type token struct {
	kind tokKind
	text string
	pos  int
	val  haystack.Value
}

type parser struct {
	src string
	off int
	tok token
	err error
}

func (p *parser) errorf(format string, args ...any) error {
	if p.err != nil {
		return p.err
	}
	return &ParseError{Filter: p.src, Pos: p.tok.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parseOr() (Predicate, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	preds := []Predicate{first}
	for p.isKeyword("or") {
		p.next()
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		preds = append(preds, next)
	}
	if len(preds) == 1 {
		return first, nil
	}
	return Or{Predicates: preds}, nil
}

func (p *parser) parseAnd() (Predicate, error) {
	first, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	preds := []Predicate{first}
	for p.isKeyword("and") {
		p.next()
		next, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		preds = append(preds, next)
	}
	if len(preds) == 1 {
		return first, nil
	}
	return And{Predicates: preds}, nil
}

func (p *parser) parseTerm() (Predicate, error) {
	if p.err != nil {
		return nil, p.err
	}
	switch {
	case p.tok.kind == tokLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, p.errorf("expected )")
		}
		p.next()
		return inner, nil
	case p.isKeyword("not"):
		p.next()
		path, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		return Missing{Path: path}, nil
	}

	path, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokOp {
		return Has{Path: path}, nil
	}
	op := Op(p.tok.text)
	p.next()
	val, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	return Cmp{Path: path, Op: op, Value: val}, nil
}

func (p *parser) parsePath() (Path, error) {
	if p.tok.kind != tokName || isReserved(p.tok.text) {
		return nil, p.errorf("expected tag name")
	}
	path := Path{p.tok.text}
	p.next()
	for p.tok.kind == tokArrow {
		p.next()
		if p.tok.kind != tokName {
			return nil, p.errorf("expected tag name after ->")
		}
		path = append(path, p.tok.text)
		p.next()
	}
	return path, nil
}

func (p *parser) parseLiteral() (haystack.Value, error) {
	if p.err != nil {
		return nil, p.err
	}
	tok := p.tok
	switch tok.kind {
	case tokStr, tokRef, tokNumber:
		p.next()
		return tok.val, nil
	case tokName:
		switch tok.text {
		case "true":
			p.next()
			return haystack.Bool(true), nil
		case "false":
			p.next()
			return haystack.Bool(false), nil
		}
	}
	return nil, p.errorf("expected literal")
}

func (p *parser) isKeyword(kw string) bool {
	return p.tok.kind == tokName && p.tok.text == kw
}

func isReserved(name string) bool {
	switch name {
	case "and", "or", "not", "true", "false":
		return true
	}
	return false
}

// next advances to the following token. Lexing errors are parked in p.err
// and surface on the next parse step.
func (p *parser) next() {
	for p.off < len(p.src) && isSpace(p.src[p.off]) {
		p.off++
	}
	start := p.off
	if p.off >= len(p.src) {
		p.tok = token{kind: tokEOF, pos: start}
		return
	}
	c := p.src[p.off]
	switch {
	case c == '(':
		p.off++
		p.tok = token{kind: tokLParen, text: "(", pos: start}
	case c == ')':
		p.off++
		p.tok = token{kind: tokRParen, text: ")", pos: start}
	case strings.HasPrefix(p.src[p.off:], "->"):
		p.off += 2
		p.tok = token{kind: tokArrow, text: "->", pos: start}
	case c == '=' || c == '!' || c == '<' || c == '>':
		p.lexOp(start)
	case c == '"':
		p.lexStr(start)
	case c == '@':
		p.lexRef(start)
	case c == '-' || (c >= '0' && c <= '9'):
		p.lexNumber(start)
	case isNameStart(c):
		for p.off < len(p.src) && isNamePart(p.src[p.off]) {
			p.off++
		}
		p.tok = token{kind: tokName, text: p.src[start:p.off], pos: start}
	default:
		p.off++
		p.tok = token{kind: tokEOF, pos: start}
		p.err = &ParseError{Filter: p.src, Pos: start, Msg: fmt.Sprintf("unexpected character %q", c)}
	}
}

func (p *parser) lexOp(start int) {
	rest := p.src[p.off:]
	for _, op := range []Op{OpEq, OpNe, OpLe, OpGe, OpLt, OpGt} {
		if strings.HasPrefix(rest, string(op)) {
			p.off += len(op)
			p.tok = token{kind: tokOp, text: string(op), pos: start}
			return
		}
	}
	p.off++
	p.tok = token{kind: tokEOF, pos: start}
	p.err = &ParseError{Filter: p.src, Pos: start, Msg: "bad operator"}
}

func (p *parser) lexStr(start int) {
	var b strings.Builder
	p.off++
	for p.off < len(p.src) {
		c := p.src[p.off]
		switch c {
		case '"':
			p.off++
			p.tok = token{kind: tokStr, text: p.src[start:p.off], pos: start, val: haystack.Str(b.String())}
			return
		case '\\':
			if p.off+1 >= len(p.src) {
				p.off = len(p.src)
				continue
			}
			p.off++
			switch p.src[p.off] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(p.src[p.off])
			}
			p.off++
		default:
			r, size := utf8.DecodeRuneInString(p.src[p.off:])
			b.WriteRune(r)
			p.off += size
		}
	}
	p.tok = token{kind: tokEOF, pos: start}
	p.err = &ParseError{Filter: p.src, Pos: start, Msg: "unterminated string"}
}

func (p *parser) lexRef(start int) {
	p.off++
	for p.off < len(p.src) && isRefChar(p.src[p.off]) {
		p.off++
	}
	id := p.src[start+1 : p.off]
	if id == "" {
		p.tok = token{kind: tokEOF, pos: start}
		p.err = &ParseError{Filter: p.src, Pos: start, Msg: "empty ref"}
		return
	}
	p.tok = token{kind: tokRef, text: p.src[start:p.off], pos: start, val: haystack.Ref{ID: id}}
}

// lexNumber consumes a number and any glued unit (72.5°F, 10kW, 5%).
func (p *parser) lexNumber(start int) {
	end := p.off
	for end < len(p.src) && !isSpace(p.src[end]) && p.src[end] != ')' {
		end++
	}
	n, err := haystack.ParseNumber(p.src[p.off:end])
	if err != nil {
		p.off = end
		p.tok = token{kind: tokEOF, pos: start}
		p.err = &ParseError{Filter: p.src, Pos: start, Msg: err.Error()}
		return
	}
	p.off = end
	p.tok = token{kind: tokNumber, text: p.src[start:end], pos: start, val: n}
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

func isNameStart(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' }

func isNamePart(c byte) bool { return isNameStart(c) || c >= '0' && c <= '9' }

func isRefChar(c byte) bool {
	return isNamePart(c) || c == ':' || c == '-' || c == '.' || c == '~'
}
