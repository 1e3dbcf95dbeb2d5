package parser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danmuck/mantra/internal/rules"
	"github.com/danmuck/mantra/internal/term"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const Version = 0

var (
	ErrUnbalanced         = errors.New("parser: unbalanced brackets")
	ErrMissingVersion     = errors.New("parser: missing version header")
	ErrUnsupportedVersion = errors.New("parser: unsupported version")
	ErrMissingTerminator  = errors.New("parser: missing ';'")
	ErrInvalidRuleName    = errors.New("parser: rule name must be a literal")
)

var (
	arrow     = term.Intern("=>")
	terminal  = term.Intern(";")
	versionKw = term.Intern("version")
)

// item is a top-level term with the line it started on.
type item struct {
	term term.Term
	line int
}

// Parse reads a term sequence. A ';' outside brackets becomes the literal ";".
func Parse(src string) ([]term.Term, error) {
	items, err := parseItems(src)
	if err != nil {
		return nil, err
	}
	out := make([]term.Term, 0, len(items))
	for _, it := range items {
		out = append(out, it.term)
	}
	return out, nil
}

func parseItems(src string) ([]item, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	var items []item
	for !p.done() {
		tok := p.toks[p.pos]
		if tok.kind == tokEnd {
			p.pos++
			items = append(items, item{term: term.Literal(terminal), line: tok.line})
			continue
		}
		t, err := p.term()
		if err != nil {
			return nil, err
		}
		items = append(items, item{term: t, line: tok.line})
	}
	return items, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) done() bool {
	return p.pos >= len(p.toks)
}

func (p *parser) term() (term.Term, error) {
	tok := p.toks[p.pos]
	p.pos++
	switch tok.kind {
	case tokWord:
		return word(tok.text), nil
	case tokString:
		return stringList(tok.text), nil
	case tokEnd:
		return term.Literal(terminal), nil
	case tokClose:
		return term.Term{}, fmt.Errorf("%w: line %d: unexpected %q", ErrUnbalanced, tok.line, tok.text)
	case tokOpen:
		items := make([]term.Term, 0, 4)
		for {
			if p.done() {
				return term.Term{}, fmt.Errorf("%w: line %d: %q never closed", ErrUnbalanced, tok.line, tok.text)
			}
			next := p.toks[p.pos]
			if next.kind == tokClose {
				p.pos++
				if []rune(next.text)[0] != tok.closer {
					return term.Term{}, fmt.Errorf("%w: line %d: %q closes %q", ErrUnbalanced, next.line, next.text, tok.text)
				}
				return term.List(items...), nil
			}
			t, err := p.term()
			if err != nil {
				return term.Term{}, err
			}
			items = append(items, t)
		}
	}
	return term.Term{}, fmt.Errorf("parser: line %d: unknown token %q", tok.line, tok.text)
}

func word(text string) term.Term {
	if looksNumeric(text) {
		if d, err := decimal.NewFromString(text); err == nil {
			return term.Number(d)
		}
	}
	return term.Lit(text)
}

func looksNumeric(text string) bool {
	if text == "" {
		return false
	}
	s := text
	if s[0] == '-' || s[0] == '+' {
		s = s[1:]
	}
	if s != "" && s[0] == '.' {
		s = s[1:]
	}
	return s != "" && s[0] >= '0' && s[0] <= '9'
}

func stringList(text string) term.Term {
	items := make([]term.Term, 0, len(text))
	for _, r := range text {
		items = append(items, term.Lit(string(r)))
	}
	return term.List(items...)
}

// ParseModule parses a rule source file. Header errors and unterminated
// strings abort the file. Bad declarations, including unbalanced brackets, are
// returned as diagnostics and skipped up to the next ';'.
func ParseModule(name, src string) (*rules.Module, []error, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, nil, err
	}
	if err := checkHeader(toks); err != nil {
		return nil, nil, err
	}

	m := rules.NewModule(name)
	decls, diags := splitDecls(toks[2:])
	for _, d := range decls {
		if !d.terminated {
			diags = append(diags, fmt.Errorf("%w: line %d: rule %s", ErrMissingTerminator, d.items[0].line, d.items[0].term))
			continue
		}
		if err := declare(m, d.items); err != nil {
			diags = append(diags, err)
		}
	}
	for _, d := range diags {
		log.Warn().Str("module", name).Err(d).Msg("parser.ParseModule skipped declaration")
	}
	return m, diags, nil
}

func checkHeader(toks []token) error {
	if len(toks) < 2 || toks[0].kind != tokWord || toks[0].text != versionKw.Name() {
		return ErrMissingVersion
	}
	if toks[1].kind != tokWord {
		return fmt.Errorf("%w: version is %q", ErrMissingVersion, toks[1].text)
	}
	v, ok := word(toks[1].text).Decimal()
	if !ok {
		return fmt.Errorf("%w: version is %q", ErrMissingVersion, toks[1].text)
	}
	if !v.Equal(decimal.NewFromInt(Version)) {
		return fmt.Errorf("%w: %s, supported %d", ErrUnsupportedVersion, v, Version)
	}
	return nil
}

type decl struct {
	items      []item
	terminated bool
}

// splitDecls groups top-level terms into ';' terminated declarations. A term
// that fails to parse drops its declaration and resumes after the first ';'
// following the declaration's start, bracketed or not.
func splitDecls(toks []token) ([]decl, []error) {
	p := &parser{toks: toks}
	var (
		decls []decl
		diags []error
		cur   []item
	)
	start := 0
	for !p.done() {
		tok := p.toks[p.pos]
		if tok.kind == tokEnd {
			p.pos++
			if len(cur) > 0 {
				decls = append(decls, decl{items: cur, terminated: true})
			}
			cur, start = nil, p.pos
			continue
		}
		t, err := p.term()
		if err != nil {
			diags = append(diags, err)
			p.pos = nextEnd(toks, start) + 1
			cur, start = nil, p.pos
			continue
		}
		cur = append(cur, item{term: t, line: tok.line})
	}
	if len(cur) > 0 {
		decls = append(decls, decl{items: cur})
	}
	return decls, diags
}

func nextEnd(toks []token, from int) int {
	for i := from; i < len(toks); i++ {
		if toks[i].kind == tokEnd {
			return i
		}
	}
	return len(toks)
}

func declare(m *rules.Module, decl []item) error {
	head := decl[0]
	sym, ok := head.term.Symbol()
	if !ok {
		return fmt.Errorf("%w: line %d: got %s", ErrInvalidRuleName, head.line, head.term)
	}

	terms := make([]term.Term, 0, len(decl)-1)
	arrowAt := -1
	for _, it := range decl[1:] {
		if it.term.Is(arrow) {
			if arrowAt >= 0 {
				// two arrows means the previous declaration lost its ';'
				return fmt.Errorf("%w: line %d: rule %s", ErrMissingTerminator, head.line, sym)
			}
			arrowAt = len(terms)
			continue
		}
		terms = append(terms, it.term)
	}

	var c rules.Clause
	if arrowAt >= 0 {
		c.Pattern = terms[:arrowAt:arrowAt]
		if body := terms[arrowAt:]; len(body) > 0 {
			c.Body = body
		}
	} else if len(terms) > 0 {
		c.Body = terms
	}
	if err := m.AddClause(sym, c); err != nil {
		return fmt.Errorf("line %d: %w", head.line, err)
	}
	return nil
}

// LoadFile parses the module at path. The module is named after the cleaned path.
func LoadFile(path string) (*rules.Module, []error, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return ParseModule(filepath.Clean(path), string(src))
}
