package query

import (
	"fmt"
	"strings"

	"github.com/exif-turbo/exifturbo/internal/errors"
	"github.com/exif-turbo/exifturbo/internal/store"
)

const extensionColumn = store.ExtensionColumn

// Parse parses a query. A blank query returns a nil Node and no error,
// which Search treats as "everything". Errors are *errors.QuerySyntaxError.
func Parse(q string) (Node, error) {
	if strings.TrimSpace(q) == "" {
		return nil, nil
	}
	toks, err := lex(q)
	if err != nil {
		return nil, err
	}

	p := &parser{q: q, toks: toks}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		if t.kind == tokRParen {
			return nil, p.errorf(t.pos, "unbalanced )")
		}
		return nil, p.errorf(t.pos, "unexpected %s", t.kind)
	}
	return n, nil
}

type parser struct {
	q    string
	toks []token
	i    int
	last *token
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	p.last = &p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) errorf(pos int, format string, args ...any) error {
	return errors.NewQuerySyntaxError(p.q, pos, fmt.Sprintf(format, args...))
}

// or := and ("OR" and)*
func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = Or{Left: left, Right: right}
	}
	return left, nil
}

// and := not (["AND"] not)*
func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().kind {
		case tokAnd:
			p.next()
		case tokWord, tokPhrase, tokLParen:
		default:
			return left, nil
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = And{Left: left, Right: right}
	}
}

// not := ["NOT"] atom ("NOT" atom)*
func (p *parser) parseNot() (Node, error) {
	var left Node
	if p.peek().kind == tokNot {
		p.next()
		right, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		left = Not{Right: right}
	} else {
		atom, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		left = atom
	}
	for p.peek().kind == tokNot {
		p.next()
		right, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		left = Not{Left: left, Right: right}
	}
	return left, nil
}

// atom := "(" or ")" | [ident ":"] (WORD | WORD "*" | phrase)
func (p *parser) parseAtom() (Node, error) {
	prev := p.last
	t := p.next()
	switch t.kind {
	case tokWord:
		return p.word(t)
	case tokPhrase:
		return p.phrase(t)
	case tokLParen:
		if p.peek().kind == tokRParen {
			return nil, p.errorf(t.pos, "empty parentheses")
		}
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, p.errorf(t.pos, "unbalanced (")
		}
		p.next()
		return n, nil
	case tokRParen:
		return nil, p.errorf(t.pos, "unbalanced )")
	case tokEOF:
		if prev != nil && prev.kind.isOperator() {
			return nil, p.errorf(prev.pos, "%s needs a term after it", prev.kind)
		}
		return nil, p.errorf(t.pos, "expected a term")
	default:
		return nil, p.errorf(t.pos, "%s needs a term before it", t.kind)
	}
}

func (p *parser) column(t token) (string, error) {
	if t.column == "" {
		return "", nil
	}
	c, ok := store.LookupColumn(t.column)
	if !ok {
		return "", errors.NewUnknownColumnError(p.q, t.pos, t.column)
	}
	return c.Name, nil
}

func (p *parser) word(t token) (Node, error) {
	col, err := p.column(t)
	if err != nil {
		return nil, err
	}

	text, prefix := strings.CutSuffix(t.text, "*")
	if prefix && (text == "" || text == "*") {
		return nil, p.errorf(t.valPos, "* needs at least one character before it")
	}

	if ext, ok := strings.CutPrefix(text, "*."); ok {
		if col != "" && col != "path" {
			return nil, p.errorf(t.valPos, "*.ext matches file extensions and works only unscoped or with path:")
		}
		toks := store.Tokenize(ext)
		if len(toks) != 1 || strings.Contains(ext, "*") {
			return nil, p.errorf(t.valPos, "expected a single extension after *.")
		}
		return Term{Column: extensionColumn, Text: toks[0], Prefix: prefix}, nil
	}

	if strings.HasPrefix(text, "*") {
		return nil, p.errorf(t.valPos, "a leading * works only as *.ext")
	}
	if star := strings.IndexByte(text, '*'); star >= 0 {
		return nil, p.errorf(t.valPos+star, "wildcard * is only allowed at the end of a term")
	}
	if len(store.Tokenize(text)) == 0 {
		return nil, p.errorf(t.valPos, "term %q has no searchable characters", text)
	}
	return Term{Column: col, Text: text, Prefix: prefix}, nil
}

func (p *parser) phrase(t token) (Node, error) {
	col, err := p.column(t)
	if err != nil {
		return nil, err
	}
	if len(store.Tokenize(t.text)) == 0 {
		return nil, p.errorf(t.valPos, "empty phrase")
	}
	return Phrase{Column: col, Text: t.text}, nil
}
