// Package query parses the search syntax into an AST and evaluates it
// against the index store.
//
// Syntax, lowest precedence first:
//
//	a OR b           either side
//	a AND b, a b     both sides (juxtaposition is AND)
//	a NOT b          a without b; a leading NOT b is everything without b
//	(a OR b) c       grouping
//	make:canon       column-scoped term; column names ignore case
//	"red car"        exact phrase, tokens adjacent and in order
//	cano*            prefix of the last token
//	*.jpg            file extension
//
// Operators are recognized in upper case only, so "and" is a search term.
package query

import (
	"slices"
	"strconv"
)

// Node is an immutable query tree node.
type Node interface {
	// String renders the node in canonical, fully parenthesized form.
	String() string
	node()
}

// Term matches one bare word. Text may tokenize to several tokens
// ("IMG_0042"), which must then appear adjacent. An empty Column means
// any column.
type Term struct {
	Column string
	Text   string
	Prefix bool
}

// Phrase matches an exact token sequence.
type Phrase struct {
	Column string
	Text   string
}

// And matches documents matching both sides.
type And struct {
	Left, Right Node
}

// Or matches documents matching either side.
type Or struct {
	Left, Right Node
}

// Not matches Left without Right. A nil Left stands for every document.
type Not struct {
	Left, Right Node
}

func (Term) node()   {}
func (Phrase) node() {}
func (And) node()    {}
func (Or) node()     {}
func (Not) node()    {}

func scoped(column, s string) string {
	if column == "" {
		return s
	}
	return column + ":" + s
}

func (t Term) String() string {
	if t.Column == extensionColumn {
		s := "*." + t.Text
		if t.Prefix {
			s += "*"
		}
		return s
	}
	s := t.Text
	if t.Prefix {
		s += "*"
	}
	return scoped(t.Column, s)
}

func (p Phrase) String() string {
	return scoped(p.Column, strconv.Quote(p.Text))
}

func (a And) String() string { return "(" + a.Left.String() + " AND " + a.Right.String() + ")" }

func (o Or) String() string { return "(" + o.Left.String() + " OR " + o.Right.String() + ")" }

func (n Not) String() string {
	if n.Left == nil {
		return "(NOT " + n.Right.String() + ")"
	}
	return "(" + n.Left.String() + " NOT " + n.Right.String() + ")"
}

// leafRef is a leaf of the tree with its polarity. Leaves on the right of
// a Not are negative and never contribute matched columns.
type leafRef struct {
	column   string
	text     string
	prefix   bool
	negative bool
}

// leaves lists every Term and Phrase in n, left to right.
func leaves(n Node) []leafRef {
	var out []leafRef
	var walk func(n Node, negative bool)
	walk = func(n Node, negative bool) {
		switch v := n.(type) {
		case Term:
			out = append(out, leafRef{v.Column, v.Text, v.Prefix, negative})
		case Phrase:
			out = append(out, leafRef{v.Column, v.Text, false, negative})
		case And:
			walk(v.Left, negative)
			walk(v.Right, negative)
		case Or:
			walk(v.Left, negative)
			walk(v.Right, negative)
		case Not:
			if v.Left != nil {
				walk(v.Left, negative)
			}
			walk(v.Right, !negative)
		}
	}
	if n != nil {
		walk(n, false)
	}
	return out
}

// Columns returns the distinct columns a query names, in order of first
// use. Unscoped leaves are not listed.
func Columns(n Node) []string {
	var cols []string
	for _, l := range leaves(n) {
		c := l.column
		if c == extensionColumn {
			c = "path"
		}
		if c != "" && !slices.Contains(cols, c) {
			cols = append(cols, c)
		}
	}
	return cols
}
