package query

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/exif-turbo/exifturbo/internal/errors"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokPhrase
	tokLParen
	tokRParen
	tokAnd
	tokOr
	tokNot
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of query"
	case tokWord:
		return "term"
	case tokPhrase:
		return "phrase"
	case tokLParen:
		return "("
	case tokRParen:
		return ")"
	case tokAnd:
		return "AND"
	case tokOr:
		return "OR"
	case tokNot:
		return "NOT"
	default:
		return fmt.Sprintf("token(%d)", int(k))
	}
}

func (k tokenKind) isOperator() bool {
	return k == tokAnd || k == tokOr || k == tokNot
}

// token is one lexeme. pos is where it starts, including any column
// prefix; valPos is where the term or phrase itself starts.
type token struct {
	kind   tokenKind
	pos    int
	column string
	text   string
	valPos int
}

// lex splits q into tokens, ending with tokEOF.
func lex(q string) ([]token, error) {
	var toks []token
	i := 0
	for {
		i = skipSpace(q, i)
		if i >= len(q) {
			return append(toks, token{kind: tokEOF, pos: len(q)}), nil
		}

		switch q[i] {
		case '(':
			toks = append(toks, token{kind: tokLParen, pos: i})
			i++
		case ')':
			toks = append(toks, token{kind: tokRParen, pos: i})
			i++
		case '"':
			text, next, err := readPhrase(q, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokPhrase, pos: i, text: text, valPos: i})
			i = next
		default:
			start := i
			i = wordEnd(q, i)
			word := q[start:i]

			switch word {
			case "AND":
				toks = append(toks, token{kind: tokAnd, pos: start})
				continue
			case "OR":
				toks = append(toks, token{kind: tokOr, pos: start})
				continue
			case "NOT":
				toks = append(toks, token{kind: tokNot, pos: start})
				continue
			}

			c := strings.IndexByte(word, ':')
			if c <= 0 || !isIdent(word[:c]) {
				toks = append(toks, token{kind: tokWord, pos: start, text: word, valPos: start})
				continue
			}

			column, rest := word[:c], word[c+1:]
			switch {
			case rest != "":
				toks = append(toks, token{kind: tokWord, pos: start, column: column, text: rest, valPos: start + c + 1})
			case i < len(q) && q[i] == '"':
				text, next, err := readPhrase(q, i)
				if err != nil {
					return nil, err
				}
				toks = append(toks, token{kind: tokPhrase, pos: start, column: column, text: text, valPos: i})
				i = next
			default:
				return nil, errors.NewQuerySyntaxError(q, i, fmt.Sprintf("missing term after %q", word))
			}
		}
	}
}

// readPhrase reads a quoted phrase starting at the quote at q[i] and
// returns its body and the offset after the closing quote.
func readPhrase(q string, i int) (string, int, error) {
	end := strings.IndexByte(q[i+1:], '"')
	if end < 0 {
		return "", 0, errors.NewQuerySyntaxError(q, i, "unbalanced quote")
	}
	body := q[i+1 : i+1+end]
	next := i + 1 + end + 1
	if next < len(q) && q[next] == '*' {
		return "", 0, errors.NewQuerySyntaxError(q, next, "prefix * is not supported after a phrase")
	}
	return body, next, nil
}

func skipSpace(q string, i int) int {
	for i < len(q) {
		r, size := utf8.DecodeRuneInString(q[i:])
		if !unicode.IsSpace(r) {
			break
		}
		i += size
	}
	return i
}

func wordEnd(q string, i int) int {
	for i < len(q) {
		r, size := utf8.DecodeRuneInString(q[i:])
		if unicode.IsSpace(r) || r == '(' || r == ')' || r == '"' {
			break
		}
		i += size
	}
	return i
}

// isIdent reports whether s can be a column name: ASCII letters, digits
// and underscores, starting with a letter.
func isIdent(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return s != ""
}
