package query

import (
	"context"
	"fmt"
	"slices"

	"github.com/exif-turbo/exifturbo/internal/store"
)

// scores maps document ids to relevance; higher is better.
type scores map[int64]float64

// evaluator combines per-leaf index lookups with set operations. The
// universe is loaded at most once per evaluation.
type evaluator struct {
	ctx      context.Context
	v        *store.View
	universe scores
}

func leafFor(column, text string, prefix bool) store.Leaf {
	return store.Leaf{Column: column, Tokens: store.Tokenize(text), Prefix: prefix}
}

func (ev *evaluator) eval(n Node) (scores, error) {
	switch n := n.(type) {
	case nil:
		return ev.all()
	case Term:
		return ev.v.Match(ev.ctx, leafFor(n.Column, n.Text, n.Prefix))
	case Phrase:
		return ev.v.Match(ev.ctx, leafFor(n.Column, n.Text, false))
	case And:
		l, err := ev.eval(n.Left)
		if err != nil {
			return nil, err
		}
		if len(l) == 0 {
			return scores{}, nil
		}
		r, err := ev.eval(n.Right)
		if err != nil {
			return nil, err
		}
		return intersect(l, r), nil
	case Or:
		l, err := ev.eval(n.Left)
		if err != nil {
			return nil, err
		}
		r, err := ev.eval(n.Right)
		if err != nil {
			return nil, err
		}
		return union(l, r), nil
	case Not:
		var base scores
		var err error
		if n.Left == nil {
			base, err = ev.all()
		} else {
			base, err = ev.eval(n.Left)
		}
		if err != nil {
			return nil, err
		}
		if len(base) == 0 {
			return scores{}, nil
		}
		r, err := ev.eval(n.Right)
		if err != nil {
			return nil, err
		}
		return difference(base, r), nil
	default:
		return nil, fmt.Errorf("unknown query node %T", n)
	}
}

func (ev *evaluator) all() (scores, error) {
	if ev.universe == nil {
		ids, err := ev.v.AllIDs(ev.ctx)
		if err != nil {
			return nil, err
		}
		ev.universe = make(scores, len(ids))
		for _, id := range ids {
			ev.universe[id] = 0
		}
	}
	return ev.universe, nil
}

// intersect keeps ids present in both, summing scores.
func intersect(a, b scores) scores {
	if len(a) > len(b) {
		a, b = b, a
	}
	out := make(scores, len(a))
	for id, s := range a {
		if t, ok := b[id]; ok {
			out[id] = s + t
		}
	}
	return out
}

// union keeps ids present in either, summing scores where both match.
func union(a, b scores) scores {
	out := make(scores, len(a)+len(b))
	for id, s := range a {
		out[id] = s
	}
	for id, s := range b {
		out[id] += s
	}
	return out
}

// difference keeps ids of a that are not in b, with a's scores.
func difference(a, b scores) scores {
	out := make(scores, len(a))
	for id, s := range a {
		if _, ok := b[id]; !ok {
			out[id] = s
		}
	}
	return out
}

// matchedColumns re-tokenizes a record and reports which visible columns
// satisfy a positive leaf of the query, in schema order.
func matchedColumns(rec *store.FileRecord, refs []leafRef) []string {
	if len(refs) == 0 {
		return nil
	}
	entry := store.NewEntry(rec)
	streams := entry.ColumnStreams()

	hit := make(map[string]bool)
	for _, ref := range refs {
		if ref.negative {
			continue
		}
		toks := store.Tokenize(ref.text)
		switch ref.column {
		case "":
			for name, stream := range streams {
				if containsSeq(stream, toks, ref.prefix) {
					hit[name] = true
				}
			}
		case extensionColumn:
			if containsSeq(entry.Tokens(extensionColumn), toks, ref.prefix) {
				hit["path"] = true
			}
		default:
			if containsSeq(streams[ref.column], toks, ref.prefix) {
				hit[ref.column] = true
			}
		}
	}

	var out []string
	for _, name := range store.ColumnNames() {
		if hit[name] {
			out = append(out, name)
		}
	}
	return out
}

// containsSeq reports whether stream holds toks contiguously. With prefix
// the last token only has to start a stream token.
func containsSeq(stream, toks []string, prefix bool) bool {
	if len(toks) == 0 || len(toks) > len(stream) {
		return false
	}
	last := len(toks) - 1
	for i := 0; i+len(toks) <= len(stream); i++ {
		if !slices.Equal(stream[i:i+last], toks[:last]) {
			continue
		}
		s := stream[i+last]
		if s == toks[last] || (prefix && len(s) > len(toks[last]) && s[:len(toks[last])] == toks[last]) {
			return true
		}
	}
	return false
}
