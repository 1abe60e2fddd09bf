package query

import (
	"fmt"
	"strings"
)

// Node is a node of the filter expression AST. The concrete types below
// map directly onto the grammar: Expr := Or, Or := And ('|' And)*,
// And := Unary (WS Unary)*, Unary := '-'? Atom, Atom := Clause | '(' Expr ')'.
type Node interface{ node() }

// OrNode unions its children (∪).
type OrNode struct{ Children []Node }

// AndNode intersects its children (∩); an empty AndNode denotes the
// empty query, which the planner resolves to the universe of nodes.
type AndNode struct{ Children []Node }

// NotNode is a negated atom, evaluated as universe \ Child.
type NotNode struct{ Child Node }

// GroupNode is a parenthesized sub-expression.
type GroupNode struct{ Child Node }

// ClauseNode is a single filter clause, e.g. "tag:nature" or
// "meta.year=2023" or "rel:AUTHORED_BY=people/araki".
type ClauseNode struct {
	Raw      string
	Field    string // inside, type, tag, meta, rel, contains-rel, name, path
	Key      string // the meta.<k> subkey; empty outside the meta field
	Op       string // ":" "=" "~"
	Value    string // substring, literal, path, depending on Field
	Relation string // relation label; only set for rel / contains-rel
}

func (*OrNode) node()     {}
func (*AndNode) node()    {}
func (*NotNode) node()    {}
func (*GroupNode) node()  {}
func (*ClauseNode) node() {}

var knownColonFields = map[string]bool{
	"inside": true, "type": true, "tag": true, "name": true, "path": true,
	"rel": true, "contains-rel": true,
}

// ParseClause decomposes a single clause token (the text between
// delimiters emitted by the lexer as a CLAUSE token) into its field,
// operator, and value.
func ParseClause(raw string) (*ClauseNode, error) {
	if strings.HasPrefix(raw, "meta.") {
		return parseMetaClause(raw)
	}

	field, rest, ok := cutFirst(raw, ':')
	if !ok {
		return nil, fmt.Errorf("clause %q is missing a field separator", raw)
	}
	if !knownColonFields[field] {
		return nil, fmt.Errorf("clause %q has unknown field %q", raw, field)
	}

	switch field {
	case "inside", "type", "tag", "name", "path":
		if rest == "" {
			return nil, fmt.Errorf("clause %q is missing a value", raw)
		}
		return &ClauseNode{Raw: raw, Field: field, Op: ":", Value: rest}, nil
	case "rel", "contains-rel":
		relation, path, ok := cutFirst(rest, '=')
		if !ok || relation == "" || path == "" {
			return nil, fmt.Errorf("clause %q must have the form %s:RELATION=path", raw, field)
		}
		return &ClauseNode{Raw: raw, Field: field, Op: "=", Relation: relation, Value: path}, nil
	}
	return nil, fmt.Errorf("clause %q has unknown field %q", raw, field)
}

func parseMetaClause(raw string) (*ClauseNode, error) {
	rest := raw[len("meta."):]
	eqIdx := strings.IndexByte(rest, '=')
	tildeIdx := strings.IndexByte(rest, '~')

	var idx int
	var op string
	switch {
	case eqIdx < 0 && tildeIdx < 0:
		return nil, fmt.Errorf("clause %q is missing an '=' or '~' operator", raw)
	case eqIdx < 0:
		idx, op = tildeIdx, "~"
	case tildeIdx < 0:
		idx, op = eqIdx, "="
	case eqIdx < tildeIdx:
		idx, op = eqIdx, "="
	default:
		idx, op = tildeIdx, "~"
	}

	key := rest[:idx]
	value := rest[idx+1:]
	if key == "" {
		return nil, fmt.Errorf("clause %q is missing a metadata key", raw)
	}
	return &ClauseNode{Raw: raw, Field: "meta", Key: key, Op: op, Value: value}, nil
}

// cutFirst splits s at the first occurrence of sep, like strings.Cut.
func cutFirst(s string, sep byte) (before, after string, found bool) {
	idx := strings.IndexByte(s, sep)
	if idx < 0 {
		return s, "", false
	}
	return s[:idx], s[idx+1:], true
}
