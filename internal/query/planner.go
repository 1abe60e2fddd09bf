package query

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"dlfi/internal/idpath"
	"dlfi/internal/storage"
	"dlfi/internal/types"
)

type set map[string]struct{}

func newSet(ids ...string) set {
	s := make(set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s set) add(id string) { s[id] = struct{}{} }

func union(a, b set) set {
	out := make(set, len(a)+len(b))
	for id := range a {
		out[id] = struct{}{}
	}
	for id := range b {
		out[id] = struct{}{}
	}
	return out
}

func intersect(a, b set) set {
	out := make(set)
	small, big := a, b
	if len(b) < len(a) {
		small, big = b, a
	}
	for id := range small {
		if _, ok := big[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

func subtract(a, b set) set {
	out := make(set, len(a))
	for id := range a {
		if _, ok := b[id]; !ok {
			out[id] = struct{}{}
		}
	}
	return out
}

type parentKey struct{ parent, name string }

// evaluator holds the single in-memory snapshot of the node index a
// plan is evaluated against; every clause is resolved against it with
// no further database round trips.
type evaluator struct {
	ctx context.Context

	byUUID      map[string]*types.Node
	childrenOf  map[string][]string
	childByName map[parentKey]string
	byType      map[types.NodeType]set
	universe    set

	pathCache map[string]string
}

func newEvaluator(ctx context.Context, store storage.Storage) (*evaluator, error) {
	nodes, err := store.AllNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load nodes for query: %w", err)
	}

	ev := &evaluator{
		ctx:         ctx,
		byUUID:      make(map[string]*types.Node, len(nodes)),
		childrenOf:  make(map[string][]string),
		childByName: make(map[parentKey]string, len(nodes)),
		byType:      map[types.NodeType]set{types.Vault: {}, types.Record: {}},
		universe:    make(set, len(nodes)),
		pathCache:   make(map[string]string, len(nodes)),
	}
	for _, n := range nodes {
		ev.byUUID[n.UUID] = n
		ev.childrenOf[n.ParentUUID] = append(ev.childrenOf[n.ParentUUID], n.UUID)
		ev.childByName[parentKey{n.ParentUUID, n.Name}] = n.UUID
		ev.byType[n.Type].add(n.UUID)
		ev.universe.add(n.UUID)
	}
	return ev, nil
}

func (e *evaluator) resolvePath(path string) (string, bool) {
	norm, err := idpath.Normalize(path)
	if err != nil || norm == "" {
		return "", false
	}
	parent := ""
	for _, seg := range strings.Split(norm, "/") {
		uuid, ok := e.childByName[parentKey{parent, seg}]
		if !ok {
			return "", false
		}
		parent = uuid
	}
	return parent, true
}

// descendants returns every node reachable from root, not including
// root itself (breadth-first, so order is stable but unused by callers
// — the result is a set).
func (e *evaluator) descendants(root string) set {
	out := make(set)
	frontier := []string{root}
	for len(frontier) > 0 {
		var next []string
		for _, id := range frontier {
			for _, child := range e.childrenOf[id] {
				if _, seen := out[child]; !seen {
					out.add(child)
					next = append(next, child)
				}
			}
		}
		frontier = next
	}
	return out
}

// ancestors returns every ancestor of id, not including id itself.
func (e *evaluator) ancestors(id string) set {
	out := make(set)
	cur := e.byUUID[id]
	for cur != nil && cur.ParentUUID != "" {
		out.add(cur.ParentUUID)
		cur = e.byUUID[cur.ParentUUID]
	}
	return out
}

func (e *evaluator) path(id string) string {
	if p, ok := e.pathCache[id]; ok {
		return p
	}
	n := e.byUUID[id]
	if n == nil {
		return ""
	}
	var segments []string
	for n != nil {
		segments = append([]string{n.Name}, segments...)
		if n.ParentUUID == "" {
			break
		}
		n = e.byUUID[n.ParentUUID]
	}
	p := strings.Join(segments, "/")
	e.pathCache[id] = p
	return p
}

// eval lowers an AST node to the set of node uuids it matches. Set
// operations (∪, ∩, \) combine children bottom-up, matching the
// grammar exactly: AndNode intersects its children's sets (a NotNode
// child already evaluates to universe-minus-its-target, so intersecting
// it in is equivalent to subtracting it).
func (e *evaluator) eval(store storage.Storage, n Node) (set, error) {
	switch v := n.(type) {
	case *OrNode:
		result := make(set)
		for _, c := range v.Children {
			s, err := e.eval(store, c)
			if err != nil {
				return nil, err
			}
			result = union(result, s)
		}
		return result, nil
	case *AndNode:
		if len(v.Children) == 0 {
			return e.universe, nil
		}
		result, err := e.eval(store, v.Children[0])
		if err != nil {
			return nil, err
		}
		for _, c := range v.Children[1:] {
			s, err := e.eval(store, c)
			if err != nil {
				return nil, err
			}
			result = intersect(result, s)
		}
		return result, nil
	case *NotNode:
		s, err := e.eval(store, v.Child)
		if err != nil {
			return nil, err
		}
		return subtract(e.universe, s), nil
	case *GroupNode:
		return e.eval(store, v.Child)
	case *ClauseNode:
		return e.evalClause(store, v)
	default:
		return nil, fmt.Errorf("unknown query AST node %T", n)
	}
}

func (e *evaluator) evalClause(store storage.Storage, c *ClauseNode) (set, error) {
	switch c.Field {
	case "inside":
		root, ok := e.resolvePath(c.Value)
		if !ok {
			return make(set), nil
		}
		return e.descendants(root), nil

	case "type":
		t := types.NodeType(strings.ToUpper(c.Value))
		if !t.IsValid() {
			return nil, fmt.Errorf("%w: unknown node type %q", types.ErrInvalidPath, c.Value)
		}
		return e.byType[t], nil

	case "tag":
		ids, err := store.NodesWithTag(e.ctx, strings.ToLower(c.Value))
		if err != nil {
			return nil, err
		}
		return newSet(ids...), nil

	case "name":
		out := make(set)
		for id, n := range e.byUUID {
			if strings.Contains(n.Name, c.Value) {
				out.add(id)
			}
		}
		return out, nil

	case "path":
		out := make(set)
		for id := range e.byUUID {
			if strings.Contains(e.path(id), c.Value) {
				out.add(id)
			}
		}
		return out, nil

	case "meta":
		return e.evalMeta(c)

	case "rel":
		target, ok := e.resolvePath(c.Value)
		if !ok {
			return make(set), nil
		}
		ids, err := store.NodesWithOutgoingRelation(e.ctx, c.Relation, target)
		if err != nil {
			return nil, err
		}
		return newSet(ids...), nil

	case "contains-rel":
		target, ok := e.resolvePath(c.Value)
		if !ok {
			return make(set), nil
		}
		ids, err := store.NodesWithOutgoingRelation(e.ctx, c.Relation, target)
		if err != nil {
			return nil, err
		}
		out := make(set)
		for id := range newSet(ids...) {
			for anc := range e.ancestors(id) {
				out.add(anc)
			}
		}
		return intersect(out, e.byType[types.Vault]), nil

	default:
		return nil, fmt.Errorf("unknown clause field %q", c.Field)
	}
}

func (e *evaluator) evalMeta(c *ClauseNode) (set, error) {
	out := make(set)
	want := parseLiteral(c.Value)
	for id, n := range e.byUUID {
		var doc map[string]any
		if err := json.Unmarshal(n.Metadata, &doc); err != nil {
			continue
		}
		val, present := doc[c.Key]
		if !present {
			continue
		}
		switch c.Op {
		case "=":
			if literalsEqual(val, want) {
				out.add(id)
			}
		case "~":
			s, ok := val.(string)
			if ok && strings.Contains(s, c.Value) {
				out.add(id)
			}
		}
	}
	return out, nil
}

// parseLiteral decodes a clause value the way meta.<k>=<v> expects:
// the JSON scalars null/true/false/a number parse as themselves, and
// anything else is treated as a bare string.
func parseLiteral(s string) any {
	switch s {
	case "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	return s
}

func literalsEqual(got, want any) bool {
	if got == nil || want == nil {
		return got == nil && want == nil
	}
	switch w := want.(type) {
	case float64:
		g, ok := got.(float64)
		return ok && g == w
	case bool:
		g, ok := got.(bool)
		return ok && g == w
	case string:
		g, ok := got.(string)
		return ok && g == w
	default:
		return false
	}
}

// Execute parses, plans, and runs a filter expression against store,
// returning matching nodes sorted deterministically by (type VAULT
// first, path asc).
func Execute(ctx context.Context, store storage.Storage, text string) ([]*types.NodeSummary, error) {
	ast, err := Parse(text)
	if err != nil {
		return nil, err
	}
	ev, err := newEvaluator(ctx, store)
	if err != nil {
		return nil, err
	}
	matched, err := ev.eval(store, ast)
	if err != nil {
		return nil, err
	}
	return ev.summarize(ctx, store, matched)
}

func (e *evaluator) summarize(ctx context.Context, store storage.Storage, matched set) ([]*types.NodeSummary, error) {
	out := make([]*types.NodeSummary, 0, len(matched))
	for id := range matched {
		n := e.byUUID[id]
		if n == nil {
			continue
		}
		tags, err := store.ListTags(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, &types.NodeSummary{
			Node: *n,
			Path: e.path(id),
			Tags: tags,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type == types.Vault
		}
		return out[i].Path < out[j].Path
	})
	return out, nil
}
