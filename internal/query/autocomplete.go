package query

import (
	"context"
	"sort"
	"strings"

	"dlfi/internal/storage"
)

// Suggestion is one autocomplete candidate. InsertText always replaces
// the whole in-progress token (from its start up to the cursor), so
// callers splice text[:tokenStart] + InsertText + text[cursor:].
type Suggestion struct {
	Display     string `json:"display"`
	InsertText  string `json:"insert_text"`
	Type        string `json:"type"` // "field" | "operator" | "value"
	Section     string `json:"section"`
	Description string `json:"description,omitempty"`
}

var fieldNames = []string{"inside:", "type:", "tag:", "meta.", "rel:", "contains-rel:", "name:", "path:"}

var tokenDelims = " \t\n\r()|"

// Autocomplete classifies the token under cursor in text and returns
// ranked completions drawn from the known field/operator vocabulary and
// live values from store: tags sorted by frequency desc then
// lexicographic; relation labels and the path index sorted
// lexicographically only, with no frequency ranking.
func Autocomplete(ctx context.Context, store storage.Storage, text string, cursor int) ([]Suggestion, error) {
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(text) {
		cursor = len(text)
	}
	start := cursor
	for start > 0 && !strings.ContainsRune(tokenDelims, rune(text[start-1])) {
		start--
	}
	typed := text[start:cursor]

	switch state, field, key, op, partial := classify(typed); state {
	case "field":
		return fieldSuggestions(partial), nil
	case "op":
		return opSuggestions(typed, key), nil
	case "value":
		return valueSuggestions(ctx, store, typed, field, op, partial)
	default:
		return nil, nil
	}
}

// classify inspects the partially-typed clause token and returns which
// part of "field[.key](:|=|~)value" the cursor sits in, following the
// state machine START -> FIELD -> OP -> VALUE -> END.
func classify(typed string) (state, field, key, op, partial string) {
	if typed == "" {
		return "field", "", "", "", ""
	}
	if strings.HasPrefix(typed, "meta.") || (len(typed) < len("meta.") && strings.HasPrefix("meta.", typed)) {
		if !strings.HasPrefix(typed, "meta.") {
			return "field", "", "", "", typed
		}
		rest := typed[len("meta."):]
		eq := strings.IndexByte(rest, '=')
		tilde := strings.IndexByte(rest, '~')
		switch {
		case eq < 0 && tilde < 0:
			return "op", "meta", rest, "", ""
		case eq >= 0 && (tilde < 0 || eq < tilde):
			return "value", "meta", rest[:eq], "=", rest[eq+1:]
		default:
			return "value", "meta", rest[:tilde], "~", rest[tilde+1:]
		}
	}

	colon := strings.IndexByte(typed, ':')
	if colon < 0 {
		return "field", "", "", "", typed
	}
	field = typed[:colon]
	rest := typed[colon+1:]
	switch field {
	case "rel", "contains-rel":
		eq := strings.IndexByte(rest, '=')
		if eq < 0 {
			return "value", field, "", "relation", rest
		}
		return "value", field, rest[:eq], "path", rest[eq+1:]
	case "inside", "type", "tag", "name", "path":
		return "value", field, "", ":", rest
	default:
		return "field", "", "", "", typed
	}
}

func fieldSuggestions(partial string) []Suggestion {
	var out []Suggestion
	for _, f := range fieldNames {
		if strings.HasPrefix(f, partial) {
			out = append(out, Suggestion{
				Display:    f,
				InsertText: f,
				Type:       "field",
				Section:    "fields",
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Display < out[j].Display })
	return out
}

func opSuggestions(typed, key string) []Suggestion {
	return []Suggestion{
		{Display: key + "=", InsertText: typed + "=", Type: "operator", Section: "operators", Description: "equals"},
		{Display: key + "~", InsertText: typed + "~", Type: "operator", Section: "operators", Description: "substring"},
	}
}

func valueSuggestions(ctx context.Context, store storage.Storage, typed, field, op, partial string) ([]Suggestion, error) {
	prefixOf := func(suggested string) string {
		return typed[:len(typed)-len(partial)] + suggested
	}

	switch {
	case field == "tag":
		freq, err := store.TagFrequency(ctx)
		if err != nil {
			return nil, err
		}
		return frequencyValues(freq, partial, "tags", prefixOf), nil

	case (field == "rel" || field == "contains-rel") && op == "relation":
		labels, err := store.RelationLabels(ctx)
		if err != nil {
			return nil, err
		}
		return prefixValues(labels, partial, "relations", prefixOf), nil

	case field == "inside" || field == "path" || ((field == "rel" || field == "contains-rel") && op == "path"):
		paths, err := pathIndex(ctx, store)
		if err != nil {
			return nil, err
		}
		return prefixValues(paths, partial, "paths", prefixOf), nil

	case field == "type":
		return prefixValues([]string{"VAULT", "RECORD"}, partial, "types", prefixOf), nil

	case field == "meta" && op == "=":
		return prefixValues([]string{"true", "false", "null"}, partial, "literals", prefixOf), nil

	default:
		return nil, nil
	}
}

func frequencyValues(freq map[string]int, partial, section string, insertFor func(string) string) []Suggestion {
	type kv struct {
		k string
		v int
	}
	var kvs []kv
	for k, v := range freq {
		if strings.HasPrefix(k, partial) {
			kvs = append(kvs, kv{k, v})
		}
	}
	sort.Slice(kvs, func(i, j int) bool {
		if kvs[i].v != kvs[j].v {
			return kvs[i].v > kvs[j].v
		}
		return kvs[i].k < kvs[j].k
	})
	out := make([]Suggestion, 0, len(kvs))
	for _, e := range kvs {
		out = append(out, Suggestion{
			Display:    e.k,
			InsertText: insertFor(e.k),
			Type:       "value",
			Section:    section,
		})
	}
	return out
}

func prefixValues(values []string, partial, section string, insertFor func(string) string) []Suggestion {
	matched := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if seen[v] || !strings.HasPrefix(v, partial) {
			continue
		}
		seen[v] = true
		matched = append(matched, v)
	}
	sort.Strings(matched)
	out := make([]Suggestion, 0, len(matched))
	for _, v := range matched {
		out = append(out, Suggestion{
			Display:    v,
			InsertText: insertFor(v),
			Type:       "value",
			Section:    section,
		})
	}
	return out
}

// pathIndex returns the canonical path of every node in the archive,
// for prefix-matching inside:/path: values during autocomplete.
func pathIndex(ctx context.Context, store storage.Storage) ([]string, error) {
	nodes, err := store.AllNodes(ctx)
	if err != nil {
		return nil, err
	}
	byUUID := make(map[string]string, len(nodes)) // uuid -> name
	parentOf := make(map[string]string, len(nodes))
	for _, n := range nodes {
		byUUID[n.UUID] = n.Name
		parentOf[n.UUID] = n.ParentUUID
	}
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		var segments []string
		id := n.UUID
		for id != "" {
			segments = append([]string{byUUID[id]}, segments...)
			id = parentOf[id]
		}
		out = append(out, strings.Join(segments, "/"))
	}
	return out, nil
}
