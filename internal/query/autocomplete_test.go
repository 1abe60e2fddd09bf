package query

import (
	"context"
	"testing"
)

func TestAutocompleteFieldNames(t *testing.T) {
	h := newHarness(t)
	sug, err := Autocomplete(context.Background(), h.store, "ta", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(sug) != 1 || sug[0].InsertText != "tag:" {
		t.Fatalf("got %+v, want a single tag: suggestion", sug)
	}
	if sug[0].Type != "field" || sug[0].Section != "fields" {
		t.Errorf("got type=%q section=%q", sug[0].Type, sug[0].Section)
	}
}

func TestAutocompleteMetaOperator(t *testing.T) {
	h := newHarness(t)
	sug, err := Autocomplete(context.Background(), h.store, "meta.year", len("meta.year"))
	if err != nil {
		t.Fatal(err)
	}
	if len(sug) != 2 {
		t.Fatalf("got %d suggestions, want 2: %+v", len(sug), sug)
	}
	for _, s := range sug {
		if s.Type != "operator" {
			t.Errorf("got type=%q, want operator", s.Type)
		}
	}
}

func TestAutocompleteTagValuesByFrequency(t *testing.T) {
	h := newHarness(t)
	text := "tag:"
	sug, err := Autocomplete(context.Background(), h.store, text, len(text))
	if err != nil {
		t.Fatal(err)
	}
	if len(sug) != 2 {
		t.Fatalf("got %d suggestions, want 2: %+v", len(sug), sug)
	}
	// "landscape" appears on 2 nodes, "nature" on 1: frequency desc first.
	if sug[0].Display != "landscape" || sug[1].Display != "nature" {
		t.Errorf("got order %v, want [landscape nature]", []string{sug[0].Display, sug[1].Display})
	}
	if sug[0].InsertText != "tag:landscape" {
		t.Errorf("insert text = %q", sug[0].InsertText)
	}
}

func TestAutocompleteRelationLabels(t *testing.T) {
	h := newHarness(t)
	text := "rel:"
	sug, err := Autocomplete(context.Background(), h.store, text, len(text))
	if err != nil {
		t.Fatal(err)
	}
	if len(sug) != 1 || sug[0].Display != "AUTHORED_BY" {
		t.Fatalf("got %+v", sug)
	}
}

func TestAutocompletePathPrefix(t *testing.T) {
	h := newHarness(t)
	text := "inside:m/j"
	sug, err := Autocomplete(context.Background(), h.store, text, len(text))
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, s := range sug {
		if s.Display == "m/jojo" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected m/jojo among suggestions, got %+v", sug)
	}
}

func TestAutocompleteTypeValues(t *testing.T) {
	h := newHarness(t)
	text := "type:"
	sug, err := Autocomplete(context.Background(), h.store, text, len(text))
	if err != nil {
		t.Fatal(err)
	}
	if len(sug) != 2 {
		t.Fatalf("got %d, want 2: %+v", len(sug), sug)
	}
}

func TestAutocompleteEmptyTokenSuggestsAllFields(t *testing.T) {
	h := newHarness(t)
	sug, err := Autocomplete(context.Background(), h.store, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(sug) != len(fieldNames) {
		t.Errorf("got %d suggestions, want %d", len(sug), len(fieldNames))
	}
}
