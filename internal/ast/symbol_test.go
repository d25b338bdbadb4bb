package ast

import "testing"

func TestSymbolTerminalReturnsNilForZeroValue(t *testing.T) {
	var s Symbol
	if s.Terminal() != nil {
		t.Fatal("expected a nil terminal for a zero-value Symbol")
	}
}

func TestSymbolTerminalReturnsLastPathEntry(t *testing.T) {
	first := &FieldType{Name: "a"}
	last := &FieldType{Name: "b"}
	s := Symbol{Path: []Type{first, last}}

	if s.Terminal() != last {
		t.Fatal("expected Terminal to return the last Path entry")
	}
}

func TestSymbolMaterializationPathsCollectsOnlyLazyJoinHops(t *testing.T) {
	pdiHop := &LazyJoinType{Path: MaterializationPath{Anchor: "events", Chain: []string{"pdi"}}}
	personHop := &LazyJoinType{Path: MaterializationPath{Anchor: "events", Chain: []string{"pdi", "person"}}}
	leaf := &PropertyType{Owner: "person"}

	s := Symbol{Path: []Type{pdiHop, personHop, leaf}}
	paths := s.MaterializationPaths()

	if len(paths) != 2 {
		t.Fatalf("expected 2 materialization hops, got %d", len(paths))
	}
	if paths[0].Alias() != "events__pdi" || paths[1].Alias() != "events__pdi__person" {
		t.Fatalf("unexpected hop aliases: %q, %q", paths[0].Alias(), paths[1].Alias())
	}
}

func TestMaterializationPathAliasJoinsAnchorAndChainWithDoubleUnderscore(t *testing.T) {
	p := MaterializationPath{Anchor: "events", Chain: []string{"pdi", "person"}}
	if got, want := p.Alias(), "events__pdi__person"; got != want {
		t.Fatalf("Alias() = %q, want %q", got, want)
	}
}
