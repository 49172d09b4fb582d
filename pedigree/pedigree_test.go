package pedigree

import (
	"testing"

	"github.com/grailbio/grups/panel"
)

func buildTrio(t *testing.T) *Pedigree {
	t.Helper()
	pd := New()
	if err := pd.AddIndividual("father", panel.SexMale, "0", "0"); err != nil {
		t.Fatal(err)
	}
	if err := pd.AddIndividual("mother", panel.SexFemale, "0", "0"); err != nil {
		t.Fatal(err)
	}
	if err := pd.AddIndividual("child", panel.SexUnknown, "father", "mother"); err != nil {
		t.Fatal(err)
	}
	pd.AddComparison("father-child", "father", "child")
	if err := pd.Finalize(); err != nil {
		t.Fatal(err)
	}
	return pd
}

func TestTrioTopologicalOrder(t *testing.T) {
	pd := buildTrio(t)
	order := pd.TopologicalOrder()
	pos := map[string]int{}
	for rank, idx := range order {
		pos[pd.Individual(idx).ID] = rank
	}
	if pos["father"] >= pos["child"] || pos["mother"] >= pos["child"] {
		t.Errorf("parents must precede child in topological order: %v", pos)
	}
}

func TestFounderDetection(t *testing.T) {
	pd := buildTrio(t)
	fidx, _ := pd.Lookup("father")
	cidx, _ := pd.Lookup("child")
	if !pd.Individual(fidx).IsFounder() {
		t.Errorf("father should be a founder")
	}
	if pd.Individual(cidx).IsFounder() {
		t.Errorf("child should not be a founder")
	}
}

func TestUnknownParent(t *testing.T) {
	pd := New()
	if err := pd.AddIndividual("child", panel.SexUnknown, "ghost", "0"); err == nil {
		t.Fatalf("expected UnknownParent error")
	}
}

func TestCycleDetection(t *testing.T) {
	pd := New()
	_ = pd.AddIndividual("a", panel.SexUnknown, "0", "0")
	_ = pd.AddIndividual("b", panel.SexUnknown, "a", "0")
	// Manually force a cycle by rewriting a's father to b's index; AddIndividual
	// can't normally express this since b is declared after a, so we poke the
	// arena directly to exercise Finalize's cycle check.
	aIdx, _ := pd.Lookup("a")
	bIdx, _ := pd.Lookup("b")
	pd.individuals[aIdx].Father = bIdx
	if err := pd.Finalize(); err == nil {
		t.Fatalf("expected CycleInPedigree error")
	}
}

func TestUnknownCompareTarget(t *testing.T) {
	pd := New()
	_ = pd.AddIndividual("a", panel.SexUnknown, "0", "0")
	pd.AddComparison("x", "a", "ghost")
	if err := pd.Finalize(); err == nil {
		t.Fatalf("expected UnknownCompareTarget error")
	}
}
