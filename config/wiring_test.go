package config

import (
	"testing"

	"github.com/grailbio/grups/pedigree"
)

func newPedigreeWithComparison(left, right string) *pedigree.Pedigree {
	pd := pedigree.New()
	pd.Comparisons = []pedigree.Comparison{{Label: "pair1", Left: left, Right: right}}
	return pd
}

func TestBuildPileupPairsResolvesColumns(t *testing.T) {
	p := DefaultParams()
	p.SampleNames = []string{"A", "B"}
	p.MinDepth = []int{2, 3}
	pd := newPedigreeWithComparison("A", "B")

	pairs, err := p.BuildPileupPairs(pd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("got %d pairs, want 1", len(pairs))
	}
	got := pairs[0]
	if got.Label != "pair1" || got.LeftCol != 0 || got.RightCol != 1 {
		t.Fatalf("unexpected pair: %+v", got)
	}
	if got.LeftDepth != 2 || got.RightDepth != 3 {
		t.Fatalf("depth not threaded through: %+v", got)
	}
}

func TestBuildPileupPairsRejectsUnknownSample(t *testing.T) {
	p := DefaultParams()
	p.SampleNames = []string{"A"}
	pd := newPedigreeWithComparison("A", "ghost")

	if _, err := p.BuildPileupPairs(pd); err == nil {
		t.Fatal("expected error for comparison referencing unknown sample")
	}
}

func TestBuildPileupPairsRejectsSelfComparisonByDefault(t *testing.T) {
	p := DefaultParams()
	p.SampleNames = []string{"A"}
	pd := newPedigreeWithComparison("A", "A")

	if _, err := p.BuildPileupPairs(pd); err == nil {
		t.Fatal("expected error for self-comparison without -self-comparison")
	}

	p.SelfComparison = true
	pairs, err := p.BuildPileupPairs(pd)
	if err != nil {
		t.Fatalf("unexpected error once SelfComparison is set: %v", err)
	}
	if len(pairs) != 1 || !pairs[0].IsSelf() {
		t.Fatalf("expected a self pair, got %+v", pairs)
	}
}
