package result

import (
	"math"
	"testing"

	"github.com/grailbio/grups/pileup"
)

func rawAcc(overlap, mismatch int64) *pileup.Accumulator {
	a := pileup.NewAccumulator(5_000_000)
	a.Overlap = overlap
	a.Mismatch = mismatch
	return a
}

func TestAssignPicksMinimumZScore(t *testing.T) {
	observed := rawAcc(100, 50) // avg-PWD 0.5
	p := &PairSummary{
		Label:     "pair1",
		Raw:       observed,
		Corrected: observed,
		Sims: []RelationDist{
			{Label: "unrelated", AvgPWDs: []float64{0.95, 0.96, 0.94, 0.97, 0.95}},
			{Label: "parent-child", AvgPWDs: []float64{0.48, 0.52, 0.50, 0.49, 0.51}},
			{Label: "siblings", AvgPWDs: []float64{0.70, 0.72, 0.69, 0.71, 0.70}},
		},
	}
	p.Assign()
	if p.MostLikely != "parent-child" {
		t.Fatalf("MostLikely = %q, want parent-child", p.MostLikely)
	}
	if math.Abs(p.ZScore) > 2 {
		t.Errorf("ZScore = %v, want small magnitude for a close match", p.ZScore)
	}
}

func TestAssignIsDeterministicOnTies(t *testing.T) {
	observed := rawAcc(10, 5)
	p := &PairSummary{
		Label:     "pair1",
		Raw:       observed,
		Corrected: observed,
		Sims: []RelationDist{
			{Label: "b-label", AvgPWDs: []float64{0.5, 0.5, 0.5}},
			{Label: "a-label", AvgPWDs: []float64{0.5, 0.5, 0.5}},
		},
	}
	p.Assign()
	if p.MostLikely != "a-label" {
		t.Fatalf("MostLikely = %q, want a-label (ties broken by label order)", p.MostLikely)
	}
}

func TestSortSummariesOrdersByLabel(t *testing.T) {
	summaries := []*PairSummary{{Label: "zeta"}, {Label: "alpha"}, {Label: "mu"}}
	SortSummaries(summaries)
	got := []string{summaries[0].Label, summaries[1].Label, summaries[2].Label}
	want := []string{"alpha", "mu", "zeta"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got order %v, want %v", got, want)
		}
	}
}
