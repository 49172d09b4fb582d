package simulate

import (
	"math"
	"testing"

	"github.com/grailbio/grups/genome"
	"github.com/grailbio/grups/panel"
	"github.com/grailbio/grups/pedigree"
	"github.com/grailbio/grups/pileup"
)

// TestTinyPedigreeFatherChildConcentratesAtHalf covers spec §8 scenario (e):
// a father-child comparison where father is homozygous AA and mother
// homozygous TT at every site must concentrate the simulated avg-PWD at
// 0.5, since the child always carries exactly one A and one T.
func TestTinyPedigreeFatherChildConcentratesAtHalf(t *testing.T) {
	pd := pedigree.New()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(pd.AddIndividual("father", panel.SexMale, "", ""))
	must(pd.AddIndividual("mother", panel.SexFemale, "", ""))
	must(pd.AddIndividual("child", panel.SexMale, "father", "mother"))
	pd.AddComparison("FC", "father", "child")
	must(pd.Finalize())

	store := newFakeStore(0.5)
	var positions []pileup.PositionDepth
	for i := 0; i < 10; i++ {
		c := genome.Coordinate{Chr: 1, Pos: int64(100 + i)}
		store.set(c, 0, 'A', 'A') // father
		store.set(c, 1, 'T', 'T') // mother
		positions = append(positions, pileup.PositionDepth{Coord: c, Ref: 'A', LeftDepth: 1, RightDepth: 1})
	}

	founderPop := []panel.Sample{
		{ID: "father-ref", Index: 0, Sex: panel.SexMale},
		{ID: "mother-ref", Index: 1, Sex: panel.SexFemale},
	}

	gm := genome.NewGeneticMap()
	opts := PairOpts{
		PairLabel:     "pair1",
		GlobalSeed:    1,
		NumReplicates: 1000,
		Replicate: ReplicateOpts{
			FounderPop: founderPop,
			Store:      store,
			Map:        gm,
			PKeep:      1.0,
			Emit: EmitOpts{
				SNPKeepProb: 1.0,
				Store:       store,
			},
		},
	}

	byLabel, rows, err := RunPair(pd, positions, opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1000 {
		t.Fatalf("got %d sim rows, want 1000", len(rows))
	}
	avgs, ok := byLabel["FC"]
	if !ok || len(avgs) != 1000 {
		t.Fatalf("got %d replicates for FC, want 1000", len(avgs))
	}
	mean := 0.0
	for _, a := range avgs {
		mean += a
	}
	mean /= float64(len(avgs))
	if math.Abs(mean-0.5) > 0.1 {
		t.Errorf("mean avg-PWD = %v, want ~0.5 (+/-0.1)", mean)
	}
}

func TestFounderShortageIsFatal(t *testing.T) {
	pd := pedigree.New()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(pd.AddIndividual("father", panel.SexMale, "", ""))
	must(pd.AddIndividual("mother", panel.SexFemale, "", ""))
	pd.AddComparison("FM", "father", "mother")
	must(pd.Finalize())

	store := newFakeStore(0.5)
	opts := PairOpts{
		PairLabel:     "pair1",
		GlobalSeed:    1,
		NumReplicates: 5,
		Replicate: ReplicateOpts{
			FounderPop: []panel.Sample{{ID: "only-one", Index: 0}}, // too few for 2 distinct founders
			Store:      store,
			Map:        genome.NewGeneticMap(),
			PKeep:      1.0,
			Emit:       EmitOpts{SNPKeepProb: 1.0, Store: store},
		},
	}
	if _, _, err := RunPair(pd, nil, opts); err == nil {
		t.Fatalf("expected FounderShortage error")
	}
}
