package pileup

import (
	"math/rand"
	"testing"

	"github.com/grailbio/grups/genome"
)

func makeRec(chr int, pos int64, ref byte, samples ...[]Call) Record {
	ss := make([]SampleObs, len(samples))
	for i, calls := range samples {
		ss[i] = SampleObs{Depth: len(calls), Calls: calls}
	}
	return Record{Coord: genome.Coordinate{Chr: chr, Pos: pos}, Ref: ref, Samples: ss}
}

func call(b byte) Call { return Call{Base: b, Qual: 40} }

// Scenario (a): trivial identity -- self comparison, 4 identical sites.
func TestScenarioTrivialIdentity(t *testing.T) {
	opts := Opts{
		Pairs: []Pair{{Label: "AA", LeftCol: 0, RightCol: 0, LeftDepth: 2, RightDepth: 2}},
		Rand:  rand.New(rand.NewSource(1)),
	}
	e := NewEngine(opts)
	for pos := int64(1); pos <= 4; pos++ {
		e.processRecord(makeRec(1, pos, 'A', []Call{call('A'), call('A')}))
	}
	res := e.results["AA"]
	if res.Raw.Overlap != 4 || res.Raw.Mismatch != 0 {
		t.Errorf("overlap=%d mismatch=%d, want 4,0", res.Raw.Overlap, res.Raw.Mismatch)
	}
	if res.Raw.AvgPWD() != 0.0 {
		t.Errorf("AvgPWD = %v, want 0.0", res.Raw.AvgPWD())
	}
}

// Scenario (b): trivial disagreement -- self comparison, 4 sites where the
// two alleles always differ.
func TestScenarioTrivialDisagreement(t *testing.T) {
	opts := Opts{
		Pairs: []Pair{{Label: "AA", LeftCol: 0, RightCol: 0, LeftDepth: 2, RightDepth: 2}},
		Rand:  rand.New(rand.NewSource(1)),
	}
	e := NewEngine(opts)
	for pos := int64(1); pos <= 4; pos++ {
		e.processRecord(makeRec(1, pos, 'A', []Call{call('A'), call('T')}))
	}
	res := e.results["AA"]
	if res.Raw.Overlap != 4 || res.Raw.Mismatch != 4 {
		t.Errorf("overlap=%d mismatch=%d, want 4,4", res.Raw.Overlap, res.Raw.Mismatch)
	}
	if res.Raw.AvgPWD() != 1.0 {
		t.Errorf("AvgPWD = %v, want 1.0", res.Raw.AvgPWD())
	}
}

// Scenario (c): depth filter -- site 2 has depth 1 on sample B with
// --min-depth 2 2, so that site must not contribute.
func TestScenarioDepthFilter(t *testing.T) {
	opts := Opts{
		Pairs: []Pair{{Label: "AB", LeftCol: 0, RightCol: 1, LeftDepth: 2, RightDepth: 2}},
		Rand:  rand.New(rand.NewSource(1)),
	}
	e := NewEngine(opts)
	e.processRecord(makeRec(1, 1, 'A', []Call{call('A'), call('A')}, []Call{call('A'), call('A')}))
	e.processRecord(makeRec(1, 2, 'A', []Call{call('A'), call('A')}, []Call{call('A')})) // B depth 1
	e.processRecord(makeRec(1, 3, 'A', []Call{call('A'), call('A')}, []Call{call('A'), call('A')}))
	res := e.results["AB"]
	if res.Raw.Overlap != 2 {
		t.Errorf("overlap = %d, want 2", res.Raw.Overlap)
	}
}

// Scenario (d): targets filter -- of 5 sites, only 3 are target positions.
func TestScenarioTargetsFilter(t *testing.T) {
	targets := &Targets{}
	for _, p := range []int64{1, 3, 5} {
		targets.add(1, p)
	}
	targets.finalize()

	opts := Opts{
		Pairs:   []Pair{{Label: "AB", LeftCol: 0, RightCol: 1, LeftDepth: 1, RightDepth: 1}},
		Targets: targets,
		Rand:    rand.New(rand.NewSource(1)),
	}
	e := NewEngine(opts)
	for pos := int64(1); pos <= 5; pos++ {
		rec := makeRec(1, pos, 'A', []Call{call('A')}, []Call{call('A')})
		if !opts.Targets.Contains(rec.Coord) {
			continue
		}
		e.processRecord(rec)
	}
	res := e.results["AB"]
	if res.Raw.Overlap > 3 {
		t.Errorf("overlap = %d, want <= 3", res.Raw.Overlap)
	}
	if res.Raw.Overlap != 3 {
		t.Errorf("overlap = %d, want exactly 3 for this input", res.Raw.Overlap)
	}
}

func TestMismatchNeverExceedsOverlap(t *testing.T) {
	opts := Opts{
		Pairs: []Pair{{Label: "AB", LeftCol: 0, RightCol: 1, LeftDepth: 1, RightDepth: 1}},
		Rand:  rand.New(rand.NewSource(7)),
	}
	e := NewEngine(opts)
	bases := []byte{'A', 'C', 'G', 'T'}
	for pos := int64(1); pos <= 100; pos++ {
		l := call(bases[pos%4])
		r := call(bases[(pos+1)%4])
		e.processRecord(makeRec(1, pos, 'A', []Call{l}, []Call{r}))
	}
	res := e.results["AB"]
	if res.Raw.Mismatch > res.Raw.Overlap {
		t.Errorf("mismatch %d > overlap %d", res.Raw.Mismatch, res.Raw.Overlap)
	}
}

// TestTransitionExclusionIsPerSiteNotPerDraw pins spec §4.4's "drop records
// where {ref,alt} is a transition": the site's alt (A, a transition with
// ref G) is present on the left sample only, so every draw that happens to
// pick the left sample's other allele (G, matching ref) must still be
// excluded -- the record-level ref/alt pair decides exclusion, not which
// bases get drawn.
func TestTransitionExclusionIsPerSiteNotPerDraw(t *testing.T) {
	opts := Opts{
		Pairs:              []Pair{{Label: "AB", LeftCol: 0, RightCol: 1, LeftDepth: 1, RightDepth: 1}},
		ExcludeTransitions: true,
		Rand:               rand.New(rand.NewSource(3)),
	}
	e := NewEngine(opts)
	// ref=G; left carries a mix of G (=ref) and A (transition partner);
	// across many draws the left side will sometimes draw G, which must
	// not let the record slip through the exclusion.
	for pos := int64(1); pos <= 50; pos++ {
		e.processRecord(makeRec(1, pos, 'G', []Call{call('G'), call('A')}, []Call{call('G')}))
	}
	res := e.results["AB"]
	if res.Raw.Overlap != 0 {
		t.Errorf("overlap = %d, want 0: every record at this transition site must be excluded", res.Raw.Overlap)
	}
}

// TestTransitionExclusionSparesTransversions confirms --exclude-transitions
// leaves a non-transition site (ref=A, alt=C) untouched.
func TestTransitionExclusionSparesTransversions(t *testing.T) {
	opts := Opts{
		Pairs:              []Pair{{Label: "AB", LeftCol: 0, RightCol: 1, LeftDepth: 1, RightDepth: 1}},
		ExcludeTransitions: true,
		Rand:               rand.New(rand.NewSource(3)),
	}
	e := NewEngine(opts)
	for pos := int64(1); pos <= 10; pos++ {
		e.processRecord(makeRec(1, pos, 'A', []Call{call('C')}, []Call{call('A')}))
	}
	res := e.results["AB"]
	if res.Raw.Overlap != 10 {
		t.Errorf("overlap = %d, want 10: a transversion site must not be excluded", res.Raw.Overlap)
	}
}
