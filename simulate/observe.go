// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package simulate

import (
	"math/rand"

	"github.com/grailbio/grups/panel"
	"github.com/grailbio/grups/refstore"
)

// SideParams are one real sample's contamination and sequencing-error
// rates, applied when that individual stands on one side of a comparison
// (spec §4.6 step 3's contam_rate_S / seq_error_rate_S).
type SideParams struct {
	ContamRate    float64
	SeqErrorRate  float64
}

// EmitOpts configures spec §4.6 step 3's observation-emission model.
type EmitOpts struct {
	ContamPop    []panel.Sample
	ContamNumInd int
	Store        refstore.Store
	SNPKeepProb  float64 // P(a shared position is kept this replicate); spec's snp_keep
	Rates        map[string]SideParams
}

var otherBases = map[byte][3]byte{
	'A': {'C', 'G', 'T'},
	'C': {'A', 'G', 'T'},
	'G': {'A', 'C', 'T'},
	'T': {'A', 'C', 'G'},
}

// ContaminantSet is the fixed list of contaminating reference samples drawn
// once per replicate, and whether --contam-num-ind had to be capped to the
// population's actual size (RunPair logs the cap once per pair, per the
// Open Question decision recorded alongside this package).
type ContaminantSet struct {
	Samples []panel.Sample
	Capped  bool
}

// DrawContaminants picks min(numInd, len(pop)) distinct samples from pop.
func DrawContaminants(pop []panel.Sample, numInd int, rng *rand.Rand) ContaminantSet {
	n := numInd
	capped := false
	if n > len(pop) {
		n = len(pop)
		capped = true
	}
	perm := rng.Perm(len(pop))
	out := make([]panel.Sample, n)
	for i := 0; i < n; i++ {
		out[i] = pop[perm[i]]
	}
	return ContaminantSet{Samples: out, Capped: capped}
}

// readCounter round-robins through a ContaminantSet across many simulated
// reads, per spec §4.6's "round-robin over --contam-num-ind individuals".
type readCounter struct {
	set ContaminantSet
	n   int
}

func (c *readCounter) next() panel.Sample {
	s := c.set.Samples[c.n%len(c.set.Samples)]
	c.n++
	return s
}

// simulateRead draws one read's base for individual idx's genotype at
// position pi, applying contamination then sequencing error, per spec
// §4.6 step 3.
func simulateRead(g *Genomes, individualIdx, pi int, params SideParams, contam *readCounter, store refstore.Store, rng *rand.Rand) (byte, bool) {
	var base byte
	if contam != nil && rng.Float64() < params.ContamRate {
		source := contam.next()
		gt, ok, err := store.LookupGenotype(g.Positions[pi].Coord, source.Index)
		if err != nil || !ok {
			return 0, false
		}
		base = transmit(gt, rng.Intn(2))
	} else {
		gt := g.At(individualIdx, pi)
		base = transmit(gt, rng.Intn(2))
		if base == 0 {
			// Zero is never a valid base; it marks a position this
			// individual has no genotype for, whether from a
			// ReferenceMissing founder lookup or a non-applicable sex
			// chromosome (e.g. a daughter queried on chrY).
			return 0, false
		}
	}
	if rng.Float64() < params.SeqErrorRate {
		alts := otherBases[base]
		base = alts[rng.Intn(3)]
	}
	return base, true
}
