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

// Package result aggregates one pair's observed PWD statistics against its
// per-relationship simulated distributions and writes the run's output
// files (spec §4.7).
package result

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/grailbio/grups/pileup"
)

// RelationDist is one candidate relationship label's simulated avg-PWD
// distribution, rolled up across every Monte-Carlo replicate that declared
// a comparison under that label (simulate.RunPair's per-label map).
type RelationDist struct {
	Label   string
	AvgPWDs []float64
}

// Mean returns the distribution's sample mean, or 0 for an empty
// distribution.
func (d RelationDist) Mean() float64 {
	if len(d.AvgPWDs) == 0 {
		return 0
	}
	return stat.Mean(d.AvgPWDs, nil)
}

// StdDev returns the distribution's sample standard deviation, or 0 when
// fewer than two replicates are present.
func (d RelationDist) StdDev() float64 {
	if len(d.AvgPWDs) < 2 {
		return 0
	}
	return stat.StdDev(d.AvgPWDs, nil)
}

// PairSummary is one ordered pair's complete result record: observed raw
// and corrected PWD, the candidate relationships it was simulated against,
// and (once Assign is called) the most-likely relationship call.
type PairSummary struct {
	Label     string
	Raw       *pileup.Accumulator
	Corrected *pileup.Accumulator
	Sims      []RelationDist

	MostLikely string
	SimMean    float64
	ZScore     float64
}

// Assign picks the relationship whose simulated mean avg-PWD minimizes
// |z-score| against the pair's corrected observed avg-PWD (spec §4.7's
// "most-likely-relationship, simulated mean for that relationship,
// z-score"). Relationships are considered in Label-ascending order so ties
// resolve deterministically.
func (p *PairSummary) Assign() {
	if len(p.Sims) == 0 {
		return
	}
	ordered := make([]RelationDist, len(p.Sims))
	copy(ordered, p.Sims)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Label < ordered[j].Label })

	observed := p.Corrected.AvgPWD()
	best := ordered[0]
	bestZ := zScore(observed, best.Mean(), best.StdDev())
	for _, d := range ordered[1:] {
		z := zScore(observed, d.Mean(), d.StdDev())
		if math.Abs(z) < math.Abs(bestZ) {
			best, bestZ = d, z
		}
	}
	p.MostLikely = best.Label
	p.SimMean = best.Mean()
	p.ZScore = bestZ
}

// zScore returns (observed-mean)/stddev, or 0 when stddev is 0 (a
// degenerate, zero-variance simulated distribution).
func zScore(observed, mean, stddev float64) float64 {
	if stddev == 0 {
		return 0
	}
	return (observed - mean) / stddev
}

// SortSummaries orders pair summaries by Label ascending, per spec §5's
// "the aggregator must sort before producing human-stable .result lines".
func SortSummaries(summaries []*PairSummary) {
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Label < summaries[j].Label })
}
