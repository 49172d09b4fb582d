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

	"github.com/grailbio/base/errors"
	"github.com/grailbio/grups/panel"
	"github.com/grailbio/grups/pedigree"
)

// AssignFounders picks, for each founder in pd, a distinct reference sample
// (by panel.Sample.Index) from pop. When sexSpecific is set, a founder with
// a declared sex draws only from same-sex members, per spec §4.6 step 1.
// Sampling is without replacement within the replicate. Returns
// FounderShortage if pop doesn't have enough (sex-matching) members.
func AssignFounders(pd *pedigree.Pedigree, pop []panel.Sample, sexSpecific bool, rng *rand.Rand) (map[int]panel.Sample, error) {
	assigned := make(map[int]panel.Sample)
	used := make(map[int]bool)

	for _, idx := range pd.TopologicalOrder() {
		ind := pd.Individual(idx)
		if !ind.IsFounder() {
			continue
		}
		candidates := pop
		if sexSpecific && ind.Sex != panel.SexUnknown {
			candidates = filterBySex(pop, ind.Sex)
		}
		sample, ok := drawUnused(candidates, used, rng)
		if !ok {
			return nil, errors.E(errors.Precondition, "FounderShortage",
				"individual", ind.ID, "population size", len(candidates))
		}
		assigned[idx] = sample
		used[sample.Index] = true
	}
	return assigned, nil
}

func filterBySex(pop []panel.Sample, sex panel.Sex) []panel.Sample {
	out := make([]panel.Sample, 0, len(pop))
	for _, s := range pop {
		if s.Sex == sex {
			out = append(out, s)
		}
	}
	return out
}

// drawUnused draws a uniformly random candidate not yet in used. It scans
// rather than pre-filtering so that "no candidates left" (FounderShortage)
// and "all candidates already assigned" both surface as ok=false without a
// separate count check.
func drawUnused(candidates []panel.Sample, used map[int]bool, rng *rand.Rand) (panel.Sample, bool) {
	available := make([]panel.Sample, 0, len(candidates))
	for _, s := range candidates {
		if !used[s.Index] {
			available = append(available, s)
		}
	}
	if len(available) == 0 {
		return panel.Sample{}, false
	}
	return available[rng.Intn(len(available))], true
}
