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
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/grups/pedigree"
	"github.com/grailbio/grups/pileup"
)

// PairOpts configures one pair's full Monte-Carlo run: NumReplicates
// independent replicates, each seeded deterministically from GlobalSeed,
// PairLabel and its replicate index (simulate.NewRNG).
type PairOpts struct {
	PairLabel     string
	GlobalSeed    uint64
	NumReplicates int
	Replicate     ReplicateOpts
}

// SimRow is one replicate's row of the per-pair .sims output (spec §4.7):
// the replicate index, comparison label, the founders chosen for that
// replicate, and the replicate's overlap/mismatch/avg-PWD tally.
type SimRow struct {
	Index    int
	Label    string
	Founders map[string]string
	Overlap  int64
	Mismatch int64
	AvgPWD   float64
}

// RunPair executes every replicate for one pair, concurrently (one worker
// per replicate via traverse.Each, mirroring this module's streaming
// pileup ancestor's per-shard-job parallelism), and rolls the results up
// into a per-comparison-label distribution of per-replicate average PWDs,
// plus the ordered-by-replicate-index rows needed for the .sims writer
// (spec §5's "within one pair's .sims file, replicate indices are
// monotonically increasing"). A FounderShortage from any replicate aborts
// the whole run, per spec §4.6's "FounderShortage is fatal for the run".
func RunPair(pd *pedigree.Pedigree, positions []pileup.PositionDepth, opts PairOpts) (map[string][]float64, []SimRow, error) {
	perReplicate := make([][]ReplicateResult, opts.NumReplicates)

	err := traverse.Each(opts.NumReplicates, func(r int) error {
		rng := NewRNG(opts.GlobalSeed, opts.PairLabel, r)
		rr, rerr := RunReplicate(pd, positions, opts.Replicate, rng)
		if rerr != nil {
			return rerr
		}
		perReplicate[r] = rr
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	byLabel := map[string][]float64{}
	var rows []SimRow
	for idx, rr := range perReplicate {
		for _, r := range rr {
			avg := 0.0
			if r.Overlap > 0 {
				avg = float64(r.Mismatch) / float64(r.Overlap)
			}
			byLabel[r.Label] = append(byLabel[r.Label], avg)
			rows = append(rows, SimRow{
				Index:    idx,
				Label:    r.Label,
				Founders: r.Founders,
				Overlap:  r.Overlap,
				Mismatch: r.Mismatch,
				AvgPWD:   avg,
			})
		}
	}
	if len(opts.Replicate.Emit.ContamPop) > 0 && opts.Replicate.Emit.ContamNumInd > len(opts.Replicate.Emit.ContamPop) {
		log.Error.Printf("simulate: %s: --contam-num-ind (%d) exceeds --contam-pop size (%d); capping",
			opts.PairLabel, opts.Replicate.Emit.ContamNumInd, len(opts.Replicate.Emit.ContamPop))
	}
	return byLabel, rows, nil
}
