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
package config

import (
	"github.com/grailbio/base/errors"
	"github.com/grailbio/grups/pedigree"
	"github.com/grailbio/grups/pileup"
)

// BuildPileupPairs turns every comparison declared in pd into a pileup.Pair,
// resolving each side's pileup column index by name via p.SampleNames. A
// comparison naming an individual absent from SampleNames is a config
// error, not a pileup-engine concern, so it is caught here rather than
// deep inside the streaming loop.
func (p Params) BuildPileupPairs(pd *pedigree.Pedigree) ([]pileup.Pair, error) {
	colOf := make(map[string]int, len(p.SampleNames))
	for i, name := range p.SampleNames {
		colOf[name] = i
	}
	depthOf := func(col int) int {
		if col < len(p.MinDepth) {
			return p.MinDepth[col]
		}
		return 0
	}

	pairs := make([]pileup.Pair, 0, len(pd.Comparisons))
	for _, cmp := range pd.Comparisons {
		leftCol, ok := colOf[cmp.Left]
		if !ok {
			return nil, errors.E(errors.Invalid, "config: comparison", cmp.Label,
				"references unknown pileup sample", cmp.Left)
		}
		rightCol, ok := colOf[cmp.Right]
		if !ok {
			return nil, errors.E(errors.Invalid, "config: comparison", cmp.Label,
				"references unknown pileup sample", cmp.Right)
		}
		if leftCol == rightCol && !p.SelfComparison {
			return nil, errors.E(errors.Invalid, "config: comparison", cmp.Label,
				"is a self-comparison; pass -self-comparison to allow it")
		}
		pairs = append(pairs, pileup.Pair{
			Label:      cmp.Label,
			LeftCol:    leftCol,
			RightCol:   rightCol,
			LeftDepth:  depthOf(leftCol),
			RightDepth: depthOf(rightCol),
		})
	}
	return pairs, nil
}
