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
package pileup

import (
	"math"

	"github.com/grailbio/grups/genome"
)

// Block is one jack-knife block's sufficient statistics: the overlap and
// mismatch counts of every site whose position falls in
// [BlockStart, BlockStart+blockSize) on Chr.
type Block struct {
	Chr        int
	BlockStart int64
	Overlap    int64
	Mismatch   int64
}

type blockKey struct {
	chr   int
	block int64
}

// Accumulator holds one ordered pair's running PWD statistics as the pileup
// streams past (spec §3's PwdAccumulator): overlap/mismatch counts, summed
// phred, and jack-knife blocks. Accumulators monotonically grow; they are
// never reset mid-stream (package simulate instead tallies each replicate
// afresh in a simulate.ReplicateResult).
type Accumulator struct {
	Overlap    int64
	Mismatch   int64
	SumPhred   float64
	blockSize  int64
	blocks     map[blockKey]*Block
	blockOrder []blockKey
}

// NewAccumulator returns an empty accumulator using the given jack-knife
// block size (in bp).
func NewAccumulator(blockSize int64) *Accumulator {
	if blockSize <= 0 {
		blockSize = 5_000_000
	}
	return &Accumulator{blockSize: blockSize, blocks: map[blockKey]*Block{}}
}

// AvgPWD returns Mismatch/Overlap, or 0 if Overlap is 0.
func (a *Accumulator) AvgPWD() float64 {
	if a.Overlap == 0 {
		return 0
	}
	return float64(a.Mismatch) / float64(a.Overlap)
}

// AvgPhred returns the mean phred score across both sides of every
// contributing site.
func (a *Accumulator) AvgPhred() float64 {
	if a.Overlap == 0 {
		return 0
	}
	return a.SumPhred / float64(2*a.Overlap)
}

// Blocks returns the accumulated jack-knife blocks in first-seen order
// (stable, for deterministic .blk output).
func (a *Accumulator) Blocks() []Block {
	out := make([]Block, len(a.blockOrder))
	for i, k := range a.blockOrder {
		out[i] = *a.blocks[k]
	}
	return out
}

// add records one overlapping, compared site: mismatch iff left != right,
// plus both sides' phred scores and the owning jack-knife block.
func (a *Accumulator) add(c genome.Coordinate, leftBase, rightBase byte, leftQual, rightQual byte, mismatch bool) {
	a.Overlap++
	if mismatch {
		a.Mismatch++
	}
	a.SumPhred += float64(leftQual) + float64(rightQual)

	bk := blockKey{chr: c.Chr, block: c.Pos / a.blockSize}
	b, ok := a.blocks[bk]
	if !ok {
		b = &Block{Chr: c.Chr, BlockStart: bk.block * a.blockSize}
		a.blocks[bk] = b
		a.blockOrder = append(a.blockOrder, bk)
	}
	b.Overlap++
	if mismatch {
		b.Mismatch++
	}
}

// JackknifeCI95 computes a delete-one-block jack-knife 95% confidence
// interval around AvgPWD, per spec §4.7. With fewer than two blocks the
// interval collapses to (AvgPWD, AvgPWD).
func (a *Accumulator) JackknifeCI95() (lo, hi float64) {
	blocks := a.Blocks()
	n := len(blocks)
	point := a.AvgPWD()
	if n < 2 {
		return point, point
	}
	pseudo := make([]float64, n)
	for i, b := range blocks {
		ov := a.Overlap - b.Overlap
		mm := a.Mismatch - b.Mismatch
		leaveOneOut := 0.0
		if ov > 0 {
			leaveOneOut = float64(mm) / float64(ov)
		}
		pseudo[i] = float64(n)*point - float64(n-1)*leaveOneOut
	}
	mean := 0.0
	for _, p := range pseudo {
		mean += p
	}
	mean /= float64(n)
	variance := 0.0
	for _, p := range pseudo {
		variance += (p - mean) * (p - mean)
	}
	variance /= float64(n * (n - 1))
	se := math.Sqrt(variance)
	const z95 = 1.959963984540054
	return mean - z95*se, mean + z95*se
}
