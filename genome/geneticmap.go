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
package genome

import (
	"math"
	"sort"

	"github.com/grailbio/base/errors"
)

// mapEntry is one (position, centiMorgan) row of a per-chromosome genetic
// map.
type mapEntry struct {
	pos int64
	cm  float64
}

// GeneticMap supports O(log n) position-to-cM lookup and interval
// recombination-probability queries, per chromosome. It is built once at
// startup and is read-only thereafter, so it is safe to share across the
// simulation engine's per-pair workers without locking (spec §5).
type GeneticMap struct {
	entries [NumChromosomes + 1][]mapEntry
}

// NewGeneticMap returns an empty map; use AddEntry to populate it (normally
// via ReadMapFile) and Finalize before use.
func NewGeneticMap() *GeneticMap {
	return &GeneticMap{}
}

// AddEntry appends one (chr, pos, cM) row. Rows for a given chromosome must
// be added in strictly increasing position order; Finalize verifies this.
func (m *GeneticMap) AddEntry(chr int, pos int64, cm float64) {
	m.entries[chr] = append(m.entries[chr], mapEntry{pos: pos, cm: cm})
}

// Finalize verifies that every chromosome's entries are strictly increasing
// in position, per spec §4.1's invariant. Call once after all AddEntry
// calls.
func (m *GeneticMap) Finalize() error {
	for chr, rows := range m.entries {
		for i := 1; i < len(rows); i++ {
			if rows[i].pos <= rows[i-1].pos {
				return errors.E(errors.Invalid, "genome: genetic map entries not strictly increasing",
					"chr", ChromName(chr), "pos", rows[i].pos)
			}
		}
	}
	return nil
}

// HasChromosome reports whether the map has any entries for chr.
func (m *GeneticMap) HasChromosome(chr int) bool {
	return chr >= 0 && chr < len(m.entries) && len(m.entries[chr]) > 0
}

// CMAt returns the interpolated centiMorgan position of (chr, pos). Per spec
// §4.1's edge policy, positions before the first map entry use the first
// entry's rate, and positions after the last entry use the last entry's
// rate; both are realized here as linear extrapolation using the nearest
// bracketing interval's slope.
func (m *GeneticMap) CMAt(chr int, pos int64) float64 {
	rows := m.entries[chr]
	if len(rows) == 0 {
		return 0
	}
	if len(rows) == 1 {
		return rows[0].cm
	}
	// idx is the first row with pos >= the query position.
	idx := sort.Search(len(rows), func(i int) bool { return rows[i].pos >= pos })
	switch {
	case idx == 0:
		return extrapolate(rows[0], rows[1], pos)
	case idx == len(rows):
		return extrapolate(rows[len(rows)-2], rows[len(rows)-1], pos)
	case rows[idx].pos == pos:
		return rows[idx].cm
	default:
		return interpolate(rows[idx-1], rows[idx], pos)
	}
}

func interpolate(a, b mapEntry, pos int64) float64 {
	frac := float64(pos-a.pos) / float64(b.pos-a.pos)
	return a.cm + frac*(b.cm-a.cm)
}

func extrapolate(a, b mapEntry, pos int64) float64 {
	// Same linear formula; for positions outside [a.pos, b.pos] this slope
	// is held constant, matching the "use the bracketing entry's rate"
	// edge policy.
	return interpolate(a, b, pos)
}

// RecombProb returns the probability that the transmitted strand switches
// between positions a and b on chr:
//
//	1 - exp(-2*|cm(b)-cm(a)|/100)
//
// This is twice Haldane's probability of an odd number of crossovers.
// It is monotonic non-decreasing in |Δcm| and always lies in [0,1].
func (m *GeneticMap) RecombProb(chr int, a, b int64) float64 {
	d := math.Abs(m.CMAt(chr, b) - m.CMAt(chr, a))
	return 1 - math.Exp(-2*d/100)
}
