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

	"github.com/grailbio/grups/genome"
	"github.com/grailbio/grups/panel"
	"github.com/grailbio/grups/pedigree"
	"github.com/grailbio/grups/pileup"
	"github.com/grailbio/grups/refstore"
)

// Genomes holds one replicate's simulated diploid genotype for every
// pedigree individual at every one of the pair's observed positions.
// Positions missing a founder's reference genotype are marked invalid and
// skipped everywhere downstream (spec §4.6's "ReferenceMissing... skips
// only the affected position").
type Genomes struct {
	Positions []pileup.PositionDepth
	Valid     []bool
	genotype  [][]refstore.Genotype // [individualIdx][positionIdx]
}

// At returns individual idx's genotype at position pi. Valid[pi] must be
// checked by the caller first.
func (g *Genomes) At(individualIdx, pi int) refstore.Genotype {
	return g.genotype[individualIdx][pi]
}

// PropagateMeiosis draws founder genotypes from store and walks pd's
// non-founders in topological order, implementing spec §4.6 step 2: one
// allele per parent per position, crossover decided per interval via
// gm.RecombProb, optional X-chromosome transmission rules, and optional
// AF-downsampling.
//
// The GLOSSARY describes AF-downsampling as "a draw from the population
// allele frequency"; this falls back to the site's reference base with
// probability 1-pKeep instead. refstore.Store exposes a population's
// alt-allele frequency (LookupAF) but never the alt allele's own identity —
// only ref/alt pairs from a VCF or genotype calls carry actual bases, and
// neither is plumbed into this function — so a true ref-vs-alt weighted
// coin isn't performable here without extending the Store interface and
// threading a population name down from config.Params. Falling back to
// ref is the nearest available proxy without that extension; a later
// pass wiring LookupAF's frequency against the transmitted allele's own
// identity (ref vs non-ref) would make this match the GLOSSARY exactly.
func PropagateMeiosis(
	pd *pedigree.Pedigree,
	founders map[int]panel.Sample,
	store refstore.Store,
	gm *genome.GeneticMap,
	positions []pileup.PositionDepth,
	xChromMode bool,
	pKeep float64,
	rng *rand.Rand,
) (*Genomes, error) {
	n := len(positions)
	g := &Genomes{
		Positions: positions,
		Valid:     make([]bool, n),
		genotype:  make([][]refstore.Genotype, pd.NumIndividuals()),
	}
	for i := range g.Valid {
		g.Valid[i] = true
	}
	for i := range g.genotype {
		g.genotype[i] = make([]refstore.Genotype, n)
	}

	for idx, sample := range founders {
		for pi, pos := range positions {
			gt, ok, err := store.LookupGenotype(pos.Coord, sample.Index)
			if err != nil {
				return nil, err
			}
			if !ok {
				g.Valid[pi] = false
				continue
			}
			g.genotype[idx][pi] = gt
		}
	}

	for _, idx := range pd.TopologicalOrder() {
		ind := pd.Individual(idx)
		if ind.IsFounder() {
			continue
		}
		propagateIndividual(g, pd, idx, ind, gm, xChromMode, pKeep, rng)
	}
	return g, nil
}

func propagateIndividual(
	g *Genomes,
	pd *pedigree.Pedigree,
	idx int,
	ind pedigree.Individual,
	gm *genome.GeneticMap,
	xChromMode bool,
	pKeep float64,
	rng *rand.Rand,
) {
	fatherStrand, motherStrand := rng.Intn(2), rng.Intn(2)
	prevChr := -1
	var prevPos int64

	for pi, pos := range g.Positions {
		if !g.Valid[pi] {
			continue
		}
		if pos.Coord.Chr != prevChr {
			fatherStrand, motherStrand = rng.Intn(2), rng.Intn(2)
		} else {
			if rng.Float64() < gm.RecombProb(pos.Coord.Chr, prevPos, pos.Coord.Pos) {
				fatherStrand ^= 1
			}
			if rng.Float64() < gm.RecombProb(pos.Coord.Chr, prevPos, pos.Coord.Pos) {
				motherStrand ^= 1
			}
		}
		prevChr, prevPos = pos.Coord.Chr, pos.Coord.Pos

		fatherGT := g.At(ind.Father, pi)
		motherGT := g.At(ind.Mother, pi)
		paternal := transmit(fatherGT, fatherStrand)
		maternal := transmit(motherGT, motherStrand)

		if xChromMode {
			switch pos.Coord.Chr {
			case genome.ChrY:
				if ind.Sex != panel.SexMale {
					// Daughters carry no Y at all; leave her genotype at
					// this position as the zero value (no-call), without
					// touching g.Valid, which tracks founder-lookup
					// failures shared across the whole pedigree.
					continue
				}
				// Y is transmitted father->son unrecombined; there is no
				// maternal contribution, so both stored slots carry the
				// same hemizygous value.
				paternal = fatherGT.Allele0
				maternal = paternal
			case genome.ChrX:
				if ind.Sex == panel.SexMale {
					// Sons inherit X only from their mother (recombined
					// normally); represent hemizygosity by duplicating the
					// maternal draw into both stored slots.
					paternal = maternal
				} else {
					// Daughters inherit the father's single X unrecombined.
					paternal = fatherGT.Allele0
				}
			}
		}

		if pKeep < 1 {
			if rng.Float64() >= pKeep {
				paternal = pos.Ref
			}
			if rng.Float64() >= pKeep {
				maternal = pos.Ref
			}
		}

		g.genotype[idx][pi] = refstore.Genotype{Allele0: paternal, Allele1: maternal}
	}
}

func transmit(gt refstore.Genotype, strand int) byte {
	if strand == 0 {
		return gt.Allele0
	}
	return gt.Allele1
}
