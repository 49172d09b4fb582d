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

// Package refstore defines the reference-genotype capability set shared by
// the two concrete backends (refstore/vcfref, refstore/fstref): "at
// coordinate C, give me the diploid genotype of reference sample S" and
// "give me the population allele frequency for population P."
package refstore

import (
	"github.com/grailbio/grups/genome"
)

// Genotype is a phased diploid genotype: two allele bytes (A/C/G/T), allele
// 0 paternal, allele 1 maternal.
type Genotype struct {
	Allele0 byte
	Allele1 byte
}

// Het reports whether the two alleles differ.
func (g Genotype) Het() bool { return g.Allele0 != g.Allele1 }

// Store is the read-only capability set every reference backend implements.
// LookupGenotype, LookupAF and SampleIndex are safe for concurrent use by
// multiple simulation workers: vcfref.Store loads every site into memory up
// front (only its IteratePositions index is built lazily, on first call);
// fstref.Store memory-maps immutable shard files and guards its lazily
// filled shard cache with a mutex.
type Store interface {
	// LookupGenotype returns the phased genotype of sample sampleIdx at c.
	// ok is false if c is absent from the store (spec's ReferenceMissing
	// condition).
	LookupGenotype(c genome.Coordinate, sampleIdx int) (g Genotype, ok bool, err error)

	// LookupAF returns the alternate-allele frequency of population pop at
	// c. ok is false if c or pop is absent.
	LookupAF(c genome.Coordinate, pop string) (af float32, ok bool, err error)

	// IteratePositions returns every position on chromosome chr known to the
	// store, ascending. The PWD and simulation engines do not call it; they
	// work from the pileup's own positions.
	IteratePositions(chr int) (PositionIter, error)

	// SampleIndex returns the store-internal index of sample id, used to key
	// LookupGenotype calls; ok is false if id is unknown to this store.
	SampleIndex(id string) (idx int, ok bool)

	// Close releases any file handles or memory maps held by the store.
	Close() error
}

// PositionIter yields a chromosome's known positions in ascending order.
type PositionIter interface {
	// Next advances the iterator and reports whether a position is
	// available; the zero value is returned once exhausted.
	Next() (pos int64, ok bool)
	Err() error
}

// SlicePositionIter adapts a pre-sorted []int64 to PositionIter, used by
// both concrete backends (vcfref builds the slice from its loaded sites;
// fstref decodes it from a shard's key list).
type SlicePositionIter struct {
	positions []int64
	i         int
}

// NewSlicePositionIter returns a PositionIter over positions, which must
// already be sorted ascending.
func NewSlicePositionIter(positions []int64) *SlicePositionIter {
	return &SlicePositionIter{positions: positions}
}

func (it *SlicePositionIter) Next() (int64, bool) {
	if it.i >= len(it.positions) {
		return 0, false
	}
	p := it.positions[it.i]
	it.i++
	return p, true
}

func (it *SlicePositionIter) Err() error { return nil }
