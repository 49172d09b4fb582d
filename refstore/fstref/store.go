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
package fstref

import (
	"encoding/binary"
	"sort"
	"sync"

	"github.com/blevesearch/vellum"
	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/grups/genome"
	"github.com/grailbio/grups/refstore"
	"golang.org/x/exp/mmap"
)

// chromShard is one chromosome's memory-mapped FST pair plus its header.
type chromShard struct {
	geno, freq *vellum.FST
	samples    []string
	pops       []string
	popID      map[string]uint16
}

// Store implements refstore.Store by memory-mapping one FST shard pair per
// chromosome, lazily, on first access. mu guards the lazily filled shards and
// sampleByID maps, so a Store can be queried from concurrent workers.
type Store struct {
	dir        string
	mu         sync.Mutex
	sampleByID map[string]int
	shards     map[int]*chromShard
}

// Open returns a Store reading shards from dir. Shards are opened lazily by
// chromosome, not eagerly, since a single run may only ever touch a handful
// of chromosomes.
func Open(dir string) *Store {
	return &Store{dir: dir, shards: map[int]*chromShard{}}
}

func (s *Store) shard(chr int) (*chromShard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sh, ok := s.shards[chr]; ok {
		return sh, nil
	}
	genoPath, freqPath, headerPath := shardPaths(s.dir, chr)

	samples, pops, err := readHeader(headerPath)
	if err != nil {
		return nil, errors.E(err, "fstref: reading header", headerPath)
	}
	geno, err := loadFST(genoPath)
	if err != nil {
		return nil, errors.E(err, "fstref: loading genotype FST", genoPath)
	}
	freq, err := loadFST(freqPath)
	if err != nil {
		return nil, errors.E(err, "fstref: loading frequency FST", freqPath)
	}
	popID := make(map[string]uint16, len(pops))
	for i, p := range pops {
		popID[p] = uint16(i)
	}
	sh := &chromShard{geno: geno, freq: freq, samples: samples, pops: pops, popID: popID}
	s.shards[chr] = sh

	if s.sampleByID == nil {
		s.sampleByID = map[string]int{}
	}
	for i, id := range samples {
		s.sampleByID[id] = i
	}
	return sh, nil
}

// loadFST opens path with vellum.Open, which memory-maps the file, so the FST
// pages are shared copy-free across every pair/replicate that queries the
// same shard, per spec §4.3; FST.Close unmaps it.
func loadFST(path string) (*vellum.FST, error) {
	return vellum.Open(path)
}

// readHeader memory-maps the header sidecar and validates its go-farm
// checksum before trusting the sample/population tables it carries.
func readHeader(path string) (samples, pops []string, err error) {
	ra, err := mmap.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer ra.Close()
	buf := make([]byte, ra.Len())
	if _, err := ra.ReadAt(buf, 0); err != nil {
		return nil, nil, err
	}
	if len(buf) < 8 {
		return nil, nil, errors.E(errors.Internal, "fstref: truncated header", path)
	}
	payload, wantSum := buf[:len(buf)-8], binary.BigEndian.Uint64(buf[len(buf)-8:])
	if got := farm.Hash64(payload); got != wantSum {
		return nil, nil, errors.E(errors.Internal, "fstref: header checksum mismatch", path)
	}
	off := 0
	readList := func() []string {
		n := binary.BigEndian.Uint32(payload[off : off+4])
		off += 4
		out := make([]string, n)
		for i := range out {
			l := binary.BigEndian.Uint16(payload[off : off+2])
			off += 2
			out[i] = string(payload[off : off+int(l)])
			off += int(l)
		}
		return out
	}
	samples = readList()
	pops = readList()
	return samples, pops, nil
}

// LookupGenotype implements refstore.Store.
func (s *Store) LookupGenotype(c genome.Coordinate, sampleIdx int) (refstore.Genotype, bool, error) {
	sh, err := s.shard(c.Chr)
	if err != nil {
		return refstore.Genotype{}, false, err
	}
	v, exists, err := sh.geno.Get(genotypeKey(c.Pos, sampleIdx))
	if err != nil {
		return refstore.Genotype{}, false, errors.E(err, "fstref: genotype lookup")
	}
	if !exists {
		return refstore.Genotype{}, false, nil
	}
	a0, a1 := UnpackGenotype(byte(v))
	return refstore.Genotype{Allele0: a0, Allele1: a1}, true, nil
}

// LookupAF implements refstore.Store.
func (s *Store) LookupAF(c genome.Coordinate, pop string) (float32, bool, error) {
	sh, err := s.shard(c.Chr)
	if err != nil {
		return 0, false, err
	}
	id, ok := sh.popID[pop]
	if !ok {
		return 0, false, nil
	}
	v, exists, err := sh.freq.Get(freqKey(c.Pos, id))
	if err != nil {
		return 0, false, errors.E(err, "fstref: frequency lookup")
	}
	if !exists {
		return 0, false, nil
	}
	return UnpackFreq(uint32(v)), true, nil
}

// SampleIndex implements refstore.Store.
func (s *Store) SampleIndex(id string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.sampleByID[id]
	return idx, ok
}

// IteratePositions implements refstore.Store. It walks the genotype FST's
// keys for sample-index 0, which by construction holds an entry for every
// position present in the shard.
func (s *Store) IteratePositions(chr int) (refstore.PositionIter, error) {
	sh, err := s.shard(chr)
	if err != nil {
		return nil, err
	}
	var positions []int64
	itr, err := sh.geno.Iterator(nil, nil)
	for err == nil {
		key, _ := itr.Current()
		pos, sampleIdx := decodeGenotypeKey(key)
		if sampleIdx == 0 {
			positions = append(positions, pos)
		}
		err = itr.Next()
	}
	if err != nil && err != vellum.ErrIteratorDone {
		return nil, errors.E(err, "fstref: iterating positions")
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i] < positions[j] })
	return refstore.NewSlicePositionIter(positions), nil
}

// Close releases every memory-mapped shard held by this Store.
func (s *Store) Close() error {
	var first error
	for _, sh := range s.shards {
		if err := sh.geno.Close(); err != nil && first == nil {
			first = err
		}
		if err := sh.freq.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
