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

// Package vcfref implements refstore.Store by loading one or more
// plain or bgzip/gzip (".gz") VCF streams entirely into memory: forward-only scan, bi-allelic
// SNP filter, phased genotypes from the GT field, and population allele
// frequencies either read from a "<POP>_AF" INFO field or computed from
// sample dosages over the panel.
package vcfref

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/brentp/vcfgo"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/grups/genome"
	"github.com/grailbio/grups/panel"
	"github.com/grailbio/grups/refstore"
	"github.com/klauspost/compress/gzip"
)

type siteKey struct {
	chr int
	pos int64
}

type site struct {
	ref, alt byte
	genotype []refstore.Genotype // indexed by panel.Sample.Index
	afByPop  map[string]float32
}

// Store is an in-memory refstore.Store loaded from one or more VCF streams.
type Store struct {
	panel     *panel.Panel
	sites     map[siteKey]*site
	positions map[int][]int64 // chr -> sorted positions, built lazily

	// multiAllelicDropped counts records skipped for failing the
	// bi-allelic-SNP filter, and records skipped for repeating or going
	// back on the previous position of the same chromosome, per the Open
	// Question decision recorded
	// alongside this package: legacy VCFs with a stray multi-allelic site
	// are tolerated by dropping the record and counting it, rather than
	// aborting the whole load.
	multiAllelicDropped int
}

// Load scans every path (opened with file.Open; a path ending in ".gz" is
// decompressed as gzip, which also reads bgzip) and returns a Store indexed
// against p.
func Load(ctx context.Context, p *panel.Panel, paths []string) (*Store, error) {
	s := &Store{panel: p, sites: map[siteKey]*site{}}
	for _, path := range paths {
		if err := s.loadOne(ctx, path); err != nil {
			return nil, errors.E(err, "vcfref: loading", path)
		}
	}
	if s.multiAllelicDropped > 0 {
		log.Printf("vcfref: dropped %d multi-allelic/non-SNP records across %d input(s)", s.multiAllelicDropped, len(paths))
	}
	return s, nil
}

func (s *Store) loadOne(ctx context.Context, path string) (err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, in, &err)

	rd := in.Reader(ctx)
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, gerr := gzip.NewReader(rd)
		if gerr != nil {
			return errors.E(gerr, "vcfref: opening gzip stream")
		}
		defer gz.Close()
		rd = gz
	}
	rdr, err := vcfgo.NewReader(rd, false)
	if err != nil {
		return errors.E(err, "vcfref: parsing VCF header")
	}

	sampleNames := rdr.Header.SampleNames
	sampleIdx := make([]int, len(sampleNames))
	for i, name := range sampleNames {
		sm, ok := s.panel.Lookup(name)
		if !ok {
			sampleIdx[i] = -1
			continue
		}
		sampleIdx[i] = sm.Index
	}

	var prevPos int64 = -1
	prevChr := -1
	for {
		v := rdr.Read()
		if v == nil {
			break
		}
		chr, cerr := genome.ParseChrom(v.Chromosome)
		if cerr != nil {
			continue
		}
		pos := int64(v.Pos)
		if chr == prevChr && pos <= prevPos {
			s.multiAllelicDropped++
			continue
		}
		if !isBiallelicSNP(v) {
			s.multiAllelicDropped++
			continue
		}
		prevChr, prevPos = chr, pos

		st := &site{ref: v.Ref()[0], alt: v.Alt()[0][0], afByPop: map[string]float32{}}
		st.genotype = make([]refstore.Genotype, len(s.panel.Samples()))
		for i, gsample := range v.Samples {
			idx := sampleIdx[i]
			if idx < 0 || gsample == nil || len(gsample.GT) < 2 {
				continue
			}
			st.genotype[idx] = refstore.Genotype{
				Allele0: alleleBase(st.ref, st.alt, gsample.GT[0]),
				Allele1: alleleBase(st.ref, st.alt, gsample.GT[1]),
			}
		}
		s.populateAFs(v, st)
		s.sites[siteKey{chr: chr, pos: pos}] = st
	}
	return nil
}

// isBiallelicSNP mirrors the FST builder's filter (spec §4.3/§4.4): a single
// REF and a single 1-base ALT, and no MULTI_ALLELIC INFO flag.
func isBiallelicSNP(v *vcfgo.Variant) bool {
	if len(v.Ref()) != 1 || len(v.Alt()) != 1 || len(v.Alt()[0]) != 1 {
		return false
	}
	if _, err := v.Info().Get("MULTI_ALLELIC"); err == nil {
		return false
	}
	return true
}

func alleleBase(ref, alt byte, gt int) byte {
	switch gt {
	case 0:
		return ref
	case 1:
		return alt
	default:
		return 'N'
	}
}

// populateAFs fills st.afByPop for every population named in the panel: from
// a "<POP>_AF" INFO field when present, else computed from sample dosages.
func (s *Store) populateAFs(v *vcfgo.Variant, st *site) {
	pops := map[string]bool{}
	for _, sm := range s.panel.Samples() {
		pops[sm.Population] = true
		if sm.SuperPopulation != "" {
			pops[sm.SuperPopulation] = true
		}
	}
	info := v.Info()
	for pop := range pops {
		key := strings.ToUpper(pop) + "_AF"
		if raw, err := info.Get(key); err == nil {
			if af, ok := asFloat32(raw); ok {
				st.afByPop[pop] = af
				continue
			}
		}
		st.afByPop[pop] = dosageAF(s.panel, st, pop)
	}
}

func asFloat32(raw interface{}) (float32, bool) {
	switch x := raw.(type) {
	case float32:
		return x, true
	case float64:
		return float32(x), true
	case []float32:
		if len(x) > 0 {
			return x[0], true
		}
	case string:
		if f, err := strconv.ParseFloat(x, 32); err == nil {
			return float32(f), true
		}
	}
	return 0, false
}

func dosageAF(p *panel.Panel, st *site, pop string) float32 {
	members := p.Population(pop)
	if len(members) == 0 {
		return 0
	}
	var altCount, total int
	for _, m := range members {
		g := st.genotype[m.Index]
		if g.Allele0 == 0 {
			continue // no genotype observed for this sample
		}
		total += 2
		if g.Allele0 == st.alt {
			altCount++
		}
		if g.Allele1 == st.alt {
			altCount++
		}
	}
	if total == 0 {
		return 0
	}
	return float32(altCount) / float32(total)
}

// LookupGenotype implements refstore.Store.
func (s *Store) LookupGenotype(c genome.Coordinate, sampleIdx int) (refstore.Genotype, bool, error) {
	st, ok := s.sites[siteKey{chr: c.Chr, pos: c.Pos}]
	if !ok || sampleIdx < 0 || sampleIdx >= len(st.genotype) {
		return refstore.Genotype{}, false, nil
	}
	g := st.genotype[sampleIdx]
	if g.Allele0 == 0 {
		return refstore.Genotype{}, false, nil
	}
	return g, true, nil
}

// LookupAF implements refstore.Store.
func (s *Store) LookupAF(c genome.Coordinate, pop string) (float32, bool, error) {
	st, ok := s.sites[siteKey{chr: c.Chr, pos: c.Pos}]
	if !ok {
		return 0, false, nil
	}
	af, ok := st.afByPop[pop]
	return af, ok, nil
}

// SampleIndex implements refstore.Store.
func (s *Store) SampleIndex(id string) (int, bool) {
	sm, ok := s.panel.Lookup(id)
	if !ok {
		return 0, false
	}
	return sm.Index, true
}

// IteratePositions implements refstore.Store.
func (s *Store) IteratePositions(chr int) (refstore.PositionIter, error) {
	if s.positions == nil {
		s.buildPositionIndex()
	}
	return refstore.NewSlicePositionIter(s.positions[chr]), nil
}

func (s *Store) buildPositionIndex() {
	s.positions = map[int][]int64{}
	for k := range s.sites {
		s.positions[k.chr] = append(s.positions[k.chr], k.pos)
	}
	for chr := range s.positions {
		ps := s.positions[chr]
		sort.Slice(ps, func(i, j int) bool { return ps[i] < ps[j] })
	}
}

// Close implements refstore.Store. vcfref holds no file handles past Load,
// so Close is a no-op.
func (s *Store) Close() error { return nil }

// MultiAllelicDropped returns the number of records skipped for failing the
// bi-allelic-SNP filter, or for a repeated or backward position, during Load.
func (s *Store) MultiAllelicDropped() int { return s.multiAllelicDropped }
