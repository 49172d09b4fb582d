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

// Package fstbuild is the offline tool that scans reference VCFs once and
// emits the per-chromosome FST shards refstore/fstref reads at random-access
// speed.
package fstbuild

import (
	"context"
	"sort"
	"strings"

	"github.com/brentp/vcfgo"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/grups/genome"
	"github.com/grailbio/grups/panel"
	"github.com/grailbio/grups/refstore/fstref"
	"github.com/klauspost/compress/gzip"
)

// Opts configures one FST build run.
type Opts struct {
	// VCFPaths holds one VCF[.gz] per chromosome shard; one worker goroutine
	// handles each path.
	VCFPaths []string
	OutDir   string
	Panel    *panel.Panel
	// ComputePopAFs recomputes per-(super)population allele frequencies
	// from panel membership instead of trusting the VCF's own INFO fields.
	ComputePopAFs bool
}

// genotypeCall is one sample's genotype at one position, pending sort by
// idx before ShardWriter.InsertGenotype insertion.
type genotypeCall struct {
	idx    int
	a0, a1 byte
}

// Result summarizes one Build run.
type Result struct {
	ShardsBuilt          int
	RecordsDropped       int // failed the bi-allelic-SNP filter, or a duplicate position
	ShardFailures        []string
}

// Build runs one worker per VCFPaths entry; within a shard, scanning and FST
// insertion are strictly sequential (spec §4.3/§4.4/§5), but the shards
// build concurrently via traverse.Each, mirroring the per-shard-job
// parallelism idiom of this module's streaming pileup ancestor.
func Build(ctx context.Context, opts Opts) (*Result, error) {
	pops := distinctPopulations(opts.Panel)
	sampleNames := sampleNamesInOrder(opts.Panel)

	dropped := make([]int, len(opts.VCFPaths))
	failed := make([]string, len(opts.VCFPaths))

	err := traverse.Each(len(opts.VCFPaths), func(i int) error {
		path := opts.VCFPaths[i]
		n, err := buildOneShard(ctx, path, opts, sampleNames, pops)
		dropped[i] = n
		if err != nil {
			failed[i] = err.Error()
			return errors.E(err, "fstbuild: building shard", path)
		}
		return nil
	})

	res := &Result{}
	for _, n := range dropped {
		res.RecordsDropped += n
	}
	for _, f := range failed {
		if f != "" {
			res.ShardFailures = append(res.ShardFailures, f)
		}
	}
	res.ShardsBuilt = len(opts.VCFPaths) - len(res.ShardFailures)
	if err != nil {
		return res, err
	}
	return res, nil
}

func buildOneShard(ctx context.Context, path string, opts Opts, sampleNames, pops []string) (dropped int, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return 0, errors.E(err, "fstbuild: opening", path)
	}
	defer file.CloseAndReport(ctx, in, &err)

	rd := in.Reader(ctx)
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, gerr := gzip.NewReader(rd)
		if gerr != nil {
			return 0, errors.E(gerr, "fstbuild: opening gzip stream", path)
		}
		defer gz.Close()
		rd = gz
	}
	rdr, err := vcfgo.NewReader(rd, false)
	if err != nil {
		return 0, errors.E(err, "fstbuild: parsing VCF header", path)
	}

	vcfSampleIdx := make([]int, len(rdr.Header.SampleNames))
	nameToOrder := make(map[string]int, len(sampleNames))
	for i, n := range sampleNames {
		nameToOrder[n] = i
	}
	for i, name := range rdr.Header.SampleNames {
		if idx, ok := nameToOrder[name]; ok {
			vcfSampleIdx[i] = idx
		} else {
			vcfSampleIdx[i] = -1
		}
	}

	var chr int
	var writer *fstref.ShardWriter
	var prevPos int64 = -1

	closeWriter := func() error {
		if writer == nil {
			return nil
		}
		return writer.Close()
	}
	defer func() {
		if cerr := closeWriter(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	for {
		v := rdr.Read()
		if v == nil {
			break
		}
		if !isBiallelicSNP(v) {
			dropped++
			continue
		}
		c, perr := genome.ParseChrom(v.Chromosome)
		if perr != nil {
			dropped++
			continue
		}
		if writer == nil {
			chr = c
			writer, err = fstref.NewShardWriter(ctx, opts.OutDir, chr, sampleNames, pops)
			if err != nil {
				return dropped, err
			}
		} else if c != chr {
			return dropped, errors.E(errors.Invalid, "fstbuild: VCF spans multiple chromosomes; split input by chromosome", path)
		}
		pos := int64(v.Pos)
		if pos == prevPos {
			dropped++
			continue
		}
		if pos < prevPos {
			return dropped, errors.E(errors.Internal, "FstBuildNonMonotonic", path)
		}
		prevPos = pos

		ref, alt := v.Ref()[0], v.Alt()[0][0]
		calls := make([]genotypeCall, 0, len(v.Samples))
		for i, gsample := range v.Samples {
			idx := vcfSampleIdx[i]
			if idx < 0 || gsample == nil || len(gsample.GT) < 2 {
				continue
			}
			calls = append(calls, genotypeCall{
				idx: idx,
				a0:  alleleBase(ref, alt, gsample.GT[0]),
				a1:  alleleBase(ref, alt, gsample.GT[1]),
			})
		}
		// ShardWriter.InsertGenotype requires strictly ascending (pos,
		// sampleIdx) keys; the VCF's column order is an independent input
		// from the panel's index assignment, so it is not monotonic in idx
		// and must be sorted before insertion.
		sort.Slice(calls, func(i, j int) bool { return calls[i].idx < calls[j].idx })
		for _, call := range calls {
			if ierr := writer.InsertGenotype(pos, call.idx, call.a0, call.a1); ierr != nil {
				return dropped, ierr
			}
		}
		for _, pop := range pops {
			af, haveAF := lookupOrComputeAF(v, opts, pop, ref, alt, sampleNames, vcfSampleIdx)
			if !haveAF {
				continue
			}
			if ierr := writer.InsertFreq(pos, pop, af); ierr != nil {
				return dropped, ierr
			}
		}
	}
	log.Printf("fstbuild: %s -> chr%d (%d records dropped)", path, chr, dropped)
	return dropped, nil
}

func lookupOrComputeAF(v *vcfgo.Variant, opts Opts, pop string, ref, alt byte, sampleNames []string, vcfSampleIdx []int) (float32, bool) {
	if !opts.ComputePopAFs {
		key := strings.ToUpper(pop) + "_AF"
		if raw, ierr := v.Info().Get(key); ierr == nil {
			switch x := raw.(type) {
			case float32:
				return x, true
			case float64:
				return float32(x), true
			case []float32:
				if len(x) > 0 {
					return x[0], true
				}
			}
		}
	}
	members := opts.Panel.Population(pop)
	if len(members) == 0 {
		return 0, false
	}
	var alt2, total int
	for _, m := range members {
		vi := -1
		for i, idx := range vcfSampleIdx {
			if idx == m.Index {
				vi = i
				break
			}
		}
		if vi < 0 || v.Samples[vi] == nil || len(v.Samples[vi].GT) < 2 {
			continue
		}
		gt := v.Samples[vi].GT
		total += 2
		if alleleBase(ref, alt, gt[0]) == alt {
			alt2++
		}
		if alleleBase(ref, alt, gt[1]) == alt {
			alt2++
		}
	}
	if total == 0 {
		return 0, false
	}
	return float32(alt2) / float32(total), true
}

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

func sampleNamesInOrder(p *panel.Panel) []string {
	samples := p.Samples()
	out := make([]string, len(samples))
	for _, s := range samples {
		out[s.Index] = s.ID
	}
	return out
}

func distinctPopulations(p *panel.Panel) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range p.Samples() {
		if s.Population != "" && !seen[s.Population] {
			seen[s.Population] = true
			out = append(out, s.Population)
		}
		if s.SuperPopulation != "" && !seen[s.SuperPopulation] {
			seen[s.SuperPopulation] = true
			out = append(out, s.SuperPopulation)
		}
	}
	sort.Strings(out)
	return out
}
