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
	"context"
	"encoding/binary"
	"fmt"

	farm "github.com/dgryski/go-farm"
	"github.com/blevesearch/vellum"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// shardPaths returns the three files that make up one chromosome's shard:
// the genotype FST, the frequency FST, and the header sidecar (sample
// order, population table, checksum).
func shardPaths(dir string, chr int) (genoPath, freqPath, headerPath string) {
	base := fmt.Sprintf("%s/chr%d", dir, chr)
	return base + ".fst", base + ".fst.frq", base + ".fst.hdr"
}

// ShardWriter builds one chromosome's FST shard. Keys must be inserted in
// strictly ascending (position, sample-index)/(position, pop-id) order;
// out-of-order insertion aborts the shard with FstBuildNonMonotonic, per
// spec §4.3/§4.4.
type ShardWriter struct {
	ctx     context.Context
	dir     string
	chr     int
	samples []string
	pops    []string
	popID   map[string]uint16

	genoFile file.File
	freqFile file.File
	genoBld  *vellum.Builder
	freqBld  *vellum.Builder

	lastGenoKey []byte
	lastFreqKey []byte
}

// NewShardWriter opens a new shard for chromosome chr under dir, with the
// given sample order (fixing sample-index assignment for the lifetime of
// the shard) and population list (fixing pop-id assignment).
func NewShardWriter(ctx context.Context, dir string, chr int, samples, pops []string) (*ShardWriter, error) {
	genoPath, freqPath, _ := shardPaths(dir, chr)
	genoFile, err := file.Create(ctx, genoPath)
	if err != nil {
		return nil, errors.E(err, "fstref: creating genotype shard", genoPath)
	}
	freqFile, err := file.Create(ctx, freqPath)
	if err != nil {
		return nil, errors.E(err, "fstref: creating frequency shard", freqPath)
	}
	genoBld, err := vellum.New(genoFile.Writer(ctx), nil)
	if err != nil {
		return nil, errors.E(err, "fstref: opening genotype FST builder")
	}
	freqBld, err := vellum.New(freqFile.Writer(ctx), nil)
	if err != nil {
		return nil, errors.E(err, "fstref: opening frequency FST builder")
	}
	popID := make(map[string]uint16, len(pops))
	for i, p := range pops {
		popID[p] = uint16(i)
	}
	return &ShardWriter{
		ctx: ctx, dir: dir, chr: chr,
		samples: samples, pops: pops, popID: popID,
		genoFile: genoFile, freqFile: freqFile,
		genoBld: genoBld, freqBld: freqBld,
	}, nil
}

// InsertGenotype inserts one (position, sample-index) -> genotype tuple.
// pos, sampleIdx must be strictly greater (in key order) than every prior
// call on this writer.
func (w *ShardWriter) InsertGenotype(pos int64, sampleIdx int, allele0, allele1 byte) error {
	packed, ok := PackGenotype(allele0, allele1)
	if !ok {
		return errors.E(errors.Invalid, "fstref: non-ACGT allele", fmt.Sprintf("%c/%c", allele0, allele1))
	}
	key := genotypeKey(pos, sampleIdx)
	if w.lastGenoKey != nil && compareBytes(key, w.lastGenoKey) <= 0 {
		return errors.E(errors.Internal, "FstBuildNonMonotonic", "chr", fmt.Sprintf("%d", w.chr))
	}
	if err := w.genoBld.Insert(key, uint64(packed)); err != nil {
		return errors.E(errors.Internal, err, "FstBuildNonMonotonic")
	}
	w.lastGenoKey = key
	return nil
}

// InsertFreq inserts one (position, population) -> allele-frequency tuple.
func (w *ShardWriter) InsertFreq(pos int64, pop string, af float32) error {
	id, ok := w.popID[pop]
	if !ok {
		return errors.E(errors.Invalid, "fstref: unknown population", pop)
	}
	key := freqKey(pos, id)
	if w.lastFreqKey != nil && compareBytes(key, w.lastFreqKey) <= 0 {
		return errors.E(errors.Internal, "FstBuildNonMonotonic", "chr", fmt.Sprintf("%d", w.chr))
	}
	if err := w.freqBld.Insert(key, uint64(PackFreq(af))); err != nil {
		return errors.E(errors.Internal, err, "FstBuildNonMonotonic")
	}
	w.lastFreqKey = key
	return nil
}

// Close finalizes both FSTs and writes the header sidecar file.
func (w *ShardWriter) Close() error {
	if err := w.genoBld.Close(); err != nil {
		return errors.E(err, "fstref: closing genotype FST builder")
	}
	if err := w.freqBld.Close(); err != nil {
		return errors.E(err, "fstref: closing frequency FST builder")
	}
	var closeErr error
	file.CloseAndReport(w.ctx, w.genoFile, &closeErr)
	if closeErr != nil {
		return errors.E(closeErr, "fstref: closing genotype shard file")
	}
	file.CloseAndReport(w.ctx, w.freqFile, &closeErr)
	if closeErr != nil {
		return errors.E(closeErr, "fstref: closing frequency shard file")
	}
	return writeHeader(w.ctx, w.dir, w.chr, w.samples, w.pops)
}

func compareBytes(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return int(a[i]) - int(b[i])
		}
	}
	return len(a) - len(b)
}

// writeHeader serializes the sample order and population table plus a
// go-farm checksum of the payload, so Store.Open can detect truncated or
// corrupt shards before trusting their contents.
func writeHeader(ctx context.Context, dir string, chr int, samples, pops []string) error {
	_, _, headerPath := shardPaths(dir, chr)
	f, err := file.Create(ctx, headerPath)
	if err != nil {
		return errors.E(err, "fstref: creating header", headerPath)
	}
	var closeErr error
	defer file.CloseAndReport(ctx, f, &closeErr)

	payload := encodeHeaderPayload(samples, pops)
	checksum := farm.Hash64(payload)
	w := f.Writer(ctx)
	if _, err := w.Write(payload); err != nil {
		closeErr = err
		return errors.E(err, "fstref: writing header payload")
	}
	var sumBuf [8]byte
	binary.BigEndian.PutUint64(sumBuf[:], checksum)
	if _, err := w.Write(sumBuf[:]); err != nil {
		closeErr = err
		return errors.E(err, "fstref: writing header checksum")
	}
	return nil
}

func encodeHeaderPayload(samples, pops []string) []byte {
	var buf []byte
	putList := func(items []string) {
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(items)))
		buf = append(buf, n[:]...)
		for _, s := range items {
			var l [2]byte
			binary.BigEndian.PutUint16(l[:], uint16(len(s)))
			buf = append(buf, l[:]...)
			buf = append(buf, s...)
		}
	}
	putList(samples)
	putList(pops)
	return buf
}
