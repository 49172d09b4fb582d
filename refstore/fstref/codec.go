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

// Package fstref implements refstore.Store over a pair of per-chromosome
// finite-state transducers (one genotype FST, one allele-frequency FST),
// built offline by the fstbuild package. Keys are fixed-width big-endian
// encodings so that ascending insertion order is also ascending byte order,
// the invariant vellum's builder requires; values are packed into the
// uint64 a vellum FST natively stores, so no separate value blob is needed.
package fstref

import "encoding/binary"

// genotype packing: 2 bits per allele (A=0,C=1,G=2,T=3), 2 reserved bits,
// matching spec §4.3's "1 byte for diploid phased genotype (2 bits per
// allele + 2 reserved bits)". Reused from biosimd's 2-bit base-packing
// idiom, generalized from 1 allele to a phased pair.
var baseToBits = map[byte]byte{'A': 0, 'C': 1, 'G': 2, 'T': 3}
var bitsToBase = [4]byte{'A', 'C', 'G', 'T'}

// PackGenotype encodes a phased (allele0, allele1) pair into one byte.
func PackGenotype(allele0, allele1 byte) (byte, bool) {
	b0, ok0 := baseToBits[allele0]
	b1, ok1 := baseToBits[allele1]
	if !ok0 || !ok1 {
		return 0, false
	}
	return b0<<2 | b1, true
}

// UnpackGenotype decodes a packed genotype byte back into its two allele
// bytes.
func UnpackGenotype(packed byte) (allele0, allele1 byte) {
	return bitsToBase[(packed>>2)&0x3], bitsToBase[packed&0x3]
}

// frequency fixed-point: 4-byte big-endian, scaled by 2^32-1 so that
// [0.0,1.0] spans the full unsigned range at maximal resolution.
const freqScale = float64(1<<32 - 1)

// PackFreq encodes af (which must be in [0,1]) as a 4-byte fixed-point code.
func PackFreq(af float32) uint32 {
	if af < 0 {
		af = 0
	}
	if af > 1 {
		af = 1
	}
	return uint32(float64(af) * freqScale)
}

// UnpackFreq decodes a fixed-point code back to a float32 in [0,1].
func UnpackFreq(code uint32) float32 {
	return float32(float64(code) / freqScale)
}

// genotypeKey encodes (position, sampleIdx) as an 12-byte big-endian key:
// 8 bytes position, 4 bytes sample index. Fixed width and big-endian so
// ascending (position, sampleIdx) order is ascending byte order.
func genotypeKey(pos int64, sampleIdx int) []byte {
	key := make([]byte, 12)
	binary.BigEndian.PutUint64(key[0:8], uint64(pos))
	binary.BigEndian.PutUint32(key[8:12], uint32(sampleIdx))
	return key
}

// freqKey encodes (position, popID) as a 10-byte big-endian key: 8 bytes
// position, 2 bytes population id.
func freqKey(pos int64, popID uint16) []byte {
	key := make([]byte, 10)
	binary.BigEndian.PutUint64(key[0:8], uint64(pos))
	binary.BigEndian.PutUint16(key[8:10], popID)
	return key
}

func decodeGenotypeKey(key []byte) (pos int64, sampleIdx int) {
	pos = int64(binary.BigEndian.Uint64(key[0:8]))
	sampleIdx = int(binary.BigEndian.Uint32(key[8:12]))
	return
}
