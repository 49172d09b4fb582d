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

// Package simulate implements the Monte-Carlo pedigree/meiosis simulation
// engine: per pair, per replicate, it draws founder haplotypes from a
// reference store, propagates them through the pedigree's meioses under a
// genetic map, and emits noisy simulated observations under the same
// contamination/sequencing-error model as the real data.
package simulate

import (
	"encoding/binary"
	"math/rand"

	farm "github.com/dgryski/go-farm"
)

// seedFor derives a per-(pair, replicate) RNG seed from a single global run
// seed, so that replaying a run with the same --seed reproduces identical
// results regardless of worker scheduling, while distinct pairs/replicates
// never share a stream. Mixing uses go-farm, reused from its role hashing
// FST shard headers in refstore/fstref.
func seedFor(globalSeed uint64, pairLabel string, replicate int) uint64 {
	buf := make([]byte, 8+len(pairLabel)+8)
	binary.BigEndian.PutUint64(buf[0:8], globalSeed)
	copy(buf[8:8+len(pairLabel)], pairLabel)
	binary.BigEndian.PutUint64(buf[8+len(pairLabel):], uint64(replicate))
	return farm.Hash64(buf)
}

// NewRNG returns a *rand.Rand private to one (pair, replicate) unit of
// work, safe to hand to a single goroutine.
func NewRNG(globalSeed uint64, pairLabel string, replicate int) *rand.Rand {
	return rand.New(rand.NewSource(int64(seedFor(globalSeed, pairLabel, replicate))))
}
