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

// Package config holds the engine's run parameters as a single Params
// struct (mirroring the teacher's per-command Opts structs, e.g.
// pileup/snp.Opts), flag-parsed in cmd/ and validated once at startup.
package config

import (
	"os"
	"runtime"
	"strconv"

	"github.com/grailbio/base/errors"
)

// Params is every run parameter the pedigree-simulation engine needs,
// populated from flags in cmd/. cmd/ copies these fields into the written
// result.RunConfig record; the ones RunConfig has no named field for go into
// its ExtraParams map.
type Params struct {
	PileupPath    string
	TargetsPath   string
	PanelPath     string
	PedigreePath  string
	GeneticMapDir string
	ReferencePath string

	// SampleNames gives the pileup file's sample columns, in file order;
	// pedigree comparisons reference these same IDs (spec §3: "labels are
	// user-defined; left may equal right"), so this is what turns a
	// pedigree.Comparison into a pileup.Pair's column indices.
	SampleNames []string
	MinDepth    []int
	MinQual     int
	MAF         float64
	// MAFPopulation is the population LookupAF is queried against when
	// deciding whether a site counts towards the "corrected" PWD (spec
	// §4.4).
	MAFPopulation string
	BlockSize     int64

	NumReplicates int
	Seed          uint64
	SexSpecific   bool
	XChromMode    bool
	PKeep         float64 // AF-downsampling keep probability
	SNPKeepProb   float64 // SNP-downsampling keep probability

	ContamPop    string
	ContamNumInd int
	SeqErrorRate float64
	ContamRate   float64

	ExcludeTransitions bool
	SelfComparison     bool
	Overwrite          bool
	OutPrefix          string

	// Threads is the user-requested worker count; 0 means "use
	// NumWorkers's resolution order" (spec §6's RAYON_NUM_THREADS hint).
	Threads int
}

// DefaultParams returns a Params with the engine's documented defaults,
// the same role as the teacher's flag.X(...) default-value arguments.
func DefaultParams() Params {
	return Params{
		MinQual:     0,
		BlockSize:   5_000_000,
		PKeep:       1.0,
		SNPKeepProb: 1.0,
		OutPrefix:   "grups-pedigree-sims",
	}
}

// Validate checks the minimal invariants a flag parser can't express
// directly: -pileup, -panel and -pedigree are set, -reps is positive, and
// both keep probabilities lie in [0,1]. Every failure is an errors.Invalid
// error (exit 1).
func (p Params) Validate() error {
	if p.PileupPath == "" {
		return errors.E(errors.Invalid, "config: -pileup is required")
	}
	if p.PanelPath == "" {
		return errors.E(errors.Invalid, "config: -panel is required")
	}
	if p.PedigreePath == "" {
		return errors.E(errors.Invalid, "config: -pedigree is required")
	}
	if p.NumReplicates <= 0 {
		return errors.E(errors.Invalid, "config: -reps must be positive", strconv.Itoa(p.NumReplicates))
	}
	if p.PKeep < 0 || p.PKeep > 1 {
		return errors.E(errors.Invalid, "config: -af-keep-prob must be in [0,1]")
	}
	if p.SNPKeepProb < 0 || p.SNPKeepProb > 1 {
		return errors.E(errors.Invalid, "config: -snp-keep-prob must be in [0,1]")
	}
	return nil
}

// NumWorkers resolves the worker-count hint, per spec §6's "the engine
// respects a RAYON_NUM_THREADS-style hint for worker count": an explicit
// -threads flag wins, then the RAYON_NUM_THREADS environment variable,
// then runtime.NumCPU().
func (p Params) NumWorkers() int {
	if p.Threads > 0 {
		return p.Threads
	}
	if v := os.Getenv("RAYON_NUM_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return runtime.NumCPU()
}
