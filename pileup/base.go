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

// Package pileup streams samtools-style text pileup input and computes the
// observed pairwise-mismatch-rate (PWD) statistics of spec §4.4: the
// per-sample allele draws, the per-pair running overlap/mismatch counters,
// and the jack-knife block accumulators used for the confidence interval.
package pileup

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}

// IsTransition reports whether (ref,alt) form a transition substitution
// ({A,G} or {C,T}), used by the transition-exclusion filter (spec §4.4).
func IsTransition(ref, alt byte) bool {
	ref, alt = upper(ref), upper(alt)
	return (ref == 'A' && alt == 'G') || (ref == 'G' && alt == 'A') ||
		(ref == 'C' && alt == 'T') || (ref == 'T' && alt == 'C')
}
