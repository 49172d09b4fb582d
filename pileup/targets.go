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
package pileup

import (
	"bufio"
	"context"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/grups/genome"
	"github.com/klauspost/compress/gzip"
)

// Targets is the optional site allow-list of spec §4.4: when non-nil, a
// pileup record is only considered if its Coordinate is a member.
//
// Per-chromosome sorted position slices mirror the bracket-search idiom used
// throughout this module's teacher (interval.searchPosType): membership is a
// binary search, not a map lookup, so a multi-million-SNP targets file costs
// O(log n) per query and one contiguous slice per chromosome instead of a
// hash table entry per site.
type Targets struct {
	positions [genome.NumChromosomes + 1][]int64
}

// Contains reports whether c is a target site.
func (t *Targets) Contains(c genome.Coordinate) bool {
	if t == nil {
		return true
	}
	ps := t.positions[c.Chr]
	i := sort.Search(len(ps), func(i int) bool { return ps[i] >= c.Pos })
	return i < len(ps) && ps[i] == c.Pos
}

func (t *Targets) add(chr int, pos int64) {
	t.positions[chr] = append(t.positions[chr], pos)
}

// finalize sorts each chromosome's positions so Contains can binary-search.
func (t *Targets) finalize() {
	for chr := range t.positions {
		sort.Slice(t.positions[chr], func(i, j int) bool { return t.positions[chr][i] < t.positions[chr][j] })
	}
}

// LoadTargets parses a targets file in one of the three formats named by
// spec §6: EIGENSTRAT ".snp" (six whitespace-separated columns: name, chr,
// genetic-pos, physical-pos, ref, alt), ".vcf"/".vcf.gz", or
// ".tsv"/".csv"/".txt" with columns "chr pos ref alt".
func LoadTargets(ctx context.Context, path string) (*Targets, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSuffix(path, ".gz")))
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "pileup: opening targets", path)
	}
	defer file.CloseAndReport(ctx, in, &err)

	t := &Targets{}
	rd := in.Reader(ctx)
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, gerr := gzip.NewReader(rd)
		if gerr != nil {
			return nil, errors.E(gerr, "pileup: opening gzip targets", path)
		}
		defer gz.Close()
		rd = gz
	}
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 64<<10), 16<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		var chrTok, posTok string
		switch ext {
		case ".snp":
			if len(fields) < 4 {
				return nil, errors.E(errors.Invalid, "pileup: malformed .snp targets line", "line", strconv.Itoa(lineNo))
			}
			chrTok, posTok = fields[1], fields[3]
		case ".vcf":
			if len(fields) < 2 {
				return nil, errors.E(errors.Invalid, "pileup: malformed .vcf targets line", "line", strconv.Itoa(lineNo))
			}
			chrTok, posTok = fields[0], fields[1]
		default: // .tsv, .csv, .txt: "chr pos ref alt"
			fields = splitAny(line, ",\t ")
			if len(fields) < 2 {
				return nil, errors.E(errors.Invalid, "pileup: malformed targets line", "line", strconv.Itoa(lineNo))
			}
			chrTok, posTok = fields[0], fields[1]
		}
		chr, cerr := genome.ParseChrom(chrTok)
		if cerr != nil {
			return nil, errors.E(cerr, "pileup: targets", "line", strconv.Itoa(lineNo))
		}
		pos, perr := strconv.ParseInt(posTok, 10, 64)
		if perr != nil {
			return nil, errors.E(perr, "pileup: targets position", "line", strconv.Itoa(lineNo))
		}
		t.add(chr, pos)
	}
	if serr := scanner.Err(); serr != nil {
		return nil, errors.E(serr, "pileup: reading targets", path)
	}
	t.finalize()
	return t, nil
}

// splitAny splits s on any byte in seps, collapsing consecutive separators.
func splitAny(s, seps string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return strings.ContainsRune(seps, r) })
}
