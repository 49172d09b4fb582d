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
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/grups/genome"
	"github.com/klauspost/compress/gzip"
)

// Call is one expanded, per-read base observation at a site: the resolved
// base character (uppercase A/C/G/T, or '*' for a called deletion; N calls
// are dropped during expansion) and its PHRED-33 base quality.
type Call struct {
	Base byte
	Qual byte // PHRED-scaled quality, i.e. already -33'd.
}

// SampleObs is one sample's column at one pileup record: the reported depth
// (as printed in the file, which may exceed len(Calls) once indel markers
// are stripped out) and the expanded per-read calls.
type SampleObs struct {
	Depth int
	Calls []Call
}

// Record is one parsed pileup line: a site plus each requested sample's
// column.
type Record struct {
	Coord   genome.Coordinate
	Ref     byte
	Samples []SampleObs
}

// Reader is a pull-based sequence of parsed pileup Records, matching the
// "iterator/generator-style pileup parsing" design note (spec §9): the PWD
// engine consumes it with a single forward pass and no callbacks.
type Reader struct {
	sc       *bufio.Scanner
	f        file.File
	ctx      context.Context
	lineNo   int
	err      error
	nSamples int // 0 = infer from first line
}

// Open opens a samtools-style text pileup file (optionally gzip-compressed)
// for streaming.
func Open(ctx context.Context, path string) (*Reader, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "pileup: opening", path)
	}
	var rd io.Reader = f.Reader(ctx)
	if fileio.DetermineType(path) == fileio.Gzip {
		gz, gerr := gzip.NewReader(rd)
		if gerr != nil {
			file.CloseAndReport(ctx, f, &err)
			return nil, errors.E(gerr, "pileup: gzip", path)
		}
		rd = gz
	}
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 64<<10), 64<<20)
	return &Reader{sc: sc, f: f, ctx: ctx}, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	if r.f == nil {
		return nil
	}
	var closeErr error
	file.CloseAndReport(r.ctx, r.f, &closeErr)
	return closeErr
}

// Next parses and returns the next record, or (Record{}, false) at EOF; call
// Err afterwards to distinguish EOF from a parse failure.
func (r *Reader) Next() (Record, bool) {
	if r.err != nil {
		return Record{}, false
	}
	for r.sc.Scan() {
		r.lineNo++
		line := r.sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, err := parseLine(line)
		if err != nil {
			r.err = errors.E(err, "pileup: line", strconv.Itoa(r.lineNo))
			return Record{}, false
		}
		return rec, true
	}
	if err := r.sc.Err(); err != nil {
		r.err = errors.E(err, "pileup: scanning")
	}
	return Record{}, false
}

// Err returns the first error encountered, if any.
func (r *Reader) Err() error { return r.err }

// parseLine parses one "chr pos ref depth bases quals [depth bases quals]..."
// row (spec §6).
func parseLine(line string) (Record, error) {
	fields := strings.Fields(line)
	if len(fields) < 6 {
		return Record{}, errors.E(errors.Invalid, "malformed pileup line (need at least 6 fields)")
	}
	if (len(fields)-3)%3 != 0 {
		return Record{}, errors.E(errors.Invalid, "malformed pileup line (ragged sample columns)")
	}
	chr, err := genome.ParseChrom(fields[0])
	if err != nil {
		return Record{}, err
	}
	pos, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return Record{}, errors.E(err, "invalid position", fields[1])
	}
	ref := upper(fields[2][0])
	nSamples := (len(fields) - 3) / 3
	rec := Record{
		Coord:   genome.Coordinate{Chr: chr, Pos: pos},
		Ref:     ref,
		Samples: make([]SampleObs, nSamples),
	}
	for i := 0; i < nSamples; i++ {
		depthStr := fields[3+3*i]
		basesStr := fields[4+3*i]
		qualsStr := fields[5+3*i]
		depth, derr := strconv.Atoi(depthStr)
		if derr != nil {
			return Record{}, errors.E(derr, "invalid depth", depthStr)
		}
		calls, cerr := expandBases(basesStr, qualsStr, ref)
		if cerr != nil {
			return Record{}, cerr
		}
		rec.Samples[i] = SampleObs{Depth: depth, Calls: calls}
	}
	return rec, nil
}

// expandBases expands one sample's samtools pileup base-string column
// against its quality-string column, per spec §4.4:
//
//   - '+N{bases}'/'-N{bases}': insertion/deletion markers; the N inserted or
//     deleted bases describe the *next* reference position(s), not this one,
//     so they are skipped entirely and do not consume a quality character.
//   - '^X': start-of-read marker; X encodes mapping quality and is skipped
//     along with the '^', neither consumes a quality character.
//   - '$': end-of-read marker; skipped, does not consume a quality character.
//   - '.'/',' : reference match (forward/reverse strand) -> resolved to ref.
//   - '*': called deletion at this position.
//   - 'N'/'n': dropped (spec §4.4 edge policy).
//   - any other letter: an explicit called base.
func expandBases(bases, quals string, ref byte) ([]Call, error) {
	calls := make([]Call, 0, len(bases))
	qi := 0
	nextQual := func() (byte, error) {
		if qi >= len(quals) {
			return 0, errors.E(errors.Invalid, "pileup: quality string shorter than base string")
		}
		q := quals[qi] - 33
		qi++
		return q, nil
	}
	i := 0
	for i < len(bases) {
		c := bases[i]
		switch {
		case c == '^':
			// '^' followed by a mapping-quality byte; both consumed, no
			// quality-string character used.
			i += 2
			continue
		case c == '$':
			i++
			continue
		case c == '+' || c == '-':
			n, width := parseIndelLen(bases[i+1:])
			i += 1 + width + n
			continue
		case c == '*':
			q, err := nextQual()
			if err != nil {
				return nil, err
			}
			calls = append(calls, Call{Base: '*', Qual: q})
			i++
			continue
		case c == '.' || c == ',':
			q, err := nextQual()
			if err != nil {
				return nil, err
			}
			calls = append(calls, Call{Base: ref, Qual: q})
			i++
			continue
		case c == 'N' || c == 'n':
			if _, err := nextQual(); err != nil {
				return nil, err
			}
			i++
			continue
		default:
			q, err := nextQual()
			if err != nil {
				return nil, err
			}
			calls = append(calls, Call{Base: upper(c), Qual: q})
			i++
			continue
		}
	}
	return calls, nil
}

// parseIndelLen parses the decimal run-length following a '+'/'-' marker and
// returns (run length, number of bytes the length itself occupies).
func parseIndelLen(s string) (n int, width int) {
	for width < len(s) && s[width] >= '0' && s[width] <= '9' {
		n = n*10 + int(s[width]-'0')
		width++
	}
	return n, width
}
