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
package genome

import (
	"context"
	"io"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
)

// mapRow mirrors the header of a genetic-map file, one per chromosome:
//
//	Chromosome  Position(bp)  Rate(cM/Mb)  Map(cM)
//
// Only Chromosome, Position, and the cumulative Map column are needed; Rate
// is implied by consecutive Map/Position deltas and is not separately
// consulted.
type mapRow struct {
	Chromosome string
	Position   int64
	Rate       float64
	Map        float64
}

// ReadMapFile loads one chromosome's genetic-map TSV into m. Multiple calls
// (one per input file) populate the same GeneticMap, matching the "one file
// per chromosome" input layout of spec §6.
func ReadMapFile(ctx context.Context, m *GeneticMap, path string) (err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return errors.E(err, "genome: opening genetic map", path)
	}
	defer file.CloseAndReport(ctx, in, &err)

	r := tsv.NewReader(in.Reader(ctx))
	r.HasHeaderRow = true
	r.ValidateHeader = false

	nLine := 0
	for {
		var row mapRow
		if rerr := r.Read(&row); rerr != nil {
			if rerr == io.EOF {
				break
			}
			return errors.E(rerr, "genome: parsing genetic map", path, "line", strconv.Itoa(nLine))
		}
		chr, cerr := ParseChrom(row.Chromosome)
		if cerr != nil {
			return errors.E(cerr, "genome: parsing genetic map", path, "line", strconv.Itoa(nLine))
		}
		m.AddEntry(chr, row.Position, row.Map)
		nLine++
	}
	return nil
}
