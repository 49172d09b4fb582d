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

// Package panel parses the reference-panel definition file (sample -> pop,
// super-pop, sex) and builds the indexes the simulation engine needs to draw
// founders by population and sex.
package panel

import (
	"bufio"
	"context"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// Sex is a pedigree/panel individual's chromosomal sex.
type Sex int

const (
	SexUnknown Sex = iota
	SexMale
	SexFemale
)

func ParseSex(s string) Sex {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "M", "MALE", "1":
		return SexMale
	case "F", "FEMALE", "2":
		return SexFemale
	default:
		return SexUnknown
	}
}

func (s Sex) String() string {
	switch s {
	case SexMale:
		return "M"
	case SexFemale:
		return "F"
	default:
		return "U"
	}
}

// Sample is one reference-panel individual.
type Sample struct {
	ID              string
	Population      string
	SuperPopulation string
	Sex             Sex

	// Index is the sample's 0-based rank in panel-file order; it is the
	// same index used by refstore's (pos, sample-index) lookups, so the
	// panel is the single source of truth for sample ordering.
	Index int
}

// Panel is the parsed (sample -> pop, super-pop, sex) table plus its
// reverse population/super-population indexes.
type Panel struct {
	samples []Sample
	byID    map[string]*Sample
	byPop   map[string][]*Sample
	bySuper map[string][]*Sample
}

// New returns an empty Panel; use Add or Load to populate it.
func New() *Panel {
	return &Panel{
		byID:    map[string]*Sample{},
		byPop:   map[string][]*Sample{},
		bySuper: map[string][]*Sample{},
	}
}

// Add registers one sample. The caller is responsible for assigning
// sequential Index values matching panel-file order (Load does this
// automatically).
func (p *Panel) Add(s Sample) {
	p.samples = append(p.samples, s)
	sp := &p.samples[len(p.samples)-1]
	p.byID[s.ID] = sp
	p.byPop[s.Population] = append(p.byPop[s.Population], sp)
	if s.SuperPopulation != "" {
		p.bySuper[s.SuperPopulation] = append(p.bySuper[s.SuperPopulation], sp)
	}
}

// Samples returns all samples in panel-file order.
func (p *Panel) Samples() []Sample { return p.samples }

// Lookup returns the sample with the given id.
func (p *Panel) Lookup(id string) (Sample, bool) {
	s, ok := p.byID[id]
	if !ok {
		return Sample{}, false
	}
	return *s, true
}

// Population returns every sample belonging to pop (by population or, if
// none match, by super-population).
func (p *Panel) Population(pop string) []Sample {
	if ss, ok := p.byPop[pop]; ok {
		return derefAll(ss)
	}
	return derefAll(p.bySuper[pop])
}

func derefAll(ss []*Sample) []Sample {
	out := make([]Sample, len(ss))
	for i, s := range ss {
		out[i] = *s
	}
	return out
}

// RequirePopulation fails with BadPanel if pop is absent, or has fewer than
// minDistinct distinct members, per spec §4.2.
func (p *Panel) RequirePopulation(pop string, minDistinct int) error {
	members := p.Population(pop)
	if len(members) == 0 {
		return errors.E(errors.Invalid, "panel: unknown population referenced by simulation config", pop)
	}
	if len(members) < minDistinct {
		return errors.E(errors.Precondition, "panel: population too small for founder draw",
			pop, "have", strconv.Itoa(len(members)), "need", strconv.Itoa(minDistinct))
	}
	return nil
}

// Load parses a tab-separated panel definition: "sample pop super_pop
// [sex]", no header required. Blank lines and lines starting with '#' are
// ignored, matching the pedigree parser's comment convention (spec §4.5) so
// both input families read the same way.
func Load(ctx context.Context, path string) (*Panel, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "panel: opening", path)
	}
	defer file.CloseAndReport(ctx, in, &err)

	p := New()
	scanner := bufio.NewScanner(in.Reader(ctx))
	idx := 0
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, errors.E(errors.Invalid, "panel: expected at least 3 columns (sample pop super_pop)",
				path, "line", strconv.Itoa(lineNo))
		}
		s := Sample{
			ID:              fields[0],
			Population:      fields[1],
			SuperPopulation: fields[2],
			Index:           idx,
		}
		if len(fields) >= 4 {
			s.Sex = ParseSex(fields[3])
		}
		p.Add(s)
		idx++
	}
	if serr := scanner.Err(); serr != nil {
		return nil, errors.E(serr, "panel: reading", path)
	}
	return p, nil
}
