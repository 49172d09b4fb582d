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
package pedigree

import (
	"bufio"
	"context"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/grups/panel"
)

// section names for the legacy format.
const (
	sectionIndividuals  = "INDIVIDUALS"
	sectionRelationships = "RELATIONSHIPS"
	sectionComparisons  = "COMPARISONS"
)

// Load detects the pedigree file's format (standard vs. legacy, spec §4.5)
// and parses it into a validated Pedigree.
func Load(ctx context.Context, path string) (pd *Pedigree, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "pedigree: opening", path)
	}
	defer file.CloseAndReport(ctx, in, &err)

	var lines []string
	scanner := bufio.NewScanner(in.Reader(ctx))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if serr := scanner.Err(); serr != nil {
		return nil, errors.E(serr, "pedigree: reading", path)
	}

	if isLegacyFormat(lines) {
		pd, err = parseLegacy(lines)
	} else {
		pd, err = parseStandard(lines)
	}
	if err != nil {
		return nil, errors.E(err, "pedigree: parsing", path)
	}
	if err := pd.Finalize(); err != nil {
		return nil, errors.E(err, "pedigree: validating", path)
	}
	return pd, nil
}

func isLegacyFormat(lines []string) bool {
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		return strings.EqualFold(l, sectionIndividuals)
	}
	return false
}

// parseStandard reads "iid fid mid [sex]" rows and "COMPARE label id1 id2"
// directives, comments ('#') and blank lines ignored.
func parseStandard(lines []string) (*Pedigree, error) {
	pd := New()
	for lineNo, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if strings.EqualFold(fields[0], "COMPARE") || strings.HasPrefix(strings.ToLower(fields[0]), "compare(") {
			label, left, right, err := parseCompareDirective(fields)
			if err != nil {
				return nil, withLine(err, lineNo+1)
			}
			pd.AddComparison(label, left, right)
			continue
		}
		if len(fields) < 3 {
			return nil, errors.E(errors.Invalid, "expected 'iid fid mid [sex]'", "line", strconv.Itoa(lineNo+1))
		}
		sex := panel.SexUnknown
		if len(fields) >= 4 {
			sex = panel.ParseSex(fields[3])
		}
		if err := pd.AddIndividual(fields[0], sex, fields[1], fields[2]); err != nil {
			return nil, withLine(err, lineNo+1)
		}
	}
	return pd, nil
}

// parseCompareDirective accepts both "COMPARE label id1 id2" and the
// function-call spelling "compare(label, id1, id2)".
func parseCompareDirective(fields []string) (label, left, right string, err error) {
	joined := strings.Join(fields, " ")
	if strings.HasPrefix(strings.ToLower(fields[0]), "compare(") {
		inner := strings.TrimSuffix(strings.TrimPrefix(joined, joined[:strings.Index(joined, "(")+1]), ")")
		parts := strings.Split(inner, ",")
		if len(parts) != 3 {
			return "", "", "", errors.E(errors.Invalid, "malformed compare(...) directive", joined)
		}
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2]), nil
	}
	if len(fields) != 4 {
		return "", "", "", errors.E(errors.Invalid, "expected 'COMPARE label id1 id2'", joined)
	}
	return fields[1], fields[2], fields[3], nil
}

func withLine(err error, line int) error {
	return errors.E(err, "line", strconv.Itoa(line))
}

// parseLegacy reads the keyword-sectioned format:
//
//	INDIVIDUALS
//	iid sex
//	...
//	RELATIONSHIPS
//	iid fid mid
//	...
//	COMPARISONS
//	label id1 id2
//	...
func parseLegacy(lines []string) (*Pedigree, error) {
	pd := New()
	section := ""
	// Individuals may be declared (with sex) before their parent links are
	// known, since RELATIONSHIPS is a separate section; collect first, add
	// parent links in a second pass so AddIndividual's parent-must-already-
	// exist rule is satisfied in declaration order.
	type rel struct{ id, father, mother string }
	var rels []rel
	sexByID := map[string]panel.Sex{}
	var order []string

	for lineNo, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		switch {
		case strings.EqualFold(line, sectionIndividuals):
			section = sectionIndividuals
			continue
		case strings.EqualFold(line, sectionRelationships):
			section = sectionRelationships
			continue
		case strings.EqualFold(line, sectionComparisons):
			section = sectionComparisons
			continue
		}
		fields := strings.Fields(line)
		switch section {
		case sectionIndividuals:
			id := fields[0]
			sex := panel.SexUnknown
			if len(fields) >= 2 {
				sex = panel.ParseSex(fields[1])
			}
			sexByID[id] = sex
			order = append(order, id)
		case sectionRelationships:
			if len(fields) < 3 {
				return nil, errors.E(errors.Invalid, "expected 'iid fid mid'", "line", strconv.Itoa(lineNo+1))
			}
			rels = append(rels, rel{id: fields[0], father: fields[1], mother: fields[2]})
		case sectionComparisons:
			if len(fields) != 3 {
				return nil, errors.E(errors.Invalid, "expected 'label id1 id2'", "line", strconv.Itoa(lineNo+1))
			}
			pd.AddComparison(fields[0], fields[1], fields[2])
		default:
			return nil, errors.E(errors.Invalid, "content before any section header", "line", strconv.Itoa(lineNo+1))
		}
	}

	relByID := map[string]rel{}
	for _, r := range rels {
		relByID[r.id] = r
	}
	for _, r := range rels {
		for _, parentID := range []string{r.father, r.mother} {
			if _, declared := sexByID[parentID]; parentID != "0" && parentID != "" && !declared {
				return nil, errors.E(errors.Invalid, "UnknownParent", parentID, "of", r.id)
			}
		}
	}

	// RELATIONSHIPS may name parents out of INDIVIDUALS declaration order
	// (the two are separate sections), so insert individuals in
	// dependency order rather than assuming the section's order already
	// puts founders first: repeatedly add any not-yet-added individual
	// whose declared parents (if any) are already in the pedigree.
	added := map[string]bool{}
	remaining := append([]string(nil), order...)
	for len(remaining) > 0 {
		progressed := false
		var next []string
		for _, id := range remaining {
			r, hasRel := relByID[id]
			father, mother := "0", "0"
			if hasRel {
				father, mother = r.father, r.mother
			}
			ready := true
			for _, parentID := range []string{father, mother} {
				if parentID != "0" && parentID != "" && !added[parentID] {
					ready = false
				}
			}
			if !ready {
				next = append(next, id)
				continue
			}
			if err := pd.AddIndividual(id, sexByID[id], father, mother); err != nil {
				return nil, err
			}
			added[id] = true
			progressed = true
		}
		if !progressed {
			return nil, errors.E(errors.Invalid, "CycleInPedigree")
		}
		remaining = next
	}
	return pd, nil
}
