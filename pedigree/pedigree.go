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

// Package pedigree models the pedigree DAG: individuals, their founder/
// non-founder status, and the list of requested comparisons between them.
//
// Per the "cyclic refs / parent pointers" design note (spec §9), individuals
// live in a contiguous arena (Pedigree.individuals) and parents are
// referenced by arena index rather than pointer, so the whole structure can
// be copied cheaply into each simulation replicate.
package pedigree

import (
	"github.com/grailbio/base/errors"
	"github.com/grailbio/grups/panel"
)

// noParent is the sentinel index meaning "founder; no declared parent".
const noParent = -1

// Individual is one pedigree member. Father/Mother are arena indices into
// Pedigree.individuals, or noParent for founders.
type Individual struct {
	ID     string
	Sex    panel.Sex
	Father int
	Mother int
}

// IsFounder reports whether this individual has no declared parents.
func (ind Individual) IsFounder() bool {
	return ind.Father == noParent && ind.Mother == noParent
}

// Comparison is one requested pairwise comparison, named by a user-defined
// label (spec §3: "labels are user-defined; left may equal right").
type Comparison struct {
	Label string
	Left  string
	Right string
}

// Pedigree is the arena of individuals plus the list of requested
// comparisons, topologically ordered parent-before-child.
type Pedigree struct {
	individuals []Individual
	byID        map[string]int
	order       []int // topological order, indices into individuals
	Comparisons []Comparison
}

// New returns an empty, mutable Pedigree; use AddIndividual/AddComparison to
// populate it and Finalize to validate and compute topological order.
func New() *Pedigree {
	return &Pedigree{byID: map[string]int{}}
}

// AddIndividual registers one individual. fatherID/motherID may be "" or
// "0" to indicate a founder (both standard and legacy pedigree files use "0"
// as the founder sentinel).
func (pd *Pedigree) AddIndividual(id string, sex panel.Sex, fatherID, motherID string) error {
	if _, dup := pd.byID[id]; dup {
		return errors.E(errors.Invalid, "pedigree: duplicate individual", id)
	}
	idx := len(pd.individuals)
	pd.individuals = append(pd.individuals, Individual{ID: id, Sex: sex, Father: noParent, Mother: noParent})
	pd.byID[id] = idx

	resolve := func(parentID string) (int, error) {
		if parentID == "" || parentID == "0" {
			return noParent, nil
		}
		pidx, ok := pd.byID[parentID]
		if !ok {
			return noParent, errors.E(errors.Invalid, "pedigree: unknown parent", parentID, "of", id)
		}
		return pidx, nil
	}
	fidx, err := resolve(fatherID)
	if err != nil {
		return wrapUnknownParent(err)
	}
	midx, err := resolve(motherID)
	if err != nil {
		return wrapUnknownParent(err)
	}
	pd.individuals[idx].Father = fidx
	pd.individuals[idx].Mother = midx
	return nil
}

func wrapUnknownParent(err error) error {
	return errors.E(err, errors.Invalid, "UnknownParent")
}

// AddComparison registers one requested comparison; both IDs must already be
// declared individuals (verified at Finalize time, per spec §4.5).
func (pd *Pedigree) AddComparison(label, left, right string) {
	pd.Comparisons = append(pd.Comparisons, Comparison{Label: label, Left: left, Right: right})
}

// Lookup returns the arena index of id, or false if undeclared.
func (pd *Pedigree) Lookup(id string) (int, bool) {
	idx, ok := pd.byID[id]
	return idx, ok
}

// Individual returns the individual at arena index idx.
func (pd *Pedigree) Individual(idx int) Individual { return pd.individuals[idx] }

// NumIndividuals returns the number of declared individuals.
func (pd *Pedigree) NumIndividuals() int { return len(pd.individuals) }

// TopologicalOrder returns the arena indices in parent-before-child order,
// computed by Finalize.
func (pd *Pedigree) TopologicalOrder() []int { return pd.order }

// Finalize validates every comparison target and computes the topological
// order, failing with CycleInPedigree if the parent graph has a cycle.
func (pd *Pedigree) Finalize() error {
	for _, cmp := range pd.Comparisons {
		if _, ok := pd.byID[cmp.Left]; !ok {
			return errors.E(errors.Invalid, "UnknownCompareTarget", cmp.Label, cmp.Left)
		}
		if _, ok := pd.byID[cmp.Right]; !ok {
			return errors.E(errors.Invalid, "UnknownCompareTarget", cmp.Label, cmp.Right)
		}
	}
	order, err := topologicalSort(pd.individuals)
	if err != nil {
		return err
	}
	pd.order = order
	return nil
}

// topologicalSort returns a parent-before-child ordering of the individuals
// arena, or CycleInPedigree if no such ordering exists.
func topologicalSort(inds []Individual) ([]int, error) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]int, len(inds))
	order := make([]int, 0, len(inds))

	var visit func(i int) error
	visit = func(i int) error {
		switch color[i] {
		case black:
			return nil
		case gray:
			return errors.E(errors.Invalid, "CycleInPedigree", inds[i].ID)
		}
		color[i] = gray
		if inds[i].Father != noParent {
			if err := visit(inds[i].Father); err != nil {
				return err
			}
		}
		if inds[i].Mother != noParent {
			if err := visit(inds[i].Mother); err != nil {
				return err
			}
		}
		color[i] = black
		order = append(order, i)
		return nil
	}
	for i := range inds {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return order, nil
}
