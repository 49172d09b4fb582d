package simulate

import (
	"github.com/grailbio/grups/genome"
	"github.com/grailbio/grups/refstore"
)

// fakeStore is a minimal in-memory refstore.Store for tests: genotypes are
// keyed by (coord, sampleIdx); every population has the same uniform AF.
type fakeStore struct {
	genotypes map[genome.Coordinate]map[int]refstore.Genotype
	af        float32
}

func newFakeStore(af float32) *fakeStore {
	return &fakeStore{genotypes: map[genome.Coordinate]map[int]refstore.Genotype{}, af: af}
}

func (s *fakeStore) set(c genome.Coordinate, sampleIdx int, a0, a1 byte) {
	if s.genotypes[c] == nil {
		s.genotypes[c] = map[int]refstore.Genotype{}
	}
	s.genotypes[c][sampleIdx] = refstore.Genotype{Allele0: a0, Allele1: a1}
}

func (s *fakeStore) LookupGenotype(c genome.Coordinate, sampleIdx int) (refstore.Genotype, bool, error) {
	m, ok := s.genotypes[c]
	if !ok {
		return refstore.Genotype{}, false, nil
	}
	g, ok := m[sampleIdx]
	return g, ok, nil
}

func (s *fakeStore) LookupAF(c genome.Coordinate, pop string) (float32, bool, error) {
	return s.af, true, nil
}

func (s *fakeStore) IteratePositions(chr int) (refstore.PositionIter, error) {
	var positions []int64
	for c := range s.genotypes {
		if c.Chr == chr {
			positions = append(positions, c.Pos)
		}
	}
	return refstore.NewSlicePositionIter(positions), nil
}

func (s *fakeStore) SampleIndex(id string) (int, bool) { return 0, false }

func (s *fakeStore) Close() error { return nil }
