package fstref

import (
	"context"
	"testing"

	"github.com/grailbio/grups/genome"
)

func coordOf(chr int, pos int64) genome.Coordinate {
	return genome.Coordinate{Chr: chr, Pos: pos}
}

// TestShardRoundTrip covers spec §8 invariant 6: building then reading an
// FST shard round-trips every (pos, sample) -> genotype and (pos, pop) ->
// af pair exactly.
func TestShardRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	samples := []string{"HG00096", "HG00097", "NA12878"}
	pops := []string{"CEU", "GBR"}

	w, err := NewShardWriter(ctx, dir, 1, samples, pops)
	if err != nil {
		t.Fatal(err)
	}
	type genoCase struct {
		pos         int64
		sampleIdx   int
		a0, a1      byte
	}
	genos := []genoCase{
		{100, 0, 'A', 'A'},
		{100, 1, 'A', 'G'},
		{100, 2, 'G', 'G'},
		{250, 0, 'C', 'T'},
	}
	for _, g := range genos {
		if err := w.InsertGenotype(g.pos, g.sampleIdx, g.a0, g.a1); err != nil {
			t.Fatalf("InsertGenotype(%+v): %v", g, err)
		}
	}
	type freqCase struct {
		pos int64
		pop string
		af  float32
	}
	freqs := []freqCase{
		{100, "CEU", 0.25},
		{100, "GBR", 0.5},
		{250, "CEU", 0.1},
	}
	for _, f := range freqs {
		if err := w.InsertFreq(f.pos, f.pop, f.af); err != nil {
			t.Fatalf("InsertFreq(%+v): %v", f, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	s := Open(dir)
	defer s.Close()

	for _, g := range genos {
		got, ok, err := s.LookupGenotype(coordOf(1, g.pos), g.sampleIdx)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatalf("genotype missing for %+v", g)
		}
		if got.Allele0 != g.a0 || got.Allele1 != g.a1 {
			t.Errorf("genotype(%d,%d) = %c/%c, want %c/%c", g.pos, g.sampleIdx, got.Allele0, got.Allele1, g.a0, g.a1)
		}
	}

	for _, f := range freqs {
		got, ok, err := s.LookupAF(coordOf(1, f.pos), f.pop)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatalf("af missing for %+v", f)
		}
		if diff := float64(got) - float64(f.af); diff > 1e-6 || diff < -1e-6 {
			t.Errorf("af(%d,%s) = %v, want %v", f.pos, f.pop, got, f.af)
		}
	}

	if _, ok, _ := s.LookupGenotype(coordOf(1, 999), 0); ok {
		t.Errorf("expected no genotype at unindexed position")
	}
}

func TestNonMonotonicInsertAborts(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	w, err := NewShardWriter(ctx, dir, 2, []string{"S1"}, []string{"POP"})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.InsertGenotype(200, 0, 'A', 'A'); err != nil {
		t.Fatal(err)
	}
	if err := w.InsertGenotype(100, 0, 'A', 'A'); err == nil {
		t.Fatalf("expected FstBuildNonMonotonic error on out-of-order insert")
	}
}
