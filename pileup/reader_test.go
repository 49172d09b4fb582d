package pileup

import "testing"

func TestExpandBasesSimple(t *testing.T) {
	calls, err := expandBases(".,AaN*", "IIIIII", 'C')
	if err != nil {
		t.Fatal(err)
	}
	// '.' -> C, ',' -> C, 'A' -> A, 'a' -> A, 'N' dropped, '*' -> deletion.
	want := []byte{'C', 'C', 'A', 'A', '*'}
	if len(calls) != len(want) {
		t.Fatalf("got %d calls, want %d: %+v", len(calls), len(want), calls)
	}
	for i, w := range want {
		if calls[i].Base != w {
			t.Errorf("calls[%d].Base = %c, want %c", i, calls[i].Base, w)
		}
	}
}

func TestExpandBasesIndelMarkers(t *testing.T) {
	// A read-start marker '^' + mapqchar, a match, an insertion "+2AT", then
	// a read-end marker '$'.
	calls, err := expandBases("^I.+2ATG$", "II", 'G')
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 2 {
		t.Fatalf("got %d calls, want 2: %+v", len(calls), calls)
	}
	if calls[0].Base != 'G' || calls[1].Base != 'G' {
		t.Errorf("calls = %+v, want both resolved to ref G", calls)
	}
}

func TestExpandBasesDeletionMarker(t *testing.T) {
	// "-2AT" describes a 2-base deletion in the next reference positions;
	// it must be skipped entirely and not produce a call at this site.
	calls, err := expandBases("A-2ATC", "II", 'A')
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 2 {
		t.Fatalf("got %d calls, want 2 (A, C): %+v", len(calls), calls)
	}
	if calls[0].Base != 'A' || calls[1].Base != 'C' {
		t.Errorf("calls = %+v", calls)
	}
}

func TestParseLine(t *testing.T) {
	rec, err := parseLine("chr1\t100\tA\t2\t.,\tII\t1\tT\tI")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Coord.Chr != 1 || rec.Coord.Pos != 100 {
		t.Errorf("Coord = %+v", rec.Coord)
	}
	if len(rec.Samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(rec.Samples))
	}
	if len(rec.Samples[0].Calls) != 2 || len(rec.Samples[1].Calls) != 1 {
		t.Errorf("Samples = %+v", rec.Samples)
	}
	if rec.Samples[1].Calls[0].Base != 'T' {
		t.Errorf("Samples[1].Calls[0].Base = %c, want T", rec.Samples[1].Calls[0].Base)
	}
}

func TestParseLineRejectsRaggedColumns(t *testing.T) {
	if _, err := parseLine("chr1\t100\tA\t2\t.,"); err == nil {
		t.Fatalf("expected error for ragged sample columns")
	}
}
