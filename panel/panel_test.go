package panel

import "testing"

func TestAddAndLookup(t *testing.T) {
	p := New()
	p.Add(Sample{ID: "HG001", Population: "CEU", SuperPopulation: "EUR", Sex: SexMale, Index: 0})
	p.Add(Sample{ID: "HG002", Population: "CEU", SuperPopulation: "EUR", Sex: SexFemale, Index: 1})
	p.Add(Sample{ID: "NA001", Population: "YRI", SuperPopulation: "AFR", Sex: SexMale, Index: 2})

	s, ok := p.Lookup("HG001")
	if !ok || s.Population != "CEU" {
		t.Fatalf("Lookup(HG001) = %+v, %v", s, ok)
	}

	ceu := p.Population("CEU")
	if len(ceu) != 2 {
		t.Fatalf("Population(CEU) = %v, want 2 members", ceu)
	}

	eur := p.Population("EUR")
	if len(eur) != 2 {
		t.Fatalf("Population(EUR) via super-pop = %v, want 2 members", eur)
	}
}

func TestRequirePopulation(t *testing.T) {
	p := New()
	p.Add(Sample{ID: "A", Population: "CEU", SuperPopulation: "EUR"})

	if err := p.RequirePopulation("CEU", 1); err != nil {
		t.Errorf("RequirePopulation(CEU,1) = %v, want nil", err)
	}
	if err := p.RequirePopulation("CEU", 2); err == nil {
		t.Errorf("RequirePopulation(CEU,2) = nil, want error (too small)")
	}
	if err := p.RequirePopulation("GBR", 1); err == nil {
		t.Errorf("RequirePopulation(GBR,1) = nil, want error (unknown population)")
	}
}

func TestParseSex(t *testing.T) {
	cases := map[string]Sex{
		"M": SexMale, "male": SexMale, "1": SexMale,
		"F": SexFemale, "Female": SexFemale, "2": SexFemale,
		"":  SexUnknown,
		"?": SexUnknown,
	}
	for in, want := range cases {
		if got := ParseSex(in); got != want {
			t.Errorf("ParseSex(%q) = %v, want %v", in, got, want)
		}
	}
}
