package config

import (
	"os"
	"testing"
)

func TestValidateRequiresCoreInputs(t *testing.T) {
	p := DefaultParams()
	if err := p.Validate(); err == nil {
		t.Fatal("expected error for missing -pileup/-panel/-pedigree/-reps")
	}
	p.PileupPath, p.PanelPath, p.PedigreePath, p.NumReplicates = "a", "b", "c", 1000
	if err := p.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsOutOfRangeProbabilities(t *testing.T) {
	p := DefaultParams()
	p.PileupPath, p.PanelPath, p.PedigreePath, p.NumReplicates = "a", "b", "c", 1000
	p.PKeep = 1.5
	if err := p.Validate(); err == nil {
		t.Fatal("expected error for PKeep > 1")
	}
}

func TestNumWorkersPrecedence(t *testing.T) {
	p := DefaultParams()
	p.Threads = 7
	if got := p.NumWorkers(); got != 7 {
		t.Fatalf("NumWorkers() = %d, want 7 (explicit flag wins)", got)
	}

	p.Threads = 0
	os.Setenv("RAYON_NUM_THREADS", "3")
	defer os.Unsetenv("RAYON_NUM_THREADS")
	if got := p.NumWorkers(); got != 3 {
		t.Fatalf("NumWorkers() = %d, want 3 (env hint)", got)
	}
}
