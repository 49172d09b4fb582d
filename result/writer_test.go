package result

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/file"

	"github.com/grailbio/grups/pileup"
	"github.com/grailbio/grups/simulate"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	ctx := context.Background()
	f, err := file.Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close(ctx)
	buf := make([]byte, 1<<16)
	n, _ := f.Reader(ctx).Read(buf)
	return string(buf[:n])
}

func TestWritePWDAndResultRoundTrip(t *testing.T) {
	tmpdir := t.TempDir()
	ctx := context.Background()

	raw := pileup.NewAccumulator(5_000_000)
	raw.Overlap, raw.Mismatch = 100, 10
	corrected := pileup.NewAccumulator(5_000_000)
	corrected.Overlap, corrected.Mismatch = 90, 9

	summaries := []*PairSummary{{
		Label:     "pair1",
		Raw:       raw,
		Corrected: corrected,
		Sims: []RelationDist{
			{Label: "unrelated", AvgPWDs: []float64{0.95, 0.96, 0.94}},
			{Label: "parent-child", AvgPWDs: []float64{0.10, 0.09, 0.11}},
		},
	}}
	summaries[0].Assign()

	pwdPath := filepath.Join(tmpdir, "out.pwd")
	if err := WritePWD(ctx, pwdPath, summaries, false, false); err != nil {
		t.Fatal(err)
	}
	content := readFile(t, pwdPath)
	if !strings.Contains(content, "pair1") {
		t.Errorf(".pwd missing pair1 row: %q", content)
	}

	resultPath := filepath.Join(tmpdir, "out.result")
	if err := WriteResult(ctx, resultPath, summaries, false, false); err != nil {
		t.Fatal(err)
	}
	content = readFile(t, resultPath)
	if !strings.Contains(content, "parent-child") {
		t.Errorf(".result missing most-likely call: %q", content)
	}
}

func TestCreateRefusesClobberWithoutOverwrite(t *testing.T) {
	tmpdir := t.TempDir()
	ctx := context.Background()

	path := filepath.Join(tmpdir, "out.pwd")
	if err := WritePWD(ctx, path, nil, false, false); err != nil {
		t.Fatal(err)
	}
	if err := WritePWD(ctx, path, nil, false, false); err == nil {
		t.Fatal("expected ConfigConflict on second write without --overwrite")
	}
	if err := WritePWD(ctx, path, nil, true, false); err != nil {
		t.Errorf("expected --overwrite to succeed, got %v", err)
	}
}

func TestCancelledRunWritesPartialSuffix(t *testing.T) {
	tmpdir := t.TempDir()
	ctx := context.Background()

	path := filepath.Join(tmpdir, "out.pwd")
	if err := WritePWD(ctx, path, nil, false, true); err != nil {
		t.Fatal(err)
	}
	if _, err := file.Open(ctx, path+".partial"); err != nil {
		t.Fatalf(".partial file not created: %v", err)
	}
	if _, err := file.Open(ctx, path); err == nil {
		t.Fatal("non-partial path should not have been created")
	}
}

func TestWriteSimsOrdersByReplicateIndex(t *testing.T) {
	tmpdir := t.TempDir()
	ctx := context.Background()

	rows := []simulate.SimRow{
		{Index: 2, Label: "FC", Founders: map[string]string{"father": "HG001"}, Overlap: 10, Mismatch: 5, AvgPWD: 0.5},
		{Index: 0, Label: "FC", Founders: map[string]string{"father": "HG002"}, Overlap: 10, Mismatch: 4, AvgPWD: 0.4},
		{Index: 1, Label: "FC", Founders: map[string]string{"father": "HG003"}, Overlap: 10, Mismatch: 6, AvgPWD: 0.6},
	}
	path := filepath.Join(tmpdir, "pair1.sims")
	if err := WriteSims(ctx, path, rows, false, false); err != nil {
		t.Fatal(err)
	}
	content := readFile(t, path)
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) != 4 { // header + 3 rows
		t.Fatalf("got %d lines, want 4: %q", len(lines), content)
	}
	if !strings.HasPrefix(lines[1], "0\t") || !strings.HasPrefix(lines[2], "1\t") || !strings.HasPrefix(lines[3], "2\t") {
		t.Errorf("rows not ordered by replicate index: %v", lines[1:])
	}
}

func TestWriteBlocks(t *testing.T) {
	tmpdir := t.TempDir()
	ctx := context.Background()

	blocks := []pileup.Block{
		{Chr: 1, BlockStart: 0, Overlap: 5, Mismatch: 1},
		{Chr: 1, BlockStart: 5_000_000, Overlap: 3, Mismatch: 0},
	}
	path := filepath.Join(tmpdir, "pair1.blk")
	if err := WriteBlocks(ctx, path, blocks, false, false); err != nil {
		t.Fatal(err)
	}
	content := readFile(t, path)
	if strings.Count(content, "\n") != 3 { // header + 2 rows
		t.Errorf("got %q, want 3 lines", content)
	}
}

func TestWriteConfigRoundTrip(t *testing.T) {
	tmpdir := t.TempDir()
	ctx := context.Background()

	cfg := RunConfig{
		PileupPath:    "in.pileup",
		PanelPath:     "panel.tsv",
		PedigreePath:  "ped.txt",
		GeneticMapDir: "maps/",
		ReferencePath: "ref.fst",
		MinDepth:      []int{2, 2},
		NumReplicates: 1000,
		Seed:          42,
	}
	path := filepath.Join(tmpdir, "out.config.yaml")
	if err := WriteConfig(ctx, path, cfg, false, false); err != nil {
		t.Fatal(err)
	}
	content := readFile(t, path)
	if !strings.Contains(content, "num_replicates: 1000") {
		t.Errorf("config YAML missing num_replicates: %q", content)
	}
}
