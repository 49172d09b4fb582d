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
package result

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"gopkg.in/yaml.v2"

	"github.com/grailbio/grups/pileup"
	"github.com/grailbio/grups/simulate"
)

// outPath resolves the path to actually write to: suffixed with ".partial"
// when cancelled is set, per spec §5's "a cancellation... leaves partial
// outputs behind with a .partial suffix".
func outPath(path string, cancelled bool) string {
	if cancelled {
		return path + ".partial"
	}
	return path
}

// create opens path for writing, refusing to clobber an existing file
// unless overwrite is set (spec §6: "all are append-free: created fresh,
// refusing to clobber unless --overwrite").
func create(ctx context.Context, path string, overwrite bool) (file.File, error) {
	if !overwrite {
		if existing, openErr := file.Open(ctx, path); openErr == nil {
			_ = existing.Close(ctx)
			return nil, errors.E(errors.NotSupported, "ConfigConflict", "refusing to overwrite", path,
				"pass --overwrite to replace it")
		}
	}
	f, err := file.Create(ctx, path)
	if err != nil {
		return nil, errors.E(err, "result: creating", path)
	}
	return f, nil
}

func writeFloat(w *tsv.Writer, v float64) {
	w.WriteString(strconv.FormatFloat(v, 'f', 6, 64))
}

// WritePWD writes the .pwd file: one line per pair's raw observed PWD
// statistics and jack-knife confidence interval (spec §4.7).
func WritePWD(ctx context.Context, path string, summaries []*PairSummary, overwrite, cancelled bool) (err error) {
	f, err := create(ctx, outPath(path, cancelled), overwrite)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, f, &err)

	w := tsv.NewWriter(f.Writer(ctx))
	w.WriteString("#PAIR\tOVERLAP\tMISMATCH\tAVG_PWD\tCI95_LO\tCI95_HI\tAVG_PHRED")
	if err = w.EndLine(); err != nil {
		return err
	}
	for _, s := range summaries {
		lo, hi := s.Raw.JackknifeCI95()
		w.WriteString(s.Label)
		w.WriteInt64(s.Raw.Overlap)
		w.WriteInt64(s.Raw.Mismatch)
		writeFloat(w, s.Raw.AvgPWD())
		writeFloat(w, lo)
		writeFloat(w, hi)
		writeFloat(w, s.Raw.AvgPhred())
		if err = w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

// WriteResult writes the .result file: corrected counters plus the
// most-likely relationship call and its z-score (spec §4.7). Assign must
// have already been called on each summary.
func WriteResult(ctx context.Context, path string, summaries []*PairSummary, overwrite, cancelled bool) (err error) {
	f, err := create(ctx, outPath(path, cancelled), overwrite)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, f, &err)

	w := tsv.NewWriter(f.Writer(ctx))
	w.WriteString("#PAIR\tOVERLAP\tMISMATCH\tAVG_PWD\tMOST_LIKELY\tSIM_MEAN\tZSCORE")
	if err = w.EndLine(); err != nil {
		return err
	}
	for _, s := range summaries {
		w.WriteString(s.Label)
		w.WriteInt64(s.Corrected.Overlap)
		w.WriteInt64(s.Corrected.Mismatch)
		writeFloat(w, s.Corrected.AvgPWD())
		if s.MostLikely == "" {
			w.WriteString(".")
		} else {
			w.WriteString(s.MostLikely)
		}
		writeFloat(w, s.SimMean)
		writeFloat(w, s.ZScore)
		if err = w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

// WriteSims writes one pair's .sims file: one line per replicate, index
// ascending (spec §5's monotonic-replicate-index ordering guarantee).
func WriteSims(ctx context.Context, path string, rows []simulate.SimRow, overwrite, cancelled bool) (err error) {
	f, err := create(ctx, outPath(path, cancelled), overwrite)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, f, &err)

	sorted := make([]simulate.SimRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	w := tsv.NewWriter(f.Writer(ctx))
	w.WriteString("#INDEX\tLABEL\tFOUNDERS\tOVERLAP\tMISMATCH\tAVG_PWD")
	if err = w.EndLine(); err != nil {
		return err
	}
	for _, r := range sorted {
		w.WriteString(strconv.Itoa(r.Index))
		w.WriteString(r.Label)
		w.WriteString(foundersString(r.Founders))
		w.WriteInt64(r.Overlap)
		w.WriteInt64(r.Mismatch)
		writeFloat(w, r.AvgPWD)
		if err = w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

// foundersString renders a replicate's founder assignments as a
// deterministic, comma-separated "individual=sample" list.
func foundersString(founders map[string]string) string {
	if len(founders) == 0 {
		return "."
	}
	ids := make([]string, 0, len(founders))
	for id := range founders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%s=%s", id, founders[id])
	}
	return out
}

// WriteBlocks writes one pair's .blk file: one line per jack-knife block
// (spec §4.7) with the chromosome number, block start, overlap and
// mismatch. The block end is not written.
func WriteBlocks(ctx context.Context, path string, blocks []pileup.Block, overwrite, cancelled bool) (err error) {
	f, err := create(ctx, outPath(path, cancelled), overwrite)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, f, &err)

	w := tsv.NewWriter(f.Writer(ctx))
	w.WriteString("#CHROM\tBLOCK_START\tOVERLAP\tMISMATCH")
	if err = w.EndLine(); err != nil {
		return err
	}
	for _, b := range blocks {
		w.WriteString(strconv.Itoa(b.Chr))
		w.WriteInt64(b.BlockStart)
		w.WriteInt64(b.Overlap)
		w.WriteInt64(b.Mismatch)
		if err = w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

// RunConfig is the serialized record of every run parameter, written
// alongside the other outputs for reproducibility (spec §4.7's "a
// serialized config record of all run parameters"). Parameters without a
// named field here are recorded as strings in ExtraParams.
type RunConfig struct {
	PileupPath     string            `yaml:"pileup_path"`
	TargetsPath    string            `yaml:"targets_path,omitempty"`
	PanelPath      string            `yaml:"panel_path"`
	PedigreePath   string            `yaml:"pedigree_path"`
	GeneticMapDir  string            `yaml:"genetic_map_dir"`
	ReferencePath  string            `yaml:"reference_path"`
	MinDepth       []int             `yaml:"min_depth"`
	MinQual        int               `yaml:"min_qual"`
	MAF            float64           `yaml:"maf"`
	BlockSize      int64             `yaml:"block_size"`
	NumReplicates  int               `yaml:"num_replicates"`
	Seed           uint64            `yaml:"seed"`
	SexSpecific    bool              `yaml:"sex_specific"`
	XChromMode     bool              `yaml:"x_chrom_mode"`
	PKeep          float64           `yaml:"af_downsampling_keep_prob"`
	SNPKeepProb    float64           `yaml:"snp_downsampling_keep_prob"`
	ContamPop      string            `yaml:"contam_pop,omitempty"`
	ContamNumInd   int               `yaml:"contam_num_ind,omitempty"`
	ExcludeTransit bool              `yaml:"exclude_transitions"`
	ExtraParams    map[string]string `yaml:"extra_params,omitempty"`
}

// WriteConfig serializes cfg as YAML, per spec §4.7's run-config record.
func WriteConfig(ctx context.Context, path string, cfg RunConfig, overwrite, cancelled bool) (err error) {
	f, err := create(ctx, outPath(path, cancelled), overwrite)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, f, &err)

	b, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.E(err, "result: marshalling run config")
	}
	_, err = f.Writer(ctx).Write(b)
	return err
}
