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
package main

/*
grups-pedigree-sims compares ancient-DNA pairwise mismatch rates observed in
a pileup against Monte-Carlo-simulated distributions for a set of candidate
pedigree relationships, and reports the most likely relationship per pair.
*/

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cheggaaa/pb/v3"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"

	"github.com/grailbio/grups/config"
	"github.com/grailbio/grups/genome"
	"github.com/grailbio/grups/panel"
	"github.com/grailbio/grups/pedigree"
	"github.com/grailbio/grups/pileup"
	"github.com/grailbio/grups/refstore"
	"github.com/grailbio/grups/refstore/fstref"
	"github.com/grailbio/grups/refstore/vcfref"
	"github.com/grailbio/grups/result"
	"github.com/grailbio/grups/simulate"
)

var (
	pileupPath    = flag.String("pileup", "", "Input pileup path (samtools-style text, .gz ok)")
	targetsPath   = flag.String("targets", "", "Optional target-site list (.snp/.vcf/.tsv)")
	panelPath     = flag.String("panel", "", "Reference panel path (sample, pop, super_pop[, sex])")
	pedigreePath  = flag.String("pedigree", "", "Pedigree definition path (standard or legacy format)")
	geneticMapDir = flag.String("genetic-map-dir", "", "Directory of per-chromosome genetic-map TSVs")
	referencePath = flag.String("reference", "", "Reference genotype store: a VCF[.gz] file or an FST shard directory")
	samples       = flag.String("samples", "", "Comma-separated pileup sample-column names, in file column order")
	minDepth      = flag.String("min-depth", "", "Comma-separated per-sample minimum depth, matching -samples order")
	minQual       = flag.Int("min-qual", 0, "Minimum PHRED base quality")
	maf           = flag.Float64("maf", 0.0, "Minimum population allele frequency for a site to count towards the corrected PWD")
	mafPop        = flag.String("maf-pop", "", "Population LookupAF is queried against for -maf filtering")
	blockSize     = flag.Int64("block-size", 5_000_000, "Jack-knife block size, in bp")
	reps          = flag.Int("reps", 1000, "Number of Monte-Carlo replicates per pair")
	seed          = flag.Uint64("seed", 1, "Global RNG seed")
	sexSpecific   = flag.Bool("sex-specific", false, "Draw sex-specific founders from the reference panel")
	xChromMode    = flag.Bool("x-chrom-mode", false, "Apply X/Y-specific transmission rules")
	pKeep         = flag.Float64("af-keep-prob", 1.0, "AF-downsampling keep probability")
	snpKeepProb   = flag.Float64("snp-keep-prob", 1.0, "SNP-downsampling keep probability")
	contamPop     = flag.String("contam-pop", "", "Population to draw contaminating reads from")
	contamNumInd  = flag.Int("contam-num-ind", 0, "Number of distinct contaminating individuals per replicate")
	contamRate    = flag.Float64("contam-rate", 0.0, "Per-read contamination rate")
	seqErrorRate  = flag.Float64("seq-error-rate", 0.0, "Per-read sequencing-error rate")
	excludeTs     = flag.Bool("exclude-transitions", false, "Exclude transition sites from both raw and corrected PWD")
	selfCompare   = flag.Bool("self-comparison", false, "Allow a sample to be compared against itself")
	overwrite     = flag.Bool("overwrite", false, "Overwrite existing output files")
	outPrefix     = flag.String("out", "grups-pedigree-sims", "Output path prefix")
	threads       = flag.Int("threads", 0, "Worker-count hint (0 = RAYON_NUM_THREADS env, else runtime.NumCPU()); recorded in the run config, not applied to the worker pools")
)

func usage() {
	fmt.Printf("Usage: %s [OPTIONS]\n", os.Args[0])
	fmt.Printf("Other options:\n")
	flag.PrintDefaults()
}

func parseIntList(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	fields := strings.Split(s, ",")
	out := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, errors.E(errors.Invalid, "config: malformed -min-depth entry", f)
		}
		out[i] = n
	}
	return out, nil
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()
	flag.Parse()

	minDepths, err := parseIntList(*minDepth)
	if err != nil {
		log.Fatalf("%v", err)
	}
	var sampleNames []string
	if *samples != "" {
		sampleNames = strings.Split(*samples, ",")
	}

	params := config.DefaultParams()
	params.PileupPath = *pileupPath
	params.TargetsPath = *targetsPath
	params.PanelPath = *panelPath
	params.PedigreePath = *pedigreePath
	params.GeneticMapDir = *geneticMapDir
	params.ReferencePath = *referencePath
	params.SampleNames = sampleNames
	params.MinDepth = minDepths
	params.MinQual = *minQual
	params.MAF = *maf
	params.MAFPopulation = *mafPop
	params.BlockSize = *blockSize
	params.NumReplicates = *reps
	params.Seed = *seed
	params.SexSpecific = *sexSpecific
	params.XChromMode = *xChromMode
	params.PKeep = *pKeep
	params.SNPKeepProb = *snpKeepProb
	params.ContamPop = *contamPop
	params.ContamNumInd = *contamNumInd
	params.ContamRate = *contamRate
	params.SeqErrorRate = *seqErrorRate
	params.ExcludeTransitions = *excludeTs
	params.SelfComparison = *selfCompare
	params.Overwrite = *overwrite
	params.OutPrefix = *outPrefix
	params.Threads = *threads

	if err := params.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		cancel()
	}()

	cancelled, err := run(ctx, params)
	switch {
	case cancelled:
		log.Printf("grups-pedigree-sims: cancelled, partial outputs written with .partial suffix")
		os.Exit(130)
	case err != nil:
		log.Printf("%v", err)
		os.Exit(exitCode(err))
	}
	log.Debug.Printf("exiting")
}

// exitCode maps an error's errors.Kind onto spec §6's exit-code taxonomy:
// Internal (FstBuildNonMonotonic, corrupt reference) is a data error (2);
// Precondition (FounderShortage) is a resource error (3); everything else
// (Invalid, NotSupported, NotExist, ...) is a user/config error (1), the
// same bucket log.Fatalf would otherwise collapse every failure into.
func exitCode(err error) int {
	if e, ok := err.(*errors.Error); ok {
		switch e.Kind {
		case errors.Internal:
			return 2
		case errors.Precondition:
			return 3
		}
	}
	return 1
}

func run(ctx context.Context, params config.Params) (cancelled bool, err error) {
	pnl, err := panel.Load(ctx, params.PanelPath)
	if err != nil {
		return false, err
	}
	pd, err := pedigree.Load(ctx, params.PedigreePath)
	if err != nil {
		return false, err
	}

	gm := genome.NewGeneticMap()
	mapFiles, err := filepath.Glob(filepath.Join(params.GeneticMapDir, "*"))
	if err != nil {
		return false, errors.E(err, "config: listing genetic map directory", params.GeneticMapDir)
	}
	for _, mf := range mapFiles {
		if err := genome.ReadMapFile(ctx, gm, mf); err != nil {
			return false, err
		}
	}
	if err := gm.Finalize(); err != nil {
		return false, err
	}

	store, err := openReferenceStore(ctx, params, pnl)
	if err != nil {
		return false, err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	targets, err := loadTargets(ctx, params.TargetsPath)
	if err != nil {
		return false, err
	}

	pairs, err := params.BuildPileupPairs(pd)
	if err != nil {
		return false, err
	}

	reader, err := pileup.Open(ctx, params.PileupPath)
	if err != nil {
		return false, err
	}
	defer func() {
		if cerr := reader.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	engine := pileup.NewEngine(pileup.Opts{
		Pairs:              pairs,
		MinQual:            byte(params.MinQual),
		Targets:            targets,
		ExcludeTransitions: params.ExcludeTransitions,
		BlockSize:          params.BlockSize,
		CorrectedFilter: func(c genome.Coordinate) bool {
			af, ok, lerr := store.LookupAF(c, params.MAFPopulation)
			return lerr == nil && ok && float64(af) >= params.MAF
		},
	})
	if err := engine.Run(reader); err != nil {
		return false, err
	}

	founderPop := pnl.Samples()
	var contamPopSamples []panel.Sample
	if params.ContamPop != "" {
		contamPopSamples = pnl.Population(params.ContamPop)
	}

	results := engine.Results()
	bar := pb.Full.Start64(int64(len(results)))
	defer bar.Finish()

	summaries := make([]*result.PairSummary, 0, len(results))
	simsByLabel := map[string][]simulate.SimRow{}
	for _, pr := range results {
		select {
		case <-ctx.Done():
			return true, writePartial(ctx, params, summaries, simsByLabel)
		default:
		}

		byLabel, rows, serr := simulate.RunPair(pd, pr.Positions, simulate.PairOpts{
			PairLabel:     pr.Pair.Label,
			GlobalSeed:    params.Seed,
			NumReplicates: params.NumReplicates,
			Replicate: simulate.ReplicateOpts{
				FounderPop:  founderPop,
				SexSpecific: params.SexSpecific,
				XChromMode:  params.XChromMode,
				PKeep:       params.PKeep,
				Store:       store,
				Map:         gm,
				Emit: simulate.EmitOpts{
					ContamPop:    contamPopSamples,
					ContamNumInd: params.ContamNumInd,
					Store:        store,
					SNPKeepProb:  params.SNPKeepProb,
				},
				LeftParams:  simulate.SideParams{ContamRate: params.ContamRate, SeqErrorRate: params.SeqErrorRate},
				RightParams: simulate.SideParams{ContamRate: params.ContamRate, SeqErrorRate: params.SeqErrorRate},
			},
		})
		if serr != nil {
			return false, serr
		}

		sims := make([]result.RelationDist, 0, len(byLabel))
		for label, avgs := range byLabel {
			sims = append(sims, result.RelationDist{Label: label, AvgPWDs: avgs})
		}
		summary := &result.PairSummary{Label: pr.Pair.Label, Raw: pr.Raw, Corrected: pr.Corrected, Sims: sims}
		summary.Assign()
		summaries = append(summaries, summary)
		simsByLabel[pr.Pair.Label] = rows
		bar.Increment()
	}

	result.SortSummaries(summaries)
	if err := writeOutputs(ctx, params, summaries, simsByLabel, results, false); err != nil {
		return false, err
	}
	return false, nil
}

func writePartial(ctx context.Context, params config.Params, summaries []*result.PairSummary, simsByLabel map[string][]simulate.SimRow) error {
	result.SortSummaries(summaries)
	return writeOutputs(ctx, params, summaries, simsByLabel, nil, true)
}

func writeOutputs(ctx context.Context, params config.Params, summaries []*result.PairSummary, simsByLabel map[string][]simulate.SimRow, results []*pileup.PairResult, cancelled bool) error {
	if err := result.WritePWD(ctx, params.OutPrefix+".pwd", summaries, params.Overwrite, cancelled); err != nil {
		return err
	}
	if err := result.WriteResult(ctx, params.OutPrefix+".result", summaries, params.Overwrite, cancelled); err != nil {
		return err
	}
	for label, rows := range simsByLabel {
		path := fmt.Sprintf("%s.%s.sims", params.OutPrefix, label)
		if err := result.WriteSims(ctx, path, rows, params.Overwrite, cancelled); err != nil {
			return err
		}
	}
	for _, pr := range results {
		path := fmt.Sprintf("%s.%s.blk", params.OutPrefix, pr.Pair.Label)
		if err := result.WriteBlocks(ctx, path, pr.Raw.Blocks(), params.Overwrite, cancelled); err != nil {
			return err
		}
	}
	cfg := result.RunConfig{
		PileupPath:     params.PileupPath,
		TargetsPath:    params.TargetsPath,
		PanelPath:      params.PanelPath,
		PedigreePath:   params.PedigreePath,
		GeneticMapDir:  params.GeneticMapDir,
		ReferencePath:  params.ReferencePath,
		MinDepth:       params.MinDepth,
		MinQual:        params.MinQual,
		MAF:            params.MAF,
		BlockSize:      params.BlockSize,
		NumReplicates:  params.NumReplicates,
		Seed:           params.Seed,
		SexSpecific:    params.SexSpecific,
		XChromMode:     params.XChromMode,
		PKeep:          params.PKeep,
		SNPKeepProb:    params.SNPKeepProb,
		ContamPop:      params.ContamPop,
		ContamNumInd:   params.ContamNumInd,
		ExcludeTransit: params.ExcludeTransitions,
		ExtraParams: map[string]string{
			"samples":         strings.Join(params.SampleNames, ","),
			"maf_pop":         params.MAFPopulation,
			"seq_error_rate":  strconv.FormatFloat(params.SeqErrorRate, 'g', -1, 64),
			"contam_rate":     strconv.FormatFloat(params.ContamRate, 'g', -1, 64),
			"self_comparison": strconv.FormatBool(params.SelfComparison),
			"overwrite":       strconv.FormatBool(params.Overwrite),
			"out_prefix":      params.OutPrefix,
			"threads":         strconv.Itoa(params.Threads),
		},
	}
	return result.WriteConfig(ctx, params.OutPrefix+".config.yaml", cfg, params.Overwrite, cancelled)
}

func openReferenceStore(ctx context.Context, params config.Params, pnl *panel.Panel) (refstore.Store, error) {
	info, statErr := os.Stat(params.ReferencePath)
	if statErr == nil && info.IsDir() {
		return fstref.Open(params.ReferencePath), nil
	}
	return vcfref.Load(ctx, pnl, []string{params.ReferencePath})
}

func loadTargets(ctx context.Context, path string) (*pileup.Targets, error) {
	if path == "" {
		return nil, nil
	}
	return pileup.LoadTargets(ctx, path)
}
