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
grups-fst-build scans one reference VCF per chromosome and emits the
per-chromosome FST shards that refstore/fstref reads at random-access
speed.
*/

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/cheggaaa/pb/v3"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"

	"github.com/grailbio/grups/fstbuild"
	"github.com/grailbio/grups/panel"
)

var (
	panelPath     = flag.String("panel", "", "Reference panel path (sample, pop, super_pop[, sex])")
	outDir        = flag.String("out", "", "Output directory for the .fst/.fst.frq shard pairs")
	computePopAFs = flag.Bool("compute-pop-afs", false, "Recompute per-population allele frequencies from panel membership instead of trusting the VCF's INFO fields")
	quiet         = flag.Bool("quiet", false, "Suppress the per-shard progress bar")
)

func usage() {
	fmt.Printf("Usage: %s [OPTIONS] vcf1.vcf.gz [vcf2.vcf.gz ...]\n", os.Args[0])
	fmt.Printf("Each positional argument is one chromosome's reference VCF shard.\n")
	fmt.Printf("Other options:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()
	flag.Parse()

	vcfPaths := flag.Args()
	if len(vcfPaths) == 0 {
		log.Fatalf("Missing positional arguments (at least one VCF shard required); please check flag syntax: '%s'", strings.Join(os.Args[1:], " "))
	}
	if *panelPath == "" {
		log.Fatalf("-panel is required")
	}
	if *outDir == "" {
		log.Fatalf("-out is required")
	}

	ctx := context.Background()
	pnl, err := panel.Load(ctx, *panelPath)
	if err != nil {
		log.Fatalf("%v", err)
	}

	var bar *pb.ProgressBar
	if !*quiet {
		bar = pb.Full.Start64(int64(len(vcfPaths)))
		defer bar.Finish()
	}

	result, err := fstbuild.Build(ctx, fstbuild.Opts{
		VCFPaths:      vcfPaths,
		OutDir:        *outDir,
		Panel:         pnl,
		ComputePopAFs: *computePopAFs,
	})
	if bar != nil {
		bar.SetCurrent(int64(len(vcfPaths)))
	}
	if err != nil {
		log.Panicf("%v", err)
	}
	log.Printf("grups-fst-build: built %d shard(s), dropped %d record(s)", result.ShardsBuilt, result.RecordsDropped)
	for _, f := range result.ShardFailures {
		log.Error.Printf("grups-fst-build: %s", f)
	}
	log.Debug.Printf("exiting")
}
