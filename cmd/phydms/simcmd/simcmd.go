// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package simcmd implements a command to emit simulated codon
// alignments under a hand-specified ExpCM, for model-adequacy
// testing.
package simcmd

import (
	"fmt"
	"os"

	"github.com/js-arias/command"

	"github.com/jbloom/phydms/align"
	"github.com/jbloom/phydms/codon"
	"github.com/jbloom/phydms/ctree"
	"github.com/jbloom/phydms/expcm"
	"github.com/jbloom/phydms/newick"
	"github.com/jbloom/phydms/simulate"
)

var Command = &command.Command{
	Usage: `simulate [--kappa <value>] [--omega <value>] [--beta <value>]
	[--branch-scale <value>] [-n <number>] [--seed <value>]
	[-o|--output <prefix>] <tree-file> <prefs-file>`,
	Short: "simulate replicate alignments under an ExpCM",
	Long: `
Command simulate reads a Newick tree and a TSV per-site amino-acid
preference file, builds an ExpCM at the given parameter values, and draws n
independent replicate alignments along the tree, seeded with --seed.

Each replicate is written as its own TSV alignment file, named after the
output prefix (or "replicate" if --output is not set) and a 1-based
replicate number, e.g. "replicate-1.tab", "replicate-2.tab".
	`,
	SetFlags: setFlags,
	Run:      run,
}

var kappaFlag float64
var omegaFlag float64
var betaFlag float64
var branchScale float64
var nReplicates int
var seed uint64
var output string

func setFlags(c *command.Command) {
	c.Flags().Float64Var(&kappaFlag, "kappa", 2, "")
	c.Flags().Float64Var(&omegaFlag, "omega", 0.5, "")
	c.Flags().Float64Var(&betaFlag, "beta", 1, "")
	c.Flags().Float64Var(&branchScale, "branch-scale", 1, "")
	c.Flags().IntVar(&nReplicates, "n", 1, "")
	c.Flags().Uint64Var(&seed, "seed", 1, "")
	c.Flags().StringVar(&output, "output", "replicate", "")
	c.Flags().StringVar(&output, "o", "replicate", "")
}

func run(c *command.Command, args []string) error {
	if len(args) < 2 {
		return c.UsageError("expecting tree file and preference file")
	}

	idx, err := readTree(args[0])
	if err != nil {
		return err
	}
	for i, t := range idx.BranchLength {
		idx.BranchLength[i] = t / branchScale
	}

	prefs, err := readPrefs(args[1])
	if err != nil {
		return err
	}

	phi := [codon.NNucleotides]float64{0.25, 0.25, 0.25, 0.25}
	model, err := expcm.New(prefs, branchScale, kappaFlag, omegaFlag, betaFlag, phi)
	if err != nil {
		return fmt.Errorf("simulate: %v", err)
	}

	reps := simulate.Replicates(idx, model, seed, nReplicates)
	for i, recs := range reps {
		name := fmt.Sprintf("%s-%d.tab", output, i+1)
		if err := writeReplicate(name, recs); err != nil {
			return fmt.Errorf("simulate: %v", err)
		}
	}
	return nil
}

func writeReplicate(name string, recs []align.Record) (err error) {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer func() {
		e := f.Close()
		if err == nil && e != nil {
			err = e
		}
	}()

	fmt.Fprintf(f, "name\tcodons\n")
	for _, r := range recs {
		fmt.Fprintf(f, "%s\t%s\n", r.Name, r.Codons)
	}
	return nil
}

func readTree(name string) (*ctree.Indexed, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	raw, err := newick.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("simulate: while reading tree %q: %v", name, err)
	}
	idx, err := ctree.Index(raw)
	if err != nil {
		return nil, fmt.Errorf("simulate: while indexing tree %q: %v", name, err)
	}
	return idx, nil
}

func readPrefs(name string) ([][codon.NAminoAcids]float64, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	prefs, err := align.ReadPrefs(f)
	if err != nil {
		return nil, fmt.Errorf("simulate: while reading preferences %q: %v", name, err)
	}
	return prefs, nil
}
