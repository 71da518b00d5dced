// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package like implements a command to report the log-likelihood and
// gradient of an ExpCM at a fixed parameter set, without optimizing.
package like

import (
	"fmt"
	"os"

	"github.com/js-arias/command"

	"github.com/jbloom/phydms/align"
	"github.com/jbloom/phydms/codon"
	"github.com/jbloom/phydms/ctree"
	"github.com/jbloom/phydms/engine"
	"github.com/jbloom/phydms/expcm"
	"github.com/jbloom/phydms/newick"
)

var Command = &command.Command{
	Usage: `like [--kappa <value>] [--omega <value>] [--beta <value>]
	[--branch-scale <value>]
	<tree-file> <alignment-file> <prefs-file>`,
	Short: "report the likelihood of a fixed ExpCM",
	Long: `
Command like reads a Newick tree, a TSV codon alignment, and a TSV per-site
amino-acid preference file, builds an ExpCM at the given (fixed) parameter
values, and reports its log-likelihood, per-site log-likelihood, and gradient
without running an optimizer. It is the read-only counterpart of fit.
	`,
	SetFlags: setFlags,
	Run:      run,
}

var kappaFlag float64
var omegaFlag float64
var betaFlag float64
var branchScale float64

func setFlags(c *command.Command) {
	c.Flags().Float64Var(&kappaFlag, "kappa", 2, "")
	c.Flags().Float64Var(&omegaFlag, "omega", 0.5, "")
	c.Flags().Float64Var(&betaFlag, "beta", 1, "")
	c.Flags().Float64Var(&branchScale, "branch-scale", 1, "")
}

func run(c *command.Command, args []string) error {
	if len(args) < 3 {
		return c.UsageError("expecting tree file, alignment file, and preference file")
	}

	idx, err := readTree(args[0])
	if err != nil {
		return err
	}
	for i, t := range idx.BranchLength {
		idx.BranchLength[i] = t / branchScale
	}

	prefs, err := readPrefs(args[2])
	if err != nil {
		return err
	}
	tips, gaps, err := readAlignment(args[1], idx, len(prefs))
	if err != nil {
		return err
	}

	phi := [codon.NNucleotides]float64{0.25, 0.25, 0.25, 0.25}
	model, err := expcm.New(prefs, branchScale, kappaFlag, omegaFlag, betaFlag, phi)
	if err != nil {
		return fmt.Errorf("like: %v", err)
	}

	e, err := engine.New(idx, tips, gaps, model)
	if err != nil {
		return fmt.Errorf("like: %v", err)
	}

	return writeReport(c, e)
}

func writeReport(c *command.Command, e *engine.Engine) error {
	w := c.Stdout()
	fmt.Fprintf(w, "# logLikelihood: %.6f\n", e.LogLik())
	for _, p := range []string{"kappa", "omega", "beta"} {
		fmt.Fprintf(w, "# dLogLik[%s]: %.6e\n", p, e.DLogLik(p).(float64))
	}
	for i, v := range e.DLogLik("phi").([]float64) {
		fmt.Fprintf(w, "# dLogLik[phi[%c]]: %.6e\n", codon.NucleotideLetter(i), v)
	}
	fmt.Fprintf(w, "site\tsiteLogLik\n")
	for r, v := range e.SiteLogLik() {
		fmt.Fprintf(w, "%d\t%.6f\n", r, v)
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
		return nil, fmt.Errorf("like: while reading tree %q: %v", name, err)
	}
	idx, err := ctree.Index(raw)
	if err != nil {
		return nil, fmt.Errorf("like: while indexing tree %q: %v", name, err)
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
		return nil, fmt.Errorf("like: while reading preferences %q: %v", name, err)
	}
	return prefs, nil
}

func readAlignment(name string, idx *ctree.Indexed, nsites int) ([][]int, []map[int]bool, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	recs, err := align.ReadTSV(f)
	if err != nil {
		return nil, nil, fmt.Errorf("like: while reading alignment %q: %v", name, err)
	}
	tips, gaps, err := align.Encode(idx, nsites, recs)
	if err != nil {
		return nil, nil, fmt.Errorf("like: %v", err)
	}
	return tips, gaps, nil
}
