// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package adequacy implements the peripheral model-adequacy helpers
// named in spec.md §1 and exercised by §8 Scenario 6: amino-acid
// frequency counting, Jensen-Shannon distance, and p-value
// tie-breaking. It is never imported by package engine.
package adequacy

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"

	"github.com/jbloom/phydms/align"
	"github.com/jbloom/phydms/codon"
)

const nAminoAcids = codon.NAminoAcids

// AminoAcidFrequencies translates each record's codon sequence to
// amino acids (gaps excluded) and returns the normalized per-site
// amino-acid frequency vector, ABC-ordered by one-letter code.
//
// It is a fatal error for a site to be an all-gap column, since
// normalizing by a zero count is undefined.
func AminoAcidFrequencies(records []align.Record) ([][nAminoAcids]float64, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("adequacy: empty alignment")
	}
	nsites := len(records[0].Codons) / 3

	counts := make([][nAminoAcids]float64, nsites)
	for _, rec := range records {
		if len(rec.Codons) != 3*nsites {
			return nil, fmt.Errorf("adequacy: sequence %q has inconsistent length", rec.Name)
		}
		for r := 0; r < nsites; r++ {
			site := rec.Codons[3*r : 3*r+3]
			if site == codon.Gap {
				continue
			}
			ci, ok := codon.CodonToIndex[site]
			if !ok {
				return nil, fmt.Errorf("adequacy: sequence %q site %d: unknown codon %q", rec.Name, r, site)
			}
			aa := codon.IndexToAmino[ci]
			counts[r][codon.AminoAcidIndex[aa]]++
		}
	}

	freqs := make([][nAminoAcids]float64, nsites)
	for r, row := range counts {
		var total float64
		for _, c := range row {
			total += c
		}
		if total == 0 {
			return nil, fmt.Errorf("adequacy: site %d is an all-gap column, cannot normalize", r)
		}
		for a, c := range row {
			freqs[r][a] = c / total
		}
	}
	return freqs, nil
}

// JensenShannon returns the base-2 Jensen-Shannon divergence between
// two distributions of equal length, in [0, 1].
func JensenShannon(p1, p2 []float64) float64 {
	m := make([]float64, len(p1))
	for i := range m {
		m[i] = 0.5 * (p1[i] + p2[i])
	}
	const ln2 = 0.6931471805599453
	return 0.5 * (stat.KullbackLeibler(p1, m) + stat.KullbackLeibler(p2, m)) / ln2
}

// PValue implements the tie-breaking p-value helper of
// modeladequacy.calculate_pvalue: the fraction of simulated values at
// least as extreme as observed, with ties among values exactly equal
// to observed broken by drawing a uniform integer in [0, tieCount)
// from a seeded generator.
func PValue(simulated []float64, observed float64, seed uint64) float64 {
	var greater, ties int
	for _, v := range simulated {
		switch {
		case v > observed:
			greater++
		case v == observed:
			ties++
		}
	}

	tieBreak := 0
	if ties >= 1 {
		rng := rand.New(rand.NewPCG(seed, seed))
		tieBreak = rng.IntN(ties)
	}

	return float64(greater+tieBreak+1) / float64(len(simulated)+1)
}
