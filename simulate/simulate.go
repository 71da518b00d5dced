// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package simulate replays a substitution model down a fixed tree to
// produce simulated codon alignments, for model-adequacy testing. It
// mirrors the likelihood engine's post-order recursion in reverse: a
// pre-order walk from the root, drawing a codon per site at the root
// from the model's stationary distribution and then, at each branch,
// drawing the child's codon from a row of the transition matrix.
package simulate

import (
	"math/rand/v2"

	"github.com/jbloom/phydms/align"
	"github.com/jbloom/phydms/codon"
	"github.com/jbloom/phydms/ctree"
	"github.com/jbloom/phydms/submodel"
)

// Replicate draws one simulated alignment over idx's tips under
// model, using the PCG stream seeded by seed. Matching seeds draw in
// the same order from the same *rand.Rand and so always reproduce the
// same replicate. The site count is taken from model.NSites().
func Replicate(idx *ctree.Indexed, model submodel.Model, seed uint64) []align.Record {
	rng := rand.New(rand.NewPCG(seed, seed))
	return replicate(idx, model, rng)
}

// Replicates draws n replicates from one seed: a single *rand.Rand is
// seeded once and every replicate, in order, continues drawing from
// that same stream, so the same seed and replicate index always
// reproduce the same sequence while successive replicates within one
// seed come from different parts of the stream.
func Replicates(idx *ctree.Indexed, model submodel.Model, seed uint64, n int) [][]align.Record {
	rng := rand.New(rand.NewPCG(seed, seed))
	out := make([][]align.Record, n)
	for i := 0; i < n; i++ {
		out[i] = replicate(idx, model, rng)
	}
	return out
}

func replicate(idx *ctree.Indexed, model submodel.Model, rng *rand.Rand) []align.Record {
	nsites := model.NSites()
	codons := make([][]int, idx.NNodes)

	root := idx.Root()
	codons[root] = make([]int, nsites)
	pi := model.StationaryState()
	for r := 0; r < nsites; r++ {
		codons[root][r] = categorical(rng, pi[r])
	}

	var descend func(m int)
	descend = func(m int) {
		if idx.IsTip(m) {
			return
		}
		ni := m - idx.NTips
		for _, c := range []int{idx.RDescend[ni], idx.LDescend[ni]} {
			t := idx.BranchLength[c]
			mat := model.M(t)
			codons[c] = make([]int, nsites)
			for r := 0; r < nsites; r++ {
				codons[c][r] = categorical(rng, mat[r][codons[m][r]])
			}
			descend(c)
		}
	}
	descend(root)

	indexToName := make([]string, idx.NTips)
	for name, i := range idx.NameToIndex {
		indexToName[i] = name
	}

	recs := make([]align.Record, idx.NTips)
	for tip := 0; tip < idx.NTips; tip++ {
		var sb []byte
		for r := 0; r < nsites; r++ {
			sb = append(sb, codon.IndexToCodon[codons[tip][r]]...)
		}
		recs[tip] = align.Record{Name: indexToName[tip], Codons: string(sb)}
	}
	return recs
}

// categorical draws an index from probs, a row that sums to
// approximately 1, via inverse-CDF sampling. Floating-point drift can
// leave the cumulative sum just short of the drawn uniform value; the
// last index is returned as a fallback rather than sampling past the
// end of the row.
func categorical(rng *rand.Rand, probs []float64) int {
	u := rng.Float64()
	var cum float64
	for x, p := range probs {
		cum += p
		if u < cum {
			return x
		}
	}
	return len(probs) - 1
}
