// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package expcm

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

// PriorKind names a distribution family usable to draw a starting
// value for a rate parameter such as kappa or omega.
type PriorKind string

const (
	GammaPrior     PriorKind = "gamma"
	LogNormalPrior PriorKind = "lognormal"
)

// SamplePrior draws one value from the named prior, seeded
// deterministically by seed so the same seed always returns the same
// starting value. For GammaPrior, param1 and param2 are Alpha and
// Beta; for LogNormalPrior they are Mu and Sigma.
func SamplePrior(kind PriorKind, param1, param2 float64, seed uint64) (float64, error) {
	src := rand.NewSource(int64(seed))
	switch kind {
	case GammaPrior:
		g := distuv.Gamma{Alpha: param1, Beta: param2, Src: src}
		return g.Rand(), nil
	case LogNormalPrior:
		ln := distuv.LogNormal{Mu: param1, Sigma: param2, Src: src}
		return ln.Rand(), nil
	default:
		return 0, fmt.Errorf("expcm: unknown prior kind %q", kind)
	}
}
