// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package engine

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"
)

// MaximizeLikelihood drives a bounded quasi-Newton search over
// paramsArray, using dloglikarray as the analytic gradient unless
// approxGrad forces numerical estimation, per spec.md §6.2.
//
// gonum/optimize has no method equivalent to scipy's
// L-BFGS-B: optimize.LBFGS is unconstrained. This wraps it with a
// projected-gradient step instead: every trial point is clamped to
// ParamsArrayBounds before evaluation, and gradient components
// pressing against an active bound are zeroed, the standard
// active-set approximation to a box-constrained quasi-Newton step.
func (e *Engine) MaximizeLikelihood(approxGrad bool) (*optimize.Result, error) {
	bounds := e.proj.Bounds()
	x0 := e.proj.Extract()

	clamp := func(x []float64) []float64 {
		out := append([]float64(nil), x...)
		for i, b := range bounds {
			if b[0] != nil && out[i] < *b[0] {
				out[i] = *b[0]
			}
			if b[1] != nil && out[i] > *b[1] {
				out[i] = *b[1]
			}
		}
		return out
	}

	negLogLik := func(x []float64) float64 {
		if err := e.SetFlatParams(clamp(x)); err != nil {
			return math.Inf(1)
		}
		return -e.loglik
	}

	analyticGrad := func(grad, x []float64) {
		clamped := clamp(x)
		if err := e.SetFlatParams(clamped); err != nil {
			for i := range grad {
				grad[i] = 0
			}
			return
		}
		for i, v := range e.dloglikarray {
			grad[i] = -v
		}
		for i, b := range bounds {
			if b[0] != nil && clamped[i] <= *b[0] && grad[i] > 0 {
				grad[i] = 0
			}
			if b[1] != nil && clamped[i] >= *b[1] && grad[i] < 0 {
				grad[i] = 0
			}
		}
	}

	grad := analyticGrad
	if approxGrad {
		grad = func(g, x []float64) {
			fd.Gradient(g, negLogLik, x, nil)
		}
	}

	problem := optimize.Problem{Func: negLogLik, Grad: grad}
	settings := optimize.Settings{}
	result, err := optimize.Minimize(problem, x0, &settings, &optimize.LBFGS{})
	if err != nil {
		return result, err
	}

	final := clamp(result.X)
	if err := e.SetFlatParams(final); err != nil {
		return result, err
	}
	return result, nil
}
