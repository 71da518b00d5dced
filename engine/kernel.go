// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package engine

import (
	"fmt"
	"math"

	"github.com/jbloom/phydms/submodel"
	"gonum.org/v1/gonum/floats"
)

// recompute runs the full partial-likelihood and derivative recursion
// of spec.md §4.4 and checks its output for non-finite values.
func (e *Engine) recompute() error {
	return e.withStrictFloat(e.runKernel)
}

// withStrictFloat runs fn and then scans the engine's derived tables
// for NaN/Inf. It stands in for the original's scoped
// `scipy.errstate(all='raise')` context manager (spec.md §9, "Global
// state and floating-point traps"): Go has no hardware floating-point
// trap to acquire and release, so the fatal-on-non-finite discipline
// is enforced by inspection after the recomputation completes rather
// than mid-computation.
func (e *Engine) withStrictFloat(fn func() error) error {
	if err := fn(); err != nil {
		return err
	}
	return e.checkFinite()
}

func (e *Engine) checkFinite() error {
	if !finite(e.loglik) {
		return fmt.Errorf("engine: non-finite loglik")
	}
	for r, v := range e.siteloglik {
		if !finite(v) {
			return fmt.Errorf("engine: non-finite siteloglik at site %d", r)
		}
	}
	for _, node := range e.L {
		for _, row := range node {
			for _, v := range row {
				if !finite(v) {
					return fmt.Errorf("engine: non-finite partial likelihood")
				}
			}
		}
	}
	for name, comps := range e.dL {
		for _, comp := range comps {
			for _, node := range comp {
				for _, row := range node {
					for _, v := range row {
						if !finite(v) {
							return fmt.Errorf("engine: non-finite derivative for parameter %q", name)
						}
					}
				}
			}
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// runKernel performs the post-order partial-likelihood recursion, the
// matching derivative recursion, and the root reduction.
func (e *Engine) runKernel() error {
	ntips := e.idx.NTips
	ninternal := e.idx.NInternal
	nsites := e.nsites

	e.L = make([][][]float64, ninternal)
	e.dL = make(map[string][][][][]float64, len(e.params))
	for _, p := range e.params {
		comps := make([][][][]float64, p.k)
		for j := 0; j < p.k; j++ {
			comps[j] = make([][][]float64, ninternal)
		}
		e.dL[p.name] = comps
	}

	for m := ntips; m < ntips+ninternal; m++ {
		ni := m - ntips
		right := e.idx.RDescend[ni]
		left := e.idx.LDescend[ni]
		tr := e.idx.BranchLength[right]
		tl := e.idx.BranchLength[left]

		mlRight, mFullRight, mTipRight, rightIsTip := e.childMessage(right, tr)
		mlLeft, mFullLeft, mTipLeft, leftIsTip := e.childMessage(left, tl)

		row := make([][]float64, nsites)
		for r := 0; r < nsites; r++ {
			v := make([]float64, e.nstates)
			for x := 0; x < e.nstates; x++ {
				v[x] = mlRight[r][x] * mlLeft[r][x]
			}
			row[r] = v
		}
		e.L[ni] = row

		for _, p := range e.params {
			dRight := e.childDerivative(right, tr, rightIsTip, mFullRight, mTipRight, p)
			dLeft := e.childDerivative(left, tl, leftIsTip, mFullLeft, mTipLeft, p)
			for j := 0; j < p.k; j++ {
				comp := make([][]float64, nsites)
				for r := 0; r < nsites; r++ {
					v := make([]float64, e.nstates)
					for x := 0; x < e.nstates; x++ {
						v[x] = dRight[j][r][x]*mlLeft[r][x] + mlRight[r][x]*dLeft[j][r][x]
					}
					comp[r] = v
				}
				e.dL[p.name][j][ni] = comp
			}
		}
	}

	return e.rootReduce()
}

// childMessage computes the message from child c over its branch of
// length tc: MLc[r][x] = Mc[r][x] at a tip, or the product-summed
// MLc[r][x] = Σ_y Mc[r][x][y]·L[c][r][y] at an internal node. It also
// returns whichever of the full transition matrix or tip-column form
// the model produced, for childDerivative to reuse.
func (e *Engine) childMessage(c int, tc float64) (ml [][]float64, mFull [][][]float64, mTip [][]float64, isTip bool) {
	if e.idx.IsTip(c) {
		mTip = e.model.MTip(tc, e.tips[c], e.gaps[c])
		return mTip, nil, mTip, true
	}

	mFull = e.model.M(tc)
	childL := e.L[c-e.idx.NTips]
	ml = make([][]float64, e.nsites)
	for r := 0; r < e.nsites; r++ {
		v := make([]float64, e.nstates)
		for x := 0; x < e.nstates; x++ {
			var s float64
			for y := 0; y < e.nstates; y++ {
				s += mFull[r][x][y] * childL[r][y]
			}
			v[x] = s
		}
		ml[r] = v
	}
	return ml, mFull, nil, false
}

// childDerivative returns the combined term D[j][r][x] =
// dMLc[j][r][x] + MdLc[j][r][x] from spec.md §4.4's derivative
// recursion, one table per component of parameter p (length 1 for a
// scalar parameter). At a tip, MdLc is zero by definition, so D is
// just the model's tip derivative.
func (e *Engine) childDerivative(c int, tc float64, isTip bool, mFull [][][]float64, mTip [][]float64, p paramSpec) [][][]float64 {
	nsites := e.nsites
	ns := e.nstates
	out := make([][][]float64, p.k)

	if isTip {
		if p.kind == submodel.Vector {
			dmv := e.model.DMTipVector(tc, p.name, mTip, e.tips[c], e.gaps[c])
			copy(out, dmv)
		} else {
			out[0] = e.model.DMTip(tc, p.name, mTip, e.tips[c], e.gaps[c])
		}
		return out
	}

	childNode := c - e.idx.NTips
	childL := e.L[childNode]

	combine := func(dm [][][]float64, childDL [][]float64) [][]float64 {
		d := make([][]float64, nsites)
		for r := 0; r < nsites; r++ {
			row := make([]float64, ns)
			for x := 0; x < ns; x++ {
				var s1, s2 float64
				for y := 0; y < ns; y++ {
					s1 += dm[r][x][y] * childL[r][y]
					s2 += mFull[r][x][y] * childDL[r][y]
				}
				row[x] = s1 + s2
			}
			d[r] = row
		}
		return d
	}

	if p.kind == submodel.Vector {
		dmv := e.model.DMVector(tc, p.name, mFull)
		for j := 0; j < p.k; j++ {
			out[j] = combine(dmv[j], e.dL[p.name][j][childNode])
		}
	} else {
		dm := e.model.DM(tc, p.name, mFull)
		out[0] = combine(dm, e.dL[p.name][0][childNode])
	}
	return out
}

// rootReduce computes sitelik, siteloglik, loglik, and their
// derivatives from the root's partial-likelihood table, per spec.md
// §4.4's root reduction.
func (e *Engine) rootReduce() error {
	root := e.idx.Root()
	rootNode := root - e.idx.NTips
	pi := e.model.StationaryState()
	lRoot := e.L[rootNode]
	nsites := e.nsites
	ns := e.nstates

	e.sitelik = make([]float64, nsites)
	e.siteloglik = make([]float64, nsites)
	for r := 0; r < nsites; r++ {
		var s float64
		for x := 0; x < ns; x++ {
			s += lRoot[r][x] * pi[r][x]
		}
		e.sitelik[r] = s
		e.siteloglik[r] = math.Log(s)
	}
	e.loglik = floats.Sum(e.siteloglik)

	e.dsiteloglik = make(map[string][][]float64, len(e.params))
	e.dloglik = make(map[string][]float64, len(e.params))
	e.dloglikarray = make([]float64, e.proj.Len())

	flatIdx := 0
	for _, p := range e.params {
		var dpi [][][]float64 // [j][nsites][ns]
		if p.kind == submodel.Vector {
			dpi = e.model.DStationaryStateVector(p.name)
		} else {
			dpi = [][][]float64{e.model.DStationaryState(p.name)}
		}

		e.dsiteloglik[p.name] = make([][]float64, p.k)
		e.dloglik[p.name] = make([]float64, p.k)
		for j := 0; j < p.k; j++ {
			dslj := make([]float64, nsites)
			childDL := e.dL[p.name][j][rootNode]
			for r := 0; r < nsites; r++ {
				var num float64
				for x := 0; x < ns; x++ {
					num += dpi[j][r][x]*lRoot[r][x] + childDL[r][x]*pi[r][x]
				}
				dslj[r] = num / e.sitelik[r]
			}
			total := floats.Sum(dslj)
			e.dsiteloglik[p.name][j] = dslj
			e.dloglik[p.name][j] = total
			e.dloglikarray[flatIdx] = total
			flatIdx++
		}
	}
	return nil
}
