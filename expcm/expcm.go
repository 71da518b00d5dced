// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package expcm implements the Halpern-Bruno "experienced codon
// model" (ExpCM): a site-specific amino-acid preference, weighted by
// a stringency parameter, shapes the fixation probability of an
// otherwise-neutral F1x4 nucleotide mutation process. It is a
// concrete submodel.Model.
package expcm

import (
	"fmt"
	"math"

	"github.com/jbloom/phydms/codon"
	"github.com/jbloom/phydms/submodel"
	"gonum.org/v1/gonum/mat"
)

const n = codon.NSenseCodons

// Model is a per-alignment ExpCM: one set of site-independent rate
// parameters (kappa, omega, beta, phi) shared across nsites sites,
// each site contributing its own amino-acid preference vector.
type Model struct {
	nsites      int
	branchScale float64

	prefs [][codon.NAminoAcids]float64 // site, amino acid (already normalized, sums to 1)

	kappa float64
	omega float64
	beta  float64
	phi   [codon.NNucleotides]float64

	limits map[string][2]*float64

	q          [][n * n]float64 // site-major flattened rate matrix, row x, col y at x*n+y
	stationary [][]float64       // site-major, length n
}

// New builds a Model from per-site amino-acid preferences (already
// normalized to sum to 1) and initial parameter values.
func New(prefs [][codon.NAminoAcids]float64, branchScale, kappa, omega, beta float64, phi [codon.NNucleotides]float64) (*Model, error) {
	if len(prefs) == 0 {
		return nil, fmt.Errorf("expcm: no sites")
	}
	lo0 := 0.0
	m := &Model{
		nsites:      len(prefs),
		branchScale: branchScale,
		prefs:       prefs,
		kappa:       kappa,
		omega:       omega,
		beta:        beta,
		phi:         phi,
		limits: map[string][2]*float64{
			"kappa": {&lo0, nil},
			"omega": {&lo0, nil},
			"beta":  {&lo0, nil},
			"phi":   {&lo0, nil},
		},
	}
	m.recompute()
	return m, nil
}

func (m *Model) NSites() int            { return m.nsites }
func (m *Model) BranchScale() float64   { return m.branchScale }
func (m *Model) FreeParams() []string   { return []string{"kappa", "omega", "beta", "phi"} }

func (m *Model) Kind(p string) (submodel.ParamKind, int) {
	if p == "phi" {
		return submodel.Vector, codon.NNucleotides
	}
	return submodel.Scalar, 0
}

func (m *Model) ParamLimits(p string) (lo, hi *float64) {
	b, ok := m.limits[p]
	if !ok {
		return nil, nil
	}
	return b[0], b[1]
}

// Value returns the current value of scalar parameter p.
func (m *Model) Value(p string) float64 {
	switch p {
	case "kappa":
		return m.kappa
	case "omega":
		return m.omega
	case "beta":
		return m.beta
	}
	panic(fmt.Sprintf("expcm: %q is not a scalar parameter", p))
}

// VectorValue returns a defensive copy of vector parameter p's
// current value.
func (m *Model) VectorValue(p string) []float64 {
	if p != "phi" {
		panic(fmt.Sprintf("expcm: %q is not a vector parameter", p))
	}
	return append([]float64(nil), m.phi[:]...)
}

// UpdateParams applies a partial parameter assignment and recomputes
// every cached per-site rate matrix and stationary distribution.
func (m *Model) UpdateParams(values map[string]any) error {
	kappa, omega, beta := m.kappa, m.omega, m.beta
	phi := m.phi
	for name, v := range values {
		switch name {
		case "kappa":
			f, ok := v.(float64)
			if !ok {
				return fmt.Errorf("expcm: kappa: want float64, got %T", v)
			}
			kappa = f
		case "omega":
			f, ok := v.(float64)
			if !ok {
				return fmt.Errorf("expcm: omega: want float64, got %T", v)
			}
			omega = f
		case "beta":
			f, ok := v.(float64)
			if !ok {
				return fmt.Errorf("expcm: beta: want float64, got %T", v)
			}
			beta = f
		case "phi":
			vec, ok := v.([]float64)
			if !ok || len(vec) != codon.NNucleotides {
				return fmt.Errorf("expcm: phi: want []float64 of length %d", codon.NNucleotides)
			}
			copy(phi[:], vec)
		default:
			return fmt.Errorf("expcm: %q is not a free parameter", name)
		}
	}
	m.kappa, m.omega, m.beta, m.phi = kappa, omega, beta, phi
	m.recompute()
	return nil
}

// mutFreq returns g(x), the F1x4 mutational equilibrium weight of
// codon x: the product of phi over its three nucleotide positions.
func (m *Model) mutFreq(x int) float64 {
	g := 1.0
	for pos := 0; pos < 3; pos++ {
		g *= m.phi[codon.NucleotideAt(x, pos)]
	}
	return g
}

// nucCount returns how many of codon x's three positions hold
// nucleotide w.
func nucCount(x, w int) int {
	cnt := 0
	for pos := 0; pos < 3; pos++ {
		if codon.NucleotideAt(x, pos) == w {
			cnt++
		}
	}
	return cnt
}

// fixation returns the Halpern-Bruno fixation probability F(x->y)
// given the log-ratio of amino-acid preference^beta, s = beta*(ln
// prefy - ln prefx), handling the s->0 singularity.
func fixation(s float64) float64 {
	if math.Abs(s) < 1e-8 {
		// F(s) = s/(1-e^-s); the limit at s=0 is 1, with a first-order
		// correction term s/2 from the Taylor expansion.
		return 1 + s/2
	}
	return s / (1 - math.Exp(-s))
}

// dFixation returns dF/ds at the given s.
func dFixation(s float64) float64 {
	if math.Abs(s) < 1e-8 {
		return 0.5
	}
	e := math.Exp(-s)
	denom := 1 - e
	return (denom - s*e) / (denom * denom)
}

// entry describes the off-diagonal rate Q[x][y] for a single-nucleotide
// substitution, broken into the factors its derivatives need.
type entry struct {
	targetNuc  int     // nucleotide index of the differing position in y
	transition bool    // whether the substitution is a transition
	nonsyn     bool    // whether x and y encode different amino acids
	s          float64 // beta * (ln prefy - ln prefx); zero if synonymous
	rate       float64 // the assembled Q[x][y]
}

// rateEntry classifies the x->y substitution for site r, given the
// current parameters. ok is false if x and y differ at more than one
// nucleotide position (no direct rate).
func (m *Model) rateEntry(r, x, y int) (e entry, ok bool) {
	pos, transition, ok := codon.NeighborDiff(x, y)
	if !ok {
		return entry{}, false
	}
	pref := m.prefs[r]
	w := codon.NucleotideAt(y, pos)
	rate := m.phi[w]
	if transition {
		rate *= m.kappa
	}
	nonsyn := !codon.IsSynonymous(x, y)
	var s float64
	if nonsyn {
		s = m.beta * (math.Log(pref[codon.AminoAcidIndex[codon.IndexToAmino[y]]]) - math.Log(pref[codon.AminoAcidIndex[codon.IndexToAmino[x]]]))
		rate *= m.omega * fixation(s)
	}
	return entry{targetNuc: w, transition: transition, nonsyn: nonsyn, s: s, rate: rate}, true
}

// recompute rebuilds the per-site rate matrix and stationary
// distribution from the current parameter values. Q does not depend
// on branch length, so it is cached across M(t) calls; M(t) itself is
// never cached, per the model contract's caching note.
func (m *Model) recompute() {
	m.q = make([][n * n]float64, m.nsites)
	m.stationary = make([][]float64, m.nsites)

	for r := 0; r < m.nsites; r++ {
		pref := m.prefs[r]
		var q [n * n]float64
		g := make([]float64, n)
		h := make([]float64, n)
		for x := 0; x < n; x++ {
			g[x] = m.mutFreq(x)
			h[x] = math.Pow(pref[codon.AminoAcidIndex[codon.IndexToAmino[x]]], m.beta)
		}

		for x := 0; x < n; x++ {
			var rowSum float64
			for y := 0; y < n; y++ {
				if x == y {
					continue
				}
				e, ok := m.rateEntry(r, x, y)
				if !ok {
					continue
				}
				q[x*n+y] = e.rate
				rowSum += e.rate
			}
			q[x*n+x] = -rowSum
		}
		m.q[r] = q

		var z float64
		pi := make([]float64, n)
		for x := 0; x < n; x++ {
			pi[x] = g[x] * h[x]
			z += pi[x]
		}
		for x := range pi {
			pi[x] /= z
		}
		m.stationary[r] = pi
	}
}

// StationaryState returns the site-wise stationary distribution.
func (m *Model) StationaryState() [][]float64 {
	out := make([][]float64, m.nsites)
	for r := range out {
		out[r] = append([]float64(nil), m.stationary[r]...)
	}
	return out
}

// M returns the per-site transition matrix for branch length t,
// computed fresh from the cached rate matrix via mat.Dense.Exp.
func (m *Model) M(t float64) [][][]float64 {
	out := make([][][]float64, m.nsites)
	for r := 0; r < m.nsites; r++ {
		out[r] = m.expQ(r, t)
	}
	return out
}

func (m *Model) expQ(r int, t float64) [][]float64 {
	q := mat.NewDense(n, n, nil)
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			q.Set(x, y, m.q[r][x*n+y]*t)
		}
	}
	var e mat.Dense
	e.Exp(q)

	rows := make([][]float64, n)
	for x := 0; x < n; x++ {
		row := make([]float64, n)
		for y := 0; y < n; y++ {
			row[y] = e.At(x, y)
		}
		rows[x] = row
	}
	return rows
}

// MTip returns the column of M(t) selected by the observed tip
// codon, or the all-ones vector at gap sites (the tip-column trick of
// spec.md §9).
func (m *Model) MTip(t float64, tip []int, gaps map[int]bool) [][]float64 {
	full := m.M(t)
	out := make([][]float64, m.nsites)
	for r := 0; r < m.nsites; r++ {
		if gaps[r] {
			ones := make([]float64, n)
			for x := range ones {
				ones[x] = 1
			}
			out[r] = ones
			continue
		}
		observed := tip[r]
		col := make([]float64, n)
		for parent := 0; parent < n; parent++ {
			col[parent] = full[r][parent][observed]
		}
		out[r] = col
	}
	return out
}

// dQKappa, dQOmega, dQBeta, and dQPhi build the analytic derivative
// of site r's rate matrix with respect to each scalar parameter (or,
// for phi, its w'th component), flattened the same way as m.q.
func (m *Model) dQKappa(r int) [n * n]float64 {
	var dq [n * n]float64
	for x := 0; x < n; x++ {
		var rowSum float64
		for y := 0; y < n; y++ {
			if x == y {
				continue
			}
			e, ok := m.rateEntry(r, x, y)
			if !ok || !e.transition {
				continue
			}
			d := e.rate / m.kappa
			dq[x*n+y] = d
			rowSum += d
		}
		dq[x*n+x] = -rowSum
	}
	return dq
}

func (m *Model) dQOmega(r int) [n * n]float64 {
	var dq [n * n]float64
	for x := 0; x < n; x++ {
		var rowSum float64
		for y := 0; y < n; y++ {
			if x == y {
				continue
			}
			e, ok := m.rateEntry(r, x, y)
			if !ok || !e.nonsyn {
				continue
			}
			d := e.rate / m.omega
			dq[x*n+y] = d
			rowSum += d
		}
		dq[x*n+x] = -rowSum
	}
	return dq
}

func (m *Model) dQBeta(r int) [n * n]float64 {
	pref := m.prefs[r]
	var dq [n * n]float64
	for x := 0; x < n; x++ {
		var rowSum float64
		for y := 0; y < n; y++ {
			if x == y {
				continue
			}
			e, ok := m.rateEntry(r, x, y)
			if !ok || !e.nonsyn {
				continue
			}
			logRatio := math.Log(pref[codon.AminoAcidIndex[codon.IndexToAmino[y]]]) - math.Log(pref[codon.AminoAcidIndex[codon.IndexToAmino[x]]])
			prxyOmega := e.rate / fixation(e.s)
			d := prxyOmega * dFixation(e.s) * logRatio
			dq[x*n+y] = d
			rowSum += d
		}
		dq[x*n+x] = -rowSum
	}
	return dq
}

func (m *Model) dQPhi(r, w int) [n * n]float64 {
	var dq [n * n]float64
	for x := 0; x < n; x++ {
		var rowSum float64
		for y := 0; y < n; y++ {
			if x == y {
				continue
			}
			e, ok := m.rateEntry(r, x, y)
			if !ok || e.targetNuc != w {
				continue
			}
			d := e.rate / m.phi[w]
			dq[x*n+y] = d
			rowSum += d
		}
		dq[x*n+x] = -rowSum
	}
	return dq
}

// vanLoanDM computes dM(t)/dp for site r given the flattened rate
// derivative dq, using the Van Loan (1978) block-matrix identity: the
// top-right n*n block of expm(t*[[Q,dQ],[0,Q]]) equals dM(t)/dp. No
// eigendecomposition is needed; both exponentials go through
// mat.Dense.Exp.
func (m *Model) vanLoanDM(r int, t float64, dq [n * n]float64) [][]float64 {
	size := 2 * n
	a := mat.NewDense(size, size, nil)
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			qv := m.q[r][x*n+y] * t
			a.Set(x, y, qv)
			a.Set(n+x, n+y, qv)
			a.Set(x, n+y, dq[x*n+y]*t)
		}
	}
	var e mat.Dense
	e.Exp(a)

	out := make([][]float64, n)
	for x := 0; x < n; x++ {
		row := make([]float64, n)
		for y := 0; y < n; y++ {
			row[y] = e.At(x, n+y)
		}
		out[x] = row
	}
	return out
}

func (m *Model) dqFor(r int, p string) ([n * n]float64, error) {
	switch p {
	case "kappa":
		return m.dQKappa(r), nil
	case "omega":
		return m.dQOmega(r), nil
	case "beta":
		return m.dQBeta(r), nil
	}
	return [n * n]float64{}, fmt.Errorf("expcm: %q is not a scalar parameter", p)
}

// DM returns d/dp M(t) for scalar parameter p (kappa, omega, or
// beta). M is accepted to satisfy the submodel.Model contract but is
// not needed: the Van Loan identity recomputes its own exponential.
func (m *Model) DM(t float64, p string, _ [][][]float64) [][][]float64 {
	out := make([][][]float64, m.nsites)
	for r := 0; r < m.nsites; r++ {
		dq, err := m.dqFor(r, p)
		if err != nil {
			panic(err)
		}
		out[r] = m.vanLoanDM(r, t, dq)
	}
	return out
}

// DMVector is DM's vector-parameter ("phi") counterpart, returning
// one derivative table per nucleotide component.
func (m *Model) DMVector(t float64, p string, _ [][][]float64) [][][][]float64 {
	if p != "phi" {
		panic(fmt.Sprintf("expcm: %q is not a vector parameter", p))
	}
	out := make([][][][]float64, codon.NNucleotides)
	for w := 0; w < codon.NNucleotides; w++ {
		out[w] = make([][][]float64, m.nsites)
		for r := 0; r < m.nsites; r++ {
			dq := m.dQPhi(r, w)
			out[w][r] = m.vanLoanDM(r, t, dq)
		}
	}
	return out
}

// DMTip and DMTipVector are the tip-column forms of DM/DMVector,
// selecting the column for the observed codon exactly as MTip does
// for M, so the kernel can treat tip and internal derivatives
// uniformly.
func (m *Model) DMTip(t float64, p string, _ [][]float64, tip []int, gaps map[int]bool) [][]float64 {
	full := m.DM(t, p, nil)
	return tipColumns(full, m.nsites, tip, gaps)
}

func (m *Model) DMTipVector(t float64, p string, _ [][]float64, tip []int, gaps map[int]bool) [][][]float64 {
	full := m.DMVector(t, p, nil)
	out := make([][][]float64, len(full))
	for w := range full {
		out[w] = tipColumns(full[w], m.nsites, tip, gaps)
	}
	return out
}

func tipColumns(full [][][]float64, nsites int, tip []int, gaps map[int]bool) [][]float64 {
	out := make([][]float64, nsites)
	for r := 0; r < nsites; r++ {
		if gaps[r] {
			// Gap sites are the constant all-ones column under M; its
			// derivative with respect to any parameter is zero.
			out[r] = make([]float64, n)
			continue
		}
		observed := tip[r]
		col := make([]float64, n)
		for parent := 0; parent < n; parent++ {
			col[parent] = full[r][parent][observed]
		}
		out[r] = col
	}
	return out
}

// DStationaryState returns d(stationary state)/d(beta) for scalar
// parameter p. kappa and omega do not appear in the stationary
// distribution's closed form, so their derivative is the zero table.
func (m *Model) DStationaryState(p string) [][]float64 {
	out := make([][]float64, m.nsites)
	switch p {
	case "kappa", "omega":
		for r := range out {
			out[r] = make([]float64, n)
		}
		return out
	case "beta":
		for r := 0; r < m.nsites; r++ {
			pref := m.prefs[r]
			pi := m.stationary[r]
			var mean float64
			logPref := make([]float64, n)
			for x := 0; x < n; x++ {
				logPref[x] = math.Log(pref[codon.AminoAcidIndex[codon.IndexToAmino[x]]])
				mean += pi[x] * logPref[x]
			}
			row := make([]float64, n)
			for x := 0; x < n; x++ {
				row[x] = pi[x] * (logPref[x] - mean)
			}
			out[r] = row
		}
		return out
	}
	panic(fmt.Sprintf("expcm: %q is not a scalar parameter", p))
}

// DStationaryStateVector is DStationaryState's vector-parameter
// ("phi") counterpart, one gradient table per nucleotide component.
func (m *Model) DStationaryStateVector(p string) [][][]float64 {
	if p != "phi" {
		panic(fmt.Sprintf("expcm: %q is not a vector parameter", p))
	}
	out := make([][][]float64, codon.NNucleotides)
	for w := 0; w < codon.NNucleotides; w++ {
		out[w] = make([][]float64, m.nsites)
		for r := 0; r < m.nsites; r++ {
			pi := m.stationary[r]
			var mean float64
			counts := make([]int, n)
			for x := 0; x < n; x++ {
				counts[x] = nucCount(x, w)
				mean += pi[x] * float64(counts[x])
			}
			row := make([]float64, n)
			for x := 0; x < n; x++ {
				row[x] = pi[x] / m.phi[w] * (float64(counts[x]) - mean)
			}
			out[w][r] = row
		}
	}
	return out
}
