// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package engine_test

import (
	"math"
	"testing"

	"github.com/jbloom/phydms/codon"
	"github.com/jbloom/phydms/ctree"
	"github.com/jbloom/phydms/engine"
	"github.com/jbloom/phydms/expcm"
	"github.com/jbloom/phydms/submodel"
)

// twoTipTree builds (tipA:0.1,tipB:0.1); with the given branch
// lengths, matching spec.md §8 Scenarios 1 and 2.
func twoTipTree(t *testing.T, tA, tB float64) *ctree.Indexed {
	t.Helper()
	raw := &ctree.Raw{
		Children: []*ctree.Raw{
			{Name: "tipA", Length: tA},
			{Name: "tipB", Length: tB},
		},
	}
	idx, err := ctree.Index(raw)
	if err != nil {
		t.Fatalf("ctree.Index: %v", err)
	}
	return idx
}

// uniformModel is a minimal submodel.Model with a uniform stationary
// distribution and M(t) = I (no substitution ever occurs), used for
// spec.md §8 Scenarios 1 and 2 where the reference value is known in
// closed form.
type uniformModel struct {
	nsites int
}

func (u *uniformModel) NSites() int          { return u.nsites }
func (u *uniformModel) BranchScale() float64 { return 1 }
func (u *uniformModel) FreeParams() []string { return nil }
func (u *uniformModel) Kind(p string) (submodel.ParamKind, int) {
	return submodel.Scalar, 0
}
func (u *uniformModel) ParamLimits(p string) (lo, hi *float64) { return nil, nil }
func (u *uniformModel) Value(p string) float64                 { return 0 }
func (u *uniformModel) VectorValue(p string) []float64         { return nil }
func (u *uniformModel) UpdateParams(values map[string]any) error {
	if len(values) != 0 {
		return errUnknownParam
	}
	return nil
}

func (u *uniformModel) StationaryState() [][]float64 {
	pi := make([][]float64, u.nsites)
	for r := range pi {
		row := make([]float64, codon.NSenseCodons)
		for x := range row {
			row[x] = 1.0 / codon.NSenseCodons
		}
		pi[r] = row
	}
	return pi
}

func (u *uniformModel) DStationaryState(p string) [][]float64       { return nil }
func (u *uniformModel) DStationaryStateVector(p string) [][][]float64 { return nil }

func (u *uniformModel) M(t float64) [][][]float64 {
	out := make([][][]float64, u.nsites)
	for r := range out {
		rows := make([][]float64, codon.NSenseCodons)
		for x := range rows {
			row := make([]float64, codon.NSenseCodons)
			row[x] = 1
			rows[x] = row
		}
		out[r] = rows
	}
	return out
}

func (u *uniformModel) MTip(t float64, tip []int, gaps map[int]bool) [][]float64 {
	out := make([][]float64, u.nsites)
	for r := range out {
		row := make([]float64, codon.NSenseCodons)
		if gaps[r] {
			for x := range row {
				row[x] = 1
			}
		} else {
			row[tip[r]] = 1
		}
		out[r] = row
	}
	return out
}

func (u *uniformModel) DM(t float64, p string, M [][][]float64) [][][]float64 { return nil }
func (u *uniformModel) DMVector(t float64, p string, M [][][]float64) [][][][]float64 {
	return nil
}
func (u *uniformModel) DMTip(t float64, p string, mTip [][]float64, tip []int, gaps map[int]bool) [][]float64 {
	return nil
}
func (u *uniformModel) DMTipVector(t float64, p string, mTip [][]float64, tip []int, gaps map[int]bool) [][][]float64 {
	return nil
}

type errString string

func (e errString) Error() string { return string(e) }

const errUnknownParam = errString("uniformModel: no free parameters")

func atgIndex(t *testing.T) int {
	t.Helper()
	i, ok := codon.CodonToIndex["ATG"]
	if !ok {
		t.Fatalf("ATG is not a sense codon in this table")
	}
	return i
}

// Scenario 1: identity kernel, both tips ATG: loglik = log((1/61) * M(0.1)[ATG][ATG]).
// With M = I, M(0.1)[ATG][ATG] = 1, so loglik = log(1/61).
func TestScenario1IdentityKernel(t *testing.T) {
	idx := twoTipTree(t, 0.1, 0.1)
	atg := atgIndex(t)
	tips := [][]int{{atg}, {atg}}
	gaps := []map[int]bool{{}, {}}
	model := &uniformModel{nsites: 1}

	e, err := engine.New(idx, tips, gaps, model)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	want := math.Log(1.0 / codon.NSenseCodons)
	if got := e.LogLik(); math.Abs(got-want) > 1e-9 {
		t.Errorf("LogLik() = %v, want %v", got, want)
	}
}

// Scenario 2: tipB is a full-codon gap, so its message contributes
// an all-ones vector; sitelik = Σ_x π[x]·M(0.1)[ATG][x] = 1/61 under
// the identity kernel (since M(0.1)[ATG][x] is 1 only at x=ATG).
func TestScenario2GapContributesOnes(t *testing.T) {
	idx := twoTipTree(t, 0.1, 0.1)
	atg := atgIndex(t)
	tips := [][]int{{atg}, {0}}
	gaps := []map[int]bool{{}, {0: true}}
	model := &uniformModel{nsites: 1}

	e, err := engine.New(idx, tips, gaps, model)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	want := math.Log(1.0 / codon.NSenseCodons)
	if got := e.LogLik(); math.Abs(got-want) > 1e-9 {
		t.Errorf("LogLik() = %v, want %v", got, want)
	}
}

func balancedFourTipTree(t *testing.T) *ctree.Indexed {
	t.Helper()
	ab := &ctree.Raw{
		Length: 0.1,
		Children: []*ctree.Raw{
			{Name: "A", Length: 0.05},
			{Name: "B", Length: 0.05},
		},
	}
	cd := &ctree.Raw{
		Length: 0.1,
		Children: []*ctree.Raw{
			{Name: "C", Length: 0.05},
			{Name: "D", Length: 0.05},
		},
	}
	root := &ctree.Raw{Children: []*ctree.Raw{ab, cd}}
	idx, err := ctree.Index(root)
	if err != nil {
		t.Fatalf("ctree.Index: %v", err)
	}
	return idx
}

func uniformPrefs(nsites int) [][codon.NAminoAcids]float64 {
	prefs := make([][codon.NAminoAcids]float64, nsites)
	for r := range prefs {
		var p [codon.NAminoAcids]float64
		for a := range p {
			p[a] = 1.0 / codon.NAminoAcids
		}
		prefs[r] = p
	}
	return prefs
}

func fourTipExpCM(t *testing.T, nsites int) (*ctree.Indexed, *expcm.Model, [][]int, []map[int]bool) {
	t.Helper()
	idx := balancedFourTipTree(t)
	phi := [codon.NNucleotides]float64{0.25, 0.25, 0.25, 0.25}
	model, err := expcm.New(uniformPrefs(nsites), 1, 2.0, 0.4, 1.5, phi)
	if err != nil {
		t.Fatalf("expcm.New: %v", err)
	}

	tips := make([][]int, idx.NTips)
	gaps := make([]map[int]bool, idx.NTips)
	codons := []int{
		codon.CodonToIndex["ATG"],
		codon.CodonToIndex["ATG"],
		codon.CodonToIndex["CTG"],
		codon.CodonToIndex["GTG"],
	}
	for tip := 0; tip < idx.NTips; tip++ {
		row := make([]int, nsites)
		for r := range row {
			row[r] = codons[tip]
		}
		tips[tip] = row
		gaps[tip] = map[int]bool{}
	}
	return idx, model, tips, gaps
}

// Scenario 3: four-tip balanced tree, ExpCM-style model: numerical
// gradient vs dloglikarray agrees componentwise within 1e-4.
func TestScenario3GradientConsistency(t *testing.T) {
	const nsites = 10
	idx, model, tips, gaps := fourTipExpCM(t, nsites)

	e, err := engine.New(idx, tips, gaps, model)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	x0 := e.ParamsArray()
	analytic := e.DLogLikArray()
	const h = 1e-5

	for i := range x0 {
		plus := append([]float64(nil), x0...)
		minus := append([]float64(nil), x0...)
		plus[i] += h
		minus[i] -= h

		if err := e.SetFlatParams(plus); err != nil {
			t.Fatalf("SetFlatParams(+h): %v", err)
		}
		lp := e.LogLik()
		if err := e.SetFlatParams(minus); err != nil {
			t.Fatalf("SetFlatParams(-h): %v", err)
		}
		lm := e.LogLik()

		numeric := (lp - lm) / (2 * h)
		if math.Abs(numeric-analytic[i]) > 1e-4 {
			t.Errorf("slot %d: numeric grad %v, analytic %v", i, numeric, analytic[i])
		}
	}

	if err := e.SetFlatParams(x0); err != nil {
		t.Fatalf("SetFlatParams(restore): %v", err)
	}
}

// Scenario 4: round-trip through the flat parameter array.
func TestScenario4RoundTrip(t *testing.T) {
	idx, model, tips, gaps := fourTipExpCM(t, 5)
	e, err := engine.New(idx, tips, gaps, model)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	original := e.LogLik()
	x0 := e.ParamsArray()

	perturbed := append([]float64(nil), x0...)
	perturbed[0] += 1e-3
	if err := e.SetFlatParams(perturbed); err != nil {
		t.Fatalf("SetFlatParams(perturbed): %v", err)
	}
	if err := e.SetFlatParams(x0); err != nil {
		t.Fatalf("SetFlatParams(restore): %v", err)
	}

	if math.Abs(e.LogLik()-original) > 1e-12 {
		t.Errorf("LogLik() after round-trip = %v, want %v", e.LogLik(), original)
	}
}

// Idempotent update: calling SetFlatParams with the current values
// leaves loglik and dloglikarray bit-identical (a no-op via the
// projector's cache).
func TestIdempotentUpdate(t *testing.T) {
	idx, model, tips, gaps := fourTipExpCM(t, 5)
	e, err := engine.New(idx, tips, gaps, model)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	ll := e.LogLik()
	grad := e.DLogLikArray()

	if err := e.SetFlatParams(e.ParamsArray()); err != nil {
		t.Fatalf("SetFlatParams: %v", err)
	}

	if e.LogLik() != ll {
		t.Errorf("LogLik() changed after no-op update: %v != %v", e.LogLik(), ll)
	}
	newGrad := e.DLogLikArray()
	for i := range grad {
		if newGrad[i] != grad[i] {
			t.Errorf("DLogLikArray()[%d] changed after no-op update: %v != %v", i, newGrad[i], grad[i])
		}
	}
}

// Order independence of siblings: swapping an internal node's
// descendants leaves loglik unchanged.
func TestOrderIndependenceOfSiblings(t *testing.T) {
	idx, model, tips, gaps := fourTipExpCM(t, 5)
	e, err := engine.New(idx, tips, gaps, model)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	before := e.LogLik()

	root := idx.Root()
	if err := idx.Swap(root); err != nil {
		t.Fatalf("Swap: %v", err)
	}

	e2, err := engine.New(idx, tips, gaps, model)
	if err != nil {
		t.Fatalf("engine.New after swap: %v", err)
	}
	after := e2.LogLik()

	if math.Abs(after-before) > 1e-9 {
		t.Errorf("LogLik() changed after sibling swap: before %v, after %v", before, after)
	}
}

func TestRejectsMismatchedTipRows(t *testing.T) {
	idx := twoTipTree(t, 0.1, 0.1)
	model := &uniformModel{nsites: 1}
	_, err := engine.New(idx, [][]int{{0}}, []map[int]bool{{}}, model)
	if err == nil {
		t.Fatalf("engine.New: want error for mismatched tip row count")
	}
}

func TestSetFlatParamsRejectsWrongLength(t *testing.T) {
	idx, model, tips, gaps := fourTipExpCM(t, 5)
	e, err := engine.New(idx, tips, gaps, model)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	if err := e.SetFlatParams([]float64{1, 2, 3}); err == nil {
		t.Fatalf("SetFlatParams: want error for wrong-length array")
	}
}

func TestUpdateParamsRejectsUnknownParam(t *testing.T) {
	idx, model, tips, gaps := fourTipExpCM(t, 5)
	e, err := engine.New(idx, tips, gaps, model)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	if err := e.UpdateParams(map[string]any{"notaparam": 1.0}); err == nil {
		t.Fatalf("UpdateParams: want error for unknown parameter")
	}
}
