// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package expcm_test

import (
	"math"
	"testing"

	"github.com/jbloom/phydms/codon"
	"github.com/jbloom/phydms/expcm"
)

func uniformPrefs(nsites int) [][codon.NAminoAcids]float64 {
	prefs := make([][codon.NAminoAcids]float64, nsites)
	for r := range prefs {
		for a := range prefs[r] {
			prefs[r][a] = 1.0 / codon.NAminoAcids
		}
	}
	return prefs
}

func newModel(t *testing.T, nsites int) *expcm.Model {
	t.Helper()
	m, err := expcm.New(uniformPrefs(nsites), 1.0, 2.0, 0.5, 1.0, [4]float64{0.3, 0.2, 0.3, 0.2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestStationarySumsToOne(t *testing.T) {
	m := newModel(t, 3)
	pi := m.StationaryState()
	for r, row := range pi {
		var sum float64
		for _, v := range row {
			if v < 0 {
				t.Errorf("site %d: negative stationary probability %v", r, v)
			}
			sum += v
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("site %d: stationary distribution sums to %v, want 1", r, sum)
		}
	}
}

func TestMIsStochastic(t *testing.T) {
	m := newModel(t, 1)
	mt := m.M(0.05)
	for x := 0; x < codon.NSenseCodons; x++ {
		var sum float64
		for y := 0; y < codon.NSenseCodons; y++ {
			v := mt[0][x][y]
			if v < -1e-9 {
				t.Errorf("M(t)[%d][%d] = %v, want >= 0", x, y, v)
			}
			sum += v
		}
		if math.Abs(sum-1) > 1e-6 {
			t.Errorf("row %d sums to %v, want 1", x, sum)
		}
	}
}

func TestMZeroIsIdentity(t *testing.T) {
	m := newModel(t, 1)
	mt := m.M(0)
	for x := 0; x < codon.NSenseCodons; x++ {
		for y := 0; y < codon.NSenseCodons; y++ {
			want := 0.0
			if x == y {
				want = 1.0
			}
			if math.Abs(mt[0][x][y]-want) > 1e-9 {
				t.Errorf("M(0)[%d][%d] = %v, want %v", x, y, mt[0][x][y], want)
			}
		}
	}
}

func TestDStationaryStateSumsToZero(t *testing.T) {
	m := newModel(t, 2)
	for _, p := range []string{"kappa", "omega", "beta"} {
		d := m.DStationaryState(p)
		for r, row := range d {
			var sum float64
			for _, v := range row {
				sum += v
			}
			if math.Abs(sum) > 1e-8 {
				t.Errorf("DStationaryState(%q) site %d sums to %v, want 0 (pi always sums to 1)", p, r, sum)
			}
		}
	}

	dphi := m.DStationaryStateVector("phi")
	for w, sites := range dphi {
		for r, row := range sites {
			var sum float64
			for _, v := range row {
				sum += v
			}
			if math.Abs(sum) > 1e-8 {
				t.Errorf("DStationaryStateVector(phi)[%d] site %d sums to %v, want 0", w, r, sum)
			}
		}
	}
}

func TestDMKappaFiniteDifference(t *testing.T) {
	m := newModel(t, 1)
	const tt = 0.1
	const h = 1e-5

	dm := m.DM(tt, "kappa", nil)

	mPlus, err := expcm.New(uniformPrefs(1), 1.0, 2.0+h, 0.5, 1.0, [4]float64{0.3, 0.2, 0.3, 0.2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	mMinus, err := expcm.New(uniformPrefs(1), 1.0, 2.0-h, 0.5, 1.0, [4]float64{0.3, 0.2, 0.3, 0.2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	plus := mPlus.M(tt)
	minus := mMinus.M(tt)

	var maxDiff float64
	for x := 0; x < codon.NSenseCodons; x++ {
		for y := 0; y < codon.NSenseCodons; y++ {
			fd := (plus[0][x][y] - minus[0][x][y]) / (2 * h)
			diff := math.Abs(fd - dm[0][x][y])
			if diff > maxDiff {
				maxDiff = diff
			}
		}
	}
	if maxDiff > 1e-4 {
		t.Errorf("max |finite-difference - analytic dM/dkappa| = %v, want <= 1e-4", maxDiff)
	}
}

func TestSamplePriorDeterministic(t *testing.T) {
	a, err := expcm.SamplePrior(expcm.GammaPrior, 2, 1, 7)
	if err != nil {
		t.Fatalf("SamplePrior: %v", err)
	}
	b, err := expcm.SamplePrior(expcm.GammaPrior, 2, 1, 7)
	if err != nil {
		t.Fatalf("SamplePrior: %v", err)
	}
	if a != b {
		t.Errorf("SamplePrior(seed=7) = %v then %v, want equal draws", a, b)
	}
	if a <= 0 {
		t.Errorf("SamplePrior(gamma) = %v, want > 0", a)
	}
}

func TestSamplePriorLogNormal(t *testing.T) {
	v, err := expcm.SamplePrior(expcm.LogNormalPrior, 0, 0.5, 3)
	if err != nil {
		t.Fatalf("SamplePrior: %v", err)
	}
	if v <= 0 {
		t.Errorf("SamplePrior(lognormal) = %v, want > 0", v)
	}
}

func TestSamplePriorRejectsUnknownKind(t *testing.T) {
	if _, err := expcm.SamplePrior("beta", 1, 1, 1); err == nil {
		t.Fatalf("SamplePrior: want error for unknown prior kind")
	}
}
