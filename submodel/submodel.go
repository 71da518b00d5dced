// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package submodel defines the substitution-model contract consumed
// by the likelihood engine (package engine). It declares the
// interface only; package expcm provides a concrete implementation.
package submodel

import "github.com/jbloom/phydms/codon"

// ParamKind classifies a free parameter as a scalar or a fixed-length
// vector, so the engine's parameter projector and the model's
// derivative tables can dispatch on shape without rediscovering it
// per call.
type ParamKind int

const (
	// Scalar marks a single real-valued free parameter.
	Scalar ParamKind = iota
	// Vector marks a fixed-length real vector free parameter.
	Vector
)

func (k ParamKind) String() string {
	if k == Vector {
		return "vector"
	}
	return "scalar"
}

// Model is the substitution-model contract of spec.md §6.1. All
// shapes are site-major: a [nsites][...]... nesting with codon.NSenseCodons
// (61) as the innermost codon dimension.
type Model interface {
	// NSites is the number of codon sites the model covers.
	NSites() int

	// BranchScale is a branch-length scaling divisor used by callers
	// only; the model does not apply it internally.
	BranchScale() float64

	// FreeParams is the ordered set of parameter names the engine may
	// update, in declaration order.
	FreeParams() []string

	// Kind reports whether p is a scalar or vector parameter, and if
	// a vector, its length k.
	Kind(p string) (kind ParamKind, k int)

	// ParamLimits returns the bounds for parameter p. Either endpoint
	// may be nil, meaning unbounded on that side.
	ParamLimits(p string) (lo, hi *float64)

	// Value returns the current value of scalar parameter p.
	Value(p string) float64

	// VectorValue returns the current value of vector parameter p, a
	// defensive copy of length k.
	VectorValue(p string) []float64

	// StationaryState returns the site-wise stationary distribution,
	// shape [NSites()][61].
	StationaryState() [][]float64

	// DStationaryState returns the gradient of StationaryState with
	// respect to scalar parameter p, shape [NSites()][61]. It covers
	// scalar parameters only; callers dispatch via Kind and use
	// DStationaryStateVector for a vector parameter.
	DStationaryState(p string) [][]float64

	// DStationaryStateVector is DStationaryState's vector-parameter
	// counterpart, returning one [NSites()][61] gradient per component.
	DStationaryStateVector(p string) [][][]float64

	// M returns the per-site transition matrix for branch length t,
	// shape [NSites()][61][61].
	M(t float64) [][][]float64

	// MTip returns the column of M(t) selected by each site's observed
	// tip codon, shape [NSites()][61]; gap sites return the all-ones
	// vector. This is the "tip-column trick" of spec.md §9: it lets
	// the kernel treat tip and internal children uniformly.
	MTip(t float64, tip []int, gaps map[int]bool) [][]float64

	// DM is the analytic derivative of M with respect to scalar
	// parameter p, matching M's shape. M is supplied so implementations
	// that share work between M and DM need not recompute it.
	DM(t float64, p string, M [][][]float64) [][][]float64

	// DMVector is DM's vector-parameter counterpart, one derivative
	// table per component.
	DMVector(t float64, p string, M [][][]float64) [][][][]float64

	// DMTip and DMTipVector are the tip-column forms of DM/DMVector.
	DMTip(t float64, p string, MTip [][]float64, tip []int, gaps map[int]bool) [][]float64
	DMTipVector(t float64, p string, MTip [][]float64, tip []int, gaps map[int]bool) [][][]float64

	// UpdateParams applies a partial parameter assignment atomically.
	// Keys not in FreeParams are a programmer error. A scalar parameter
	// maps to a float64; a vector parameter of length k maps to a
	// []float64 of length k.
	UpdateParams(values map[string]any) error
}

// NCodons is the per-site codon alphabet size every Model
// implementation operates over.
const NCodons = codon.NSenseCodons
