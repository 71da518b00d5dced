// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package engine

import (
	"fmt"

	"github.com/jbloom/phydms/submodel"
)

// slot is one component of the flat parameter array: either a scalar
// parameter (component == -1) or one component of a vector parameter.
type slot struct {
	name      string
	component int
}

// paramProjector flattens the model's heterogeneous (scalar or
// fixed-length vector) free parameters into a single real vector, per
// spec.md §4.3. It caches the last injected array so that repeated
// evaluation at the same point (as an optimizer does when it asks for
// both the value and the gradient) is a no-op.
type paramProjector struct {
	model submodel.Model
	slots []slot

	cache    []float64
	hasCache bool
}

func newParamProjector(model submodel.Model) (*paramProjector, error) {
	pp := &paramProjector{model: model}
	for _, name := range model.FreeParams() {
		kind, k := model.Kind(name)
		switch kind {
		case submodel.Scalar:
			pp.slots = append(pp.slots, slot{name: name, component: -1})
		case submodel.Vector:
			if k <= 0 {
				return nil, fmt.Errorf("engine: parameter %q: vector of non-positive length %d", name, k)
			}
			for j := 0; j < k; j++ {
				pp.slots = append(pp.slots, slot{name: name, component: j})
			}
		default:
			return nil, fmt.Errorf("engine: parameter %q: neither scalar nor vector", name)
		}
	}
	return pp, nil
}

// Len is the number of flat slots (nparams).
func (pp *paramProjector) Len() int { return len(pp.slots) }

// Bounds returns, for each slot, the bound of its parameter (the same
// bound applies to every component of a vector parameter).
func (pp *paramProjector) Bounds() [][2]*float64 {
	bounds := make([][2]*float64, len(pp.slots))
	for i, s := range pp.slots {
		lo, hi := pp.model.ParamLimits(s.name)
		bounds[i] = [2]*float64{lo, hi}
	}
	return bounds
}

// Extract reads a defensive copy of the current flat parameter array
// from the model.
func (pp *paramProjector) Extract() []float64 {
	out := make([]float64, len(pp.slots))
	vectors := make(map[string][]float64)
	for i, s := range pp.slots {
		if s.component < 0 {
			out[i] = pp.model.Value(s.name)
			continue
		}
		vec, ok := vectors[s.name]
		if !ok {
			vec = pp.model.VectorValue(s.name)
			vectors[s.name] = vec
		}
		out[i] = vec[s.component]
	}
	return out
}

// Inject validates flat's length, groups its slots by parameter name,
// and returns the partial assignment a caller can pass to the model's
// UpdateParams. It is a fatal (programmer) error for flat to have the
// wrong length, or for a vector parameter's component indices (after
// grouping) to be anything other than exactly {0, ..., k-1}.
//
// Inject does not itself call UpdateParams or touch the cache; see
// Engine.SetFlatParams for the caching behavior.
func (pp *paramProjector) Inject(flat []float64) (map[string]any, error) {
	if len(flat) != len(pp.slots) {
		return nil, fmt.Errorf("engine: flat parameter array has length %d, want %d", len(flat), len(pp.slots))
	}

	assignment := make(map[string]any)
	vectors := make(map[string]map[int]float64)
	for i, s := range pp.slots {
		if s.component < 0 {
			assignment[s.name] = flat[i]
			continue
		}
		comps, ok := vectors[s.name]
		if !ok {
			comps = make(map[int]float64)
			vectors[s.name] = comps
		}
		if _, dup := comps[s.component]; dup {
			return nil, fmt.Errorf("engine: vector parameter %q: component %d duplicated", s.name, s.component)
		}
		comps[s.component] = flat[i]
	}

	for name, comps := range vectors {
		_, k := pp.model.Kind(name)
		vec := make([]float64, k)
		for j := 0; j < k; j++ {
			v, ok := comps[j]
			if !ok {
				return nil, fmt.Errorf("engine: vector parameter %q: component %d missing", name, j)
			}
			vec[j] = v
		}
		if len(comps) != k {
			return nil, fmt.Errorf("engine: vector parameter %q: got %d components, want %d", name, len(comps), k)
		}
		assignment[name] = vec
	}
	return assignment, nil
}

// sameAsCache reports whether flat is element-wise equal to the
// cached snapshot (no cache means never equal).
func (pp *paramProjector) sameAsCache(flat []float64) bool {
	if !pp.hasCache || len(pp.cache) != len(flat) {
		return false
	}
	for i, v := range flat {
		if pp.cache[i] != v {
			return false
		}
	}
	return true
}

func (pp *paramProjector) setCache(flat []float64) {
	pp.cache = append([]float64(nil), flat...)
	pp.hasCache = true
}

func (pp *paramProjector) invalidateCache() {
	pp.hasCache = false
	pp.cache = nil
}
