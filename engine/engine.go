// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package engine implements the phylogenetic likelihood engine: the
// Parameter Projector, Likelihood Kernel, and Update Coordinator of
// spec.md §4.3-§4.5, tied together by the public Engine type of §6.2.
//
// The engine owns the partial-likelihood tables, the tree's branch
// lengths and topology, and a mutable reference to a submodel.Model.
// It is single-threaded and synchronous: public methods are not safe
// to call concurrently on the same Engine (spec.md §5).
package engine

import (
	"fmt"

	"github.com/jbloom/phydms/ctree"
	"github.com/jbloom/phydms/submodel"
)

// paramSpec is a free parameter's shape, resolved once at
// construction so the kernel never rediscovers it per call (spec.md
// §9, "Derivative table shape dispatched on parameter kind").
type paramSpec struct {
	name string
	kind submodel.ParamKind
	k    int // number of components; 1 for a scalar parameter
}

// Engine is the likelihood engine of spec.md §6.2: constructed from a
// fixed tree, a fixed tip encoding, and a model, it exposes read
// accessors for the log likelihood and its gradient and mutators that
// keep them consistent with the model's current parameter values.
type Engine struct {
	idx   *ctree.Indexed
	tips  [][]int
	gaps  []map[int]bool
	model submodel.Model

	nsites  int
	nstates int
	params  []paramSpec
	proj    *paramProjector

	// L[m-ntips][r][x] is the partial-likelihood table of spec.md
	// §4.4. dL[name][j][m-ntips][r][x] shadows it for free parameter
	// "name", component j (j is always 0 for a scalar parameter).
	L  [][][]float64
	dL map[string][][][][]float64

	sitelik    []float64
	siteloglik []float64
	loglik     float64

	dsiteloglik map[string][][]float64
	dloglik     map[string][]float64
	// dloglikarray is dloglik flattened in the parameter projector's
	// slot order.
	dloglikarray []float64
}

// New constructs an Engine over a fixed tree indexing idx, the tip
// codon/gap encoding produced by package align, and a substitution
// model. tips and gaps must have exactly idx.NTips rows.
//
// Construction runs the full recursion once so that loglik and
// dloglikarray are valid immediately.
func New(idx *ctree.Indexed, tips [][]int, gaps []map[int]bool, model submodel.Model) (*Engine, error) {
	if len(tips) != idx.NTips || len(gaps) != idx.NTips {
		return nil, fmt.Errorf("engine: tip data has %d/%d rows, tree has %d tips", len(tips), len(gaps), idx.NTips)
	}

	proj, err := newParamProjector(model)
	if err != nil {
		return nil, err
	}

	var params []paramSpec
	for _, name := range model.FreeParams() {
		kind, k := model.Kind(name)
		if kind == submodel.Vector {
			params = append(params, paramSpec{name: name, kind: kind, k: k})
		} else {
			params = append(params, paramSpec{name: name, kind: kind, k: 1})
		}
	}

	pi := model.StationaryState()
	if len(pi) == 0 || len(pi[0]) == 0 {
		return nil, fmt.Errorf("engine: model reports zero sites or zero states")
	}

	e := &Engine{
		idx:     idx,
		tips:    tips,
		gaps:    gaps,
		model:   model,
		nsites:  model.NSites(),
		nstates: len(pi[0]),
		params:  params,
		proj:    proj,
	}
	if err := e.recompute(); err != nil {
		return nil, err
	}
	e.proj.setCache(e.proj.Extract())
	return e, nil
}

func (e *Engine) paramSpec(name string) (paramSpec, bool) {
	for _, p := range e.params {
		if p.name == name {
			return p, true
		}
	}
	return paramSpec{}, false
}

func (e *Engine) isFreeParam(name string) bool {
	_, ok := e.paramSpec(name)
	return ok
}

// LogLik returns the total log likelihood.
func (e *Engine) LogLik() float64 { return e.loglik }

// SiteLogLik returns a defensive copy of the per-site log likelihood.
func (e *Engine) SiteLogLik() []float64 {
	return append([]float64(nil), e.siteloglik...)
}

// DLogLik returns d(loglik)/d(p): a float64 for a scalar parameter, or
// a []float64 of length k for a vector parameter. It panics if p is
// not a free parameter, matching the contract that callers only ask
// about parameters named in the model's FreeParams.
func (e *Engine) DLogLik(p string) any {
	spec, ok := e.paramSpec(p)
	if !ok {
		panic(fmt.Sprintf("engine: %q is not a model parameter", p))
	}
	if spec.kind == submodel.Vector {
		return append([]float64(nil), e.dloglik[p]...)
	}
	return e.dloglik[p][0]
}

// DLogLikArray returns a defensive copy of dloglik flattened in the
// parameter projector's slot order.
func (e *Engine) DLogLikArray() []float64 {
	return append([]float64(nil), e.dloglikarray...)
}

// ParamsArray returns the current flat parameter array.
func (e *Engine) ParamsArray() []float64 {
	return e.proj.Extract()
}

// ParamsArrayBounds returns, for each flat slot, its (lo, hi) bound;
// either endpoint may be nil, meaning unbounded on that side.
func (e *Engine) ParamsArrayBounds() [][2]*float64 {
	return e.proj.Bounds()
}

// NSites returns the number of codon sites.
func (e *Engine) NSites() int { return e.nsites }
