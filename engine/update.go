// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package engine

import "fmt"

// UpdateParams is the Update Coordinator of spec.md §4.5. It
// partitions assignment into model parameters and others (a fatal
// error if any key names a parameter the model does not declare),
// forwards the model parameters to the model's UpdateParams, and, if
// the assignment was non-empty, re-runs the Likelihood Kernel in full
// and invalidates the cached flat-parameter snapshot.
func (e *Engine) UpdateParams(assignment map[string]any) error {
	if len(assignment) == 0 {
		return nil
	}
	for name := range assignment {
		if !e.isFreeParam(name) {
			return fmt.Errorf("engine: %q is not a model parameter", name)
		}
	}

	if err := e.model.UpdateParams(assignment); err != nil {
		return err
	}
	if err := e.recompute(); err != nil {
		return err
	}
	e.proj.invalidateCache()
	return nil
}

// SetFlatParams assigns a new flat parameter array, per spec.md
// §4.5's set_flat_params: length-checked, a no-op if equal to the
// cached snapshot, otherwise inverted via the Parameter Projector and
// applied through UpdateParams, refreshing the snapshot on success.
func (e *Engine) SetFlatParams(flat []float64) error {
	if len(flat) != e.proj.Len() {
		return fmt.Errorf("engine: flat parameter array has length %d, want %d", len(flat), e.proj.Len())
	}
	if e.proj.sameAsCache(flat) {
		return nil
	}

	assignment, err := e.proj.Inject(flat)
	if err != nil {
		return err
	}
	if err := e.UpdateParams(assignment); err != nil {
		return err
	}
	e.proj.setCache(flat)
	return nil
}
