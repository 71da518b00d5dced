// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package ctree implements the post-order node indexing used by the
// likelihood engine: a fixed, rooted, strictly bifurcating tree is
// converted into a flat integer indexing in which every descendant
// has a strictly smaller index than its ancestor, tips occupy the
// first indices, internal nodes the next, and the root is last.
//
// Tree parsing itself is out of scope for this package; Raw is the
// minimal shape a parser (see package newick) or a test fixture must
// produce.
package ctree

import "fmt"

// Raw is an already-parsed rooted bifurcating tree: named tips,
// numeric branch lengths, and nested children. It is the contract
// Index consumes, not a tree representation meant for general use.
type Raw struct {
	Name     string
	Length   float64
	Children []*Raw
}

// Indexed is the flat node indexing produced by Index.
//
// Indices 0..NTips-1 are tips, NTips..NNodes-1 are internal nodes,
// and NNodes-1 is the root.
type Indexed struct {
	NTips     int
	NInternal int
	NNodes    int

	// RDescend[m-NTips] and LDescend[m-NTips] are the two child
	// indices of internal node m. Both are strictly less than m.
	RDescend []int
	LDescend []int

	// BranchLength[n] is the length of the branch leading to the
	// parent of node n, for every non-root node. BranchLength has
	// length NNodes-1; the root has no parent branch.
	BranchLength []float64

	// NameToIndex maps a tip label to its tip index.
	NameToIndex map[string]int
}

// Root returns the index of the root node.
func (idx *Indexed) Root() int {
	return idx.NNodes - 1
}

// IsTip reports whether node n is a tip.
func (idx *Indexed) IsTip(n int) bool {
	return n < idx.NTips
}

// Index performs a post-order walk of root, assigning tips the
// indices 0..ntips-1 in visitation order, then internal nodes
// ntips..nnodes-1 in visitation order, with the root occupying the
// last index.
//
// It is a fatal (structural) error for any internal node to have a
// number of children other than exactly two.
func Index(root *Raw) (*Indexed, error) {
	var tips []*Raw
	var internals []*Raw
	// order records each visited node with the pointers of its two
	// children (nil for a tip), in visitation order, so indices can be
	// resolved once every node has been numbered.
	type pending struct {
		node        *Raw
		left, right *Raw
	}
	var order []pending

	var walk func(n *Raw) error
	walk = func(n *Raw) error {
		switch len(n.Children) {
		case 0:
			tips = append(tips, n)
			order = append(order, pending{node: n})
		case 2:
			if err := walk(n.Children[0]); err != nil {
				return err
			}
			if err := walk(n.Children[1]); err != nil {
				return err
			}
			internals = append(internals, n)
			order = append(order, pending{node: n, left: n.Children[0], right: n.Children[1]})
		default:
			label := n.Name
			if label == "" {
				label = "<unnamed>"
			}
			return fmt.Errorf("ctree: node %q has %d children, want exactly 2 (internal) or 0 (tip)", label, len(n.Children))
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}

	ntips := len(tips)
	ninternal := len(internals)
	nnodes := ntips + ninternal

	nodeIndex := make(map[*Raw]int, nnodes)
	for i, n := range tips {
		nodeIndex[n] = i
	}
	for i, n := range internals {
		nodeIndex[n] = ntips + i
	}

	idx := &Indexed{
		NTips:        ntips,
		NInternal:    ninternal,
		NNodes:       nnodes,
		RDescend:     make([]int, ninternal),
		LDescend:     make([]int, ninternal),
		BranchLength: make([]float64, nnodes-1),
		NameToIndex:  make(map[string]int, ntips),
	}

	rootIndex := nodeIndex[root]
	for _, p := range order {
		n := nodeIndex[p.node]
		if n != rootIndex {
			idx.BranchLength[n] = p.node.Length
		}
		if p.left != nil {
			ni := n - ntips
			idx.RDescend[ni] = nodeIndex[p.right]
			idx.LDescend[ni] = nodeIndex[p.left]
			if idx.RDescend[ni] >= n || idx.LDescend[ni] >= n {
				return nil, fmt.Errorf("ctree: internal node %d has a descendant with index >= its own", n)
			}
		} else {
			idx.NameToIndex[p.node.Name] = n
		}
	}

	return idx, nil
}

// Swap exchanges the right and left descendants of internal node m
// (a node index in [NTips, NNodes)). It is used to test order
// independence of the likelihood recursion with respect to sibling
// order; it does not otherwise change the tree.
func (idx *Indexed) Swap(m int) error {
	if m < idx.NTips || m >= idx.NNodes {
		return fmt.Errorf("ctree: node %d is not an internal node", m)
	}
	ni := m - idx.NTips
	idx.RDescend[ni], idx.LDescend[ni] = idx.LDescend[ni], idx.RDescend[ni]
	return nil
}
