// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package newick_test

import (
	"strings"
	"testing"

	"github.com/jbloom/phydms/ctree"
	"github.com/jbloom/phydms/newick"
)

func TestParseBalanced(t *testing.T) {
	const tree = "(((A:0.1,B:0.1):0.2,C:0.3):0.1,D:0.4);"
	root, err := newick.Parse(strings.NewReader(tree))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	idx, err := ctree.Index(root)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if idx.NTips != 4 {
		t.Fatalf("NTips = %d, want 4", idx.NTips)
	}
	if idx.NInternal != 3 {
		t.Fatalf("NInternal = %d, want 3", idx.NInternal)
	}
	for _, name := range []string{"A", "B", "C", "D"} {
		if _, ok := idx.NameToIndex[name]; !ok {
			t.Errorf("tip %q not found", name)
		}
	}
}

func TestParseBranchLengths(t *testing.T) {
	const tree = "(A:0.25,B:0.75):0.0;"
	root, err := newick.Parse(strings.NewReader(tree))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(root.Children) != 2 {
		t.Fatalf("got %d children, want 2", len(root.Children))
	}
	if root.Children[0].Name != "A" || root.Children[0].Length != 0.25 {
		t.Errorf("child 0: got %q:%v, want A:0.25", root.Children[0].Name, root.Children[0].Length)
	}
	if root.Children[1].Name != "B" || root.Children[1].Length != 0.75 {
		t.Errorf("child 1: got %q:%v, want B:0.75", root.Children[1].Name, root.Children[1].Length)
	}
}

func TestParseNoBranchLength(t *testing.T) {
	const tree = "(A,B);"
	root, err := newick.Parse(strings.NewReader(tree))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if root.Children[0].Length != 0 {
		t.Errorf("got length %v, want 0", root.Children[0].Length)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	const tree = "(A:0.1,B:0.1))extra;"
	if _, err := newick.Parse(strings.NewReader(tree)); err == nil {
		t.Fatalf("Parse: want error on trailing garbage")
	}
}

func TestParseUnterminatedClade(t *testing.T) {
	const tree = "(A:0.1,B:0.1;"
	if _, err := newick.Parse(strings.NewReader(tree)); err == nil {
		t.Fatalf("Parse: want error on unterminated clade")
	}
}
