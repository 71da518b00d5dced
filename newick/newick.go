// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package newick implements a minimal reader for the Newick tree
// format, producing a github.com/jbloom/phydms/ctree.Raw tree.
//
// Only the subset needed by this module is supported: named tips,
// ":branch-length" suffixes, and nested parentheses. Quoted labels,
// comments, and NHX-style annotations are not handled; general tree
// parsing is out of scope for this module (see spec.md §1).
package newick

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jbloom/phydms/ctree"
)

// Parse reads a single Newick tree from r.
func Parse(r io.Reader) (*ctree.Raw, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("newick: %v", err)
	}
	s := strings.TrimSpace(string(b))
	s = strings.TrimSuffix(s, ";")

	p := &parser{s: s}
	root, err := p.node()
	if err != nil {
		return nil, fmt.Errorf("newick: %v", err)
	}
	if p.pos != len(p.s) {
		return nil, fmt.Errorf("newick: unexpected trailing characters at position %d", p.pos)
	}
	return root, nil
}

type parser struct {
	s   string
	pos int
}

func (p *parser) node() (*ctree.Raw, error) {
	n := &ctree.Raw{}
	if p.pos < len(p.s) && p.s[p.pos] == '(' {
		p.pos++ // consume '('
		for {
			child, err := p.node()
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, child)
			if p.pos >= len(p.s) {
				return nil, fmt.Errorf("unterminated clade at position %d", p.pos)
			}
			if p.s[p.pos] == ',' {
				p.pos++
				continue
			}
			if p.s[p.pos] == ')' {
				p.pos++
				break
			}
			return nil, fmt.Errorf("expecting ',' or ')' at position %d, found %q", p.pos, p.s[p.pos])
		}
	}

	name, length, err := p.label()
	if err != nil {
		return nil, err
	}
	n.Name = name
	n.Length = length
	return n, nil
}

func (p *parser) label() (name string, length float64, err error) {
	start := p.pos
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		if c == ',' || c == ')' || c == '(' {
			break
		}
		p.pos++
	}
	field := p.s[start:p.pos]

	if i := strings.IndexByte(field, ':'); i >= 0 {
		name = field[:i]
		lv := field[i+1:]
		if lv != "" {
			length, err = strconv.ParseFloat(lv, 64)
			if err != nil {
				return "", 0, fmt.Errorf("invalid branch length %q: %v", lv, err)
			}
		}
		return name, length, nil
	}
	return field, 0, nil
}
