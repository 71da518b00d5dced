// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package align reads aligned, in-frame coding sequences and encodes
// them against a tree's tip indexing, as described by spec.md §3 and
// §4.2.
package align

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jbloom/phydms/codon"
	"github.com/jbloom/phydms/ctree"
)

// Record is a single aligned sequence: a tip name and its codon
// string, "ATGCTA---..." with no separators, length 3*nsites.
type Record struct {
	Name   string
	Codons string
}

// ReadTSV reads records from a two-column "name\tcodons" TSV file. A
// leading header row, if present, is detected by the literal column
// names "name" and "codons" and skipped; lines starting with '#' are
// comments.
func ReadTSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.Comment = '#'
	cr.FieldsPerRecord = 2

	var recs []Record
	first := true
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("align: %v", err)
		}
		if first {
			first = false
			if strings.EqualFold(row[0], "name") && strings.EqualFold(row[1], "codons") {
				continue
			}
		}
		recs = append(recs, Record{Name: row[0], Codons: row[1]})
	}
	return recs, nil
}

// ReadFASTA reads records from a FASTA-formatted alignment: each
// record is a ">name" header line followed by one or more sequence
// lines, concatenated with whitespace stripped.
func ReadFASTA(r io.Reader) ([]Record, error) {
	var recs []Record
	var cur *Record
	var seq strings.Builder

	flush := func() {
		if cur != nil {
			cur.Codons = seq.String()
			recs = append(recs, *cur)
		}
		seq.Reset()
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ">") {
			flush()
			name := strings.TrimSpace(strings.TrimPrefix(line, ">"))
			cur = &Record{Name: name}
			continue
		}
		if cur == nil {
			return nil, fmt.Errorf("align: sequence data before any header")
		}
		seq.WriteString(line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("align: %v", err)
	}
	flush()
	return recs, nil
}

// ReadPrefs reads a per-site amino-acid preference TSV: a header row
// "site" followed by the 20 amino-acid one-letter codes in any order,
// then one data row per site. Rows are returned in file order and are
// not assumed to be pre-normalized; ReadPrefs divides each row by its
// own sum so it sums to 1, matching the expcm.Model contract.
func ReadPrefs(r io.Reader) ([][codon.NAminoAcids]float64, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.Comment = '#'

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("align: preference file: %v", err)
	}
	if len(header) < 1+codon.NAminoAcids {
		return nil, fmt.Errorf("align: preference file: header has %d columns, want at least %d", len(header), 1+codon.NAminoAcids)
	}
	col := make(map[int]int, codon.NAminoAcids) // column index -> amino-acid index
	for i, h := range header[1:] {
		aa := strings.ToUpper(strings.TrimSpace(h))
		if len(aa) != 1 {
			continue
		}
		ai, ok := codon.AminoAcidIndex[aa[0]]
		if !ok {
			continue
		}
		col[i+1] = ai
	}
	if len(col) != codon.NAminoAcids {
		return nil, fmt.Errorf("align: preference file: header names %d of the %d amino acids", len(col), codon.NAminoAcids)
	}

	var prefs [][codon.NAminoAcids]float64
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("align: preference file: %v", err)
		}
		var p [codon.NAminoAcids]float64
		var total float64
		for i, ai := range col {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
			if err != nil {
				return nil, fmt.Errorf("align: preference file: site %d: %v", len(prefs), err)
			}
			p[ai] = v
			total += v
		}
		if total <= 0 {
			return nil, fmt.Errorf("align: preference file: site %d: preferences sum to %v", len(prefs), total)
		}
		for i := range p {
			p[i] /= total
		}
		prefs = append(prefs, p)
	}
	return prefs, nil
}

// Encode maps each record to its tip index in idx and splits its
// codon string into nsites codon/gap observations, per spec.md §4.2.
//
// It is a fatal (structural) error for the alignment's name set to
// differ from the tree's tip-label set, for a codon string's length
// to differ from 3*nsites, or for a 3-character window to be neither
// a sense codon nor the gap literal "---".
func Encode(idx *ctree.Indexed, nsites int, records []Record) (tips [][]int, gaps []map[int]bool, err error) {
	if len(records) != idx.NTips {
		return nil, nil, fmt.Errorf("align: alignment has %d sequences, tree has %d tips", len(records), idx.NTips)
	}

	tips = make([][]int, idx.NTips)
	gaps = make([]map[int]bool, idx.NTips)
	seen := make(map[string]bool, len(records))

	for _, rec := range records {
		n, ok := idx.NameToIndex[rec.Name]
		if !ok {
			return nil, nil, fmt.Errorf("align: sequence %q has no matching tip in the tree", rec.Name)
		}
		if seen[rec.Name] {
			return nil, nil, fmt.Errorf("align: duplicate sequence name %q", rec.Name)
		}
		seen[rec.Name] = true

		if len(rec.Codons) != 3*nsites {
			return nil, nil, fmt.Errorf("align: sequence %q has length %d, want %d (3*%d sites)", rec.Name, len(rec.Codons), 3*nsites, nsites)
		}

		row := make([]int, nsites)
		gapset := make(map[int]bool)
		for r := 0; r < nsites; r++ {
			site := rec.Codons[3*r : 3*r+3]
			if site == codon.Gap {
				gapset[r] = true
				row[r] = 0
				continue
			}
			ci, ok := codon.CodonToIndex[site]
			if !ok {
				return nil, nil, fmt.Errorf("align: sequence %q site %d: unknown codon %q", rec.Name, r, site)
			}
			row[r] = ci
		}
		tips[n] = row
		gaps[n] = gapset
	}

	if len(seen) != idx.NTips {
		for name := range idx.NameToIndex {
			if !seen[name] {
				return nil, nil, fmt.Errorf("align: tip %q has no matching sequence in the alignment", name)
			}
		}
	}

	return tips, gaps, nil
}
