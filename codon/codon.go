// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package codon defines the 61 sense-codon alphabet used to encode
// aligned protein-coding sequences, and the standard genetic code
// table used to classify substitutions as synonymous or
// nonsynonymous.
package codon

import "fmt"

// NSenseCodons is the size of the codon alphabet: the 64 nucleotide
// triplets minus the 3 standard stop codons.
const NSenseCodons = 61

// Gap is the literal used for a missing whole codon in an alignment.
const Gap = "---"

// NNucleotides is the size of the nucleotide alphabet.
const NNucleotides = 4

var nucleotides = [NNucleotides]byte{'A', 'C', 'G', 'T'}

var nucIndex = map[byte]int{'A': 0, 'C': 1, 'G': 2, 'T': 3}

// NucleotideLetter returns the one-letter code for nucleotide index i
// (the inverse of Nucleotide), in the same A,C,G,T order used
// throughout this package for F1x4-style frequency vectors.
func NucleotideLetter(i int) byte {
	return nucleotides[i]
}

// the standard genetic code, indexed [first][second][third] nucleotide.
var geneticCode = [4][4][4]byte{
	{ // A
		{'K', 'N', 'K', 'N'}, // AA_
		{'T', 'T', 'T', 'T'}, // AC_
		{'R', 'S', 'R', 'S'}, // AG_
		{'I', 'I', 'M', 'I'}, // AT_
	},
	{ // C
		{'Q', 'H', 'Q', 'H'}, // CA_
		{'P', 'P', 'P', 'P'}, // CC_
		{'R', 'R', 'R', 'R'}, // CG_
		{'L', 'L', 'L', 'L'}, // CT_
	},
	{ // G
		{'E', 'D', 'E', 'D'}, // GA_
		{'A', 'A', 'A', 'A'}, // GC_
		{'G', 'G', 'G', 'G'}, // GG_
		{'V', 'V', 'V', 'V'}, // GT_
	},
	{ // T
		{'*', 'Y', '*', 'Y'}, // TA_
		{'S', 'S', 'S', 'S'}, // TC_
		{'*', 'C', 'W', 'C'}, // TG_
		{'L', 'F', 'L', 'F'}, // TT_
	},
}

// CodonToIndex maps a codon string to its index in [0, NSenseCodons).
var CodonToIndex map[string]int

// IndexToCodon maps a codon index to its codon string.
var IndexToCodon [NSenseCodons]string

// IndexToAmino maps a codon index to its one-letter amino acid code.
var IndexToAmino [NSenseCodons]byte

// NAminoAcids is the number of distinct amino acids encoded by the
// sense-codon alphabet (the 20 standard amino acids).
const NAminoAcids = 20

// AminoAcids lists the one-letter amino acid codes in ABC order.
var AminoAcids [NAminoAcids]byte

// AminoAcidIndex maps a one-letter amino acid code to its index in
// AminoAcids.
var AminoAcidIndex map[byte]int

func init() {
	CodonToIndex = make(map[string]int, NSenseCodons)
	i := 0
	for _, a := range nucleotides {
		for _, b := range nucleotides {
			for _, c := range nucleotides {
				aa := geneticCode[nucIndex[a]][nucIndex[b]][nucIndex[c]]
				if aa == '*' {
					continue
				}
				codon := string([]byte{a, b, c})
				CodonToIndex[codon] = i
				IndexToCodon[i] = codon
				IndexToAmino[i] = aa
				i++
			}
		}
	}
	if i != NSenseCodons {
		panic(fmt.Sprintf("codon: built %d sense codons, want %d", i, NSenseCodons))
	}

	seen := make(map[byte]bool, NAminoAcids)
	var letters []byte
	for _, aa := range IndexToAmino {
		if !seen[aa] {
			seen[aa] = true
			letters = append(letters, aa)
		}
	}
	for i := 1; i < len(letters); i++ {
		for j := i; j > 0 && letters[j-1] > letters[j]; j-- {
			letters[j-1], letters[j] = letters[j], letters[j-1]
		}
	}
	if len(letters) != NAminoAcids {
		panic(fmt.Sprintf("codon: found %d amino acids, want %d", len(letters), NAminoAcids))
	}
	copy(AminoAcids[:], letters)
	AminoAcidIndex = make(map[byte]int, NAminoAcids)
	for i, aa := range letters {
		AminoAcidIndex[aa] = i
	}
}

// Nucleotide returns the index in [0,4) of a nucleotide letter.
func Nucleotide(b byte) (int, bool) {
	n, ok := nucIndex[b]
	return n, ok
}

// NucleotideAt returns the nucleotide index (0=A,1=C,2=G,3=T) at
// position pos (0, 1, or 2) of the codon with the given index.
func NucleotideAt(codon, pos int) int {
	n, _ := Nucleotide(IndexToCodon[codon][pos])
	return n
}

// IsSynonymous reports whether two codon indices encode the same
// amino acid.
func IsSynonymous(x, y int) bool {
	return IndexToAmino[x] == IndexToAmino[y]
}

// IsTransition reports whether a single-nucleotide substitution
// between two nucleotide letters is a transition (A<->G or C<->T)
// as opposed to a transversion.
func IsTransition(a, b byte) bool {
	switch {
	case a == b:
		return false
	case (a == 'A' && b == 'G') || (a == 'G' && b == 'A'):
		return true
	case (a == 'C' && b == 'T') || (a == 'T' && b == 'C'):
		return true
	}
	return false
}

// NeighborDiff reports whether codon indices x and y differ at
// exactly one nucleotide position, and if so returns that position
// and whether the implied substitution is a transition.
func NeighborDiff(x, y int) (pos int, transition bool, ok bool) {
	if x == y {
		return 0, false, false
	}
	cx, cy := IndexToCodon[x], IndexToCodon[y]
	diff := -1
	for i := 0; i < 3; i++ {
		if cx[i] != cy[i] {
			if diff != -1 {
				return 0, false, false
			}
			diff = i
		}
	}
	if diff == -1 {
		return 0, false, false
	}
	return diff, IsTransition(cx[diff], cy[diff]), true
}
