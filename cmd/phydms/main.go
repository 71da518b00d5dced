// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Phydms fits and evaluates experienced codon models (ExpCM) of
// molecular evolution over a fixed phylogenetic tree.
package main

import (
	"github.com/js-arias/command"

	"github.com/jbloom/phydms/cmd/phydms/fit"
	"github.com/jbloom/phydms/cmd/phydms/like"
	"github.com/jbloom/phydms/cmd/phydms/simcmd"
)

var app = &command.Command{
	Usage: "phydms <command> [<argument>...]",
	Short: "fit and evaluate experienced codon models",
}

func init() {
	app.Add(fit.Command)
	app.Add(like.Command)
	app.Add(simcmd.Command)
}

func main() {
	app.Main()
}
