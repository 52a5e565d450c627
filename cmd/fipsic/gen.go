// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package main

import (
	"github.com/antiagainst/fmp-integrity/codegen"
	"github.com/spf13/cobra"
)

func newGenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gen <support.c> <support.h> <object>...",
		Short: "Patch sources with anchor accessors and write the support files",
		Long: `For every object dir/elf_<name>.o, choose one anchor symbol per covered
section not seen in an earlier object, append its accessor to dir/fipsed_<name>.c,
then write the support source and header.`,
		Args: cobra.MinimumNArgs(3),
		RunE: runGen,
	}
}

func runGen(cmd *cobra.Command, args []string) error {
	cfg := codegen.DefaultConfig()
	cfg.Prefix = symbolPrefix

	set := codegen.AnchorSet{}
	for _, object := range args[2:] {
		var err error
		if set, err = cfg.Process(object, set); err != nil {
			return err
		}
	}
	return cfg.WriteSupportFiles(args[0], args[1], set)
}
