// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package main

import (
	"fmt"

	"github.com/antiagainst/fmp-integrity/codegen"
	"github.com/antiagainst/fmp-integrity/elf"
	"github.com/antiagainst/fmp-integrity/integrity"
	"github.com/spf13/cobra"
)

func newEmbedCmd() *cobra.Command {
	embedCmd := &cobra.Command{
		Use:   "embed <module> <support.c>",
		Short: "Compute the build-time HMAC of a module and embed it",
		Long: `Read the ordered anchor list from the support source, collect the gaps of
every anchored section, then write the chunk table, anchor offsets, section count
and HMAC into the module's reserved symbols in place.`,
		Args: cobra.ExactArgs(2),
		RunE: runEmbed,
	}
	embedCmd.Flags().StringVar(&hmacKey, "key", integrity.DefaultKey, "HMAC key")
	embedCmd.Flags().StringVar(&dumpDir, "dump-dir", "", "Write hex dumps of the covered bytes to this directory")
	return embedCmd
}

func runEmbed(cmd *cobra.Command, args []string) error {
	gen := codegen.DefaultConfig()
	gen.Prefix = symbolPrefix
	anchors, err := gen.ReadOrdered(args[1])
	if err != nil {
		return err
	}

	f, err := elf.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open '%s': %w", args[0], err)
	}

	cfg := gen.Integrity()
	cfg.Key = hmacKey
	cfg.DumpDir = dumpDir
	p, err := integrity.NewProvider(f, anchors, cfg)
	if err != nil {
		return err
	}
	_, err = p.Run()
	return err
}
