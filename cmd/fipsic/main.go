// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package main

import (
	"os"

	"github.com/antiagainst/fmp-integrity/integrity"
	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/spf13/cobra"
)

var (
	verboseMode  bool
	hmacKey      string
	symbolPrefix string
	dumpDir      string
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fipsic",
		Short: "Build-time integrity check generator for kernel modules",
		Long: `Generate anchor accessors for the covered sections of a set of objects,
then embed the chunk table, anchor offsets and HMAC into the linked module.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetHandler(cli.New(os.Stderr))
			if verboseMode {
				log.SetLevel(log.DebugLevel)
			} else {
				log.SetLevel(log.InfoLevel)
			}
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verboseMode, "verbose", "v", false, "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&symbolPrefix, "prefix", integrity.DefaultPrefix, "Prefix of the reserved symbols")

	rootCmd.AddCommand(newGenCmd(), newEmbedCmd())
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
