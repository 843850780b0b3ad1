// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	concurrency int
	duration    time.Duration
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "dlkv [command] (flags)",
	Short: "direct-load container benchmarking tool",
}

func main() {
	log.SetFlags(0)

	cobra.EnableCommandSorting = false
	rootCmd.AddCommand(loadCmd)

	loadCmd.Flags().IntVarP(
		&concurrency, "concurrency", "c", 4, "number of concurrent writers")
	loadCmd.Flags().DurationVarP(
		&duration, "duration", "d", 0, "the duration to run (0, until all blocks are written)")
	loadCmd.Flags().BoolVarP(
		&verbose, "verbose", "v", false, "enable verbose event logging")
	loadCmd.Flags().Int64VarP(
		&loadConfig.blocks, "blocks", "n", 100000, "number of blocks to ingest")
	loadCmd.Flags().Float64Var(
		&loadConfig.rate, "rate", 0, "maximum blocks ingested per second (0, unlimited)")
	loadCmd.Flags().Int64Var(
		&loadConfig.maxBlocks, "max-blocks", 0,
		"block count at which the container requests a freeze (0, derived from --max-block-bytes)")
	loadCmd.Flags().Int64Var(
		&loadConfig.maxBlockBytes, "max-block-bytes", 10<<30,
		"bytes of macro blocks at which the container requests a freeze")
	loadCmd.Flags().IntVar(
		&loadConfig.columnGroups, "column-groups", 0,
		"number of normal column groups (0, row store)")
	loadCmd.Flags().IntVar(
		&loadConfig.rowKeyColumns, "rowkey-columns", 2, "number of row key columns")

	if err := rootCmd.Execute(); err != nil {
		// Cobra has already printed the error message.
		os.Exit(1)
	}
}
