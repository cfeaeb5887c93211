// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cnvogel/splitbz2"
)

// newBlocksCmd lists the blocks of a bzip2 file as found by the byte-level
// Scanner: for each block its bit offset, size in bits, CRC and bzip2
// level. It does not decode the blocks and does not report the
// decoder's byte positions.
func newBlocksCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blocks <file>...",
		Short: "scan a bzip2 file and print its block boundaries",
		Long:  "scan a bzip2 file using the scanner's byte-aligned pre-scan; the scan is serial and is intended purely for debugging and inspection purposes.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBlocks(ctx, args)
		},
	}
	return cmd
}

func runBlocks(ctx context.Context, args []string) error {
	for _, name := range args {
		rd, _, err := openInput(ctx, name)
		if err != nil {
			return fmt.Errorf("%v: %v", name, err)
		}
		sc := splitbz2.NewScanner(rd)
		nblocks := 0
		for sc.Scan(ctx) {
			block := sc.Block()
			fmt.Printf("%v: %v\n", name, block)
			nblocks++
		}
		rd.Close()
		if err := sc.Err(); err != nil {
			return fmt.Errorf("%v: %v", name, err)
		}
		fmt.Printf("%v: %v block(s)\n", name, nblocks)
	}
	return nil
}
