// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cnvogel/splitbz2"
)

func newCatCmd(ctx context.Context) *cobra.Command {
	cf := &CommonFlags{}
	var (
		output   string
		progress bool
	)
	cmd := &cobra.Command{
		Use:   "cat [files...]",
		Short: "decompress bzip2 files, or stdin, to stdout or --output",
		Long:  "decompress bzip2 files or stdin. Files may be local, on S3 or a URL.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCat(ctx, cf, output, progress, args)
		},
	}
	cf.register(cmd)
	cmd.Flags().StringVar(&output, "output", "", "output file or s3 path, omit for stdout")
	cmd.Flags().BoolVar(&progress, "progress", true, "display a progress bar")
	return cmd
}

func runCat(ctx context.Context, cf *CommonFlags, output string, progress bool, args []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if len(args) == 0 {
		args = []string{""}
	}

	wr, err := createOutput(output)
	if err != nil {
		return err
	}
	defer wr.Close()

	for _, name := range args {
		rd, size, err := openInput(ctx, name)
		if err != nil {
			return fmt.Errorf("%v: %v", name, err)
		}

		progOpt, wait := runProgressBar(ctx, progress, len(output) > 0, cf.Concurrency, size)
		opts := cf.decompressorOpts()
		if progOpt != nil {
			opts = append(opts, progOpt)
		}

		drd := splitbz2.NewReader(ctx, rd,
			splitbz2.DecompressionOptions(opts...),
			splitbz2.ScannerOptions(cf.scannerOpts()...))

		_, copyErr := io.Copy(wr, drd)
		wait()
		rd.Close()
		if copyErr != nil {
			return fmt.Errorf("%v: %v", name, copyErr)
		}
	}
	return nil
}
