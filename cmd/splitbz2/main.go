// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v3"
	"github.com/schollz/progressbar/v2"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/cnvogel/splitbz2"
)

// CommonFlags are shared by every subcommand that drives a Decompressor.
type CommonFlags struct {
	Concurrency      int
	MaxBlockOverhead int
	Verbose          bool
}

func (cf *CommonFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&cf.Concurrency, "concurrency", runtime.GOMAXPROCS(-1), "concurrency for the decompression")
	cmd.Flags().IntVar(&cf.MaxBlockOverhead, "max-block-overhead", 0, "the max size of the per block coding tables, 0 to use the default")
	cmd.Flags().BoolVar(&cf.Verbose, "verbose", false, "verbose debug/trace information")
}

func (cf *CommonFlags) decompressorOpts() []splitbz2.DecompressorOption {
	return []splitbz2.DecompressorOption{
		splitbz2.BZConcurrency(cf.Concurrency),
		splitbz2.BZVerbose(cf.Verbose),
	}
}

func (cf *CommonFlags) scannerOpts() []splitbz2.ScannerOption {
	var opts []splitbz2.ScannerOption
	if cf.MaxBlockOverhead > 0 {
		opts = append(opts, splitbz2.ScanBlockOverhead(cf.MaxBlockOverhead))
	}
	return opts
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		cancel()
	}()

	root := newRootCmd(ctx)
	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRootCmd(ctx context.Context) *cobra.Command {
	root := &cobra.Command{
		Use:   "splitbz2",
		Short: "decompress and inspect bzip2 files, locally, on S3 or over HTTP",
	}
	root.AddCommand(newCatCmd(ctx), newBlocksCmd(ctx), newRangesCmd(ctx))
	return root
}

// openWithRetry wraps an I/O open operation (a local file, an HTTP GET, an
// S3 range-get) in an exponential backoff retry: range-reads against
// object storage and flaky networks are exactly the transient-failure-
// prone operations this library exists for.
func openWithRetry(ctx context.Context, open func() (io.ReadCloser, int64, error)) (io.ReadCloser, int64, error) {
	var (
		rd   io.ReadCloser
		size int64
	)
	b := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	err := backoff.Retry(func() error {
		r, s, err := open()
		if err != nil {
			return err
		}
		rd, size = r, s
		return nil
	}, b)
	return rd, size, err
}

// openInput resolves name to a readable stream: an "s3://bucket/key" URI,
// an "http(s)://" URL, "-" or "" for stdin, or a local file path.
func openInput(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	switch {
	case name == "" || name == "-":
		return io.NopCloser(os.Stdin), -1, nil
	case strings.HasPrefix(name, "s3://"):
		bucket, key, err := parseS3URI(name)
		if err != nil {
			return nil, 0, err
		}
		return openWithRetry(ctx, func() (io.ReadCloser, int64, error) {
			return getS3Object(ctx, bucket, key, "")
		})
	case strings.HasPrefix(name, "http://"), strings.HasPrefix(name, "https://"):
		return openWithRetry(ctx, func() (io.ReadCloser, int64, error) {
			resp, err := http.Get(name)
			if err != nil {
				return nil, 0, err
			}
			return resp.Body, resp.ContentLength, nil
		})
	default:
		return openWithRetry(ctx, func() (io.ReadCloser, int64, error) {
			f, err := os.Open(name)
			if err != nil {
				return nil, 0, err
			}
			info, err := f.Stat()
			if err != nil {
				f.Close()
				return nil, 0, err
			}
			return f, info.Size(), nil
		})
	}
}

func createOutput(name string) (io.WriteCloser, error) {
	if len(name) == 0 {
		return nopWriteCloser{os.Stdout}, nil
	}
	if strings.HasPrefix(name, "s3://") {
		bucket, key, err := parseS3URI(name)
		if err != nil {
			return nil, err
		}
		return newS3Writer(bucket, key), nil
	}
	return os.Create(name)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func progressBar(ctx context.Context, wr io.Writer, ch <-chan splitbz2.Progress, size int64) {
	next := uint64(1)
	bar := progressbar.NewOptions64(size,
		progressbar.OptionSetBytes64(size),
		progressbar.OptionSetWriter(wr),
		progressbar.OptionSetPredictTime(true))
	bar.RenderBlank()
	for {
		select {
		case p, ok := <-ch:
			if !ok {
				fmt.Fprintln(wr)
				return
			}
			bar.Add(p.Compressed)
			if p.Block != next {
				log.Printf("out of sequence block %#v", p)
			}
			next++
		case <-ctx.Done():
			return
		}
	}
}

func runProgressBar(ctx context.Context, enable bool, haveOutputFile bool, concurrency int, size int64) (opt splitbz2.DecompressorOption, wait func()) {
	isTTY := terminal.IsTerminal(int(os.Stdout.Fd()))
	if !enable || (!haveOutputFile && isTTY) {
		return nil, func() {}
	}
	ch := make(chan splitbz2.Progress, concurrency)
	var wg sync.WaitGroup
	wg.Add(1)
	wr := os.Stdout
	if !isTTY {
		wr = os.Stderr
	}
	go func() {
		defer wg.Done()
		progressBar(ctx, wr, ch, size)
	}()
	return splitbz2.BZSendUpdates(ch), func() {
		close(ch)
		wg.Wait()
	}
}
