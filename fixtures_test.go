// Copyright 2021 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package splitbz2_test

import (
	gobzip2 "compress/bzip2"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/cnvogel/splitbz2/internal"
)

// bzip2Files and bzip2Data are populated once, by TestMain, by shelling
// out to the system bzip2 binary; the compressed fixtures this
// package's tests exercise are generated on the fly rather than
// checked in as binary testdata.
var (
	bzip2Files map[string]string
	bzip2Data  map[string][]byte
)

func bc(c ...uint32) []uint32 { return c }
func bci(c ...int) []int      { return c }

func TestMain(m *testing.M) {
	tmpdir, err := ioutil.TempDir("", "splitbz2-fixtures")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(tmpdir)

	bzip2Files = map[string]string{}
	bzip2Data = map[string][]byte{}
	for _, tc := range []struct {
		name      string
		data      []byte
		blockSize string
	}{
		{"empty", nil, "-1"},
		{"hello", []byte("hello world\n"), "-1"},
		{"300KB1", internal.GenPredictableRandomData(300 * 1024), "-1"},
		{"300KB2", internal.GenPredictableRandomData(300 * 1024), "-2"},
		{"300KB5", internal.GenPredictableRandomData(300 * 1024), "-5"},
		{"300KB3_Random", internal.GenPredictableRandomData(300 * 1024), "-3"},
		{"900KB2_Random", internal.GenPredictableRandomData(900 * 1024), "-2"},
		{"1033KB4_Random", internal.GenPredictableRandomData(1033 * 1024), "-4"},
	} {
		raw := filepath.Join(tmpdir, tc.name)
		if err := internal.CreateBzipFile(raw, tc.blockSize, tc.data); err != nil {
			panic(err)
		}
		bzip2Files[tc.name] = raw + ".bz2"
		bzip2Data[tc.name] = tc.data
	}
	os.Exit(m.Run())
}

func openBzipFile(t *testing.T, filename string) io.ReadCloser {
	t.Helper()
	f, err := os.Open(filename)
	if err != nil {
		t.Fatalf("open %v: %v", filename, err)
	}
	return f
}

// readBzipFile decodes filename with the standard library's bzip2
// reader, giving tests an independent oracle to compare against.
func readBzipFile(t *testing.T, filename string) []byte {
	t.Helper()
	f := openBzipFile(t, filename)
	defer f.Close()
	data, err := ioutil.ReadAll(gobzip2.NewReader(f))
	if err != nil {
		t.Fatalf("stdlib decode %v: %v", filename, err)
	}
	return data
}

// readFile returns the raw compressed bytes for name along with the
// index of their last byte, which tests use to corrupt a known-good
// file near its end (its stream CRC or EOS trailer).
func readFile(t *testing.T, name string) ([]byte, int) {
	t.Helper()
	data, err := ioutil.ReadFile(bzip2Files[name])
	if err != nil {
		t.Fatalf("read %v: %v", name, err)
	}
	return data, len(data) - 1
}
