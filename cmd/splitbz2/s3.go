// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

func parseS3URI(uri string) (bucket, key string, err error) {
	trimmed := strings.TrimPrefix(uri, "s3://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed s3 uri: %v", uri)
	}
	return parts[0], parts[1], nil
}

// getS3Object issues a GetObject request, optionally with an explicit
// byte Range header (RFC 7233 form, e.g. "bytes=0-99"), the mechanism
// that lets a worker be handed just the compressed range it owns.
func getS3Object(ctx context.Context, bucket, key, byteRange string) (io.ReadCloser, int64, error) {
	sess, err := session.NewSession()
	if err != nil {
		return nil, 0, err
	}
	svc := s3.New(sess)
	in := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if byteRange != "" {
		in.Range = aws.String(byteRange)
	}
	out, err := svc.GetObjectWithContext(ctx, in)
	if err != nil {
		return nil, 0, err
	}
	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return out.Body, size, nil
}

// s3Writer buffers writes and uploads them as a single PutObject call on
// Close: S3 has no append-in-place equivalent of a local file handle.
type s3Writer struct {
	bucket, key string
	buf         bytes.Buffer
}

func newS3Writer(bucket, key string) *s3Writer {
	return &s3Writer{bucket: bucket, key: key}
}

func (w *s3Writer) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *s3Writer) Close() error {
	sess, err := session.NewSession()
	if err != nil {
		return err
	}
	svc := s3.New(sess)
	_, err = svc.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(w.key),
		Body:   bytes.NewReader(w.buf.Bytes()),
	})
	return err
}
