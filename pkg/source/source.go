// Package source opens event logs from local files, stdin or S3.
package source

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"strings"

	hmerrors "github.com/logflow/hminer/pkg/errors"
)

// Stdin is the uri that reads the log from standard input.
const Stdin = "-"

// Config holds source configuration.
type Config struct {
	S3 S3Config `yaml:"s3"`
}

// IsS3 reports whether uri names an S3 object.
func IsS3(uri string) bool {
	return strings.HasPrefix(uri, "s3://")
}

// Open opens uri for reading. uri is a local path, "-" for stdin, or
// s3://bucket/key. Inputs ending in .gz are decompressed transparently.
func Open(ctx context.Context, uri string, cfg Config) (io.ReadCloser, error) {
	var (
		rc  io.ReadCloser
		err error
	)
	switch {
	case uri == Stdin:
		rc = io.NopCloser(os.Stdin)
	case IsS3(uri):
		rc, err = openS3(ctx, uri, cfg.S3)
	default:
		rc, err = openFile(uri)
	}
	if err != nil {
		return nil, err
	}

	if strings.HasSuffix(strings.ToLower(uri), ".gz") {
		gz, err := gzip.NewReader(rc)
		if err != nil {
			rc.Close()
			return nil, hmerrors.Wrap(err, hmerrors.CodeInvalidFormat, "invalid gzip stream").
				WithContext("uri", uri)
		}
		return &gzipReadCloser{Reader: gz, underlying: rc}, nil
	}
	return rc, nil
}

func openFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, hmerrors.FileNotFound(path)
		}
		return nil, hmerrors.Wrap(err, hmerrors.CodeStorage, "failed to open file").
			WithContext("path", path)
	}
	return f, nil
}

type gzipReadCloser struct {
	*gzip.Reader
	underlying io.Closer
}

func (g *gzipReadCloser) Close() error {
	gerr := g.Reader.Close()
	if err := g.underlying.Close(); err != nil {
		return err
	}
	return gerr
}
