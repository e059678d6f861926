package downloader

import (
	"context"
	"io"
)

// Fetcher opens upstream media streams.
type Fetcher interface {
	// Open starts fetching the resource at url. Callers must close the
	// returned reader. Length is -1 when the upstream does not report
	// Content-Length.
	Open(ctx context.Context, url string) (*Stream, error)
}

// Stream is an opened upstream media stream.
type Stream struct {
	Body        io.ReadCloser
	Length      int64 // -1 when unknown
	ContentType string
}
