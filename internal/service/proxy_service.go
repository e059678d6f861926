package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/hexfold/streamrelay/internal/domain"
	"github.com/hexfold/streamrelay/internal/downloader"
	"github.com/hexfold/streamrelay/internal/resolver"
)

// relayBufSize is the chunk size for the stream relay. Memory use per
// transfer is bounded by this buffer regardless of media size.
const relayBufSize = 32 * 1024

// ProxyService orchestrates the metadata lookup, format selection and
// stream relay pipeline.
type ProxyService struct {
	resolver resolver.Resolver
	fetcher  downloader.Fetcher
	logger   *slog.Logger
}

// NewProxyService creates a new proxy service.
func NewProxyService(r resolver.Resolver, f downloader.Fetcher, logger *slog.Logger) *ProxyService {
	return &ProxyService{
		resolver: r,
		fetcher:  f,
		logger:   logger,
	}
}

// Info resolves metadata for a target URL without opening any stream.
func (s *ProxyService) Info(ctx context.Context, target string) (*domain.VideoInfo, error) {
	return s.resolver.Resolve(ctx, target)
}

// OpenResult carries everything the download handler needs to start
// relaying: the resolved video, the chosen format, and the opened
// upstream stream.
type OpenResult struct {
	Video  *domain.VideoInfo
	Format *domain.Format
	Stream *downloader.Stream
}

// OpenStream resolves target, selects a format for the quality
// selector, and opens the upstream fetch. The caller owns the stream
// body and must close it.
func (s *ProxyService) OpenStream(ctx context.Context, target, quality string) (*OpenResult, error) {
	info, err := s.resolver.Resolve(ctx, target)
	if err != nil {
		return nil, err
	}

	format, err := domain.SelectFormat(info.Formats, quality)
	if err != nil {
		return nil, err
	}

	stream, err := s.fetcher.Open(ctx, format.URL)
	if err != nil {
		return nil, fmt.Errorf("open upstream: %w", err)
	}

	s.logger.Info("upstream opened",
		"video_id", info.ID,
		"format_id", format.ID,
		"quality", format.QualityLabel,
		"length", stream.Length,
	)

	return &OpenResult{Video: info, Format: format, Stream: stream}, nil
}

// Relay copies src to dst in bounded chunks, flushing as it goes and
// accounting bytes on the session. It is a pure pass-through: no
// decoding, no buffering beyond one chunk. Returns the byte count
// written, which for a successful transfer equals the bytes read.
func (s *ProxyService) Relay(ctx context.Context, dst io.Writer, src io.Reader, sess *domain.Session) (int64, error) {
	flusher, _ := dst.(http.Flusher)
	buf := make([]byte, relayBufSize)

	var written int64
	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			sess.Activate()

			wn, writeErr := dst.Write(buf[:n])
			written += int64(wn)
			sess.AddBytes(int64(wn))

			if writeErr != nil {
				return written, fmt.Errorf("write response: %w", writeErr)
			}
			if wn != n {
				return written, io.ErrShortWrite
			}
			if flusher != nil {
				flusher.Flush()
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return written, nil
			}
			return written, fmt.Errorf("read upstream: %w", readErr)
		}
	}
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._ -]+`)

// SanitizeFilename produces a safe attachment filename from a
// user-supplied name or a video title, appending the container
// extension when missing.
func SanitizeFilename(name, fallback, container string) string {
	if name == "" {
		name = fallback
	}

	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, " ._")
	if name == "" {
		name = "download"
	}

	const maxLen = 150
	if len(name) > maxLen {
		name = name[:maxLen]
	}

	ext := "." + strings.ToLower(container)
	if container != "" && !strings.HasSuffix(strings.ToLower(name), ext) {
		name += ext
	}

	return name
}
