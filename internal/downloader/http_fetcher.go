package downloader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hexfold/streamrelay/internal/config"
	"github.com/hexfold/streamrelay/internal/domain"
)

// HTTPFetcher implements Fetcher using plain HTTP requests.
type HTTPFetcher struct {
	// streamClient has no overall timeout; a transfer is bounded by the
	// response header timeout up front and the stall watchdog after.
	streamClient *http.Client
	userAgent    string
	cfg          config.DownloadConfig
	logger       *slog.Logger
}

// NewHTTPFetcher creates a new HTTP-based upstream fetcher.
func NewHTTPFetcher(cfg config.DownloadConfig) *HTTPFetcher {
	streamTransport := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
	}

	return &HTTPFetcher{
		streamClient: &http.Client{
			Transport: streamTransport,
		},
		userAgent: cfg.UserAgent,
		cfg:       cfg,
		logger:    slog.Default(),
	}
}

// SetLogger sets the logger for transfer progress reporting.
func (f *HTTPFetcher) SetLogger(logger *slog.Logger) {
	f.logger = logger
}

// Open starts fetching the resource at url. No retry happens here:
// resolved source URLs are short-lived and retrying belongs to the
// extraction tool's own configuration.
func (f *HTTPFetcher) Open(ctx context.Context, url string) (*Stream, error) {
	if url == "" {
		return nil, domain.ErrMissingURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	f.setHeaders(req)

	resp, err := f.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %d", domain.ErrUpstreamStatus, resp.StatusCode)
	}

	length := resp.ContentLength
	if length < 0 {
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			if parsed, perr := strconv.ParseInt(cl, 10, 64); perr == nil {
				length = parsed
			}
		}
	}

	return &Stream{
		Body:        newProgressReader(resp.Body, length, f.cfg.ReadTimeout, f.logger, url),
		Length:      length,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

func (f *HTTPFetcher) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "video/mp4,video/*;q=0.9,audio/*;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
}

// progressReader wraps an io.ReadCloser to track transfer progress.
// A watchdog timer aborts the transfer when no data arrives within
// readTimeout: it closes the underlying body, which unblocks a read
// stuck on a silent upstream socket. Sampling never blocks or slows
// the relay.
type progressReader struct {
	reader      io.ReadCloser
	total       int64
	readTimeout time.Duration
	logger      *slog.Logger
	url         string

	mu           sync.Mutex
	transferred  int64
	lastLog      time.Time
	watchdog     *time.Timer
	stalled      bool
	readerClosed bool
	closed       bool
}

func newProgressReader(r io.ReadCloser, total int64, readTimeout time.Duration, logger *slog.Logger, url string) *progressReader {
	p := &progressReader{
		reader:      r,
		total:       total,
		readTimeout: readTimeout,
		lastLog:     time.Now(),
		logger:      logger,
		url:         url,
	}
	if readTimeout > 0 {
		p.watchdog = time.AfterFunc(readTimeout, p.stall)
	}
	return p
}

// stall fires on the watchdog goroutine when readTimeout elapses with
// no bytes. Closing the body is the only way to interrupt a Read that
// is already blocked on the socket.
func (p *progressReader) stall() {
	p.mu.Lock()
	if p.closed || p.readerClosed {
		p.mu.Unlock()
		return
	}
	p.stalled = true
	p.readerClosed = true
	p.mu.Unlock()

	p.logger.Warn("upstream stalled",
		"url", urlPrefix(p.url),
		"timeout", p.readTimeout,
	)
	p.reader.Close()
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.reader.Read(buf)

	p.mu.Lock()
	stalled := p.stalled
	if n > 0 {
		p.transferred += int64(n)
		if !stalled && p.watchdog != nil {
			p.watchdog.Reset(p.readTimeout)
		}

		// Log progress every 30 seconds
		if time.Since(p.lastLog) > 30*time.Second {
			p.logProgress()
			p.lastLog = time.Now()
		}
	}
	p.mu.Unlock()

	if err != nil && stalled {
		return n, fmt.Errorf("%w: no data received for %v", domain.ErrStalled, p.readTimeout)
	}
	return n, err
}

func (p *progressReader) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.watchdog != nil {
		p.watchdog.Stop()
	}
	alreadyClosed := p.readerClosed
	p.readerClosed = true

	// Log final progress
	if p.transferred > 0 {
		p.logProgress()
	}
	p.mu.Unlock()

	if alreadyClosed {
		return nil
	}
	return p.reader.Close()
}

// logProgress must be called with mu held.
func (p *progressReader) logProgress() {
	if p.total > 0 {
		pct := float64(p.transferred) / float64(p.total) * 100
		p.logger.Info("transfer progress",
			"transferred_mb", p.transferred/(1024*1024),
			"total_mb", p.total/(1024*1024),
			"percent", fmt.Sprintf("%.1f%%", pct),
		)
	} else {
		p.logger.Info("transfer progress",
			"transferred_mb", p.transferred/(1024*1024),
		)
	}
}

// urlPrefix truncates a URL for logging so query credentials and long
// signatures never reach the logs.
func urlPrefix(url string) string {
	const max = 64
	if len(url) <= max {
		return url
	}
	return url[:max] + "..."
}
