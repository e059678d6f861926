package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hexfold/streamrelay/internal/domain"
	"github.com/hexfold/streamrelay/internal/downloader"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeResolver returns a canned manifest or error.
type fakeResolver struct {
	info  *domain.VideoInfo
	err   error
	calls int
}

func (f *fakeResolver) Resolve(ctx context.Context, url string) (*domain.VideoInfo, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.info, nil
}

// fakeFetcher serves a byte slice as the upstream stream.
type fakeFetcher struct {
	data    []byte
	openErr error
	lastURL string
}

func (f *fakeFetcher) Open(ctx context.Context, url string) (*downloader.Stream, error) {
	f.lastURL = url
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &downloader.Stream{
		Body:        io.NopCloser(bytes.NewReader(f.data)),
		Length:      int64(len(f.data)),
		ContentType: "video/mp4",
	}, nil
}

func testInfo() *domain.VideoInfo {
	return &domain.VideoInfo{
		ID:    "abc123",
		Title: "Test Video",
		Formats: []domain.Format{
			{ID: "137", QualityLabel: "1080p", Container: "mp4", HasVideo: true, URL: "https://cdn.example/137"},
			{ID: "136", QualityLabel: "720p", Container: "mp4", HasVideo: true, URL: "https://cdn.example/136"},
			{ID: "18", QualityLabel: "480p", Container: "mp4", HasVideo: true, HasAudio: true, URL: "https://cdn.example/18"},
		},
	}
}

func TestProxyService_OpenStream_ExactQuality(t *testing.T) {
	fetcher := &fakeFetcher{data: []byte("stream")}
	svc := NewProxyService(&fakeResolver{info: testInfo()}, fetcher, testLogger())

	res, err := svc.OpenStream(context.Background(), "https://video.example/watch?v=abc123", "720p")
	if err != nil {
		t.Fatalf("OpenStream failed: %v", err)
	}
	defer res.Stream.Body.Close()

	if res.Format.ID != "136" {
		t.Errorf("Format.ID = %q, want 136", res.Format.ID)
	}
	if fetcher.lastURL != "https://cdn.example/136" {
		t.Errorf("opened %q, want the exact-match format URL", fetcher.lastURL)
	}
	if res.Format.ContentType() != "video/mp4" {
		t.Errorf("ContentType() = %q, want video/mp4", res.Format.ContentType())
	}
}

func TestProxyService_OpenStream_FallsBackToMuxed(t *testing.T) {
	fetcher := &fakeFetcher{data: []byte("stream")}
	svc := NewProxyService(&fakeResolver{info: testInfo()}, fetcher, testLogger())

	// 999p matches nothing; the 480p entry has both tracks.
	res, err := svc.OpenStream(context.Background(), "https://video.example/watch?v=abc123", "999p")
	if err != nil {
		t.Fatalf("OpenStream failed: %v", err)
	}
	defer res.Stream.Body.Close()

	if res.Format.ID != "18" {
		t.Errorf("Format.ID = %q, want audio+video fallback 18", res.Format.ID)
	}
}

func TestProxyService_OpenStream_ResolveFailure(t *testing.T) {
	svc := NewProxyService(&fakeResolver{err: domain.ErrResolveFailed}, &fakeFetcher{}, testLogger())

	if _, err := svc.OpenStream(context.Background(), "https://video.example/v", ""); !errors.Is(err, domain.ErrResolveFailed) {
		t.Errorf("OpenStream error = %v, want ErrResolveFailed", err)
	}
}

func TestProxyService_OpenStream_NoFormats(t *testing.T) {
	empty := &domain.VideoInfo{ID: "x", Formats: nil}
	svc := NewProxyService(&fakeResolver{info: empty}, &fakeFetcher{}, testLogger())

	if _, err := svc.OpenStream(context.Background(), "https://video.example/v", ""); !errors.Is(err, domain.ErrNoDownloadableFormat) {
		t.Errorf("OpenStream error = %v, want ErrNoDownloadableFormat", err)
	}
}

func TestProxyService_OpenStream_UpstreamFailure(t *testing.T) {
	fetcher := &fakeFetcher{openErr: domain.ErrUpstreamStatus}
	svc := NewProxyService(&fakeResolver{info: testInfo()}, fetcher, testLogger())

	if _, err := svc.OpenStream(context.Background(), "https://video.example/v", ""); !errors.Is(err, domain.ErrUpstreamStatus) {
		t.Errorf("OpenStream error = %v, want ErrUpstreamStatus", err)
	}
}

func TestProxyService_Relay_RoundTripByteCount(t *testing.T) {
	// Large synthetic payload, much bigger than the relay buffer.
	payload := make([]byte, 1<<20)
	if _, err := rand.Read(payload); err != nil {
		t.Fatalf("rand: %v", err)
	}

	svc := NewProxyService(&fakeResolver{}, &fakeFetcher{}, testLogger())
	sess := domain.NewSession("dl_test", "https://video.example/v", "18", "v.mp4", int64(len(payload)))

	var dst bytes.Buffer
	written, err := svc.Relay(context.Background(), &dst, bytes.NewReader(payload), sess)
	if err != nil {
		t.Fatalf("Relay failed: %v", err)
	}

	if written != int64(len(payload)) {
		t.Errorf("written = %d, want %d", written, len(payload))
	}
	if !bytes.Equal(dst.Bytes(), payload) {
		t.Error("relayed bytes should match the upstream payload exactly")
	}

	bytesTransferred, _, _ := sess.Progress()
	if bytesTransferred != int64(len(payload)) {
		t.Errorf("session bytes = %d, want %d", bytesTransferred, len(payload))
	}
	if sess.Status() != domain.SessionActive {
		t.Errorf("session status = %q, want active once bytes flow", sess.Status())
	}
}

func TestProxyService_Relay_ContextCancel(t *testing.T) {
	svc := NewProxyService(&fakeResolver{}, &fakeFetcher{}, testLogger())
	sess := domain.NewSession("dl_test", "https://video.example/v", "18", "v.mp4", 0)

	ctx, cancel := context.WithCancel(context.Background())

	// An endless upstream: cancellation is the only way out.
	src := &endlessReader{cancel: cancel, after: 3}

	var dst bytes.Buffer
	done := make(chan error, 1)
	go func() {
		_, err := svc.Relay(ctx, &dst, src, sess)
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Relay error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Relay did not stop after cancellation")
	}
}

func TestProxyService_Relay_UpstreamError(t *testing.T) {
	svc := NewProxyService(&fakeResolver{}, &fakeFetcher{}, testLogger())
	sess := domain.NewSession("dl_test", "https://video.example/v", "18", "v.mp4", 0)

	src := io.MultiReader(bytes.NewReader([]byte("partial")), &failingReader{})

	var dst bytes.Buffer
	written, err := svc.Relay(context.Background(), &dst, src, sess)
	if err == nil {
		t.Fatal("Relay should surface the upstream read error")
	}
	if written != int64(len("partial")) {
		t.Errorf("written = %d, want the bytes relayed before the failure", written)
	}
}

func TestProxyService_Info_DelegatesToResolver(t *testing.T) {
	res := &fakeResolver{info: testInfo()}
	svc := NewProxyService(res, &fakeFetcher{}, testLogger())

	info, err := svc.Info(context.Background(), "https://video.example/watch?v=abc123")
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info.ID != "abc123" {
		t.Errorf("ID = %q, want abc123", info.ID)
	}
	if res.calls != 1 {
		t.Errorf("resolver called %d times, want 1", res.calls)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		fallback  string
		container string
		want      string
	}{
		{"clean name keeps extension", "clip.mp4", "", "mp4", "clip.mp4"},
		{"adds missing extension", "clip", "", "mp4", "clip.mp4"},
		{"strips path separators", "../../etc/passwd", "", "mp4", "etc_passwd.mp4"},
		{"strips shell metacharacters", `ti"tle;$(rm)`, "", "webm", "ti_tle_rm.webm"},
		{"empty falls back to title", "", "My Video Title", "mp4", "My Video Title.mp4"},
		{"everything empty", "", "", "mp4", "download.mp4"},
		{"no container leaves name alone", "archive", "", "", "archive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFilename(tt.input, tt.fallback, tt.container); got != tt.want {
				t.Errorf("SanitizeFilename(%q, %q, %q) = %q, want %q",
					tt.input, tt.fallback, tt.container, got, tt.want)
			}
		})
	}
}

// endlessReader yields data forever, triggering cancel after a few reads.
type endlessReader struct {
	cancel context.CancelFunc
	after  int
	reads  int
}

func (r *endlessReader) Read(p []byte) (int, error) {
	r.reads++
	if r.reads == r.after {
		r.cancel()
	}
	for i := range p {
		p[i] = 'x'
	}
	return len(p), nil
}

// failingReader always returns a non-EOF error.
type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, errors.New("connection reset by peer")
}
