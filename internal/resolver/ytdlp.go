package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"
	"sort"
	"strings"

	"github.com/hexfold/streamrelay/internal/config"
	"github.com/hexfold/streamrelay/internal/domain"
)

// runCommand executes the extraction tool and returns stdout and stderr.
// Split out so tests can substitute a fake.
type runCommand func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// YtDlpResolver implements Resolver by invoking the yt-dlp binary with
// -J, which prints the full manifest as a single JSON document without
// downloading anything.
type YtDlpResolver struct {
	cfg    config.ResolverConfig
	logger *slog.Logger
	run    runCommand
}

// NewYtDlpResolver creates a resolver backed by the yt-dlp binary.
func NewYtDlpResolver(cfg config.ResolverConfig, logger *slog.Logger) *YtDlpResolver {
	return &YtDlpResolver{
		cfg:    cfg,
		logger: logger,
		run:    execCommand,
	}
}

func execCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Resolve invokes the extraction tool and normalizes its manifest.
func (r *YtDlpResolver) Resolve(ctx context.Context, target string) (*domain.VideoInfo, error) {
	if err := validateTarget(target); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	stdout, stderr, err := r.run(ctx, r.cfg.BinaryPath,
		"-J", "--no-warnings", "--skip-download", target)
	if err != nil {
		r.logger.Error("extraction tool failed",
			"target", urlPrefix(target),
			"error", err,
			"stderr", stderrTail(stderr),
		)
		return nil, fmt.Errorf("%w: %s", domain.ErrResolveFailed, stderrTail(stderr))
	}

	info, err := parseManifest(stdout, r.cfg.MaxFormats)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrResolveFailed, err)
	}

	r.logger.Info("resolved video",
		"target", urlPrefix(target),
		"video_id", info.ID,
		"formats", len(info.Formats),
	)
	return info, nil
}

// validateTarget rejects URLs before any process is spawned.
func validateTarget(target string) error {
	if target == "" {
		return domain.ErrMissingURL
	}
	u, err := url.Parse(target)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return domain.ErrInvalidURL
	}
	return nil
}

// manifest mirrors the subset of yt-dlp's -J output the service needs.
type manifest struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Duration  float64          `json:"duration"`
	Thumbnail string           `json:"thumbnail"`
	Uploader  string           `json:"uploader"`
	Channel   string           `json:"channel"`
	Formats   []manifestFormat `json:"formats"`
}

type manifestFormat struct {
	FormatID   string  `json:"format_id"`
	FormatNote string  `json:"format_note"`
	Ext        string  `json:"ext"`
	ACodec     string  `json:"acodec"`
	VCodec     string  `json:"vcodec"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	TBR        float64 `json:"tbr"`
	FileSize   int64   `json:"filesize"`
	FileSizeA  int64   `json:"filesize_approx"`
	URL        string  `json:"url"`
}

func parseManifest(data []byte, maxFormats int) (*domain.VideoInfo, error) {
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	author := m.Uploader
	if author == "" {
		author = m.Channel
	}

	info := &domain.VideoInfo{
		ID:        m.ID,
		Title:     m.Title,
		Duration:  m.Duration,
		Thumbnail: m.Thumbnail,
		Author:    author,
	}

	for _, f := range m.Formats {
		if f.URL == "" {
			continue
		}
		size := f.FileSize
		if size == 0 {
			size = f.FileSizeA
		}
		info.Formats = append(info.Formats, domain.Format{
			ID:           f.FormatID,
			QualityLabel: qualityLabel(f),
			Container:    f.Ext,
			HasVideo:     hasTrack(f.VCodec),
			HasAudio:     hasTrack(f.ACodec),
			VideoCodec:   codecOrEmpty(f.VCodec),
			AudioCodec:   codecOrEmpty(f.ACodec),
			Bitrate:      int(f.TBR * 1000),
			Width:        f.Width,
			Height:       f.Height,
			FileSize:     size,
			URL:          f.URL,
		})
	}

	// Descending resolution, bitrate breaking ties.
	sort.SliceStable(info.Formats, func(i, j int) bool {
		if info.Formats[i].Height != info.Formats[j].Height {
			return info.Formats[i].Height > info.Formats[j].Height
		}
		return info.Formats[i].Bitrate > info.Formats[j].Bitrate
	})

	if maxFormats > 0 && len(info.Formats) > maxFormats {
		info.Formats = info.Formats[:maxFormats]
	}

	return info, nil
}

func qualityLabel(f manifestFormat) string {
	if f.FormatNote != "" {
		return f.FormatNote
	}
	if f.Height > 0 {
		return fmt.Sprintf("%dp", f.Height)
	}
	if hasTrack(f.ACodec) && !hasTrack(f.VCodec) {
		return "audio"
	}
	return f.FormatID
}

func hasTrack(codec string) bool {
	return codec != "" && codec != "none"
}

func codecOrEmpty(codec string) string {
	if codec == "none" {
		return ""
	}
	return codec
}

// urlPrefix truncates a URL for logging so query credentials and long
// signatures never reach the logs.
func urlPrefix(target string) string {
	const max = 64
	if len(target) <= max {
		return target
	}
	return target[:max] + "..."
}

// stderrTail returns the last line of tool stderr, which is where
// yt-dlp puts its actual error message.
func stderrTail(stderr []byte) string {
	s := strings.TrimSpace(string(stderr))
	if s == "" {
		return "extraction tool produced no diagnostics"
	}
	lines := strings.Split(s, "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
