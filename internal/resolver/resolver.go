package resolver

import (
	"context"

	"github.com/hexfold/streamrelay/internal/domain"
)

// Resolver turns a video page URL into structured stream metadata.
// Implementations may shell out to an extraction tool, call a client
// library, or hit an HTTP API; callers depend only on this contract.
type Resolver interface {
	// Resolve fetches the manifest for url. The returned format list is
	// ordered by descending resolution. Extraction failures are wrapped
	// in domain.ErrResolveFailed.
	Resolve(ctx context.Context, url string) (*domain.VideoInfo, error)
}
