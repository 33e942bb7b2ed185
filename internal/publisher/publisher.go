package publisher

import (
	"context"

	"github.com/wenqing/arxiv-digest/internal/summarizer"
)

// Publisher delivers a digest to some output destination.
type Publisher interface {
	Publish(ctx context.Context, digest *summarizer.Digest) error
}
