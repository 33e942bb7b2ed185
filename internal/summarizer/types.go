package summarizer

import (
	"context"
	"time"

	"github.com/wenqing/arxiv-digest/internal/fetcher"
)

// Digest is one day's processed batch for a category.
type Digest struct {
	Category    string        `json:"category"`
	Date        time.Time     `json:"date"`
	GeneratedAt time.Time     `json:"generated_at"`
	Papers      []PaperDigest `json:"papers"`
}

// PaperDigest is one paper's processed output. FigureCID is set if and only
// if FigurePNG is non-empty.
type PaperDigest struct {
	Paper        fetcher.Paper `json:"paper"`
	Affiliations []string      `json:"affiliations,omitempty"`
	SummaryEN    string        `json:"summary_en"`
	SummaryZH    string        `json:"summary_zh"`
	FigurePNG    []byte        `json:"-"`
	FigureCID    string        `json:"figure_cid,omitempty"`
}

// Summary is the model output for a single paper.
type Summary struct {
	English      string
	Chinese      string
	Affiliations []string
}

// Summarizer produces a bilingual summary for one paper.
type Summarizer interface {
	Summarize(ctx context.Context, paper fetcher.Paper) (*Summary, error)
}
