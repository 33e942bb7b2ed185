package runner

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/wenqing/arxiv-digest/internal/fetcher"
	"github.com/wenqing/arxiv-digest/internal/publisher"
	"github.com/wenqing/arxiv-digest/internal/summarizer"
)

// FigureFunc extracts a representative figure from raw PDF bytes,
// returning it as an encoded PNG.
type FigureFunc func(pdfBytes []byte) ([]byte, error)

// Runner orchestrates the fetch -> summarize -> publish pipeline.
type Runner struct {
	category   string
	fetcher    fetcher.Fetcher
	summarizer summarizer.Summarizer
	figure     FigureFunc
	publishers []publisher.Publisher
	client     *http.Client
	now        func() time.Time
}

func New(category string, f fetcher.Fetcher, s summarizer.Summarizer, fig FigureFunc, pubs []publisher.Publisher) *Runner {
	return &Runner{
		category:   category,
		fetcher:    f,
		summarizer: s,
		figure:     fig,
		publishers: pubs,
		client:     &http.Client{Timeout: 20 * time.Second},
		now:        time.Now,
	}
}

// Run executes the full pipeline once. A paper whose summary fails is
// dropped from the digest; a missing figure never drops a paper. The
// digest is published even when the day has no papers.
func (r *Runner) Run(ctx context.Context) error {
	log.Printf("Starting pipeline for category %s", r.category)

	log.Println("Fetching papers...")
	papers, day, err := r.fetcher.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("runner: fetch failed: %w", err)
	}

	// An empty window has no publication day, so the digest is dated today.
	if day.IsZero() {
		day = r.now().UTC().Truncate(24 * time.Hour)
	}
	log.Printf("Fetched %d papers published on %s", len(papers), day.Format("2006-01-02"))

	digest := &summarizer.Digest{
		Category: r.category,
		Date:     day,
		Papers:   make([]summarizer.PaperDigest, 0, len(papers)),
	}

	for i, paper := range papers {
		log.Printf("[%d/%d] Summarizing %s", i+1, len(papers), paper.ArxivID)

		sum, err := r.summarizer.Summarize(ctx, paper)
		if err != nil {
			log.Printf("WARNING: skipping %s: %v", paper.ArxivID, err)
			continue
		}

		d := summarizer.PaperDigest{
			Paper:        paper,
			Affiliations: sum.Affiliations,
			SummaryEN:    sum.English,
			SummaryZH:    sum.Chinese,
		}

		if r.figure != nil {
			if png, err := r.extractFigure(ctx, paper); err != nil {
				log.Printf("No figure for %s: %v", paper.ArxivID, err)
			} else if len(png) > 0 {
				d.FigurePNG = png
				d.FigureCID = "img-" + paper.ArxivID
			}
		}

		digest.Papers = append(digest.Papers, d)
	}

	digest.GeneratedAt = r.now()

	return r.publish(ctx, digest)
}

// extractFigure downloads the paper's PDF and runs the figure extractor
// over it.
func (r *Runner) extractFigure(ctx context.Context, paper fetcher.Paper) ([]byte, error) {
	pdfBytes, err := r.downloadPDF(ctx, paper.PDFURL)
	if err != nil {
		return nil, err
	}
	return r.figure(pdfBytes)
}

func (r *Runner) downloadPDF(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

// publish delivers the digest to every publisher, continuing past
// individual failures.
func (r *Runner) publish(ctx context.Context, digest *summarizer.Digest) error {
	var publishErrors []error
	for _, pub := range r.publishers {
		log.Printf("Publishing via %T...", pub)
		if err := pub.Publish(ctx, digest); err != nil {
			publishError := fmt.Errorf("publish via %T failed: %w", pub, err)
			publishErrors = append(publishErrors, publishError)
			log.Printf("WARNING: %v", publishError)
		} else {
			log.Printf("Successfully published via %T", pub)
		}
	}

	if len(publishErrors) == len(r.publishers) && len(r.publishers) > 0 {
		return fmt.Errorf("runner: all publishers failed: %v", publishErrors)
	}

	if len(publishErrors) > 0 {
		log.Printf("Pipeline completed with %d publisher failures out of %d publishers", len(publishErrors), len(r.publishers))
	} else {
		log.Println("Pipeline completed successfully")
	}

	return nil
}
