package fetcher

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wenqing/arxiv-digest/internal/config"
	"github.com/wenqing/arxiv-digest/internal/retry"
)

const userAgent = "arxiv-digest/1.0 (+https://github.com/wenqing/arxiv-digest)"

// arXiv Atom feed XML structures

type arxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string        `xml:"id"`
	Title     string        `xml:"title"`
	Summary   string        `xml:"summary"`
	Authors   []arxivAuthor `xml:"author"`
	Links     []arxivLink   `xml:"link"`
	Published string        `xml:"published"`
	Updated   string        `xml:"updated"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

type arxivLink struct {
	Href  string `xml:"href,attr"`
	Type  string `xml:"type,attr"`
	Rel   string `xml:"rel,attr"`
	Title string `xml:"title,attr"`
}

// ArxivFetcher pages through the arXiv API listing for one category.
type ArxivFetcher struct {
	category    string
	lookback    time.Duration
	maxResults  int
	pageSize    int
	pageDelay   time.Duration
	client      *http.Client
	baseURL     string
	retryConfig retry.Config
	now         func() time.Time
}

func NewArxivFetcher(cfg config.ArXivConfig) *ArxivFetcher {
	return &ArxivFetcher{
		category:    cfg.Category,
		lookback:    time.Duration(cfg.LookbackHours) * time.Hour,
		maxResults:  cfg.MaxResults,
		pageSize:    cfg.PageSize,
		pageDelay:   time.Duration(cfg.PageDelaySeconds) * time.Second,
		client:      &http.Client{Timeout: 30 * time.Second},
		baseURL:     "http://export.arxiv.org/api/query",
		retryConfig: retry.DefaultConfig(),
		now:         time.Now,
	}
}

// Fetch walks the category listing newest first, keeps the papers inside the
// lookback window and narrows them to the most recent publication day.
func (f *ArxivFetcher) Fetch(ctx context.Context) ([]Paper, time.Time, error) {
	cutoff := f.now().Add(-f.lookback)

	var recent []Paper
	for start := 0; start < f.maxResults; start += f.pageSize {
		count := f.pageSize
		if remaining := f.maxResults - start; remaining < count {
			count = remaining
		}

		entries, err := f.fetchPage(ctx, start, count)
		if err != nil {
			return nil, time.Time{}, err
		}
		if len(entries) == 0 {
			log.Println("arxiv: last page reached or no more results.")
			break
		}

		for _, entry := range entries {
			paper, ok := entryToPaper(entry)
			if !ok {
				log.Printf("arxiv: skipping entry with no parseable timestamp: %s", entry.ID)
				continue
			}
			if paper.EffectiveTime().Before(cutoff) {
				continue
			}
			recent = append(recent, paper)
		}

		if start+f.pageSize < f.maxResults {
			select {
			case <-ctx.Done():
				return nil, time.Time{}, ctx.Err()
			case <-time.After(f.pageDelay):
			}
		}
	}

	papers, day := latestDay(recent)
	return papers, day, nil
}

func (f *ArxivFetcher) fetchPage(ctx context.Context, start, count int) ([]arxivEntry, error) {
	query := url.Values{}
	query.Set("search_query", fmt.Sprintf("cat:%s", f.category))
	query.Set("start", strconv.Itoa(start))
	query.Set("max_results", strconv.Itoa(count))
	query.Set("sortBy", "submittedDate")
	query.Set("sortOrder", "descending")

	reqURL := fmt.Sprintf("%s?%s", f.baseURL, query.Encode())

	var feed arxivFeed
	err := retry.Do(ctx, f.retryConfig, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("arxiv: failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			return fmt.Errorf("arxiv: request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("arxiv: unexpected status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("arxiv: failed to read response: %w", err)
		}

		feed = arxivFeed{}
		if err := xml.Unmarshal(body, &feed); err != nil {
			return fmt.Errorf("arxiv: failed to parse XML: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return feed.Entries, nil
}

// entryToPaper converts one feed entry, reporting false when the entry
// carries no parseable timestamp at all.
func entryToPaper(entry arxivEntry) (Paper, bool) {
	published, _ := time.Parse(time.RFC3339, entry.Published)
	updated, _ := time.Parse(time.RFC3339, entry.Updated)
	if published.IsZero() && updated.IsZero() {
		return Paper{}, false
	}

	authors := make([]string, len(entry.Authors))
	for i, a := range entry.Authors {
		authors[i] = strings.TrimSpace(a.Name)
	}

	var pdfURL, absURL string
	for _, link := range entry.Links {
		switch {
		case link.Title == "pdf" && pdfURL == "":
			pdfURL = link.Href
		case link.Rel == "alternate" && absURL == "":
			absURL = link.Href
		}
	}
	if absURL == "" {
		absURL = entry.ID
	}
	if pdfURL == "" && absURL != "" {
		pdfURL = strings.Replace(absURL, "/abs/", "/pdf/", 1)
	}
	pdfURL = strings.Replace(pdfURL, "http://", "https://", 1)

	return Paper{
		ArxivID:   shortID(entry.ID),
		Title:     collapseSpace(entry.Title),
		Abstract:  strings.TrimSpace(entry.Summary),
		Authors:   authors,
		PDFURL:    pdfURL,
		AbsURL:    absURL,
		Published: published,
		Updated:   updated,
	}, true
}

// shortID strips the "https://arxiv.org/abs/" prefix, keeping any version
// suffix.
func shortID(idURL string) string {
	if _, after, found := strings.Cut(idURL, "/abs/"); found {
		return after
	}
	return idURL
}

// collapseSpace folds the newlines and indentation the feed embeds in long
// titles into single spaces.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// latestDay keeps only the papers whose effective timestamp falls on the
// most recent UTC day present, preserving feed order. The returned time is
// that day at midnight UTC.
func latestDay(papers []Paper) ([]Paper, time.Time) {
	if len(papers) == 0 {
		return nil, time.Time{}
	}

	var newest time.Time
	for _, p := range papers {
		day := p.EffectiveTime().UTC().Truncate(24 * time.Hour)
		if day.After(newest) {
			newest = day
		}
	}

	kept := make([]Paper, 0, len(papers))
	for _, p := range papers {
		if p.EffectiveTime().UTC().Truncate(24 * time.Hour).Equal(newest) {
			kept = append(kept, p)
		}
	}
	return kept, newest
}
