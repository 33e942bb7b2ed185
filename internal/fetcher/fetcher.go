package fetcher

import (
	"context"
	"time"
)

// Paper holds the arXiv metadata the digest pipeline works with.
type Paper struct {
	ArxivID   string // short identifier including version, e.g. "2501.01234v1"
	Title     string
	Abstract  string
	Authors   []string
	PDFURL    string
	AbsURL    string
	Published time.Time
	Updated   time.Time
}

// EffectiveTime is the timestamp used for day grouping: the updated time
// when the feed provides one, the published time otherwise.
func (p Paper) EffectiveTime() time.Time {
	if !p.Updated.IsZero() {
		return p.Updated
	}
	return p.Published
}

// Fetcher returns the papers of the most recent publication day within the
// lookback window, together with that day at midnight UTC.
type Fetcher interface {
	Fetch(ctx context.Context) ([]Paper, time.Time, error)
}
