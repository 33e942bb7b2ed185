package pdftext

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	// Spans whose vertical positions differ by less than lineTolerance
	// points belong to the same text line.
	lineTolerance = 2.0
	// Horizontal gap, in points, beyond which two spans on a line are
	// separate words.
	wordGap = 1.5
)

// FullText extracts the text of every page, pages joined by newlines.
// Pages that fail to decode individually are skipped.
func FullText(r io.ReaderAt, size int64) (text string, err error) {
	defer recoverTo(&err)

	doc, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("pdftext: failed to open document: %w", err)
	}

	var pages []string
	for i := 1; i <= doc.NumPage(); i++ {
		lines, perr := pageLines(doc, i)
		if perr != nil {
			continue
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}

	return strings.Join(pages, "\n"), nil
}

// FirstPageLines returns the reconstructed text lines of page one, where
// author affiliations live.
func FirstPageLines(r io.ReaderAt, size int64) (lines []string, err error) {
	defer recoverTo(&err)

	doc, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("pdftext: failed to open document: %w", err)
	}
	if doc.NumPage() < 1 {
		return nil, fmt.Errorf("pdftext: document has no pages")
	}

	return pageLines(doc, 1)
}

func pageLines(doc *pdf.Reader, num int) (lines []string, err error) {
	defer recoverTo(&err)

	page := doc.Page(num)
	if page.V.IsNull() {
		return nil, fmt.Errorf("pdftext: page %d is missing", num)
	}

	return textLines(page.Content().Text), nil
}

// recoverTo converts a parser panic into an error. The underlying reader
// panics on malformed cross reference tables and content streams.
func recoverTo(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("pdftext: malformed document: %v", r)
	}
}

// textLines rebuilds reading-order lines from positioned spans. The content
// stream carries no line structure, so spans are grouped by vertical
// position, top of the page first, left to right within a line. A space is
// inserted where the horizontal gap between spans exceeds wordGap.
func textLines(spans []pdf.Text) []string {
	if len(spans) == 0 {
		return nil
	}

	sorted := make([]pdf.Text, len(spans))
	copy(sorted, spans)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var lines []string
	var sb strings.Builder
	lineY := sorted[0].Y
	lastEnd := 0.0

	flush := func() {
		if line := strings.TrimSpace(sb.String()); line != "" {
			lines = append(lines, line)
		}
		sb.Reset()
	}

	for i, t := range sorted {
		if i > 0 && lineY-t.Y > lineTolerance {
			flush()
			lineY = t.Y
		} else if sb.Len() > 0 && t.X > lastEnd+wordGap {
			sb.WriteString(" ")
		}
		sb.WriteString(t.S)
		lastEnd = t.X + t.W
	}
	flush()

	return lines
}

// markerRegex matches the footnote markers papers attach to affiliation
// lines: a number optionally followed by a hyphen, en dash or colon.
var markerRegex = regexp.MustCompile(`^\d+\s*[-–:]?\s*`)

var affiliationKeywords = []string{"university", "institute", "college", "lab", "centre", "center"}

var fallbackKeywords = []string{"university", "institute", "college", "academy", "lab"}

// Affiliations scans first-page lines for institution names. The first pass
// requires a leading footnote marker on the line; when nothing matches, a
// second pass accepts keyword lines without one. Results are cleaned and
// deduplicated in first-seen order.
func Affiliations(lines []string) []string {
	var found []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !markerRegex.MatchString(trimmed) {
			continue
		}
		if containsKeyword(trimmed, affiliationKeywords) {
			found = append(found, cleanAffiliation(trimmed))
		}
	}

	if len(found) == 0 {
		for _, line := range lines {
			trimmed := strings.TrimSpace(line)
			if containsKeyword(trimmed, fallbackKeywords) {
				found = append(found, cleanAffiliation(trimmed))
			}
		}
	}

	return dedupe(found)
}

func containsKeyword(line string, keywords []string) bool {
	lower := strings.ToLower(line)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// cleanAffiliation strips the footnote marker and folds runs of whitespace
// into single spaces.
func cleanAffiliation(line string) string {
	line = markerRegex.ReplaceAllString(line, "")
	return strings.Join(strings.Fields(line), " ")
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	var out []string
	for _, item := range items {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
