package summarizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wenqing/arxiv-digest/internal/config"
	"github.com/wenqing/arxiv-digest/internal/fetcher"
)

// scriptedGenerator returns canned responses in order and records the
// prompts it received.
type scriptedGenerator struct {
	prompts   []string
	responses []string
	err       error
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	if len(g.prompts) > len(g.responses) {
		return "", fmt.Errorf("no scripted response for call %d", len(g.prompts))
	}
	return g.responses[len(g.prompts)-1], nil
}

// pdfFixture assembles a one page document that renders each line 16 points
// below the previous one.
func pdfFixture(t *testing.T, lines ...string) []byte {
	t.Helper()

	var ops strings.Builder
	ops.WriteString("BT /F1 12 Tf 72 720 Td ")
	for i, line := range lines {
		if i > 0 {
			ops.WriteString("0 -16 Td ")
		}
		fmt.Fprintf(&ops, "(%s) Tj ", line)
	}
	ops.WriteString("ET")
	content := ops.String()

	widths := strings.TrimSpace(strings.Repeat("500 ", 95))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	offsets := make([]int, 6)
	writeObj := func(num int, body string) {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	writeObj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	writeObj(3, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>")
	writeObj(4, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	writeObj(5, fmt.Sprintf("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /FirstChar 32 /LastChar 126 /Widths [%s] >>", widths))

	xref := buf.Len()
	buf.WriteString("xref\n0 6\n0000000000 65535 f \n")
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size 6 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xref)

	return buf.Bytes()
}

func pdfServer(t *testing.T, data []byte) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(data)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestSummarizeProducesBilingualSummary(t *testing.T) {
	pdf := pdfFixture(t, "A Study of Things", "Alice, Bob", "1 University of Somewhere")
	ts := pdfServer(t, pdf)

	gen := &scriptedGenerator{responses: []string{
		"University of Somewhere studied things.",
		"某大学研究了一些问题。",
	}}
	s := &GeminiSummarizer{gen: gen, maxChars: 20000, client: ts.Client()}

	paper := fetcher.Paper{
		ArxivID: "2501.01234v1",
		Title:   "A Study of Things",
		Authors: []string{"Alice", "Bob"},
		PDFURL:  ts.URL + "/pdf/2501.01234v1",
	}

	summary, err := s.Summarize(context.Background(), paper)
	if err != nil {
		t.Fatalf("Summarize returned error: %v", err)
	}

	if summary.English != "University of Somewhere studied things." {
		t.Errorf("Unexpected english summary: %q", summary.English)
	}
	if summary.Chinese != "某大学研究了一些问题。" {
		t.Errorf("Unexpected chinese summary: %q", summary.Chinese)
	}
	if len(summary.Affiliations) != 1 || summary.Affiliations[0] != "University of Somewhere" {
		t.Errorf("Unexpected affiliations: %v", summary.Affiliations)
	}

	if len(gen.prompts) != 2 {
		t.Fatalf("Expected 2 model calls, got %d", len(gen.prompts))
	}

	first := gen.prompts[0]
	for _, want := range []string{
		"You are an expert academic summarizer.",
		"write a concise summary (1-2 paragraphs) in English.",
		`The summary should start with: "University of Somewhere ..."`,
		"Write in formal academic English.",
		"Title: A Study of Things",
		"Authors: Alice, Bob",
		"Affiliations: University of Somewhere",
		"Paper Content:",
	} {
		if !strings.Contains(first, want) {
			t.Errorf("English prompt missing %q:\n%s", want, first)
		}
	}

	wantSecond := "将以下英文研究总结翻译成流畅、正式的学术中文，并保留专业术语。保持开头格式不变：\n\nUniversity of Somewhere studied things."
	if gen.prompts[1] != wantSecond {
		t.Errorf("Chinese prompt = %q, want %q", gen.prompts[1], wantSecond)
	}
}

func TestSummarizeFallsBackToResearchTeam(t *testing.T) {
	pdf := pdfFixture(t, "A Plain Title", "Just body text here")
	ts := pdfServer(t, pdf)

	gen := &scriptedGenerator{responses: []string{"The research team did work.", "研究团队开展了工作。"}}
	s := &GeminiSummarizer{gen: gen, maxChars: 20000, client: ts.Client()}

	_, err := s.Summarize(context.Background(), fetcher.Paper{ArxivID: "x", PDFURL: ts.URL})
	if err != nil {
		t.Fatalf("Summarize returned error: %v", err)
	}

	first := gen.prompts[0]
	if !strings.Contains(first, `The summary should start with: "the research team ..."`) {
		t.Errorf("Expected research team fallback in prompt:\n%s", first)
	}
	if !strings.Contains(first, "Affiliations: the research team") {
		t.Errorf("Expected affiliation fallback line in prompt:\n%s", first)
	}
}

func TestSummarizeTruncatesContent(t *testing.T) {
	pdf := pdfFixture(t, "A Study of Things")
	ts := pdfServer(t, pdf)

	gen := &scriptedGenerator{responses: []string{"en", "zh"}}
	s := &GeminiSummarizer{gen: gen, maxChars: 10, client: ts.Client()}

	_, err := s.Summarize(context.Background(), fetcher.Paper{ArxivID: "x", PDFURL: ts.URL})
	if err != nil {
		t.Fatalf("Summarize returned error: %v", err)
	}

	if !strings.HasSuffix(gen.prompts[0], "Paper Content:\nA Study of") {
		t.Errorf("Expected content truncated to 10 characters, prompt ends with %q",
			gen.prompts[0][len(gen.prompts[0])-30:])
	}
}

func TestSummarizeDownloadFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	s := &GeminiSummarizer{gen: &scriptedGenerator{}, maxChars: 20000, client: ts.Client()}

	_, err := s.Summarize(context.Background(), fetcher.Paper{ArxivID: "x", PDFURL: ts.URL})
	if err == nil {
		t.Fatal("Expected error for missing PDF")
	}
	if !strings.Contains(err.Error(), "unexpected status 404") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestSummarizeUnparseablePDF(t *testing.T) {
	ts := pdfServer(t, []byte("not a document at all"))

	s := &GeminiSummarizer{gen: &scriptedGenerator{}, maxChars: 20000, client: ts.Client()}

	_, err := s.Summarize(context.Background(), fetcher.Paper{ArxivID: "2501.0x", PDFURL: ts.URL})
	if err == nil {
		t.Fatal("Expected error for unparseable PDF")
	}
	if !strings.Contains(err.Error(), "failed to extract text") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestSummarizeModelFailure(t *testing.T) {
	pdf := pdfFixture(t, "A Study of Things")
	ts := pdfServer(t, pdf)

	gen := &scriptedGenerator{err: errors.New("gemini: request failed")}
	s := &GeminiSummarizer{gen: gen, maxChars: 20000, client: ts.Client()}

	_, err := s.Summarize(context.Background(), fetcher.Paper{ArxivID: "2501.0y", PDFURL: ts.URL})
	if err == nil {
		t.Fatal("Expected error when the model call fails")
	}
	if !strings.Contains(err.Error(), "english summary of 2501.0y") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		s    string
		max  int
		want string
	}{
		{"hello world", 5, "hello"},
		{"hello", 10, "hello"},
		{"中文字符串", 3, "中文字"},
		{"untouched", 0, "untouched"},
	}

	for _, tt := range tests {
		if got := truncateRunes(tt.s, tt.max); got != tt.want {
			t.Errorf("truncateRunes(%q, %d) = %q, want %q", tt.s, tt.max, got, tt.want)
		}
	}
}

func TestNew(t *testing.T) {
	cfg := &config.Config{
		Summarizer: config.SummarizerConfig{
			Type:     "gemini",
			APIKey:   "test_api_key",
			Model:    "gemini-2.5-flash",
			MaxChars: 20000,
		},
	}

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create summarizer: %v", err)
	}
	if s == nil {
		t.Fatal("Summarizer is nil")
	}

	cfg.Summarizer.Type = "anthropic"
	if _, err := New(cfg); !errors.Is(err, ErrUnsupportedSummarizerType) {
		t.Errorf("Expected ErrUnsupportedSummarizerType, got %v", err)
	}
}
