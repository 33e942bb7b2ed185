package summarizer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wenqing/arxiv-digest/internal/config"
	"github.com/wenqing/arxiv-digest/internal/fetcher"
	"github.com/wenqing/arxiv-digest/internal/pdftext"
)

// generator is the one-prompt-in, one-text-out surface of the language
// model client.
type generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiSummarizer downloads a paper's PDF and produces an English summary
// plus its Chinese translation with two model calls.
type GeminiSummarizer struct {
	gen      generator
	maxChars int
	client   *http.Client
}

// New creates a summarizer based on the configuration.
func New(cfg *config.Config) (Summarizer, error) {
	switch cfg.Summarizer.Type {
	case "gemini":
		return &GeminiSummarizer{
			gen:      newGeminiClient(cfg.Summarizer.APIKey, cfg.Summarizer.Model),
			maxChars: cfg.Summarizer.MaxChars,
			client:   &http.Client{Timeout: 30 * time.Second},
		}, nil
	default:
		return nil, ErrUnsupportedSummarizerType
	}
}

// ErrUnsupportedSummarizerType is returned when an unsupported summarizer type is specified
var ErrUnsupportedSummarizerType = fmt.Errorf("unsupported summarizer type")

// Summarize downloads the paper, mines the PDF for affiliations and text,
// and runs the two model prompts. Affiliation extraction fails soft; a text
// extraction or model failure aborts the paper.
func (s *GeminiSummarizer) Summarize(ctx context.Context, paper fetcher.Paper) (*Summary, error) {
	pdfBytes, err := s.downloadPDF(ctx, paper.PDFURL)
	if err != nil {
		return nil, err
	}

	var affiliations []string
	if lines, err := pdftext.FirstPageLines(bytes.NewReader(pdfBytes), int64(len(pdfBytes))); err == nil {
		affiliations = pdftext.Affiliations(lines)
	}

	fullText, err := pdftext.FullText(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return nil, fmt.Errorf("summarizer: failed to extract text of %s: %w", paper.ArxivID, err)
	}
	fullText = truncateRunes(fullText, s.maxChars)

	english, err := s.gen.Generate(ctx, englishPrompt(paper, affiliations, fullText))
	if err != nil {
		return nil, fmt.Errorf("summarizer: english summary of %s: %w", paper.ArxivID, err)
	}

	chinese, err := s.gen.Generate(ctx, chinesePrompt(english))
	if err != nil {
		return nil, fmt.Errorf("summarizer: chinese translation of %s: %w", paper.ArxivID, err)
	}

	return &Summary{
		English:      english,
		Chinese:      chinese,
		Affiliations: affiliations,
	}, nil
}

func (s *GeminiSummarizer) downloadPDF(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("summarizer: failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("summarizer: pdf download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("summarizer: pdf download: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("summarizer: failed to read pdf: %w", err)
	}
	return data, nil
}

// englishPrompt asks for a 1-2 paragraph academic summary that opens with
// the affiliation phrase.
func englishPrompt(paper fetcher.Paper, affiliations []string, fullText string) string {
	affText := "the research team"
	if len(affiliations) > 0 {
		affText = strings.Join(affiliations, ", ")
	}

	var sb strings.Builder
	sb.WriteString("You are an expert academic summarizer.\n")
	sb.WriteString("Based on the following paper content, write a concise summary (1-2 paragraphs) in English.\n")
	sb.WriteString(fmt.Sprintf("The summary should start with: \"%s ...\" describing what they did, and naturally include the motivation, method, and results.\n", affText))
	sb.WriteString("Write in formal academic English.\n\n")
	sb.WriteString(fmt.Sprintf("Title: %s\n", paper.Title))
	sb.WriteString(fmt.Sprintf("Authors: %s\n", strings.Join(paper.Authors, ", ")))
	sb.WriteString(fmt.Sprintf("Affiliations: %s\n", affText))
	sb.WriteString("Paper Content:\n")
	sb.WriteString(fullText)
	return sb.String()
}

// chinesePrompt asks for a translation that keeps technical terminology and
// the fixed opening phrase.
func chinesePrompt(english string) string {
	return "将以下英文研究总结翻译成流畅、正式的学术中文，并保留专业术语。保持开头格式不变：\n\n" + english
}

// truncateRunes caps s at max runes so multibyte text is never split.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
