package publisher

import (
	"context"
	"fmt"
	"strings"

	"github.com/wenqing/arxiv-digest/internal/summarizer"
)

// StdoutPublisher prints the digest to stdout.
type StdoutPublisher struct{}

func NewStdoutPublisher() *StdoutPublisher {
	return &StdoutPublisher{}
}

func (p *StdoutPublisher) Publish(_ context.Context, digest *summarizer.Digest) error {
	fmt.Println(strings.Repeat("=", 72))
	fmt.Printf("arXiv %s 每日摘要\n", digest.Category)
	fmt.Printf("Date: %s\n", digest.Date.Format("2006-01-02"))
	fmt.Println(strings.Repeat("=", 72))
	fmt.Println()

	if len(digest.Papers) == 0 {
		fmt.Println("今日暂无新论文。")
		fmt.Println()
	}

	for i, d := range digest.Papers {
		fmt.Println(strings.Repeat("-", 72))
		fmt.Printf("%d. %s\n", i+1, d.Paper.Title)
		fmt.Printf("   Authors: %s\n", strings.Join(d.Paper.Authors, ", "))
		if len(d.Affiliations) > 0 {
			fmt.Printf("   Affiliations: %s\n", strings.Join(d.Affiliations, ", "))
		}
		fmt.Printf("   Abstract page: %s\n", d.Paper.AbsURL)
		fmt.Printf("   PDF: %s\n", d.Paper.PDFURL)
		fmt.Println()
		fmt.Printf("   %s\n", d.SummaryZH)
		if d.SummaryEN != "" {
			fmt.Println()
			fmt.Printf("   %s\n", d.SummaryEN)
		}
		fmt.Println()
	}

	fmt.Println(strings.Repeat("=", 72))
	return nil
}
