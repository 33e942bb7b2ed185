package publisher

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"log"
	"mime"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"os"
	"strings"
	"time"

	"github.com/wenqing/arxiv-digest/internal/config"
	"github.com/wenqing/arxiv-digest/internal/summarizer"
)

// EmailPublisher sends the digest as a multipart HTML email over
// STARTTLS SMTP, writing a local preview file first.
type EmailPublisher struct {
	host         string
	port         int
	username     string
	password     string
	from         string
	to           []string
	previewFile  string
	inlineImages bool
	now          func() time.Time
}

func NewEmailPublisher(cfg config.EmailConfig) *EmailPublisher {
	return &EmailPublisher{
		host:         cfg.SMTPHost,
		port:         cfg.SMTPPort,
		username:     cfg.Username,
		password:     cfg.Password,
		from:         cfg.From,
		to:           cfg.To,
		previewFile:  cfg.PreviewFile,
		inlineImages: cfg.InlineImages,
		now:          time.Now,
	}
}

// Publish writes the HTML preview file, then submits the message to the
// relay. A relay or auth failure is returned to the caller; a preview write
// failure is only logged.
func (p *EmailPublisher) Publish(_ context.Context, digest *summarizer.Digest) error {
	htmlBody := buildHTMLBody(digest, p.inlineImages)

	if err := p.writePreview(htmlBody); err != nil {
		log.Printf("email: %v", err)
	}

	msg, err := p.buildMessage(digest, htmlBody)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", p.host, p.port)
	auth := smtp.PlainAuth("", p.username, p.password, p.host)

	if err := smtp.SendMail(addr, auth, p.from, p.to, msg); err != nil {
		return fmt.Errorf("email: failed to send: %w", err)
	}

	log.Printf("email: digest sent to %s", strings.Join(p.to, ", "))
	return nil
}

func (p *EmailPublisher) writePreview(htmlBody string) error {
	if p.previewFile == "" {
		return nil
	}
	if err := os.WriteFile(p.previewFile, []byte(htmlBody), 0644); err != nil {
		return fmt.Errorf("failed to write preview: %w", err)
	}
	log.Printf("has written %s for preview.", p.previewFile)
	return nil
}

// buildSubject embeds the category and the send date, not the digested day.
func (p *EmailPublisher) buildSubject(category string) string {
	return fmt.Sprintf("[arXiv %s] 每日摘要（%s）", category, p.now().Format("2006-01-02"))
}

// buildMessage assembles a multipart/related message: a multipart/alternative
// body (plain text fallback plus HTML) followed by inline PNG attachments
// when inline images are enabled.
func (p *EmailPublisher) buildMessage(digest *summarizer.Digest, htmlBody string) ([]byte, error) {
	var buf bytes.Buffer
	related := multipart.NewWriter(&buf)

	headers := []string{
		fmt.Sprintf("From: %s", p.from),
		fmt.Sprintf("To: %s", strings.Join(p.to, ", ")),
		fmt.Sprintf("Subject: %s", mime.BEncoding.Encode("utf-8", p.buildSubject(digest.Category))),
		fmt.Sprintf("Date: %s", p.now().Format(time.RFC1123Z)),
		"MIME-Version: 1.0",
		fmt.Sprintf("Content-Type: multipart/related; boundary=%q", related.Boundary()),
	}
	buf.WriteString(strings.Join(headers, "\r\n"))
	buf.WriteString("\r\n\r\n")

	var altBuf bytes.Buffer
	alt := multipart.NewWriter(&altBuf)
	if err := writeTextPart(alt, "text/plain", "请使用 HTML 邮件查看。"); err != nil {
		return nil, err
	}
	if err := writeTextPart(alt, "text/html", htmlBody); err != nil {
		return nil, err
	}
	if err := alt.Close(); err != nil {
		return nil, fmt.Errorf("email: failed to finish alternative part: %w", err)
	}

	altHeader := textproto.MIMEHeader{}
	altHeader.Set("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", alt.Boundary()))
	part, err := related.CreatePart(altHeader)
	if err != nil {
		return nil, fmt.Errorf("email: failed to create alternative part: %w", err)
	}
	if _, err := part.Write(altBuf.Bytes()); err != nil {
		return nil, fmt.Errorf("email: failed to write alternative part: %w", err)
	}

	if p.inlineImages {
		for _, d := range digest.Papers {
			if d.FigureCID == "" || len(d.FigurePNG) == 0 {
				continue
			}
			imgHeader := textproto.MIMEHeader{}
			imgHeader.Set("Content-Type", "image/png")
			imgHeader.Set("Content-Transfer-Encoding", "base64")
			imgHeader.Set("Content-ID", fmt.Sprintf("<%s>", d.FigureCID))
			imgHeader.Set("Content-Disposition", "inline")
			part, err := related.CreatePart(imgHeader)
			if err != nil {
				return nil, fmt.Errorf("email: failed to create image part: %w", err)
			}
			if _, err := part.Write([]byte(wrapBase64(d.FigurePNG))); err != nil {
				return nil, fmt.Errorf("email: failed to write image part: %w", err)
			}
		}
	}

	if err := related.Close(); err != nil {
		return nil, fmt.Errorf("email: failed to finish message: %w", err)
	}

	return buf.Bytes(), nil
}

func writeTextPart(w *multipart.Writer, contentType, body string) error {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", contentType+`; charset="utf-8"`)
	h.Set("Content-Transfer-Encoding", "base64")
	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("email: failed to create %s part: %w", contentType, err)
	}
	if _, err := part.Write([]byte(wrapBase64([]byte(body)))); err != nil {
		return fmt.Errorf("email: failed to write %s part: %w", contentType, err)
	}
	return nil
}

// wrapBase64 encodes data and folds the output at 76 columns as required
// for mail transport.
func wrapBase64(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	var sb strings.Builder
	for len(encoded) > 76 {
		sb.WriteString(encoded[:76])
		sb.WriteString("\r\n")
		encoded = encoded[76:]
	}
	sb.WriteString(encoded)
	return sb.String()
}

// buildHTMLBody renders the digest blocks. Paper metadata and summaries are
// HTML-escaped; link URLs come from the feed as-is. Inline figure tags are
// only emitted when the caller attaches the referenced images.
func buildHTMLBody(digest *summarizer.Digest, inlineImages bool) string {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	sb.WriteString(fmt.Sprintf("<h2>arXiv %s 每日摘要</h2>", html.EscapeString(digest.Category)))

	if len(digest.Papers) == 0 {
		sb.WriteString("<p>今日暂无新论文。</p>")
	}

	for i, d := range digest.Papers {
		sb.WriteString(fmt.Sprintf("<h3>%d. %s</h3>", i+1, html.EscapeString(d.Paper.Title)))
		sb.WriteString(fmt.Sprintf(`<p><b>作者：</b>%s<br/><a href="%s">摘要页</a> | <a href="%s">PDF</a></p>`,
			html.EscapeString(strings.Join(d.Paper.Authors, ", ")), d.Paper.AbsURL, d.Paper.PDFURL))
		sb.WriteString(fmt.Sprintf(`<p style="white-space: pre-line;">%s</p>`, html.EscapeString(d.SummaryZH)))

		if inlineImages && d.FigureCID != "" {
			sb.WriteString(fmt.Sprintf(`<p><img src="cid:%s" style="max-width:720px;"/></p>`, d.FigureCID))
		}
	}

	sb.WriteString(`<hr/><p style="color:#888">Gemini 自动生成 · 请核对原文。</p></body></html>`)
	return sb.String()
}
