package ingest

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mnako/letters"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

// Rich-format extractors for the common personal-corpus file types:
// Word documents, spreadsheets, saved web pages, and exported emails.
// PDF stays unregistered: the available bindings pull in a cgo
// dependency and this module builds pure-Go everywhere.

// docxExtractor extracts text from a Word document.
type docxExtractor struct{}

var xmlTagPattern = regexp.MustCompile(`<[^>]+>`)

func (docxExtractor) Extract(content []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer doc.Close()

	// GetContent returns the document XML; strip the markup and
	// collapse the remaining runs into plain paragraphs.
	raw := doc.Editable().GetContent()
	raw = strings.ReplaceAll(raw, "</w:p>", "\n")
	text := xmlTagPattern.ReplaceAllString(raw, "")
	return strings.TrimSpace(text), nil
}

// xlsxExtractor flattens each sheet into "Sheet: <name>" plus one line
// per row, cells joined by " | " so header/value pairs stay adjacent
// for keyword search.
type xlsxExtractor struct{}

func (xlsxExtractor) Extract(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for i, sheet := range f.GetSheetList() {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Sheet: %s\n", sheet)

		rows, err := f.GetRows(sheet)
		if err != nil {
			// Unreadable sheet (protected, corrupt): note it and move on.
			fmt.Fprintf(&b, "(unable to read sheet %s: %v)\n", sheet, err)
			continue
		}
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, " | "))
			if line != "" {
				b.WriteString(line)
				b.WriteString("\n")
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// htmlExtractor strips script/style/noscript and returns the page text.
type htmlExtractor struct{}

func (htmlExtractor) Extract(content []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	doc.Find("script, style, noscript").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	text := strings.TrimSpace(doc.Text())
	return collapseWhitespace(text), nil
}

// emlExtractor renders an exported email as subject/sender/date headers
// followed by the plain-text body.
type emlExtractor struct{}

func (emlExtractor) Extract(content []byte) (string, error) {
	email, err := letters.ParseEmail(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("parse email: %w", err)
	}

	var b strings.Builder
	if email.Headers.Subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", email.Headers.Subject)
	}
	if len(email.Headers.From) > 0 {
		from := email.Headers.From[0]
		if from.Name != "" {
			fmt.Fprintf(&b, "Sender: %s <%s>\n", from.Name, from.Address)
		} else {
			fmt.Fprintf(&b, "Sender: %s\n", from.Address)
		}
	}
	if !email.Headers.Date.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", email.Headers.Date.Format(time.RFC3339))
	}
	b.WriteString("\n")
	b.WriteString(email.Text)
	return strings.TrimSpace(b.String()), nil
}

// collapseWhitespace squeezes runs of blank lines and indentation left
// behind by HTML layout into readable paragraphs.
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
