package internal

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"knowledge/types"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var ErrUnsupportedFileType = errors.New("unsupported file type")

// Extractor turns an uploaded file into page-numbered text.
type Extractor struct {
	Margins Margins
}

// Extract dispatches on the file extension. PDFs keep their page numbers
// and drop blank pages; every other format is returned as page 1.
func (e Extractor) Extract(data []byte, filename string) ([]types.PageText, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	switch ext {
	case "pdf":
		return extractPDF(data, e.Margins)
	case "docx", "doc":
		text, err := extractDOCX(data)
		if err != nil {
			return nil, err
		}
		return singlePage(text), nil
	case "md", "txt":
		return singlePage(decodeUTF8(data)), nil
	case "html", "htm":
		text, err := extractHTML(data)
		if err != nil {
			return nil, err
		}
		return singlePage(text), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFileType, ext)
	}
}

func singlePage(text string) []types.PageText {
	return []types.PageText{{PageNumber: 1, Text: text}}
}

func decodeUTF8(data []byte) string {
	return strings.ToValidUTF8(string(data), "�")
}

func extractHTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(decodeUTF8(data))))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, template").Remove()

	var b strings.Builder
	for _, n := range doc.Nodes {
		writeText(&b, n)
	}

	lines := strings.Split(b.String(), "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n"), nil
}

// writeText flattens n into b. Every element boundary becomes a space and
// block elements end a line, so adjacent paragraphs never run together.
func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		b.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
	if n.Type == html.ElementNode && blockElements[n.Data] {
		b.WriteByte('\n')
	}
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "title": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"pre": true, "blockquote": true, "section": true, "article": true, "table": true,
}

// Title derives a display title from a file name.
func Title(filename string) string {
	name := filepath.Base(filename)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	return strings.TrimSpace(name)
}
