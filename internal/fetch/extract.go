package fetch

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/PuerkitoBio/goquery"

	"github.com/focusops/focus-collector/internal/normalize"
)

// PlaceholderTitle is used when extraction yields no title. A missing title is
// never a fetch failure.
const PlaceholderTitle = "Web content"

// Extraction is the cleaned result of parsing one HTML body.
type Extraction struct {
	Title    string
	Text     string
	Markdown string
}

func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
		),
	)
}

// extractHTML parses an HTML body into title, plain text and markdown.
// Script/style/noscript nodes are stripped; text is gathered from paragraph
// nodes with a body-text fallback for pages without any.
func (d *Dispatcher) extractHTML(body []byte, sourceURL string) (Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Extraction{}, fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
			title = strings.TrimSpace(og)
		}
	}
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	if title == "" {
		title = PlaceholderTitle
	}

	var paragraphs []string
	doc.Find("p").Each(func(_ int, sel *goquery.Selection) {
		if text := strings.TrimSpace(sel.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	text := strings.Join(paragraphs, "\n")
	if text == "" {
		text = normalize.CollapseWhitespace(doc.Find("body").Text())
	}

	markdown := strings.Join(paragraphs, "\n\n")
	if html, htmlErr := bodyHTML(doc); htmlErr == nil && html != "" {
		if converted, convErr := d.markdown.ConvertString(html, converter.WithDomain(sourceURL)); convErr == nil {
			if trimmed := strings.TrimSpace(converted); trimmed != "" {
				markdown = trimmed
			}
		}
	}
	if markdown == "" {
		markdown = text
	}

	return Extraction{Title: title, Text: text, Markdown: markdown}, nil
}

func bodyHTML(doc *goquery.Document) (string, error) {
	sel := doc.Find("body").First()
	if sel.Length() == 0 {
		return "", nil
	}
	html, err := goquery.OuterHtml(sel)
	if err != nil {
		return "", fmt.Errorf("serialize body: %w", err)
	}
	return html, nil
}
