package app

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"regwatch/internal/models"
)

type ExtractMode string

const (
	ExtractParagraphs  ExtractMode = "paragraphs"
	ExtractReadability ExtractMode = "readability"
)

// skipped holds elements whose text is never visible even inside a <p>.
var skipped = map[string]bool{"script": true, "style": true, "noscript": true, "template": true}

// Extractor turns an HTML response body into a title and paragraph text.
type Extractor struct {
	mode ExtractMode
}

func NewExtractor(mode ExtractMode) *Extractor {
	if mode == "" {
		mode = ExtractParagraphs
	}
	return &Extractor{mode: mode}
}

// Extract decodes body using the response Content-Type, takes the first
// <title> as the title and every text node under <p> elements as the body.
// Fragments are trimmed and blank ones dropped before joining with "\n".
func (e *Extractor) Extract(body []byte, contentType string, pageURL *url.URL) (models.ExtractedPage, error) {
	var reader io.Reader = bytes.NewReader(body)
	if utf8Reader, err := charset.NewReader(reader, contentType); err == nil {
		reader = utf8Reader
	}

	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return models.ExtractedPage{}, fmt.Errorf("parse html: %w", err)
	}

	page := models.ExtractedPage{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}

	scope := doc.Selection
	if e.mode == ExtractReadability {
		if narrowed, ok := readabilityScope(doc, pageURL); ok {
			scope = narrowed
		}
	}

	page.Text = strings.Join(paragraphFragments(scope), "\n")
	return page, nil
}

// readabilityScope narrows the document to the main article body. When
// readability finds nothing the whole document is used.
func readabilityScope(doc *goquery.Document, pageURL *url.URL) (*goquery.Selection, bool) {
	full, err := doc.Html()
	if err != nil {
		return nil, false
	}
	article, err := readability.FromReader(strings.NewReader(full), pageURL)
	if err != nil || strings.TrimSpace(article.Content) == "" {
		return nil, false
	}
	narrowed, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
	if err != nil {
		return nil, false
	}
	return narrowed.Selection, true
}

func paragraphFragments(scope *goquery.Selection) []string {
	var fragments []string
	scope.Find("p").Each(func(_ int, p *goquery.Selection) {
		for _, n := range p.Nodes {
			collectText(n, &fragments)
		}
	})
	return fragments
}

func collectText(n *html.Node, out *[]string) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			if t := strings.TrimSpace(c.Data); t != "" {
				*out = append(*out, t)
			}
		case html.ElementNode:
			if skipped[c.Data] {
				continue
			}
			// Nested <p> elements are visited by the outer Find.
			if c.Data == "p" {
				continue
			}
			collectText(c, out)
		}
	}
}
