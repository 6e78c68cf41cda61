package html

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoContent is returned when a page holds no readable text.
var ErrNoContent = errors.New("html: no readable content")

// MinContentLength is the shortest extraction accepted as an article body.
const MinContentLength = 200

// Elements removed before extraction.
const chrome = "script, style, noscript, svg, iframe, form, nav, header, footer, aside, " +
	"[role='navigation'], [role='banner'], [role='contentinfo'], [aria-hidden='true'], .advertisement, .ads, .cookie-banner"

// Candidate article containers, best first.
var containers = []string{"article", "[itemprop='articleBody']", "main", "[role='main']", "#content", ".post-content", ".entry-content"}

// Block elements whose text becomes its own line.
const blocks = "p, h1, h2, h3, h4, h5, h6, li, pre, blockquote, td, th, dt, dd, figcaption"

var multiSpaces = regexp.MustCompile(`[ \t\x{00a0}]+`)

// Page is the result of an extraction.
type Page struct {
	Title       string
	Description string
	Text        string
}

// Extract parses an HTML document and returns its readable content.
func Extract(r io.Reader) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Page{}, fmt.Errorf("parsing HTML: %w", err)
	}

	page := Page{
		Title:       title(doc),
		Description: meta(doc, "meta[property='og:description']", "meta[name='description']"),
	}

	doc.Find(chrome).Remove()

	root := doc.Find("body")
	for _, sel := range containers {
		if found := doc.Find(sel).First(); found.Length() > 0 && len(strings.TrimSpace(found.Text())) >= MinContentLength {
			root = found
			break
		}
	}

	page.Text = blockText(root)
	if len(page.Text) < MinContentLength {
		// Pages built from bare divs have few block elements.
		if flat := normalise(root.Text()); len(flat) > len(page.Text) {
			page.Text = flat
		}
	}
	if strings.TrimSpace(page.Text) == "" {
		return page, ErrNoContent
	}
	return page, nil
}

func blockText(root *goquery.Selection) string {
	var lines []string
	root.Find(blocks).Each(func(_ int, s *goquery.Selection) {
		// Nested blocks are visited on their own.
		if s.Find(blocks).Length() > 0 && goquery.NodeName(s) != "pre" {
			return
		}
		if line := normalise(s.Text()); line != "" {
			lines = append(lines, line)
		}
	})
	return strings.Join(lines, "\n\n")
}

func normalise(text string) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(multiSpaces.ReplaceAllString(line, " "))
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func title(doc *goquery.Document) string {
	if t := meta(doc, "meta[property='og:title']"); t != "" {
		return t
	}
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

func meta(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if v, ok := doc.Find(sel).Attr("content"); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
