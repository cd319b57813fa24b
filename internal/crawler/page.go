package crawler

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

var reWhitespace = regexp.MustCompile(`[ \t]+`)

// ParsedPage is the extracted plain text and outgoing links of one page.
type ParsedPage struct {
	Text  string
	Links []string
}

// ParsePage extracts plain text and outgoing links from an HTML body.
// Text comes from readability when it finds main content, otherwise from
// the stripped document text. Links are absolutized against pageURL and
// normalized; duplicates collapse.
func ParsePage(pageURL *url.URL, body []byte) (ParsedPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ParsedPage{}, fmt.Errorf("parse html: %w", err)
	}

	text := extractText(pageURL, body, doc)

	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := pageURL.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		normalized, err := NormalizeURL(abs.String())
		if err != nil {
			return
		}
		if _, dup := seen[normalized]; dup {
			return
		}
		seen[normalized] = struct{}{}
		links = append(links, normalized)
	})

	return ParsedPage{Text: text, Links: links}, nil
}

func extractText(pageURL *url.URL, body []byte, doc *goquery.Document) string {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return normalizeText(article.TextContent)
	}

	// Fallback for pages readability rejects: whole-document text with
	// script/style noise removed.
	clone := doc.Clone()
	clone.Find("script, style, noscript").Remove()
	return normalizeText(clone.Text())
}

func normalizeText(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(reWhitespace.ReplaceAllString(line, " "))
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
