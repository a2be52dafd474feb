// Package parse extracts the title and outbound links of an HTML page.
package parse

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Page is what the crawler needs from a fetched document.
// Links are raw href values in document order, not resolved or filtered.
type Page struct {
	Title string
	Links []string
}

// Error reports a body that could not be parsed as HTML
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Parser turns a response body into a Page
type Parser struct{}

// NewParser creates an HTML page parser
func NewParser() *Parser {
	return &Parser{}
}

// Parse reads body as HTML. finalURL only labels errors; hrefs are returned
// untouched so the caller can resolve them against the post-redirect URL.
func (p *Parser) Parse(finalURL string, body []byte) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Page{}, &Error{URL: finalURL, Err: err}
	}

	page := Page{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
		Links: make([]string, 0),
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			page.Links = append(page.Links, href)
		}
	})

	return page, nil
}
