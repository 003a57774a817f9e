package parser

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/algolog/stats-service/internal/models"
)

func loadDocument(platform models.Platform, body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{Platform: platform, Reason: ReasonLayoutChanged, Err: err}
	}
	return doc, nil
}

// ownText returns the text nodes directly under s, skipping child elements.
func ownText(s *goquery.Selection) string {
	var b strings.Builder
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			b.WriteString(c.Text())
		}
	})
	return strings.TrimSpace(b.String())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
