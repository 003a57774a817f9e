package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/algolog/stats-service/internal/models"
)

const (
	codechefRatingSelector  = "div.rating-number"
	codechefSolvedHeading   = "Total Problems Solved"
	codechefHighestSelector = "div.rating-header small"
	codechefStarsSelector   = "span.rating"
	codechefRanksSelector   = "div.rating-ranks ul li"
)

// ParseCodeChef scrapes the public profile page. The rating block is the
// anchor; without it the page layout is assumed to have changed.
func ParseCodeChef(raw *models.RawResponse) (*models.PlatformStats, error) {
	const p = models.PlatformCodeChef

	doc, err := loadDocument(p, raw.Body)
	if err != nil {
		return nil, err
	}

	ratingNode := doc.Find(codechefRatingSelector).First()
	if ratingNode.Length() == 0 {
		return nil, layoutChanged(p, codechefRatingSelector)
	}
	ratingText := ownText(ratingNode)
	rating, ok := parseRating(ratingText)
	if !ok {
		return nil, invalidRating(p, "rating", ratingText)
	}

	stats := &models.CodeChefStats{
		Username:      raw.Handle,
		Rating:        int(rating),
		HighestRating: int(rating),
	}

	if highest := doc.Find(codechefHighestSelector).First(); highest.Length() > 0 {
		text := strings.Trim(collapse(highest.Text()), "()")
		text = strings.TrimSpace(strings.TrimPrefix(text, "Highest Rating"))
		v, ok := parseRating(text)
		if !ok {
			return nil, invalidRating(p, "highest_rating", text)
		}
		stats.HighestRating = int(v)
	}

	if stars := doc.Find(codechefStarsSelector).First(); stars.Length() > 0 {
		stats.Stars = collapse(stars.Text())
	}

	doc.Find("div.rating-header div").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := collapse(s.Text())
		if strings.HasPrefix(text, "(Div") || strings.HasPrefix(text, "Div") {
			stats.Division = strings.Trim(text, "()")
			return false
		}
		return true
	})

	doc.Find(codechefRanksSelector).Each(func(i int, s *goquery.Selection) {
		n := parseCount(s.Find("strong").First().Text())
		label := strings.ToLower(s.Text())
		switch {
		case strings.Contains(label, "global"):
			stats.GlobalRank = n
		case strings.Contains(label, "country"):
			stats.CountryRank = n
		case i == 0:
			stats.GlobalRank = n
		case i == 1:
			stats.CountryRank = n
		}
	})

	doc.Find("h3").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(s.Text(), codechefSolvedHeading) {
			stats.FullySolved = parseCount(s.Text())
			return false
		}
		return true
	})

	return models.NewCodeChefStats(stats), nil
}
