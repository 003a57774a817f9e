package parser

import (
	"github.com/PuerkitoBio/goquery"
	"github.com/algolog/stats-service/internal/models"
)

const (
	hackerrankBadgesSelector = ".hacker-badges"
	hackerrankBadgeSelector  = ".hacker-badge"
	hackerrankTitleSelector  = ".badge-title"
	hackerrankStarSelector   = ".badge-star"
)

// ParseHackerRank reads badges in page order. A profile with no badges still
// renders the badge container, so a missing container means the markup moved.
func ParseHackerRank(raw *models.RawResponse) (*models.PlatformStats, error) {
	const p = models.PlatformHackerRank

	doc, err := loadDocument(p, raw.Body)
	if err != nil {
		return nil, err
	}

	items := doc.Find(hackerrankBadgeSelector)
	if items.Length() == 0 && doc.Find(hackerrankBadgesSelector).Length() == 0 {
		return nil, layoutChanged(p, hackerrankBadgeSelector)
	}

	badges := make([]models.Badge, 0, items.Length())
	items.Each(func(_ int, s *goquery.Selection) {
		badges = append(badges, models.Badge{
			Name:  collapse(s.Find(hackerrankTitleSelector).Text()),
			Stars: s.Find(hackerrankStarSelector).Length(),
		})
	})

	return models.NewHackerRankStats(&models.HackerRankStats{
		Username: raw.Handle,
		Badges:   badges,
	}), nil
}
