package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/algolog/stats-service/internal/models"
)

const (
	skillrackStatisticSelector   = "div.statistic"
	skillrackCertificateSelector = "div.ui.brown.card"
)

var (
	skillrackLanguages = map[string]bool{"JAVA": true, "C": true, "SQL": true, "PYTHON3": true, "CPP": true}
	certificateDate    = regexp.MustCompile(`\d{2}-\d{2}-\d{4}( \d{2}:\d{2})?`)
)

func ParseSkillRack(raw *models.RawResponse) (*models.PlatformStats, error) {
	const p = models.PlatformSkillRack

	doc, err := loadDocument(p, raw.Body)
	if err != nil {
		return nil, err
	}

	statistics := doc.Find(skillrackStatisticSelector)
	if statistics.Length() == 0 {
		return nil, layoutChanged(p, skillrackStatisticSelector)
	}

	stats := &models.SkillRackStats{
		Languages:    map[string]int{},
		Certificates: []models.Certificate{},
	}

	statistics.Each(func(_ int, s *goquery.Selection) {
		label := strings.ToUpper(collapse(s.Find("div.label").Text()))
		value := parseCount(s.Find("div.value").Text())
		switch {
		case strings.Contains(label, "RANK"):
			stats.Rank = value
		case strings.Contains(label, "PROGRAMS SOLVED"):
			stats.ProgramsSolved = value
		case skillrackLanguages[label]:
			stats.Languages[label] = value
		}
	})

	doc.Find(skillrackCertificateSelector).Each(func(_ int, s *goquery.Selection) {
		content := s.Find("div.content")
		title := collapse(content.Find("b").Text())
		link, _ := content.Find("a").Attr("href")
		if title == "" || link == "" {
			return
		}
		stats.Certificates = append(stats.Certificates, models.Certificate{
			Title: title,
			Date:  certificateDate.FindString(content.Text()),
			Link:  link,
		})
	})

	return models.NewSkillRackStats(stats), nil
}
