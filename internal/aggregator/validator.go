package aggregator

import (
	"fmt"

	"github.com/algolog/stats-service/internal/models"
)

const (
	maxPlausibleRating  = 5000
	maxPlausibleStreak  = 3650
	maxPlausibleCommits = 50000
	leetcodeSpike       = 100
)

// Validate sanity checks freshly parsed stats. Findings are advisory and
// never block a merge.
func Validate(s *models.PlatformStats) []string {
	var warnings []string
	warn := func(format string, args ...interface{}) {
		warnings = append(warnings, fmt.Sprintf("%s: "+format, append([]interface{}{s.Platform}, args...)...))
	}

	switch s.Platform {
	case models.PlatformLeetCode:
		lc := s.LeetCode
		if lc == nil {
			break
		}
		sum := lc.Solved.Easy + lc.Solved.Medium + lc.Solved.Hard
		if lc.Solved.All != sum {
			warn("sum mismatch: %d vs %d", sum, lc.Solved.All)
		}
		if lc.Rating < 0 || lc.Rating > maxPlausibleRating {
			warn("unusual rating: %v", lc.Rating)
		}
		if lc.Streak > maxPlausibleStreak {
			warn("unusual streak: %d days", lc.Streak)
		}
	case models.PlatformCodeChef:
		if cc := s.CodeChef; cc != nil && (cc.Rating < 0 || cc.Rating > maxPlausibleRating) {
			warn("unusual rating: %d", cc.Rating)
		}
	case models.PlatformCodeforces:
		if cf := s.Codeforces; cf != nil && (cf.Rating < 0 || cf.Rating > maxPlausibleRating) {
			warn("unusual rating: %d", cf.Rating)
		}
	case models.PlatformHackerRank:
		if hr := s.HackerRank; hr != nil {
			for i, b := range hr.Badges {
				if b.Name == "" {
					warn("badge %d has no name", i)
				}
				if b.Stars > 5 {
					warn("badge %d has %d stars", i, b.Stars)
				}
			}
		}
	case models.PlatformGitHub:
		if gh := s.GitHub; gh != nil && gh.TotalCommits > maxPlausibleCommits {
			warn("very high commit count: %d", gh.TotalCommits)
		}
	}
	return warnings
}

// DetectAnomalies compares a platform's previous and new stats. Solved or
// commit counts going down, or a LeetCode jump over 100, are flagged.
func DetectAnomalies(prev, next *models.PlatformStats) []string {
	if prev == nil || next == nil || prev.Platform != next.Platform {
		return nil
	}

	var anomalies []string
	decreased := func(what string, before, after int) {
		if before > 0 && after > 0 && after < before {
			anomalies = append(anomalies, fmt.Sprintf("%s decreased by %d", what, before-after))
		}
	}

	switch next.Platform {
	case models.PlatformLeetCode:
		if prev.LeetCode == nil || next.LeetCode == nil {
			break
		}
		before, after := prev.LeetCode.Solved.All, next.LeetCode.Solved.All
		decreased("problems solved", before, after)
		if before > 0 && after-before > leetcodeSpike {
			anomalies = append(anomalies, fmt.Sprintf("problems solved increased by %d (unusual spike)", after-before))
		}
	case models.PlatformCodeChef:
		if prev.CodeChef != nil && next.CodeChef != nil {
			decreased("problems solved", prev.CodeChef.FullySolved, next.CodeChef.FullySolved)
		}
	case models.PlatformGitHub:
		if prev.GitHub != nil && next.GitHub != nil {
			decreased("commits", prev.GitHub.TotalCommits, next.GitHub.TotalCommits)
		}
	}
	return anomalies
}
