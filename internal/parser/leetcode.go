package parser

import (
	"encoding/json"

	"github.com/algolog/stats-service/internal/models"
)

type leetcodeTag struct {
	TagName        string          `json:"tagName"`
	ProblemsSolved json.RawMessage `json:"problemsSolved"`
}

type leetcodePayload struct {
	Data *struct {
		MatchedUser *struct {
			Username    string `json:"username"`
			SubmitStats *struct {
				AcSubmissionNum []struct {
					Difficulty string          `json:"difficulty"`
					Count      json.RawMessage `json:"count"`
				} `json:"acSubmissionNum"`
			} `json:"submitStats"`
			Badges []struct {
				DisplayName string `json:"displayName"`
			} `json:"badges"`
			UserCalendar *struct {
				Streak          json.RawMessage `json:"streak"`
				TotalActiveDays json.RawMessage `json:"totalActiveDays"`
			} `json:"userCalendar"`
			LanguageProblemCount []struct {
				LanguageName   string          `json:"languageName"`
				ProblemsSolved json.RawMessage `json:"problemsSolved"`
			} `json:"languageProblemCount"`
			TagProblemCounts *struct {
				Fundamental  []leetcodeTag `json:"fundamental"`
				Intermediate []leetcodeTag `json:"intermediate"`
				Advanced     []leetcodeTag `json:"advanced"`
			} `json:"tagProblemCounts"`
		} `json:"matchedUser"`
		UserContestRanking *struct {
			AttendedContestsCount json.RawMessage `json:"attendedContestsCount"`
			Rating                json.RawMessage `json:"rating"`
			GlobalRanking         json.RawMessage `json:"globalRanking"`
			TopPercentage         json.RawMessage `json:"topPercentage"`
		} `json:"userContestRanking"`
		UserContestRankingHistory []struct {
			Attended       bool            `json:"attended"`
			Rating         json.RawMessage `json:"rating"`
			Ranking        json.RawMessage `json:"ranking"`
			ProblemsSolved json.RawMessage `json:"problemsSolved"`
			TotalProblems  json.RawMessage `json:"totalProblems"`
			Contest        struct {
				Title     string `json:"title"`
				StartTime int64  `json:"startTime"`
			} `json:"contest"`
		} `json:"userContestRankingHistory"`
	} `json:"data"`
}

// ParseLeetCode maps the profile GraphQL response. Users who never entered
// a contest have no contest ranking and keep a zero rating.
func ParseLeetCode(raw *models.RawResponse) (*models.PlatformStats, error) {
	const p = models.PlatformLeetCode

	var payload leetcodePayload
	if err := json.Unmarshal(raw.Body, &payload); err != nil {
		return nil, invalidJSON(p, err)
	}
	if payload.Data == nil {
		return nil, missingField(p, "data")
	}
	user := payload.Data.MatchedUser
	if user == nil {
		return nil, missingField(p, "matchedUser")
	}
	if user.SubmitStats == nil || user.SubmitStats.AcSubmissionNum == nil {
		return nil, missingField(p, "submitStats.acSubmissionNum")
	}

	stats := &models.LeetCodeStats{
		Username:      raw.Handle,
		Badges:        []string{},
		Contests:      []models.LeetCodeContest{},
		TopicStats:    []models.LeetCodeTopic{},
		LanguageStats: []models.LeetCodeLanguage{},
	}
	if stats.Username == "" {
		stats.Username = user.Username
	}

	for _, s := range user.SubmitStats.AcSubmissionNum {
		n := jsonCount(s.Count)
		switch s.Difficulty {
		case "All":
			stats.Solved.All = n
		case "Easy":
			stats.Solved.Easy = n
		case "Medium":
			stats.Solved.Medium = n
		case "Hard":
			stats.Solved.Hard = n
		}
	}

	for _, b := range user.Badges {
		if b.DisplayName != "" {
			stats.Badges = append(stats.Badges, b.DisplayName)
		}
	}

	for _, l := range user.LanguageProblemCount {
		if l.LanguageName == "" {
			continue
		}
		stats.LanguageStats = append(stats.LanguageStats, models.LeetCodeLanguage{
			Language:       l.LanguageName,
			ProblemsSolved: jsonCount(l.ProblemsSolved),
		})
	}

	if tags := user.TagProblemCounts; tags != nil {
		stats.TopicStats = mergeTopics(tags.Fundamental, tags.Intermediate, tags.Advanced)
	}

	if cal := user.UserCalendar; cal != nil {
		stats.Streak = jsonCount(cal.Streak)
		stats.TotalActiveDays = jsonCount(cal.TotalActiveDays)
	}

	if rank := payload.Data.UserContestRanking; rank != nil {
		rating, present, ok := jsonRating(rank.Rating)
		if !ok {
			return nil, invalidRating(p, "userContestRanking.rating", string(rank.Rating))
		}
		if present {
			stats.Rating = rating
		}
		stats.ContestCount = jsonCount(rank.AttendedContestsCount)
		stats.GlobalRanking = jsonCount(rank.GlobalRanking)
		if top, present, ok := jsonRating(rank.TopPercentage); ok && present {
			stats.TopPercentage = top
		}
	}

	for _, c := range payload.Data.UserContestRankingHistory {
		if !c.Attended {
			continue
		}
		rating, _, ok := jsonRating(c.Rating)
		if !ok {
			return nil, invalidRating(p, "userContestRankingHistory.rating", string(c.Rating))
		}
		stats.Contests = append(stats.Contests, models.LeetCodeContest{
			Title:          c.Contest.Title,
			StartTime:      c.Contest.StartTime,
			Rating:         rating,
			Ranking:        jsonCount(c.Ranking),
			ProblemsSolved: jsonCount(c.ProblemsSolved),
			TotalProblems:  jsonCount(c.TotalProblems),
		})
	}

	return models.NewLeetCodeStats(stats), nil
}

func mergeTopics(groups ...[]leetcodeTag) []models.LeetCodeTopic {
	topics := []models.LeetCodeTopic{}
	index := map[string]int{}
	for _, group := range groups {
		for _, t := range group {
			if t.TagName == "" {
				continue
			}
			n := jsonCount(t.ProblemsSolved)
			if i, ok := index[t.TagName]; ok {
				topics[i].ProblemsSolved += n
				continue
			}
			index[t.TagName] = len(topics)
			topics = append(topics, models.LeetCodeTopic{TagName: t.TagName, ProblemsSolved: n})
		}
	}
	return topics
}
