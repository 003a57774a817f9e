package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StatsDocument maps each platform to its latest known stats. A nil or
// missing entry means the platform has never been fetched successfully.
type StatsDocument map[Platform]*PlatformStats

func (d StatsDocument) Clone() StatsDocument {
	out := make(StatsDocument, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// PlatformStats is a tagged union: Platform selects which variant is set.
type PlatformStats struct {
	Platform   Platform
	LeetCode   *LeetCodeStats
	Codeforces *CodeforcesStats
	CodeChef   *CodeChefStats
	HackerRank *HackerRankStats
	SkillRack  *SkillRackStats
	GitHub     *GitHubStats
}

type LeetCodeSolved struct {
	All    int `json:"All"`
	Easy   int `json:"Easy"`
	Medium int `json:"Medium"`
	Hard   int `json:"Hard"`
}

type LeetCodeContest struct {
	Title          string  `json:"title"`
	StartTime      int64   `json:"start_time"`
	Rating         float64 `json:"rating"`
	Ranking        int     `json:"ranking"`
	ProblemsSolved int     `json:"problems_solved"`
	TotalProblems  int     `json:"total_problems"`
}

type LeetCodeTopic struct {
	TagName        string `json:"tag_name"`
	ProblemsSolved int    `json:"problems_solved"`
}

type LeetCodeLanguage struct {
	Language       string `json:"language"`
	ProblemsSolved int    `json:"problems_solved"`
}

type LeetCodeStats struct {
	Username        string            `json:"username"`
	Solved          LeetCodeSolved    `json:"solved"`
	Rating          float64           `json:"rating"`
	GlobalRanking   int               `json:"global_ranking"`
	ContestCount    int               `json:"contest_count"`
	TopPercentage   float64           `json:"top_percentage"`
	Contests        []LeetCodeContest `json:"contests"`
	Badges          []string          `json:"badges"`
	Streak          int               `json:"streak"`
	TotalActiveDays int               `json:"total_active_days"`
	// TopicStats sums a tag's count across the fundamental, intermediate
	// and advanced groups; order follows first appearance.
	TopicStats    []LeetCodeTopic    `json:"topic_stats"`
	LanguageStats []LeetCodeLanguage `json:"language_stats"`
}

type CodeforcesStats struct {
	Username       string `json:"username"`
	Rating         int    `json:"rating"`
	MaxRating      int    `json:"max_rating"`
	Rank           string `json:"rank"`
	MaxRank        string `json:"max_rank"`
	ProblemsSolved int    `json:"problems_solved"`
	Contests       int    `json:"contests"`
}

type CodeChefStats struct {
	Username      string `json:"username"`
	Rating        int    `json:"rating"`
	HighestRating int    `json:"highest_rating"`
	Division      string `json:"division"`
	Stars         string `json:"stars"`
	GlobalRank    int    `json:"global_rank"`
	CountryRank   int    `json:"country_rank"`
	FullySolved   int    `json:"fully_solved"`
}

type Badge struct {
	Name  string `json:"name"`
	Stars int    `json:"stars"`
}

type HackerRankStats struct {
	Username string  `json:"username"`
	Badges   []Badge `json:"badges"`
}

type Certificate struct {
	Title string `json:"title"`
	Date  string `json:"date,omitempty"`
	Link  string `json:"link"`
}

type SkillRackStats struct {
	ProgramsSolved int            `json:"programs_solved"`
	Rank           int            `json:"rank"`
	Languages      map[string]int `json:"languages"`
	Certificates   []Certificate  `json:"certificates"`
}

type GitHubStats struct {
	Username     string   `json:"username"`
	TotalCommits int      `json:"total_commits"`
	TotalRepos   int      `json:"total_repos"`
	TopLanguages []string `json:"top_languages"`
}

func NewLeetCodeStats(s *LeetCodeStats) *PlatformStats {
	return &PlatformStats{Platform: PlatformLeetCode, LeetCode: s}
}

func NewCodeforcesStats(s *CodeforcesStats) *PlatformStats {
	return &PlatformStats{Platform: PlatformCodeforces, Codeforces: s}
}

func NewCodeChefStats(s *CodeChefStats) *PlatformStats {
	return &PlatformStats{Platform: PlatformCodeChef, CodeChef: s}
}

func NewHackerRankStats(s *HackerRankStats) *PlatformStats {
	return &PlatformStats{Platform: PlatformHackerRank, HackerRank: s}
}

func NewSkillRackStats(s *SkillRackStats) *PlatformStats {
	return &PlatformStats{Platform: PlatformSkillRack, SkillRack: s}
}

func NewGitHubStats(s *GitHubStats) *PlatformStats {
	return &PlatformStats{Platform: PlatformGitHub, GitHub: s}
}

// Variant returns the active variant, or nil when the tag and the payload disagree.
func (s *PlatformStats) Variant() interface{} {
	switch s.Platform {
	case PlatformLeetCode:
		if s.LeetCode != nil {
			return s.LeetCode
		}
	case PlatformCodeforces:
		if s.Codeforces != nil {
			return s.Codeforces
		}
	case PlatformCodeChef:
		if s.CodeChef != nil {
			return s.CodeChef
		}
	case PlatformHackerRank:
		if s.HackerRank != nil {
			return s.HackerRank
		}
	case PlatformSkillRack:
		if s.SkillRack != nil {
			return s.SkillRack
		}
	case PlatformGitHub:
		if s.GitHub != nil {
			return s.GitHub
		}
	}
	return nil
}

type statsHeader struct {
	Platform Platform `json:"platform"`
}

// MarshalJSON flattens the active variant next to the platform tag.
func (s PlatformStats) MarshalJSON() ([]byte, error) {
	variant := s.Variant()
	if variant == nil {
		return nil, fmt.Errorf("platform stats %q has no payload", s.Platform)
	}

	head, err := json.Marshal(statsHeader{Platform: s.Platform})
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(variant)
	if err != nil {
		return nil, err
	}

	body = bytes.TrimPrefix(body, []byte("{"))
	if bytes.Equal(body, []byte("}")) {
		return head, nil
	}

	out := make([]byte, 0, len(head)+len(body)+1)
	out = append(out, head[:len(head)-1]...)
	out = append(out, ',')
	out = append(out, body...)
	return out, nil
}

func (s *PlatformStats) UnmarshalJSON(data []byte) error {
	var head statsHeader
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	out := PlatformStats{Platform: head.Platform}
	var target interface{}
	switch head.Platform {
	case PlatformLeetCode:
		out.LeetCode = &LeetCodeStats{}
		target = out.LeetCode
	case PlatformCodeforces:
		out.Codeforces = &CodeforcesStats{}
		target = out.Codeforces
	case PlatformCodeChef:
		out.CodeChef = &CodeChefStats{}
		target = out.CodeChef
	case PlatformHackerRank:
		out.HackerRank = &HackerRankStats{}
		target = out.HackerRank
	case PlatformSkillRack:
		out.SkillRack = &SkillRackStats{}
		target = out.SkillRack
	case PlatformGitHub:
		out.GitHub = &GitHubStats{}
		target = out.GitHub
	default:
		return fmt.Errorf("unknown platform tag %q", head.Platform)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to decode %s stats: %w", head.Platform, err)
	}

	*s = out
	return nil
}
