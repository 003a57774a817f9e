package parser

import (
	"encoding/json"
	"sort"

	"github.com/algolog/stats-service/internal/models"
)

const githubTopLanguages = 5

type githubPayload struct {
	Data *struct {
		User *struct {
			Login        string `json:"login"`
			Repositories *struct {
				TotalCount json.RawMessage `json:"totalCount"`
				Nodes      []struct {
					Languages *struct {
						Edges []struct {
							Size int64 `json:"size"`
							Node *struct {
								Name string `json:"name"`
							} `json:"node"`
						} `json:"edges"`
					} `json:"languages"`
				} `json:"nodes"`
			} `json:"repositories"`
			ContributionsCollection *struct {
				ContributionCalendar *struct {
					TotalContributions json.RawMessage `json:"totalContributions"`
				} `json:"contributionCalendar"`
			} `json:"contributionsCollection"`
		} `json:"user"`
	} `json:"data"`
}

// ParseGitHub maps the user GraphQL response. Languages are ranked by total
// bytes across repositories, ties broken by name.
func ParseGitHub(raw *models.RawResponse) (*models.PlatformStats, error) {
	const p = models.PlatformGitHub

	var payload githubPayload
	if err := json.Unmarshal(raw.Body, &payload); err != nil {
		return nil, invalidJSON(p, err)
	}
	if payload.Data == nil {
		return nil, missingField(p, "data")
	}
	user := payload.Data.User
	if user == nil {
		return nil, missingField(p, "user")
	}
	if user.Repositories == nil {
		return nil, missingField(p, "repositories")
	}
	if user.ContributionsCollection == nil || user.ContributionsCollection.ContributionCalendar == nil {
		return nil, missingField(p, "contributionsCollection.contributionCalendar")
	}

	bytesByLanguage := make(map[string]int64)
	for _, repo := range user.Repositories.Nodes {
		if repo.Languages == nil {
			continue
		}
		for _, edge := range repo.Languages.Edges {
			if edge.Node == nil || edge.Node.Name == "" {
				continue
			}
			bytesByLanguage[edge.Node.Name] += edge.Size
		}
	}

	languages := make([]string, 0, len(bytesByLanguage))
	for name := range bytesByLanguage {
		languages = append(languages, name)
	}
	sort.Slice(languages, func(i, j int) bool {
		a, b := languages[i], languages[j]
		if bytesByLanguage[a] != bytesByLanguage[b] {
			return bytesByLanguage[a] > bytesByLanguage[b]
		}
		return a < b
	})
	if len(languages) > githubTopLanguages {
		languages = languages[:githubTopLanguages]
	}

	username := raw.Handle
	if username == "" {
		username = user.Login
	}

	return models.NewGitHubStats(&models.GitHubStats{
		Username:     username,
		TotalCommits: jsonCount(user.ContributionsCollection.ContributionCalendar.TotalContributions),
		TotalRepos:   jsonCount(user.Repositories.TotalCount),
		TopLanguages: languages,
	}), nil
}
