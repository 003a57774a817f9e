package parser

import (
	"encoding/json"
	"fmt"

	"github.com/algolog/stats-service/internal/models"
)

type codeforcesEnvelope struct {
	Status  string          `json:"status"`
	Comment string          `json:"comment"`
	Result  json.RawMessage `json:"result"`
}

type codeforcesUser struct {
	Handle    string          `json:"handle"`
	Rating    json.RawMessage `json:"rating"`
	MaxRating json.RawMessage `json:"maxRating"`
	Rank      string          `json:"rank"`
	MaxRank   string          `json:"maxRank"`
}

type codeforcesSubmission struct {
	Verdict string `json:"verdict"`
	Problem *struct {
		ContestID int    `json:"contestId"`
		Index     string `json:"index"`
	} `json:"problem"`
}

// ParseCodeforces combines user.info, user.rating and user.status. Unrated
// users have no rating field and are reported with rank "unrated".
func ParseCodeforces(raw *models.RawResponse) (*models.PlatformStats, error) {
	const p = models.PlatformCodeforces

	var users []codeforcesUser
	if err := decodeCodeforces(raw.Part("info"), &users); err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, missingField(p, "result")
	}
	user := users[0]
	if user.Handle == "" {
		return nil, missingField(p, "result.handle")
	}

	stats := &models.CodeforcesStats{
		Username: user.Handle,
		Rank:     user.Rank,
		MaxRank:  user.MaxRank,
	}

	rating, present, ok := jsonRating(user.Rating)
	if !ok {
		return nil, invalidRating(p, "rating", string(user.Rating))
	}
	if !present {
		stats.Rank = "unrated"
		stats.MaxRank = "unrated"
	}
	stats.Rating = int(rating)

	maxRating, _, ok := jsonRating(user.MaxRating)
	if !ok {
		return nil, invalidRating(p, "maxRating", string(user.MaxRating))
	}
	stats.MaxRating = int(maxRating)

	if body, ok := raw.Parts["rating"]; ok {
		var changes []json.RawMessage
		if err := decodeCodeforces(body, &changes); err != nil {
			return nil, err
		}
		stats.Contests = len(changes)
	}

	if body, ok := raw.Parts["status"]; ok {
		var submissions []codeforcesSubmission
		if err := decodeCodeforces(body, &submissions); err != nil {
			return nil, err
		}
		solved := make(map[string]struct{})
		for _, s := range submissions {
			if s.Verdict == "OK" && s.Problem != nil {
				solved[fmt.Sprintf("%d-%s", s.Problem.ContestID, s.Problem.Index)] = struct{}{}
			}
		}
		stats.ProblemsSolved = len(solved)
	}

	return models.NewCodeforcesStats(stats), nil
}

func decodeCodeforces(body []byte, out interface{}) error {
	const p = models.PlatformCodeforces

	var env codeforcesEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return invalidJSON(p, err)
	}
	if env.Status != "OK" {
		return &ParseError{Platform: p, Reason: ReasonUpstreamError, Err: fmt.Errorf("status %q: %s", env.Status, env.Comment)}
	}
	if len(env.Result) == 0 {
		return missingField(p, "result")
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return invalidJSON(p, err)
	}
	return nil
}
