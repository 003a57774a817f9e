package fetcher

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/algolog/stats-service/internal/models"
)

const leetcodeQuery = `query userProfile($username: String!) {
  matchedUser(username: $username) {
    username
    submitStats { acSubmissionNum { difficulty count } }
    badges { displayName }
    userCalendar { streak totalActiveDays }
    languageProblemCount { languageName problemsSolved }
    tagProblemCounts {
      fundamental { tagName problemsSolved }
      intermediate { tagName problemsSolved }
      advanced { tagName problemsSolved }
    }
  }
  userContestRanking(username: $username) {
    attendedContestsCount rating globalRanking topPercentage
  }
  userContestRankingHistory(username: $username) {
    attended rating ranking problemsSolved totalProblems
    contest { title startTime }
  }
}`

const githubQuery = `query userStats($login: String!) {
  user(login: $login) {
    login
    repositories(first: 50, ownerAffiliations: OWNER, orderBy: {field: UPDATED_AT, direction: DESC}) {
      totalCount
      nodes {
        languages(first: 5, orderBy: {field: SIZE, direction: DESC}) {
          edges { size node { name } }
        }
      }
    }
    contributionsCollection {
      contributionCalendar { totalContributions }
    }
  }
}`

func (f *Fetcher) fetchLeetCode(ctx context.Context, handle string) (*models.RawResponse, error) {
	body, err := json.Marshal(map[string]interface{}{
		"query":     leetcodeQuery,
		"variables": map[string]string{"username": handle},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode leetcode query: %w", err)
	}

	base := f.baseURL(models.PlatformLeetCode)
	resp, err := f.exchange(ctx, request{
		platform: models.PlatformLeetCode,
		method:   http.MethodPost,
		url:      strings.TrimRight(base, "/") + "/graphql/",
		body:     body,
		headers: map[string]string{
			"Content-Type": "application/json",
			"Referer":      base + "/u/" + handle + "/",
		},
	}, inspectLeetCode)
	if err != nil {
		return nil, err
	}
	return rawFrom(resp), nil
}

func inspectLeetCode(resp *response) error {
	if resp.status != http.StatusOK {
		return nil
	}
	var probe struct {
		Data *struct {
			MatchedUser json.RawMessage `json:"matchedUser"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(resp.body, &probe); err != nil {
		return nil
	}
	if probe.Data != nil && (len(probe.Data.MatchedUser) == 0 || string(probe.Data.MatchedUser) == "null") {
		return newError(models.PlatformLeetCode, KindNotFound, resp.status, fmt.Errorf("user does not exist"))
	}
	for _, e := range probe.Errors {
		if strings.Contains(strings.ToLower(e.Message), "does not exist") {
			return newError(models.PlatformLeetCode, KindNotFound, resp.status, fmt.Errorf("%s", e.Message))
		}
	}
	return nil
}

var codeforcesCalls = []struct {
	part   string
	method string
	params map[string]string
}{
	{part: "info", method: "user.info", params: map[string]string{}},
	{part: "rating", method: "user.rating", params: map[string]string{}},
	{part: "status", method: "user.status", params: map[string]string{"from": "1", "count": "500"}},
}

func (f *Fetcher) fetchCodeforces(ctx context.Context, handle string) (*models.RawResponse, error) {
	base := strings.TrimRight(f.baseURL(models.PlatformCodeforces), "/")
	raw := &models.RawResponse{Parts: make(map[string][]byte, len(codeforcesCalls))}

	for _, call := range codeforcesCalls {
		params := map[string]string{}
		for k, v := range call.params {
			params[k] = v
		}
		if call.method == "user.info" {
			params["handles"] = handle
		} else {
			params["handle"] = handle
		}
		if f.config.CodeforcesKey != "" && f.config.CodeforcesSecret != "" {
			params["apiKey"] = f.config.CodeforcesKey
			params["time"] = strconv.FormatInt(f.now().Unix(), 10)
			params["apiSig"] = codeforcesSignature(f.randomToken(6), call.method, params, f.config.CodeforcesSecret)
		}

		resp, err := f.exchange(ctx, request{
			platform: models.PlatformCodeforces,
			method:   http.MethodGet,
			url:      base + "/api/" + call.method + "?" + encodeSorted(params),
		}, inspectCodeforces)
		if err != nil {
			return nil, err
		}
		raw.Parts[call.part] = resp.body
		raw.StatusCode = resp.status
		raw.ContentType = resp.ctype
	}
	raw.Body = raw.Parts["info"]
	return raw, nil
}

// codeforcesSignature builds apiSig as rand + sha512(rand/method?params#secret)
// with params sorted by key then value.
func codeforcesSignature(rnd, method string, params map[string]string, secret string) string {
	payload := fmt.Sprintf("%s/%s?%s#%s", rnd, method, joinSorted(params), secret)
	sum := sha512.Sum512([]byte(payload))
	return rnd + hex.EncodeToString(sum[:])
}

func joinSorted(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "apiSig" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	return strings.Join(parts, "&")
}

func encodeSorted(params map[string]string) string {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	return values.Encode()
}

func inspectCodeforces(resp *response) error {
	var probe struct {
		Status  string `json:"status"`
		Comment string `json:"comment"`
	}
	if err := json.Unmarshal(resp.body, &probe); err != nil || probe.Status != "FAILED" {
		return nil
	}
	comment := strings.ToLower(probe.Comment)
	switch {
	case strings.Contains(comment, "not found"):
		return newError(models.PlatformCodeforces, KindNotFound, resp.status, fmt.Errorf("%s", probe.Comment))
	case strings.Contains(comment, "limit exceeded"):
		return newError(models.PlatformCodeforces, KindRateLimited, resp.status, fmt.Errorf("%s", probe.Comment))
	}
	return newError(models.PlatformCodeforces, KindHTTP, resp.status, fmt.Errorf("%s", probe.Comment))
}

func (f *Fetcher) fetchCodeChef(ctx context.Context, handle string) (*models.RawResponse, error) {
	resp, err := f.exchange(ctx, request{
		platform: models.PlatformCodeChef,
		method:   http.MethodGet,
		url:      strings.TrimRight(f.baseURL(models.PlatformCodeChef), "/") + "/users/" + url.PathEscape(handle),
		headers:  map[string]string{"Accept": "text/html"},
	}, inspectCodeChef)
	if err != nil {
		return nil, err
	}
	return rawFrom(resp), nil
}

func inspectCodeChef(resp *response) error {
	if resp.status != http.StatusOK {
		return nil
	}
	if bytes.Contains(resp.body, []byte("does not exist in our database")) {
		return newError(models.PlatformCodeChef, KindNotFound, resp.status, fmt.Errorf("user does not exist"))
	}
	if bytes.Contains(resp.body, []byte("Too Many Requests")) {
		return newError(models.PlatformCodeChef, KindRateLimited, resp.status, nil)
	}
	return nil
}

func (f *Fetcher) fetchHackerRank(ctx context.Context, handle string) (*models.RawResponse, error) {
	resp, err := f.exchange(ctx, request{
		platform: models.PlatformHackerRank,
		method:   http.MethodGet,
		url:      strings.TrimRight(f.baseURL(models.PlatformHackerRank), "/") + "/" + url.PathEscape(handle),
		headers:  map[string]string{"Accept": "text/html"},
	}, nil)
	if err != nil {
		return nil, err
	}
	return rawFrom(resp), nil
}

// fetchSkillRack requests the stored profile URL. A configured base URL
// replaces its scheme and host.
func (f *Fetcher) fetchSkillRack(ctx context.Context, handle string) (*models.RawResponse, error) {
	target := handle
	if base := f.baseURL(models.PlatformSkillRack); base != "" {
		u, err := url.Parse(handle)
		if err != nil {
			return nil, newError(models.PlatformSkillRack, KindInvalidHandle, 0, err)
		}
		b, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid skillrack base url: %w", err)
		}
		u.Scheme = b.Scheme
		u.Host = b.Host
		target = u.String()
	}

	resp, err := f.exchange(ctx, request{
		platform: models.PlatformSkillRack,
		method:   http.MethodGet,
		url:      target,
		headers:  map[string]string{"Accept": "text/html"},
	}, nil)
	if err != nil {
		return nil, err
	}
	return rawFrom(resp), nil
}

func (f *Fetcher) fetchGitHub(ctx context.Context, handle string) (*models.RawResponse, error) {
	if f.config.GitHubToken == "" {
		return nil, newError(models.PlatformGitHub, KindDeferred, 0, fmt.Errorf("github token not configured"))
	}

	body, err := json.Marshal(map[string]interface{}{
		"query":     githubQuery,
		"variables": map[string]string{"login": handle},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode github query: %w", err)
	}

	resp, err := f.exchange(ctx, request{
		platform: models.PlatformGitHub,
		method:   http.MethodPost,
		url:      strings.TrimRight(f.baseURL(models.PlatformGitHub), "/") + "/graphql",
		body:     body,
		headers: map[string]string{
			"Content-Type":  "application/json",
			"Authorization": "Bearer " + f.config.GitHubToken,
		},
	}, inspectGitHub)
	if err != nil {
		return nil, err
	}
	return rawFrom(resp), nil
}

func inspectGitHub(resp *response) error {
	if resp.status != http.StatusOK {
		return nil
	}
	var probe struct {
		Errors []struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(resp.body, &probe); err != nil {
		return nil
	}
	for _, e := range probe.Errors {
		switch e.Type {
		case "NOT_FOUND":
			return newError(models.PlatformGitHub, KindNotFound, resp.status, fmt.Errorf("%s", e.Message))
		case "RATE_LIMITED":
			return newError(models.PlatformGitHub, KindRateLimited, resp.status, fmt.Errorf("%s", e.Message))
		}
	}
	return nil
}

func rawFrom(resp *response) *models.RawResponse {
	return &models.RawResponse{
		StatusCode:  resp.status,
		ContentType: resp.ctype,
		Body:        resp.body,
	}
}
