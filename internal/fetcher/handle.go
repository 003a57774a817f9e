package fetcher

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/algolog/stats-service/internal/models"
)

var (
	usernamePattern       = regexp.MustCompile(`^[A-Za-z0-9_.\-]{1,64}$`)
	skillrackResumePath   = regexp.MustCompile(`^/faces/resume\.xhtml$`)
	skillrackProfilePath  = regexp.MustCompile(`^/profile/\d+/[a-fA-F0-9]+/?$`)
	skillrackResumeParams = regexp.MustCompile(`^id=\d+&key=[a-fA-F0-9]+$`)
)

// NormalizeHandle trims a stored handle and checks it is usable for the
// platform. Profile URLs are reduced to the username where the platform
// expects one.
func NormalizeHandle(platform models.Platform, handle string) (string, error) {
	h := strings.TrimSpace(handle)
	if h == "" {
		return "", newError(platform, KindInvalidHandle, 0, fmt.Errorf("handle is empty"))
	}

	if platform == models.PlatformSkillRack {
		if err := validateSkillRackURL(h); err != nil {
			return "", newError(platform, KindInvalidHandle, 0, err)
		}
		return h, nil
	}

	if strings.HasPrefix(h, "http://") || strings.HasPrefix(h, "https://") {
		u, err := url.Parse(h)
		if err != nil {
			return "", newError(platform, KindInvalidHandle, 0, fmt.Errorf("malformed profile url: %w", err))
		}
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")
		h = segments[len(segments)-1]
		if h == "" && len(segments) > 1 {
			h = segments[len(segments)-2]
		}
	}
	h = strings.TrimPrefix(h, "@")

	if !usernamePattern.MatchString(h) {
		return "", newError(platform, KindInvalidHandle, 0, fmt.Errorf("handle %q is not a valid username", handle))
	}
	return h, nil
}

// validateSkillRackURL accepts the resume
// (faces/resume.xhtml?id=N&key=HEX) and profile (profile/N/HEX) formats.
func validateSkillRackURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed skillrack url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("skillrack url must start with http:// or https://")
	}
	if !strings.HasSuffix(strings.ToLower(u.Hostname()), "skillrack.com") {
		return fmt.Errorf("url does not contain skillrack.com domain")
	}
	if skillrackResumePath.MatchString(u.Path) && skillrackResumeParams.MatchString(u.RawQuery) {
		return nil
	}
	if skillrackProfilePath.MatchString(u.Path) {
		return nil
	}
	return fmt.Errorf("url does not match recognized skillrack url patterns")
}
