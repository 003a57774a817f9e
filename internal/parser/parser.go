package parser

import (
	"fmt"

	"github.com/algolog/stats-service/internal/models"
)

// ParseFunc maps one platform's raw payload onto its stats variant.
type ParseFunc func(raw *models.RawResponse) (*models.PlatformStats, error)

type Registry map[models.Platform]ParseFunc

func DefaultRegistry() Registry {
	return Registry{
		models.PlatformLeetCode:   ParseLeetCode,
		models.PlatformCodeforces: ParseCodeforces,
		models.PlatformCodeChef:   ParseCodeChef,
		models.PlatformHackerRank: ParseHackerRank,
		models.PlatformSkillRack:  ParseSkillRack,
		models.PlatformGitHub:     ParseGitHub,
	}
}

func (r Registry) Parse(platform models.Platform, raw *models.RawResponse) (*models.PlatformStats, error) {
	fn, ok := r[platform]
	if !ok {
		return nil, fmt.Errorf("no parser registered for platform %q", platform)
	}
	if raw == nil {
		return nil, &ParseError{Platform: platform, Reason: "empty-response"}
	}
	return fn(raw)
}
