package models

import "fmt"

type Platform string

const (
	PlatformLeetCode   Platform = "leetcode"
	PlatformHackerRank Platform = "hackerrank"
	PlatformCodeChef   Platform = "codechef"
	PlatformCodeforces Platform = "codeforces"
	PlatformSkillRack  Platform = "skillrack"
	PlatformGitHub     Platform = "github"
)

// AllPlatforms is the fixed key set of a StatsDocument.
var AllPlatforms = []Platform{
	PlatformLeetCode,
	PlatformHackerRank,
	PlatformCodeChef,
	PlatformCodeforces,
	PlatformSkillRack,
	PlatformGitHub,
}

func (p Platform) String() string {
	return string(p)
}

func (p Platform) Valid() bool {
	for _, known := range AllPlatforms {
		if p == known {
			return true
		}
	}
	return false
}

func ParsePlatform(s string) (Platform, error) {
	p := Platform(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown platform: %q", s)
	}
	return p, nil
}
