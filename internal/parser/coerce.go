package parser

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var (
	firstNumber   = regexp.MustCompile(`-?\d+(\.\d+)?`)
	thousandsSeps = strings.NewReplacer(",", "", "_", "", " ", "", "\u00a0", "")
)

// parseCount reads a solved count or rank. Text without a number yields 0.
func parseCount(text string) int {
	m := firstNumber.FindString(thousandsSeps.Replace(text))
	if m == "" {
		return 0
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil || f < 0 {
		return 0
	}
	return int(f)
}

// parseRating reads a rating. Unlike counts, unparseable text is an error.
func parseRating(text string) (float64, bool) {
	s := strings.TrimSpace(thousandsSeps.Replace(text))
	s = strings.TrimSuffix(s, "?")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// jsonRating decodes a rating that may be absent, a number or a numeric
// string. present is false for absent or null values.
func jsonRating(raw json.RawMessage) (value float64, present bool, ok bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, false, true
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	v, ok := parseRating(s)
	return v, true, ok
}

// jsonCount decodes a count that may be a number, a numeric string or
// anything else, which counts as 0.
func jsonCount(raw json.RawMessage) int {
	s := strings.TrimSpace(string(raw))
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	return parseCount(s)
}
