package models

import "time"

// RawResponse is an upstream payload as received, before parsing. Platforms
// that need several calls store each body under its own part name.
type RawResponse struct {
	Platform    Platform          `json:"platform"`
	Handle      string            `json:"handle"`
	StatusCode  int               `json:"status_code"`
	ContentType string            `json:"content_type"`
	Body        []byte            `json:"-"`
	Parts       map[string][]byte `json:"-"`
	FetchedAt   time.Time         `json:"fetched_at"`
}

// Part returns a named body, falling back to Body for single-call platforms.
func (r *RawResponse) Part(name string) []byte {
	if r.Parts != nil {
		if b, ok := r.Parts[name]; ok {
			return b
		}
	}
	return r.Body
}
