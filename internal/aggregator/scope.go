package aggregator

import (
	"sync"

	"github.com/algolog/stats-service/internal/models"
)

// RunScope carries state shared by every student of one batch run. A
// platform that rate limits once is skipped for the rest of the run. A nil
// scope is valid and never defers anything.
type RunScope struct {
	mu       sync.Mutex
	deferred map[models.Platform]bool
}

func NewRunScope() *RunScope {
	return &RunScope{deferred: make(map[models.Platform]bool)}
}

func (s *RunScope) Defer(p models.Platform) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deferred[p] = true
}

func (s *RunScope) Deferred(p models.Platform) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deferred[p]
}

func (s *RunScope) DeferredPlatforms() []models.Platform {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Platform
	for _, p := range models.AllPlatforms {
		if s.deferred[p] {
			out = append(out, p)
		}
	}
	return out
}
