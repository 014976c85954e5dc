// Package session keeps pending import sessions in memory with a TTL. A
// session holds the match report produced at upload time; confirmation looks
// it up by token. Expired sessions have their staged files cleaned up
// automatically.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/hyperjump/meishi/internal/models"
)

// Cleaner removes the staged files behind an expired session.
type Cleaner interface {
	Remove(ref string) error
}

// Store holds pending MatchReports keyed by token.
type Store struct {
	cache   *gocache.Cache
	cleaner Cleaner
	logger  *zap.Logger
}

// NewStore creates a session store. Sessions expire after ttl; on expiry the
// session's staging area is removed through cleaner.
func NewStore(ttl time.Duration, cleaner Cleaner, logger *zap.Logger) *Store {
	c := gocache.New(ttl, ttl/2)
	s := &Store{cache: c, cleaner: cleaner, logger: logger}
	c.OnEvicted(func(token string, value interface{}) {
		report, ok := value.(*models.MatchReport)
		if !ok || report.StagingRef == "" {
			return
		}
		if err := cleaner.Remove(report.StagingRef); err != nil {
			logger.Warn("failed to clean up expired import session",
				zap.String("token", token),
				zap.Error(err))
		}
	})
	return s
}

// Put stores a report and assigns it a fresh token.
func (s *Store) Put(report *models.MatchReport) string {
	token := uuid.New().String()
	report.Token = token
	s.cache.Set(token, report, gocache.DefaultExpiration)
	return token
}

// Get returns the report for token or an error when the token is unknown or
// expired.
func (s *Store) Get(token string) (*models.MatchReport, error) {
	value, found := s.cache.Get(token)
	if !found {
		return nil, fmt.Errorf("unknown or expired import token: %s", token)
	}
	return value.(*models.MatchReport), nil
}

// Delete drops a session without triggering staged-file cleanup. Callers that
// have already committed or cancelled the import own the cleanup themselves.
func (s *Store) Delete(token string) {
	if value, found := s.cache.Get(token); found {
		if report, ok := value.(*models.MatchReport); ok {
			// Blank the ref so the eviction hook does not race the caller's
			// own cleanup.
			report.StagingRef = ""
		}
	}
	s.cache.Delete(token)
}
