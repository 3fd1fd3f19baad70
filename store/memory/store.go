// Package memory is an in-process refresh.Store for tests and single-node
// development setups. Records are lost on restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/authcore/refresh"
)

// Store keeps records in maps guarded by one mutex, with family and user
// indexes.
type Store struct {
	mu       sync.Mutex
	byHash   map[string]*refresh.Record
	byFamily map[string]map[string]struct{}
	byUser   map[string]map[string]struct{}
}

var (
	_ refresh.Store   = (*Store)(nil)
	_ refresh.Rotator = (*Store)(nil)
)

func New() *Store {
	return &Store{
		byHash:   make(map[string]*refresh.Record),
		byFamily: make(map[string]map[string]struct{}),
		byUser:   make(map[string]map[string]struct{}),
	}
}

func (s *Store) FindByHash(_ context.Context, tokenHash string) (*refresh.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byHash[tokenHash]
	if !ok {
		return nil, refresh.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *Store) Create(_ context.Context, rec refresh.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(rec)
}

func (s *Store) insertLocked(rec refresh.Record) error {
	if _, dup := s.byHash[rec.TokenHash]; dup {
		return refresh.ErrDuplicate
	}
	cp := rec
	s.byHash[rec.TokenHash] = &cp
	addIndex(s.byFamily, rec.FamilyID, rec.TokenHash)
	addIndex(s.byUser, rec.UserID, rec.TokenHash)
	return nil
}

func (s *Store) RevokeByHash(_ context.Context, tokenHash string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byHash[tokenHash]
	if !ok || rec.Revoked {
		return false, nil
	}
	revoke(rec, at)
	return true, nil
}

func (s *Store) Rotate(_ context.Context, oldHash string, next refresh.Record, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byHash[oldHash]
	if !ok {
		return refresh.ErrNotFound
	}
	if rec.Revoked {
		return refresh.ErrAlreadyRevoked
	}
	if _, dup := s.byHash[next.TokenHash]; dup {
		return refresh.ErrDuplicate
	}
	revoke(rec, at)
	return s.insertLocked(next)
}

func (s *Store) RevokeFamily(_ context.Context, familyID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revokeIndexLocked(s.byFamily[familyID], at), nil
}

func (s *Store) RevokeAllByUser(_ context.Context, userID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revokeIndexLocked(s.byUser[userID], at), nil
}

func (s *Store) revokeIndexLocked(hashes map[string]struct{}, at time.Time) int64 {
	var n int64
	for h := range hashes {
		if rec := s.byHash[h]; rec != nil && !rec.Revoked {
			revoke(rec, at)
			n++
		}
	}
	return n
}

func (s *Store) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for h, rec := range s.byHash {
		if rec.Expired(now) {
			delete(s.byHash, h)
			dropIndex(s.byFamily, rec.FamilyID, h)
			dropIndex(s.byUser, rec.UserID, h)
			n++
		}
	}
	return n, nil
}

// Family returns copies of every record in familyID, for inspection.
func (s *Store) Family(familyID string) []refresh.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]refresh.Record, 0, len(s.byFamily[familyID]))
	for h := range s.byFamily[familyID] {
		out = append(out, *s.byHash[h])
	}
	return out
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byHash)
}

func revoke(rec *refresh.Record, at time.Time) {
	rec.Revoked = true
	rec.RevokedAt = at
}

func addIndex(idx map[string]map[string]struct{}, key, hash string) {
	set, ok := idx[key]
	if !ok {
		set = make(map[string]struct{})
		idx[key] = set
	}
	set[hash] = struct{}{}
}

func dropIndex(idx map[string]map[string]struct{}, key, hash string) {
	set := idx[key]
	delete(set, hash)
	if len(set) == 0 {
		delete(idx, key)
	}
}
