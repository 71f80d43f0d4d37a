// Package memory keeps OTP records in process. It suits single-instance
// deployments and tests; records do not survive a restart.
package memory

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
)

const stripes = 64

type stripe struct {
	mu   sync.Mutex
	recs map[string]entity.OTP
}

// Store serializes access per identity by hashing keys onto a fixed set of
// locks.
type Store struct {
	stripes [stripes]stripe
}

func New() *Store {
	s := &Store{}
	for i := range s.stripes {
		s.stripes[i].recs = make(map[string]entity.OTP)
	}
	return s
}

func (s *Store) stripe(key string) *stripe {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.stripes[h.Sum32()%stripes]
}

func (s *Store) Save(ctx context.Context, rec entity.OTP) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	st := s.stripe(rec.IdentityKey)
	st.mu.Lock()
	st.recs[rec.IdentityKey] = rec
	st.mu.Unlock()
	return nil
}

func (s *Store) Delete(ctx context.Context, identityKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	st := s.stripe(identityKey)
	st.mu.Lock()
	delete(st.recs, identityKey)
	st.mu.Unlock()
	return nil
}

func (s *Store) Mutate(ctx context.Context, identityKey string, fn func(*entity.OTP) entity.Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	st := s.stripe(identityKey)
	st.mu.Lock()
	defer st.mu.Unlock()

	rec, ok := st.recs[identityKey]
	if !ok {
		return goerror.ErrNotFound
	}

	switch fn(&rec) {
	case entity.MutationUpdate:
		st.recs[identityKey] = rec
	case entity.MutationDelete:
		delete(st.recs, identityKey)
	}
	return nil
}

// Get returns a copy of the record. Used by tests and diagnostics.
func (s *Store) Get(_ context.Context, identityKey string) (entity.OTP, error) {
	st := s.stripe(identityKey)
	st.mu.Lock()
	defer st.mu.Unlock()

	rec, ok := st.recs[identityKey]
	if !ok {
		return entity.OTP{}, goerror.ErrNotFound
	}
	return rec, nil
}

func (s *Store) DeleteExpired(ctx context.Context, before time.Time, limit int) (int64, error) {
	var n int64
	for i := range s.stripes {
		if err := ctx.Err(); err != nil {
			return n, err
		}

		st := &s.stripes[i]
		st.mu.Lock()
		for k, rec := range st.recs {
			if limit > 0 && n >= int64(limit) {
				break
			}
			if !rec.ExpiresAt.After(before) {
				delete(st.recs, k)
				n++
			}
		}
		st.mu.Unlock()

		if limit > 0 && n >= int64(limit) {
			break
		}
	}
	return n, nil
}
