package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryThreadStore is an in-process thread store for development and tests.
type MemoryThreadStore struct {
	mu      sync.Mutex
	threads map[string]Thread
}

func NewMemoryThreadStore() *MemoryThreadStore {
	return &MemoryThreadStore{threads: make(map[string]Thread)}
}

func (s *MemoryThreadStore) ResolveThread(_ context.Context, tenantID, contactPhone string, now time.Time) (Thread, error) {
	if tenantID == "" || contactPhone == "" {
		return Thread{}, errors.New("conversation: tenant and contact phone required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *Thread
	for id := range s.threads {
		th := s.threads[id]
		if th.TenantID != tenantID || th.ContactPhone != contactPhone {
			continue
		}
		if latest == nil || th.LastActivityAt.After(latest.LastActivityAt) {
			latest = &th
		}
	}
	if latest != nil {
		latest.LastActivityAt = now.UTC()
		s.threads[latest.ID] = *latest
		return *latest, nil
	}

	th := Thread{ID: uuid.NewString(), TenantID: tenantID, ContactPhone: contactPhone, CreatedAt: now.UTC(), LastActivityAt: now.UTC()}
	s.threads[th.ID] = th
	return th, nil
}

func (s *MemoryThreadStore) Thread(_ context.Context, id string) (Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	th, ok := s.threads[id]
	if !ok {
		return Thread{}, fmt.Errorf("conversation: unknown thread %s", id)
	}
	return th, nil
}
