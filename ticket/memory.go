package ticket

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// MemoryStore is the single-instance Store: a mutex-guarded map. Tickets
// issued here are only visible to this process; run the Redis store when
// several instances sit behind a load balancer.
type MemoryStore struct {
	ttl     time.Duration
	mu      sync.Mutex
	tickets map[string]*Ticket
	nowTime func() time.Time
}

var _ Store = (*MemoryStore)(nil)

type MemoryStoreOption func(*MemoryStore)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.nowTime = nowFunc
	}
}

func NewMemoryStore(ttl time.Duration, options ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		ttl:     ttl,
		tickets: make(map[string]*Ticket),
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Issue(principalID, service string) (string, error) {
	now := s.nowTime()
	token, err := newToken(now)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.tickets[token] = &Ticket{
		Token:       token,
		PrincipalID: principalID,
		Service:     service,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.ttl),
	}
	s.mu.Unlock()
	return token, nil
}

// ValidateAndConsume deletes the record while still holding the lock, so a
// second concurrent call with the same token can never observe it. Expiry
// is re-checked here; the background sweep is only memory hygiene.
func (s *MemoryStore) ValidateAndConsume(token, service string) (string, error) {
	s.mu.Lock()
	t, ok := s.tickets[token]
	if ok {
		delete(s.tickets, token)
	}
	s.mu.Unlock()

	if !ok {
		return "", ErrTicketInvalid
	}
	if t.Expired(s.nowTime()) {
		return "", ErrTicketInvalid
	}
	if t.Service != service {
		return "", ErrTicketInvalid
	}
	return t.PrincipalID, nil
}

func (s *MemoryStore) Invalidate(token string) (bool, error) {
	s.mu.Lock()
	_, ok := s.tickets[token]
	if ok {
		delete(s.tickets, token)
	}
	s.mu.Unlock()
	return ok, nil
}

// RemoveExpired drops tickets past their TTL and reports how many went.
func (s *MemoryStore) RemoveExpired() int {
	now := s.nowTime()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, t := range s.tickets {
		if t.Expired(now) {
			delete(s.tickets, token)
			removed++
		}
	}
	return removed
}

// StartSweeper runs RemoveExpired on a fixed period until stopCh closes.
// One periodic scan, not one timer per ticket.
func (s *MemoryStore) StartSweeper(period time.Duration, stopCh <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if removed := s.RemoveExpired(); removed > 0 {
					log.Debug().Int("removed", removed).Msg("swept expired service tickets")
				}
			case <-stopCh:
				return
			}
		}
	}()
}

// Len reports the number of live records, for tests and metrics.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickets)
}
