package state

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStoreConfig controls idle eviction of in-memory sessions. A zero
// IdleTTL disables eviction.
type MemoryStoreConfig struct {
	IdleTTL       time.Duration `envconfig:"IDLE_TTL" split_words:"true" default:"1h"`
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" split_words:"true" default:"5m"`
}

// MemoryStore keeps sessions in process memory. Suitable for single-node
// deployments and tests; a restart drops all conversations.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	idleTTL time.Duration
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

func NewMemoryStore(cfg MemoryStoreConfig) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]*Session),
		idleTTL:  cfg.IdleTTL,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	if cfg.IdleTTL > 0 {
		interval := cfg.SweepInterval
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		go s.sweep(interval)
	}
	return s
}

func (s *MemoryStore) Load(_ context.Context, id string) (*Session, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrSessionNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.expired(session) {
		return nil, ErrSessionNotFound
	}
	return session.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, session *Session) error {
	if err := session.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ID] = session.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

// Close stops the eviction sweeper.
func (s *MemoryStore) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *MemoryStore) expired(session *Session) bool {
	return s.idleTTL > 0 && s.now().Sub(session.UpdatedAt) > s.idleTTL
}

func (s *MemoryStore) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			for id, session := range s.sessions {
				if s.expired(session) {
					delete(s.sessions, id)
				}
			}
			s.mu.Unlock()
		}
	}
}
