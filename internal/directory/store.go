// Package directory is the in-memory user and thread registry behind the
// chat endpoints. Durability beyond the process lifetime is intentionally
// out of scope; the transport is the source of truth for messages.
package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// UserRole separates the humans in the roster from the assistant profile.
type UserRole string

const (
	RoleHuman     UserRole = "human"
	RoleAssistant UserRole = "assistant"
)

// ThreadMode records whether a thread is human-to-human or human-to-ai.
type ThreadMode string

const (
	ModeUser ThreadMode = "user"
	ModeAI   ThreadMode = "ai"
)

// User is one directory entry. TransportIdentity is empty until an
// identity is minted for the user on first use.
type User struct {
	ID                string    `json:"id"`
	DisplayName       string    `json:"displayName"`
	Role              UserRole  `json:"role"`
	AccentColor       string    `json:"accentColor"`
	TransportIdentity string    `json:"transportIdentity,omitempty"`
	Presence          string    `json:"presence"`
	CreatedAt         time.Time `json:"createdAt"`
	LastSeenAt        time.Time `json:"lastSeenAt"`
}

// Thread is the directory record for one transport thread.
type Thread struct {
	ID                 string     `json:"id"`
	TransportThreadID  string     `json:"transportThreadId"`
	Mode               ThreadMode `json:"mode"`
	Topic              string     `json:"topic"`
	ParticipantIDs     []string   `json:"participantIds"`
	CreatedAt          time.Time  `json:"createdAt"`
	LastActivityAt     time.Time  `json:"lastActivityAt"`
	LastMessagePreview string     `json:"lastMessagePreview,omitempty"`
}

// ErrNotFound is returned for lookups of unknown users or threads.
var ErrNotFound = fmt.Errorf("directory: not found")

// Store is a mutex-guarded map store. Methods take a context for interface
// symmetry with a future backed store, but never block on it.
type Store struct {
	mu      sync.RWMutex
	users   map[string]User
	threads map[string]Thread
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		users:   make(map[string]User),
		threads: make(map[string]Thread),
	}
}

func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]User, 0, len(s.users))
	for _, u := range s.users {
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DisplayName < result[j].DisplayName })
	return result, nil
}

func (s *Store) ListHumanUsers(ctx context.Context) ([]User, error) {
	all, err := s.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	humans := make([]User, 0, len(all))
	for _, u := range all {
		if u.Role == RoleHuman {
			humans = append(humans, u)
		}
	}
	return humans, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return User{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return u, nil
}

func (s *Store) SaveUser(ctx context.Context, user User) error {
	if user.ID == "" {
		return fmt.Errorf("directory: user id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
	return nil
}

func (s *Store) ListThreads(ctx context.Context) ([]Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]Thread, 0, len(s.threads))
	for _, t := range s.threads {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].LastActivityAt.After(result[j].LastActivityAt) })
	return result, nil
}

func (s *Store) ListThreadsForUser(ctx context.Context, userID string) ([]Thread, error) {
	all, err := s.ListThreads(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]Thread, 0, len(all))
	for _, t := range all {
		for _, p := range t.ParticipantIDs {
			if p == userID {
				result = append(result, t)
				break
			}
		}
	}
	return result, nil
}

func (s *Store) GetThread(ctx context.Context, threadID string) (Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[threadID]
	if !ok {
		return Thread{}, fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}
	return t, nil
}

// GetThreadByParticipants finds the thread whose participant set matches
// exactly, ignoring order.
func (s *Store) GetThreadByParticipants(ctx context.Context, participantIDs []string) (Thread, error) {
	want := participantKey(participantIDs)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.threads {
		if participantKey(t.ParticipantIDs) == want {
			return t, nil
		}
	}
	return Thread{}, fmt.Errorf("thread for participants: %w", ErrNotFound)
}

func (s *Store) SaveThread(ctx context.Context, thread Thread) error {
	if thread.ID == "" {
		return fmt.Errorf("directory: thread id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[thread.ID] = thread
	return nil
}

func participantKey(ids []string) string {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)
	key := ""
	for _, id := range sorted {
		key += id + "\x00"
	}
	return key
}
