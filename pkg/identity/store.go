// Package identity manages the enrolled-user and blocklist stores.
//
// Both stores are plain JSON files under the base directory
// (users.json and blocked_users.json), loaded once at startup and
// rewritten atomically on every mutation. Reads are served from the
// in-memory snapshot.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/maxpark/accessd/internal/atomicfile"
	"github.com/maxpark/accessd/internal/logger"
)

// Sentinel errors returned by store mutations.
var (
	ErrUserNotFound  = errors.New("user not found")
	ErrInvalidCard   = errors.New("card number must be a non-empty decimal string")
	ErrMissingFields = errors.New("card number, id and name are required")
)

const (
	usersFile   = "users.json"
	blockedFile = "blocked_users.json"
)

// User is an enrolled cardholder.
type User struct {
	CardNumber       string `json:"card_number"`
	ID               string `json:"id"`
	Name             string `json:"name"`
	RefID            string `json:"ref_id,omitempty"`
	PrivacyProtected bool   `json:"privacy_protected,omitempty"`
}

// UserInfo is the API view of a user, with the blocked flag joined in
// from the blocklist.
type UserInfo struct {
	User
	Blocked bool `json:"blocked"`
}

// Store holds the users and blocklist with their disk backing.
//
// The blocklist is keyed by card number and is independent of
// enrollment: unknown cards can be blocked too, and deleting a user
// does not unblock the card.
type Store struct {
	mu      sync.RWMutex
	dir     string
	users   map[string]User // card number -> user
	blocked map[string]bool // card number -> true
}

// Open loads both stores from dir, starting empty when a file is
// missing.
func Open(dir string) (*Store, error) {
	s := &Store{
		dir:     dir,
		users:   make(map[string]User),
		blocked: make(map[string]bool),
	}

	if err := loadJSON(s.usersPath(), &s.users); err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	if err := loadJSON(s.blockedPath(), &s.blocked); err != nil {
		return nil, fmt.Errorf("load blocklist: %w", err)
	}

	logger.Info("identity store loaded",
		"users", len(s.users), "blocked", len(s.blocked))
	return s, nil
}

func (s *Store) usersPath() string   { return filepath.Join(s.dir, usersFile) }
func (s *Store) blockedPath() string { return filepath.Join(s.dir, blockedFile) }

// Get returns the user for card.
func (s *Store) Get(card string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[card]
	return u, ok
}

// IsBlocked reports whether card is on the blocklist.
func (s *Store) IsBlocked(card string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blocked[card]
}

// List returns all users sorted by name, each with its blocked flag.
func (s *Store) List() []UserInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]UserInfo, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, UserInfo{User: u, Blocked: s.blocked[u.CardNumber]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].CardNumber < out[j].CardNumber
	})
	return out
}

// Count returns the number of enrolled users.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// Add enrolls a user and persists the store. Re-enrolling a card
// replaces the existing entry.
func (s *Store) Add(u User) error {
	if err := validateUser(u); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.users[u.CardNumber]
	s.users[u.CardNumber] = u
	if err := atomicfile.WriteJSON(s.usersPath(), s.users, 0o644); err != nil {
		if existed {
			s.users[u.CardNumber] = prev
		} else {
			delete(s.users, u.CardNumber)
		}
		return fmt.Errorf("persist users: %w", err)
	}
	return nil
}

// Delete removes the user for card and persists the store. The card's
// blocklist entry, if any, is kept.
func (s *Store) Delete(card string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.users[card]
	if !exists {
		return ErrUserNotFound
	}
	delete(s.users, card)
	if err := atomicfile.WriteJSON(s.usersPath(), s.users, 0o644); err != nil {
		s.users[card] = prev
		return fmt.Errorf("persist users: %w", err)
	}
	return nil
}

// SetBlocked adds or removes card on the blocklist and persists it.
// Blocking is idempotent and does not require the card to be enrolled.
func (s *Store) SetBlocked(card string, blocked bool) error {
	if !validCard(card) {
		return ErrInvalidCard
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	was := s.blocked[card]
	if blocked {
		s.blocked[card] = true
	} else {
		delete(s.blocked, card)
	}
	if err := atomicfile.WriteJSON(s.blockedPath(), s.blocked, 0o644); err != nil {
		if was {
			s.blocked[card] = true
		} else {
			delete(s.blocked, card)
		}
		return fmt.Errorf("persist blocklist: %w", err)
	}
	return nil
}

// SetPrivacy toggles the privacy flag for card and persists the store.
// Admin re-verification happens at the API layer before this is called.
func (s *Store) SetPrivacy(card string, protected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, exists := s.users[card]
	if !exists {
		return ErrUserNotFound
	}
	prev := u.PrivacyProtected
	u.PrivacyProtected = protected
	s.users[card] = u
	if err := atomicfile.WriteJSON(s.usersPath(), s.users, 0o644); err != nil {
		u.PrivacyProtected = prev
		s.users[card] = u
		return fmt.Errorf("persist users: %w", err)
	}
	return nil
}

func validateUser(u User) error {
	if u.CardNumber == "" || u.ID == "" || u.Name == "" {
		return ErrMissingFields
	}
	if !validCard(u.CardNumber) {
		return ErrInvalidCard
	}
	return nil
}

func validCard(card string) bool {
	if card == "" {
		return false
	}
	for _, r := range card {
		if !strings.ContainsRune("0123456789", r) {
			return false
		}
	}
	return true
}

func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, v)
}
