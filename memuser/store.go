package memuser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/vigil-auth/vigil"
	"github.com/vigil-auth/vigil/password"
)

// ErrDuplicateUser is returned when an added user collides with an
// existing uuid, login, or serial number.
var ErrDuplicateUser = errors.New("duplicate user")

// Store holds users and roles in mutex-guarded maps.
type Store struct {
	hasher *password.Hasher

	mu       sync.RWMutex
	byUUID   map[string]vigil.User
	uuidFor  map[string]string // login or serial -> uuid
	rolePerm map[string][]string
}

// New creates a store with default Argon2id parameters.
func New() (*Store, error) {
	hasher, err := password.NewHasher(password.DefaultParams())
	if err != nil {
		return nil, err
	}
	return NewWithHasher(hasher), nil
}

// NewWithHasher creates a store around an existing hasher, letting
// tests use cheaper cost parameters.
func NewWithHasher(hasher *password.Hasher) *Store {
	return &Store{
		hasher:   hasher,
		byUUID:   make(map[string]vigil.User),
		uuidFor:  make(map[string]string),
		rolePerm: make(map[string][]string),
	}
}

// AddRole registers a role and the permissions it grants.
func (s *Store) AddRole(name string, permissions []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolePerm[name] = append([]string(nil), permissions...)
}

// AddUser stores the user with the plaintext password hashed. A blank
// uuid is assigned. The stored record is indexed by login and, when
// present, by serial number.
func (s *Store) AddUser(user vigil.User, plaintext string) (vigil.User, error) {
	if user.Login == "" {
		return vigil.User{}, errors.New("user login required")
	}
	if user.UUID == "" {
		user.UUID = uuid.NewString()
	}

	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return vigil.User{}, fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = hash

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byUUID[user.UUID]; exists {
		return vigil.User{}, ErrDuplicateUser
	}
	if _, exists := s.uuidFor[user.Login]; exists {
		return vigil.User{}, ErrDuplicateUser
	}
	if user.SerialNumber != "" {
		if _, exists := s.uuidFor[user.SerialNumber]; exists {
			return vigil.User{}, ErrDuplicateUser
		}
	}

	s.byUUID[user.UUID] = user
	s.uuidFor[user.Login] = user.UUID
	if user.SerialNumber != "" {
		s.uuidFor[user.SerialNumber] = user.UUID
	}

	return user, nil
}

func (s *Store) UserBySerial(_ context.Context, serial string) (*vigil.User, error) {
	if serial == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.uuidFor[serial]
	if !ok {
		return nil, nil
	}
	user := s.byUUID[id]
	if user.SerialNumber != serial {
		// The key resolved through a login, not a serial.
		return nil, nil
	}
	return &user, nil
}

func (s *Store) UserByLoginAndPassword(_ context.Context, login, plaintext string) (*vigil.User, error) {
	s.mu.RLock()
	id, ok := s.uuidFor[login]
	var user vigil.User
	if ok {
		user = s.byUUID[id]
	}
	s.mu.RUnlock()

	if !ok || user.Login != login {
		return nil, nil
	}

	match, err := s.hasher.Verify(plaintext, user.PasswordHash)
	if err != nil || !match {
		return nil, nil
	}
	return &user, nil
}

func (s *Store) UserByUUID(_ context.Context, id string) (*vigil.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byUUID[id]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

func (s *Store) UUIDForKey(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uuidFor[key], nil
}

func (s *Store) PermissionsFor(_ context.Context, roleNames []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, role := range roleNames {
		for _, perm := range s.rolePerm[role] {
			if perm == "" || seen[perm] {
				continue
			}
			seen[perm] = true
			out = append(out, perm)
		}
	}
	return out, nil
}

func (s *Store) SetLocked(_ context.Context, key string, locked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.uuidFor[key]
	if !ok {
		// Locking a nonexistent account is not an error; the login
		// path locks on a best-effort identity key.
		return nil
	}
	user := s.byUUID[id]
	user.Locked = locked
	s.byUUID[id] = user
	return nil
}

func (s *Store) IsLocked(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byUUID[id].Locked, nil
}

var _ vigil.UserStore = (*Store)(nil)
