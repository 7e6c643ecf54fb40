// Package directory provides implementations of the external Identity
// & Room Directory service contract.
package directory

import (
	"context"
	"sync"

	"github.com/dkeye/Coderoom/internal/core"
	"github.com/dkeye/Coderoom/internal/domain"
)

type roomEntry struct {
	password string
}

// Static is an in-memory directory. With AllowGuests and OpenRooms set
// it lets the server run standalone: unknown tokens mint a guest
// identity and any room id exists. Tests register users and rooms
// explicitly.
type Static struct {
	AllowGuests bool
	OpenRooms   bool

	mu    sync.RWMutex
	users map[string]*domain.User
	rooms map[domain.RoomID]roomEntry
}

func NewStatic() *Static {
	return &Static{
		users: make(map[string]*domain.User),
		rooms: make(map[domain.RoomID]roomEntry),
	}
}

// NewOpen returns a directory suitable for a standalone deployment.
func NewOpen() *Static {
	s := NewStatic()
	s.AllowGuests = true
	s.OpenRooms = true
	return s
}

func (s *Static) AddUser(token string, user *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[token] = user
}

func (s *Static) AddRoom(id domain.RoomID, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[id] = roomEntry{password: password}
}

func (s *Static) ResolveIdentity(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, core.ErrBadToken
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[token]; ok {
		return u, nil
	}
	if !s.AllowGuests {
		return nil, core.ErrBadToken
	}
	// Guest identity is keyed by token so reconnects and extra tabs
	// share one UserID.
	u := &domain.User{ID: domain.UserID(token), Username: "guest"}
	s.users[token] = u
	return u, nil
}

func (s *Static) RoomExists(ctx context.Context, id domain.RoomID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.rooms[id]; ok {
		return true, nil
	}
	return s.OpenRooms, nil
}

func (s *Static) CheckAccess(ctx context.Context, id domain.RoomID, user *domain.User, password string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.rooms[id]
	if !ok {
		if s.OpenRooms {
			return nil
		}
		return core.ErrRoomNotFound
	}
	if entry.password != "" && entry.password != password {
		return core.ErrAccessDenied
	}
	return nil
}
