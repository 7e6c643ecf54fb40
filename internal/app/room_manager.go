package app

import (
	"sync"

	"github.com/dkeye/Coderoom/internal/core"
	"github.com/dkeye/Coderoom/internal/domain"
)

type RoomManagerImpl struct {
	mu       sync.RWMutex
	rooms    map[domain.RoomID]core.RoomService
	chatCap  int
	onCreate func(core.RoomService)
}

// NewRoomManager builds a manager whose rooms keep at most chatCap
// chat messages. onCreate, if set, runs once per freshly created room
// (used to seed document and history from the store).
func NewRoomManager(chatCap int, onCreate func(core.RoomService)) core.RoomManager {
	return &RoomManagerImpl{
		rooms:    make(map[domain.RoomID]core.RoomService),
		chatCap:  chatCap,
		onCreate: onCreate,
	}
}

func (f *RoomManagerImpl) GetOrCreate(id domain.RoomID) core.RoomService {
	f.mu.RLock()
	room, ok := f.rooms[id]
	f.mu.RUnlock()
	if ok {
		return room
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok = f.rooms[id]; ok {
		return room
	}
	room = core.NewRoomService(&domain.Room{ID: id}, f.chatCap)
	if f.onCreate != nil {
		f.onCreate(room)
	}
	f.rooms[id] = room
	return room
}

func (f *RoomManagerImpl) Get(id domain.RoomID) (core.RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[id]
	return room, ok
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(f.rooms))
	for id, r := range f.rooms {
		out = append(out, core.RoomInfo{ID: id, ConnCount: r.ConnCount()})
	}
	return out
}

func (f *RoomManagerImpl) StopRoom(id domain.RoomID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, id)
}
