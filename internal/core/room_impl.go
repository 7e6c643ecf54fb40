package core

import (
	"sort"
	"sync"

	"github.com/dkeye/Coderoom/internal/domain"
	"github.com/dkeye/Coderoom/internal/protocol"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	room *domain.Room

	mu      sync.RWMutex
	bySID   map[ConnID]MemberSession
	history *chatHistory
	doc     domain.Document
}

func NewRoomService(room *domain.Room, chatCapacity int) RoomService {
	return &roomImpl{
		room:    room,
		bySID:   make(map[ConnID]MemberSession),
		history: newChatHistory(chatCapacity),
	}
}

func (r *roomImpl) Room() *domain.Room { return r.room }

func (r *roomImpl) ConnCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

func (r *roomImpl) AddConnection(sid ConnID, ms MemberSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySID[sid] = ms
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).
		Str("sid", string(sid)).Str("user", string(ms.Conn().User.ID)).Msg("connection added")
}

func (r *roomImpl) RemoveConnection(sid ConnID) (MemberSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.bySID[sid]
	if !ok {
		return nil, false
	}
	delete(r.bySID, sid)
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).
		Str("sid", string(sid)).Msg("connection removed")
	return ms, true
}

func (r *roomImpl) SetTrack(sid ConnID, kind string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.bySID[sid]
	if !ok {
		return
	}
	switch kind {
	case "audio":
		ms.Conn().Muted = !enabled
	case "video":
		ms.Conn().CameraOff = !enabled
	}
}

func memberInfo(ac *ActiveConnection) protocol.MemberInfo {
	return protocol.MemberInfo{
		ConnID:    string(ac.ID),
		User:      ac.User,
		JoinedAt:  ac.JoinedAt,
		Muted:     ac.Muted,
		CameraOff: ac.CameraOff,
	}
}

func (r *roomImpl) Members() []protocol.MemberInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.membersLocked()
}

func (r *roomImpl) membersLocked() []protocol.MemberInfo {
	out := make([]protocol.MemberInfo, 0, len(r.bySID))
	for _, ms := range r.bySID {
		out = append(out, memberInfo(ms.Conn()))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnID < out[j].ConnID })
	return out
}

// Presence keeps, per identity, only the most recently joined
// connection. Every live connection still takes part in the mesh; the
// collapsed list is a display view only.
func (r *roomImpl) Presence() []protocol.MemberInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.presenceLocked()
}

func (r *roomImpl) presenceLocked() []protocol.MemberInfo {
	latest := make(map[domain.UserID]*ActiveConnection, len(r.bySID))
	for _, ms := range r.bySID {
		ac := ms.Conn()
		if cur, ok := latest[ac.User.ID]; !ok || ac.JoinedAt.After(cur.JoinedAt) {
			latest[ac.User.ID] = ac
		}
	}
	out := make([]protocol.MemberInfo, 0, len(latest))
	for _, ac := range latest {
		out = append(out, memberInfo(ac))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnID < out[j].ConnID })
	return out
}

func (r *roomImpl) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{
		Members:  r.membersLocked(),
		Presence: r.presenceLocked(),
		Document: r.doc,
		Messages: r.history.snapshot(),
	}
}

func (r *roomImpl) Broadcast(from ConnID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for sid, ms := range r.bySID {
		if sid == from {
			continue
		}
		if err := ms.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, sid)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "core.room").Str("from", string(from)).
		Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) BroadcastAll(data Frame) PublishResult {
	return r.Broadcast("", data)
}

func (r *roomImpl) SendTo(sid ConnID, data Frame) error {
	r.mu.RLock()
	ms, ok := r.bySID[sid]
	r.mu.RUnlock()
	if !ok {
		return ErrUnreachable
	}
	return ms.Signal().TrySend(data)
}

func (r *roomImpl) AppendMessage(msg domain.ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history.append(msg)
}

func (r *roomImpl) RecentMessages() []domain.ChatMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.history.snapshot()
}

// SeedHistory loads persisted messages into the ring, oldest first.
func (r *roomImpl) SeedHistory(msgs []domain.ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history.seed(msgs)
}

func (r *roomImpl) SetDocument(doc domain.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc = doc
}

func (r *roomImpl) Document() domain.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.doc
}
