package client

import (
	"sync"
	"time"

	"github.com/dkeye/Coderoom/internal/protocol"
	"github.com/rs/zerolog/log"
)

type MeshConfig struct {
	Signaler   Signaler
	Factory    MediaFactory
	Watchdog   time.Duration
	MaxRetries int
	OnLink     func(remote string, s LinkState)
}

// Mesh maintains exactly one PeerLink per remote connection in the
// room. Membership events and routed signaling both funnel through
// HandleMessage; the mesh reconciles its link set against whatever the
// relay reports.
type Mesh struct {
	cfg MeshConfig

	mu     sync.Mutex
	local  string
	room   string
	links  map[string]*PeerLink
	closed bool
}

func NewMesh(cfg MeshConfig) *Mesh {
	return &Mesh{
		cfg:   cfg,
		links: make(map[string]*PeerLink),
	}
}

// Local returns the connection id assigned by the relay, empty before
// the welcome arrives.
func (m *Mesh) Local() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.local
}

// LinkStates snapshots the current per-remote states.
func (m *Mesh) LinkStates() map[string]LinkState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]LinkState, len(m.links))
	for id, l := range m.links {
		out[id] = l.State()
	}
	return out
}

// HandleMessage reacts to one decoded relay message. Unrelated message
// types are ignored so the caller can feed it the full inbound stream.
func (m *Mesh) HandleMessage(env protocol.Envelope, msg protocol.Message) {
	switch p := msg.(type) {
	case *protocol.Welcome:
		m.mu.Lock()
		m.local = p.You
		m.room = p.Room
		m.mu.Unlock()
		m.reconcile(p.Members)
	case *protocol.MemberJoined:
		if l := m.ensureLink(p.Member.ConnID); l != nil {
			l.Start()
		}
	case *protocol.MemberLeft:
		m.dropLink(p.ConnID)
	case *protocol.PresenceChanged:
		m.reconcile(p.Members)
	case *protocol.Offer:
		// The awaiting side may see the offer before any membership
		// event for the sender.
		if l := m.ensureLink(env.Sender); l != nil {
			l.Start()
			l.HandleOffer(p.SDP)
		}
	case *protocol.Answer:
		if l := m.link(env.Sender); l != nil {
			l.HandleAnswer(p.SDP)
		}
	case *protocol.Candidate:
		if l := m.ensureLink(env.Sender); l != nil {
			l.Start()
			l.HandleCandidate(*p)
		}
	case *protocol.RetryRequest:
		if l := m.link(env.Sender); l != nil {
			l.HandleRetryRequest()
		}
	case *protocol.MediaReady:
		if l := m.link(env.Sender); l != nil {
			l.HandleMediaReady()
		}
	}
}

// Close tears down every link.
func (m *Mesh) Close() {
	m.mu.Lock()
	m.closed = true
	links := make([]*PeerLink, 0, len(m.links))
	for _, l := range m.links {
		links = append(links, l)
	}
	m.links = make(map[string]*PeerLink)
	m.mu.Unlock()
	for _, l := range links {
		l.Close()
	}
}

// reconcile aligns the link set with the reported membership: missing
// links are created and started, links whose remote is gone are torn
// down.
func (m *Mesh) reconcile(members []protocol.MemberInfo) {
	alive := make(map[string]bool, len(members))
	var started []*PeerLink
	var dropped []*PeerLink

	m.mu.Lock()
	if m.closed || m.local == "" {
		m.mu.Unlock()
		return
	}
	for _, mem := range members {
		if mem.ConnID == m.local {
			continue
		}
		alive[mem.ConnID] = true
		if _, ok := m.links[mem.ConnID]; ok {
			continue
		}
		l := m.newLinkLocked(mem.ConnID)
		if l != nil {
			started = append(started, l)
		}
	}
	for id, l := range m.links {
		if !alive[id] {
			dropped = append(dropped, l)
			delete(m.links, id)
		}
	}
	m.mu.Unlock()

	for _, l := range started {
		l.Start()
	}
	for _, l := range dropped {
		l.Close()
	}
}

func (m *Mesh) link(remote string) *PeerLink {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.links[remote]
}

func (m *Mesh) ensureLink(remote string) *PeerLink {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || remote == "" || remote == m.local {
		return nil
	}
	if l, ok := m.links[remote]; ok {
		return l
	}
	return m.newLinkLocked(remote)
}

func (m *Mesh) newLinkLocked(remote string) *PeerLink {
	media, err := m.cfg.Factory()
	if err != nil {
		log.Error().Err(err).Str("module", "client.mesh").Str("remote", remote).Msg("media session")
		return nil
	}
	l := NewPeerLink(LinkConfig{
		Local:      m.local,
		Remote:     remote,
		Room:       m.room,
		Signaler:   m.cfg.Signaler,
		Media:      media,
		Watchdog:   m.cfg.Watchdog,
		MaxRetries: m.cfg.MaxRetries,
		OnState:    m.cfg.OnLink,
	})
	m.links[remote] = l
	return l
}

func (m *Mesh) dropLink(remote string) {
	m.mu.Lock()
	l, ok := m.links[remote]
	if ok {
		delete(m.links, remote)
	}
	m.mu.Unlock()
	if ok {
		l.Close()
		log.Debug().Str("module", "client.mesh").Str("remote", remote).Msg("link torn down")
	}
}
