package client

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Coderoom/internal/protocol"
)

// mediaTracker hands out fake media sessions and remembers them in
// creation order.
type mediaTracker struct {
	mu      sync.Mutex
	created []*fakeMedia
}

func (m *mediaTracker) factory() (MediaSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fm := &fakeMedia{}
	m.created = append(m.created, fm)
	return fm, nil
}

func (m *mediaTracker) all() []*fakeMedia {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*fakeMedia, len(m.created))
	copy(out, m.created)
	return out
}

func member(id string) protocol.MemberInfo {
	return protocol.MemberInfo{ConnID: id}
}

func welcome(t *testing.T, you string, members ...string) (protocol.Envelope, protocol.Message) {
	t.Helper()
	infos := make([]protocol.MemberInfo, len(members))
	for i, id := range members {
		infos[i] = member(id)
	}
	w := &protocol.Welcome{You: you, Room: "r1", Members: infos}
	env, err := protocol.New(protocol.TypeWelcome, w)
	require.NoError(t, err)
	return env, w
}

func newTestMesh(t *testing.T) (*Mesh, *mediaTracker, *fakeSignaler) {
	t.Helper()
	tracker := &mediaTracker{}
	sig := &fakeSignaler{}
	m := NewMesh(MeshConfig{
		Signaler:   sig,
		Factory:    tracker.factory,
		Watchdog:   time.Hour,
		MaxRetries: 3,
	})
	return m, tracker, sig
}

func TestMeshWelcomeBuildsLinkPerMember(t *testing.T) {
	m, tracker, sig := newTestMesh(t)

	env, msg := welcome(t, "b", "a", "b", "c")
	m.HandleMessage(env, msg)

	states := m.LinkStates()
	require.Len(t, states, 2, "one link per remote, none for self")
	require.Contains(t, states, "a")
	require.Contains(t, states, "c")
	require.Len(t, tracker.all(), 2)

	// b < c so we offer toward c; a < b so we wait for a.
	require.Equal(t, LinkNegotiating, states["c"])
	require.Equal(t, LinkAwaitingOffer, states["a"])
	offers := sig.ofType(protocol.TypeOffer)
	require.Len(t, offers, 1)
	require.Equal(t, "c", offers[0].Target)
}

func TestMeshMemberJoinedAndLeft(t *testing.T) {
	m, tracker, _ := newTestMesh(t)
	env, msg := welcome(t, "a", "a")
	m.HandleMessage(env, msg)
	require.Empty(t, m.LinkStates(), "alone in the room")

	jEnv, err := protocol.New(protocol.TypeMemberJoined, protocol.MemberJoined{Member: member("b")})
	require.NoError(t, err)
	jMsg, err := jEnv.Decode()
	require.NoError(t, err)
	m.HandleMessage(jEnv, jMsg)
	require.Len(t, m.LinkStates(), 1)

	lEnv, err := protocol.New(protocol.TypeMemberLeft, protocol.MemberLeft{ConnID: "b"})
	require.NoError(t, err)
	lMsg, err := lEnv.Decode()
	require.NoError(t, err)
	m.HandleMessage(lEnv, lMsg)
	require.Empty(t, m.LinkStates(), "departed member's link is torn down")
	require.True(t, tracker.all()[0].closed, "its transport is released")
}

func TestMeshReconcilesOnPresence(t *testing.T) {
	m, tracker, _ := newTestMesh(t)
	env, msg := welcome(t, "a", "a", "b", "c")
	m.HandleMessage(env, msg)
	require.Len(t, m.LinkStates(), 2)

	// Presence now reports c gone and d arrived.
	pEnv, err := protocol.New(protocol.TypePresence, protocol.PresenceChanged{
		Members: []protocol.MemberInfo{member("a"), member("b"), member("d")},
	})
	require.NoError(t, err)
	pMsg, err := pEnv.Decode()
	require.NoError(t, err)
	m.HandleMessage(pEnv, pMsg)

	states := m.LinkStates()
	require.Len(t, states, 2)
	require.Contains(t, states, "b")
	require.Contains(t, states, "d")
	require.NotContains(t, states, "c")

	closed := 0
	for _, fm := range tracker.all() {
		fm.mu.Lock()
		if fm.closed {
			closed++
		}
		fm.mu.Unlock()
	}
	require.Equal(t, 1, closed)
}

func TestMeshOfferFromUnknownPeerCreatesLink(t *testing.T) {
	m, tracker, sig := newTestMesh(t)
	env, msg := welcome(t, "b", "b")
	m.HandleMessage(env, msg)

	// The offer can outrun the membership event for its sender.
	oEnv, err := protocol.New(protocol.TypeOffer, protocol.Offer{SDP: "offer-sdp"})
	require.NoError(t, err)
	oEnv.Sender = "a"
	oMsg, err := oEnv.Decode()
	require.NoError(t, err)
	m.HandleMessage(oEnv, oMsg)

	require.Len(t, m.LinkStates(), 1)
	require.Len(t, tracker.all(), 1)
	require.Equal(t, []string{"offer-sdp"}, tracker.all()[0].remoteOffers)
	answers := sig.ofType(protocol.TypeAnswer)
	require.Len(t, answers, 1)
	require.Equal(t, "a", answers[0].Target)
}

func TestMeshIgnoresOwnEcho(t *testing.T) {
	m, tracker, _ := newTestMesh(t)
	env, msg := welcome(t, "a", "a")
	m.HandleMessage(env, msg)

	oEnv, err := protocol.New(protocol.TypeOffer, protocol.Offer{SDP: "x"})
	require.NoError(t, err)
	oEnv.Sender = "a"
	oMsg, err := oEnv.Decode()
	require.NoError(t, err)
	m.HandleMessage(oEnv, oMsg)

	require.Empty(t, m.LinkStates())
	require.Empty(t, tracker.all())
}

func TestMeshClose(t *testing.T) {
	m, tracker, _ := newTestMesh(t)
	env, msg := welcome(t, "a", "a", "b", "c")
	m.HandleMessage(env, msg)

	m.Close()
	require.Empty(t, m.LinkStates())
	for _, fm := range tracker.all() {
		fm.mu.Lock()
		require.True(t, fm.closed)
		fm.mu.Unlock()
	}
}

// meshRelay queues envelopes and delivers them to the target mesh, the
// way the server-side forwarder would, stamping the sender.
type meshRelay struct {
	mu     sync.Mutex
	queue  []protocol.Envelope
	meshes map[string]*Mesh
}

func newMeshRelay() *meshRelay {
	return &meshRelay{meshes: make(map[string]*Mesh)}
}

type relayPort struct {
	relay *meshRelay
	local string
}

func (p *relayPort) Send(env protocol.Envelope) error {
	env.Sender = p.local
	p.relay.mu.Lock()
	p.relay.queue = append(p.relay.queue, env)
	p.relay.mu.Unlock()
	return nil
}

func (r *meshRelay) pump(t *testing.T) {
	t.Helper()
	for {
		r.mu.Lock()
		if len(r.queue) == 0 {
			r.mu.Unlock()
			return
		}
		env := r.queue[0]
		r.queue = r.queue[1:]
		target := r.meshes[env.Target]
		r.mu.Unlock()

		if target == nil {
			continue
		}
		msg, err := env.Decode()
		require.NoError(t, err)
		target.HandleMessage(env, msg)
	}
}

func TestMeshPairwiseNegotiation(t *testing.T) {
	relay := newMeshRelay()
	ids := []string{"a", "b", "c"}
	trackers := make(map[string]*mediaTracker, len(ids))

	for _, id := range ids {
		tracker := &mediaTracker{}
		trackers[id] = tracker
		m := NewMesh(MeshConfig{
			Signaler:   &relayPort{relay: relay, local: id},
			Factory:    tracker.factory,
			Watchdog:   time.Hour,
			MaxRetries: 3,
		})
		relay.meshes[id] = m
	}

	// Everyone receives the same final membership snapshot.
	for _, id := range ids {
		env, msg := welcome(t, id, ids...)
		relay.meshes[id].HandleMessage(env, msg)
	}
	relay.pump(t)

	// Each pair negotiated exactly once: the lower id offered, the
	// higher id answered, the answer landed back at the initiator.
	for _, id := range ids {
		states := relay.meshes[id].LinkStates()
		require.Len(t, states, len(ids)-1, "mesh %s is fully linked", id)
	}

	totalOffers := 0
	for _, tracker := range trackers {
		for _, fm := range tracker.all() {
			offers, _, _ := fm.stats()
			totalOffers += offers
		}
	}
	require.Equal(t, 3, totalOffers, "one offer per unordered pair")

	answered := 0
	for _, tracker := range trackers {
		for _, fm := range tracker.all() {
			fm.mu.Lock()
			answered += len(fm.remoteAnswers)
			fm.mu.Unlock()
		}
	}
	require.Equal(t, 3, answered, "every offer got its answer back")

	// Candidates cross after the descriptions; they apply immediately.
	aMedia := trackers["a"].all()[0]
	aMedia.onICE(protocol.Candidate{Candidate: "cand-a"})
	relay.pump(t)

	appliedSomewhere := 0
	for _, id := range []string{"b", "c"} {
		for _, fm := range trackers[id].all() {
			appliedSomewhere += len(fm.applied())
		}
	}
	require.Equal(t, 1, appliedSomewhere, "the candidate reached exactly one peer")

	// Transport confirms: the whole mesh reports connected.
	for _, tracker := range trackers {
		for _, fm := range tracker.all() {
			fm.onState(MediaConnected)
		}
	}
	for _, id := range ids {
		for remote, st := range relay.meshes[id].LinkStates() {
			require.Equal(t, LinkConnected, st, "%s->%s", id, remote)
		}
	}
}
