package orch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Coderoom/internal/adapters/directory"
	"github.com/dkeye/Coderoom/internal/app"
	"github.com/dkeye/Coderoom/internal/core"
	"github.com/dkeye/Coderoom/internal/domain"
	"github.com/dkeye/Coderoom/internal/protocol"
)

type testSignal struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (s *testSignal) TrySend(data core.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, data)
	return nil
}

func (s *testSignal) Close() {}

// received decodes everything the connection got, in order.
func (s *testSignal) received(t *testing.T) []protocol.Envelope {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Envelope, 0, len(s.frames))
	for _, f := range s.frames {
		env, _, err := protocol.Decode(f)
		require.NoError(t, err)
		out = append(out, env)
	}
	return out
}

func (s *testSignal) lastOfType(t *testing.T, typ protocol.MsgType) (protocol.Envelope, bool) {
	t.Helper()
	var found protocol.Envelope
	ok := false
	for _, env := range s.received(t) {
		if env.Type == typ {
			found, ok = env, true
		}
	}
	return found, ok
}

type nopDocStore struct{}

func (nopDocStore) SaveDocument(context.Context, domain.RoomID, domain.Document) error {
	return nil
}

func (nopDocStore) LoadDocument(context.Context, domain.RoomID) (domain.Document, bool, error) {
	return domain.Document{}, false, nil
}

func newTestOrchestrator(dir core.Directory) *Orchestrator {
	return &Orchestrator{
		Registry:  app.NewRegistry(),
		Rooms:     app.NewRoomManager(50, nil),
		Relay:     app.Relay{},
		Docs:      app.NewDocSync(nopDocStore{}, time.Hour),
		Directory: dir,
		Policy:    app.SimplePolicy{},
	}
}

func connect(o *Orchestrator, sid core.ConnID) *testSignal {
	sig := &testSignal{}
	sess := core.NewMemberSession(&core.ActiveConnection{ID: sid}, sig)
	o.Registry.BindSession(sid, sess, func() {})
	return sig
}

func newTestDirectory() *directory.Static {
	dir := directory.NewStatic()
	dir.AddUser("tok-a", &domain.User{ID: "alice", Username: "alice"})
	dir.AddUser("tok-b", &domain.User{ID: "bob", Username: "bob"})
	dir.AddRoom("r1", "")
	dir.AddRoom("locked", "s3cret")
	return dir
}

func TestJoinWelcomeAndNotify(t *testing.T) {
	o := newTestOrchestrator(newTestDirectory())
	ctx := context.Background()

	sigA := connect(o, "a")
	o.Join(ctx, "a", &protocol.Join{Room: "r1", Token: "tok-a"})

	env, ok := sigA.lastOfType(t, protocol.TypeWelcome)
	require.True(t, ok, "joiner gets a welcome")
	msg, err := env.Decode()
	require.NoError(t, err)
	welcome := msg.(*protocol.Welcome)
	require.Equal(t, "a", welcome.You)
	require.Equal(t, "r1", welcome.Room)
	require.Len(t, welcome.Members, 1)

	sigB := connect(o, "b")
	o.Join(ctx, "b", &protocol.Join{Room: "r1", Token: "tok-b"})

	joined, ok := sigA.lastOfType(t, protocol.TypeMemberJoined)
	require.True(t, ok, "existing member is told about the join")
	jm, err := joined.Decode()
	require.NoError(t, err)
	require.Equal(t, "b", jm.(*protocol.MemberJoined).Member.ConnID)

	_, ok = sigA.lastOfType(t, protocol.TypePresence)
	require.True(t, ok, "presence update follows the join")

	env, ok = sigB.lastOfType(t, protocol.TypeWelcome)
	require.True(t, ok)
	msg, err = env.Decode()
	require.NoError(t, err)
	require.Len(t, msg.(*protocol.Welcome).Members, 2, "second joiner sees both connections")
}

func TestJoinBadToken(t *testing.T) {
	o := newTestOrchestrator(newTestDirectory())
	sig := connect(o, "a")

	o.Join(context.Background(), "a", &protocol.Join{Room: "r1", Token: "forged"})

	env, ok := sig.lastOfType(t, protocol.TypeError)
	require.True(t, ok)
	msg, err := env.Decode()
	require.NoError(t, err)
	require.Equal(t, "bad_token", msg.(*protocol.Error).Code)

	_, ok = o.Rooms.Get("r1")
	require.False(t, ok, "rejected join never creates the room")
}

func TestJoinRoomNotFound(t *testing.T) {
	o := newTestOrchestrator(newTestDirectory())
	sig := connect(o, "a")

	o.Join(context.Background(), "a", &protocol.Join{Room: "nope", Token: "tok-a"})

	env, ok := sig.lastOfType(t, protocol.TypeError)
	require.True(t, ok)
	msg, err := env.Decode()
	require.NoError(t, err)
	require.Equal(t, "room_not_found", msg.(*protocol.Error).Code)
}

func TestJoinPassword(t *testing.T) {
	o := newTestOrchestrator(newTestDirectory())
	ctx := context.Background()

	sig := connect(o, "a")
	o.Join(ctx, "a", &protocol.Join{Room: "locked", Token: "tok-a"})
	env, ok := sig.lastOfType(t, protocol.TypeError)
	require.True(t, ok)
	msg, err := env.Decode()
	require.NoError(t, err)
	require.Equal(t, "password_required", msg.(*protocol.Error).Code)

	o.Join(ctx, "a", &protocol.Join{Room: "locked", Token: "tok-a", Password: "wrong"})
	env, _ = sig.lastOfType(t, protocol.TypeError)
	msg, err = env.Decode()
	require.NoError(t, err)
	require.Equal(t, "access_denied", msg.(*protocol.Error).Code)

	o.Join(ctx, "a", &protocol.Join{Room: "locked", Token: "tok-a", Password: "s3cret"})
	_, ok = sig.lastOfType(t, protocol.TypeWelcome)
	require.True(t, ok, "correct password admits")
}

func TestLeaveCascadeAndEviction(t *testing.T) {
	o := newTestOrchestrator(newTestDirectory())
	ctx := context.Background()

	sigA := connect(o, "a")
	connect(o, "b")
	o.Join(ctx, "a", &protocol.Join{Room: "r1", Token: "tok-a"})
	o.Join(ctx, "b", &protocol.Join{Room: "r1", Token: "tok-b"})

	o.Leave("b")

	env, ok := sigA.lastOfType(t, protocol.TypeMemberLeft)
	require.True(t, ok)
	msg, err := env.Decode()
	require.NoError(t, err)
	left := msg.(*protocol.MemberLeft)
	require.Equal(t, "b", left.ConnID)
	require.Equal(t, domain.UserID("bob"), left.User)

	room, ok := o.Rooms.Get("r1")
	require.True(t, ok)
	require.Equal(t, 1, room.ConnCount())

	o.Leave("a")
	_, ok = o.Rooms.Get("r1")
	require.False(t, ok, "empty room is evicted")
}

func TestRouteStampsSender(t *testing.T) {
	o := newTestOrchestrator(newTestDirectory())
	ctx := context.Background()

	connect(o, "a")
	sigB := connect(o, "b")
	o.Join(ctx, "a", &protocol.Join{Room: "r1", Token: "tok-a"})
	o.Join(ctx, "b", &protocol.Join{Room: "r1", Token: "tok-b"})

	env, err := protocol.New(protocol.TypeOffer, protocol.Offer{SDP: "v=0"})
	require.NoError(t, err)
	env.Sender = "spoofed"
	env.Target = "b"
	o.Route("a", env)

	got, ok := sigB.lastOfType(t, protocol.TypeOffer)
	require.True(t, ok)
	require.Equal(t, "a", got.Sender, "sender is stamped server-side")
	require.Equal(t, "b", got.Target)
}

func TestRouteUnreachableTarget(t *testing.T) {
	o := newTestOrchestrator(newTestDirectory())
	ctx := context.Background()

	sigA := connect(o, "a")
	o.Join(ctx, "a", &protocol.Join{Room: "r1", Token: "tok-a"})

	env, err := protocol.New(protocol.TypeCandidate, protocol.Candidate{Candidate: "candidate:1"})
	require.NoError(t, err)
	env.Target = "gone"
	o.Route("a", env)

	got, ok := sigA.lastOfType(t, protocol.TypeError)
	require.True(t, ok)
	msg, err := got.Decode()
	require.NoError(t, err)
	require.Equal(t, "target_unreachable", msg.(*protocol.Error).Code)
}

func TestChatFanout(t *testing.T) {
	o := newTestOrchestrator(newTestDirectory())
	ctx := context.Background()

	sigA := connect(o, "a")
	sigB := connect(o, "b")
	o.Join(ctx, "a", &protocol.Join{Room: "r1", Token: "tok-a"})
	o.Join(ctx, "b", &protocol.Join{Room: "r1", Token: "tok-b"})

	o.Chat(ctx, "a", &protocol.Chat{Content: "hello"})

	for _, sig := range []*testSignal{sigA, sigB} {
		env, ok := sig.lastOfType(t, protocol.TypeChatMessage)
		require.True(t, ok, "chat reaches everyone including the sender")
		msg, err := env.Decode()
		require.NoError(t, err)
		cb := msg.(*protocol.ChatBroadcast)
		require.Equal(t, "hello", cb.Message.Content)
		require.Equal(t, domain.UserID("alice"), cb.Message.Sender)
		require.NotEmpty(t, cb.Message.ID, "server assigns the id")
	}

	room, _ := o.Rooms.Get("r1")
	require.Len(t, room.RecentMessages(), 1)
}

func TestJoinSwitchesRoom(t *testing.T) {
	dir := newTestDirectory()
	dir.AddRoom("r2", "")
	o := newTestOrchestrator(dir)
	ctx := context.Background()

	connect(o, "a")
	connect(o, "b")
	o.Join(ctx, "a", &protocol.Join{Room: "r1", Token: "tok-a"})
	o.Join(ctx, "b", &protocol.Join{Room: "r1", Token: "tok-b"})

	o.Join(ctx, "a", &protocol.Join{Room: "r2", Token: "tok-a"})

	r1, ok := o.Rooms.Get("r1")
	require.True(t, ok)
	require.Equal(t, 1, r1.ConnCount(), "a left r1 on joining r2")
	r2, ok := o.Rooms.Get("r2")
	require.True(t, ok)
	require.Equal(t, 1, r2.ConnCount())
}

func TestRouteBeforeJoinRejected(t *testing.T) {
	o := newTestOrchestrator(newTestDirectory())
	sig := connect(o, "a")

	env, err := protocol.New(protocol.TypeOffer, protocol.Offer{SDP: "v=0"})
	require.NoError(t, err)
	env.Target = "b"
	o.Route("a", env)

	got, ok := sig.lastOfType(t, protocol.TypeError)
	require.True(t, ok)
	msg, err := got.Decode()
	require.NoError(t, err)
	require.Equal(t, "not_in_room", msg.(*protocol.Error).Code)
}
