package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeDispatch(t *testing.T) {
	env, err := New(TypeJoin, Join{Room: "r1", Token: "tok"})
	require.NoError(t, err)
	env.Room = "r1"
	data, err := env.Encode()
	require.NoError(t, err)

	got, msg, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, TypeJoin, got.Type)

	join, ok := msg.(*Join)
	require.True(t, ok, "expected *Join, got %T", msg)
	require.Equal(t, "r1", join.Room)
	require.Equal(t, "tok", join.Token)
}

func TestDecodeEmptyPayload(t *testing.T) {
	for _, typ := range []MsgType{TypeLeave, TypeRetryRequest, TypePing, TypePong} {
		_, msg, err := Decode([]byte(`{"type":"` + string(typ) + `"}`))
		require.NoError(t, err, "type %s", typ)
		require.NotNil(t, msg)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	_, _, err := Decode([]byte(`{"type":"bogus"}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "bogus")
}

func TestDecodeMalformed(t *testing.T) {
	_, _, err := Decode([]byte(`{not json`))
	require.Error(t, err)
}

func TestRouted(t *testing.T) {
	routed := []MsgType{TypeOffer, TypeAnswer, TypeCandidate, TypeRetryRequest}
	for _, typ := range routed {
		require.True(t, Envelope{Type: typ}.Routed(), "%s should be routed", typ)
	}
	broadcast := []MsgType{TypeChat, TypeChatMessage, TypeDocumentEdit, TypeCursor, TypeMediaReady, TypePresence}
	for _, typ := range broadcast {
		require.False(t, Envelope{Type: typ}.Routed(), "%s should not be routed", typ)
	}
}

func TestCandidateRoundTrip(t *testing.T) {
	mid := "0"
	idx := uint16(1)
	env, err := New(TypeCandidate, Candidate{Candidate: "candidate:1 1 udp", SDPMid: &mid, SDPMLineIndex: &idx})
	require.NoError(t, err)
	data, err := env.Encode()
	require.NoError(t, err)

	_, msg, err := Decode(data)
	require.NoError(t, err)
	c := msg.(*Candidate)
	require.Equal(t, "candidate:1 1 udp", c.Candidate)
	require.NotNil(t, c.SDPMid)
	require.Equal(t, "0", *c.SDPMid)
	require.NotNil(t, c.SDPMLineIndex)
	require.Equal(t, uint16(1), *c.SDPMLineIndex)
}
