package client

import (
	"errors"

	"github.com/dkeye/Coderoom/internal/protocol"
)

// MediaState is the coarse transport health reported by the
// negotiation primitive.
type MediaState int

const (
	MediaConnecting MediaState = iota
	MediaConnected
	MediaDisconnected
	MediaFailed
	MediaClosed
)

func (s MediaState) String() string {
	switch s {
	case MediaConnecting:
		return "connecting"
	case MediaConnected:
		return "connected"
	case MediaDisconnected:
		return "disconnected"
	case MediaFailed:
		return "failed"
	case MediaClosed:
		return "closed"
	}
	return "unknown"
}

// ErrRestartUnsupported is returned by transports that can only
// restart ICE through a renegotiation offer.
var ErrRestartUnsupported = errors.New("ice restart not supported without renegotiation")

// MediaSession is the external media-negotiation primitive a PeerLink
// drives. CreateOffer and CreateAnswer also set the local description,
// mirroring the usual offer/answer flow.
type MediaSession interface {
	CreateOffer(iceRestart bool) (sdp string, err error)
	CreateAnswer() (sdp string, err error)
	SetRemoteOffer(sdp string) error
	SetRemoteAnswer(sdp string) error
	AddICECandidate(c protocol.Candidate) error
	RestartICE() error
	OnICECandidate(func(protocol.Candidate))
	OnStateChange(func(MediaState))
	Close()
}

// MediaFactory builds one MediaSession per peer link.
type MediaFactory func() (MediaSession, error)

// Signaler sends control messages toward the relay.
type Signaler interface {
	Send(env protocol.Envelope) error
}
