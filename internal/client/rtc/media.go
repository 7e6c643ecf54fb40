// Package rtc adapts a pion PeerConnection to the media-session
// contract driven by the peer link state machine.
package rtc

import (
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Coderoom/internal/client"
	"github.com/dkeye/Coderoom/internal/protocol"
)

type Media struct {
	pc *webrtc.PeerConnection
}

func DefaultConfig(stunServers []string) webrtc.Configuration {
	if len(stunServers) == 0 {
		stunServers = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stunServers}},
	}
}

// NewMedia builds a media session with recvonly audio and video
// transceivers, so negotiation succeeds before any local tracks are
// attached.
func NewMedia(cfg webrtc.Configuration) (*Media, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			pc.Close()
			return nil, err
		}
	}
	return &Media{pc: pc}, nil
}

// Factory returns a client.MediaFactory over a shared configuration.
func Factory(cfg webrtc.Configuration) client.MediaFactory {
	return func() (client.MediaSession, error) {
		return NewMedia(cfg)
	}
}

func (m *Media) CreateOffer(iceRestart bool) (string, error) {
	var opts *webrtc.OfferOptions
	if iceRestart {
		opts = &webrtc.OfferOptions{ICERestart: true}
	}
	offer, err := m.pc.CreateOffer(opts)
	if err != nil {
		return "", err
	}
	if err := m.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	return offer.SDP, nil
}

func (m *Media) CreateAnswer() (string, error) {
	answer, err := m.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := m.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	return answer.SDP, nil
}

func (m *Media) SetRemoteOffer(sdp string) error {
	return m.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  sdp,
	})
}

func (m *Media) SetRemoteAnswer(sdp string) error {
	return m.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	})
}

func (m *Media) AddICECandidate(c protocol.Candidate) error {
	return m.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	})
}

// RestartICE reports ErrRestartUnsupported: with pion the restart goes
// through a renegotiation offer carrying ICERestart, which the link
// initiator issues itself.
func (m *Media) RestartICE() error {
	return client.ErrRestartUnsupported
}

func (m *Media) OnICECandidate(fn func(protocol.Candidate)) {
	m.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		init := cand.ToJSON()
		fn(protocol.Candidate{
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		})
	})
}

func (m *Media) OnStateChange(fn func(client.MediaState)) {
	m.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Debug().Str("module", "client.rtc").Str("peer_connection_state", s.String()).Msg("peer state")
		switch s {
		case webrtc.PeerConnectionStateConnecting:
			fn(client.MediaConnecting)
		case webrtc.PeerConnectionStateConnected:
			fn(client.MediaConnected)
		case webrtc.PeerConnectionStateDisconnected:
			fn(client.MediaDisconnected)
		case webrtc.PeerConnectionStateFailed:
			fn(client.MediaFailed)
		case webrtc.PeerConnectionStateClosed:
			fn(client.MediaClosed)
		}
	})
}

// OnTrack exposes remote tracks to the application.
func (m *Media) OnTrack(fn func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	m.pc.OnTrack(fn)
}

// AddLocalTrack attaches a local static RTP track, for callers that
// publish media. Renegotiation is announced separately.
func (m *Media) AddLocalTrack(track *webrtc.TrackLocalStaticRTP) (*webrtc.RTPSender, error) {
	return m.pc.AddTrack(track)
}

func (m *Media) Close() {
	if err := m.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "client.rtc").Msg("close error")
	}
}
