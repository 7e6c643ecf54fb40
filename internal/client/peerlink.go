package client

import (
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Coderoom/internal/protocol"
	"github.com/rs/zerolog/log"
)

// LinkState is the negotiation state of one peer pair.
type LinkState int

const (
	LinkNew LinkState = iota
	LinkOffering
	LinkAwaitingOffer
	LinkNegotiating
	LinkConnected
	LinkDisconnected
	LinkFailed
)

func (s LinkState) String() string {
	switch s {
	case LinkNew:
		return "new"
	case LinkOffering:
		return "offering"
	case LinkAwaitingOffer:
		return "awaiting-offer"
	case LinkNegotiating:
		return "negotiating"
	case LinkConnected:
		return "connected"
	case LinkDisconnected:
		return "disconnected"
	case LinkFailed:
		return "failed"
	}
	return "unknown"
}

type LinkConfig struct {
	Local      string
	Remote     string
	Room       string
	Signaler   Signaler
	Media      MediaSession
	Watchdog   time.Duration
	MaxRetries int
	// OnState is notified of every transition. It must not call back
	// into the link.
	OnState func(remote string, s LinkState)
}

// PeerLink drives the negotiation state machine for one remote
// connection: offer/answer exchange, candidate buffering under
// reordering, watchdog-driven retries with a bounded budget.
type PeerLink struct {
	local, remote, room string
	sig                 Signaler
	media               MediaSession
	watchdogPeriod      time.Duration
	maxRetries          int
	onState             func(string, LinkState)

	mu            sync.Mutex
	state         LinkState
	sentOffer     bool
	remoteDescSet bool
	pending       []protocol.Candidate
	retries       int
	watchdog      *time.Timer
	closed        bool
	lastActivity  time.Time
}

func NewPeerLink(cfg LinkConfig) *PeerLink {
	l := &PeerLink{
		local:          cfg.Local,
		remote:         cfg.Remote,
		room:           cfg.Room,
		sig:            cfg.Signaler,
		media:          cfg.Media,
		watchdogPeriod: cfg.Watchdog,
		maxRetries:     cfg.MaxRetries,
		onState:        cfg.OnState,
		state:          LinkNew,
		lastActivity:   time.Now(),
	}
	cfg.Media.OnICECandidate(l.sendCandidate)
	cfg.Media.OnStateChange(l.onMediaState)
	return l
}

// Initiator reports whether the local side sends the first offer. The
// lexicographically lower connection id initiates, so both sides of a
// freshly discovered pair agree without glare.
func (l *PeerLink) Initiator() bool { return l.local < l.remote }

func (l *PeerLink) Remote() string { return l.remote }

func (l *PeerLink) State() LinkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Start kicks off negotiation according to the tie-break and arms the
// watchdog.
func (l *PeerLink) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.state != LinkNew {
		return
	}
	l.armWatchdogLocked(l.watchdogPeriod)
	if l.Initiator() {
		l.setStateLocked(LinkOffering)
		l.sendOfferLocked(false)
	} else {
		l.setStateLocked(LinkAwaitingOffer)
	}
}

// HandleOffer applies the remote offer, drains candidates buffered
// before it, and answers.
func (l *PeerLink) HandleOffer(sdp string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.state == LinkFailed {
		return
	}
	if err := l.media.SetRemoteOffer(sdp); err != nil {
		log.Error().Err(err).Str("module", "client.link").Str("remote", l.remote).Msg("apply offer")
		l.degradeLocked()
		return
	}
	l.remoteDescSet = true
	l.drainLocked()
	answer, err := l.media.CreateAnswer()
	if err != nil {
		log.Error().Err(err).Str("module", "client.link").Str("remote", l.remote).Msg("create answer")
		l.degradeLocked()
		return
	}
	l.sendLocked(protocol.TypeAnswer, protocol.Answer{SDP: answer})
	if l.state != LinkConnected {
		l.setStateLocked(LinkNegotiating)
	}
}

// HandleAnswer is only valid while negotiating with an offer in
// flight; anything else is a reordered or stale message and dropped.
func (l *PeerLink) HandleAnswer(sdp string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.state == LinkFailed {
		return
	}
	if !l.sentOffer || (l.state != LinkNegotiating && l.state != LinkConnected) {
		log.Warn().Str("module", "client.link").Str("remote", l.remote).
			Str("state", l.state.String()).Msg("answer in unexpected state, dropped")
		return
	}
	if err := l.media.SetRemoteAnswer(sdp); err != nil {
		log.Error().Err(err).Str("module", "client.link").Str("remote", l.remote).Msg("apply answer")
		l.degradeLocked()
		return
	}
	l.remoteDescSet = true
	l.drainLocked()
	// Connected is reached when the transport confirms, via OnStateChange.
}

// HandleCandidate applies the candidate if a remote description is in
// place, otherwise buffers it in arrival order. Candidates may
// legitimately precede the offer/answer they belong to.
func (l *PeerLink) HandleCandidate(c protocol.Candidate) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.state == LinkFailed {
		return
	}
	l.lastActivity = time.Now()
	if !l.remoteDescSet {
		l.pending = append(l.pending, c)
		return
	}
	if err := l.media.AddICECandidate(c); err != nil {
		log.Warn().Err(err).Str("module", "client.link").Str("remote", l.remote).Msg("add candidate")
	}
}

// drainLocked applies buffered candidates exactly once, in arrival
// order. The buffer is never reused afterwards.
func (l *PeerLink) drainLocked() {
	for _, c := range l.pending {
		if err := l.media.AddICECandidate(c); err != nil {
			log.Warn().Err(err).Str("module", "client.link").Str("remote", l.remote).Msg("add buffered candidate")
		}
	}
	l.pending = nil
}

// HandleRetryRequest restarts ICE locally; the tie-break initiator
// also issues a restart offer.
func (l *PeerLink) HandleRetryRequest() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.state == LinkFailed {
		return
	}
	if err := l.media.RestartICE(); err != nil && !errors.Is(err, ErrRestartUnsupported) {
		log.Warn().Err(err).Str("module", "client.link").Str("remote", l.remote).Msg("ice restart")
	}
	if l.Initiator() {
		l.sendOfferLocked(true)
	}
	l.armWatchdogLocked(l.watchdogPeriod)
}

// HandleMediaReady renegotiates because the remote side just attached
// its media. The receiving side always offers here, regardless of the
// original tie-break: it is the remote's media state that changed.
func (l *PeerLink) HandleMediaReady() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.state == LinkFailed {
		return
	}
	l.sendOfferLocked(false)
}

// Close releases the transport and stops all timers. Safe to call in
// any state.
func (l *PeerLink) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	if l.watchdog != nil {
		l.watchdog.Stop()
	}
	l.pending = nil
	l.mu.Unlock()
	l.media.Close()
}

func (l *PeerLink) sendOfferLocked(iceRestart bool) {
	sdp, err := l.media.CreateOffer(iceRestart)
	if err != nil {
		log.Error().Err(err).Str("module", "client.link").Str("remote", l.remote).Msg("create offer")
		l.degradeLocked()
		return
	}
	l.sentOffer = true
	l.sendLocked(protocol.TypeOffer, protocol.Offer{SDP: sdp})
	if l.state != LinkConnected {
		l.setStateLocked(LinkNegotiating)
	}
}

func (l *PeerLink) sendCandidate(c protocol.Candidate) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.sendLocked(protocol.TypeCandidate, c)
}

func (l *PeerLink) sendLocked(t protocol.MsgType, payload any) {
	env, err := protocol.New(t, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "client.link").Str("type", string(t)).Msg("encode")
		return
	}
	env.Sender = l.local
	env.Target = l.remote
	env.Room = l.room
	if err := l.sig.Send(env); err != nil {
		log.Warn().Err(err).Str("module", "client.link").Str("type", string(t)).Msg("signal send")
	}
}

func (l *PeerLink) onMediaState(s MediaState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.state == LinkFailed {
		return
	}
	switch s {
	case MediaConnected:
		l.retries = 0
		if l.watchdog != nil {
			l.watchdog.Stop()
		}
		l.setStateLocked(LinkConnected)
	case MediaDisconnected:
		if l.state == LinkConnected {
			l.setStateLocked(LinkDisconnected)
		}
		l.armWatchdogLocked(l.watchdogPeriod)
	case MediaFailed:
		l.degradeLocked()
	case MediaConnecting, MediaClosed:
	}
}

// degradeLocked accounts one negotiation failure against the retry
// budget: under budget the link drops to disconnected and a retry is
// requested; over budget it is terminally failed and only surfaced,
// never auto-retried.
func (l *PeerLink) degradeLocked() {
	l.retries++
	if l.retries > l.maxRetries {
		if l.watchdog != nil {
			l.watchdog.Stop()
		}
		l.setStateLocked(LinkFailed)
		log.Warn().Str("module", "client.link").Str("remote", l.remote).Msg("peer unreachable, retry budget exhausted")
		return
	}
	l.setStateLocked(LinkDisconnected)
	l.sendLocked(protocol.TypeRetryRequest, protocol.RetryRequest{})
	if err := l.media.RestartICE(); err != nil && !errors.Is(err, ErrRestartUnsupported) {
		log.Warn().Err(err).Str("module", "client.link").Str("remote", l.remote).Msg("ice restart")
	}
	l.armWatchdogLocked(l.watchdogPeriod * time.Duration(l.retries+1))
}

// onWatchdog fires when the link has not reached connected in time.
func (l *PeerLink) onWatchdog() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.state == LinkConnected || l.state == LinkFailed {
		return
	}
	l.retries++
	if l.retries > l.maxRetries {
		l.setStateLocked(LinkFailed)
		log.Warn().Str("module", "client.link").Str("remote", l.remote).Msg("watchdog: retry budget exhausted")
		return
	}
	log.Info().Str("module", "client.link").Str("remote", l.remote).
		Int("attempt", l.retries).Msg("watchdog: link not connected, retrying")
	l.sendLocked(protocol.TypeRetryRequest, protocol.RetryRequest{})
	if err := l.media.RestartICE(); errors.Is(err, ErrRestartUnsupported) && l.Initiator() {
		l.sendOfferLocked(true)
	}
	l.armWatchdogLocked(l.watchdogPeriod * time.Duration(l.retries+1))
}

func (l *PeerLink) armWatchdogLocked(d time.Duration) {
	if l.watchdog != nil {
		l.watchdog.Stop()
	}
	l.watchdog = time.AfterFunc(d, l.onWatchdog)
}

func (l *PeerLink) setStateLocked(s LinkState) {
	if l.state == s || l.state == LinkFailed {
		return
	}
	l.state = s
	l.lastActivity = time.Now()
	if l.onState != nil {
		l.onState(l.remote, s)
	}
}
