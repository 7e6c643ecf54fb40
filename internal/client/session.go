// Package client implements the room client: the signaling session,
// the per-peer negotiation state machine and the mesh coordinator that
// keeps one link per remote connection.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Coderoom/internal/protocol"
)

var (
	ErrNotConnected     = errors.New("session not connected")
	ErrAlreadyConnected = errors.New("session already connected")
)

// Inbound pairs a decoded message with its envelope so consumers keep
// access to the routing fields.
type Inbound struct {
	Env protocol.Envelope
	Msg protocol.Message
}

// Session is one signaling connection to the relay. Lifecycle is
// explicit: Connect, then read from Inbound until it closes, then
// Reconnect or Disconnect. A fresh connection gets a fresh connection
// id from the relay, so the mesh must be rebuilt after a reconnect.
type Session struct {
	url    string
	header http.Header

	mu      sync.Mutex
	conn    *websocket.Conn
	inbound chan Inbound
}

func NewSession(url string) *Session {
	return &Session{url: url, header: http.Header{}}
}

// SetCookie attaches an identity cookie sent with the upgrade request.
func (s *Session) SetCookie(cookie string) {
	s.header.Set("Cookie", cookie)
}

func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return ErrAlreadyConnected
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, s.header)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	s.conn = conn
	s.inbound = make(chan Inbound, 32)
	go s.readLoop(conn, s.inbound)
	return nil
}

func (s *Session) Reconnect(ctx context.Context) error {
	s.Disconnect()
	return s.Connect(ctx)
}

// Disconnect closes the transport. The inbound channel closes once the
// read loop observes the closure.
func (s *Session) Disconnect() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn == nil {
		return
	}
	deadline := time.Now().Add(time.Second)
	conn.SetWriteDeadline(deadline)
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
}

// Inbound returns the channel of decoded messages for the current
// connection. It is closed when the connection drops.
func (s *Session) Inbound() <-chan Inbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inbound
}

// Send implements Signaler.
func (s *Session) Send(env protocol.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Session) readLoop(conn *websocket.Conn, ch chan Inbound) {
	defer close(ch)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("module", "client.session").Msg("read loop ended")
			}
			s.mu.Lock()
			if s.conn == conn {
				s.conn = nil
			}
			s.mu.Unlock()
			return
		}
		env, msg, err := protocol.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "client.session").Msg("bad frame dropped")
			continue
		}
		ch <- Inbound{Env: env, Msg: msg}
	}
}

func (s *Session) send(t protocol.MsgType, payload any) error {
	env, err := protocol.New(t, payload)
	if err != nil {
		return err
	}
	return s.Send(env)
}

func (s *Session) Join(room, token, password string) error {
	return s.send(protocol.TypeJoin, protocol.Join{Room: room, Token: token, Password: password})
}

func (s *Session) Leave() error {
	return s.send(protocol.TypeLeave, protocol.Leave{})
}

func (s *Session) Chat(content string) error {
	return s.send(protocol.TypeChat, protocol.Chat{Content: content})
}

func (s *Session) Edit(content, language string) error {
	return s.send(protocol.TypeDocumentEdit, protocol.DocumentEdit{Content: content, Language: language})
}

// MediaReady announces that local media is attached; remote peers
// respond by renegotiating their link with us.
func (s *Session) MediaReady() error {
	return s.send(protocol.TypeMediaReady, protocol.MediaReady{})
}

func (s *Session) Cursor(line, column int, label string) error {
	return s.send(protocol.TypeCursor, protocol.Cursor{Line: line, Column: column, Label: label})
}

func (s *Session) ToggleTrack(kind string, enabled bool) error {
	return s.send(protocol.TypeToggleTrack, protocol.ToggleTrack{Kind: kind, Enabled: enabled})
}

func (s *Session) Ping() error {
	return s.send(protocol.TypePing, protocol.Ping{})
}
