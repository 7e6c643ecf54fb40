package signal

import (
	"context"
	"time"

	"github.com/dkeye/Coderoom/internal/core"
	"github.com/dkeye/Coderoom/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *Controller) writePump(ctx context.Context, c *WsSignalConn) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump decodes inbound frames and hands them to the orchestrator.
// A read error is a transport-level disconnect and triggers the same
// cascade as an explicit leave.
func (ctl *Controller) readPump(ctx context.Context, sid core.ConnID, c *WsSignalConn, defaultToken string) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		ctl.Orch.Disconnect(sid)
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				return
			}
			env, msg, err := protocol.Decode(data)
			if err != nil {
				// Malformed input never crashes the relay; drop with a log entry.
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad frame dropped")
				continue
			}
			// Browsers identify via the token cookie; a join without an
			// explicit token falls back to it.
			if j, ok := msg.(*protocol.Join); ok && j.Token == "" {
				j.Token = defaultToken
			}
			ctl.Orch.Handle(ctx, sid, env, msg)
		}
	}
}
