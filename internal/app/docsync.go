package app

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Coderoom/internal/core"
	"github.com/dkeye/Coderoom/internal/domain"
	"github.com/dkeye/Coderoom/internal/protocol"
	"github.com/rs/zerolog/log"
)

const persistTimeout = 5 * time.Second

// DocSync owns the shared-document write path. Edits are broadcast to
// the other connections immediately; persistence is debounced so a
// burst of keystrokes becomes a single write holding the final state.
type DocSync struct {
	store core.DocumentStore
	quiet time.Duration

	mu      sync.Mutex
	pending map[domain.RoomID]*time.Timer
}

func NewDocSync(store core.DocumentStore, quiet time.Duration) *DocSync {
	return &DocSync{
		store:   store,
		quiet:   quiet,
		pending: make(map[domain.RoomID]*time.Timer),
	}
}

// ApplyEdit applies a last-write-wins edit from sid: update the room's
// document, fan out to every other connection, then (re)arm the
// persistence timer. A pending write for the room is replaced, never
// stacked.
func (d *DocSync) ApplyEdit(room core.RoomService, sid core.ConnID, edit protocol.DocumentEdit) {
	doc := domain.Document{
		Content:   edit.Content,
		Language:  edit.Language,
		UpdatedAt: time.Now(),
	}
	room.SetDocument(doc)

	env, err := protocol.New(protocol.TypeDocumentEdit, edit)
	if err != nil {
		log.Error().Err(err).Str("module", "app.docsync").Msg("encode edit")
		return
	}
	env.Sender = string(sid)
	env.Room = string(room.Room().ID)
	if data, err := env.Encode(); err == nil {
		room.Broadcast(sid, data)
	}

	d.schedule(room)
}

func (d *DocSync) schedule(room core.RoomService) {
	id := room.Room().ID
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.pending[id]; ok {
		t.Stop()
	}
	d.pending[id] = time.AfterFunc(d.quiet, func() {
		d.mu.Lock()
		delete(d.pending, id)
		d.mu.Unlock()
		d.persist(id, room.Document())
	})
}

// persist writes the document snapshot taken at fire time, i.e. the
// last state of the burst. A failed write is logged and not retried;
// the next edit's debounced write carries the latest state anyway.
func (d *DocSync) persist(id domain.RoomID, doc domain.Document) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := d.store.SaveDocument(ctx, id, doc); err != nil {
		log.Error().Err(err).Str("module", "app.docsync").Str("room", string(id)).Msg("persist document")
		return
	}
	log.Debug().Str("module", "app.docsync").Str("room", string(id)).
		Int("bytes", len(doc.Content)).Msg("document persisted")
}

// Cancel drops any pending write for the room without persisting.
// Called when a room is evicted.
func (d *DocSync) Cancel(id domain.RoomID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.pending[id]; ok {
		t.Stop()
		delete(d.pending, id)
	}
}

// Flush persists the current document immediately, cancelling the
// pending timer. Used on graceful shutdown.
func (d *DocSync) Flush(room core.RoomService) {
	d.Cancel(room.Room().ID)
	d.persist(room.Room().ID, room.Document())
}
