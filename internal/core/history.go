package core

import "github.com/dkeye/Coderoom/internal/domain"

// chatHistory is a fixed-capacity ring over chat messages. When full,
// an append evicts the oldest entry. Not safe for concurrent use; the
// owning room serializes access.
type chatHistory struct {
	buf   []domain.ChatMessage
	head  int
	count int
}

func newChatHistory(capacity int) *chatHistory {
	return &chatHistory{buf: make([]domain.ChatMessage, capacity)}
}

func (h *chatHistory) append(msg domain.ChatMessage) {
	idx := (h.head + h.count) % len(h.buf)
	h.buf[idx] = msg
	if h.count == len(h.buf) {
		h.head = (h.head + 1) % len(h.buf)
	} else {
		h.count++
	}
}

// snapshot returns all messages oldest first.
func (h *chatHistory) snapshot() []domain.ChatMessage {
	out := make([]domain.ChatMessage, h.count)
	for i := 0; i < h.count; i++ {
		out[i] = h.buf[(h.head+i)%len(h.buf)]
	}
	return out
}

// seed replaces the contents with msgs (oldest first), keeping at most
// the ring's capacity from the tail.
func (h *chatHistory) seed(msgs []domain.ChatMessage) {
	h.head, h.count = 0, 0
	if len(msgs) > len(h.buf) {
		msgs = msgs[len(msgs)-len(h.buf):]
	}
	for _, m := range msgs {
		h.append(m)
	}
}

func (h *chatHistory) len() int { return h.count }
