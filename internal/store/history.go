package store

import "grid-bot-dashboard/internal/models"

// history is a fixed-capacity ring of order events. Once full, each push
// overwrites the oldest entry.
type history struct {
	buf     []models.OrderEvent
	next    int
	size    int
	evicted uint64
}

func newHistory(capacity int) *history {
	if capacity <= 0 {
		capacity = DefaultHistoryCap
	}
	return &history{buf: make([]models.OrderEvent, capacity)}
}

func (h *history) push(e models.OrderEvent) {
	h.buf[h.next] = e
	h.next = (h.next + 1) % len(h.buf)
	if h.size < len(h.buf) {
		h.size++
		return
	}
	h.evicted++
}

// newestFirst copies the retained events, most recent at index 0.
func (h *history) newestFirst() []models.OrderEvent {
	out := make([]models.OrderEvent, h.size)
	n := len(h.buf)
	for i := 0; i < h.size; i++ {
		out[i] = h.buf[(h.next-1-i+n)%n]
	}
	return out
}

func (h *history) len() int {
	return h.size
}
