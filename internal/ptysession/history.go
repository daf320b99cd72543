package ptysession

import "sync"

// HistoryCap is the maximum size of a Session's in-memory replay buffer.
const HistoryCap = 100 * 1024 // 100 KiB

// history is a bounded append-only byte buffer. Trimming happens at
// append time, discarding from the head, never on read.
type history struct {
	mu  sync.Mutex
	buf []byte
}

func (h *history) append(b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf = append(h.buf, b...)
	if len(h.buf) > HistoryCap {
		drop := len(h.buf) - HistoryCap
		h.buf = h.buf[drop:]
	}
}

func (h *history) snapshot() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]byte, len(h.buf))
	copy(out, h.buf)
	return out
}
