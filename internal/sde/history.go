package sde

import "github.com/san-kum/stochsim/internal/dynamo"

// history is append-only. With a positive limit it becomes a ring buffer that
// keeps the newest limit entries.
type history struct {
	limit   int
	buf     []dynamo.EvolutionState
	head    int // oldest entry once the buffer has wrapped
	evicted int
}

func newHistory(limit int) *history {
	capacity := limit
	if capacity == 0 || capacity > 4096 {
		capacity = 4096
	}
	return &history{limit: limit, buf: make([]dynamo.EvolutionState, 0, capacity)}
}

// push appends s and reports whether an older entry was evicted.
func (h *history) push(s dynamo.EvolutionState) bool {
	if h.limit == 0 || len(h.buf) < h.limit {
		h.buf = append(h.buf, s)
		return false
	}
	h.buf[h.head] = s
	h.head = (h.head + 1) % h.limit
	h.evicted++
	return true
}

func (h *history) len() int { return len(h.buf) }

// at returns the i-th oldest retained entry.
func (h *history) at(i int) dynamo.EvolutionState {
	if h.limit == 0 || len(h.buf) < h.limit {
		return h.buf[i]
	}
	return h.buf[(h.head+i)%h.limit]
}

func (h *history) snapshot() []dynamo.EvolutionState {
	out := make([]dynamo.EvolutionState, h.len())
	for i := range out {
		out[i] = h.at(i).Clone()
	}
	return out
}

func (h *history) reset() {
	for i := range h.buf {
		h.buf[i] = dynamo.EvolutionState{}
	}
	h.buf = h.buf[:0]
	h.head = 0
	h.evicted = 0
}
