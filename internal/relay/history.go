package relay

// history keeps the most recent items of a run so late subscribers can
// catch up. Once full, every append evicts the oldest item. It is guarded
// by the owning run's subMu.
type history[T any] struct {
	items   []T
	start   int // oldest item, once full
	limit   int
	evicted int
}

func newHistory[T any](limit int) *history[T] {
	return &history[T]{items: make([]T, 0, min(limit, 64)), limit: limit}
}

func (h *history[T]) append(item T) {
	if len(h.items) < h.limit {
		h.items = append(h.items, item)
		return
	}
	h.items[h.start] = item
	h.start = (h.start + 1) % h.limit
	h.evicted++
}

// snapshot returns the kept items, oldest first.
func (h *history[T]) snapshot() []T {
	out := make([]T, 0, len(h.items))
	out = append(out, h.items[h.start:]...)
	return append(out, h.items[:h.start]...)
}
