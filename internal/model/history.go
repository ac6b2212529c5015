// history.go - Fixed-capacity batch history, most recent first

package model

// DefaultHistoryLimit is how many batch runs are kept.
const DefaultHistoryLimit = 50

// History is a ring of HistoryEntry values. Add overwrites the oldest slot
// once the ring is full, so the log never grows past its capacity.
type History struct {
	slots []HistoryEntry
	head  int // index of the most recent entry
	size  int
}

// NewHistory creates an empty history. A non-positive limit uses DefaultHistoryLimit.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{slots: make([]HistoryEntry, limit)}
}

// RestoreHistory rebuilds a ring from a most-recent-first list, dropping
// anything past the limit.
func RestoreHistory(entries []HistoryEntry, limit int) *History {
	h := NewHistory(limit)
	if len(entries) > len(h.slots) {
		entries = entries[:len(h.slots)]
	}
	// oldest first so the newest ends at head
	for i := len(entries) - 1; i >= 0; i-- {
		h.Add(entries[i])
	}
	return h
}

// Add prepends an entry.
func (h *History) Add(entry HistoryEntry) {
	h.head = (h.head - 1 + len(h.slots)) % len(h.slots)
	h.slots[h.head] = entry
	if h.size < len(h.slots) {
		h.size++
	}
}

// Len returns the number of stored entries.
func (h *History) Len() int { return h.size }

// Cap returns the ring capacity.
func (h *History) Cap() int { return len(h.slots) }

// Entries returns the log most recent first.
func (h *History) Entries() []HistoryEntry {
	out := make([]HistoryEntry, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.slots[(h.head+i)%len(h.slots)]
	}
	return out
}

// Find looks an entry up by id.
func (h *History) Find(id string) (HistoryEntry, bool) {
	for i := 0; i < h.size; i++ {
		entry := h.slots[(h.head+i)%len(h.slots)]
		if entry.ID == id {
			return entry, true
		}
	}
	return HistoryEntry{}, false
}
