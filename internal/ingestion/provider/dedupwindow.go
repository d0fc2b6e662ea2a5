package provider

// dedupWindow is a bounded FIFO set of recently seen ids, used both inside
// executeStreaming (manager-level, cross-provider) and inside the streaming adapter
// (provider-level, in-provider). Size is fixed at construction by the caller.
type dedupWindow struct {
	size  int
	order []string
	seen  map[string]struct{}
}

func newDedupWindow(size int) *dedupWindow {
	return &dedupWindow{size: size, seen: make(map[string]struct{}, size)}
}

// Seed pre-populates the window, e.g. from a resumed cursor's LastTransactionID, so
// overlap right after a resume is caught instead of the window starting empty.
func (w *dedupWindow) Seed(id string) {
	if id == "" {
		return
	}
	w.add(id)
}

// CheckAndAdd reports whether id was already seen; if not, it is added and evicts the
// oldest entry once the window is full.
func (w *dedupWindow) CheckAndAdd(id string) bool {
	if _, ok := w.seen[id]; ok {
		return true
	}
	w.add(id)
	return false
}

func (w *dedupWindow) add(id string) {
	if _, ok := w.seen[id]; ok {
		return
	}
	w.seen[id] = struct{}{}
	w.order = append(w.order, id)
	if len(w.order) > w.size {
		oldest := w.order[0]
		w.order = w.order[1:]
		delete(w.seen, oldest)
	}
}

// Filter removes already-seen items from items, returning the survivors and how many
// were dropped.
func (w *dedupWindow) Filter(items []RawNormalizedPair) (survivors []RawNormalizedPair, dropped int) {
	survivors = make([]RawNormalizedPair, 0, len(items))
	for _, item := range items {
		if w.CheckAndAdd(item.ExternalID) {
			dropped++
			continue
		}
		survivors = append(survivors, item)
	}
	return survivors, dropped
}
