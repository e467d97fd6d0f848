package uninstall

import (
	"pruneware/inventory"
	"pruneware/utils"
)

// WorkingSet is the current inventory plus the user's selection. The
// entries themselves stay immutable; selection is a separate id -> bool
// projection. Not safe for concurrent use.
type WorkingSet struct {
	entries  []inventory.SoftwareEntry
	selected map[string]bool
}

func NewWorkingSet(entries []inventory.SoftwareEntry) *WorkingSet {
	ws := &WorkingSet{}
	ws.Replace(entries)
	return ws
}

// Replace swaps in a fresh scan and clears the selection.
func (w *WorkingSet) Replace(entries []inventory.SoftwareEntry) {
	w.entries = append([]inventory.SoftwareEntry(nil), entries...)
	w.selected = make(map[string]bool, len(entries))
}

func (w *WorkingSet) Len() int { return len(w.entries) }

// Entries returns a copy of the entries in display order.
func (w *WorkingSet) Entries() []inventory.SoftwareEntry {
	return append([]inventory.SoftwareEntry(nil), w.entries...)
}

func (w *WorkingSet) Get(id string) (inventory.SoftwareEntry, bool) {
	for _, e := range w.entries {
		if e.ID == id {
			return e, true
		}
	}
	return inventory.SoftwareEntry{}, false
}

// Select marks ids as selected and returns how many were known.
func (w *WorkingSet) Select(ids ...string) int {
	n := 0
	for _, id := range ids {
		if _, ok := w.Get(id); ok {
			w.selected[id] = true
			n++
		}
	}
	return n
}

func (w *WorkingSet) Deselect(ids ...string) {
	for _, id := range ids {
		delete(w.selected, id)
	}
}

// Toggle flips one entry and returns its new state.
func (w *WorkingSet) Toggle(id string) bool {
	if _, ok := w.Get(id); !ok {
		return false
	}
	if w.selected[id] {
		delete(w.selected, id)
		return false
	}
	w.selected[id] = true
	return true
}

// SelectMatching selects every entry whose name passes the matcher. A
// matcher without include patterns selects nothing.
func (w *WorkingSet) SelectMatching(m *utils.PatternMatcher) int {
	if !m.HasIncludes() {
		return 0
	}
	n := 0
	for _, e := range w.entries {
		if m.ShouldInclude(e.Name) {
			w.selected[e.ID] = true
			n++
		}
	}
	return n
}

func (w *WorkingSet) ClearSelection() {
	w.selected = make(map[string]bool, len(w.entries))
}

func (w *WorkingSet) IsSelected(id string) bool { return w.selected[id] }

// Selected returns the selected entries in display order.
func (w *WorkingSet) Selected() []inventory.SoftwareEntry {
	var out []inventory.SoftwareEntry
	for _, e := range w.entries {
		if w.selected[e.ID] {
			out = append(out, e)
		}
	}
	return out
}

// Remove drops entries and their selection state.
func (w *WorkingSet) Remove(ids ...string) int {
	if len(ids) == 0 {
		return 0
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := w.entries[:0]
	removed := 0
	for _, e := range w.entries {
		if _, ok := drop[e.ID]; ok {
			delete(w.selected, e.ID)
			removed++
			continue
		}
		kept = append(kept, e)
	}
	w.entries = kept
	return removed
}
