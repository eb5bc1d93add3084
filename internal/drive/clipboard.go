package drive

import "sync"

// OpKind is the pending clipboard operation.
type OpKind int

const (
	OpNone OpKind = iota
	OpCopy
	OpMove
)

// String returns the operation name.
func (k OpKind) String() string {
	switch k {
	case OpCopy:
		return "copy"
	case OpMove:
		return "move"
	default:
		return "none"
	}
}

// Clipboard holds at most one pending (item, operation) pair. Copying or
// cutting while loaded silently overwrites the previous pair; the slot is
// cleared unconditionally the moment an execute is dispatched, so the next
// copy/cut can be queued while the paste's round-trip is still in flight.
type Clipboard struct {
	mu   sync.Mutex
	item *Item
	op   OpKind
}

// NewClipboard creates an empty clipboard.
func NewClipboard() *Clipboard {
	return &Clipboard{}
}

// SetCopy loads the clipboard with a copy operation.
func (b *Clipboard) SetCopy(item *Item) {
	b.set(item, OpCopy)
}

// SetCut loads the clipboard with a move operation.
func (b *Clipboard) SetCut(item *Item) {
	b.set(item, OpMove)
}

func (b *Clipboard) set(item *Item, op OpKind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.item = item
	b.op = op
}

// CanExecute reports whether a pair is loaded.
func (b *Clipboard) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.item != nil && b.op != OpNone
}

// Contents returns the pending pair without clearing it.
func (b *Clipboard) Contents() (*Item, OpKind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.item, b.op
}

// Take returns the pending pair and clears the slot in the same step.
// Execution is detached from clipboard ownership: whatever happens to the
// dispatched operation afterwards, the clipboard is already empty.
func (b *Clipboard) Take() (*Item, OpKind) {
	b.mu.Lock()
	defer b.mu.Unlock()

	item, op := b.item, b.op
	b.item = nil
	b.op = OpNone
	return item, op
}

// Clear empties the clipboard.
func (b *Clipboard) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.item = nil
	b.op = OpNone
}
