package drive

import "testing"

func TestClipboard_SingleSlot(t *testing.T) {
	cb := NewClipboard()

	if cb.CanExecute() {
		t.Error("empty clipboard should not be executable")
	}

	first := file("a", "a.txt", "p", 1)
	second := file("b", "b.txt", "p", 1)

	cb.SetCopy(first)
	if !cb.CanExecute() {
		t.Fatal("clipboard with content should be executable")
	}

	cb.SetCut(second)
	item, op := cb.Contents()
	if item == nil || item.ID != "b" {
		t.Fatalf("Contents item = %v, want b", item)
	}
	if op != OpMove {
		t.Errorf("Contents op = %v, want OpMove", op)
	}
}

func TestClipboard_TakeClears(t *testing.T) {
	cb := NewClipboard()
	cb.SetCopy(file("a", "a.txt", "p", 1))

	item, op := cb.Take()
	if item == nil || op != OpCopy {
		t.Fatalf("Take = (%v, %v), want (a, OpCopy)", item, op)
	}

	if cb.CanExecute() {
		t.Error("clipboard should be empty after Take")
	}
	item, op = cb.Take()
	if item != nil || op != OpNone {
		t.Errorf("second Take = (%v, %v), want (nil, OpNone)", item, op)
	}
}

func TestClipboard_Clear(t *testing.T) {
	cb := NewClipboard()
	cb.SetCut(file("a", "a.txt", "p", 1))
	cb.Clear()

	if cb.CanExecute() {
		t.Error("clipboard should be empty after Clear")
	}
}

func TestOpKindString(t *testing.T) {
	cases := []struct {
		op   OpKind
		want string
	}{
		{OpNone, "none"},
		{OpCopy, "copy"},
		{OpMove, "move"},
	}
	for _, tc := range cases {
		if got := tc.op.String(); got != tc.want {
			t.Errorf("OpKind(%d).String() = %q, want %q", tc.op, got, tc.want)
		}
	}
}
