package compaction

import (
	"testing"
)

// TestRequestQueueFIFO checks plain FIFO behavior with distinct keys.
func TestRequestQueueFIFO(t *testing.T) {
	q := NewRequestQueue[int, string]()
	if !q.IsEmpty() || q.Len() != 0 {
		t.Fatalf("new queue not empty: len=%d", q.Len())
	}

	q.PushBack(1, "task1")
	q.PushBack(2, "task2")
	q.PushBack(3, "task3")

	if q.Len() != 3 || q.IsEmpty() {
		t.Fatalf("len = %d, want 3", q.Len())
	}

	for _, want := range []string{"task1", "task2", "task3"} {
		got, ok := q.PopFront()
		if !ok || got != want {
			t.Errorf("PopFront = %q/%v, want %q", got, ok, want)
		}
	}
	if _, ok := q.PopFront(); ok {
		t.Error("PopFront on empty queue should report empty")
	}
	if !q.IsEmpty() {
		t.Error("queue should be empty after draining")
	}
}

// TestRequestQueueDedup checks the replace-in-place rule: first insertion
// wins for order, latest write wins for value.
func TestRequestQueueDedup(t *testing.T) {
	q := NewRequestQueue[int, string]()

	if !q.PushBack(1, "task1") {
		t.Error("first push of key 1 should insert")
	}
	q.PushBack(2, "task2")
	q.PushBack(3, "task3")
	if q.PushBack(1, "task11") {
		t.Error("second push of key 1 should replace, not insert")
	}
	q.PushBack(3, "task33")
	q.PushBack(3, "task333")

	if q.Len() != 3 {
		t.Fatalf("len = %d, want 3", q.Len())
	}

	for _, want := range []string{"task11", "task2", "task333"} {
		got, ok := q.PopFront()
		if !ok || got != want {
			t.Errorf("PopFront = %q/%v, want %q", got, ok, want)
		}
	}
	if _, ok := q.PopFront(); ok {
		t.Error("queue should be empty")
	}
	if q.Len() != 0 {
		t.Errorf("len = %d, want 0", q.Len())
	}
}
