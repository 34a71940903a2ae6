package finalize

import "testing"

func TestEnqueueContainsRemove(t *testing.T) {
	q := NewQueue()

	if q.Contains("/tmp/store.json", "runner-1") {
		t.Fatalf("expected empty queue to not contain anything")
	}

	q.Enqueue("/tmp/store.json", "runner-1")
	if !q.Contains("/tmp/store.json", "runner-1") {
		t.Fatalf("expected runner-1 to be pending")
	}

	q.Remove("/tmp/store.json", "runner-1")
	if q.Contains("/tmp/store.json", "runner-1") {
		t.Fatalf("expected runner-1 to no longer be pending after Remove")
	}
}

func TestQueueTracksMultipleRunnersPerPath(t *testing.T) {
	q := NewQueue()
	q.Enqueue("/tmp/shared.json", "a")
	q.Enqueue("/tmp/shared.json", "b")

	q.Remove("/tmp/shared.json", "a")
	if !q.Contains("/tmp/shared.json", "b") {
		t.Fatalf("expected 'b' to remain pending after 'a' is removed")
	}
	if q.Contains("/tmp/shared.json", "a") {
		t.Fatalf("expected 'a' to no longer be pending")
	}
}

func TestRemoveOnUnknownPathIsNoop(t *testing.T) {
	q := NewQueue()
	q.Remove("/does/not/exist.json", "runner-1")
}
