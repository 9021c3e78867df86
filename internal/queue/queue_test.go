package queue

import "testing"

func TestEnqueueAndReceive(t *testing.T) {
	q := New(4)
	if !q.Enqueue("job-1") {
		t.Fatal("expected enqueue to succeed")
	}

	msg := <-q.Receive()
	if msg.RequestID != "job-1" {
		t.Errorf("expected job-1, got %s", msg.RequestID)
	}
	if msg.Retries != 0 {
		t.Errorf("expected 0 retries on a fresh message, got %d", msg.Retries)
	}
}

func TestRequeue_IncrementsRetryCounter(t *testing.T) {
	q := New(4)
	q.Enqueue("job-1")
	msg := <-q.Receive()

	if !q.Requeue(msg) {
		t.Fatal("expected requeue to succeed")
	}
	requeued := <-q.Receive()
	if requeued.Retries != 1 {
		t.Errorf("expected retries incremented to 1, got %d", requeued.Retries)
	}
}

func TestEnqueue_ReturnsFalseWhenFull(t *testing.T) {
	q := New(1)
	if !q.Enqueue("job-1") {
		t.Fatal("expected first enqueue to succeed")
	}
	if q.Enqueue("job-2") {
		t.Error("expected second enqueue to fail on a full queue")
	}
}

func TestMarshalUnmarshal_RoundTrips(t *testing.T) {
	data, err := Marshal(Message{RequestID: "job-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msg, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.RequestID != "job-1" {
		t.Errorf("expected job-1, got %s", msg.RequestID)
	}
}
