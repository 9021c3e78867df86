// Package queue implements the in-process {request_id} queue transport
// (§6 of SPEC_FULL.md): JSON-serialized payloads carried over a buffered
// Go channel, with a retry counter per message for the job runner's
// backoff policy.
package queue

import "encoding/json"

// Message is the queue's wire payload: a job id plus how many times this
// message has already been retried.
type Message struct {
	RequestID string `json:"request_id"`
	Retries   int    `json:"-"`
}

// Queue is a buffered channel of Messages whose capacity is fixed by the
// caller of New (internal/container uses a constant, not the worker count).
type Queue struct {
	ch chan Message
}

// New builds a Queue with the given buffer capacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan Message, capacity)}
}

// Enqueue submits a fresh message (retries=0) for requestID. Returns false
// if the queue is full.
func (q *Queue) Enqueue(requestID string) bool {
	return q.push(Message{RequestID: requestID})
}

// Requeue resubmits msg with its retry counter incremented, used by the
// job runner's backoff policy.
func (q *Queue) Requeue(msg Message) bool {
	msg.Retries++
	return q.push(msg)
}

func (q *Queue) push(msg Message) bool {
	select {
	case q.ch <- msg:
		return true
	default:
		return false
	}
}

// Receive returns the channel callers range over to consume messages.
func (q *Queue) Receive() <-chan Message {
	return q.ch
}

// Close stops accepting new messages. Safe to call once; a second call
// panics, matching Go's channel semantics (callers should route through a
// single owner, exactly like the teacher's WorkerPool.Close).
func (q *Queue) Close() {
	close(q.ch)
}

// Marshal/Unmarshal exist for parity with the spec's "serializer is JSON"
// requirement for any message that crosses a process boundary (e.g. a
// durable queue swapped in later behind the same interface).
func Marshal(msg Message) ([]byte, error) {
	return json.Marshal(struct {
		RequestID string `json:"request_id"`
	}{RequestID: msg.RequestID})
}

func Unmarshal(data []byte) (Message, error) {
	var wire struct {
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return Message{}, err
	}
	return Message{RequestID: wire.RequestID}, nil
}
