// Package events provides a publish/subscribe event bus for operational
// observability. Events flow from components (Governor progress
// callbacks, the transcript worker) to subscribers (CLI progress
// printer, future metrics collector). SourceCheckpoint and
// KindCheckpointCreated are defined, but the checkpointer does not
// publish to the bus. The bus is
// nil-safe: calling Publish on a nil *Bus is a no-op, so components do
// not need guard checks.
package events

import (
	"sync"
	"time"

	"github.com/ethervoxai/governor/internal/governor"
)

// Source constants identify which component published an event.
const (
	// SourceGovernor identifies events from the Governor reasoning loop.
	SourceGovernor = "governor"
	// SourceCheckpoint identifies events from the memory checkpointer.
	SourceCheckpoint = "checkpoint"
	// SourceTranscript identifies events from the transcript worker.
	SourceTranscript = "transcript"
)

// Kind constants describe the type of event within a source. Governor
// events reuse the progress taxonomy spelling so a subscriber sees the
// same names a ProgressCallback would.
const (
	// KindIterationStart signals the start of a reasoning iteration.
	// Data: session, message.
	KindIterationStart = "ITERATION_START"
	// KindThinking signals the generation phase has begun.
	KindThinking = "THINKING"
	// KindToolCall signals the Governor is dispatching a tool.
	// Data: session, message (the tool name).
	KindToolCall = "TOOL_CALL"
	// KindToolResult signals a tool dispatch returned a result.
	KindToolResult = "TOOL_RESULT"
	// KindToolError signals a tool dispatch failed; the error text is
	// injected back into the model's view rather than surfaced fatally.
	KindToolError = "TOOL_ERROR"
	// KindConfidenceUpdate signals the model emitted a confidence tag.
	KindConfidenceUpdate = "CONFIDENCE_UPDATE"
	// KindComplete signals the Governor produced a final answer.
	KindComplete = "COMPLETE"

	// KindCheckpointCreated signals a memory snapshot was persisted.
	// Data: session, trigger, bytes.
	KindCheckpointCreated = "checkpoint_created"
	// KindTranscriptWritten signals a session digest file was written.
	// Data: session, path.
	KindTranscriptWritten = "transcript_written"
)

// Event represents a single operational event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Session is the conversation session the event belongs to, if any.
	Session string `json:"session,omitempty"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recvToSend maps the receive-only channel returned by Subscribe
	// back to the bidirectional channel stored in subs. This allows
	// Unsubscribe to accept <-chan Event (the caller's view) without
	// an illegal type conversion.
	recvToSend map[<-chan Event]chan Event
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers. Non-blocking: if a
// subscriber's channel is full, the event is dropped for that
// subscriber. Safe to call on a nil receiver (no-op).
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is full — drop the event rather than block.
		}
	}
}

// ProgressPublisher returns a governor.ProgressCallback that mirrors
// each progress event onto the bus, tagged with the given session id.
// The callback stays synchronous and non-blocking, as the Governor
// requires; a nil *Bus yields a callback that discards everything.
func (b *Bus) ProgressPublisher(sessionID string) governor.ProgressCallback {
	return func(ev governor.ProgressEvent) {
		b.Publish(Event{
			Timestamp: time.Now(),
			Source:    SourceGovernor,
			Kind:      ev.Kind.String(),
			Session:   sessionID,
			Data:      map[string]any{"message": ev.Message},
		})
	}
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe to avoid resource leaks.
// bufSize controls the channel buffer; 64 is a reasonable default for
// a progress-printing consumer.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Safe to
// call with a channel that is already unsubscribed (no-op).
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
