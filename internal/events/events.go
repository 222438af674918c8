// Package events provides the typed event bus that connects the recording
// engine to the control surface and notifiers.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xaionaro-go/eventbus"

	"github.com/oszuidwest/zwfm-recorder/internal/types"
)

// SessionStarted is published when a recording session begins. Warnings
// carry non-fatal degradations applied at start, such as encoder or
// device substitutions.
type SessionStarted struct {
	Session  types.RecordingSession `json:"session"`
	Warnings []string               `json:"warnings,omitzero"`
}

// SessionStopped is published after a session has been finalized,
// regardless of why it ended.
type SessionStopped struct {
	Session types.RecordingSession `json:"session"`
}

// SessionError is published when a session ends because of a failure.
type SessionError struct {
	Session types.RecordingSession `json:"session"`
	Error   string                 `json:"error"`
}

// ProfileChanged is published when the active quality profile changes.
type ProfileChanged struct {
	ProfileID string `json:"profile_id"`
}

// ProgressTick carries the latest capture statistics while recording.
type ProgressTick struct {
	SessionID string         `json:"session_id"`
	Progress  types.Progress `json:"progress"`
}

// Safety warning kinds.
const (
	WarnDisk     = "disk"
	WarnDuration = "duration"
	WarnSystem   = "system"
)

// SafetyWarning is published when a guard threshold is crossed.
type SafetyWarning struct {
	Kind    string             `json:"kind"`
	Message string             `json:"message"`
	Status  types.SafetyStatus `json:"status"`
}

// AutoStopTriggered is published when the safety monitor forces a stop.
type AutoStopTriggered struct {
	Reason  types.StopReason `json:"reason"`
	Message string           `json:"message"`
}

// subscriberQueue is the per-subscription event buffer. Publishing blocks
// once a subscriber falls this far behind.
const subscriberQueue = 16

// Bus wraps the process-wide event bus with topics derived from the
// event's type name. Several event types carry slices, so the events
// themselves cannot serve as topic keys; a string topic keeps every
// subscription and send on the same key and element type.
type Bus struct {
	eb *eventbus.EventBus

	mu      sync.Mutex
	pending int
	drained *sync.Cond
}

// New creates an event bus.
func New() *Bus {
	b := &Bus{eb: eventbus.New()}
	b.drained = sync.NewCond(&b.mu)
	return b
}

// topicFor derives the topic from the event's type name.
func topicFor(event any) string {
	t := reflect.ValueOf(event).Type()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// Publish delivers the event to all subscribers of its type.
func (b *Bus) Publish(event any) {
	result := eventbus.SendEventWithCustomTopic[string, any](context.Background(), b.eb, topicFor(event), event)
	b.track(int(result.SentCountImmediate + result.SentCountDeferred))
}

// track adjusts the in-flight delivery count. A handler finishing before
// its publisher has recorded the delivery pushes the count below zero
// for a moment, which is why this is a cond and not a WaitGroup.
func (b *Bus) track(delta int) {
	b.mu.Lock()
	b.pending += delta
	if b.pending <= 0 {
		b.drained.Broadcast()
	}
	b.mu.Unlock()
}

// Wait blocks until all in-flight deliveries have been handled.
func (b *Bus) Wait() {
	b.mu.Lock()
	for b.pending > 0 {
		b.drained.Wait()
	}
	b.mu.Unlock()
}

// Subscribe registers a callback for events of type T. The subscription is
// removed when ctx is cancelled.
func Subscribe[T any](ctx context.Context, b *Bus, fn func(T)) error {
	var sample T
	topic := topicFor(sample)

	sub := eventbus.SubscribeWithCustomTopic[string, any](ctx, b.eb, topic, eventbus.OptionQueueSize(subscriberQueue))
	if sub == nil {
		return fmt.Errorf("failed to subscribe to %s", topic)
	}
	go func() {
		<-ctx.Done()
		// ctx is already done, so the teardown needs a live context.
		sub.Finish(context.Background())
	}()

	go func() {
		// The event channel closes on unsubscribe; draining it keeps the
		// delivery count balanced for events still queued.
		for event := range sub.EventChan() {
			if typed, ok := event.(T); ok && ctx.Err() == nil {
				fn(typed)
			}
			b.track(-1)
		}
	}()
	return nil
}

// SubscribeChan delivers events of type T on a channel until ctx ends.
// The channel is closed after the subscription is removed.
func SubscribeChan[T any](ctx context.Context, b *Bus) (<-chan T, error) {
	var sample T
	topic := topicFor(sample)

	sub := eventbus.SubscribeWithCustomTopic[string, any](ctx, b.eb, topic, eventbus.OptionQueueSize(subscriberQueue))
	if sub == nil {
		return nil, fmt.Errorf("failed to subscribe to %s", topic)
	}
	go func() {
		<-ctx.Done()
		sub.Finish(context.Background())
	}()

	ch := make(chan T)
	go func() {
		defer close(ch)
		for event := range sub.EventChan() {
			if typed, ok := event.(T); ok && ctx.Err() == nil {
				select {
				case ch <- typed:
				case <-ctx.Done():
				case <-time.After(time.Minute):
					slog.Error("event delivery timed out", "topic", topic)
				}
			}
			b.track(-1)
		}
	}()
	return ch, nil
}
