package batchloader

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Event topic names. Subscribers register for one of these via
// Loader.Events().Subscribe, before the Run whose events they want.
const (
	TopicRunStart     = "run.start"
	TopicRunStop      = "run.stop"
	TopicRunException = "run.exception"
)

// RunStartEvent is emitted at the start of a source's dispatch within a Run.
type RunStartEvent struct {
	SourceName string    `json:"source_name"`
	StartedAt  time.Time `json:"started_at"`
}

// OutcomeCounts summarises a source's result table after a run.
type OutcomeCounts struct {
	OK       int `json:"ok"`
	NotFound int `json:"not_found"`
	Error    int `json:"error"`
}

// RunStopEvent is emitted after a source's dispatch completes, successfully
// or not.
type RunStopEvent struct {
	SourceName string        `json:"source_name"`
	Duration   time.Duration `json:"duration"`
	Outcomes   OutcomeCounts `json:"outcome_counts"`
}

// RunExceptionEvent is emitted in addition to RunStopEvent when a source's
// dispatch raised an exception.
type RunExceptionEvent struct {
	SourceName string `json:"source_name"`
	Cause      string `json:"cause"`
}

// EventHandler processes one event payload delivered on a topic.
type EventHandler func(ctx context.Context, topic string, payload []byte)

// EventBus is the run engine's hook surface: delivery is best-effort and
// must never block a Run. It is backed by Watermill's in-process gochannel
// pub/sub.
type EventBus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter
}

// NewEventBus constructs an EventBus. New gives every Loader its own bus;
// all methods on a nil *EventBus are no-ops.
func NewEventBus() (*EventBus, error) {
	logger := watermill.NopLogger{}
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            256,
		Persistent:                     false,
		BlockPublishUntilSubscriberAck: false,
	}, logger)

	return &EventBus{pubsub: pubsub, logger: logger}, nil
}

// Subscribe registers handler for topic. Must be called before Close.
func (b *EventBus) Subscribe(ctx context.Context, topic string, handler EventHandler) error {
	if b == nil {
		return nil
	}
	messages, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return err
	}
	go func() {
		for msg := range messages {
			handler(msg.Context(), topic, msg.Payload)
			msg.Ack()
		}
	}()
	return nil
}

// publish emits payload on topic without blocking the caller beyond the
// gochannel's buffered send. Marshal and publish failures are swallowed;
// a Run never fails because nobody was listening.
func (b *EventBus) publish(topic string, payload any) {
	if b == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	_ = b.pubsub.Publish(topic, msg)
}

func (b *EventBus) emitRunStart(source string) {
	b.publish(TopicRunStart, RunStartEvent{SourceName: source, StartedAt: time.Now()})
}

func (b *EventBus) emitRunStop(source string, d time.Duration, counts OutcomeCounts) {
	b.publish(TopicRunStop, RunStopEvent{SourceName: source, Duration: d, Outcomes: counts})
}

func (b *EventBus) emitRunException(source string, cause error) {
	if cause == nil {
		return
	}
	b.publish(TopicRunException, RunExceptionEvent{SourceName: source, Cause: cause.Error()})
}

// Close releases the bus's internal resources. Safe to call on a nil bus.
func (b *EventBus) Close() error {
	if b == nil {
		return nil
	}
	return b.pubsub.Close()
}
