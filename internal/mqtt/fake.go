package mqtt

import (
	"github.com/sweeney/keypad/internal/logic"
)

// FakePublisher records what a RealPublisher built with the same Topics would
// put on the wire, without a broker.
type FakePublisher struct {
	// Topics routes recorded messages.
	Topics Topics

	// Messages holds every published message in order, across both topics.
	Messages []Message

	// Events and SystemEvents hold the published events before encoding.
	Events       []logic.Event
	SystemEvents []SystemEvent

	// PublishError and PublishSystemError, if set, fail the matching call
	// and nothing is recorded.
	PublishError       error
	PublishSystemError error

	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher returns a FakePublisher routing to topics. Empty topics
// fall back to TopicsFor("default"), as NewRealPublisher does.
func NewFakePublisher(topics Topics) *FakePublisher {
	if topics.Events == "" || topics.System == "" {
		topics = TopicsFor("default")
	}
	return &FakePublisher{Topics: topics}
}

func (f *FakePublisher) Publish(event logic.Event) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	msg, err := eventMessage(f.Topics, event)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, event)
	f.Messages = append(f.Messages, msg)
	return nil
}

func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	msg, err := systemMessage(f.Topics, event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.Messages = append(f.Messages, msg)
	return nil
}

// Sent returns the recorded messages published to topic.
func (f *FakePublisher) Sent(topic string) []Message {
	var out []Message
	for _, m := range f.Messages {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Reset clears everything recorded but keeps the topics.
func (f *FakePublisher) Reset() {
	*f = FakePublisher{Topics: f.Topics}
}
