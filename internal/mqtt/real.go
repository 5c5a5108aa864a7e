package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/sweeney/keypad/internal/logic"
)

// DefaultBufferSize is the number of messages kept while the broker is unreachable.
const DefaultBufferSize = 256

// client is the part of paho.Client the publisher uses.
type client interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	Topics     Topics
	BufferSize int
	Log        *zap.SugaredLogger
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are kept in a ring buffer and replayed, oldest
// first, once the client reconnects.
type RealPublisher struct {
	client client
	topics Topics
	log    *zap.SugaredLogger

	mu            sync.Mutex
	buf           *ringBuffer
	connectedOnce bool
	replaying     bool
}

// NewRealPublisher creates a publisher and starts connecting to the broker.
// If the broker is not reachable within the connect timeout the publisher is
// still returned; paho keeps retrying in the background and messages are
// buffered meanwhile.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	p := newPublisher(nil, o)

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	clientID := o.ClientID
	if clientID == "" {
		clientID = "keypad-monitor"
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(p.topics.System, string(will), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warnf("mqtt: connection lost: %v", err)
		})

	c := paho.NewClient(opts)
	p.client = c

	token := c.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		p.log.Warnf("mqtt: broker %s not reachable yet, buffering", o.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func newPublisher(c client, o Options) *RealPublisher {
	size := o.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	log := o.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	topics := o.Topics
	if topics.Events == "" || topics.System == "" {
		topics = TopicsFor("default")
	}
	return &RealPublisher{
		client: c,
		topics: topics,
		log:    log,
		buf:    newRingBuffer(size, log),
	}
}

// onConnect announces a reconnection and replays buffered messages.
func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	reconnect := p.connectedOnce
	p.connectedOnce = true
	p.replaying = true
	p.mu.Unlock()

	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		if err := p.send(Message{Topic: p.topics.System, Payload: payload, QoS: 1, Retained: true}); err != nil {
			p.log.Warnf("mqtt: publish reconnected event: %v", err)
		}
	}
	p.flush()
}

// flush replays the buffer until it is empty. While replaying, publish keeps
// buffering so nothing overtakes older messages; the flag is cleared under
// the same lock that observes the empty buffer.
func (p *RealPublisher) flush() {
	for {
		p.mu.Lock()
		msgs := p.buf.drainAll()
		if len(msgs) == 0 {
			p.replaying = false
			p.mu.Unlock()
			return
		}
		p.replaying = true
		p.mu.Unlock()

		p.log.Infof("mqtt: replaying %d buffered messages", len(msgs))
		for i, msg := range msgs {
			if err := p.send(msg); err != nil {
				p.log.Warnf("mqtt: replay failed, re-buffering %d messages: %v", len(msgs)-i, err)
				p.mu.Lock()
				p.requeue(msgs[i:])
				p.replaying = false
				p.mu.Unlock()
				return
			}
		}
	}
}

// requeue puts msgs back ahead of anything buffered since they were drained.
// The caller holds p.mu.
func (p *RealPublisher) requeue(msgs []Message) {
	newer := p.buf.drainAll()
	for _, m := range msgs {
		p.buf.push(m)
	}
	for _, m := range newer {
		p.buf.push(m)
	}
}

// publish sends msg, or buffers it while the connection is down or a replay
// is running. The connection check and the push happen under p.mu, so a
// concurrent onConnect either sees the message in the buffer or the
// publisher sees the connection open.
func (p *RealPublisher) publish(msg Message) error {
	p.mu.Lock()
	if p.replaying || !p.client.IsConnectionOpen() {
		p.buf.push(msg)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.send(msg)
}

func (p *RealPublisher) send(msg Message) error {
	token := p.client.Publish(msg.Topic, msg.QoS, msg.Retained, msg.Payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Publish sends a key event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	msg, err := eventMessage(p.topics, event)
	if err != nil {
		return err
	}
	return p.publish(msg)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	msg, err := systemMessage(p.topics, event)
	if err != nil {
		return err
	}
	return p.publish(msg)
}

// IsConnected reports whether the broker connection is open.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
