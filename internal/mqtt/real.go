package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/voxel8/interlockd/internal/interlock"
)

// DefaultBufferSize is the number of messages kept while disconnected.
const DefaultBufferSize = 256

const (
	publishTimeout = 5 * time.Second
	commandBacklog = 16
)

// RealPublisher publishes to an actual MQTT broker.
// Messages published while the connection is down are buffered and replayed,
// oldest first, when it comes back.
type RealPublisher struct {
	client   paho.Client
	commands chan string

	mu            sync.Mutex
	buf           *ringBuffer
	everConnected bool
}

// NewRealPublisher creates a publisher for the given broker. Connection is
// attempted in the background and retried until it succeeds.
func NewRealPublisher(broker, clientID string, bufferSize int) *RealPublisher {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	p := &RealPublisher{
		commands: make(chan string, commandBacklog),
		buf:      newRingBuffer(bufferSize),
	}

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

func (p *RealPublisher) onConnect(c paho.Client) {
	log.Printf("mqtt: connected")

	token := c.Subscribe(TopicCommand, 1, func(_ paho.Client, m paho.Message) {
		select {
		case p.commands <- string(m.Payload()):
		default:
			log.Printf("mqtt: command backlog full, dropping %q", m.Payload())
		}
	})
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		log.Printf("mqtt: subscribe %s: %v", TopicCommand, token.Error())
	}

	p.mu.Lock()
	pending := p.buf.drainAll()
	reconnect := p.everConnected
	p.everConnected = true
	p.mu.Unlock()

	if len(pending) > 0 {
		log.Printf("mqtt: replaying %d buffered messages", len(pending))
	}
	for _, msg := range pending {
		if err := p.send(msg); err != nil {
			log.Printf("mqtt: replay to %s: %v", msg.topic, err)
		}
	}

	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		if err := p.publish(TopicSystem, 1, false, payload); err != nil {
			log.Printf("mqtt: publish reconnected: %v", err)
		}
	}
}

// publish sends a message, or buffers it while disconnected.
func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	msg := bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained}
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.buf.push(msg)
		p.mu.Unlock()
		return nil
	}
	return p.send(msg)
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

// PublishEvent sends a presence transition.
func (p *RealPublisher) PublishEvent(ts time.Time, event interlock.Event) error {
	payload, err := FormatEventPayload(ts, event)
	if err != nil {
		return fmt.Errorf("format event payload: %w", err)
	}
	// QoS 1: transitions are rare and matter
	return p.publish(TopicEvents, 1, false, payload)
}

// PublishFault sends a dispatched fault.
func (p *RealPublisher) PublishFault(fault FaultEvent) error {
	payload, err := FormatFaultPayload(fault)
	if err != nil {
		return fmt.Errorf("format fault payload: %w", err)
	}
	return p.publish(TopicFaults, 1, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(TopicSystem, 1, event.Retained, payload)
}

// Notify mirrors a host line.
func (p *RealPublisher) Notify(line string) error {
	// QoS 0: the serial link is the authoritative host channel
	return p.publish(TopicHost, 0, false, []byte(line))
}

// Commands returns operator command lines received on TopicCommand.
func (p *RealPublisher) Commands() <-chan string {
	return p.commands
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
