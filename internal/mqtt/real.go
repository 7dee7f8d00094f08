package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/lora-logger/internal/logic"
)

const (
	clientID        = "lora-logger"
	connectTimeout  = 10 * time.Second
	systemTimeout   = 5 * time.Second
	backlogCapacity = 256
)

// RealPublisher publishes to an actual MQTT broker.
//
// Record publishes never wait for the broker, so the event loop is not held
// up by the network. Records published while disconnected are queued and
// sent once paho reconnects.
type RealPublisher struct {
	client paho.Client

	mu      sync.Mutex
	pending *backlog
	lost    bool
}

// NewRealPublisher creates a publisher for the given broker. If the broker
// is unreachable at startup, paho keeps retrying in the background and the
// publisher queues records until it connects.
func NewRealPublisher(broker string) (*RealPublisher, error) {
	p := &RealPublisher{pending: newBacklog(backlogCapacity)}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		log.Printf("mqtt: %s not reachable yet, queueing records", broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// Publish mirrors a record to the broker, or queues it while disconnected.
func (p *RealPublisher) Publish(rec logic.Record) error {
	payload, err := FormatPayload(rec)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	msg := pendingMsg{topic: Topic, payload: payload}

	// Checked under the lock so a concurrent onConnect drain cannot miss it.
	p.mu.Lock()
	if !p.client.IsConnectionOpen() {
		p.pending.push(msg)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	p.send(msg)
	return nil
}

// send publishes without waiting and logs a failed delivery later.
func (p *RealPublisher) send(msg pendingMsg) {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			log.Printf("mqtt: publish to %s failed: %v", msg.topic, err)
		}
	}()
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) - lifecycle events should arrive
	token := p.client.Publish(TopicSystem, 1, event.Retained, payload)
	if !token.WaitTimeout(systemTimeout) {
		return fmt.Errorf("publish system timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

// IsConnected reports whether the client currently has a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	queued := p.pending.drain()
	reconnected := p.lost
	p.lost = false
	p.mu.Unlock()

	if reconnected {
		log.Printf("mqtt: reconnected")
		payload, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		if err == nil {
			p.send(pendingMsg{topic: TopicSystem, payload: payload, qos: 1})
		}
	}
	if len(queued) > 0 {
		log.Printf("mqtt: sending %d queued records", len(queued))
	}
	for _, msg := range queued {
		p.send(msg)
	}
}

func (p *RealPublisher) onConnectionLost(c paho.Client, err error) {
	log.Printf("mqtt: connection lost: %v", err)
	p.mu.Lock()
	p.lost = true
	p.mu.Unlock()
}
