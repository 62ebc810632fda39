// Package mqtt provides the publish/subscribe transport with abstraction
// for testing. Session lifecycle is reported as a stream of notifications
// rather than by mutating shared state from library callbacks.
package mqtt

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is to check for them.
var (
	ErrNotConnected = errors.New("mqtt: client not connected")
	ErrTimeout      = errors.New("mqtt: operation timed out")
	ErrInvalidQoS   = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)

// maxQoS is the highest QoS level MQTT defines.
const maxQoS = 2

// Kind identifies a session notification.
type Kind int

const (
	BeforeConnect Kind = iota
	Connected
	Disconnected
	Subscribed
	Unsubscribed
	Published
	Data
	Error
)

func (k Kind) String() string {
	switch k {
	case BeforeConnect:
		return "BEFORE_CONNECT"
	case Connected:
		return "CONNECTED"
	case Disconnected:
		return "DISCONNECTED"
	case Subscribed:
		return "SUBSCRIBED"
	case Unsubscribed:
		return "UNSUBSCRIBED"
	case Published:
		return "PUBLISHED"
	case Data:
		return "DATA"
	case Error:
		return "ERROR"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Notification is a session event delivered by a Transport.
type Notification struct {
	Kind      Kind
	Topic     string // Subscribed, Data
	Payload   []byte // Data
	MessageID uint16 // Published
	Err       error  // Disconnected, Error
}

// Publisher sends a message to the broker.
type Publisher interface {
	// Publish sends payload to topic. Returns an error if publishing fails;
	// callers decide whether that is fatal.
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Transport is the broker client consumed by the session supervisor.
type Transport interface {
	Publisher

	// Connect starts the session. The outcome is reported through
	// Notifications; the transport keeps retrying on its own.
	Connect() error

	// Subscribe registers interest in topic at qos.
	Subscribe(topic string, qos byte) error

	// Notifications delivers session events in order.
	Notifications() <-chan Notification

	// IsConnected reports the transport's view of the connection.
	IsConnected() bool

	// Close disconnects from the broker.
	Close() error
}

// validate checks the arguments common to Publish and Subscribe.
func validate(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}
