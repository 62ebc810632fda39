package mqtt

import "sync"

// Message is a publish recorded by FakeTransport.
type Message struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// Subscription is a subscribe recorded by FakeTransport.
type Subscription struct {
	Topic string
	QoS   byte
}

// FakeTransport records calls for test assertions. Notifications are
// pushed by the test.
type FakeTransport struct {
	mu            sync.Mutex
	connects      int
	connected     bool
	closed        bool
	published     []Message
	subscriptions []Subscription

	// PublishError, if set, is returned by Publish.
	PublishError error

	// SubscribeError, if set, is returned by Subscribe.
	SubscribeError error

	// ConnectError, if set, is returned by Connect.
	ConnectError error

	// OnSubscribe, if set, runs at the start of every Subscribe call.
	OnSubscribe func(topic string)

	notes chan Notification
}

// NewFakeTransport creates a FakeTransport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{notes: make(chan Notification, notificationBuffer)}
}

// Connect records the call.
func (f *FakeTransport) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.ConnectError
}

// Subscribe records the subscription.
func (f *FakeTransport) Subscribe(topic string, qos byte) error {
	if f.OnSubscribe != nil {
		f.OnSubscribe(topic)
	}
	if err := validate(topic, qos); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubscribeError != nil {
		return f.SubscribeError
	}
	f.subscriptions = append(f.subscriptions, Subscription{Topic: topic, QoS: qos})
	return nil
}

// Publish records the message.
func (f *FakeTransport) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validate(topic, qos); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.published = append(f.published, Message{
		Topic:    topic,
		Payload:  append([]byte(nil), payload...),
		QoS:      qos,
		Retained: retained,
	})
	return nil
}

// Notifications implements Transport.
func (f *FakeTransport) Notifications() <-chan Notification {
	return f.notes
}

// Push delivers a notification as the transport would. Connected and
// Disconnected also update IsConnected.
func (f *FakeTransport) Push(n Notification) {
	f.mu.Lock()
	switch n.Kind {
	case Connected:
		f.connected = true
	case Disconnected:
		f.connected = false
	}
	f.mu.Unlock()
	f.notes <- n
}

// IsConnected implements Transport.
func (f *FakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Close marks the transport closed.
func (f *FakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.connected = false
	f.mu.Unlock()
	return nil
}

// Connects returns the number of Connect calls.
func (f *FakeTransport) Connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

// Published returns a copy of the recorded publishes.
func (f *FakeTransport) Published() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.published...)
}

// Subscriptions returns a copy of the recorded subscriptions.
func (f *FakeTransport) Subscriptions() []Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Subscription(nil), f.subscriptions...)
}

// Closed reports whether Close was called.
func (f *FakeTransport) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// SetPublishError changes PublishError under the lock.
func (f *FakeTransport) SetPublishError(err error) {
	f.mu.Lock()
	f.PublishError = err
	f.mu.Unlock()
}
