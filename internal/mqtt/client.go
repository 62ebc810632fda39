package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// notificationBuffer bounds notifications queued for the supervisor.
const notificationBuffer = 64

// disconnectQuiesce is how long Close waits for in-flight work, in ms.
const disconnectQuiesce = 1000

// Options configures a Client.
type Options struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	ConnectRetry   time.Duration
	PublishTimeout time.Duration

	// StatusTopic receives a retained "online" on every connect, a retained
	// "offline" on Close and, as the Last Will, "offline" on an unclean
	// disconnect. Empty disables all three.
	StatusTopic string
}

// Client is a Transport backed by paho.
//
// Paho callbacks run on paho's goroutines; they only translate the event
// into a Notification and return.
type Client struct {
	client paho.Client
	opts   Options
	log    *zap.Logger
	notes  chan Notification
}

// NewClient builds a paho client. It does not connect.
func NewClient(opts Options, log *zap.Logger) *Client {
	c := &Client{
		opts:  opts,
		log:   log,
		notes: make(chan Notification, notificationBuffer),
	}

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(opts.ConnectRetry).
		SetConnectTimeout(opts.ConnectTimeout).
		SetKeepAlive(opts.KeepAlive).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost).
		SetReconnectingHandler(c.onReconnecting).
		SetDefaultPublishHandler(c.onMessage)

	if opts.Username != "" {
		po.SetUsername(opts.Username)
		po.SetPassword(opts.Password)
	}
	if opts.StatusTopic != "" {
		po.SetWill(opts.StatusTopic, "offline", 1, true)
	}

	c.client = paho.NewClient(po)
	return c
}

// Notifications implements Transport.
func (c *Client) Notifications() <-chan Notification {
	return c.notes
}

func (c *Client) onConnect(paho.Client) {
	c.publishStatus("online")
	c.notify(Notification{Kind: Connected})
}

func (c *Client) onConnectionLost(_ paho.Client, err error) {
	c.log.Debug("broker connection lost", zap.Error(err))
	c.notify(Notification{Kind: Disconnected, Err: err})
}

func (c *Client) onReconnecting(paho.Client, *paho.ClientOptions) {
	c.notify(Notification{Kind: BeforeConnect})
}

// onMessage receives every inbound message; subscriptions register no
// handler of their own.
func (c *Client) onMessage(_ paho.Client, msg paho.Message) {
	c.notify(Notification{Kind: Data, Topic: msg.Topic(), Payload: msg.Payload()})
}

// notify queues n without blocking the calling paho goroutine.
func (c *Client) notify(n Notification) {
	select {
	case c.notes <- n:
	default:
		c.log.Warn("notification buffer full, dropping", zap.Stringer("kind", n.Kind))
	}
}

// Connect starts connecting in the background. Paho retries until the
// broker accepts; success arrives as a Connected notification.
func (c *Client) Connect() error {
	c.notify(Notification{Kind: BeforeConnect})
	token := c.client.Connect()
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			c.notify(Notification{Kind: Error, Err: fmt.Errorf("connect: %w", err)})
		}
	}()
	return nil
}

// Subscribe registers topic; inbound messages arrive as Data notifications.
func (c *Client) Subscribe(topic string, qos byte) error {
	if err := validate(topic, qos); err != nil {
		return err
	}
	token := c.client.Subscribe(topic, qos, nil)
	if !token.WaitTimeout(c.opts.PublishTimeout) {
		return fmt.Errorf("subscribe %s: %w", topic, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	c.notify(Notification{Kind: Subscribed, Topic: topic})
	return nil
}

// Publish sends payload and waits for the token up to the publish timeout.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validate(topic, qos); err != nil {
		return err
	}
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(c.opts.PublishTimeout) {
		return fmt.Errorf("publish %s: %w", topic, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	var id uint16
	if pt, ok := token.(*paho.PublishToken); ok {
		id = pt.MessageID()
	}
	c.notify(Notification{Kind: Published, Topic: topic, MessageID: id})
	return nil
}

// IsConnected reports whether the connection is open.
func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Close publishes a graceful offline status and disconnects.
func (c *Client) Close() error {
	if c.client.IsConnectionOpen() {
		c.publishStatus("offline")
	}
	c.client.Disconnect(disconnectQuiesce)
	return nil
}

// publishStatus sends a retained status without waiting; it is called from
// the on-connect callback where blocking on a token would stall paho.
func (c *Client) publishStatus(status string) {
	if c.opts.StatusTopic == "" {
		return
	}
	c.client.Publish(c.opts.StatusTopic, 1, true, status)
}
