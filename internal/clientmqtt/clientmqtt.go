package clientmqtt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"webdmx/internal/logger"
)

const (
	defaultTimeout    = 5 * time.Second
	disconnectQuiesce = 250 // milliseconds
)

var (
	ErrNotConnected = errors.New("mqtt: not connected")
	ErrTimeout      = errors.New("mqtt: operation timed out")
)

// ClientMQTT is a single-shot MQTT connection. Automatic reconnection is
// disabled: every Connect builds a fresh paho client and the owner decides
// when to reconnect after Lost fires.
type ClientMQTT struct {
	log       logger.Logger
	cfgClient MQTTConf

	mu     sync.Mutex
	client mqtt.Client
	lost   chan error
}

// NewClient конструктор.
func NewClient(log logger.Logger, cfgClient MQTTConf) *ClientMQTT {
	if cfgClient.Schema == "" {
		cfgClient.Schema = "tcp"
	}
	if cfgClient.Timeout <= 0 {
		cfgClient.Timeout = defaultTimeout
	}
	return &ClientMQTT{
		log:       log,
		cfgClient: cfgClient,
		lost:      make(chan error, 1),
	}
}

func (c *ClientMQTT) options(lost chan error) *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%s", c.cfgClient.Schema, c.cfgClient.Host, c.cfgClient.Port)).
		SetUsername(c.cfgClient.User).
		SetPassword(c.cfgClient.Password).
		SetOnConnectHandler(c.connectHandler).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			c.connectLostHandler(lost, err)
		}).
		SetClientID(c.cfgClient.ClientID).
		SetOrderMatters(true).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(c.cfgClient.Timeout).
		SetKeepAlive(30 * time.Second)
}

// Connect dials the broker with a brand new session.
func (c *ClientMQTT) Connect(ctx context.Context) error {
	if c.log.GetLevel() == "debug" {
		mqtt.ERROR = log.New(os.Stdout, "[ERROR] ", 0)
		mqtt.CRITICAL = log.New(os.Stdout, "[CRIT] ", 0)
		mqtt.WARN = log.New(os.Stdout, "[WARN]  ", 0)
	}

	c.Close()

	lost := make(chan error, 1)
	client := mqtt.NewClient(c.options(lost))

	if err := wait(ctx, client.Connect(), c.cfgClient.Timeout); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	c.mu.Lock()
	c.client = client
	c.lost = lost
	c.mu.Unlock()

	c.log.With(logger.Fields{"module": "mqtt"}).Infof("Status: %v", client.IsConnected())
	return nil
}

// Subscribe registers handler for topic on the current connection.
func (c *ClientMQTT) Subscribe(ctx context.Context, topic string, handler func(payload []byte)) error {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil || !client.IsConnected() {
		return ErrNotConnected
	}

	token := client.Subscribe(topic, c.cfgClient.Qos, func(_ mqtt.Client, msg mqtt.Message) {
		c.log.With(logger.Fields{"module": "mqtt"}).Debugf("received message: %s from topic: %s", msg.Payload(), msg.Topic())
		handler(msg.Payload())
	})
	if err := wait(ctx, token, c.cfgClient.Timeout); err != nil {
		return fmt.Errorf("topic %s subscription: %w", topic, err)
	}
	c.log.With(logger.Fields{"module": "mqtt"}).Debugf("topic %s subscribed", topic)
	return nil
}

// Lost fires once when the current connection drops.
func (c *ClientMQTT) Lost() <-chan error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lost
}

// Close disconnects the current client, if any.
func (c *ClientMQTT) Close() {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()

	if client != nil && client.IsConnected() {
		client.Disconnect(disconnectQuiesce)
	}
}

func (c *ClientMQTT) connectHandler(_ mqtt.Client) {
	c.log.With(logger.Fields{"module": "mqtt"}).Info("client connected to server")
}

func (c *ClientMQTT) connectLostHandler(lost chan error, err error) {
	c.log.With(logger.Fields{"module": "mqtt"}).Errorf("server connect lost: %v", err)
	select {
	case lost <- err:
	default:
	}
}

func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
