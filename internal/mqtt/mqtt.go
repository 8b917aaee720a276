package mqtt

import (
	"crypto/tls"
	"errors"
	"log/slog"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Message is what subscribers receive.
type Message interface {
	Topic() string
	Payload() []byte
	Retained() bool
}

type Client struct {
	client paho.Client
}

// Connect dials brokerURL. mqtt:// URLs are accepted and rewritten to tcp://.
func Connect(brokerURL, clientID string) (*Client, error) {
	url := strings.TrimSpace(brokerURL)
	if url == "" {
		return nil, errors.New("mqtt broker url is empty")
	}
	if strings.HasPrefix(url, "mqtt://") {
		url = "tcp://" + strings.TrimPrefix(url, "mqtt://")
	}
	if strings.TrimSpace(clientID) == "" {
		clientID = "feeder-devserver-" + time.Now().Format("150405.000")
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(url)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	if strings.HasPrefix(url, "ssl://") || strings.HasPrefix(url, "tls://") {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		slog.Warn("mqtt connection lost", "error", err)
	}
	opts.OnConnect = func(_ paho.Client) {
		slog.Info("mqtt connected", "broker", url)
	}

	c := paho.NewClient(opts)
	tok := c.Connect()
	if !tok.WaitTimeout(15 * time.Second) {
		return nil, errors.New("mqtt connect timed out")
	}
	if err := tok.Error(); err != nil {
		return nil, err
	}
	return &Client{client: c}, nil
}

func (c *Client) Subscribe(topic string, handler func(Message)) error {
	tok := c.client.Subscribe(topic, 1, func(_ paho.Client, msg paho.Message) {
		handler(msg)
	})
	tok.Wait()
	return tok.Error()
}

func (c *Client) Publish(topic string, retained bool, payload []byte) error {
	tok := c.client.Publish(topic, 1, retained, payload)
	if !tok.WaitTimeout(5 * time.Second) {
		return errors.New("mqtt publish timed out")
	}
	return tok.Error()
}

func (c *Client) Close() {
	if c == nil || c.client == nil {
		return
	}
	c.client.Disconnect(1000)
}
