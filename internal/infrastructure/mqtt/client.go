package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gymdesk/internal/infrastructure/config"
)

// Errors returned by Connect and Publish; compare with errors.Is.
var (
	ErrNotConnected     = errors.New("mqtt: client not connected")
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	ErrPublishFailed    = errors.New("mqtt: publish failed")
	ErrInvalidQoS       = errors.New("mqtt: QoS must be 0, 1 or 2")
	ErrInvalidTopic     = errors.New("mqtt: empty topic")
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	keepAlive      = 60 * time.Second
	quiesceMillis  = 1000
	maxQoS         = 2
	tlsMinVersion  = tls.VersionTLS12
)

// Logger receives connection state changes. *slog.Logger satisfies it.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Client publishes to one broker. It is safe for concurrent use.
type Client struct {
	paho   pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics
	online atomic.Bool

	logMu sync.Mutex
	log   Logger
}

// Connect dials the broker and waits for the first connection. The broker
// is told to publish an offline status if the link drops uncleanly, and
// paho reconnects with backoff between the configured delays.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	if cfg.QoS < 0 || cfg.QoS > maxQoS {
		return nil, ErrInvalidQoS
	}

	c := &Client{cfg: cfg, topics: NewTopics(cfg.TopicPrefix)}

	opts := buildClientOptions(cfg)
	configureLWT(opts, c.topics, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.onConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.onLost(err) })

	c.paho = pahomqtt.NewClient(opts)
	tok := c.paho.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: no answer within %v", ErrConnectionFailed, connectTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	// onConnect runs on paho's goroutine and may still be pending.
	c.online.Store(true)
	return c, nil
}

func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	addr := net.JoinHostPort(cfg.Broker.Host, strconv.Itoa(cfg.Broker.Port))

	opts := pahomqtt.NewClientOptions().
		AddBroker(scheme + "://" + addr).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username).SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}
	return opts
}

func (c *Client) onConnect() {
	c.online.Store(true)
	c.paho.Publish(c.topics.SystemStatus(), 1, true, statusMessage(statusOnline, c.cfg.Broker.ClientID, ""))
	if l := c.logger(); l != nil {
		l.Info("mqtt connected", "client_id", c.cfg.Broker.ClientID)
	}
}

func (c *Client) onLost(err error) {
	c.online.Store(false)
	if l := c.logger(); l != nil {
		l.Warn("mqtt connection lost", "error", err)
	}
}

// Close announces a clean shutdown on the status topic and disconnects.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		c.paho.Publish(c.topics.SystemStatus(), 1, true,
			statusMessage(statusOffline, c.cfg.Broker.ClientID, "graceful_shutdown"),
		).WaitTimeout(publishTimeout)
	}
	c.paho.Disconnect(quiesceMillis)
	c.online.Store(false)
	return nil
}

// HealthCheck returns ErrNotConnected while the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

func (c *Client) IsConnected() bool {
	return c.paho != nil && c.online.Load() && c.paho.IsConnected()
}

func (c *Client) Topics() Topics { return c.topics }

// QoS is the configured default QoS, validated by Connect.
func (c *Client) QoS() byte {
	return byte(c.cfg.QoS) //nolint:gosec // range checked in Connect
}

// SetLogger installs a logger for connection state changes.
func (c *Client) SetLogger(l Logger) {
	c.logMu.Lock()
	c.log = l
	c.logMu.Unlock()
}

func (c *Client) logger() Logger {
	c.logMu.Lock()
	defer c.logMu.Unlock()
	return c.log
}
