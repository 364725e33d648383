package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const defaultConnectTimeout = 10 * time.Second

// MQTTConfig configures the connection to an MQTT broker.
type MQTTConfig struct {
	// URL of the broker, e.g. "tcp://localhost:1883" or "ssl://host:8883".
	URL      string
	ClientID string
	Username string
	Password string

	// TLS cert/key/CA file paths; all three empty disables TLS.
	CertFile string
	KeyFile  string
	CAFile   string

	ConnectTimeout time.Duration
}

// MQTT is a Transport backed by an eclipse paho client. Every inbound
// message reaches the funnel exactly once per PUBLISH packet: filters
// are subscribed without per-route callbacks so the client's default
// handler receives the packet regardless of how many filters match.
type MQTT struct {
	client mqtt.Client
	mu     sync.RWMutex
	fn     MessageFunc
}

// NewMQTT connects to the broker and returns the transport. It blocks
// until the connection is established or the timeout elapses.
func NewMQTT(cfg MQTTConfig) (*MQTT, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "topicmux-" + uuid.NewString()
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}

	t := &MQTT{}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetDefaultPublishHandler(t.dispatch)

	if cfg.CertFile != "" || cfg.KeyFile != "" || cfg.CAFile != "" {
		tlsConfig, err := newTLSConfig(cfg.CertFile, cfg.KeyFile, cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("mqtt tls config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	t.client = mqtt.NewClient(opts)
	if token := t.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to broker %s: %w", cfg.URL, token.Error())
	}
	return t, nil
}

func (t *MQTT) OnMessage(fn MessageFunc) {
	t.mu.Lock()
	t.fn = fn
	t.mu.Unlock()
}

func (t *MQTT) dispatch(_ mqtt.Client, msg mqtt.Message) {
	t.mu.RLock()
	fn := t.fn
	t.mu.RUnlock()
	if fn != nil {
		fn(msg.Topic(), msg.Payload())
	}
}

func (t *MQTT) Subscribe(ctx context.Context, filter string, opts SubscribeOptions) ([]Grant, error) {
	// nil callback keeps the paho router empty so packets fall through
	// to the default handler once each.
	token := t.client.Subscribe(filter, opts.QoS, nil)
	if err := wait(ctx, token); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", filter, err)
	}

	grant := Grant{Filter: filter, QoS: opts.QoS}
	if st, ok := token.(*mqtt.SubscribeToken); ok {
		if qos, found := st.Result()[filter]; found {
			grant.QoS = qos
		}
	}
	return []Grant{grant}, nil
}

func (t *MQTT) Unsubscribe(ctx context.Context, filter string) error {
	if err := wait(ctx, t.client.Unsubscribe(filter)); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", filter, err)
	}
	return nil
}

func (t *MQTT) Publish(ctx context.Context, topic string, payload []byte, opts PublishOptions) error {
	if err := wait(ctx, t.client.Publish(topic, opts.QoS, opts.Retain, payload)); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (t *MQTT) Close() error {
	t.client.Disconnect(250)
	return nil
}

func wait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newTLSConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}

	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, err
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caCertPool,
	}, nil
}
