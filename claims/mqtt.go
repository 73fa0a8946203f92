package claims

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// RequestHandler is called for every force-merge request received over MQTT.
type RequestHandler func(world string)

// MQTTClient manages the broker connection used to publish reports and to
// receive force-merge requests.
type MQTTClient struct {
	client         mqtt.Client
	prefix         string
	requestHandler RequestHandler
	isConnected    bool
	stop           chan struct{}
	stopOnce       sync.Once
	mu             sync.RWMutex
}

// InitMQTT creates and starts connecting a client for cfg. An empty broker
// disables MQTT and returns a nil client and nil error.
func InitMQTT(cfg MQTTConfig, handler RequestHandler) (*MQTTClient, error) {
	if cfg.Broker == "" {
		log.Println("[MQTT] disabled: no broker configured")
		return nil, nil
	}

	c := newMQTTClient(cfg.PublishPrefix, handler)
	c.client = mqtt.NewClient(c.clientOptions(cfg))

	go c.connectWithRetry()

	return c, nil
}

func (c *MQTTClient) clientOptions(cfg MQTTConfig) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "claimmesh"
	}
	opts.SetClientID(clientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false)
	// Request handlers block for a whole force-merge run and its report
	// publish; ForceMerger serializes the runs themselves.
	opts.SetOrderMatters(false)

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)
	return opts
}

func newMQTTClient(prefix string, handler RequestHandler) *MQTTClient {
	if prefix == "" {
		prefix = DefaultPublishPrefix
	}
	return &MQTTClient{
		prefix:         prefix,
		requestHandler: handler,
		stop:           make(chan struct{}),
	}
}

// Client returns the underlying paho client.
func (c *MQTTClient) Client() mqtt.Client {
	return c.client
}

// RequestTopic is the topic force-merge requests arrive on.
func (c *MQTTClient) RequestTopic() string {
	return c.prefix + "/forcemerge/request"
}

// connectWithRetry connects with exponential backoff until it succeeds or the
// client is disconnected.
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("[MQTT] connecting to broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("[MQTT] connected to broker")
				c.setConnected(true)
				return
			}
			log.Printf("[MQTT] connection failed: %v", token.Error())
		} else {
			log.Println("[MQTT] connection timeout")
		}

		log.Printf("[MQTT] retrying connection in %v...", retryDelay)
		select {
		case <-c.stop:
			return
		case <-time.After(retryDelay):
		}
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

func (c *MQTTClient) onConnect(client mqtt.Client) {
	c.setConnected(true)

	topic := c.RequestTopic()
	log.Printf("[MQTT] subscribing to %s", topic)
	token := client.Subscribe(topic, 1, c.handleRequest)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("[MQTT] error subscribing to %s: %v", topic, token.Error())
	}
}

// onConnectionLost is a transient event; auto-reconnect retries.
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("[MQTT] connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Println("[MQTT] reconnecting...")
}

type forceMergeRequest struct {
	World string `json:"world"`
}

// parseRequest accepts either a bare world name or {"world": "..."}.
func parseRequest(payload []byte) (string, bool) {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return "", false
	}
	if strings.HasPrefix(text, "{") {
		var req forceMergeRequest
		if err := json.Unmarshal([]byte(text), &req); err != nil {
			return "", false
		}
		world := strings.TrimSpace(req.World)
		return world, world != ""
	}
	return text, true
}

func (c *MQTTClient) handleRequest(client mqtt.Client, msg mqtt.Message) {
	world, ok := parseRequest(msg.Payload())
	if !ok {
		log.Printf("[MQTT] ignoring malformed request on %s: %q", msg.Topic(), msg.Payload())
		return
	}
	log.Printf("[MQTT] force-merge requested for world %s", world)
	if c.requestHandler != nil {
		c.requestHandler(world)
	}
}

// IsConnected reports whether the broker connection is up.
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect stops reconnect attempts and closes the connection.
func (c *MQTTClient) Disconnect() {
	c.stopOnce.Do(func() { close(c.stop) })
	if c.client != nil && c.client.IsConnected() {
		log.Println("[MQTT] disconnecting from broker...")
		c.client.Disconnect(250)
	}
	c.setConnected(false)
}
