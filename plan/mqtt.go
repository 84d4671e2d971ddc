package plan

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// SaveHandler is called when a CAD exporter reports the drawing was saved
type SaveHandler func(drawingID string)

// MQTTClient manages MQTT connection and subscriptions for drawing exports
type MQTTClient struct {
	client         mqtt.Client
	config         *Config
	messageHandler MessageHandler
	saveHandler    SaveHandler
	isConnected    bool
	mu             sync.RWMutex
}

// MessageHandler is called when a drawing export message is received
// Parameters: drawingID, rawPayload, drawing, error
// rawPayload is provided so callers can persist exports that fail to decode
type MessageHandler func(drawingID string, rawPayload []byte, drawing *Drawing, err error)

var (
	globalClient *MQTTClient
	clientMu     sync.Mutex
)

// InitMQTT initializes the global MQTT client with the provided configuration
// If MQTT_BROKER env var is empty, MQTT is disabled and this returns nil
func InitMQTT(config *Config, handler MessageHandler) (*MQTTClient, error) {
	clientMu.Lock()
	defer clientMu.Unlock()

	// Check if MQTT is enabled via env var or config
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" && config != nil && config.MQTT.Broker != "" {
		broker = config.MQTT.Broker
	}

	if broker == "" {
		log.Println("MQTT disabled: MQTT_BROKER not set")
		return nil, nil
	}

	if config == nil || len(config.Drawings) == 0 {
		return nil, fmt.Errorf("MQTT enabled but no drawing configuration provided")
	}

	client := &MQTTClient{
		config:         config,
		messageHandler: handler,
	}

	// Build MQTT client options
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	// Client ID
	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" && config.MQTT.ClientID != "" {
		clientID = config.MQTT.ClientID
	}
	if clientID == "" {
		clientID = "roomskel"
	}
	opts.SetClientID(clientID)

	// Authentication
	username := os.Getenv("MQTT_USERNAME")
	if username == "" && config.MQTT.Username != "" {
		username = config.MQTT.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" && config.MQTT.Password != "" {
			password = config.MQTT.Password
		}
		opts.SetPassword(password)
	}

	// Connection settings
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)   // Longer than default 30s to reduce spurious disconnects
	opts.SetPingTimeout(10 * time.Second) // Timeout for ping response
	opts.SetCleanSession(false)           // Preserve subscriptions on reconnect
	opts.SetOrderMatters(false)           // Allow concurrent processing

	// Callbacks
	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)

	// Connect asynchronously with retry
	go client.connectWithRetry()

	globalClient = client
	return client, nil
}

// GetMQTTClient returns the global MQTT client instance
func GetMQTTClient() *MQTTClient {
	clientMu.Lock()
	defer clientMu.Unlock()
	return globalClient
}

// connectWithRetry attempts to connect to the MQTT broker with exponential backoff
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("Connecting to MQTT broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("Successfully connected to MQTT broker")
				c.setConnected(true)
				return
			}
			log.Printf("MQTT connection failed: %v", token.Error())
		} else {
			log.Println("MQTT connection timeout")
		}

		// Exponential backoff
		log.Printf("Retrying MQTT connection in %v...", retryDelay)
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// onConnect is called when the MQTT connection is established
func (c *MQTTClient) onConnect(client mqtt.Client) {
	log.Println("MQTT connected, subscribing to drawing topics...")
	c.setConnected(true)

	// Subscribe to all drawing topics from config
	for _, drawing := range c.config.Drawings {
		if drawing.Topic == "" {
			log.Printf("Warning: drawing %s has no topic configured", drawing.ID)
			continue
		}

		log.Printf("Subscribing to %s for drawing %s", drawing.Topic, drawing.ID)
		token := client.Subscribe(drawing.Topic, 0, c.createMessageHandler(drawing.ID))

		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("Error subscribing to %s: %v", drawing.Topic, token.Error())
		} else {
			log.Printf("Successfully subscribed to %s", drawing.Topic)
		}

		// Subscribe to status topic for save detection
		if statusTopic, ok := deriveStatusTopic(drawing.Topic); ok {
			log.Printf("Subscribing to %s for drawing %s status", statusTopic, drawing.ID)
			statusToken := client.Subscribe(statusTopic, 0, c.createStatusMessageHandler(drawing.ID))

			if statusToken.WaitTimeout(5*time.Second) && statusToken.Error() != nil {
				log.Printf("Error subscribing to %s: %v", statusTopic, statusToken.Error())
			} else {
				log.Printf("Successfully subscribed to %s", statusTopic)
			}
		}
	}
}

// onConnectionLost is called when the MQTT connection is lost
// Auto-reconnect is enabled, so this is typically a transient event
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("MQTT connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

// onReconnecting is called when the client attempts to reconnect
func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Println("MQTT reconnecting...")
}

// createMessageHandler creates a handler function for a specific drawing's topic
func (c *MQTTClient) createMessageHandler(drawingID string) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		payload := msg.Payload()
		log.Printf("Received drawing export for %s (topic: %s, size: %d bytes)",
			drawingID, msg.Topic(), len(payload))

		// Decode the export (handles segment JSON, zlib-compressed JSON, or SVG)
		drawing, err := DecodeDrawingData(payload)
		if err != nil {
			log.Printf("Error decoding drawing export for %s: %v", drawingID, err)
			if c.messageHandler != nil {
				// Pass raw payload so caller can keep the broken export for inspection
				c.messageHandler(drawingID, payload, nil, err)
			}
			return
		}

		// Call the user's message handler with raw payload and decoded drawing
		if c.messageHandler != nil {
			c.messageHandler(drawingID, payload, drawing, nil)
		}
	}
}

// SetSaveHandler registers a callback that is invoked when a drawing is saved
func (c *MQTTClient) SetSaveHandler(handler SaveHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saveHandler = handler
}

// getSaveHandler returns the current save handler in a thread-safe manner
func (c *MQTTClient) getSaveHandler() SaveHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.saveHandler
}

// deriveStatusTopic converts a drawing export topic to a document status topic.
// Example: "cad/studio1/DrawingData/segments" -> "cad/studio1/DocumentStatus/status"
// Returns the derived topic and true if the conversion succeeded, or empty string and false otherwise.
func deriveStatusTopic(exportTopic string) (string, bool) {
	// Expected format: cad/{name}/DrawingData/segments
	parts := strings.Split(exportTopic, "/")
	if len(parts) < 4 {
		return "", false
	}
	// Replace the last two segments with DocumentStatus/status
	parts[len(parts)-2] = "DocumentStatus"
	parts[len(parts)-1] = "status"
	return strings.Join(parts, "/"), true
}

// statusPayload represents the JSON structure of a document status message
type statusPayload struct {
	Value string `json:"value"`
}

// createStatusMessageHandler creates a handler for status topic messages that
// detects save events and invokes the save handler
func (c *MQTTClient) createStatusMessageHandler(drawingID string) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		payload := msg.Payload()
		log.Printf("Received status update for %s (topic: %s, size: %d bytes)",
			drawingID, msg.Topic(), len(payload))

		var statusValue string

		// Try parsing as JSON object {"value": "..."}
		var status statusPayload
		if err := json.Unmarshal(payload, &status); err == nil {
			statusValue = status.Value
		} else {
			// Try parsing as JSON string "saved"
			var plainStr string
			if err2 := json.Unmarshal(payload, &plainStr); err2 == nil {
				statusValue = plainStr
				log.Printf("Status payload for %s is JSON string (not object), value: %s", drawingID, plainStr)
			} else {
				// Use raw string with whitespace trimmed
				statusValue = strings.TrimSpace(string(payload))
				if statusValue == "" {
					log.Printf("Empty status payload for %s, skipping", drawingID)
					return
				}
				log.Printf("Status payload for %s is raw string (not JSON), value: %s", drawingID, statusValue)
			}
		}

		log.Printf("Drawing %s status: %s", drawingID, statusValue)

		if statusValue == "saved" {
			handler := c.getSaveHandler()
			if handler != nil {
				handler(drawingID)
			}
		}
	}
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

// setConnected updates the connection status
func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("Disconnecting from MQTT broker...")
		c.client.Disconnect(250) // 250ms quiesce time
		c.setConnected(false)
	}
}

// GetDrawingByTopic returns the drawing ID for a given topic
func (c *MQTTClient) GetDrawingByTopic(topic string) (string, bool) {
	for _, drawing := range c.config.Drawings {
		if drawing.Topic == topic {
			return drawing.ID, true
		}
	}
	return "", false
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock creates an MQTTClient with a provided mqtt.Client
// This is used for testing with mock clients
func newMQTTClientWithMock(client mqtt.Client, config *Config, handler MessageHandler) *MQTTClient {
	return &MQTTClient{
		client:         client,
		config:         config,
		messageHandler: handler,
	}
}
