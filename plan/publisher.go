package plan

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher manages publishing extracted room records to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	states        map[string]*DrawingState
	mu            sync.RWMutex
}

// RoomsSummary is a lightweight digest of a drawing's extraction results
type RoomsSummary struct {
	DrawingID       string  `json:"drawingId"`
	RoomCount       int     `json:"roomCount"`
	OKCount         int     `json:"okCount"`
	DegenerateCount int     `json:"degenerateCount"`
	FailedCount     int     `json:"failedCount"`
	TotalArea       float64 `json:"totalArea"`
	Timestamp       int64   `json:"timestamp"`
}

// NewPublisher creates a new room record publisher
// If client is nil, publishing is disabled (for testing)
func NewPublisher(client mqtt.Client) *Publisher {
	prefix := os.Getenv("MQTT_PUBLISH_PREFIX")
	if prefix == "" {
		prefix = "roomskel"
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,    // QoS 0 for extraction results (latest wins)
		retain:        true, // Retain so late subscribers get the current rooms
		states:        make(map[string]*DrawingState),
	}
}

// PublishRooms publishes a drawing's extraction results to MQTT
// Publishes the full records and a summary digest on separate topics
func (p *Publisher) PublishRooms(state *DrawingState) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}
	if state == nil || state.ID == "" {
		return fmt.Errorf("drawing state missing ID")
	}

	// Store a copy for the accessors
	p.mu.Lock()
	p.states[state.ID] = cloneState(state)
	p.mu.Unlock()

	// Publish full records to: roomskel/{drawingID}/rooms
	if err := p.publishRecords(state); err != nil {
		log.Printf("Error publishing rooms for %s: %v", state.ID, err)
		return err
	}

	// Publish digest to: roomskel/{drawingID}/summary
	if err := p.publishSummary(state); err != nil {
		log.Printf("Error publishing summary for %s: %v", state.ID, err)
		return err
	}

	return nil
}

// publishRecords publishes the full drawing state to its rooms topic
func (p *Publisher) publishRecords(state *DrawingState) error {
	topic := fmt.Sprintf("%s/%s/rooms", p.publishPrefix, state.ID)

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling rooms: %w", err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	summary := summarizeState(state)
	log.Printf("Published %d rooms for %s (ok=%d degenerate=%d failed=%d)",
		summary.RoomCount, state.ID, summary.OKCount, summary.DegenerateCount, summary.FailedCount)
	return nil
}

// publishSummary publishes the digest to the drawing's summary topic
func (p *Publisher) publishSummary(state *DrawingState) error {
	topic := fmt.Sprintf("%s/%s/summary", p.publishPrefix, state.ID)

	payload, err := json.Marshal(summarizeState(state))
	if err != nil {
		return fmt.Errorf("marshaling summary: %w", err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	return nil
}

// summarizeState computes the digest for a drawing state
func summarizeState(state *DrawingState) RoomsSummary {
	summary := RoomsSummary{
		DrawingID: state.ID,
		RoomCount: len(state.Rooms),
		Timestamp: time.Now().Unix(),
	}
	for _, room := range state.Rooms {
		switch room.Status {
		case StatusOK:
			summary.OKCount++
		case StatusDegenerate:
			summary.DegenerateCount++
		case StatusFailed:
			summary.FailedCount++
		}
		summary.TotalArea += room.Area
	}
	return summary
}

// GetPublished returns the last published state for a drawing
func (p *Publisher) GetPublished(drawingID string) (*DrawingState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	state, ok := p.states[drawingID]
	return state, ok
}

// GetAllPublished returns all published drawing states
func (p *Publisher) GetAllPublished() map[string]*DrawingState {
	p.mu.RLock()
	defer p.mu.RUnlock()

	// Return copies to avoid race conditions
	states := make(map[string]*DrawingState, len(p.states))
	for id, state := range p.states {
		states[id] = cloneState(state)
	}
	return states
}

// ClearDrawing removes a drawing's published state (e.g., when removed from config)
func (p *Publisher) ClearDrawing(drawingID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.states, drawingID)
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}

// SetPublishPrefix overrides the topic prefix, normally sourced from config
// Empty values are ignored so the default survives an unset config field
func (p *Publisher) SetPublishPrefix(prefix string) {
	if prefix != "" {
		p.publishPrefix = prefix
	}
}

// TopicPrefix returns the active publish topic prefix
func (p *Publisher) TopicPrefix() string {
	return p.publishPrefix
}

// PublishExtraction looks up a drawing's current state and publishes it
// This is a convenience function for the main service loop
func (p *Publisher) PublishExtraction(tracker *StateTracker, drawingID string) error {
	state := tracker.GetState(drawingID)
	if state == nil {
		return fmt.Errorf("no extraction state for drawing %s", drawingID)
	}
	return p.PublishRooms(state)
}
