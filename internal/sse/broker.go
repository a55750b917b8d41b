package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	redisclient "github.com/geocheck/attendance-server-go/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second
	clientBufferSize  = 100
)

// Event types pushed to session owners.
const (
	EventCheckinSubmitted = "checkin_submitted"
	EventCheckinApproved  = "checkin_approved"
	EventCheckinRejected  = "checkin_rejected"
	EventSessionEnded     = "session_ended"
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type Client struct {
	OwnerID string
	Events  chan Event
	Done    chan struct{}
}

// Broker fans events out to subscribed owners. With a Redis client events
// travel over pub/sub so every instance sees them; without one they are
// delivered in process only.
type Broker struct {
	redis   *redisclient.Client
	clients map[string]map[*Client]bool // ownerID -> set of clients
	subs    map[string]context.CancelFunc
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:   redisClient,
		clients: make(map[string]map[*Client]bool),
		subs:    make(map[string]context.CancelFunc),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *Broker) Subscribe(ownerID string) *Client {
	client := &Client{
		OwnerID: ownerID,
		Events:  make(chan Event, clientBufferSize),
		Done:    make(chan struct{}),
	}

	b.mu.Lock()
	if b.clients[ownerID] == nil {
		b.clients[ownerID] = make(map[*Client]bool)
		if b.redis != nil {
			subCtx, cancel := context.WithCancel(b.ctx)
			b.subs[ownerID] = cancel
			go b.subscribeToRedis(subCtx, ownerID)
		}
	}
	b.clients[ownerID][client] = true
	clientCount := len(b.clients[ownerID])
	b.mu.Unlock()

	log.Info().
		Str("ownerId", ownerID).
		Int("clientCount", clientCount).
		Msg("sse client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clients, ok := b.clients[client.OwnerID]; ok {
		if !clients[client] {
			return
		}
		delete(clients, client)
		close(client.Done)

		if len(clients) == 0 {
			delete(b.clients, client.OwnerID)
			if cancel, ok := b.subs[client.OwnerID]; ok {
				cancel()
				delete(b.subs, client.OwnerID)
			}
		}

		log.Info().
			Str("ownerId", client.OwnerID).
			Int("clientCount", len(clients)).
			Msg("sse client unsubscribed")
	}
}

func (b *Broker) Publish(ctx context.Context, ownerID string, event Event) error {
	if b.redis == nil {
		b.broadcast(ownerID, event)
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	channel := redisclient.OwnerEventsChannel(ownerID)
	return b.redis.Publish(ctx, channel, data).Err()
}

// Notify publishes payload as an event of the given type. Delivery is best
// effort; failures are logged.
func (b *Broker) Notify(ctx context.Context, ownerID, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("eventType", eventType).Msg("failed to marshal event payload")
		return
	}
	if err := b.Publish(ctx, ownerID, Event{Type: eventType, Data: data}); err != nil {
		log.Warn().Err(err).Str("ownerId", ownerID).Str("eventType", eventType).Msg("failed to publish event")
	}
}

func (b *Broker) subscribeToRedis(ctx context.Context, ownerID string) {
	channel := redisclient.OwnerEventsChannel(ownerID)
	pubsub := b.redis.Subscribe(ctx, channel)
	defer pubsub.Close()

	log.Debug().
		Str("ownerId", ownerID).
		Str("channel", channel).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal event")
				continue
			}

			b.broadcast(ownerID, event)
		}
	}
}

func (b *Broker) broadcast(ownerID string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for client := range b.clients[ownerID] {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("ownerId", ownerID).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, clients := range b.clients {
		for client := range clients {
			close(client.Done)
		}
	}
	b.clients = make(map[string]map[*Client]bool)
	b.subs = make(map[string]context.CancelFunc)
}

func (b *Broker) ClientCount(ownerID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[ownerID])
}

func (b *Broker) TotalClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, clients := range b.clients {
		total += len(clients)
	}
	return total
}
