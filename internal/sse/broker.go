package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	redisclient "github.com/orbital-labs/orbital/internal/redis"
)

const HeartbeatInterval = 30 * time.Second

// Event types published on a conversation channel.
const (
	EventDelta = "delta"
	EventDone  = "done"
	EventError = "error"
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Client is one SSE subscriber attached to a conversation.
type Client struct {
	ConversationID string
	Events         chan Event
	Done           chan struct{}
}

// Broker fans conversation events out to SSE clients. Events travel through
// redis pubsub so every server instance sees them.
type Broker struct {
	redis   *redisclient.Client
	clients map[string]map[*Client]bool // conversationID -> set of clients
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:   redisClient,
		clients: make(map[string]map[*Client]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *Broker) Subscribe(conversationID string) *Client {
	client := &Client{
		ConversationID: conversationID,
		Events:         make(chan Event, 100),
		Done:           make(chan struct{}),
	}

	b.mu.Lock()
	if b.clients[conversationID] == nil {
		b.clients[conversationID] = make(map[*Client]bool)
		go b.subscribeToRedis(conversationID)
	}
	b.clients[conversationID][client] = true
	clientCount := len(b.clients[conversationID])
	b.mu.Unlock()

	log.Info().
		Str("conversationId", conversationID).
		Int("clientCount", clientCount).
		Msg("sse client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clients, ok := b.clients[client.ConversationID]; ok {
		delete(clients, client)
		close(client.Done)

		if len(clients) == 0 {
			delete(b.clients, client.ConversationID)
		}

		log.Info().
			Str("conversationId", client.ConversationID).
			Int("clientCount", len(clients)).
			Msg("sse client unsubscribed")
	}
}

// Publish sends an event to every subscriber of the conversation.
func (b *Broker) Publish(ctx context.Context, conversationID string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.redis.Publish(ctx, redisclient.ChatChannel(conversationID), data).Err()
}

// PublishDelta is a convenience wrapper for streamed assistant chunks.
func (b *Broker) PublishDelta(ctx context.Context, conversationID, content string) error {
	data, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return err
	}
	return b.Publish(ctx, conversationID, Event{Type: EventDelta, Data: data})
}

func (b *Broker) subscribeToRedis(conversationID string) {
	channel := redisclient.ChatChannel(conversationID)
	pubsub := b.redis.Subscribe(b.ctx, channel)
	defer pubsub.Close()

	log.Debug().
		Str("conversationId", conversationID).
		Str("channel", channel).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-b.ctx.Done():
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

			b.broadcast(conversationID, event)
		}
	}
}

func (b *Broker) broadcast(conversationID string, event Event) {
	b.mu.RLock()
	clients := b.clients[conversationID]
	b.mu.RUnlock()

	for client := range clients {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("conversationId", conversationID).
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
}

func (b *Broker) ClientCount(conversationID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[conversationID])
}
