// Package realtime fans conversation and message changes out to connected
// clients over Redis pub/sub. Delivery is best effort.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"

	"twoway-sms/internal/logger"
	"twoway-sms/internal/models"
)

// ErrUnavailable is returned by Subscribe when no broker is configured.
var ErrUnavailable = errors.New("realtime updates unavailable")

type EventType string

const (
	MessageInserted     EventType = "message.inserted"
	MessageUpdated      EventType = "message.updated"
	ConversationUpdated EventType = "conversation.updated"
)

type Event struct {
	Type           EventType            `json:"type"`
	UserID         string               `json:"user_id"`
	ConversationID string               `json:"conversation_id,omitempty"`
	Message        *models.Message      `json:"message,omitempty"`
	Conversation   *models.Conversation `json:"conversation,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

type Broker interface {
	Publisher
	Subscribe(ctx context.Context, channel string) (*Subscription, error)
}

func UserChannel(userID string) string {
	return "conversations:" + userID
}

func ConversationChannel(conversationID string) string {
	return "messages:" + conversationID
}

// Subscription delivers raw event payloads until Close.
type Subscription struct {
	C     <-chan []byte
	close func() error
}

func (s *Subscription) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

type Redis struct {
	client redis.UniversalClient
}

var _ Broker = (*Redis)(nil)

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// Publish sends ev to the owner's channel and, for message events, to the
// conversation channel. Failures are logged only.
func (r *Redis) Publish(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.Error().Err(err).Str("type", string(ev.Type)).Msg("marshal realtime event")
		return
	}

	channels := []string{UserChannel(ev.UserID)}
	if ev.ConversationID != "" {
		channels = append(channels, ConversationChannel(ev.ConversationID))
	}
	for _, ch := range channels {
		if err := r.client.Publish(ctx, ch, payload).Err(); err != nil {
			logger.Warn().Err(err).Str("channel", ch).Msg("publish realtime event")
		}
	}
}

func (r *Redis) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	ps := r.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	out := make(chan []byte, 16)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	stop := func() error {
		once.Do(func() { close(done) })
		return ps.Close()
	}
	return &Subscription{C: out, close: stop}, nil
}

// Nop drops every event.
type Nop struct{}

var _ Broker = Nop{}

func (Nop) Publish(context.Context, Event) {}

func (Nop) Subscribe(context.Context, string) (*Subscription, error) {
	return nil, ErrUnavailable
}
