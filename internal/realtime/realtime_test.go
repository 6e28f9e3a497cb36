package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"twoway-sms/internal/models"
)

func TestRedisPublishReachesBothChannels(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	b := NewRedis(client)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	userSub, err := b.Subscribe(ctx, UserChannel("u1"))
	require.NoError(t, err)
	defer userSub.Close()
	convSub, err := b.Subscribe(ctx, ConversationChannel("c1"))
	require.NoError(t, err)
	defer convSub.Close()

	b.Publish(ctx, Event{
		Type:           MessageInserted,
		UserID:         "u1",
		ConversationID: "c1",
		Message:        &models.Message{ID: "m1", Content: "hi"},
	})

	for _, sub := range []*Subscription{userSub, convSub} {
		select {
		case payload := <-sub.C:
			var ev Event
			require.NoError(t, json.Unmarshal(payload, &ev))
			require.Equal(t, MessageInserted, ev.Type)
			require.Equal(t, "m1", ev.Message.ID)
		case <-ctx.Done():
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestRedisPublishFailureIsSwallowed(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	// must not panic or block
	NewRedis(client).Publish(context.Background(), Event{Type: ConversationUpdated, UserID: "u1"})
}

func TestNop(t *testing.T) {
	t.Parallel()

	Nop{}.Publish(context.Background(), Event{Type: MessageUpdated})
	_, err := Nop{}.Subscribe(context.Background(), UserChannel("u1"))
	require.True(t, errors.Is(err, ErrUnavailable))
}
