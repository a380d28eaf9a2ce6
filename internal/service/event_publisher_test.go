package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestEventPublisherPublishesToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	sub := client.Subscribe(ctx, "avinci:grading:events")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	publisher := NewEventPublisher(client, nil, "avinci:grading", testLogger())
	require.NoError(t, publisher.Publish(ctx, GradingEvent{
		Type:      EventRegradeCompleted,
		ProblemID: "p1",
		Data:      map[string]any{"updatedCount": 2},
	}))

	select {
	case msg := <-sub.Channel():
		var event GradingEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
		require.Equal(t, EventRegradeCompleted, event.Type)
		require.Equal(t, "p1", event.ProblemID)
		require.NotEmpty(t, event.Source)
		require.False(t, event.SentAt.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not received")
	}
}

func TestEventPublisherWithoutTransportsIsNoop(t *testing.T) {
	publisher := NewEventPublisher(nil, nil, "avinci:grading", testLogger())
	require.NoError(t, publisher.Publish(context.Background(), GradingEvent{Type: EventSubmissionGraded}))
}
