package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/joefazee/parimutuel/internal/logger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stakePayload struct {
	Outcome uint8  `json:"outcome"`
	Amount  uint64 `json:"amount"`
}

func newStakeEvent(t *testing.T) Event {
	t.Helper()
	payload, err := json.Marshal(stakePayload{Outcome: 1, Amount: 1000})
	require.NoError(t, err)
	return Event{
		ID:          uuid.New(),
		Type:        "stake.placed",
		AggregateID: uuid.New(),
		Payload:     payload,
		OccurredAt:  time.Now().UTC(),
	}
}

func TestRedisPublisher_PublishesAndAppends(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	pub := NewRedisPublisher(rdb, "", "")
	sub := rdb.Subscribe(ctx, pub.Channel("stake.placed"))
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	e := newStakeEvent(t)
	require.NoError(t, pub.Publish(ctx, e))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var got Event
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, "stake.placed", got.Type)

	entries, err := rdb.XRange(ctx, DefaultStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "stake.placed", entries[0].Values["type"])
}

func TestRedisPublisher_Empty(t *testing.T) {
	pub := NewRedisPublisher(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "x:", "y")
	assert.NoError(t, pub.Publish(context.Background()))
	assert.Equal(t, "x:reward.claimed", pub.Channel("reward.claimed"))
}

func TestRedisPublisher_ConnectionError(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr(), MaxRetries: -1})
	defer rdb.Close()
	s.Close()

	err = NewRedisPublisher(rdb, "", "").Publish(context.Background(), newStakeEvent(t))
	assert.Error(t, err)
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	pub := NewLogPublisher(logger.NewZeroLogger(&buf, logger.LevelInfo, nil))

	e := newStakeEvent(t)
	require.NoError(t, pub.Publish(context.Background(), e))
	assert.Contains(t, buf.String(), `"event_type":"stake.placed"`)
	assert.Contains(t, buf.String(), e.AggregateID.String())
}

func TestFanout(t *testing.T) {
	ok := NewMemoryPublisher()
	failing := NewMemoryPublisher()
	failing.FailWith(errors.New("broker down"))

	err := Fanout{ok, failing}.Publish(context.Background(), newStakeEvent(t))

	assert.EqualError(t, err, "broker down")
	assert.Len(t, ok.Events(), 1)
	assert.Empty(t, failing.Events())
	assert.NoError(t, Fanout{ok}.Publish(context.Background(), newStakeEvent(t)))
	assert.Equal(t, []string{"stake.placed", "stake.placed"}, ok.Types())
}
