package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/evetabi/riskevents/internal/domain"
	"github.com/evetabi/riskevents/internal/ws"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	tripped  []uuid.UUID
	resolved []uuid.UUID
}

func (r *recorder) BreakerTripped(_ context.Context, ev *domain.CircuitBreakerEvent) {
	r.tripped = append(r.tripped, ev.ID)
}

func (r *recorder) BreakerResolved(_ context.Context, ev *domain.CircuitBreakerEvent) {
	r.resolved = append(r.resolved, ev.ID)
}

type fakePublisher struct {
	channel string
	payload []byte
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.payload, _ = message.([]byte)
	return redis.NewIntResult(1, f.err)
}

func event() *domain.CircuitBreakerEvent {
	return &domain.CircuitBreakerEvent{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		Level:       domain.LevelL3,
		TriggerType: domain.TriggerManual,
		Action:      domain.ActionLiquidateAll,
		CreatedAt:   time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

func TestFanout_ForwardsToEverySink(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	f := NewFanout(a, nil, b)
	require.Len(t, f, 2)

	ev := event()
	f.BreakerTripped(context.Background(), ev)
	f.BreakerResolved(context.Background(), ev)

	for _, r := range []*recorder{a, b} {
		assert.Equal(t, []uuid.UUID{ev.ID}, r.tripped)
		assert.Equal(t, []uuid.UUID{ev.ID}, r.resolved)
	}
}

func TestRedisPublisher_PublishesBreakerMessage(t *testing.T) {
	fake := &fakePublisher{}
	p := newRedisPublisher(fake, "", nil)

	ev := event()
	p.BreakerTripped(context.Background(), ev)

	assert.Equal(t, DefaultChannel, fake.channel)
	var msg ws.BreakerMessage
	require.NoError(t, json.Unmarshal(fake.payload, &msg))
	assert.Equal(t, ws.MsgTypeBreakerTripped, msg.Type)
	assert.Equal(t, ev.ID, msg.EventID)
	assert.Nil(t, msg.Symbol)
}

func TestRedisPublisher_ErrorIsSwallowed(t *testing.T) {
	fake := &fakePublisher{err: errors.New("connection reset")}
	p := newRedisPublisher(fake, "custom", nil)

	ev := event()
	require.NoError(t, ev.Resolve(ev.CreatedAt.Add(time.Second)))
	assert.NotPanics(t, func() { p.BreakerResolved(context.Background(), ev) })
	assert.Equal(t, "custom", fake.channel)
}
