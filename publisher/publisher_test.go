package publisher_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/signal-scheduler/clock"
	"github.com/tsinghua-fib-lab/signal-scheduler/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/signal-scheduler/entity/lane"
	"github.com/tsinghua-fib-lab/signal-scheduler/publisher"
	"github.com/tsinghua-fib-lab/signal-scheduler/utils/store"
)

var t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func newPublisher(t *testing.T) (*publisher.Publisher, *clock.Clock, *lane.Observations) {
	t.Helper()
	c := clock.NewManual(t0)
	o := lane.NewObservations()
	s := trafficlight.NewScheduler(1, c, store.NewMemory(), o, trafficlight.DefaultPolicy, 5)
	return publisher.New(s, o), c, o
}

func TestCurrentRefreshes(t *testing.T) {
	p, c, _ := newPublisher(t)
	ctx := context.Background()

	snap := p.Current(ctx)
	assert.Equal(t, lane.North, snap.ActiveLane)
	assert.Equal(t, int32(30), snap.RemainingSeconds)

	c.Advance(31 * time.Second)
	snap = p.Current(ctx)
	assert.Equal(t, lane.East, snap.ActiveLane)
	assert.Equal(t, int32(29), snap.RemainingSeconds)
}

func TestPushObservationDoesNotTransition(t *testing.T) {
	p, c, o := newPublisher(t)
	ctx := context.Background()
	before := p.Current(ctx)

	require.NoError(t, p.PushObservation(lane.North, 60))
	require.NoError(t, p.PushObservation(lane.East, 26))
	assert.ErrorIs(t, p.PushObservation(lane.West, -1), lane.ErrNegativeVehicle)
	assert.Equal(t, int32(26), o.Count(lane.East))

	c.Advance(10 * time.Second)
	snap := p.Current(ctx)
	assert.True(t, before.SamePhase(snap))
	assert.Equal(t, int32(30), snap.PhaseDuration)

	c.Advance(20 * time.Second)
	snap = p.Current(ctx)
	assert.Equal(t, lane.East, snap.ActiveLane)
	assert.Equal(t, int32(45), snap.PhaseDuration)
}

func TestTickReportsChange(t *testing.T) {
	p, c, _ := newPublisher(t)
	ctx := context.Background()

	_, changed := p.Tick(ctx)
	assert.True(t, changed)
	c.Advance(time.Second)
	_, changed = p.Tick(ctx)
	assert.False(t, changed)
	c.Advance(29 * time.Second)
	snap, changed := p.Tick(ctx)
	assert.True(t, changed)
	assert.Equal(t, lane.East, snap.ActiveLane)
}

func TestSubscribe(t *testing.T) {
	p, c, _ := newPublisher(t)
	ctx := context.Background()
	p.Current(ctx)

	_, ch, cancel := p.Subscribe()
	defer cancel()
	assert.Equal(t, 1, p.Subscribers())

	c.Advance(5 * time.Second)
	p.Current(ctx)
	assert.Empty(t, ch)

	c.Advance(25 * time.Second)
	p.Current(ctx)
	select {
	case snap := <-ch:
		assert.Equal(t, lane.East, snap.ActiveLane)
	default:
		t.Fatal("expected a change notification")
	}
}

func TestSlowSubscriberKeepsLatest(t *testing.T) {
	p, c, _ := newPublisher(t)
	ctx := context.Background()
	p.Current(ctx)
	_, ch, cancel := p.Subscribe()
	defer cancel()

	for i := 0; i < 3; i++ {
		c.Advance(30 * time.Second)
		p.Current(ctx)
	}
	require.Len(t, ch, 1)
	snap := <-ch
	assert.Equal(t, lane.West, snap.ActiveLane)
}

func TestCancelDoesNotAffectState(t *testing.T) {
	p, c, _ := newPublisher(t)
	ctx := context.Background()
	before := p.Current(ctx)

	_, ch, cancel := p.Subscribe()
	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, p.Subscribers())

	c.Advance(time.Second)
	assert.True(t, before.SamePhase(p.Current(ctx)))
}

func TestReset(t *testing.T) {
	p, c, o := newPublisher(t)
	ctx := context.Background()
	before := p.Current(ctx)
	require.NoError(t, p.PushObservation(lane.North, 40))

	_, ch, cancel := p.Subscribe()
	defer cancel()

	c.Advance(40 * time.Second)
	snap := p.Reset(ctx)
	assert.Equal(t, lane.North, snap.ActiveLane)
	assert.Equal(t, int32(30), snap.PhaseDuration)
	assert.True(t, snap.PhaseStart.Equal(t0.Add(40*time.Second)))
	assert.NotEqual(t, before.Epoch, snap.Epoch)
	assert.Equal(t, int32(0), o.Count(lane.North))

	select {
	case got := <-ch:
		assert.Equal(t, snap.Epoch, got.Epoch)
	default:
		t.Fatal("expected a notification after reset")
	}
}
