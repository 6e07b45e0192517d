package observer_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/signal-scheduler/clock"
	"github.com/tsinghua-fib-lab/signal-scheduler/entity/junction"
	"github.com/tsinghua-fib-lab/signal-scheduler/observer"
	"github.com/tsinghua-fib-lab/signal-scheduler/utils/config"
	"github.com/tsinghua-fib-lab/signal-scheduler/utils/rpc"
	"github.com/tsinghua-fib-lab/signal-scheduler/utils/store"
)

var t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

type taskContext struct {
	clock *clock.Clock
	store store.Store
}

func (c *taskContext) Clock() *clock.Clock     { return c.clock }
func (c *taskContext) Store() store.Store      { return c.store }
func (c *taskContext) Control() config.Control { return config.Default().Control }

type env struct {
	clock   *clock.Clock
	manager *junction.JunctionManager
	server  *httptest.Server
}

func newEnv(t *testing.T) *env {
	t.Helper()
	tc := &taskContext{clock: clock.NewManual(t0), store: store.NewMemory()}
	m := junction.NewManager(tc)
	m.Init([]int32{0})
	m.Start(context.Background())

	mux := http.NewServeMux()
	mux.Handle(m.Handler())
	mux.Handle(tc.clock.Handler())
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return &env{clock: tc.clock, manager: m, server: server}
}

func receive(t *testing.T, ch <-chan *rpc.Snapshot) *rpc.Snapshot {
	t.Helper()
	select {
	case snap := <-ch:
		return snap
	case <-time.After(5 * time.Second):
		t.Fatal("no snapshot received")
		return nil
	}
}

func run(ctx context.Context, o *observer.Observer) (<-chan *rpc.Snapshot, <-chan error) {
	ch := make(chan *rpc.Snapshot, 64)
	done := make(chan error, 1)
	go func() {
		done <- o.Run(ctx, func(s *rpc.Snapshot) { ch <- s })
	}()
	return ch, done
}

func TestObserverFollowsPhases(t *testing.T) {
	e := newEnv(t)
	o := observer.New(e.server.Client(), e.server.URL, 0, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	ch, done := run(ctx, o)

	assert.Equal(t, "north", receive(t, ch).ActiveLane)
	assert.Equal(t, "north", receive(t, ch).ActiveLane)

	e.clock.Advance(30 * time.Second)
	e.manager.Tick(ctx)
	snap := receive(t, ch)
	assert.Equal(t, "east", snap.ActiveLane)
	last, ok := o.Last()
	require.True(t, ok)
	assert.Equal(t, snap, last)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestObserverResync(t *testing.T) {
	e := newEnv(t)
	o := observer.New(e.server.Client(), e.server.URL, 0, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, _ := run(ctx, o)
	receive(t, ch)
	receive(t, ch)

	// 断线期间发生切换，重新同步后直接看到最新相位
	e.clock.Advance(30 * time.Second)
	e.server.CloseClientConnections()
	require.Eventually(t, func() bool {
		select {
		case snap := <-ch:
			return snap.ActiveLane == "east"
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}

func TestObserverTeardownDoesNotAffectState(t *testing.T) {
	e := newEnv(t)
	pub := e.manager.Get(0).Publisher()
	before := e.manager.Get(0).Scheduler().State()

	o := observer.New(e.server.Client(), e.server.URL, 0, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	ch, done := run(ctx, o)
	receive(t, ch)
	receive(t, ch)
	require.Eventually(t, func() bool { return pub.Subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done
	require.Eventually(t, func() bool { return pub.Subscribers() == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, before, e.manager.Get(0).Scheduler().State())
}

func TestObserverUnknownJunctionRetries(t *testing.T) {
	e := newEnv(t)
	o := observer.New(e.server.Client(), e.server.URL, 42, 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := o.Run(ctx, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	_, ok := o.Last()
	assert.False(t, ok)
}

func TestSkew(t *testing.T) {
	e := newEnv(t)
	o := observer.New(e.server.Client(), e.server.URL, 0, time.Second)
	skew, err := o.Skew(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, time.Since(t0).Seconds(), skew.Seconds(), 60)
}
