package junction_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/signal-scheduler/clock"
	"github.com/tsinghua-fib-lab/signal-scheduler/entity/junction"
	"github.com/tsinghua-fib-lab/signal-scheduler/entity/lane"
	"github.com/tsinghua-fib-lab/signal-scheduler/utils/config"
	"github.com/tsinghua-fib-lab/signal-scheduler/utils/rpc"
	"github.com/tsinghua-fib-lab/signal-scheduler/utils/store"
)

var t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

type taskContext struct {
	clock   *clock.Clock
	store   store.Store
	control config.Control
}

func (c *taskContext) Clock() *clock.Clock     { return c.clock }
func (c *taskContext) Store() store.Store      { return c.store }
func (c *taskContext) Control() config.Control { return c.control }

func newManager(ids ...int32) (*junction.JunctionManager, *taskContext) {
	cfg := config.Default()
	tc := &taskContext{clock: clock.NewManual(t0), store: store.NewMemory(), control: cfg.Control}
	m := junction.NewManager(tc)
	m.Init(ids)
	m.Start(context.Background())
	return m, tc
}

func TestManagerInit(t *testing.T) {
	m, _ := newManager(3, 1, 3, 2)
	require.Len(t, m.Junctions(), 3)
	assert.Equal(t, int32(1), m.Get(1).ID())

	_, err := m.GetOrError(9)
	assert.ErrorIs(t, err, junction.ErrNoJunction)
	assert.Panics(t, func() { m.Get(9) })
}

func TestManagerTickIndependentJunctions(t *testing.T) {
	m, tc := newManager(1, 2)
	require.NoError(t, m.Get(2).Observations().Set(lane.East, 30))

	tc.clock.Advance(30 * time.Second)
	snaps := m.Tick(context.Background())
	require.Len(t, snaps, 2)
	for _, s := range snaps {
		assert.Equal(t, lane.East, s.ActiveLane)
		if s.JunctionID == 2 {
			assert.Equal(t, int32(45), s.PhaseDuration)
		} else {
			assert.Equal(t, int32(30), s.PhaseDuration)
		}
	}

	rec, err := tc.store.Load(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, int32(1), rec.ActiveIndex)
}

func serve(t *testing.T, m *junction.JunctionManager) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle(m.Handler())
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server.URL
}

func TestSignalServiceUnary(t *testing.T) {
	m, tc := newManager(5)
	url := serve(t, m)
	ctx := context.Background()

	get := connect.NewClient[rpc.GetSnapshotRequest, rpc.Snapshot](
		http.DefaultClient, url+rpc.GetSnapshotProcedure, rpc.ClientOptions()...,
	)
	push := connect.NewClient[rpc.PushObservationRequest, rpc.PushObservationResponse](
		http.DefaultClient, url+rpc.PushObservationProcedure, rpc.ClientOptions()...,
	)
	reset := connect.NewClient[rpc.ResetRequest, rpc.Snapshot](
		http.DefaultClient, url+rpc.ResetProcedure, rpc.ClientOptions()...,
	)

	resp, err := get.CallUnary(ctx, connect.NewRequest(&rpc.GetSnapshotRequest{JunctionID: 5}))
	require.NoError(t, err)
	assert.Equal(t, "north", resp.Msg.ActiveLane)
	assert.Equal(t, int32(30), resp.Msg.RemainingSeconds)

	_, err = push.CallUnary(ctx, connect.NewRequest(&rpc.PushObservationRequest{JunctionID: 5, Lane: "East", VehicleCount: 30}))
	require.NoError(t, err)
	_, err = push.CallUnary(ctx, connect.NewRequest(&rpc.PushObservationRequest{JunctionID: 5, Lane: "up", VehicleCount: 3}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
	_, err = push.CallUnary(ctx, connect.NewRequest(&rpc.PushObservationRequest{JunctionID: 5, Lane: "west", VehicleCount: -3}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
	_, err = push.CallUnary(ctx, connect.NewRequest(&rpc.PushObservationRequest{JunctionID: 6, Lane: "west", VehicleCount: 3}))
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	tc.clock.Advance(32 * time.Second)
	resp, err = get.CallUnary(ctx, connect.NewRequest(&rpc.GetSnapshotRequest{JunctionID: 5}))
	require.NoError(t, err)
	assert.Equal(t, "east", resp.Msg.ActiveLane)
	assert.Equal(t, int32(45), resp.Msg.PhaseDuration)
	assert.Equal(t, int32(43), resp.Msg.RemainingSeconds)
	require.Len(t, resp.Msg.Lanes, lane.Count)
	assert.Equal(t, int32(30), resp.Msg.Lanes[1].VehicleCount)
	assert.Equal(t, "active", resp.Msg.Lanes[1].Status)

	_, err = get.CallUnary(ctx, connect.NewRequest(&rpc.GetSnapshotRequest{JunctionID: 6}))
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	epoch := resp.Msg.Epoch
	rr, err := reset.CallUnary(ctx, connect.NewRequest(&rpc.ResetRequest{JunctionID: 5}))
	require.NoError(t, err)
	assert.Equal(t, "north", rr.Msg.ActiveLane)
	assert.NotEqual(t, epoch, rr.Msg.Epoch)
	assert.Equal(t, int32(0), rr.Msg.Lanes[1].VehicleCount)

	_, err = reset.CallUnary(ctx, connect.NewRequest(&rpc.ResetRequest{JunctionID: 6}))
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
}

func TestWatchSnapshots(t *testing.T) {
	m, tc := newManager(5)
	url := serve(t, m)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	watch := connect.NewClient[rpc.WatchSnapshotsRequest, rpc.Snapshot](
		http.DefaultClient, url+rpc.WatchSnapshotsProcedure, rpc.ClientOptions()...,
	)
	stream, err := watch.CallServerStream(ctx, connect.NewRequest(&rpc.WatchSnapshotsRequest{JunctionID: 5}))
	require.NoError(t, err)
	defer stream.Close()

	require.True(t, stream.Receive())
	assert.Equal(t, "north", stream.Msg().ActiveLane)

	for _, want := range []string{"east", "south"} {
		tc.clock.Advance(30 * time.Second)
		m.Tick(ctx)
		require.True(t, stream.Receive())
		assert.Equal(t, want, stream.Msg().ActiveLane)
		assert.Equal(t, int32(30), stream.Msg().RemainingSeconds)
	}
}

func TestWatchUnknownJunction(t *testing.T) {
	m, _ := newManager(5)
	url := serve(t, m)
	watch := connect.NewClient[rpc.WatchSnapshotsRequest, rpc.Snapshot](
		http.DefaultClient, url+rpc.WatchSnapshotsProcedure, rpc.ClientOptions()...,
	)
	stream, err := watch.CallServerStream(context.Background(), connect.NewRequest(&rpc.WatchSnapshotsRequest{JunctionID: 8}))
	require.NoError(t, err)
	defer stream.Close()
	assert.False(t, stream.Receive())
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(stream.Err()))
}

func TestSnapshotsFilter(t *testing.T) {
	m, _ := newManager(1, 2, 3)
	ctx := context.Background()
	assert.Len(t, m.Snapshots(ctx), 3)

	snaps := m.Snapshots(ctx, 3, 7, 1)
	require.Len(t, snaps, 2)
	assert.Equal(t, int32(3), snaps[0].JunctionID)
	assert.Equal(t, int32(1), snaps[1].JunctionID)
}
