// 被动观察者客户端
// 观察者只保存最近一次收到的快照，断线后重新获取当前快照再继续订阅，不会修改相位状态
package observer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/tsinghua-fib-lab/signal-scheduler/utils/rpc"
)

var ErrStreamClosed = errors.New("snapshot stream closed by server")

// Observer 观察者
type Observer struct {
	junctionID int32
	retry      time.Duration

	get   *connect.Client[rpc.GetSnapshotRequest, rpc.Snapshot]
	watch *connect.Client[rpc.WatchSnapshotsRequest, rpc.Snapshot]
	now   *connect.Client[rpc.NowRequest, rpc.NowResponse]

	mtx  sync.RWMutex
	last *rpc.Snapshot
}

// New 创建观察者
// 参数：httpClient-HTTP客户端，target-权威进程地址（如http://localhost:51102），junctionID-路口ID，retry-断线重连间隔
func New(httpClient connect.HTTPClient, target string, junctionID int32, retry time.Duration) *Observer {
	opts := rpc.ClientOptions()
	return &Observer{
		junctionID: junctionID,
		retry:      retry,
		get:        connect.NewClient[rpc.GetSnapshotRequest, rpc.Snapshot](httpClient, target+rpc.GetSnapshotProcedure, opts...),
		watch:      connect.NewClient[rpc.WatchSnapshotsRequest, rpc.Snapshot](httpClient, target+rpc.WatchSnapshotsProcedure, opts...),
		now:        connect.NewClient[rpc.NowRequest, rpc.NowResponse](httpClient, target+rpc.NowProcedure, opts...),
	}
}

// Last 最近一次收到的快照
func (o *Observer) Last() (*rpc.Snapshot, bool) {
	o.mtx.RLock()
	defer o.mtx.RUnlock()
	return o.last, o.last != nil
}

// Run 持续观察
// 功能：获取当前快照后订阅相位变化，每收到一个快照调用一次handle
// 参数：ctx-上下文，handle-快照回调
// 返回：ctx结束时返回ctx.Err()
// 算法说明：
// 1. 调用GetSnapshot重新同步
// 2. 调用WatchSnapshots逐个接收快照
// 3. 流结束或出错时等待retry后回到第1步
func (o *Observer) Run(ctx context.Context, handle func(*rpc.Snapshot)) error {
	for {
		err := o.session(ctx, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warnf("junction %d: observe failed, resync in %v: %v", o.junctionID, o.retry, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.retry):
		}
	}
}

func (o *Observer) session(ctx context.Context, handle func(*rpc.Snapshot)) error {
	resp, err := o.get.CallUnary(ctx, connect.NewRequest(&rpc.GetSnapshotRequest{JunctionID: o.junctionID}))
	if err != nil {
		return fmt.Errorf("get snapshot: %w", err)
	}
	o.deliver(resp.Msg, handle)

	stream, err := o.watch.CallServerStream(ctx, connect.NewRequest(&rpc.WatchSnapshotsRequest{JunctionID: o.junctionID}))
	if err != nil {
		return fmt.Errorf("watch snapshots: %w", err)
	}
	defer stream.Close()
	for stream.Receive() {
		o.deliver(stream.Msg(), handle)
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("watch snapshots: %w", err)
	}
	return ErrStreamClosed
}

func (o *Observer) deliver(snap *rpc.Snapshot, handle func(*rpc.Snapshot)) {
	o.mtx.Lock()
	o.last = snap
	o.mtx.Unlock()
	if handle != nil {
		handle(snap)
	}
}

// Skew 估计本地时钟相对权威进程的偏差
// 返回：本地时刻减去权威时刻（以往返时间的中点估计）
// 说明：只用于诊断，观察者展示剩余时间时仍以快照中的remaining_seconds为准
func (o *Observer) Skew(ctx context.Context) (time.Duration, error) {
	sent := time.Now()
	resp, err := o.now.CallUnary(ctx, connect.NewRequest(&rpc.NowRequest{}))
	if err != nil {
		return 0, err
	}
	received := time.Now()
	mid := sent.Add(received.Sub(sent) / 2)
	return mid.Sub(time.UnixMilli(resp.Msg.UnixMilli)), nil
}
