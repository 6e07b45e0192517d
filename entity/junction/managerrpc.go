package junction

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"git.fiblab.net/sim/syncer/v3"
	"github.com/tsinghua-fib-lab/signal-scheduler/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/signal-scheduler/entity/lane"
	"github.com/tsinghua-fib-lab/signal-scheduler/utils/rpc"
)

// Handler 构造SignalService的connect处理器
// 功能：返回服务路径前缀与对应的http.Handler
// 参数：opts-connect处理器选项
func (m *JunctionManager) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = rpc.HandlerOptions(opts...)
	mux := http.NewServeMux()
	mux.Handle(rpc.GetSnapshotProcedure, connect.NewUnaryHandler(
		rpc.GetSnapshotProcedure, m.GetSnapshot, opts...,
	))
	mux.Handle(rpc.PushObservationProcedure, connect.NewUnaryHandler(
		rpc.PushObservationProcedure, m.PushObservation, opts...,
	))
	mux.Handle(rpc.ResetProcedure, connect.NewUnaryHandler(
		rpc.ResetProcedure, m.ResetJunction, opts...,
	))
	mux.Handle(rpc.WatchSnapshotsProcedure, connect.NewServerStreamHandler(
		rpc.WatchSnapshotsProcedure, m.WatchSnapshots, opts...,
	))
	return "/" + rpc.SignalServiceName + "/", mux
}

// Register 将路口管理器注册到sidecar
// 功能：将SignalService注册为RPC服务，提供远程调用接口
// 参数：sidecar-同步器侧车实例
// 说明：信控按墙上时钟运行，不参与syncer的步进锁
func (m *JunctionManager) Register(sidecar *syncer.Sidecar) {
	sidecar.Register(rpc.SignalServiceName, m.Handler, syncer.WithNoLock())
}

// GetSnapshot RPC接口：获取指定路口的当前快照
// 说明：读取前会先刷新，返回的剩余时间总是按权威时钟重新计算
func (m *JunctionManager) GetSnapshot(
	ctx context.Context, in *connect.Request[rpc.GetSnapshotRequest],
) (*connect.Response[rpc.Snapshot], error) {
	j, err := m.GetOrError(in.Msg.JunctionID)
	if err != nil {
		return nil, connect.NewError(connect.CodeNotFound, err)
	}
	return connect.NewResponse(j.publisher.Current(ctx).RPC()), nil
}

// PushObservation RPC接口：写入进口道车辆数
// 功能：更新指定进口道的最近观测值，不触发相位切换
// 说明：方向名不合法或车辆数为负时返回CodeInvalidArgument
func (m *JunctionManager) PushObservation(
	ctx context.Context, in *connect.Request[rpc.PushObservationRequest],
) (*connect.Response[rpc.PushObservationResponse], error) {
	req := in.Msg
	j, err := m.GetOrError(req.JunctionID)
	if err != nil {
		return nil, connect.NewError(connect.CodeNotFound, err)
	}
	l, err := lane.Parse(req.Lane)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if err := j.publisher.PushObservation(l, req.VehicleCount); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	log.Debugf("junction %d: observe %s = %d", j.id, l, req.VehicleCount)
	return connect.NewResponse(&rpc.PushObservationResponse{}), nil
}

// ResetJunction RPC接口：重置指定路口
// 功能：清空观测值，以新的生命周期从north重新开始
func (m *JunctionManager) ResetJunction(
	ctx context.Context, in *connect.Request[rpc.ResetRequest],
) (*connect.Response[rpc.Snapshot], error) {
	snap, err := m.Reset(ctx, in.Msg.JunctionID)
	if err != nil {
		if errors.Is(err, ErrNoJunction) {
			return nil, connect.NewError(connect.CodeNotFound, err)
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(snap), nil
}

// WatchSnapshots RPC接口：订阅指定路口的相位变化
// 功能：先发送当前快照，此后每次进入新相位发送一次，直到客户端断开
// 说明：客户端断开只取消订阅，不影响相位状态
func (m *JunctionManager) WatchSnapshots(
	ctx context.Context, in *connect.Request[rpc.WatchSnapshotsRequest], stream *connect.ServerStream[rpc.Snapshot],
) error {
	j, err := m.GetOrError(in.Msg.JunctionID)
	if err != nil {
		return connect.NewError(connect.CodeNotFound, err)
	}
	id, ch, cancel := j.publisher.Subscribe()
	defer cancel()
	log.Debugf("junction %d: watcher %s connected", j.id, id)
	defer log.Debugf("junction %d: watcher %s disconnected", j.id, id)

	last := j.publisher.Current(ctx)
	if err := stream.Send(last.RPC()); err != nil {
		return err
	}
	for {
		var snap trafficlight.Snapshot
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case snap, ok = <-ch:
			if !ok {
				return nil
			}
		}
		if snap.SamePhase(last) {
			continue
		}
		last = snap
		if err := stream.Send(snap.RPC()); err != nil {
			return err
		}
	}
}
