package clock

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"git.fiblab.net/sim/syncer/v3"
	"github.com/tsinghua-fib-lab/signal-scheduler/utils/rpc"
)

// Handler 构造ClockService的connect处理器
// 功能：返回服务路径前缀与对应的http.Handler
// 参数：opts-connect处理器选项
// 说明：观察者可以用Now测量自己与权威进程之间的时钟偏差，但剩余时间仍以权威快照为准
func (c *Clock) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(rpc.NowProcedure, connect.NewUnaryHandler(
		rpc.NowProcedure,
		c.rpcNow,
		rpc.HandlerOptions(opts...)...,
	))
	return "/" + rpc.ClockServiceName + "/", mux
}

// Register 将ClockService注册到sidecar
// 功能：注册时钟服务的RPC处理器到sidecar中
// 参数：sidecar-sidecar实例
func (c *Clock) Register(sidecar *syncer.Sidecar) {
	sidecar.Register(rpc.ClockServiceName, c.Handler, syncer.WithNoLock())
}

// rpcNow 获取权威进程的当前时刻
func (c *Clock) rpcNow(ctx context.Context, in *connect.Request[rpc.NowRequest]) (*connect.Response[rpc.NowResponse], error) {
	return connect.NewResponse(&rpc.NowResponse{
		UnixMilli: c.Now().UnixMilli(),
	}), nil
}
