// 信控服务的RPC约定
// 服务端（sidecar中注册的connect handler）与客户端（observer）共用本包中的过程名、消息结构与编解码器
package rpc

import (
	"encoding/json"

	"connectrpc.com/connect"
)

const (
	SignalServiceName = "signal.v1.SignalService"
	ClockServiceName  = "signal.v1.ClockService"

	GetSnapshotProcedure     = "/" + SignalServiceName + "/GetSnapshot"
	PushObservationProcedure = "/" + SignalServiceName + "/PushObservation"
	ResetProcedure           = "/" + SignalServiceName + "/Reset"
	WatchSnapshotsProcedure  = "/" + SignalServiceName + "/WatchSnapshots"

	NowProcedure = "/" + ClockServiceName + "/Now"
)

// JSONCodec 以JSON编码普通Go结构体的connect编解码器
// 说明：消息不是protobuf生成的类型，因此以同名"json"覆盖connect默认的protojson编解码器
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// HandlerOptions 服务端handler的公共选项
func HandlerOptions(opts ...connect.HandlerOption) []connect.HandlerOption {
	return append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)
}

// ClientOptions 客户端的公共选项
func ClientOptions(opts ...connect.ClientOption) []connect.ClientOption {
	return append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, opts...)
}
