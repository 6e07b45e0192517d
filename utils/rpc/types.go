package rpc

import "time"

// LaneState 单个进口道在快照中的状态
type LaneState struct {
	Lane         string `json:"lane"`          // 方向名（north/east/south/west）
	VehicleCount int32  `json:"vehicle_count"` // 最近一次观测到的车辆数
	Status       string `json:"status"`        // active|next|waiting
	Light        string `json:"light"`         // 信号灯颜色
}

// Snapshot 信控快照，对外推送与查询的统一结构
type Snapshot struct {
	JunctionID       int32       `json:"junction_id"`
	Epoch            string      `json:"epoch"`
	Version          int64       `json:"version"`
	ActiveIndex      int32       `json:"active_index"`
	ActiveLane       string      `json:"active_lane"`
	NextLane         string      `json:"next_lane"`
	PhaseStart       time.Time   `json:"phase_start"`
	PhaseDuration    int32       `json:"phase_duration"`
	RemainingSeconds int32       `json:"remaining_seconds"`
	Lanes            []LaneState `json:"lanes"`
	At               time.Time   `json:"at"`
}

type GetSnapshotRequest struct {
	JunctionID int32 `json:"junction_id"`
}

type PushObservationRequest struct {
	JunctionID   int32  `json:"junction_id"`
	Lane         string `json:"lane"`
	VehicleCount int32  `json:"vehicle_count"`
}

type PushObservationResponse struct{}

type ResetRequest struct {
	JunctionID int32 `json:"junction_id"`
}

type WatchSnapshotsRequest struct {
	JunctionID int32 `json:"junction_id"`
}

type NowRequest struct{}

type NowResponse struct {
	UnixMilli int64 `json:"unix_milli"`
}
