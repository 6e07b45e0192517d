package trafficlight

import (
	"time"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/signal-scheduler/entity/lane"
	"github.com/tsinghua-fib-lab/signal-scheduler/utils/rpc"
)

// Status 进口道在快照中的角色
type Status string

const (
	StatusActive  Status = "active"  // 当前放行
	StatusNext    Status = "next"    // 下一个放行
	StatusWaiting Status = "waiting" // 等待
)

// Snapshot 信控快照
// 功能：某一时刻的只读投影，所有观察者的active/next/waiting展示都只由快照推出
type Snapshot struct {
	JunctionID       int32
	Epoch            string
	Version          int64
	ActiveLane       lane.Lane
	NextLane         lane.Lane
	PhaseStart       time.Time
	PhaseDuration    int32
	RemainingSeconds int32
	YellowTime       int32
	Observations     map[lane.Lane]int32
	At               time.Time
}

// ActiveIndex 当前放行进口道索引
func (s Snapshot) ActiveIndex() int32 {
	return s.ActiveLane.Index()
}

// SamePhase 判断两个快照是否处于同一相位
// 说明：生命周期、放行进口道与相位开始时刻都相同才算同一相位
func (s Snapshot) SamePhase(o Snapshot) bool {
	return s.Epoch == o.Epoch && s.ActiveLane == o.ActiveLane && s.PhaseStart.Equal(o.PhaseStart)
}

// Status 进口道的角色
func (s Snapshot) Status(l lane.Lane) Status {
	switch l {
	case s.ActiveLane:
		return StatusActive
	case s.NextLane:
		return StatusNext
	default:
		return StatusWaiting
	}
}

// Light 进口道的信号灯颜色
// 功能：当前放行进口道为绿灯，剩余时间不超过黄灯时间时为黄灯，其余进口道为红灯
func (s Snapshot) Light(l lane.Lane) mapv2.LightState {
	if l != s.ActiveLane {
		return mapv2.LightState_LIGHT_STATE_RED
	}
	if s.RemainingSeconds <= s.YellowTime {
		return mapv2.LightState_LIGHT_STATE_YELLOW
	}
	return mapv2.LightState_LIGHT_STATE_GREEN
}

// RPC 转换为对外推送的结构
func (s Snapshot) RPC() *rpc.Snapshot {
	return &rpc.Snapshot{
		JunctionID:       s.JunctionID,
		Epoch:            s.Epoch,
		Version:          s.Version,
		ActiveIndex:      s.ActiveIndex(),
		ActiveLane:       s.ActiveLane.String(),
		NextLane:         s.NextLane.String(),
		PhaseStart:       s.PhaseStart,
		PhaseDuration:    s.PhaseDuration,
		RemainingSeconds: s.RemainingSeconds,
		Lanes: lo.Map(lane.All, func(l lane.Lane, _ int) rpc.LaneState {
			return rpc.LaneState{
				Lane:         l.String(),
				VehicleCount: s.Observations[l],
				Status:       string(s.Status(l)),
				Light:        s.Light(l).String(),
			}
		}),
		At: s.At,
	}
}
