package trafficlight

import (
	"time"

	"github.com/tsinghua-fib-lab/signal-scheduler/entity/lane"
	"github.com/tsinghua-fib-lab/signal-scheduler/utils/store"
)

// PhaseState 相位状态
// 功能：当前放行进口道、相位开始时刻与相位时长，只由Scheduler修改
type PhaseState struct {
	Epoch         string    // 生命周期标识，首次启动与reset时重新生成
	Version       int64     // 最近一次写入存储的版本，未写入时为0
	ActiveIndex   int32     // 当前放行进口道索引
	PhaseStart    time.Time // 当前相位开始时刻
	PhaseDuration int32     // 当前相位时长（秒）
}

// ActiveLane 当前放行的进口道
func (s PhaseState) ActiveLane() lane.Lane {
	return lane.FromIndex(s.ActiveIndex)
}

// End 当前相位的结束时刻
func (s PhaseState) End() time.Time {
	return s.PhaseStart.Add(time.Duration(s.PhaseDuration) * time.Second)
}

func (s PhaseState) record(junctionID int32) store.Record {
	return store.Record{
		JunctionID:    junctionID,
		Epoch:         s.Epoch,
		Version:       s.Version,
		ActiveIndex:   s.ActiveIndex,
		PhaseStart:    s.PhaseStart,
		PhaseDuration: s.PhaseDuration,
	}
}

func stateFromRecord(rec store.Record) PhaseState {
	return PhaseState{
		Epoch:         rec.Epoch,
		Version:       rec.Version,
		ActiveIndex:   rec.ActiveIndex,
		PhaseStart:    rec.PhaseStart,
		PhaseDuration: rec.PhaseDuration,
	}
}
