package trafficlight

import "github.com/tsinghua-fib-lab/signal-scheduler/entity/lane"

// 依赖倒置，表达调度器对车辆数来源的接口需求

// ObservationReader 车辆数读取接口
type ObservationReader interface {
	Count(l lane.Lane) int32  // 进口道最新车辆数，未观测为0
	All() map[lane.Lane]int32 // 全部进口道车辆数
}
