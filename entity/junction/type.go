package junction

import (
	"github.com/tsinghua-fib-lab/signal-scheduler/clock"
	"github.com/tsinghua-fib-lab/signal-scheduler/utils/config"
	"github.com/tsinghua-fib-lab/signal-scheduler/utils/store"
)

// 依赖倒置，表达路口管理器对任务上下文的接口需求

// ITaskContext 任务上下文
type ITaskContext interface {
	Clock() *clock.Clock     // 权威时钟
	Store() store.Store      // 相位状态存储
	Control() config.Control // 信控配置
}
