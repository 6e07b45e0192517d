package junction

import (
	"github.com/tsinghua-fib-lab/signal-scheduler/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/signal-scheduler/entity/lane"
	"github.com/tsinghua-fib-lab/signal-scheduler/publisher"
)

// Junction 路口
// 功能：一个四进口道路口，由车辆数观测、相位调度器与快照发布者组成
type Junction struct {
	id           int32
	observations *lane.Observations
	scheduler    *trafficlight.Scheduler
	publisher    *publisher.Publisher
}

// newJunction 创建路口
// 参数：ctx-任务上下文，id-路口ID，policy-配时策略
func newJunction(ctx ITaskContext, id int32, policy trafficlight.Policy) *Junction {
	observations := lane.NewObservations()
	scheduler := trafficlight.NewScheduler(
		id, ctx.Clock(), ctx.Store(), observations, policy, ctx.Control().YellowTime,
	)
	return &Junction{
		id:           id,
		observations: observations,
		scheduler:    scheduler,
		publisher:    publisher.New(scheduler, observations),
	}
}

func (j *Junction) ID() int32 {
	return j.id
}

func (j *Junction) Scheduler() *trafficlight.Scheduler {
	return j.scheduler
}

func (j *Junction) Publisher() *publisher.Publisher {
	return j.publisher
}

func (j *Junction) Observations() *lane.Observations {
	return j.observations
}
