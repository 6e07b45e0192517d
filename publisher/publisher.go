package publisher

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/tsinghua-fib-lab/signal-scheduler/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/signal-scheduler/entity/lane"
)

// Publisher 单个路口的快照发布者
// 功能：对外提供当前快照、写入车辆数观测以及相位变化通知
// 说明：
//   - 所有读取都经过Scheduler.Refresh，观察者看到的快照总是已经处理过到期切换
//   - 订阅者只是读者，取消订阅不会影响相位状态
type Publisher struct {
	scheduler    *trafficlight.Scheduler
	observations *lane.Observations

	mtx         sync.Mutex
	last        *trafficlight.Snapshot
	subscribers map[uuid.UUID]chan trafficlight.Snapshot
}

// New 创建快照发布者
// 参数：scheduler-相位调度器，observations-与调度器共享的车辆数观测
func New(scheduler *trafficlight.Scheduler, observations *lane.Observations) *Publisher {
	return &Publisher{
		scheduler:    scheduler,
		observations: observations,
		subscribers:  make(map[uuid.UUID]chan trafficlight.Snapshot),
	}
}

// Current 获取当前快照
// 功能：刷新调度器并返回最新快照，若相位发生变化则通知订阅者
func (p *Publisher) Current(ctx context.Context) trafficlight.Snapshot {
	snap, _ := p.Tick(ctx)
	return snap
}

// Tick 刷新一次
// 功能：供轮询循环调用，刷新调度器并在相位变化时通知订阅者
// 返回：最新快照，以及相对上一次发布是否进入了新的相位
func (p *Publisher) Tick(ctx context.Context) (trafficlight.Snapshot, bool) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	snap := p.scheduler.Refresh(ctx)
	return snap, p.publish(snap)
}

// PushObservation 写入进口道车辆数
// 功能：只更新观测值，不触发切换；新值在该进口道下一次被选为放行时决定相位时长
func (p *Publisher) PushObservation(l lane.Lane, count int32) error {
	return p.observations.Set(l, count)
}

// Reset 外部重置
// 功能：清空车辆数观测，以新的生命周期从north重新开始，并通知订阅者
func (p *Publisher) Reset(ctx context.Context) trafficlight.Snapshot {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.observations.Clear()
	snap := p.scheduler.Reset(ctx)
	p.publish(snap)
	return snap
}

// Subscribe 订阅相位变化
// 返回：订阅ID，只读通道，取消订阅函数
// 说明：通道只保留最新一次未读取的变化，消费过慢的订阅者会跳过中间的快照
func (p *Publisher) Subscribe() (uuid.UUID, <-chan trafficlight.Snapshot, func()) {
	id := uuid.New()
	ch := make(chan trafficlight.Snapshot, 1)
	p.mtx.Lock()
	p.subscribers[id] = ch
	p.mtx.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mtx.Lock()
			defer p.mtx.Unlock()
			delete(p.subscribers, id)
			close(ch)
		})
	}
	return id, ch, cancel
}

// Subscribers 当前订阅者数量
func (p *Publisher) Subscribers() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return len(p.subscribers)
}

// publish 相位变化时向所有订阅者投递快照，调用方持有mtx
func (p *Publisher) publish(snap trafficlight.Snapshot) bool {
	if p.last != nil && p.last.SamePhase(snap) {
		return false
	}
	p.last = &snap
	for _, ch := range p.subscribers {
		select {
		case ch <- snap:
		default:
			// 丢弃未读取的旧快照
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
	return true
}
