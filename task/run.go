package task

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/signal-scheduler/clock"
	"github.com/tsinghua-fib-lab/signal-scheduler/entity/junction"
	"github.com/tsinghua-fib-lab/signal-scheduler/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/signal-scheduler/entity/lane"
	"github.com/tsinghua-fib-lab/signal-scheduler/utils/rpc"
)

var (
	heartBeatInterval = flag.Int("log.heartbeat_interval", 60, "心跳日志间隔（轮询次数）")
)

// Run 运行
// 功能：启动所有路口并按固定间隔轮询，直到ctx结束
// 算法说明：
// 1. 启动所有路口的调度器（恢复状态并追赶）
// 2. 启动websocket推送中心与演示输入（如果启用）
// 3. 每个轮询间隔刷新所有路口，并把快照推送给仪表盘
// 4. ctx结束后关闭sidecar与存储
// 说明：轮询只决定推送节奏，相位切换的时刻由相位开始时刻与时长决定，与轮询间隔无关
func (t *Context) Run(ctx context.Context) {
	t.junctionManager.Start(ctx)
	go t.hub.Run(ctx)
	if t.config.Demo.Enable {
		go t.feed(ctx)
	}

	ticker := time.NewTicker(t.config.Control.PollInterval())
	defer ticker.Stop()
	for step := 1; ; step++ {
		select {
		case <-ctx.Done():
			log.Infof("engine complete")
			t.Close()
			return
		case <-ticker.C:
		}
		snapshots := t.tick(ctx)
		if *heartBeatInterval > 0 && step%*heartBeatInterval == 0 {
			log.Infof("STEP: %d %s", step, summary(snapshots))
		}
	}
}

// tick 刷新一次所有路口并推送
func (t *Context) tick(ctx context.Context) []trafficlight.Snapshot {
	snapshots := t.junctionManager.Tick(ctx)
	t.hub.Publish(lo.Map(snapshots, func(s trafficlight.Snapshot, _ int) *rpc.Snapshot {
		return s.RPC()
	}))
	return snapshots
}

// feed 演示输入
// 功能：没有外部检测程序时，每隔demo.interval为每个路口的每个进口道写入一个随机车辆数
func (t *Context) feed(ctx context.Context) {
	ticker := time.NewTicker(t.config.Demo.PushInterval())
	defer ticker.Stop()
	t.push()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.push()
		}
	}
}

func (t *Context) push() {
	for _, j := range t.junctionManager.Junctions() {
		t.pushJunction(j)
	}
}

func (t *Context) pushJunction(j *junction.Junction) {
	for _, l := range lane.All {
		count := t.generator.VehicleCount(t.config.Demo.MaxCount)
		if err := j.Publisher().PushObservation(l, count); err != nil {
			log.Warnf("junction %d: demo observation rejected: %v", j.ID(), err)
		}
	}
}

func summary(snapshots []trafficlight.Snapshot) string {
	return strings.Join(lo.Map(snapshots, func(s trafficlight.Snapshot, _ int) string {
		return fmt.Sprintf("%d:%s(%s)", s.JunctionID, s.ActiveLane, clock.Format(s.RemainingSeconds))
	}), " ")
}
