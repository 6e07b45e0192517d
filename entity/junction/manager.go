package junction

import (
	"context"
	"errors"
	"fmt"

	"git.fiblab.net/general/common/v2/parallel"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/signal-scheduler/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/signal-scheduler/utils"
	"github.com/tsinghua-fib-lab/signal-scheduler/utils/rpc"
)

var (
	ErrNoJunction = errors.New("no such junction")
)

// JunctionManager 路口管理器
// 功能：管理本进程负责调度的全部路口
type JunctionManager struct {
	ctx ITaskContext

	data      map[int32]*Junction
	junctions []*Junction
}

// NewManager 创建路口管理器实例
// 参数：ctx-任务上下文
// 返回：新创建的路口管理器实例
func NewManager(ctx ITaskContext) *JunctionManager {
	return &JunctionManager{
		ctx:       ctx,
		data:      make(map[int32]*Junction),
		junctions: make([]*Junction, 0),
	}
}

// Init 初始化所有路口
// 功能：按路口ID列表创建路口及其调度器，建立ID索引
// 参数：ids-路口ID列表，重复的ID只创建一次
func (m *JunctionManager) Init(ids []int32) {
	policy := trafficlight.NewPolicy(m.ctx.Control().Policy)
	m.junctions = parallel.GoMap(lo.Uniq(ids), func(id int32) *Junction {
		return newJunction(m.ctx, id, policy)
	})
	m.data = lo.SliceToMap(m.junctions, func(j *Junction) (int32, *Junction) {
		return j.id, j
	})
	log.Infof("Junction: %v", len(m.junctions))
}

// Start 启动所有路口的调度器
// 功能：从存储恢复相位状态并追赶停机期间的切换
// 说明：使用并行处理，各路口互不影响
func (m *JunctionManager) Start(ctx context.Context) {
	parallel.GoFor(m.junctions, func(j *Junction) { j.scheduler.Start(ctx) })
}

// Tick 刷新所有路口
// 功能：由轮询循环调用，刷新每个路口并在相位变化时通知订阅者
// 返回：所有路口的最新快照，顺序与Init时一致
func (m *JunctionManager) Tick(ctx context.Context) []trafficlight.Snapshot {
	return parallel.GoMap(m.junctions, func(j *Junction) trafficlight.Snapshot {
		snap, _ := j.publisher.Tick(ctx)
		return snap
	})
}

// Get 根据ID获取路口，不存在则panic
func (m *JunctionManager) Get(id int32) *Junction {
	if junction, ok := m.data[id]; !ok {
		log.Panicf("no id %d in junction data", id)
		return nil
	} else {
		return junction
	}
}

// GetOrError 根据ID获取路口
// 返回：路口实例，不存在时返回ErrNoJunction
func (m *JunctionManager) GetOrError(id int32) (*Junction, error) {
	if junction, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoJunction, id)
	} else {
		return junction, nil
	}
}

// Junctions 全部路口
func (m *JunctionManager) Junctions() []*Junction {
	return m.junctions
}

// Snapshots 指定路口的当前快照（对外结构）
// 参数：ctx-上下文，ids-路口ID，为空时返回全部路口
// 说明：不存在的ID被忽略
func (m *JunctionManager) Snapshots(ctx context.Context, ids ...int32) []*rpc.Snapshot {
	junctions, failed := utils.Find(m.data, m.junctions, ids)
	if len(failed) > 0 {
		log.Debugf("ignore unknown junctions %v", failed)
	}
	return parallel.GoMap(junctions, func(j *Junction) *rpc.Snapshot {
		return j.publisher.Current(ctx).RPC()
	})
}

// Reset 重置指定路口
// 功能：清空观测并以新的生命周期重新开始，供RPC与仪表盘的清空操作使用
func (m *JunctionManager) Reset(ctx context.Context, id int32) (*rpc.Snapshot, error) {
	j, err := m.GetOrError(id)
	if err != nil {
		return nil, err
	}
	return j.publisher.Reset(ctx).RPC(), nil
}
