// 随机数引擎，包装了golang.org/x/exp/rand，为演示输入提供可复现的随机车辆数
package randengine

import (
	"flag"
	"sync"

	"golang.org/x/exp/rand"
)

var (
	seedOffset = flag.Uint64("rand.seed_offset", 0, "seed offset") // 种子偏移量，用于调整随机数生成
)

// Engine 随机数引擎
// 功能：线程安全的随机数生成
// 说明：基于golang.org/x/exp/rand库，相同种子得到相同序列
type Engine struct {
	*rand.Rand            // 底层随机数生成器
	mtx        sync.Mutex // 互斥锁，用于线程安全操作
}

// New 创建随机数引擎
// 功能：初始化一个新的随机数引擎实例
// 参数：seed-随机数种子
// 返回：随机数引擎指针
// 说明：种子偏移量允许在不修改配置的情况下调整随机数序列
func New(seed uint64) *Engine {
	return &Engine{Rand: rand.New(rand.NewSource(seed + *seedOffset))}
}

// IntnSafe 随机生成[0, n)范围内的整数（线程安全）
func (e *Engine) IntnSafe(n int) int {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.Intn(n)
}

// VehicleCount 随机生成车辆数（线程安全）
// 参数：limit-车辆数上限（包含）
// 返回：[0, limit]范围内均匀分布的车辆数，limit<=0时返回0
func (e *Engine) VehicleCount(limit int32) int32 {
	if limit <= 0 {
		return 0
	}
	return int32(e.IntnSafe(int(limit) + 1))
}
