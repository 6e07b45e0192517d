package lane

import (
	"fmt"
	"sync"

	"github.com/samber/lo"
)

// Observations 四个进口道的最新车辆数
// 功能：保存外部检测管线推送的车辆数，按进口道后写覆盖
// 说明：没有观测过的进口道车辆数为0；调度器只在选择相位时读取
type Observations struct {
	mtx    sync.RWMutex
	counts [Count]int32
}

// NewObservations 创建空的观测集合
func NewObservations() *Observations {
	return &Observations{}
}

// Set 更新进口道的车辆数
// 功能：覆盖写入指定进口道的最新车辆数
// 参数：l-进口道，count-车辆数
// 返回：进口道非法或车辆数为负时返回错误
func (o *Observations) Set(l Lane, count int32) error {
	if err := Validate(int32(l)); err != nil {
		return err
	}
	if count < 0 {
		return fmt.Errorf("%w: %s=%d", ErrNegativeVehicle, l, count)
	}
	o.mtx.Lock()
	defer o.mtx.Unlock()
	o.counts[l] = count
	return nil
}

// Count 获取进口道的车辆数
func (o *Observations) Count(l Lane) int32 {
	if Validate(int32(l)) != nil {
		return 0
	}
	o.mtx.RLock()
	defer o.mtx.RUnlock()
	return o.counts[l]
}

// All 获取全部进口道车辆数的副本
func (o *Observations) All() map[Lane]int32 {
	o.mtx.RLock()
	defer o.mtx.RUnlock()
	return lo.SliceToMap(All, func(l Lane) (Lane, int32) {
		return l, o.counts[l]
	})
}

// Clear 清空全部观测
func (o *Observations) Clear() {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	o.counts = [Count]int32{}
}
