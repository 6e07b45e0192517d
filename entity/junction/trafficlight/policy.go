package trafficlight

import "github.com/tsinghua-fib-lab/signal-scheduler/utils/config"

// Policy 车流密度分级策略
// 功能：将进口道车辆数映射为相位时长，车辆数达到阈值使用长相位，否则使用短相位
// 说明：这是需求影响配时的唯一途径，不做按比例的连续配时，也不提供最小绿灯或防饿死保证
type Policy struct {
	Threshold int32 // 长相位的车辆数阈值
	Short     int32 // 短相位时长（秒）
	Long      int32 // 长相位时长（秒）
}

// DefaultPolicy 默认策略：25辆车及以上45秒，否则30秒
var DefaultPolicy = Policy{Threshold: 25, Short: 30, Long: 45}

// NewPolicy 从配置创建策略
func NewPolicy(c config.Policy) Policy {
	return Policy{Threshold: c.Threshold, Short: c.Short, Long: c.Long}
}

// Duration 根据车辆数计算相位时长
func (p Policy) Duration(vehicleCount int32) int32 {
	if vehicleCount >= p.Threshold {
		return p.Long
	}
	return p.Short
}
