package clock

import (
	"fmt"
	"sync"
	"time"
)

// Clock 信控时钟
// 功能：为信控调度提供当前时刻，支持真实时钟与手动时钟（测试用）
// 说明：相位剩余时间总是由绝对时刻重新计算，时钟只负责给出"现在"
type Clock struct {
	mtx sync.RWMutex
	now func() time.Time // 真实时钟时为time.Now，手动时钟时为nil
	t   time.Time        // 手动时钟当前时刻
}

// NewWall 创建基于系统时间的时钟
func NewWall() *Clock {
	return &Clock{now: time.Now}
}

// NewManual 创建手动推进的时钟
// 功能：创建停在指定时刻的时钟，只有调用Set/Advance才会改变
// 参数：t-初始时刻
// 返回：手动时钟实例
// 说明：用于测试与回放，调度结果与调用频率无关
func NewManual(t time.Time) *Clock {
	return &Clock{t: t}
}

// Now 获取当前时刻
func (c *Clock) Now() time.Time {
	if c.now != nil {
		return c.now()
	}
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.t
}

// Set 设置手动时钟的当前时刻
func (c *Clock) Set(t time.Time) {
	if c.now != nil {
		log.Panic("cannot set a wall clock")
	}
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.t = t
}

// Advance 推进手动时钟
// 功能：将手动时钟向前推进d
// 参数：d-推进时长
func (c *Clock) Advance(d time.Duration) {
	if c.now != nil {
		log.Panic("cannot advance a wall clock")
	}
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.t = c.t.Add(d)
}

// Elapsed 计算相位已经过的秒数
// 功能：elapsed = floor(now - start)，以秒为单位
// 参数：start-相位开始时刻，now-当前时刻
// 返回：已经过秒数，不会为负
// 说明：now早于start（时钟回拨、多进程时钟偏差）时视为刚开始
func Elapsed(start, now time.Time) int32 {
	d := now.Sub(start)
	if d <= 0 {
		return 0
	}
	return int32(d / time.Second)
}

// Remaining 计算相位剩余秒数
// 功能：remaining = max(duration - elapsed, 0)
// 参数：duration-相位时长，elapsed-已经过秒数
// 返回：剩余秒数，不会为负
func Remaining(duration, elapsed int32) int32 {
	if r := duration - elapsed; r > 0 {
		return r
	}
	return 0
}

// Format 将秒数格式化为可读的字符串
// 功能：将秒数格式化为MM:SS，超过1小时时格式化为HH:MM:SS
// 参数：seconds-秒数
// 返回：格式化后的字符串
func Format(seconds int32) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := seconds % 3600 / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
