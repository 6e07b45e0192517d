package lane

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Lane 路口进口道方向
// 功能：表示路口的四个进口道之一，取值顺序即放行顺序
// 说明：放行总是按 north -> east -> south -> west -> north 循环，不因车流量改变顺序
type Lane int32

const (
	North Lane = iota
	East
	South
	West
)

// Count 进口道数量
const Count = 4

var (
	ErrUnknownLane       = errors.New("unknown lane")
	ErrNegativeVehicle   = errors.New("vehicle count must be non-negative")
	ErrLaneIndexOutRange = errors.New("lane index out of range")
)

var (
	// All 按放行顺序排列的全部进口道
	All = []Lane{North, East, South, West}

	names  = []string{"north", "east", "south", "west"}
	byName = lo.SliceToMap(All, func(l Lane) (string, Lane) {
		return names[l], l
	})
)

// FromIndex 由相位索引得到进口道
// 功能：将任意整数索引按模4映射到进口道
// 参数：i-相位索引
// 返回：对应的进口道
func FromIndex(i int32) Lane {
	i %= Count
	if i < 0 {
		i += Count
	}
	return Lane(i)
}

// Validate 检查索引是否是合法的进口道索引
func Validate(i int32) error {
	if i < 0 || i >= Count {
		return fmt.Errorf("%w: %d", ErrLaneIndexOutRange, i)
	}
	return nil
}

// Parse 解析方向名
// 功能：大小写不敏感地解析方向名
// 参数：s-方向名
// 返回：进口道与错误信息，未知方向返回ErrUnknownLane
func Parse(s string) (Lane, error) {
	if l, ok := byName[strings.ToLower(strings.TrimSpace(s))]; ok {
		return l, nil
	}
	return North, fmt.Errorf("%w: %q", ErrUnknownLane, s)
}

// Index 进口道在放行顺序中的索引
func (l Lane) Index() int32 {
	return int32(l)
}

// Next 放行顺序中的下一个进口道
func (l Lane) Next() Lane {
	return FromIndex(int32(l) + 1)
}

func (l Lane) String() string {
	if l < 0 || l >= Count {
		return fmt.Sprintf("lane(%d)", int32(l))
	}
	return names[l]
}
