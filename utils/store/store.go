// 相位状态记录的持久化
// 记录带有epoch与version：epoch在每次生命周期开始（首次启动、reset）时重新生成，version在每次写入时加一。
// 所有写入都以(epoch, version)为条件做CAS，多个进程同时切换相位时只有一个能写入成功。
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tsinghua-fib-lab/signal-scheduler/utils/config"
)

var (
	ErrNotFound  = errors.New("phase state not found")
	ErrConflict  = errors.New("phase state version conflict")
	ErrMalformed = errors.New("malformed phase state")
)

// Record 持久化的相位状态
type Record struct {
	JunctionID    int32     // 路口ID
	Epoch         string    // 生命周期标识
	Version       int64     // 写入版本，从1开始
	ActiveIndex   int32     // 当前放行进口道索引[0,3]
	PhaseStart    time.Time // 当前相位开始时刻
	PhaseDuration int32     // 当前相位时长（秒）
}

// Check 检查记录的合法性
// 说明：读出的记录不合法时按ErrMalformed处理，调度器会当作没有历史状态
func (r Record) Check() error {
	switch {
	case r.Epoch == "":
		return fmt.Errorf("%w: empty epoch", ErrMalformed)
	case r.Version <= 0:
		return fmt.Errorf("%w: version %d", ErrMalformed, r.Version)
	case r.ActiveIndex < 0 || r.ActiveIndex > 3:
		return fmt.Errorf("%w: active index %d", ErrMalformed, r.ActiveIndex)
	case r.PhaseDuration <= 0:
		return fmt.Errorf("%w: phase duration %d", ErrMalformed, r.PhaseDuration)
	case r.PhaseStart.IsZero():
		return fmt.Errorf("%w: zero phase start", ErrMalformed)
	}
	return nil
}

// Store 相位状态存储
type Store interface {
	// 读取路口的相位状态，不存在返回ErrNotFound，内容损坏返回ErrMalformed
	Load(ctx context.Context, junctionID int32) (Record, error)
	// 写入新的记录，已存在时返回ErrConflict
	Create(ctx context.Context, rec Record) error
	// 当存储中的记录与prev的(epoch, version)一致时替换为next，否则返回ErrConflict
	CompareAndSwap(ctx context.Context, prev, next Record) error
	// 删除路口的相位状态，不存在时不报错
	Delete(ctx context.Context, junctionID int32) error
	// 关闭存储
	Close(ctx context.Context) error
}

// Open 根据配置创建存储
// 功能：按storage.type创建对应的存储后端
// 参数：ctx-上下文，c-存储配置
// 返回：存储实例与错误信息
func Open(ctx context.Context, c config.Storage) (Store, error) {
	switch c.Type {
	case config.StorageMemory, "":
		return NewMemory(), nil
	case config.StorageFile:
		return NewFile(c.File)
	case config.StorageMongo:
		return NewMongo(ctx, c)
	case config.StoragePostgres:
		return NewPostgres(ctx, c.DSN, c.Table)
	default:
		return nil, fmt.Errorf("unknown storage type %q", c.Type)
	}
}

func sameRevision(a, b Record) bool {
	return a.JunctionID == b.JunctionID && a.Epoch == b.Epoch && a.Version == b.Version
}
