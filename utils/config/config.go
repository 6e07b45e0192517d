package config

import (
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StorageMongo    = "mongo"
	StoragePostgres = "postgres"
)

var (
	ErrInvalidStorage = errors.New("invalid storage config")
	ErrInvalidControl = errors.New("invalid control config")
	ErrInvalidDemo    = errors.New("invalid demo config")
)

// Default 默认配置
// 功能：返回单路口、内存存储、25辆车阈值、30/45秒相位的配置
func Default() Config {
	c := Config{}
	c.SetDefaults()
	return c
}

// Parse 解析YAML配置
// 功能：严格解析YAML（未知字段报错），补全默认值并校验
// 参数：data-YAML数据
// 返回：配置对象与错误信息
func Parse(data []byte) (Config, error) {
	var c Config
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return Config{}, fmt.Errorf("config file load err: %w", err)
	}
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// SetDefaults 为零值字段填充默认值
func (c *Config) SetDefaults() {
	if c.Storage.Type == "" {
		c.Storage.Type = StorageMemory
	}
	if c.Storage.Type == StorageFile && c.Storage.File == "" {
		c.Storage.File = "state"
	}
	if c.Storage.DB == "" {
		c.Storage.DB = "trafficiq"
	}
	if c.Storage.Col == "" {
		c.Storage.Col = "phase_state"
	}
	if c.Storage.Table == "" {
		c.Storage.Table = "phase_state"
	}
	if len(c.Control.Junctions) == 0 {
		c.Control.Junctions = []int32{0}
	}
	if c.Control.Interval == 0 {
		c.Control.Interval = 1
	}
	if c.Control.YellowTime == 0 {
		c.Control.YellowTime = 5
	}
	if c.Control.Policy == (Policy{}) {
		c.Control.Policy = Policy{Threshold: 25, Short: 30, Long: 45}
	}
	if c.Demo.Interval == 0 {
		c.Demo.Interval = 10
	}
	if c.Demo.MaxCount == 0 {
		c.Demo.MaxCount = 40
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case StorageMemory, StorageFile:
	case StorageMongo:
		if c.Storage.URI == "" {
			return fmt.Errorf("%w: mongo storage requires uri", ErrInvalidStorage)
		}
	case StoragePostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("%w: postgres storage requires dsn", ErrInvalidStorage)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidStorage, c.Storage.Type)
	}
	if c.Control.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidControl)
	}
	if c.Control.YellowTime < 0 {
		return fmt.Errorf("%w: yellow_time must be non-negative", ErrInvalidControl)
	}
	p := c.Control.Policy
	if p.Short <= 0 || p.Long <= 0 || p.Threshold < 0 {
		return fmt.Errorf("%w: policy %+v", ErrInvalidControl, p)
	}
	seen := make(map[int32]struct{}, len(c.Control.Junctions))
	for _, id := range c.Control.Junctions {
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: duplicated junction id %d", ErrInvalidControl, id)
		}
		seen[id] = struct{}{}
	}
	if c.Demo.Enable && (c.Demo.Interval <= 0 || c.Demo.MaxCount < 0) {
		return fmt.Errorf("%w: %+v", ErrInvalidDemo, c.Demo)
	}
	return nil
}

// PollInterval 轮询间隔
func (c Control) PollInterval() time.Duration {
	return time.Duration(c.Interval * float64(time.Second))
}

// PushInterval 演示输入的推送间隔
func (d Demo) PushInterval() time.Duration {
	return time.Duration(d.Interval * float64(time.Second))
}
