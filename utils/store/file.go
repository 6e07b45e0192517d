package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// File 文件存储
// 功能：每个路口一个JSON文件（protojson编码的structpb.Struct），通过临时文件+rename原子替换
// 说明：CAS只在本进程内串行化，适用于单个权威进程的部署方式
type File struct {
	dir string
	mtx sync.Mutex
}

// NewFile 创建文件存储
// 参数：dir-存储目录，不存在时自动创建
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir %s: %w", dir, err)
	}
	return &File{dir: dir}, nil
}

func (f *File) path(junctionID int32) string {
	return filepath.Join(f.dir, fmt.Sprintf("junction-%d.json", junctionID))
}

func (f *File) Load(ctx context.Context, junctionID int32) (Record, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.load(junctionID)
}

func (f *File) load(junctionID int32) (Record, error) {
	data, err := os.ReadFile(f.path(junctionID))
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	rec, err := Decode(data)
	if err != nil {
		return Record{}, err
	}
	if rec.JunctionID != junctionID {
		return Record{}, fmt.Errorf("%w: junction id %d in file of junction %d", ErrMalformed, rec.JunctionID, junctionID)
	}
	return rec, nil
}

func (f *File) Create(ctx context.Context, rec Record) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if _, err := os.Stat(f.path(rec.JunctionID)); err == nil {
		return ErrConflict
	}
	return f.write(rec)
}

func (f *File) CompareAndSwap(ctx context.Context, prev, next Record) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	cur, err := f.load(prev.JunctionID)
	if errors.Is(err, ErrNotFound) {
		return ErrConflict
	}
	if err != nil {
		return err
	}
	if !sameRevision(cur, prev) {
		return ErrConflict
	}
	return f.write(next)
}

func (f *File) Delete(ctx context.Context, junctionID int32) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	err := os.Remove(f.path(junctionID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (f *File) Close(ctx context.Context) error {
	return nil
}

func (f *File) write(rec Record) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.dir, ".junction-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path(rec.JunctionID))
}

// Encode 将记录编码为JSON
// 功能：记录 -> structpb.Struct -> protojson，相位开始时刻使用RFC3339（ISO-8601）字符串
func Encode(rec Record) ([]byte, error) {
	s, err := structpb.NewStruct(map[string]any{
		"junction_id":    rec.JunctionID,
		"epoch":          rec.Epoch,
		"version":        rec.Version,
		"active_index":   rec.ActiveIndex,
		"phase_start":    rec.PhaseStart.UTC().Format(time.RFC3339Nano),
		"phase_duration": rec.PhaseDuration,
	})
	if err != nil {
		return nil, err
	}
	return protojson.MarshalOptions{Multiline: true}.Marshal(s)
}

// maxExactInt float64可以精确表示的最大整数
const maxExactInt = 1 << 53

// Decode 从JSON解码记录
// 功能：解析Encode的输出，字段缺失、类型错误或取值非法时返回ErrMalformed
func Decode(data []byte) (Record, error) {
	var s structpb.Struct
	if err := protojson.Unmarshal(data, &s); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	fields := s.GetFields()
	// 整数字段：小数或超出范围都视为损坏，不做截断
	number := func(name string, lo, hi float64) (float64, error) {
		v, ok := fields[name].GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return 0, fmt.Errorf("%w: field %s is not a number", ErrMalformed, name)
		}
		n := v.NumberValue
		if n != math.Trunc(n) || n < lo || n > hi {
			return 0, fmt.Errorf("%w: field %s is not an integer in range: %v", ErrMalformed, name, n)
		}
		return n, nil
	}
	str := func(name string) (string, error) {
		v, ok := fields[name].GetKind().(*structpb.Value_StringValue)
		if !ok {
			return "", fmt.Errorf("%w: field %s is not a string", ErrMalformed, name)
		}
		return v.StringValue, nil
	}

	var rec Record
	var err error
	var n float64
	if n, err = number("junction_id", math.MinInt32, math.MaxInt32); err != nil {
		return Record{}, err
	}
	rec.JunctionID = int32(n)
	if rec.Epoch, err = str("epoch"); err != nil {
		return Record{}, err
	}
	if n, err = number("version", 0, maxExactInt); err != nil {
		return Record{}, err
	}
	rec.Version = int64(n)
	if n, err = number("active_index", math.MinInt32, math.MaxInt32); err != nil {
		return Record{}, err
	}
	rec.ActiveIndex = int32(n)
	if n, err = number("phase_duration", math.MinInt32, math.MaxInt32); err != nil {
		return Record{}, err
	}
	rec.PhaseDuration = int32(n)
	start, err := str("phase_start")
	if err != nil {
		return Record{}, err
	}
	if rec.PhaseStart, err = time.Parse(time.RFC3339Nano, start); err != nil {
		return Record{}, fmt.Errorf("%w: phase_start: %v", ErrMalformed, err)
	}
	if err := rec.Check(); err != nil {
		return Record{}, err
	}
	return rec, nil
}
