package trafficlight

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tsinghua-fib-lab/signal-scheduler/clock"
	"github.com/tsinghua-fib-lab/signal-scheduler/entity/lane"
	"github.com/tsinghua-fib-lab/signal-scheduler/utils/store"
)

// maxPersistAttempts 一次刷新中因CAS冲突重新读取状态的最多次数
const maxPersistAttempts = 3

// Scheduler 相位调度器
// 功能：按 north -> east -> south -> west 循环放行，每个相位的时长在相位开始时由当时的车辆数决定
// 说明：
//   - 剩余时间总是由(相位开始时刻, 相位时长, 当前时刻)重新计算，不依赖刷新频率
//   - 相位到期后下一相位从到期时刻开始，因此任意刷新节奏得到相同的切换序列
//   - 每次刷新最多写入一次存储，写入以(epoch, version)做CAS；冲突时采用胜者的状态，不重放自己的切换
//   - 所有操作由mtx串行化
type Scheduler struct {
	mtx sync.Mutex

	junctionID   int32
	policy       Policy
	yellowTime   int32
	clock        *clock.Clock
	store        store.Store
	observations ObservationReader

	started bool
	state   PhaseState    // 当前相位状态
	base    *store.Record // 存储中最近一次确认的记录，nil表示存储中没有本生命周期的记录
	dirty   bool          // state尚未写入存储
}

// NewScheduler 创建相位调度器
// 参数：junctionID-路口ID，c-时钟，s-状态存储，observations-车辆数来源，policy-配时策略，yellowTime-黄灯显示时间
// 返回：未启动的调度器，首次Start或Refresh时恢复或初始化状态
func NewScheduler(
	junctionID int32,
	c *clock.Clock,
	s store.Store,
	observations ObservationReader,
	policy Policy,
	yellowTime int32,
) *Scheduler {
	if policy.Short <= 0 || policy.Long <= 0 {
		log.Panicf("junction %d: invalid policy %+v", junctionID, policy)
	}
	return &Scheduler{
		junctionID:   junctionID,
		policy:       policy,
		yellowTime:   yellowTime,
		clock:        c,
		store:        s,
		observations: observations,
	}
}

// JunctionID 所属路口ID
func (s *Scheduler) JunctionID() int32 {
	return s.junctionID
}

// Start 启动调度器
// 功能：从存储恢复相位状态并追赶停机期间应当发生的切换
// 参数：ctx-上下文
// 返回：追赶完成后的快照
// 算法说明：
// 1. 读取存储中的记录，存在且合法则直接采用
// 2. 不存在或损坏则执行初始切换（north，当前时刻，north车辆数对应的时长）
// 3. 读取失败时同样执行初始切换，后续刷新会重试写入，写入冲突时采用存储中的状态
// 4. 立即刷新一次，逐个相位追赶
func (s *Scheduler) Start(ctx context.Context) Snapshot {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.start(ctx)
	return s.refresh(ctx)
}

// Refresh 刷新相位状态
// 功能：若当前相位已到期则切换到下一进口道（必要时连续切换多个相位），并返回最新快照
// 参数：ctx-上下文
// 返回：最新快照
// 说明：同一时刻重复调用不会重复切换
func (s *Scheduler) Refresh(ctx context.Context) Snapshot {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if !s.started {
		s.start(ctx)
	}
	return s.refresh(ctx)
}

// Reset 重置相位状态
// 功能：以新的生命周期重新执行初始切换，并替换存储中的记录
// 参数：ctx-上下文
// 返回：重置后的快照
// 说明：存储中的记录被直接替换而不是先删除再创建，避免其他进程在两步之间写回旧的生命周期
func (s *Scheduler) Reset(ctx context.Context) Snapshot {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.started = true
	s.state = s.initialState()
	s.dirty = true
	log.Infof("junction %d: reset, green %s (%ds)", s.junctionID, s.state.ActiveLane(), s.state.PhaseDuration)

	for attempt := 0; attempt < maxPersistAttempts; attempt++ {
		cur, err := s.store.Load(ctx, s.junctionID)
		switch {
		case err == nil:
			s.base = &cur
		case errors.Is(err, store.ErrNotFound):
			s.base = nil
		case errors.Is(err, store.ErrMalformed):
			log.Warnf("junction %d: drop malformed phase state: %v", s.junctionID, err)
			if err := s.store.Delete(ctx, s.junctionID); err != nil {
				log.Errorf("junction %d: failed to delete phase state: %v", s.junctionID, err)
			}
			s.base = nil
		default:
			log.Errorf("junction %d: failed to load phase state: %v", s.junctionID, err)
			return s.snapshot(s.clock.Now())
		}
		if err := s.persist(ctx); !errors.Is(err, store.ErrConflict) {
			break
		}
	}
	return s.snapshot(s.clock.Now())
}

// Peek 不刷新地获取当前快照
func (s *Scheduler) Peek() Snapshot {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.snapshot(s.clock.Now())
}

// State 获取当前相位状态
func (s *Scheduler) State() PhaseState {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.state
}

func (s *Scheduler) start(ctx context.Context) {
	s.started = true
	rec, err := s.store.Load(ctx, s.junctionID)
	switch {
	case err == nil:
		s.state = stateFromRecord(rec)
		s.base = &rec
		s.dirty = false
		log.Infof(
			"junction %d: rehydrate %s since %s (%ds), version %d",
			s.junctionID, s.state.ActiveLane(), s.state.PhaseStart.Format(time.RFC3339), s.state.PhaseDuration, rec.Version,
		)
		return
	case errors.Is(err, store.ErrNotFound):
		log.Infof("junction %d: no prior phase state", s.junctionID)
	case errors.Is(err, store.ErrMalformed):
		log.Warnf("junction %d: ignore malformed phase state: %v", s.junctionID, err)
		if err := s.store.Delete(ctx, s.junctionID); err != nil {
			log.Errorf("junction %d: failed to delete phase state: %v", s.junctionID, err)
		}
	default:
		log.Errorf("junction %d: failed to load phase state, start from scratch: %v", s.junctionID, err)
	}
	s.state = s.initialState()
	s.base = nil
	s.dirty = true
	log.Infof("junction %d: green %s (%ds)", s.junctionID, s.state.ActiveLane(), s.state.PhaseDuration)
}

// initialState 生命周期开始时的相位状态
func (s *Scheduler) initialState() PhaseState {
	return PhaseState{
		Epoch:         uuid.NewString(),
		ActiveIndex:   lane.North.Index(),
		PhaseStart:    s.clock.Now().Truncate(time.Millisecond),
		PhaseDuration: s.policy.Duration(s.observations.Count(lane.North)),
	}
}

func (s *Scheduler) refresh(ctx context.Context) Snapshot {
	now := s.clock.Now()
	if !s.dirty {
		s.sync(ctx)
	}
	for attempt := 0; attempt < maxPersistAttempts; attempt++ {
		s.catchUp(now)
		if !s.dirty {
			break
		}
		err := s.persist(ctx)
		if !errors.Is(err, store.ErrConflict) {
			break
		}
		log.Warnf("junction %d: phase state changed by another owner, reload", s.junctionID)
		if !s.adopt(ctx) {
			break
		}
	}
	return s.snapshot(now)
}

// sync 采用其他进程已写入的新状态
// 说明：存储共享时其他进程可能已切换或重置了本路口，每次刷新前比较(epoch, version)，
// 不同则以存储为准；读取失败时沿用内存中的状态
func (s *Scheduler) sync(ctx context.Context) {
	rec, err := s.store.Load(ctx, s.junctionID)
	switch {
	case err == nil:
		if s.base != nil && s.base.Epoch == rec.Epoch && s.base.Version == rec.Version {
			return
		}
		if s.base == nil || s.base.Epoch != rec.Epoch {
			log.Infof("junction %d: adopt lifecycle %s from store", s.junctionID, rec.Epoch)
		}
		s.state = stateFromRecord(rec)
		s.base = &rec
	case errors.Is(err, store.ErrNotFound):
		if s.base != nil {
			log.Warnf("junction %d: phase state removed from store, write it back", s.junctionID)
			s.base = nil
			s.dirty = true
		}
	default:
		log.Debugf("junction %d: skip store sync: %v", s.junctionID, err)
	}
}

// catchUp 按顺序逐个切换所有已到期的相位
// 返回：切换次数
// 说明：同一次追赶内使用同一份车辆数；切换满一轮后四个相位的时长都由这份车辆数决定，
// 之后整轮到期的部分直接跨过，结果与逐个相位切换相同
func (s *Scheduler) catchUp(now time.Time) int {
	counts := s.observations.All()
	cycle := time.Duration(0)
	for _, l := range lane.All {
		cycle += time.Duration(s.policy.Duration(counts[l])) * time.Second
	}
	n := 0
	for s.expired(now) {
		if n >= lane.Count {
			if k := now.Sub(s.state.PhaseStart) / cycle; k > 0 {
				s.state.PhaseStart = s.state.PhaseStart.Add(k * cycle)
				n += int(k) * lane.Count
				continue
			}
		}
		s.advance(counts)
		n++
	}
	if n > 0 {
		s.dirty = true
		if n > 1 {
			log.Infof("junction %d: caught up %d phases", s.junctionID, n)
		}
		log.Infof("junction %d: green %s (%ds)", s.junctionID, s.state.ActiveLane(), s.state.PhaseDuration)
	}
	return n
}

// expired 当前相位是否已到期（剩余时间为0）
func (s *Scheduler) expired(now time.Time) bool {
	return clock.Remaining(s.state.PhaseDuration, clock.Elapsed(s.state.PhaseStart, now)) <= 0
}

// advance 切换到下一进口道
// 说明：下一相位从当前相位的到期时刻开始，时长由下一进口道此刻的车辆数决定，没有观测时按0辆计
func (s *Scheduler) advance(counts map[lane.Lane]int32) {
	end := s.state.End()
	next := s.state.ActiveLane().Next()
	s.state.ActiveIndex = next.Index()
	s.state.PhaseStart = end
	s.state.PhaseDuration = s.policy.Duration(counts[next])
	log.Debugf("junction %d: advance to %s at %s", s.junctionID, next, end.Format(time.RFC3339))
}

// persist 将当前状态写入存储
// 返回：冲突时返回store.ErrConflict；其他错误只记录日志，保留内存中的状态，下次刷新重试
func (s *Scheduler) persist(ctx context.Context) error {
	rec := s.state.record(s.junctionID)
	var err error
	if s.base == nil || s.base.Epoch == "" {
		rec.Version = 1
		err = s.store.Create(ctx, rec)
	} else {
		rec.Version = s.base.Version + 1
		err = s.store.CompareAndSwap(ctx, *s.base, rec)
	}
	if err != nil {
		if !errors.Is(err, store.ErrConflict) {
			log.Errorf("junction %d: failed to persist phase state: %v", s.junctionID, err)
		}
		return err
	}
	s.base = &rec
	s.state.Version = rec.Version
	s.dirty = false
	return nil
}

// adopt 采用存储中（其他进程写入）的状态
// 返回：是否可以继续尝试
func (s *Scheduler) adopt(ctx context.Context) bool {
	rec, err := s.store.Load(ctx, s.junctionID)
	switch {
	case err == nil:
		s.state = stateFromRecord(rec)
		s.base = &rec
		s.dirty = false
		return true
	case errors.Is(err, store.ErrNotFound):
		s.base = nil
		s.dirty = true
		return true
	default:
		log.Errorf("junction %d: failed to reload phase state: %v", s.junctionID, err)
		return false
	}
}

func (s *Scheduler) snapshot(now time.Time) Snapshot {
	active := s.state.ActiveLane()
	return Snapshot{
		JunctionID:       s.junctionID,
		Epoch:            s.state.Epoch,
		Version:          s.state.Version,
		ActiveLane:       active,
		NextLane:         active.Next(),
		PhaseStart:       s.state.PhaseStart,
		PhaseDuration:    s.state.PhaseDuration,
		RemainingSeconds: clock.Remaining(s.state.PhaseDuration, clock.Elapsed(s.state.PhaseStart, now)),
		YellowTime:       s.yellowTime,
		Observations:     s.observations.All(),
		At:               now,
	}
}
