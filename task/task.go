package task

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"connectrpc.com/connect"
	"git.fiblab.net/sim/syncer/v3"
	"github.com/tsinghua-fib-lab/signal-scheduler/clock"
	"github.com/tsinghua-fib-lab/signal-scheduler/entity/junction"
	"github.com/tsinghua-fib-lab/signal-scheduler/publisher"
	"github.com/tsinghua-fib-lab/signal-scheduler/utils/config"
	"github.com/tsinghua-fib-lab/signal-scheduler/utils/randengine"
	"github.com/tsinghua-fib-lab/signal-scheduler/utils/store"
)

const (
	SelfName = "signal" // 本程序在任务集群中的名字

	HealthPattern = "/health"
)

// WaitForServerReady 等待服务器就绪
// 功能：通过HTTP请求检查服务器是否已经启动并可以响应
// 参数：addr-服务器地址，retryCount-重试次数，interval-重试间隔
// 返回：错误信息，如果服务器就绪则返回nil
// 算法说明：
// 1. 创建HTTP客户端，设置超时时间
// 2. 循环发送GET请求到指定地址
// 3. 如果请求成功，关闭响应体并返回nil
// 4. 如果请求失败，等待指定间隔后重试
// 5. 达到最大重试次数后返回错误
func WaitForServerReady(addr string, retryCount int, interval time.Duration) error {
	client := &http.Client{
		Timeout: interval,
	}
	for i := 0; i < retryCount; i++ {
		resp, err := client.Get(addr)
		if err == nil {
			resp.Body.Close()
			return nil
		}
		time.Sleep(interval)
	}
	return fmt.Errorf("server `%v` did not become ready after %d retries", addr, retryCount)
}

// Context 信控任务上下文
// 功能：包含一次信控任务的所有组件，替代全局变量
// 说明：管理时钟、存储、路口管理器、推送中心与sidecar
type Context struct {

	// 任务名
	job string
	// 关闭指令
	closed atomic.Bool

	// 配置
	config config.Config
	// 权威时钟
	clock *clock.Clock
	// 相位状态存储
	store store.Store

	// 辅助程序，托管所有RPC与HTTP处理器
	sidecar *syncer.Sidecar
	// sidecar close channel，未启动sidecar服务时为nil
	sidecarCloseCh chan struct{}

	// 路口管理器
	junctionManager *junction.JunctionManager
	// websocket推送中心
	hub *publisher.Hub
	// 演示输入的随机数引擎
	generator *randengine.Engine
}

// NewContext 创建新的信控任务上下文
// 功能：按配置创建存储、时钟、路口与推送中心，并注册所有服务
// 参数：
//   - ctx: 上下文，用于连接存储
//   - job: 任务名称
//   - c: 配置对象
//   - wall: 权威时钟，传入nil时使用系统时钟
//   - sidecar: sidecar实例
//   - startSidecarServe: 是否启动sidecar服务
//
// 返回：初始化完成的Context实例
// 算法说明：
// 1. 打开配置指定的存储
// 2. 创建路口管理器并初始化配置中的所有路口
// 3. 将时钟、路口、websocket与健康检查注册到sidecar
// 4. 启动sidecar服务（如果需要）
func NewContext(
	ctx context.Context,
	job string,
	c config.Config,
	wall *clock.Clock,
	sidecar *syncer.Sidecar,
	startSidecarServe bool,
) (*Context, error) {
	if wall == nil {
		wall = clock.NewWall()
	}
	s, err := store.Open(ctx, c.Storage)
	if err != nil {
		return nil, err
	}
	t := &Context{
		job:       job,
		config:    c,
		clock:     wall,
		store:     s,
		sidecar:   sidecar,
		generator: randengine.New(c.Demo.Seed),
	}
	t.junctionManager = junction.NewManager(t)
	t.junctionManager.Init(c.Control.Junctions)
	t.hub = publisher.NewHub(t.junctionManager)

	if sidecar != nil {
		t.clock.Register(sidecar)
		t.junctionManager.Register(sidecar)
		sidecar.Register("websocket", t.hub.Handler, syncer.WithNoLock())
		sidecar.Register("health", t.healthHandler, syncer.WithNoLock())
	}

	// sidecar协程，用于提供RPC服务
	if sidecar != nil && startSidecarServe {
		t.sidecarCloseCh = make(chan struct{})
		go func() {
			err := t.sidecar.Serve()
			if err != nil {
				log.Panicf("failed to serve: %v", err)
			}
			t.sidecarCloseCh <- struct{}{}
		}()
	}
	return t, nil
}

func (t *Context) Clock() *clock.Clock {
	return t.clock
}

func (t *Context) Store() store.Store {
	return t.store
}

func (t *Context) Control() config.Control {
	return t.config.Control
}

func (t *Context) JunctionManager() *junction.JunctionManager {
	return t.junctionManager
}

func (t *Context) Hub() *publisher.Hub {
	return t.hub
}

// Health 健康检查结果
type Health struct {
	Status    string `json:"status"`
	Job       string `json:"job"`
	Storage   string `json:"storage"`
	Junctions int    `json:"junctions"`
	Clients   int    `json:"clients"`
	Time      string `json:"time"`
}

// Health 当前健康状态
func (t *Context) Health() Health {
	status := "ok"
	if t.closed.Load() {
		status = "closed"
	}
	return Health{
		Status:    status,
		Job:       t.job,
		Storage:   t.config.Storage.Type,
		Junctions: len(t.junctionManager.Junctions()),
		Clients:   t.hub.Clients(),
		Time:      t.clock.Now().Format(time.RFC3339),
	}
}

func (t *Context) healthHandler(opts ...connect.HandlerOption) (string, http.Handler) {
	return HealthPattern, http.HandlerFunc(t.serveHealth)
}

func (t *Context) serveHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(t.Health()); err != nil {
		log.Warnf("failed to write health response: %v", err)
	}
}

// Close 关闭sidecar与存储，可重复调用
func (t *Context) Close() {
	if t.closed.Swap(true) {
		return
	}
	if t.sidecar != nil {
		t.sidecar.Close()
	}
	// wait for graceful stop
	if t.sidecarCloseCh != nil {
		<-t.sidecarCloseCh
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.store.Close(ctx); err != nil {
		log.Warnf("failed to close store: %v", err)
	}
}
