package main

import (
	"context"
	"encoding/base64"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"git.fiblab.net/sim/syncer/v3"
	easy "git.fiblab.net/utils/logrus-easy-formatter"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/signal-scheduler/clock"
	"github.com/tsinghua-fib-lab/signal-scheduler/observer"
	"github.com/tsinghua-fib-lab/signal-scheduler/task"
	"github.com/tsinghua-fib-lab/signal-scheduler/utils/config"
	"github.com/tsinghua-fib-lab/signal-scheduler/utils/rpc"
)

var (
	// 分布式模式syncer地址，如果设置为空则激活独立部署模式
	syncerAddr = flag.String("syncer", "", "syncer address (empty means standalone mode), e.g. http://localhost:53001")
	// 任务名
	job = flag.String("job", "job0", "the name of the whole signal control task")
	// 本程序监听的RPC地址
	grpcAddr = flag.String("listen", ":51102", "RPC listening address")
	// 配置文件路径
	configPath = flag.String("config", "", "config file path")
	// 配置文件Base64编码后的数据
	configData = flag.String("config-data", "", "config file base64 encoded data")
	// 运行角色：owner负责调度与持久化，observer只订阅快照
	role = flag.String("role", "owner", "process role (owner|observer)")
	// observer角色连接的权威进程地址
	target = flag.String("target", "http://localhost:51102", "owner address for observer role")
	// observer角色观察的路口
	junctionID = flag.Int("junction", 0, "junction id for observer role")

	// log
	logLevels = map[string]logrus.Level{
		"trace":    logrus.TraceLevel,
		"debug":    logrus.DebugLevel,
		"info":     logrus.InfoLevel,
		"warn":     logrus.WarnLevel,
		"error":    logrus.ErrorLevel,
		"critical": logrus.FatalLevel,
		"off":      logrus.PanicLevel,
	}
	logLevel = flag.String("log.level", "info", "日志级别（可选项：trace debug info warn error critical off）")

	log = logrus.WithField("module", "signal")
)

func main() {
	flag.Parse()
	logrus.SetFormatter(&easy.Formatter{
		TimestampFormat: "2006-01-02 15:04:05.0000",
		LogFormat:       "[%module%] [%time%] [%lvl%] %msg%\n",
	})
	// log: 运行时才修改
	if level, ok := logLevels[*logLevel]; ok {
		logrus.SetLevel(level)
	} else {
		log.Panicf("log.level must be one of %v", logLevels)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *role {
	case "owner":
		runOwner(ctx, loadConfig())
	case "observer":
		runObserver(ctx)
	default:
		log.Panicf("role must be owner or observer, got %q", *role)
	}
}

// loadConfig 获取配置，未指定配置文件时使用默认配置
func loadConfig() config.Config {
	var file []byte
	var err error
	if *configPath != "" {
		file, err = os.ReadFile(*configPath)
		if err != nil {
			log.Panicf("config file load err: %v", err)
		}
	} else if *configData != "" {
		file, err = base64.StdEncoding.DecodeString(*configData)
		if err != nil {
			log.Panicf("config data load err: %v", err)
		}
	} else {
		log.Warn("no config file or config data specified, use default config")
		return config.Default()
	}
	c, err := config.Parse(file)
	if err != nil {
		log.Panicf("%v", err)
	}
	return c
}

func runOwner(ctx context.Context, c config.Config) {
	log.Infof("%+v", c)
	sidecar := syncer.NewSidecar(task.SelfName, *grpcAddr, *syncerAddr)
	t, err := task.NewContext(ctx, *job, c, clock.NewWall(), sidecar, true)
	if err != nil {
		log.Panicf("failed to init task: %v", err)
	}
	t.Run(ctx)
}

func runObserver(ctx context.Context) {
	if err := task.WaitForServerReady(*target+task.HealthPattern, 30, time.Second); err != nil {
		log.Panicf("%v", err)
	}
	o := observer.New(http.DefaultClient, *target, int32(*junctionID), 3*time.Second)
	if skew, err := o.Skew(ctx); err != nil {
		log.Warnf("failed to measure clock skew: %v", err)
	} else {
		log.Infof("clock skew against owner: %v", skew)
	}
	err := o.Run(ctx, func(s *rpc.Snapshot) {
		log.Infof(
			"junction %d: green %s, next %s, remaining %s",
			s.JunctionID, s.ActiveLane, s.NextLane, clock.Format(s.RemainingSeconds),
		)
	})
	log.Infof("observer stopped: %v", err)
}
