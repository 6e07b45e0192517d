package config

// Storage 信控状态持久化配置
// 功能：指定相位状态记录的存储后端
// 说明：memory只在单进程内有效；file适用于单个权威进程；mongo与postgres可被多个进程共享，依靠CAS避免重复切换
type Storage struct {
	Type  string `yaml:"type"`            // memory|file|mongo|postgres
	File  string `yaml:"file,omitempty"`  // file后端的目录
	URI   string `yaml:"uri,omitempty"`   // MongoDB连接字符串
	DB    string `yaml:"db,omitempty"`    // 数据库名
	Col   string `yaml:"col,omitempty"`   // 集合名
	DSN   string `yaml:"dsn,omitempty"`   // PostgreSQL连接字符串
	Table string `yaml:"table,omitempty"` // PostgreSQL表名
}

// GetDb 获取数据库名
func (s Storage) GetDb() string {
	return s.DB
}

// GetColl 获取集合名
func (s Storage) GetColl() string {
	return s.Col
}

// Policy 车流密度到相位时长的映射
type Policy struct {
	Threshold int32 `yaml:"threshold"` // 车辆数达到该值时使用长相位
	Short     int32 `yaml:"short"`     // 短相位时长（秒）
	Long      int32 `yaml:"long"`      // 长相位时长（秒）
}

// Control 信控过程控制配置
// 功能：定义本进程负责的路口、轮询间隔与时长策略
type Control struct {
	Junctions  []int32 `yaml:"junctions"`             // 本进程负责的路口ID
	Interval   float64 `yaml:"interval"`              // 轮询间隔（秒）
	YellowTime int32   `yaml:"yellow_time,omitempty"` // 剩余秒数不超过该值时当前进口道显示黄灯
	Policy     Policy  `yaml:"policy"`
}

// Demo 演示用的随机车流输入
// 说明：代替外部检测管线，定时为每个进口道推送随机车辆数
type Demo struct {
	Enable   bool    `yaml:"enable"`
	Interval float64 `yaml:"interval,omitempty"`  // 推送间隔（秒）
	MaxCount int32   `yaml:"max_count,omitempty"` // 车辆数上限
	Seed     uint64  `yaml:"seed,omitempty"`      // 随机数种子
}

// Config YAML配置文件的根结构
type Config struct {
	Storage Storage `yaml:"storage"` // 持久化
	Control Control `yaml:"control"` // 信控过程控制
	Demo    Demo    `yaml:"demo"`    // 演示输入
}
