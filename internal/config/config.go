package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig 应用基础信息
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	Pprof        HTTPPprof     `mapstructure:"pprof"`
	Auth         HTTPAuth      `mapstructure:"auth"`
	CORS         bool          `mapstructure:"cors"`
	CommandRate  float64       `mapstructure:"commandRate"` // 命令接口每秒请求数，0 不限
}

// HTTPAuth 写接口 API Key 认证
type HTTPAuth struct {
	Enabled bool     `mapstructure:"enabled"`
	APIKeys []string `mapstructure:"apiKeys"`
}

// HTTPPprof HTTP pprof 配置
type HTTPPprof struct {
	Enable bool   `mapstructure:"enable"`
	Prefix string `mapstructure:"prefix"`
}

// TCPConfig 串口服务器（DTU 透传）接入配置
type TCPConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Addr           string        `mapstructure:"addr"`
	ReadTimeout    time.Duration `mapstructure:"readTimeout"`
	WriteTimeout   time.Duration `mapstructure:"writeTimeout"`
	MaxConnections int           `mapstructure:"maxConnections"`
	AcceptRate     float64       `mapstructure:"acceptRate"` // 每秒允许接入的连接数
	AcceptBurst    int           `mapstructure:"acceptBurst"`
}

// SerialPortConfig 本地串口
type SerialPortConfig struct {
	Name        string        `mapstructure:"name"` // 链路ID
	Path        string        `mapstructure:"path"` // 如 /dev/ttyUSB0、COM3
	Baud        int           `mapstructure:"baud"`
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
}

// SerialConfig 串口列表
type SerialConfig struct {
	Ports []SerialPortConfig `mapstructure:"ports"`
}

// LumberjackConfig 日志滚动（lumberjack）配置
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig 日志级别与输出配置
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig Prometheus 指标暴露配置
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// DatabaseConfig PostgreSQL 连接配置（DSN 为空时不启用帧日志持久化）
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
	AutoMigrate     bool          `mapstructure:"autoMigrate"`
}

// RedisConfig Redis 状态缓存配置
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"poolSize"`
	MinIdleConns int           `mapstructure:"minIdleConns"`
	DialTimeout  time.Duration `mapstructure:"dialTimeout"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	StatusTTL    time.Duration `mapstructure:"statusTTL"`
}

// SessionConfig 链路在线判定
type SessionConfig struct {
	OnlineTimeout time.Duration `mapstructure:"onlineTimeout"`
}

// OutboundConfig 下行命令调度
type OutboundConfig struct {
	Rate       float64       `mapstructure:"rate"` // 每秒写入帧数
	Burst      int           `mapstructure:"burst"`
	QueueSize  int           `mapstructure:"queueSize"`
	WriteDelay time.Duration `mapstructure:"writeDelay"` // 两帧之间的最小间隔
}

// JournalConfig 帧日志记录开关
type JournalConfig struct {
	Uplink      bool `mapstructure:"uplink"`
	Downlink    bool `mapstructure:"downlink"`
	StatusCache bool `mapstructure:"statusCache"`
}

// Config 顶层配置结构
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	TCP      TCPConfig      `mapstructure:"tcp"`
	Serial   SerialConfig   `mapstructure:"serial"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Session  SessionConfig  `mapstructure:"session"`
	Outbound OutboundConfig `mapstructure:"outbound"`
	Journal  JournalConfig  `mapstructure:"journal"`
}

// 设备固件支持的波特率
var supportedBauds = map[int]bool{
	9600: true, 19200: true, 38400: true, 57600: true, 115200: true, 230400: true, 460800: true, 921600: true,
}

// Load 从 YAML/TOML/JSON 文件与环境变量加载配置。
// 若 path 为空，则尝试从环境变量 M600_CONFIG 读取；否则回退到 configs/example.yaml。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = os.Getenv("M600_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("example")
		v.SetConfigType("yaml")
	}

	// 默认值
	setDefaults(v)

	// 环境变量覆盖：前缀 M600_，并将点号替换为下划线
	v.SetEnvPrefix("M600")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// 首次运行允许缺少配置文件，依赖默认值与环境变量
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验链路配置
func (c *Config) Validate() error {
	if len(c.Serial.Ports) == 0 && !c.TCP.Enabled {
		return errors.New("config: no link configured (serial.ports empty and tcp disabled)")
	}
	seen := make(map[string]bool, len(c.Serial.Ports))
	for i, p := range c.Serial.Ports {
		if p.Path == "" {
			return fmt.Errorf("config: serial.ports[%d]: empty path", i)
		}
		if !supportedBauds[p.Baud] {
			return fmt.Errorf("config: serial.ports[%d]: unsupported baud %d", i, p.Baud)
		}
		name := p.LinkID()
		if seen[name] {
			return fmt.Errorf("config: serial.ports[%d]: duplicate name %q", i, name)
		}
		seen[name] = true
	}
	if c.Outbound.Rate <= 0 {
		return fmt.Errorf("config: outbound.rate must be positive, got %v", c.Outbound.Rate)
	}
	return nil
}

// LinkID 链路ID：未配置名称时使用设备路径
func (p SerialPortConfig) LinkID() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Path
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "m600-assistant")
	v.SetDefault("app.env", "dev")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")
	v.SetDefault("http.pprof.enable", false)
	v.SetDefault("http.pprof.prefix", "/debug/pprof")
	v.SetDefault("http.auth.enabled", false)
	v.SetDefault("http.cors", true)
	v.SetDefault("http.commandRate", 10)

	v.SetDefault("tcp.enabled", false)
	v.SetDefault("tcp.addr", ":7600")
	v.SetDefault("tcp.readTimeout", "0s")
	v.SetDefault("tcp.writeTimeout", "3s")
	v.SetDefault("tcp.maxConnections", 64)
	v.SetDefault("tcp.acceptRate", 10)
	v.SetDefault("tcp.acceptBurst", 20)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "logs/m600-assistant.log")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.maxOpenConns", 10)
	v.SetDefault("database.maxIdleConns", 2)
	v.SetDefault("database.connMaxLifetime", "1h")
	v.SetDefault("database.autoMigrate", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.poolSize", 10)
	v.SetDefault("redis.minIdleConns", 2)
	v.SetDefault("redis.dialTimeout", "3s")
	v.SetDefault("redis.readTimeout", "2s")
	v.SetDefault("redis.writeTimeout", "2s")
	v.SetDefault("redis.statusTTL", "10m")

	v.SetDefault("session.onlineTimeout", "10s")

	v.SetDefault("outbound.rate", 20)
	v.SetDefault("outbound.burst", 1)
	v.SetDefault("outbound.queueSize", 256)
	v.SetDefault("outbound.writeDelay", "20ms")

	v.SetDefault("journal.uplink", true)
	v.SetDefault("journal.downlink", true)
	v.SetDefault("journal.statusCache", true)
}
