package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"twmailer/backend/internal/logger"
	"twmailer/backend/internal/protocol"
	"twmailer/backend/internal/storage"
)

// ServerConfig 定义邮件交换服务的监听与会话参数
type ServerConfig struct {
	Host            string        // 监听地址，默认 "0.0.0.0"
	Port            int           // 监听端口，默认 6543
	Welcome         string        // 连接建立后发送的欢迎行
	MaxConnections  int           // 最大并发会话数，默认 256
	AcceptRate      float64       // 每秒接受的新连接数，突发等于该值；默认 0 表示不限速
	ReadTimeout     time.Duration // 会话空闲超时，0 表示不限制
	WriteTimeout    time.Duration // 单次响应写超时，默认 30s
	MaxCommandBytes int           // 单条命令的最大字节数，默认 1MiB
	ShutdownTimeout time.Duration // 关闭时等待会话退出的最长时间
}

// SpoolConfig 定义信箱存储配置
type SpoolConfig struct {
	Path             string        // 存储根目录，默认 "./mailspool"
	Driver           string        // 存储驱动: "filesystem" 或 "memory"
	LockTimeout      time.Duration // 获取信箱锁的最长等待时间，默认 5s
	CrossProcessLock bool          // 是否使用 flock 跨进程锁，默认 true
}

// AdminConfig 定义只读运维 HTTP 接口配置
type AdminConfig struct {
	Enabled        bool     // 是否启用，默认 true
	Addr           string   // 监听地址，默认 "127.0.0.1:8081"
	AllowedOrigins []string // CORS 允许的来源，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 控制台编码和详细堆栈信息
	File        string // 日志文件路径，留空只输出到标准输出
	MaxSize     int    // 单个日志文件大小上限（MB）
	MaxBackups  int    // 保留的旧日志文件数
	MaxAge      int    // 旧日志保留天数
	Compress    bool   // 是否压缩旧日志
}

// Config 是系统核心配置的根结构体
type Config struct {
	Server ServerConfig // 邮件交换服务配置
	Spool  SpoolConfig  // 信箱存储配置
	Admin  AdminConfig  // 运维接口配置
	Log    LogConfig    // 日志配置
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: TWMAILER_
// 例如: TWMAILER_SERVER_PORT, TWMAILER_SPOOL_PATH
//
// 返回值:
//   - *Config: 加载成功的配置对象
//   - error: 配置验证失败时返回错误
func Load() (*Config, error) {
	// .env 文件是可选的
	loadEnvFile()

	v := viper.New()
	v.SetEnvPrefix("twmailer")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 6543)
	v.SetDefault("server.welcome", protocol.DefaultWelcome)
	v.SetDefault("server.max_connections", 256)
	v.SetDefault("server.accept_rate", 0)
	v.SetDefault("server.read_timeout", "0s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.max_command_bytes", protocol.DefaultMaxBlockBytes)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("spool.path", "./mailspool")
	v.SetDefault("spool.driver", storage.DriverFilesystem)
	v.SetDefault("spool.lock_timeout", "5s")
	v.SetDefault("spool.cross_process_lock", true)
	v.SetDefault("admin.enabled", true)
	v.SetDefault("admin.addr", "127.0.0.1:8081")
	v.SetDefault("admin.allowed_origins", "*")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", true)

	readTimeout, err := parseDuration(v, "server.read_timeout")
	if err != nil {
		return nil, err
	}
	writeTimeout, err := parseDuration(v, "server.write_timeout")
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := parseDuration(v, "server.shutdown_timeout")
	if err != nil {
		return nil, err
	}
	lockTimeout, err := parseDuration(v, "spool.lock_timeout")
	if err != nil {
		return nil, err
	}

	corsOrigins := parseList(v.GetString("admin.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			Welcome:         v.GetString("server.welcome"),
			MaxConnections:  v.GetInt("server.max_connections"),
			AcceptRate:      v.GetFloat64("server.accept_rate"),
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			MaxCommandBytes: v.GetInt("server.max_command_bytes"),
			ShutdownTimeout: shutdownTimeout,
		},
		Spool: SpoolConfig{
			Path:             v.GetString("spool.path"),
			Driver:           strings.ToLower(v.GetString("spool.driver")),
			LockTimeout:      lockTimeout,
			CrossProcessLock: v.GetBool("spool.cross_process_lock"),
		},
		Admin: AdminConfig{
			Enabled:        v.GetBool("admin.enabled"),
			Addr:           v.GetString("admin.addr"),
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
			File:        v.GetString("log.file"),
			MaxSize:     v.GetInt("log.max_size"),
			MaxBackups:  v.GetInt("log.max_backups"),
			MaxAge:      v.GetInt("log.max_age"),
			Compress:    v.GetBool("log.compress"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxConnections <= 0 {
		return fmt.Errorf("server.max_connections must be positive")
	}
	if c.Server.AcceptRate < 0 {
		return fmt.Errorf("server.accept_rate must not be negative")
	}
	if c.Server.MaxCommandBytes <= 0 {
		return fmt.Errorf("server.max_command_bytes must be positive")
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}

	switch c.Spool.Driver {
	case storage.DriverFilesystem:
		if strings.TrimSpace(c.Spool.Path) == "" {
			return fmt.Errorf("spool.path must not be empty")
		}
		if strings.Contains(c.Spool.Path, "..") {
			return fmt.Errorf("spool.path must not contain '..': %s", c.Spool.Path)
		}
	case storage.DriverMemory:
	default:
		return fmt.Errorf("unsupported spool.driver %q", c.Spool.Driver)
	}

	if c.Admin.Enabled && c.Admin.Addr == "" {
		return fmt.Errorf("admin.addr must not be empty when admin is enabled")
	}
	return nil
}

// ApplyArgs 用命令行位置参数 <port> <mail-spool-directoryname> 覆盖配置
func (c *Config) ApplyArgs(args []string) error {
	if len(args) > 2 {
		return fmt.Errorf("expected at most 2 arguments, got %d", len(args))
	}
	if len(args) >= 1 {
		port, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", args[0], err)
		}
		c.Server.Port = port
	}
	if len(args) == 2 {
		c.Spool.Path = args[1]
		c.Spool.Driver = storage.DriverFilesystem
	}
	return c.Validate()
}

// ListenAddr 返回邮件交换服务的监听地址
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// LoggerConfig 转换为日志模块配置
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:       c.Log.Level,
		Development: c.Log.Development,
		LogFile:     c.Log.File,
		MaxSize:     c.Log.MaxSize,
		MaxBackups:  c.Log.MaxBackups,
		MaxAge:      c.Log.MaxAge,
		Compress:    c.Log.Compress,
	}
}

// parseDuration 读取并解析时长配置项
func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// parseList 将逗号分隔的字符串解析为字符串切片
//
// 参数:
//   - value: 逗号分隔的字符串，如 "item1,item2,item3"
//
// 返回值:
//   - []string: 解析后的字符串切片，已去除空白字符
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 加载顺序：
//  1. 当前目录的 .env
//  2. 父目录的 .env
//
// 已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
