package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// DatabaseConfig 定义数据库连接配置（支持 MySQL 和 PostgreSQL）
type DatabaseConfig struct {
	Type            string        // 数据库类型: "mysql" 或 "postgres"，留空使用内存存储
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// RedisConfig 定义 Redis 服务配置（可选，启用后计数器走锁辅助路径）
type RedisConfig struct {
	Enabled  bool   // 是否启用 Redis
	Address  string // Redis 服务地址，格式 "host:port"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// RelayConfig 定义外发 SMTP 中继配置
type RelayConfig struct {
	Host                string // 中继主机
	Port                int    // 中继端口，默认 587
	Username            string // 认证账号（通常也是发信地址）
	Password            string // 认证密码
	TLSMode             string // "auto" | "starttls" | "ssl" | "none"
	SendAsAuthenticated bool   // 中继只允许以认证账号发信时置 true，发信时改写 From
	InsecureSkipVerify  bool   // 跳过中继 TLS 证书校验，仅限自签名证书的开发中继
}

// InboundSMTPConfig 定义入站 SMTP 服务器配置
type InboundSMTPConfig struct {
	BindAddr        string // 监听地址，格式 "host:port"，默认 ":25"
	Domain          string // HELO/EHLO 响应域名
	MaxMessageBytes int64  // 单封邮件最大字节数
	MaxRecipients   int    // 单封邮件最大收件人数
}

// StorageConfig 定义附件文件存储配置
type StorageConfig struct {
	AttachmentRoot string // 附件根目录
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
	File        string // 日志文件路径，留空只输出到 stdout
}

// JWTConfig 定义 JWT 认证相关配置
type JWTConfig struct {
	Secret       string        // JWT 签名密钥，必须至少 32 字符
	Issuer       string        // JWT 签发者标识，默认 "tenantmail"
	AccessExpiry time.Duration // 访问令牌有效期，默认 15 分钟
}

// MailConfig 定义邮件投递相关配置
type MailConfig struct {
	MaxAttachmentSize int64         // 单个附件最大字节数，默认 10MB
	DeliveryWorkers   int           // SMTP 投递协程池大小，默认 8
	DeliveryQueueSize int           // 投递任务队列长度，默认 64
	SendRatePerMinute int           // 单租户每分钟发送请求上限，默认 60
	LockTTL           time.Duration // 计数器分布式锁 TTL，默认 10s
	LockWait          time.Duration // 计数器分布式锁等待上限，默认 3s
}

// CORSConfig 定义跨域访问配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源，默认 ["*"]
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Relay    RelayConfig
	SMTP     InboundSMTPConfig
	Storage  StorageConfig
	Log      LogConfig
	JWT      JWTConfig
	Mail     MailConfig
	CORS     CORSConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: TENANTMAIL_
// 例如: TENANTMAIL_SERVER_PORT, TENANTMAIL_RELAY_HOST
func Load() (*Config, error) {
	// .env 文件是可选的，加载失败静默忽略
	loadEnvFile()

	viper.SetEnvPrefix("tenantmail")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("database.type", "") // 默认为空，使用内存存储
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("relay.host", "localhost")
	viper.SetDefault("relay.port", 587)
	viper.SetDefault("relay.username", "")
	viper.SetDefault("relay.password", "")
	viper.SetDefault("relay.tls_mode", "auto")
	viper.SetDefault("relay.send_as_authenticated", false)
	viper.SetDefault("relay.insecure_skip_verify", false)
	viper.SetDefault("smtp.bind_addr", ":25")
	viper.SetDefault("smtp.domain", "tenant.mail")
	viper.SetDefault("smtp.max_message_bytes", 10*1024*1024)
	viper.SetDefault("smtp.max_recipients", 50)
	viper.SetDefault("storage.attachment_root", "./data/attachments")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("log.file", "")
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.issuer", "tenantmail")
	viper.SetDefault("jwt.access_expiry", "15m")
	viper.SetDefault("mail.max_attachment_size", 10*1024*1024)
	viper.SetDefault("mail.delivery_workers", 8)
	viper.SetDefault("mail.delivery_queue_size", 64)
	viper.SetDefault("mail.send_rate_per_minute", 60)
	viper.SetDefault("mail.lock_ttl", "10s")
	viper.SetDefault("mail.lock_wait", "3s")
	viper.SetDefault("cors.allowed_origins", "*")

	connMaxLifetime, err := time.ParseDuration(viper.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	accessExpiry, err := time.ParseDuration(viper.GetString("jwt.access_expiry"))
	if err != nil {
		accessExpiry = 15 * time.Minute
	}

	lockTTL, err := time.ParseDuration(viper.GetString("mail.lock_ttl"))
	if err != nil {
		lockTTL = 10 * time.Second
	}

	lockWait, err := time.ParseDuration(viper.GetString("mail.lock_wait"))
	if err != nil {
		lockWait = 3 * time.Second
	}

	jwtSecret := viper.GetString("jwt.secret")

	// 安全检查：禁止使用默认的 JWT secret
	if jwtSecret == "change-me-in-production" {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret cannot be the default value. Please set TENANTMAIL_JWT_SECRET environment variable")
	}
	if len(jwtSecret) < 32 {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret must be at least 32 characters long")
	}

	dbType := strings.ToLower(viper.GetString("database.type"))
	if dbType != "" && dbType != "mysql" && dbType != "postgres" {
		return nil, fmt.Errorf("unsupported database.type %q (expected mysql or postgres)", dbType)
	}

	workers := viper.GetInt("mail.delivery_workers")
	if workers <= 0 {
		workers = 8
	}

	queueSize := viper.GetInt("mail.delivery_queue_size")
	if queueSize <= 0 {
		queueSize = 64
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Database: DatabaseConfig{
			Type:            dbType,
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Enabled:  viper.GetBool("redis.enabled"),
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Relay: RelayConfig{
			Host:                viper.GetString("relay.host"),
			Port:                viper.GetInt("relay.port"),
			Username:            viper.GetString("relay.username"),
			Password:            viper.GetString("relay.password"),
			TLSMode:             viper.GetString("relay.tls_mode"),
			SendAsAuthenticated: viper.GetBool("relay.send_as_authenticated"),
			InsecureSkipVerify:  viper.GetBool("relay.insecure_skip_verify"),
		},
		SMTP: InboundSMTPConfig{
			BindAddr:        viper.GetString("smtp.bind_addr"),
			Domain:          viper.GetString("smtp.domain"),
			MaxMessageBytes: viper.GetInt64("smtp.max_message_bytes"),
			MaxRecipients:   viper.GetInt("smtp.max_recipients"),
		},
		Storage: StorageConfig{
			AttachmentRoot: viper.GetString("storage.attachment_root"),
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
			File:        viper.GetString("log.file"),
		},
		JWT: JWTConfig{
			Secret:       jwtSecret,
			Issuer:       viper.GetString("jwt.issuer"),
			AccessExpiry: accessExpiry,
		},
		Mail: MailConfig{
			MaxAttachmentSize: viper.GetInt64("mail.max_attachment_size"),
			DeliveryWorkers:   workers,
			DeliveryQueueSize: queueSize,
			SendRatePerMinute: viper.GetInt("mail.send_rate_per_minute"),
			LockTTL:           lockTTL,
			LockWait:          lockWait,
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(viper.GetString("cors.allowed_origins")),
		},
	}

	return cfg, nil
}

// splitList 解析逗号分隔的配置值
func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// loadEnvFile 尝试加载 .env 文件
//
// 加载顺序：
//  1. 当前目录的 .env
//  2. 父目录的 .env（用于从子目录运行的情况）
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
