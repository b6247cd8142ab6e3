package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Running struct {
		Port int `mapstructure:"port"`
		// AccessLog 控制是否挂 gin.Logger
		AccessLog    bool     `mapstructure:"accessLog"`
		AllowOrigins []string `mapstructure:"allowOrigins"`
	} `mapstructure:"running"`
	Storage struct {
		// memory | bolt | mysql
		Driver   string `mapstructure:"driver"`
		BoltPath string `mapstructure:"boltPath"`
	} `mapstructure:"storage"`
	Redis struct {
		// 多个地址时走集群客户端，单个地址走单机
		Addrs    []string `mapstructure:"addrs"`
		Password string   `mapstructure:"password"`
	} `mapstructure:"redis"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"mysql"`
	Kafka struct {
		Brokers     []string      `mapstructure:"brokers"`
		Topic       string        `mapstructure:"topic"`
		QueueSize   int           `mapstructure:"queueSize"`
		Workers     int           `mapstructure:"workers"`
		MaxRetry    int           `mapstructure:"maxRetry"`
		BaseBackoff time.Duration `mapstructure:"baseBackoff"`
		MaxBackoff  time.Duration `mapstructure:"maxBackoff"`
	} `mapstructure:"kafka"`
	Auth struct {
		// Path 是 auth-service 地址，JWTSecret 非空时改为本地校验
		Path      string `mapstructure:"path"`
		JWTSecret string `mapstructure:"jwtSecret"`
	} `mapstructure:"auth"`
	Collab struct {
		LockInactivity      time.Duration `mapstructure:"lockInactivity"`
		LockRequestTTL      time.Duration `mapstructure:"lockRequestTTL"`
		HeartbeatWindow     time.Duration `mapstructure:"heartbeatWindow"`
		PresenceRetention   time.Duration `mapstructure:"presenceRetention"`
		SweepInterval       time.Duration `mapstructure:"sweepInterval"`
		ReleaseOnDisconnect bool          `mapstructure:"releaseOnDisconnect"`
		SubmitConcurrency   int           `mapstructure:"submitConcurrency"`
	} `mapstructure:"collab"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("running.port", 8082)
	v.SetDefault("running.accessLog", true)
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.boltPath", "sharednote.db")
	v.SetDefault("kafka.topic", "doc-ops")
	v.SetDefault("kafka.queueSize", 10_000)
	v.SetDefault("kafka.workers", 4)
	v.SetDefault("kafka.maxRetry", 3)
	v.SetDefault("kafka.baseBackoff", 50*time.Millisecond)
	v.SetDefault("kafka.maxBackoff", time.Second)
	v.SetDefault("collab.lockInactivity", 2*time.Minute)
	v.SetDefault("collab.lockRequestTTL", 30*time.Second)
	v.SetDefault("collab.heartbeatWindow", 30*time.Second)
	v.SetDefault("collab.presenceRetention", 24*time.Hour)
	v.SetDefault("collab.sweepInterval", 30*time.Second)
	v.SetDefault("collab.submitConcurrency", 100)
}

// Load 读取 sharednoteConfig.yaml。path 为空时按目录顺序查找，找不到文件就只用默认值和环境变量。
// 环境变量前缀 SHAREDNOTE_，例如 SHAREDNOTE_MYSQL_DSN、SHAREDNOTE_STORAGE_DRIVER。
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SHAREDNOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv 只对 viper 已知的键生效，没有默认值的键需要显式绑定
	for _, key := range []string{"redis.addrs", "redis.password", "mysql.dsn", "kafka.brokers", "auth.path", "auth.jwtSecret", "running.allowOrigins"} {
		_ = v.BindEnv(key)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("sharednoteConfig")
		v.SetConfigType("yaml")
		// 兼容从项目根目录或 backend 目录启动
		v.AddConfigPath("./backend/config")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "bolt":
	case "mysql":
		if c.Mysql.DSN == "" {
			return errors.New("config: storage.driver=mysql needs mysql.dsn")
		}
	default:
		return fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Running.Port <= 0 {
		return fmt.Errorf("config: invalid running.port %d", c.Running.Port)
	}
	return nil
}
