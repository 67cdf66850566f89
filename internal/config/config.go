package config

import (
	"sync"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Realtime RealtimeConfig
}

var (
	instance *Config
	once     sync.Once
)

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
}

type JWTConfig struct {
	Secret         string
	ExpirationTime time.Duration
}

type RealtimeConfig struct {
	// TypingTimeout is how long a typing indicator stays up without a
	// fresh typing:start before the server emits typing:stop itself.
	TypingTimeout time.Duration

	// SendBufferSize is the per-session outbound queue. A session that
	// falls this far behind is dropped as a slow consumer.
	SendBufferSize int
}

func Load() (*Config, error) {
	once.Do(func() {
		viper.SetDefault("HOMECHAT_PORT", "8080")
		viper.SetDefault("HOMECHAT_READ_TIMEOUT", 30*time.Second)
		viper.SetDefault("HOMECHAT_WRITE_TIMEOUT", 30*time.Second)
		viper.SetDefault("HOMECHAT_IDLE_TIMEOUT", 60*time.Second)
		viper.SetDefault("HOMECHAT_JWT_SECRET", "secret")
		viper.SetDefault("HOMECHAT_JWT_EXPIRE", "24h")
		viper.SetDefault("HOMECHAT_TYPING_TIMEOUT", 3*time.Second)
		viper.SetDefault("HOMECHAT_SEND_BUFFER", 256)
		viper.SetDefault("MYSQL_USER", "homechat")
		viper.SetDefault("MYSQL_PASSWORD", "homechat")
		viper.SetDefault("MYSQL_HOST", "localhost")
		viper.SetDefault("MYSQL_PORT", "3306")
		viper.SetDefault("MYSQL_DB", "homechat")
		viper.SetDefault("REDIS_ADDR", "localhost:6379")
		viper.SetDefault("REDIS_PASSWORD", "")
		viper.SetDefault("REDIS_DB", 0)
		viper.SetDefault("REDIS_DIAL_TIMEOUT", 5*time.Second)
		viper.SetDefault("REDIS_READ_TIMEOUT", 3*time.Second)
		viper.SetDefault("REDIS_WRITE_TIMEOUT", 3*time.Second)
		viper.SetDefault("REDIS_POOL_SIZE", 100)
		viper.SetDefault("REDIS_MIN_IDLE_CONNS", 10)
		viper.AutomaticEnv()

		instance = &Config{
			Server: ServerConfig{
				Host:         viper.GetString("HOMECHAT_HOST"),
				Port:         viper.GetString("HOMECHAT_PORT"),
				ReadTimeout:  viper.GetDuration("HOMECHAT_READ_TIMEOUT"),
				WriteTimeout: viper.GetDuration("HOMECHAT_WRITE_TIMEOUT"),
				IdleTimeout:  viper.GetDuration("HOMECHAT_IDLE_TIMEOUT"),
			},
			Database: DatabaseConfig{
				Host:     viper.GetString("MYSQL_HOST"),
				Port:     viper.GetString("MYSQL_PORT"),
				User:     viper.GetString("MYSQL_USER"),
				Password: viper.GetString("MYSQL_PASSWORD"),
				DBName:   viper.GetString("MYSQL_DB"),
			},
			Redis: RedisConfig{
				Addr:         viper.GetString("REDIS_ADDR"),
				Password:     viper.GetString("REDIS_PASSWORD"),
				DB:           viper.GetInt("REDIS_DB"),
				DialTimeout:  viper.GetDuration("REDIS_DIAL_TIMEOUT"),
				ReadTimeout:  viper.GetDuration("REDIS_READ_TIMEOUT"),
				WriteTimeout: viper.GetDuration("REDIS_WRITE_TIMEOUT"),
				PoolSize:     viper.GetInt("REDIS_POOL_SIZE"),
				MinIdleConns: viper.GetInt("REDIS_MIN_IDLE_CONNS"),
			},
			JWT: JWTConfig{
				Secret:         viper.GetString("HOMECHAT_JWT_SECRET"),
				ExpirationTime: viper.GetDuration("HOMECHAT_JWT_EXPIRE"),
			},
			Realtime: RealtimeConfig{
				TypingTimeout:  viper.GetDuration("HOMECHAT_TYPING_TIMEOUT"),
				SendBufferSize: viper.GetInt("HOMECHAT_SEND_BUFFER"),
			},
		}
	})

	return instance, nil
}
