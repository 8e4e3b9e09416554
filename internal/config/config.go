// Package config loads pyhostd's configuration from YAML and environment
// variables, following wilke-cwe-cwl's viper.New + SetDefault + Unmarshal
// pattern (spec §6.5).
package config

import (
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the interpreter service.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Pool        PoolConfig        `mapstructure:"pool"`
	Interpreter InterpreterConfig `mapstructure:"interpreter"`
	Limits      LimitsConfig      `mapstructure:"limits"`
	Request     RequestConfig     `mapstructure:"request"`
	Rate        RateConfig        `mapstructure:"rate"`
	Sign        SignConfig        `mapstructure:"sign"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Store       StoreConfig       `mapstructure:"store"`
	Redis       RedisConfig       `mapstructure:"redis"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// PoolConfig controls how many Workers the Pool keeps warm (spec §4.3).
type PoolConfig struct {
	Size           int           `mapstructure:"size"`
	MinSize        int           `mapstructure:"min_size"`
	MaxSize        int           `mapstructure:"max_size"`
	BorrowTimeout  time.Duration `mapstructure:"borrow_timeout"`
	StartupTimeout time.Duration `mapstructure:"startup_timeout"`
	HealthInterval time.Duration `mapstructure:"health_interval"`
	ShutdownGrace  time.Duration `mapstructure:"shutdown_grace"`
	ProbeDeadline  time.Duration `mapstructure:"probe_deadline"`
	Adaptive       bool          `mapstructure:"adaptive"`
}

// InterpreterConfig locates the Python executable each Worker spawns.
type InterpreterConfig struct {
	Path   string `mapstructure:"path"`
	UsePTY bool   `mapstructure:"use_pty"`
}

// LimitsConfig mirrors the Bridge's resource caps (spec §4.1, §6.5).
type LimitsConfig struct {
	MemoryMB    int `mapstructure:"memory_mb"`
	CPUSeconds  int `mapstructure:"cpu_seconds"`
	CodeBytes   int `mapstructure:"code_bytes"`
	OutputBytes int `mapstructure:"output_bytes"`
}

// RequestConfig controls the host-side wall-clock timeout, which must
// exceed LimitsConfig.CPUSeconds (spec §4.2).
type RequestConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// RateConfig controls the token-bucket rate limiter (spec §6.6).
type RateConfig struct {
	PerMinute     int    `mapstructure:"per_minute"`
	GlobalCeiling int    `mapstructure:"global_ceiling"`
	Backend       string `mapstructure:"backend"` // "memory" or "redis"
}

// SignConfig controls HMAC script signing (spec §6.2).
type SignConfig struct {
	Key string `mapstructure:"key"`
}

// AuthConfig controls session-token verification and the admin key (spec §6.3).
type AuthConfig struct {
	JWTPublicKeyPath string `mapstructure:"jwt_public_key_path"`
	AdminKey         string `mapstructure:"admin_key"`
}

// StoreConfig locates the signed script store (spec §6.2).
type StoreConfig struct {
	Dir      string `mapstructure:"dir"`
	IndexDSN string `mapstructure:"index_dsn"`
}

// RedisConfig is used only when RateConfig.Backend == "redis".
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Load reads configuration from file and environment variables, the way
// wilke-cwe-cwl's config.Load does for the CWL service.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 90*time.Second)

	v.SetDefault("pool.size", 3)
	v.SetDefault("pool.min_size", 2)
	v.SetDefault("pool.max_size", 10)
	v.SetDefault("pool.borrow_timeout", 30*time.Second)
	v.SetDefault("pool.startup_timeout", 10*time.Second)
	v.SetDefault("pool.health_interval", 30*time.Second)
	v.SetDefault("pool.shutdown_grace", 2*time.Second)
	v.SetDefault("pool.probe_deadline", 2*time.Second)
	v.SetDefault("pool.adaptive", false)

	v.SetDefault("interpreter.path", detectInterpreter())
	v.SetDefault("interpreter.use_pty", false)

	v.SetDefault("limits.memory_mb", 512)
	v.SetDefault("limits.cpu_seconds", 60)
	v.SetDefault("limits.code_bytes", 1024*1024)
	v.SetDefault("limits.output_bytes", 10*1024*1024)

	v.SetDefault("request.timeout", 75*time.Second)

	v.SetDefault("rate.per_minute", 100)
	v.SetDefault("rate.global_ceiling", 1000)
	v.SetDefault("rate.backend", "memory")

	v.SetDefault("sign.key", "")

	v.SetDefault("auth.jwt_public_key_path", "")
	v.SetDefault("auth.admin_key", "")

	v.SetDefault("store.dir", "/var/lib/pyhostd/scripts")
	v.SetDefault("store.index_dsn", "/var/lib/pyhostd/index.db")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/pyhostd")
	}

	v.SetEnvPrefix("PYHOSTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// detectInterpreter probes PATH for a usable Python 3 binary, preferring
// the unambiguous "python3" name (spec §4.1).
func detectInterpreter() string {
	for _, candidate := range []string{"python3", "python"} {
		if p, err := exec.LookPath(candidate); err == nil {
			return p
		}
	}
	return "python3"
}
