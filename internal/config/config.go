package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AdmissionConfig struct {
	WaitTimeout       time.Duration `mapstructure:"wait_timeout"`
	EntryTTL          time.Duration `mapstructure:"entry_ttl"`
	PurgeOnDisconnect bool          `mapstructure:"purge_on_disconnect"`
}

type RoomConfig struct {
	KeepEmpty bool `mapstructure:"keep_empty"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	Secret     string        `mapstructure:"secret"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	SQLitePath string        `mapstructure:"sqlite_path"`

	Redis     RedisConfig     `mapstructure:"redis"`
	Admission AdmissionConfig `mapstructure:"admission"`
	Room      RoomConfig      `mapstructure:"room"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 7000)
	v.SetDefault("secret", "dev-secret")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("sqlite_path", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("admission.wait_timeout", "60s")
	v.SetDefault("admission.entry_ttl", "10m")
	v.SetDefault("admission.purge_on_disconnect", false)
	v.SetDefault("room.keep_empty", false)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
