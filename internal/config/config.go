package config

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/Alturino/makelocal/internal/log"
)

type Application struct {
	Env     string `mapstructure:"env"      json:"env"`
	Host    string `mapstructure:"host"     json:"host"`
	LogPath string `mapstructure:"log_path" json:"log_path"`
	Port    int    `mapstructure:"port"     json:"port"`
}

type Database struct {
	Name           string `mapstructure:"name"            json:"name"`
	Host           string `mapstructure:"host"            json:"host"`
	Password       string `mapstructure:"password"        json:"-"`
	Username       string `mapstructure:"username"        json:"username"`
	MaxConnections int32  `mapstructure:"max_connections" json:"max_connections"`
	MinConnections int32  `mapstructure:"min_connections" json:"min_connections"`
	Port           uint16 `mapstructure:"port"            json:"port"`
	Enabled        bool   `mapstructure:"enabled"         json:"enabled"`
}

type Cache struct {
	Host          string `mapstructure:"host"            json:"host"`
	Password      string `mapstructure:"password"        json:"-"`
	Database      int    `mapstructure:"database"        json:"database"`
	MaxValueBytes int    `mapstructure:"max_value_bytes" json:"max_value_bytes"`
	Port          uint16 `mapstructure:"port"            json:"port"`
	Enabled       bool   `mapstructure:"enabled"         json:"enabled"`
}

type Otel struct {
	Host    string `mapstructure:"host"    json:"host"`
	Port    int    `mapstructure:"port"    json:"port"`
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
}

// Api points at the external order management API.
type Api struct {
	BaseURL          string        `mapstructure:"base_url"           json:"base_url"`
	Timeout          time.Duration `mapstructure:"timeout"            json:"timeout"`
	MaxResponseBytes int64         `mapstructure:"max_response_bytes" json:"max_response_bytes"`
}

type Cart struct {
	StrictTotalOnUpdate bool          `mapstructure:"strict_total_on_update" json:"strict_total_on_update"`
	IdleTimeout         time.Duration `mapstructure:"idle_timeout"           json:"idle_timeout"`
	SweepInterval       time.Duration `mapstructure:"sweep_interval"         json:"sweep_interval"`
	MaxCarts            int           `mapstructure:"max_carts"              json:"max_carts"`
}

type Broker struct {
	URL      string `mapstructure:"url"      json:"-"`
	Exchange string `mapstructure:"exchange" json:"exchange"`
	Enabled  bool   `mapstructure:"enabled"  json:"enabled"`
}

type Catalog struct {
	CoordinatorID  string        `mapstructure:"coordinator_id"   json:"coordinator_id"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"        json:"cache_ttl"`
	StatusInterval time.Duration `mapstructure:"status_interval"  json:"status_interval"`
	PhotoCacheTTL  time.Duration `mapstructure:"photo_cache_ttl"  json:"photo_cache_ttl"`
	PhotoHosts     []string      `mapstructure:"photo_hosts"      json:"photo_hosts"`
}

type Config struct {
	Database    `mapstructure:"db"          json:"db"`
	Cache       `mapstructure:"cache"       json:"cache"`
	Application `mapstructure:"application" json:"application"`
	Otel        `mapstructure:"otel"        json:"otel"`
	Api         `mapstructure:"api"         json:"api"`
	Cart        `mapstructure:"cart"        json:"cart"`
	Broker      `mapstructure:"broker"      json:"broker"`
	Catalog     `mapstructure:"catalog"     json:"catalog"`
}

var (
	once   sync.Once
	config *Config
)

func setDefaults() {
	viper.SetDefault("application.env", "production")
	viper.SetDefault("application.host", "0.0.0.0")
	viper.SetDefault("application.port", 8080)
	viper.SetDefault("application.log_path", "/var/log/makelocal.log")
	viper.SetDefault("api.timeout", 5*time.Second)
	viper.SetDefault("api.max_response_bytes", 5<<20)
	viper.SetDefault("cart.idle_timeout", 30*time.Minute)
	viper.SetDefault("cart.sweep_interval", 5*time.Minute)
	viper.SetDefault("cart.max_carts", 10000)
	viper.SetDefault("cache.max_value_bytes", 512*1024)
	viper.SetDefault("catalog.coordinator_id", "123e4567-e89b-12d3-a456-426614174000")
	viper.SetDefault("catalog.cache_ttl", 10*time.Minute)
	viper.SetDefault("catalog.status_interval", time.Minute)
	viper.SetDefault("catalog.photo_cache_ttl", time.Hour)
	viper.SetDefault("broker.exchange", "makelocal.checkout")
}

func InitConfig(c context.Context, filename string) *Config {
	once.Do(func() {
		cfg := Config{}
		logger := zerolog.Ctx(c).
			With().
			Str(log.KeyTag, "main InitConfig").
			Str(log.KeyProcess, "init config").
			Str("filename", filename).
			Logger()

		setDefaults()
		viper.SetConfigName(filename)
		viper.AddConfigPath("./env")
		viper.SetConfigType("yaml")
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		viper.AutomaticEnv()

		logger = logger.With().Str(log.KeyProcess, "reading config").Logger()
		logger.Info().Msg("reading config")
		err := viper.ReadInConfig()
		if err != nil {
			err = fmt.Errorf("error when reading config with error=%w", err)
			logger.Fatal().Err(err).Msg(err.Error())
		}
		logger.Info().Msg("read config")

		logger = logger.With().Str(log.KeyProcess, "unmarshaling config").Logger()
		logger.Info().Msg("unmarshaling config")
		err = viper.Unmarshal(&cfg)
		if err != nil {
			err = fmt.Errorf("error unmarshaling config with error=%w", err)
			logger.Fatal().Err(err).Msg(err.Error())
		}
		config = &cfg
		logger = logger.With().Any(log.KeyConfig, cfg).Logger()
		logger.Info().Msg("unmarshaled config")
	})
	return config
}
