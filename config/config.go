package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "TUGOFWAR"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Game     GameConfig     `mapstructure:"game"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress     string        `mapstructure:"http_address"`
	RPCAddress      string        `mapstructure:"rpc_address"`
	GRPCAddress     string        `mapstructure:"grpc_address"`
	Heartbeat       time.Duration `mapstructure:"heartbeat"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	CreateRoomRate  float64       `mapstructure:"create_room_rate"`
	CreateRoomBurst int           `mapstructure:"create_room_burst"`
}

type GameConfig struct {
	TargetWins      int           `mapstructure:"target_wins"`
	Cooldown        time.Duration `mapstructure:"cooldown"`
	MaxTeamSize     int           `mapstructure:"max_team_size"`
	RoomIdleTimeout time.Duration `mapstructure:"room_idle_timeout"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Address   string `mapstructure:"address"`
	Namespace string `mapstructure:"namespace"`
}

type DatabaseConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN renders a postgres URL understood by both lib/pq and pgx.
func (p PostgresConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + p.DBName,
		RawQuery: "sslmode=" + p.SSLMode,
	}
	return u.String()
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", "127.0.0.1:8081")
	v.SetDefault("server.grpc_address", "127.0.0.1:8082")
	v.SetDefault("server.heartbeat", 30*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Second)
	v.SetDefault("server.create_room_rate", 1.0)
	v.SetDefault("server.create_room_burst", 3)

	v.SetDefault("game.target_wins", 3)
	v.SetDefault("game.cooldown", 5*time.Second)
	v.SetDefault("game.max_team_size", 10)
	v.SetDefault("game.room_idle_timeout", 30*time.Minute)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.address", ":9100")
	v.SetDefault("metrics.namespace", "tugofwar")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.driver", "gorm")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "tugofwar")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"http-address":      "server.http_address",
	"rpc-address":       "server.rpc_address",
	"grpc-address":      "server.grpc_address",
	"metrics-address":   "metrics.address",
	"target-wins":       "game.target_wins",
	"cooldown":          "game.cooldown",
	"room-idle-timeout": "game.room_idle_timeout",
	"database":          "database.enabled",
	"log-level":         "log.level",
	"dev":               "log.development",
}

// RegisterFlags adds the overridable settings to fs. Unset flags never win
// over the config file or the environment.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", ".", "directory containing config.yaml (env: TUGOFWAR_CONFIG)")
	fs.StringP("http-address", "b", ":8080", "websocket/http listen address (env: TUGOFWAR_SERVER_HTTP_ADDRESS)")
	fs.String("rpc-address", "127.0.0.1:8081", "admin net/rpc listen address (env: TUGOFWAR_SERVER_RPC_ADDRESS)")
	fs.String("grpc-address", "127.0.0.1:8082", "grpc health listen address (env: TUGOFWAR_SERVER_GRPC_ADDRESS)")
	fs.String("metrics-address", ":9100", "prometheus listen address (env: TUGOFWAR_METRICS_ADDRESS)")
	fs.Int("target-wins", 3, "default round wins needed to end a match (env: TUGOFWAR_GAME_TARGET_WINS)")
	fs.Duration("cooldown", 5*time.Second, "pause between rounds (env: TUGOFWAR_GAME_COOLDOWN)")
	fs.Duration("room-idle-timeout", 30*time.Minute, "evict rooms idle for this long (env: TUGOFWAR_GAME_ROOM_IDLE_TIMEOUT)")
	fs.Bool("database", false, "archive finished matches to postgres (env: TUGOFWAR_DATABASE_ENABLED)")
	fs.String("log-level", "info", "log level (env: TUGOFWAR_LOG_LEVEL)")
	fs.Bool("dev", false, "human readable development logs (env: TUGOFWAR_LOG_DEVELOPMENT)")
}

// LoadConfig reads config.yaml from path when present, then the environment,
// then any flag explicitly set in flags. flags may be nil.
func LoadConfig(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.HTTPAddress == "" {
		return errors.New("server.http_address must be set")
	}
	if c.Server.Heartbeat <= 0 {
		return fmt.Errorf("invalid server.heartbeat: %s", c.Server.Heartbeat)
	}
	if c.Server.CreateRoomRate <= 0 || c.Server.CreateRoomBurst < 1 {
		return errors.New("server.create_room_rate and server.create_room_burst must be positive")
	}
	if c.Game.TargetWins < 1 {
		return fmt.Errorf("invalid game.target_wins (must be at least 1): %d", c.Game.TargetWins)
	}
	if c.Game.Cooldown <= 0 {
		return fmt.Errorf("invalid game.cooldown (must be positive): %s", c.Game.Cooldown)
	}
	if c.Game.MaxTeamSize < 1 {
		return fmt.Errorf("invalid game.max_team_size: %d", c.Game.MaxTeamSize)
	}
	if c.Database.Enabled {
		switch c.Database.Driver {
		case "gorm", "pq":
		default:
			return fmt.Errorf("unknown database.driver %q (want gorm or pq)", c.Database.Driver)
		}
	}
	return nil
}
