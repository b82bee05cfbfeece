package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Port               string
	Environment        string
	LogLevel           string
	AllowedOrigins     []string
	JWTSecret          string
	Relay              string
	RoomTTL            time.Duration
	MaxRoomConnections int
	Redis              RedisConfig
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns the host:port pair go-redis expects.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// ClientConfig configures the terminal call client.
type ClientConfig struct {
	ServerURL              string
	RoomID                 string
	UserID                 string
	PeerName               string
	Token                  string
	JWTSecret              string
	ICEServers             []string
	AutoAccept             bool
	ICEDisconnectedTimeout time.Duration
	ICEFailedTimeout       time.Duration
	Environment            string
	LogLevel               string
}

const (
	RelayRedis = "redis"
	RelayNone  = "none"
)

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// readFile merges CONFIG_FILE into v when it is set.
func readFile(v *viper.Viper) error {
	file := v.GetString("config_file")
	if file == "" {
		return nil
	}
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", file, err)
	}
	return nil
}

// Load reads the signaling server configuration from the environment
// (and CONFIG_FILE, when set).
func Load() (*Config, error) {
	v := newViper()

	v.SetDefault("port", "8080")
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("allowed_origins", "http://localhost:3000,http://localhost:5173")
	v.SetDefault("jwt_secret", "change-me-in-production")
	v.SetDefault("relay", RelayRedis)
	v.SetDefault("room_ttl", "24h")
	v.SetDefault("max_room_connections", 2)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("config_file", "")

	if err := readFile(v); err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:               v.GetString("port"),
		Environment:        v.GetString("environment"),
		LogLevel:           v.GetString("log_level"),
		AllowedOrigins:     splitList(v.GetString("allowed_origins")),
		JWTSecret:          v.GetString("jwt_secret"),
		Relay:              v.GetString("relay"),
		RoomTTL:            v.GetDuration("room_ttl"),
		MaxRoomConnections: v.GetInt("max_room_connections"),
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetString("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
	}

	if cfg.Relay != RelayRedis && cfg.Relay != RelayNone {
		return nil, fmt.Errorf("unknown relay %q", cfg.Relay)
	}
	if cfg.MaxRoomConnections < 2 {
		return nil, fmt.Errorf("max_room_connections must be at least 2, got %d", cfg.MaxRoomConnections)
	}
	return cfg, nil
}

// ClientFlags declares the call client's command line flags.
func ClientFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("callclient", pflag.ContinueOnError)
	fs.String("server", "ws://localhost:8080", "signaling server base URL")
	fs.String("room", "", "room (booking or interview) id")
	fs.String("user", "", "local participant id")
	fs.String("peer-name", "", "display name of the other participant; looked up from the room when empty")
	fs.String("token", "", "bearer token for the signaling server")
	fs.String("jwt-secret", "", "mint a development token with this secret when --token is empty")
	fs.StringSlice("stun", []string{"stun:stun.l.google.com:19302"}, "ICE server URLs")
	fs.Bool("auto-accept", false, "accept incoming calls automatically")
	fs.Duration("ice-disconnected-timeout", 5*time.Second, "ICE disconnected timeout")
	fs.Duration("ice-failed-timeout", 25*time.Second, "ICE failed timeout")
	fs.String("log-level", "info", "log level")
	return fs
}

// LoadClient reads the call client configuration from parsed flags with
// environment variables (CALL_ prefixed) as fallback.
func LoadClient(fs *pflag.FlagSet) (*ClientConfig, error) {
	v := newViper()
	v.SetEnvPrefix("call")
	v.SetDefault("environment", "development")
	v.SetDefault("config_file", "")
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	if err := readFile(v); err != nil {
		return nil, err
	}

	cfg := &ClientConfig{
		ServerURL:              strings.TrimRight(v.GetString("server"), "/"),
		RoomID:                 v.GetString("room"),
		UserID:                 v.GetString("user"),
		PeerName:               v.GetString("peer-name"),
		Token:                  v.GetString("token"),
		JWTSecret:              v.GetString("jwt-secret"),
		ICEServers:             v.GetStringSlice("stun"),
		AutoAccept:             v.GetBool("auto-accept"),
		ICEDisconnectedTimeout: v.GetDuration("ice-disconnected-timeout"),
		ICEFailedTimeout:       v.GetDuration("ice-failed-timeout"),
		Environment:            v.GetString("environment"),
		LogLevel:               v.GetString("log-level"),
	}

	if cfg.RoomID == "" {
		return nil, fmt.Errorf("room is required")
	}
	if cfg.UserID == "" {
		return nil, fmt.Errorf("user is required")
	}
	if cfg.Token == "" && cfg.JWTSecret == "" {
		return nil, fmt.Errorf("either token or jwt-secret is required")
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
