package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/codevelop/roomchat-go/internal/logging"
	"github.com/codevelop/roomchat-go/roomchat"
)

// EnvPrefix prefixes every environment override, e.g. ROOMCHAT_AUTH_TOKEN.
const EnvPrefix = "ROOMCHAT"

type Config struct {
	Broker    BrokerConfig       `mapstructure:"broker"`
	API       APIConfig          `mapstructure:"api"`
	Auth      AuthConfig         `mapstructure:"auth"`
	HeartBeat roomchat.HeartBeat `mapstructure:"heartbeat"`
	Reconnect ReconnectConfig    `mapstructure:"reconnect"`
	Dedupe    bool               `mapstructure:"dedupe"`
	Log       logging.Config     `mapstructure:"log"`
}

type BrokerConfig struct {
	URL              string        `mapstructure:"url"`
	Host             string        `mapstructure:"host"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	ReadLimit        int64         `mapstructure:"read_limit"`
}

type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type AuthConfig struct {
	Token    string `mapstructure:"token"`
	SenderID int64  `mapstructure:"sender_id"`
}

type ReconnectConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	MaxDelay time.Duration `mapstructure:"max_delay"`
	MaxTries uint          `mapstructure:"max_tries"`
}

// Load reads configuration from the YAML file at configPath, if any, and from
// ROOMCHAT_* environment variables. An empty path means environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Short names kept for scripts.
	_ = v.BindEnv("auth.token", "ROOMCHAT_TOKEN", "ROOMCHAT_AUTH_TOKEN")
	_ = v.BindEnv("broker.url", "ROOMCHAT_URL", "ROOMCHAT_BROKER_URL")

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.Broker.URL == "" {
		return nil, errors.New("broker.url is required")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := roomchat.DefaultConfig()

	v.SetDefault("broker.url", "wss://codevelop.store/code-velop/websocket")
	v.SetDefault("broker.host", "")
	v.SetDefault("broker.handshake_timeout", d.HandshakeTimeout)
	v.SetDefault("broker.write_timeout", d.WriteTimeout)
	v.SetDefault("broker.read_limit", d.ReadLimit)
	v.SetDefault("api.base_url", "https://codevelop.store/api/v1")
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("auth.token", "")
	v.SetDefault("auth.sender_id", 0)
	v.SetDefault("heartbeat.outgoing", d.HeartBeat.Outgoing)
	v.SetDefault("heartbeat.incoming", d.HeartBeat.Incoming)
	v.SetDefault("reconnect.enabled", d.AutoReconnect)
	v.SetDefault("reconnect.interval", d.ReconnectInterval)
	v.SetDefault("reconnect.max_delay", d.MaxReconnectDelay)
	v.SetDefault("reconnect.max_tries", d.MaxReconnectTries)
	v.SetDefault("dedupe", d.Dedupe)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Session converts the loaded settings into a roomchat.Config.
func (c *Config) Session() roomchat.Config {
	return roomchat.Config{
		URL:               c.Broker.URL,
		Token:             c.Auth.Token,
		Host:              c.Broker.Host,
		SenderID:          c.Auth.SenderID,
		HeartBeat:         c.HeartBeat,
		HandshakeTimeout:  c.Broker.HandshakeTimeout,
		WriteTimeout:      c.Broker.WriteTimeout,
		ReadLimit:         c.Broker.ReadLimit,
		Dedupe:            c.Dedupe,
		AutoReconnect:     c.Reconnect.Enabled,
		ReconnectInterval: c.Reconnect.Interval,
		MaxReconnectDelay: c.Reconnect.MaxDelay,
		MaxReconnectTries: c.Reconnect.MaxTries,
	}
}
