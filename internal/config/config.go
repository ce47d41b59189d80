package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalid marks a configuration that loaded but cannot be used.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	DB        DBConfig        `mapstructure:"db"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Hardware  HardwareConfig  `mapstructure:"hardware"`
	Pour      PourConfig      `mapstructure:"pour"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Cleaning  CleaningConfig  `mapstructure:"cleaning"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Channels  map[string]int  `mapstructure:"channels"` // ingredient -> relay channel
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type AuthConfig struct {
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

// HardwareConfig holds the I2C wiring and the background poll periods.
type HardwareConfig struct {
	Simulate       bool          `mapstructure:"simulate"`
	FlowRate       float64       `mapstructure:"flow_rate"` // simulator only, ml/s
	RelayAddr      int           `mapstructure:"relay_addr"`
	ScaleAddr      int           `mapstructure:"scale_addr"`
	WeightRegister int           `mapstructure:"weight_register"`
	TareRegister   int           `mapstructure:"tare_register"`
	TareCommand    int           `mapstructure:"tare_command"`
	TareSettle     time.Duration `mapstructure:"tare_settle"`
	ScalePoll      time.Duration `mapstructure:"scale_poll"`
	RelayReassert  time.Duration `mapstructure:"relay_reassert"`
}

type PourConfig struct {
	Tick        time.Duration `mapstructure:"tick"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	StepTimeout time.Duration `mapstructure:"step_timeout"`
}

type BroadcastConfig struct {
	StatusInterval time.Duration `mapstructure:"status_interval"`
	WeightInterval time.Duration `mapstructure:"weight_interval"`
	Buffer         int           `mapstructure:"buffer"`
}

type CleaningConfig struct {
	Duration time.Duration `mapstructure:"duration"`
	Pause    time.Duration `mapstructure:"pause"`
	Schedule string        `mapstructure:"schedule"` // cron spec, empty disables
}

type MQTTConfig struct {
	Broker   string `mapstructure:"broker"` // empty disables the bridge
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	QoS      int    `mapstructure:"qos"`
}

// DefaultChannels is the factory pump wiring.
func DefaultChannels() map[string]int {
	return map[string]int{
		"vodka":               0,
		"white_rum":           1,
		"white_wine":          2,
		"orange_liqueur":      3,
		"lemon_juice":         4,
		"elderflower_syrup":   5,
		"passion_fruit_juice": 6,
		"soda":                7,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")

	v.SetDefault("server.port", "3000")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("db.path", "potion.db")

	v.SetDefault("auth.signing_key", "change-me")
	v.SetDefault("auth.token_ttl", "1h")

	v.SetDefault("hardware.simulate", false)
	v.SetDefault("hardware.flow_rate", 25.0)
	v.SetDefault("hardware.relay_addr", 0x20)
	v.SetDefault("hardware.scale_addr", 0x26)
	v.SetDefault("hardware.weight_register", 0x10)
	v.SetDefault("hardware.tare_register", 0x50)
	v.SetDefault("hardware.tare_command", 0x01)
	v.SetDefault("hardware.tare_settle", "200ms")
	v.SetDefault("hardware.scale_poll", "100ms")
	v.SetDefault("hardware.relay_reassert", "1s")

	v.SetDefault("pour.tick", "50ms")
	v.SetDefault("pour.settle_delay", "1s")
	v.SetDefault("pour.step_timeout", "60s")

	v.SetDefault("broadcast.status_interval", "1s")
	v.SetDefault("broadcast.weight_interval", "100ms")
	v.SetDefault("broadcast.buffer", 64)

	v.SetDefault("cleaning.duration", "10s")
	v.SetDefault("cleaning.pause", "500ms")
	v.SetDefault("cleaning.schedule", "")

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "potion-master")
	v.SetDefault("mqtt.topic", "potion")
	v.SetDefault("mqtt.qos", 0)
}

// Load reads the YAML file at path, applies defaults and POTION_* env
// overrides, and validates the result. An empty path looks for
// configs/config.yml and falls back to defaults if it is missing.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("POTION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.AddConfigPath("configs")
		v.SetConfigName("config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.Channels) == 0 {
		cfg.Channels = DefaultChannels()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the channel assignment and the hardware wiring.
func (c *Config) Validate() error {
	owner := make(map[int]string, len(c.Channels))
	for ingredient, ch := range c.Channels {
		if ch < 0 || ch > 7 {
			return fmt.Errorf("%w: channel %d for %q out of range 0-7", ErrInvalid, ch, ingredient)
		}
		if prev, dup := owner[ch]; dup {
			return fmt.Errorf("%w: channel %d assigned to both %q and %q", ErrInvalid, ch, prev, ingredient)
		}
		owner[ch] = ingredient
	}

	for name, addr := range map[string]int{
		"relay_addr": c.Hardware.RelayAddr,
		"scale_addr": c.Hardware.ScaleAddr,
	} {
		if addr < 0x03 || addr > 0x77 {
			return fmt.Errorf("%w: hardware.%s 0x%02x is not a 7-bit device address", ErrInvalid, name, addr)
		}
	}
	for name, reg := range map[string]int{
		"weight_register": c.Hardware.WeightRegister,
		"tare_register":   c.Hardware.TareRegister,
		"tare_command":    c.Hardware.TareCommand,
	} {
		if reg < 0 || reg > 0xFF {
			return fmt.Errorf("%w: hardware.%s 0x%x does not fit a byte", ErrInvalid, name, reg)
		}
	}

	if c.Pour.Tick <= 0 || c.Hardware.ScalePoll <= 0 || c.Hardware.RelayReassert <= 0 ||
		c.Broadcast.StatusInterval <= 0 || c.Broadcast.WeightInterval <= 0 {
		return fmt.Errorf("%w: poll and broadcast intervals must be positive", ErrInvalid)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: server.shutdown_timeout must be positive", ErrInvalid)
	}
	if c.Broadcast.Buffer <= 0 {
		return fmt.Errorf("%w: broadcast.buffer must be positive", ErrInvalid)
	}
	return nil
}
