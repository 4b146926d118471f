package node

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"spacenet/pkg/appdir"
	"spacenet/pkg/datagram"
	"spacenet/pkg/transform"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/viper"
)

type Config struct {
	Name          string          `mapstructure:"name"`
	ListenAddr    string          `mapstructure:"listen_addr"`
	APIListenAddr string          `mapstructure:"api_listen_addr"`
	Discovery     datagram.Config `mapstructure:"discovery"`
	TickInterval  time.Duration   `mapstructure:"tick_interval"`
	IdleTimeout   time.Duration   `mapstructure:"idle_timeout"`
	MaxPlayers    int             `mapstructure:"max_players"`
	MaxFrameSize  int             `mapstructure:"max_frame_size"`
	// MaxMessagesPerTick bounds the messages read from one session per tick.
	MaxMessagesPerTick   int    `mapstructure:"max_messages_per_tick"`
	Encrypt              bool   `mapstructure:"encrypt"`
	EncryptionPassphrase string `mapstructure:"encryption_passphrase"`
	Compress             bool   `mapstructure:"compress"`
	// Compression names the codec used when Compress is set: zstd or gzip.
	Compression string `mapstructure:"compression"`
	LogLevel    string `mapstructure:"log_level"`
	// StableID derives the server id from the machine id and Name instead
	// of drawing a new one on every start.
	StableID   bool   `mapstructure:"stable_id"`
	ConfigFile string `mapstructure:"config_file"`
}

// Compression codecs.
const (
	CompressionZstd = "zstd"
	CompressionGzip = "gzip"
)

func DefaultConfig() *Config {
	return &Config{
		Name:               "spacenet",
		ListenAddr:         ":7777",
		APIListenAddr:      "127.0.0.1:7778",
		Discovery:          datagram.Config{Address: ":7779"},
		TickInterval:       50 * time.Millisecond,
		IdleTimeout:        30 * time.Second,
		MaxPlayers:         16,
		MaxMessagesPerTick: 64,
		Encrypt:            true,
		Compression:        CompressionZstd,
		LogLevel:           "info",
		StableID:           true,
	}
}

// setDefaults mirrors DefaultConfig into v so that every key is known to
// viper, which AutomaticEnv needs to resolve environment overrides.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("name", cfg.Name)
	v.SetDefault("listen_addr", cfg.ListenAddr)
	v.SetDefault("api_listen_addr", cfg.APIListenAddr)
	v.SetDefault("discovery.address", cfg.Discovery.Address)
	v.SetDefault("discovery.multicast_group", cfg.Discovery.MulticastGroup)
	v.SetDefault("discovery.interface", cfg.Discovery.Interface)
	v.SetDefault("discovery.max_drain", cfg.Discovery.MaxDrain)
	v.SetDefault("discovery.inbox_size", cfg.Discovery.InboxSize)
	v.SetDefault("discovery.offline", cfg.Discovery.Offline)
	v.SetDefault("tick_interval", cfg.TickInterval)
	v.SetDefault("idle_timeout", cfg.IdleTimeout)
	v.SetDefault("max_players", cfg.MaxPlayers)
	v.SetDefault("max_frame_size", cfg.MaxFrameSize)
	v.SetDefault("max_messages_per_tick", cfg.MaxMessagesPerTick)
	v.SetDefault("encrypt", cfg.Encrypt)
	v.SetDefault("encryption_passphrase", cfg.EncryptionPassphrase)
	v.SetDefault("compress", cfg.Compress)
	v.SetDefault("compression", cfg.Compression)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("stable_id", cfg.StableID)
}

// LoadConfig reads defaults, then the config file, then SPACENET_* environment
// variables. An empty path searches spacenet.yaml in the working directory
// and the state directory; a missing file is not an error unless path names
// one explicitly.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	v := viper.New()
	setDefaults(v, cfg)

	v.SetEnvPrefix("SPACENET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("spacenet")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := appdir.AppDir(); err == nil {
			v.AddConfigPath(dir)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Name == "":
		return errors.New("config: name must not be empty")
	case c.TickInterval <= 0:
		return fmt.Errorf("config: tick_interval must be positive, got %v", c.TickInterval)
	case c.MaxPlayers <= 0:
		return fmt.Errorf("config: max_players must be positive, got %d", c.MaxPlayers)
	case c.MaxFrameSize < 0:
		return fmt.Errorf("config: max_frame_size must not be negative, got %d", c.MaxFrameSize)
	case c.Compression != CompressionZstd && c.Compression != CompressionGzip:
		return fmt.Errorf("config: compression must be %q or %q, got %q", CompressionZstd, CompressionGzip, c.Compression)
	}
	return nil
}

// Processor builds the payload pipeline of stream sessions: compression
// first, then encryption. It returns nil when neither is enabled.
func (c *Config) Processor() (*transform.PayloadProcessor, error) {
	var ts []transform.Transform
	if c.Compress {
		switch c.Compression {
		case CompressionGzip:
			ts = append(ts, transform.NewGzipTransform())
		case CompressionZstd:
			z, err := transform.NewZstdTransform(zstd.SpeedFastest)
			if err != nil {
				return nil, err
			}
			ts = append(ts, z)
		default:
			return nil, fmt.Errorf("config: unknown compression %q", c.Compression)
		}
	}
	if c.Encrypt {
		if c.EncryptionPassphrase == "" {
			ts = append(ts, transform.NewDefaultAESTransform())
		} else {
			aes, err := transform.NewAESCBCTransform(transform.KeyFromPassphrase(c.EncryptionPassphrase), transform.DefaultIV())
			if err != nil {
				return nil, err
			}
			ts = append(ts, aes)
		}
	}
	if len(ts) == 0 {
		return nil, nil
	}
	return transform.NewPayloadProcessor(ts...)
}
