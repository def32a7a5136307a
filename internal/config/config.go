package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type CodecConfig struct {
	Kind      string `mapstructure:"kind"`
	MimeType  string `mapstructure:"mime_type"`
	ClockRate uint32 `mapstructure:"clock_rate"`
	Channels  uint16 `mapstructure:"channels"`
}

type WorkerConfig struct {
	Count      int      `mapstructure:"count"`
	LogLevel   string   `mapstructure:"log_level"`
	LogTags    []string `mapstructure:"log_tags"`
	RTCMinPort uint16   `mapstructure:"rtc_min_port"`
	RTCMaxPort uint16   `mapstructure:"rtc_max_port"`
}

type RouterConfig struct {
	Codecs []CodecConfig `mapstructure:"codecs"`
}

type TransportConfig struct {
	ListenIP           string `mapstructure:"listen_ip"`
	AnnouncedIP        string `mapstructure:"announced_ip"`
	MaxIncomingBitrate int    `mapstructure:"max_incoming_bitrate"`
	MaxOutgoingBitrate int    `mapstructure:"max_outgoing_bitrate"`
}

type SupervisionConfig struct {
	Policy    string        `mapstructure:"policy"`
	ExitGrace time.Duration `mapstructure:"exit_grace"`
}

type AIHookConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AuthToken string `mapstructure:"auth_token"`
}

type Config struct {
	Mode        string            `mapstructure:"mode"`
	Port        int               `mapstructure:"port"`
	LogLevel    string            `mapstructure:"log_level"`
	PingPeriod  time.Duration     `mapstructure:"ping_period"`
	Worker      WorkerConfig      `mapstructure:"worker"`
	Router      RouterConfig      `mapstructure:"router"`
	Transport   TransportConfig   `mapstructure:"transport"`
	Supervision SupervisionConfig `mapstructure:"supervision"`
	AIHook      AIHookConfig      `mapstructure:"ai_hook"`
}

// Load reads config/config.<CONFIG_ENV>.yaml with defaults for every
// key. Flags bound here override file values.
func Load(flags *pflag.FlagSet) (*Config, error) {
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
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("ping_period", "54s")
	v.SetDefault("worker.count", 1)
	v.SetDefault("worker.log_level", "warn")
	v.SetDefault("worker.log_tags", []string{"info", "ice", "dtls", "rtp"})
	v.SetDefault("worker.rtc_min_port", 40000)
	v.SetDefault("worker.rtc_max_port", 49999)
	v.SetDefault("router.codecs", []map[string]any{
		{"kind": "audio", "mime_type": "audio/opus", "clock_rate": 48000, "channels": 2},
		{"kind": "video", "mime_type": "video/VP8", "clock_rate": 90000},
	})
	v.SetDefault("transport.listen_ip", "0.0.0.0")
	v.SetDefault("transport.announced_ip", "")
	v.SetDefault("transport.max_incoming_bitrate", 1500000)
	v.SetDefault("transport.max_outgoing_bitrate", 600000)
	v.SetDefault("supervision.policy", "exit")
	v.SetDefault("supervision.exit_grace", "2s")
	v.SetDefault("ai_hook.enabled", false)
	v.SetDefault("ai_hook.endpoint", "")
	v.SetDefault("ai_hook.auth_token", "")

	if flags != nil {
		if f := flags.Lookup("port"); f != nil {
			_ = v.BindPFlag("port", f)
		}
		if f := flags.Lookup("log-level"); f != nil {
			_ = v.BindPFlag("log_level", f)
		}
		if f := flags.Lookup("workers"); f != nil {
			_ = v.BindPFlag("worker.count", f)
		}
		if f := flags.Lookup("ai-endpoint"); f != nil {
			_ = v.BindPFlag("ai_hook.endpoint", f)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Workers: %d | AI hook: %v\n", cfg.Mode, cfg.Port, cfg.Worker.Count, cfg.AIHook.Enabled)
	return &cfg, nil
}
