// Package config loads the daemon configuration from defaults, a yaml
// file, DICTATION_ environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"dictation/internal/autocomplete"
	"dictation/internal/dictation"
	"dictation/internal/ipc"
	"dictation/internal/storage"
)

type Config struct {
	Log          LogConfig          `mapstructure:"log"`
	Dictation    DictationConfig    `mapstructure:"dictation"`
	Listener     ListenerConfig     `mapstructure:"listener"`
	Bus          BusConfig          `mapstructure:"bus"`
	IPC          IPCConfig          `mapstructure:"ipc"`
	Journal      JournalConfig      `mapstructure:"journal"`
	Autocomplete AutocompleteConfig `mapstructure:"autocomplete"`
	NLU          NLUConfig          `mapstructure:"nlu"`
	Feedback     FeedbackConfig     `mapstructure:"feedback"`
	Proxy        ProxyConfig        `mapstructure:"proxy"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DictationConfig struct {
	Dir           string        `mapstructure:"dir"`
	StopKeywords  []string      `mapstructure:"stop_keywords"`
	RestartPolicy string        `mapstructure:"restart_policy"`
	EvictAfter    time.Duration `mapstructure:"evict_after"`
}

// ListenerConfig mirrors the host listener settings that decide which
// mode is restored after dictation.
type ListenerConfig struct {
	ContinuousListen bool `mapstructure:"continuous_listen"`
	HybridListen     bool `mapstructure:"hybrid_listen"`
}

type BusConfig struct {
	URL       string        `mapstructure:"url"`
	Reconnect uint          `mapstructure:"reconnect"` // seconds
	Shard     string        `mapstructure:"shard"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type IPCConfig struct {
	Socket string `mapstructure:"socket"`
}

type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type AutocompleteConfig struct {
	Provider string        `mapstructure:"provider"`
	URL      string        `mapstructure:"url"`
	Path     string        `mapstructure:"path"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type NLUConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
}

type FeedbackConfig struct {
	Earcon  string `mapstructure:"earcon"`
	Desktop bool   `mapstructure:"desktop"`
	Lang    string `mapstructure:"lang"`
}

type ProxyConfig struct {
	Addr string `mapstructure:"addr"`
}

// Flags maps command line flags onto config keys.
var Flags = map[string]string{
	"log":    "log.level",
	"bus":    "bus.url",
	"socket": "ipc.socket",
	"proxy":  "proxy.addr",
	"dir":    "dictation.dir",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")

	v.SetDefault("dictation.dir", storage.DefaultDir())
	v.SetDefault("dictation.stop_keywords", dictation.DefaultStopKeywords)
	v.SetDefault("dictation.restart_policy", string(dictation.RestartReject))
	v.SetDefault("dictation.evict_after", time.Hour)

	v.SetDefault("listener.continuous_listen", false)
	v.SetDefault("listener.hybrid_listen", false)

	v.SetDefault("bus.url", "ws://127.0.0.1:8181/core")
	v.SetDefault("bus.reconnect", 5)
	v.SetDefault("bus.shard", "dictation")
	v.SetDefault("bus.timeout", 10*time.Second)

	v.SetDefault("ipc.socket", ipc.DefaultSocketPath())

	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", storage.DefaultJournalPath())

	v.SetDefault("autocomplete.provider", autocomplete.ProviderNone)
	v.SetDefault("autocomplete.url", "")
	v.SetDefault("autocomplete.path", autocomplete.DefaultPath)
	v.SetDefault("autocomplete.model", "")
	v.SetDefault("autocomplete.timeout", autocomplete.DefaultTimeout)

	v.SetDefault("nlu.provider", "keywords")
	v.SetDefault("nlu.model", "")

	v.SetDefault("feedback.earcon", "")
	v.SetDefault("feedback.desktop", false)
	v.SetDefault("feedback.lang", "en")

	v.SetDefault("proxy.addr", "")
}

// Load reads the configuration. file may be empty to search the default
// locations; flags may be nil.
func Load(file string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DICTATION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range Flags {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("dictation")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "dictation"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &nf) {
			return nil, fmt.Errorf("read config: %w", err)
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
	switch dictation.RestartPolicy(c.Dictation.RestartPolicy) {
	case dictation.RestartReject, dictation.RestartReset:
	default:
		return fmt.Errorf("dictation.restart_policy: unknown policy %q", c.Dictation.RestartPolicy)
	}
	switch c.NLU.Provider {
	case "keywords", "openai":
	default:
		return fmt.Errorf("nlu.provider: unknown provider %q", c.NLU.Provider)
	}
	if c.Dictation.Dir == "" {
		return errors.New("dictation.dir is empty")
	}
	return nil
}

// DefaultMode is the listener mode restored after dictation.
func (c *Config) DefaultMode() dictation.InputMode {
	return dictation.DefaultInputMode(c.Listener.ContinuousListen, c.Listener.HybridListen)
}
