package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"castpair/internal/discovery"
	"castpair/internal/services/poll"
	"castpair/internal/services/registration"
)

// Config holds runtime options for the receiver and companion commands.
type Config struct {
	ServerURL    string             `mapstructure:"server_url" yaml:"server_url"`
	Discovery    DiscoveryConfig    `mapstructure:"discovery" yaml:"discovery"`
	Registration RegistrationConfig `mapstructure:"registration" yaml:"registration"`
	Poll         PollConfig         `mapstructure:"poll" yaml:"poll"`
	Session      SessionConfig      `mapstructure:"session" yaml:"session"`
	Log          LogConfig          `mapstructure:"log" yaml:"log"`
	Metrics      MetricsConfig      `mapstructure:"metrics" yaml:"metrics"`
}

type DiscoveryConfig struct {
	Listen             string        `mapstructure:"listen" yaml:"listen"`
	Namespace          string        `mapstructure:"namespace" yaml:"namespace"`
	MaxInactivity      time.Duration `mapstructure:"max_inactivity" yaml:"max_inactivity"`
	DisableIdleTimeout bool          `mapstructure:"disable_idle_timeout" yaml:"disable_idle_timeout"`
}

type RegistrationConfig struct {
	RetryDelay        time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier" yaml:"backoff_multiplier"`
	MaxDelay          time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	MaxAttempts       int           `mapstructure:"max_attempts" yaml:"max_attempts"`
}

type PollConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

type SessionConfig struct {
	RotateKeyOnRestart bool `mapstructure:"rotate_key_on_restart" yaml:"rotate_key_on_restart"`

	// RestartDelay is the first wait after a code expires; it doubles up to
	// one minute while codes keep expiring.
	RestartDelay time.Duration `mapstructure:"restart_delay" yaml:"restart_delay"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type MetricsConfig struct {
	// Listen is the address for /metrics; empty disables the endpoint.
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// ServerConfig holds runtime options for the development pairing server.
type ServerConfig struct {
	Listen        string        `mapstructure:"listen" yaml:"listen"`
	CodeTTL       time.Duration `mapstructure:"code_ttl" yaml:"code_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	Log           LogConfig     `mapstructure:"log" yaml:"log"`
}

// Defaults returns the default receiver configuration keyed by config key.
func Defaults() map[string]any {
	return map[string]any{
		"server_url":                      "http://127.0.0.1:8080",
		"discovery.listen":                "127.0.0.1:8009",
		"discovery.namespace":             "urn:x-cast:pair-request",
		"discovery.max_inactivity":        discovery.DefaultMaxInactivity,
		"discovery.disable_idle_timeout":  true,
		"registration.retry_delay":        registration.DefaultRetryDelay,
		"registration.backoff_multiplier": 1.0,
		"registration.max_delay":          time.Duration(0),
		"registration.max_attempts":       0,
		"poll.interval":                   poll.DefaultInterval,
		"session.rotate_key_on_restart":   true,
		"session.restart_delay":           poll.DefaultInterval,
		"log.level":                       "info",
		"log.format":                      "text",
		"metrics.listen":                  "",
	}
}

// ServerDefaults returns the default pairing server configuration.
func ServerDefaults() map[string]any {
	return map[string]any{
		"listen":         ":8080",
		"code_ttl":       10 * time.Minute,
		"sweep_interval": 30 * time.Second,
		"log.level":      "info",
		"log.format":     "text",
	}
}

// ReceiverFlags maps castpair flag names to the config keys they override.
var ReceiverFlags = map[string]string{
	"server":         "server_url",
	"listen":         "discovery.listen",
	"poll-interval":  "poll.interval",
	"retry-delay":    "registration.retry_delay",
	"max-attempts":   "registration.max_attempts",
	"rotate-key":     "session.rotate_key_on_restart",
	"log-level":      "log.level",
	"log-format":     "log.format",
	"metrics-listen": "metrics.listen",
}

// ServerFlags maps pairserver flag names to config keys.
var ServerFlags = map[string]string{
	"listen":         "listen",
	"code-ttl":       "code_ttl",
	"sweep-interval": "sweep_interval",
	"log-level":      "log.level",
	"log-format":     "log.format",
}

// Source describes where LoadConfig looks for a program's configuration.
type Source struct {
	// Name is the config file base name and the environment prefix.
	Name     string
	Defaults map[string]any
	// Flags maps flag names to the config keys they override. Other flags
	// are left to the command.
	Flags map[string]string
	// Path, when set, is the only config file read and must exist.
	Path string
}

// ConfigPath returns the full path of the name.yaml config file.
func ConfigPath(name string, system bool) (string, error) {
	var dir string
	if system {
		switch runtime.GOOS {
		case "windows":
			dir = filepath.Join(os.Getenv("ProgramData"), name)
		default:
			dir = filepath.Join("/etc", name)
		}
	} else {
		userDir, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not get user config directory: %w", err)
		}
		dir = filepath.Join(userDir, name)
	}
	return filepath.Join(dir, name+".yaml"), nil
}

// LoadConfig reads T for the program src names. Precedence, lowest first:
// defaults, config file (explicit path or the user, system and current
// directories), NAME_* environment variables, then flags set on cmd.
//
// A missing config file is not an error.
func LoadConfig[T any](cmd *cobra.Command, src Source) (T, error) {
	var c T
	v := viper.New()

	for key, value := range src.Defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName(src.Name)
	v.SetConfigType("yaml")
	if src.Path != "" {
		v.SetConfigFile(src.Path)
	}
	if p, err := ConfigPath(src.Name, false); err == nil {
		v.AddConfigPath(filepath.Dir(p))
	}
	if p, err := ConfigPath(src.Name, true); err == nil {
		v.AddConfigPath(filepath.Dir(p))
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || src.Path != "" {
			return c, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(src.Name)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cmd != nil {
		if err := bindFlags(v, cmd.Flags(), src.Flags); err != nil {
			return c, err
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		if key, ok := keys[f.Name]; ok {
			err = v.BindPFlag(key, f)
		}
	})
	return err
}

// WriteConfigFile marshals c as YAML to path, creating parent directories.
func WriteConfigFile[T any](c *T, path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create config directory %s: %w", dir, err)
	}
	return os.WriteFile(path, data, 0o600)
}
