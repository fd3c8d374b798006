package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/edgeflare/valuelog/pkg/transport/kafka"
	"github.com/edgeflare/valuelog/pkg/transport/nats"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version is overridden at build time with -ldflags "-X".
var Version = "dev"

// Transport drivers.
const (
	DriverKafka  = "kafka"
	DriverNATS   = "nats"
	DriverMemory = "memory"
)

// Config holds application-wide configuration
type Config struct {
	LogLevel  string          `mapstructure:"logLevel"`
	Transport TransportConfig `mapstructure:"transport"`
	Commands  LogConfig       `mapstructure:"commands"`
	Events    LogConfig       `mapstructure:"events"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Topics    TopicsConfig    `mapstructure:"topics"`
}

type TransportConfig struct {
	Driver string       `mapstructure:"driver"`
	Kafka  kafka.Config `mapstructure:"kafka"`
	NATS   nats.Config  `mapstructure:"nats"`
}

// LogConfig names a log topic and the consumer group that processes it.
type LogConfig struct {
	Topic string `mapstructure:"topic"`
	Group string `mapstructure:"group"`
}

type HTTPConfig struct {
	ListenAddr     string        `mapstructure:"listenAddr"`
	PublishTimeout time.Duration `mapstructure:"publishTimeout"`
	AllowedOrigins []string      `mapstructure:"allowedOrigins"`
	TLS            struct {
		CertFile string `mapstructure:"certFile"`
		KeyFile  string `mapstructure:"keyFile"`
	} `mapstructure:"tls"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type TopicsConfig struct {
	// Create makes serve create missing topics before starting.
	Create bool `mapstructure:"create"`
}

var defaults = map[string]any{
	"logLevel":                        "info",
	"transport.driver":                DriverKafka,
	"transport.kafka.brokers":         []string{"localhost:9092"},
	"transport.kafka.producerTimeout": "5s",
	"transport.kafka.sessionTimeout":  "6s",
	"transport.nats.servers":          []string{"nats://127.0.0.1:4222"},
	"transport.nats.prefix":           "valuelog",
	"commands.topic":                  "commands",
	"commands.group":                  "commands-processors",
	"events.topic":                    "events",
	"events.group":                    "events-processors",
	"http.listenAddr":                 ":8080",
	"http.publishTimeout":             "5s",
	"http.allowedOrigins":             []string{"*"},
	"metrics.enabled":                 false,
	"metrics.addr":                    ":9100",
	"topics.create":                   true,
}

// legacyEnv maps keys to the variable names earlier deployments were
// configured with. VALUELOG_* variables take precedence.
var legacyEnv = map[string]string{
	"logLevel":                "LOG_LEVEL",
	"transport.kafka.brokers": "KAFKA_BROKER",
	"commands.topic":          "KAFKA_COMMANDS_TOPICS",
	"commands.group":          "KAFKA_COMMANDS_GROUP_ID",
	"events.topic":            "KAFKA_EVENTS_TOPICS",
	"events.group":            "KAFKA_EVENTS_GROUP_ID",
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("VALUELOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := "VALUELOG_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, prefixed, legacy)
	}
	return v
}

// Load reads config from file or environment. Flags in flagSets named after
// a config key, such as "http.listenAddr", override both when set.
func Load(cfgFile string, flagSets ...*pflag.FlagSet) (*Config, error) {
	v := newViper()
	for _, fs := range flagSets {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("valuelog")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values that have no usable fallback.
func (c *Config) Validate() error {
	switch c.Transport.Driver {
	case DriverKafka, DriverNATS, DriverMemory:
	default:
		return fmt.Errorf("unknown transport driver %q (want %s, %s or %s)", c.Transport.Driver, DriverKafka, DriverNATS, DriverMemory)
	}
	if c.Commands.Topic == "" || c.Events.Topic == "" {
		return errors.New("commands.topic and events.topic must be set")
	}
	if c.Commands.Topic == c.Events.Topic {
		return fmt.Errorf("commands and events must use different topics, both are %q", c.Commands.Topic)
	}
	return nil
}
