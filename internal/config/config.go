package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DevicesFile string `env:"DEVICES_FILE,required"`
	DevicesXML  string `env:"DEVICES_XML"`

	// External XSD validation of DevicesXML. Both must be set to run it.
	XSDValidator string `env:"XSD_VALIDATOR"`
	XSDFile      string `env:"XSD_FILE"`

	// Comma-separated host:port[@deviceName]. With one registered
	// device the @deviceName suffix may be omitted.
	Adapters string `env:"ADAPTERS"`

	BufferSize       int           `env:"BUFFER_SIZE" envDefault:"10000"`
	AssetBufferSize  int           `env:"ASSET_BUFFER_SIZE" envDefault:"1024"`
	AdapterHeartbeat time.Duration `env:"ADAPTER_HEARTBEAT" envDefault:"10s"`

	MQTTBrokerURL   string `env:"MQTT_BROKER_URL"`
	MQTTClientID    string `env:"MQTT_CLIENT_ID" envDefault:"mtcagent"`
	MQTTTopicPrefix string `env:"MQTT_TOPIC_PREFIX" envDefault:"mtconnect"`
	MQTTUsername    string `env:"MQTT_USERNAME"`
	MQTTPassword    string `env:"MQTT_PASSWORD"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":7000"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	WatchDevices bool   `env:"WATCH_DEVICES" envDefault:"false"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile     string
	HTTPAddr    string
	LogLevel    string
	DevicesFile string
	Adapters    string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	// DEVICES_FILE is required by tag but a CLI flag may supply it.
	if overrides.DevicesFile != "" {
		os.Setenv("DEVICES_FILE", overrides.DevicesFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.Adapters != "" {
		cfg.Adapters = overrides.Adapters
	}

	if cfg.BufferSize < 1 {
		return nil, fmt.Errorf("BUFFER_SIZE must be positive, got %d", cfg.BufferSize)
	}
	if cfg.AssetBufferSize < 1 {
		return nil, fmt.Errorf("ASSET_BUFFER_SIZE must be positive, got %d", cfg.AssetBufferSize)
	}

	return cfg, nil
}

// AdapterSpec is one parsed ADAPTERS entry.
type AdapterSpec struct {
	Addr       string
	DeviceName string // empty means the sole registered device
}

// AdapterSpecs parses the ADAPTERS list.
func (c *Config) AdapterSpecs() ([]AdapterSpec, error) {
	var specs []AdapterSpec
	for _, entry := range strings.Split(c.Adapters, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		spec := AdapterSpec{Addr: entry}
		if at := strings.LastIndex(entry, "@"); at >= 0 {
			spec.Addr = entry[:at]
			spec.DeviceName = entry[at+1:]
		}
		host, port, found := strings.Cut(spec.Addr, ":")
		if !found || host == "" || port == "" {
			return nil, fmt.Errorf("adapter %q: want host:port[@deviceName]", entry)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
