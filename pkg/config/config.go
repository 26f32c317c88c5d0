// Package config loads the node configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables overriding the file,
// MATCHDEX_HTTP_LISTEN overrides http.listen.
const EnvPrefix = "MATCHDEX"

type Config struct {
	Engine  Engine  `mapstructure:"engine"`
	Storage Storage `mapstructure:"storage"`
	HTTP    HTTP    `mapstructure:"http"`
	Log     Log     `mapstructure:"log"`
	Journal Journal `mapstructure:"journal"`
	Kafka   Kafka   `mapstructure:"kafka"`
}

// Engine holds the settings applied when the state is created. Later
// changes go through the engine's setters.
type Engine struct {
	Address    string `mapstructure:"address" validate:"required,eth_addr"`
	Owner      string `mapstructure:"owner" validate:"required,eth_addr"`
	Backend    string `mapstructure:"backend" validate:"omitempty,eth_addr"`
	AdminToken string `mapstructure:"admin_token" validate:"omitempty,eth_addr"`
	FeeRateBP  uint64 `mapstructure:"fee_rate_bp" validate:"lte=1000"`
	// Genesis is the YAML file the token ledger is seeded from.
	Genesis string `mapstructure:"genesis" validate:"required"`
}

type Storage struct {
	// Dir is the badger directory, empty keeps the state in memory.
	Dir string `mapstructure:"dir"`
}

type HTTP struct {
	Listen          string        `mapstructure:"listen" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

type Log struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

type Journal struct {
	// Path is the sqlite file, empty disables the journal.
	Path string `mapstructure:"path"`
}

type Kafka struct {
	// Brokers empty disables publishing.
	Brokers []string      `mapstructure:"brokers" validate:"dive,hostname_port"`
	Topic   string        `mapstructure:"topic"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

var defaults = map[string]interface{}{
	"engine.address":        "",
	"engine.owner":          "",
	"engine.backend":        "",
	"engine.admin_token":    "",
	"engine.fee_rate_bp":    25,
	"engine.genesis":        "genesis.yaml",
	"storage.dir":           "",
	"http.listen":           "127.0.0.1:8080",
	"http.shutdown_timeout": "5s",
	"log.level":             "info",
	"journal.path":          "",
	"kafka.brokers":         []string{},
	"kafka.topic":           "matchdex.events",
	"kafka.timeout":         "10s",
}

var validate = validator.New()

// Load reads the YAML file at path, when path is not empty, and
// overlays the environment. A .env file in the working directory is
// loaded into the environment first.
func Load(path string) (*Config, error) {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env: %w", err)
	}

	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		err = v.ReadInConfig()
		if err != nil {
			return nil, fmt.Errorf("error reading config %s: %w", path, err)
		}
	}

	var c Config
	err = v.Unmarshal(&c)
	if err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}

	err = c.Validate()
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func addr(s string) common.Address {
	if s == "" {
		return common.Address{}
	}
	return common.HexToAddress(s)
}

func (e Engine) AddressValue() common.Address    { return addr(e.Address) }
func (e Engine) OwnerValue() common.Address      { return addr(e.Owner) }
func (e Engine) BackendValue() common.Address    { return addr(e.Backend) }
func (e Engine) AdminTokenValue() common.Address { return addr(e.AdminToken) }
