// Package config loads the adapter configuration from YAML with environment
// overrides. Environment variables follow ADAPTER_SECTION_KEY.
package config

import (
	"device-adapter-core/internal/domain/model"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const envPrefix = "ADAPTER_"

type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	HTTP     HTTPConfig     `yaml:"http"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Pairing  PairingConfig  `yaml:"pairing"`
	Storage  StorageConfig  `yaml:"storage"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Template TemplateConfig `yaml:"template"`
	Cameras  []CameraConfig `yaml:"cameras" validate:"dive"`
	Hue      *HueConfig     `yaml:"hue"`
}

type LoggingConfig struct {
	Level      string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format     string `yaml:"format" validate:"oneof=json console"`
	Output     string `yaml:"output" validate:"oneof=stdout stderr file"`
	File       string `yaml:"file" validate:"required_if=Output file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
}

type HTTPConfig struct {
	Listen       string `yaml:"listen" validate:"required"`
	ReadTimeout  int    `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout int    `yaml:"write_timeout" validate:"gte=0"`
}

type FetchConfig struct {
	Timeout int `yaml:"timeout" validate:"gt=0"`
}

type PairingConfig struct {
	MaxAttempts int `yaml:"max_attempts" validate:"gt=0"`
}

type StorageConfig struct {
	ConfigDir string `yaml:"config_dir" validate:"required"`
}

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker" validate:"required_if=Enabled true"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

type TemplateConfig struct {
	Variables map[string]interface{} `yaml:"variables"`
}

type CameraConfig struct {
	Name           string `yaml:"name"`
	StillImageURL  string `yaml:"still_image_url" validate:"required"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	Authentication string `yaml:"authentication" validate:"omitempty,oneof=none basic digest"`
	LimitRefetch   bool   `yaml:"limit_refetch_to_url_change"`
}

type HueConfig struct {
	Host     string `yaml:"host"`
	Filename string `yaml:"filename"`
	// Discovery searches the LAN for bridges over SSDP at startup.
	Discovery bool `yaml:"discovery"`
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		HTTP: HTTPConfig{
			Listen:       ":8123",
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Fetch:   FetchConfig{Timeout: 10},
		Pairing: PairingConfig{MaxAttempts: 3},
		Storage: StorageConfig{ConfigDir: "."},
		MQTT: MQTTConfig{
			ClientID:    "device-adapter-core",
			TopicPrefix: "device-adapter",
		},
	}
}

func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"LOGGING_LEVEL":      &cfg.Logging.Level,
		"LOGGING_FORMAT":     &cfg.Logging.Format,
		"LOGGING_OUTPUT":     &cfg.Logging.Output,
		"LOGGING_FILE":       &cfg.Logging.File,
		"HTTP_LISTEN":        &cfg.HTTP.Listen,
		"STORAGE_CONFIG_DIR": &cfg.Storage.ConfigDir,
		"MQTT_BROKER":        &cfg.MQTT.Broker,
		"MQTT_CLIENT_ID":     &cfg.MQTT.ClientID,
		"MQTT_USERNAME":      &cfg.MQTT.Username,
		"MQTT_PASSWORD":      &cfg.MQTT.Password,
		"MQTT_TOPIC_PREFIX":  &cfg.MQTT.TopicPrefix,
	}
	for key, dst := range strs {
		if v := os.Getenv(envPrefix + key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"FETCH_TIMEOUT":        &cfg.Fetch.Timeout,
		"PAIRING_MAX_ATTEMPTS": &cfg.Pairing.MaxAttempts,
	}
	var errs []error
	for key, dst := range ints {
		if v := os.Getenv(envPrefix + key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				continue
			}
			*dst = n
		}
	}

	if v := os.Getenv(envPrefix + "MQTT_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sMQTT_ENABLED: %w", envPrefix, err))
		} else {
			cfg.MQTT.Enabled = enabled
		}
	}

	if v := os.Getenv(envPrefix + "HUE_HOST"); v != "" {
		if cfg.Hue == nil {
			cfg.Hue = &HueConfig{}
		}
		cfg.Hue.Host = v
	}

	if v := os.Getenv(envPrefix + "HUE_DISCOVERY"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sHUE_DISCOVERY: %w", envPrefix, err))
		} else {
			if cfg.Hue == nil {
				cfg.Hue = &HueConfig{}
			}
			cfg.Hue.Discovery = enabled
		}
	}
	return errors.Join(errs...)
}

var validate = validator.New()

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("configuration errors: %s", strings.Join(msgs, "; "))
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.Timeout) * time.Second
}

func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.HTTP.ReadTimeout) * time.Second
}

func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.HTTP.WriteTimeout) * time.Second
}

// Target converts a camera entry into the domain descriptor.
func (c CameraConfig) Target() model.TargetDescriptor {
	name := c.Name
	if name == "" {
		name = model.DefaultCameraName
	}
	return model.TargetDescriptor{
		Name:          name,
		StillImageURL: c.StillImageURL,
		Username:      c.Username,
		Password:      c.Password,
		Auth:          model.AuthScheme(c.Authentication),
		LimitRefetch:  c.LimitRefetch,
	}
}

func (h HueConfig) Bridge() model.BridgeConfig {
	return model.BridgeConfig{Host: h.Host, Filename: h.Filename}
}
