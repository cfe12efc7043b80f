package config

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"ammeter-tester/pkg/models"
	"ammeter-tester/pkg/retry"
)

const defaultHost = "localhost"

// ConfigurationError reports a missing or invalid configuration entry.
type ConfigurationError struct {
	Key string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error at %s: %v", e.Key, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ErrUnsupportedAmmeter is wrapped by the ConfigurationError returned for an unknown device type.
var ErrUnsupportedAmmeter = errors.New("unsupported ammeter type")

// Config is the validated test harness configuration.
type Config struct {
	Ammeters         map[string]Device `mapstructure:"ammeters" validate:"required,min=1,dive"`
	Testing          Testing           `mapstructure:"testing"`
	Analysis         Analysis          `mapstructure:"analysis"`
	ResultManagement ResultManagement  `mapstructure:"result_management"`
	Metrics          Metrics           `mapstructure:"metrics"`
}

// Device describes how to reach one ammeter type.
type Device struct {
	Name      string  `mapstructure:"-"`
	Host      string  `mapstructure:"host" validate:"required"`
	Port      int     `mapstructure:"port" validate:"min=1,max=65535"`
	Command   string  `mapstructure:"command" validate:"required"`
	Transport string  `mapstructure:"transport"`
	Tunnel    *Tunnel `mapstructure:"tunnel"`
}

// Endpoint returns the host:port address of the device.
func (d Device) Endpoint() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

type Testing struct {
	Sampling       Sampling      `mapstructure:"sampling"`
	Retry          Retry         `mapstructure:"retry"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gte=0"`
}

type Sampling struct {
	MeasurementsCount    int     `mapstructure:"measurements_count" validate:"min=1"`
	SamplingFrequencyHz  float64 `mapstructure:"sampling_frequency_hz" validate:"gt=0"`
	TotalDurationSeconds float64 `mapstructure:"total_duration_seconds" validate:"gte=0"`
}

type Retry struct {
	MaxAttempts int           `mapstructure:"max_attempts" validate:"min=1"`
	Backoff     time.Duration `mapstructure:"backoff" validate:"gte=0"`
}

type Analysis struct {
	StatisticalMetrics []string      `mapstructure:"statistical_metrics" validate:"dive,oneof=mean median std_dev min max"`
	Visualization      Visualization `mapstructure:"visualization"`
}

type Visualization struct {
	Enabled bool `mapstructure:"enabled"`
}

type ResultManagement struct {
	SavePath string   `mapstructure:"save_path"`
	Database Database `mapstructure:"database"`
	InfluxDB InfluxDB `mapstructure:"influxdb"`
}

// Database selects the SQL store. An empty driver disables it.
type Database struct {
	Driver string `mapstructure:"driver" validate:"omitempty,oneof=postgres sqlite"`
	DSN    string `mapstructure:"dsn" validate:"required_with=Driver"`
}

// InfluxDB selects the time-series store. An empty URL disables it.
type InfluxDB struct {
	URL    string `mapstructure:"url" validate:"omitempty,url"`
	Token  string `mapstructure:"token"`
	Org    string `mapstructure:"org" validate:"required_with=URL"`
	Bucket string `mapstructure:"bucket" validate:"required_with=URL"`
}

type Metrics struct {
	ListenAddress string `mapstructure:"listen_address"`
}

// SetDefaults registers the defaults every configuration starts from.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("testing.sampling.measurements_count", 10)
	v.SetDefault("testing.sampling.sampling_frequency_hz", 2.0)
	v.SetDefault("testing.retry.max_attempts", retry.Default.MaxAttempts)
	v.SetDefault("testing.retry.backoff", retry.Default.Backoff)
	v.SetDefault("testing.request_timeout", 5*time.Second)
	v.SetDefault("analysis.statistical_metrics", models.DescriptiveMetrics)
	v.SetDefault("result_management.save_path", "results")
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, validationError(err)
	}

	return &cfg, nil
}

func (c *Config) normalize() error {
	devices := make(map[string]Device, len(c.Ammeters))
	for name, device := range c.Ammeters {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, ok := devices[key]; ok {
			return &ConfigurationError{Key: "ammeters." + key, Err: errors.New("duplicate ammeter type")}
		}
		if device.Host == "" {
			device.Host = defaultHost
		}
		device.Name = key
		if err := device.resolveTransport(); err != nil {
			return err
		}
		devices[key] = device
	}
	c.Ammeters = devices

	if c.Testing.Sampling.TotalDurationSeconds == 0 && c.Testing.Sampling.SamplingFrequencyHz > 0 {
		c.Testing.Sampling.TotalDurationSeconds = float64(c.Testing.Sampling.MeasurementsCount) / c.Testing.Sampling.SamplingFrequencyHz
	}

	return nil
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ConfigurationError{Key: "config", Err: err}
	}

	errs := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		errs = append(errs, &ConfigurationError{
			Key: fe.Namespace(),
			Err: fmt.Errorf("value %v failed %q validation", fe.Value(), fe.Tag()),
		})
	}
	return errors.Join(errs...)
}

// Device returns the configuration of the named ammeter type. Lookup is
// case-insensitive.
func (c *Config) Device(name string) (Device, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	device, ok := c.Ammeters[key]
	if !ok {
		return Device{}, &ConfigurationError{Key: "ammeters." + key, Err: ErrUnsupportedAmmeter}
	}
	return device, nil
}

// DeviceTypes returns the configured ammeter types in sorted order.
func (c *Config) DeviceTypes() []string {
	names := make([]string, 0, len(c.Ammeters))
	for name := range c.Ammeters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SamplingRequest builds the campaign request for deviceType.
func (c *Config) SamplingRequest(deviceType, testID string) models.SamplingRequest {
	return models.SamplingRequest{
		DeviceType:  deviceType,
		TestID:      testID,
		FrequencyHz: c.Testing.Sampling.SamplingFrequencyHz,
		Count:       c.Testing.Sampling.MeasurementsCount,
	}
}

// RetryPolicy returns the configured per-sample retry policy.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Testing.Retry.MaxAttempts,
		Backoff:     c.Testing.Retry.Backoff,
	}
}
