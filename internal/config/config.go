package config

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

const (
	BUS_TRANSPORT_MQTT = "mqtt"
	BUS_TRANSPORT_NATS = "nats"

	TARIFF_AUSGRID_EA029 = "ausgrid_ea029"
	TARIFF_SAPN_RELE2W   = "sapn_rele2w"
)

var TariffPresets = []string{TARIFF_AUSGRID_EA029, TARIFF_SAPN_RELE2W}

type Config struct {
	LogLevel zapcore.Level
	DryRun   bool           `mapstructure:"dry_run"`
	Devices  DevicesConfig  `mapstructure:"devices"`
	Control  ControlConfig  `mapstructure:"control"`
	Limits   LimitsConfig   `mapstructure:"limits"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	NATS     NATSConfig     `mapstructure:"nats"`
	InfluxDB InfluxDBConfig `mapstructure:"influxdb"`
	Port     uint           `mapstructure:"port"`
	HttpLog  bool           `mapstructure:"http_log"`
}

type DevicesConfig struct {
	Host                   string
	Port                   uint
	Meter                  ModbusDeviceConfig   `mapstructure:"meter"`
	Inverters              []ModbusDeviceConfig `mapstructure:"inverters"`
	PollIntervalMillis     uint32               `mapstructure:"poll_interval_millis"`
	TimeoutMillis          uint32               `mapstructure:"timeout_millis"`
	RetryAttempts          uint                 `mapstructure:"retry_attempts"`
	RetryDelayMillis       uint32               `mapstructure:"retry_delay_millis"`
	ReconnectAfterFailures uint                 `mapstructure:"reconnect_after_failures"`
	Simulate               bool                 `mapstructure:"simulate"`
	Simulation             SimulationConfig     `mapstructure:"simulation"`
}

// ModbusDeviceConfig addresses one SunSpec device. Empty host and zero
// port fall back to the devices level values.
type ModbusDeviceConfig struct {
	Host   string
	Port   uint
	UnitId uint `mapstructure:"unit_id"`
}

type SimulationConfig struct {
	LoadWatts      float64 `mapstructure:"load_watts"`
	AvailableWatts float64 `mapstructure:"available_watts"`
	RatedWatts     float64 `mapstructure:"rated_watts"`
	InverterCount  uint    `mapstructure:"inverter_count"`
}

type ControlConfig struct {
	ApplyControl            bool    `mapstructure:"apply_control"`
	RampRatePerSecond       float64 `mapstructure:"ramp_rate_per_second"`
	RevertSeconds           uint    `mapstructure:"revert_seconds"`
	StaleAfterMillis        uint32  `mapstructure:"stale_after_millis"`
	DefaultExportLimitWatts float64 `mapstructure:"default_export_limit_watts"`
}

type LimitsConfig struct {
	Fixed    FixedLimitConfig    `mapstructure:"fixed"`
	Schedule ScheduleLimitConfig `mapstructure:"schedule"`
	Bus      BusLimitConfig      `mapstructure:"bus"`
	Tariff   TariffLimitConfig   `mapstructure:"tariff"`
}

type FixedLimitConfig struct {
	Connect              *bool    `mapstructure:"connect"`
	Energize             *bool    `mapstructure:"energize"`
	ExportLimitWatts     *float64 `mapstructure:"export_limit_watts"`
	GenerationLimitWatts *float64 `mapstructure:"generation_limit_watts"`
}

type ScheduleLimitConfig struct {
	Enable bool
}

type BusLimitConfig struct {
	Enable    bool
	Transport string
	Topic     string
}

type TariffLimitConfig struct {
	Enable bool
	Preset string
}

type MQTTConfig struct {
	Enable            bool
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

type NATSConfig struct {
	URL  string `mapstructure:"url"`
	Name string
}

type InfluxDBConfig struct {
	Enable bool
	URL    string `mapstructure:"url"`
	Token  string
	Org    string
	Bucket string
}

func (cfg DevicesConfig) PollInterval() time.Duration {
	return time.Duration(cfg.PollIntervalMillis) * time.Millisecond
}

func (cfg DevicesConfig) Timeout() time.Duration {
	return time.Duration(cfg.TimeoutMillis) * time.Millisecond
}

func (cfg DevicesConfig) RetryDelay() time.Duration {
	return time.Duration(cfg.RetryDelayMillis) * time.Millisecond
}

// Resolve fills host and port from the devices level defaults.
func (cfg DevicesConfig) Resolve(dev ModbusDeviceConfig) ModbusDeviceConfig {
	if dev.Host == "" {
		dev.Host = cfg.Host
	}
	if dev.Port == 0 {
		dev.Port = cfg.Port
	}
	return dev
}

func (cfg ControlConfig) StaleAfter() time.Duration {
	return time.Duration(cfg.StaleAfterMillis) * time.Millisecond
}

func (cfg ControlConfig) RevertTimeout() time.Duration {
	return time.Duration(cfg.RevertSeconds) * time.Second
}

// Validate checks bounds and normalizes topics in place.
func (cfg *Config) Validate() error {
	baseTopic, err := CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	hadBaseTopic, err := CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	if cfg.Devices.PollIntervalMillis < 100 || cfg.Devices.PollIntervalMillis > 1000 {
		return errors.New("config param devices.poll_interval_millis should be between 100 and 1000")
	}
	if cfg.Devices.TimeoutMillis == 0 {
		return errors.New("config param devices.timeout_millis should be > 0")
	}
	if cfg.Devices.RetryAttempts < 1 {
		return errors.New("config param devices.retry_attempts should be >= 1")
	}
	if len(cfg.Devices.Inverters) == 0 && !cfg.Devices.Simulate {
		return errors.New("config param devices.inverters should contain at least one inverter")
	}
	if cfg.Control.RampRatePerSecond < 0 {
		return errors.New("config param control.ramp_rate_per_second should be >= 0")
	}
	if cfg.Control.RevertSeconds < 1 || cfg.Control.RevertSeconds > 3600 {
		return errors.New("config param control.revert_seconds should be between 1 and 3600")
	}
	if cfg.Control.DefaultExportLimitWatts < 0 {
		return errors.New("config param control.default_export_limit_watts should be >= 0")
	}
	if w := cfg.Limits.Fixed.ExportLimitWatts; w != nil && *w < 0 {
		return errors.New("config param limits.fixed.export_limit_watts should be >= 0")
	}
	if w := cfg.Limits.Fixed.GenerationLimitWatts; w != nil && *w < 0 {
		return errors.New("config param limits.fixed.generation_limit_watts should be >= 0")
	}
	if cfg.Limits.Bus.Enable {
		switch cfg.Limits.Bus.Transport {
		case BUS_TRANSPORT_MQTT:
			if !cfg.MQTT.Enable {
				return errors.New("config param limits.bus.transport mqtt requires mqtt.enable")
			}
		case BUS_TRANSPORT_NATS:
			if cfg.NATS.URL == "" {
				return errors.New("config param nats.url should be set for limits.bus.transport nats")
			}
		default:
			return fmt.Errorf("config param limits.bus.transport should be one of %s, %s", BUS_TRANSPORT_MQTT, BUS_TRANSPORT_NATS)
		}
		if cfg.Limits.Bus.Topic == "" {
			return errors.New("config param limits.bus.topic should be set")
		}
	}
	if cfg.Limits.Tariff.Enable && !slices.Contains(TariffPresets, cfg.Limits.Tariff.Preset) {
		return fmt.Errorf("config param limits.tariff.preset should be one of %s", strings.Join(TariffPresets, ", "))
	}
	if cfg.InfluxDB.Enable && (cfg.InfluxDB.URL == "" || cfg.InfluxDB.Bucket == "") {
		return errors.New("config params influxdb.url and influxdb.bucket should be set")
	}
	return nil
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
