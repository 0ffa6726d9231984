package util

import (
	"github.com/berfenger/exportguard/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Devices: config.DevicesConfig{
			Host:                   "-.-.-.-",
			Port:                   502,
			Meter:                  config.ModbusDeviceConfig{UnitId: 200},
			Inverters:              []config.ModbusDeviceConfig{{UnitId: 1}},
			PollIntervalMillis:     100,
			TimeoutMillis:          500,
			RetryAttempts:          3,
			RetryDelayMillis:       10,
			ReconnectAfterFailures: 3,
			Simulate:               true,
			Simulation: config.SimulationConfig{
				LoadWatts:      1000,
				AvailableWatts: 6000,
				RatedWatts:     10000,
				InverterCount:  1,
			},
		},
		Control: config.ControlConfig{
			ApplyControl:            true,
			RampRatePerSecond:       0.1,
			RevertSeconds:           60,
			StaleAfterMillis:        5000,
			DefaultExportLimitWatts: 1500,
		},
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "exportguard",
			HADiscoveryTopic: "homeassistant",
		},
		Port: 8080,
	}
}
