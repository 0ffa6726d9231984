package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE        = "bridge"
	SENSOR_ID_SITE_POWER          = "site_power"
	SENSOR_ID_SOLAR_POWER         = "solar_power"
	SENSOR_ID_EXPORT_LIMIT        = "export_limit"
	SENSOR_ID_GENERATION_LIMIT    = "generation_limit"
	SENSOR_ID_TARGET_SOLAR_POWER  = "target_solar_power"
	SENSOR_ID_CURRENT_POWER_RATIO = "current_power_ratio"
	SENSOR_ID_TARGET_POWER_RATIO  = "target_power_ratio"
	SENSOR_ID_RAMPED_POWER_RATIO  = "ramped_power_ratio"
	SENSOR_ID_DEENERGIZED         = "deenergized"
	SWITCH_ID_APPLY_CONTROL       = "apply_control"
	STATE_CLASS_MEASUREMENT       = "measurement"
	DEVICE_CLASS_POWER            = "power"
	DEVICE_CLASS_POWER_FACTOR     = "power_factor"
	DEVICE_CLASS_CONNECTIVITY     = "connectivity"
	DEVICE_CLASS_PROBLEM          = "problem"
	ENTITY_CLASS_DIAGNOSTIC       = "diagnostic"
	ENTITY_CLASS_CONFIG           = "config"
	SENSOR_TYPE_SENSOR            = "sensor"
	SENSOR_TYPE_BINARY            = "binary_sensor"
)

// control values older than this are shown as unavailable
const SENSOR_EXPIRE_AFTER_SECONDS = 120

type Device struct {
	Id           string
	Name         string
	Version      string
	Model        string
	Manufacturer string
	ViaDevice    string
}

type GenericSensor struct {
	Device             Device
	Id                 string
	SensorType         string
	Name               string
	UniqueId           string
	UnitOfMeasurement  string
	StateClass         string // measurement, duration, total_increasing
	DeviceClass        string // power, power_factor, connectivity
	EntityCategory     string // diagnostic, config, nil
	EnabledByDefault   *bool
	Icon               string
	Precision          *int
	ExpireAfterSeconds uint
}

type GenericSwitch struct {
	Device   Device
	Id       string
	Name     string
	UniqueId string
	Icon     string
}

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("exportguard_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "Export Guard",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Export Guard %s", md5HashShort(baseTopic)),
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

// ControlSensors lists every entity published for the control loop. The
// first entry carries the full device description; the rest reference it.
func ControlSensors(bridge Device) []GenericSensor {
	short := IdDevice(bridge)
	watts, percent := 0, 1
	power := func(id, name string) GenericSensor {
		return GenericSensor{
			Device:             short,
			Id:                 id,
			SensorType:         SENSOR_TYPE_SENSOR,
			Name:               name,
			StateClass:         STATE_CLASS_MEASUREMENT,
			DeviceClass:        DEVICE_CLASS_POWER,
			UnitOfMeasurement:  "W",
			Precision:          &watts,
			ExpireAfterSeconds: SENSOR_EXPIRE_AFTER_SECONDS,
			UniqueId:           uniqueId(bridge.Id, id),
		}
	}
	ratio := func(id, name string) GenericSensor {
		return GenericSensor{
			Device:             short,
			Id:                 id,
			SensorType:         SENSOR_TYPE_SENSOR,
			Name:               name,
			StateClass:         STATE_CLASS_MEASUREMENT,
			DeviceClass:        DEVICE_CLASS_POWER_FACTOR,
			UnitOfMeasurement:  "%",
			Precision:          &percent,
			ExpireAfterSeconds: SENSOR_EXPIRE_AFTER_SECONDS,
			UniqueId:           uniqueId(bridge.Id, id),
		}
	}
	return []GenericSensor{
		{
			Device:         bridge,
			Id:             SENSOR_ID_BRIDGE_STATE,
			SensorType:     SENSOR_TYPE_BINARY,
			Name:           "Connection state",
			DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
			EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
			UniqueId:       uniqueId(bridge.Id, SENSOR_ID_BRIDGE_STATE),
		},
		power(SENSOR_ID_SITE_POWER, "Site power"),
		power(SENSOR_ID_SOLAR_POWER, "Solar power"),
		power(SENSOR_ID_EXPORT_LIMIT, "Export limit"),
		power(SENSOR_ID_GENERATION_LIMIT, "Generation limit"),
		power(SENSOR_ID_TARGET_SOLAR_POWER, "Target solar power"),
		ratio(SENSOR_ID_CURRENT_POWER_RATIO, "Current power ratio"),
		ratio(SENSOR_ID_TARGET_POWER_RATIO, "Target power ratio"),
		ratio(SENSOR_ID_RAMPED_POWER_RATIO, "Ramped power ratio"),
		{
			Device:      short,
			Id:          SENSOR_ID_DEENERGIZED,
			SensorType:  SENSOR_TYPE_BINARY,
			Name:        "Deenergized",
			DeviceClass: DEVICE_CLASS_PROBLEM,
			UniqueId:    uniqueId(bridge.Id, SENSOR_ID_DEENERGIZED),
		},
	}
}

func ControlSwitches(bridge Device) []GenericSwitch {
	return []GenericSwitch{
		{
			Device:   IdDevice(bridge),
			Id:       SWITCH_ID_APPLY_CONTROL,
			Name:     "Apply control",
			UniqueId: uniqueId(bridge.Id, SWITCH_ID_APPLY_CONTROL),
			Icon:     "mdi:transmission-tower-export",
		},
	}
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5HashShort(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])[0:8]
}
