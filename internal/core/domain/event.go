package domain

import "fmt"

type SensorUpdateEventMixIn struct {
	Id string
}

type SensorUpdateEvent interface {
	SensorUpdateEvent() string
	SensorId() string
}

func (e SensorUpdateEventMixIn) SensorUpdateEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e SensorUpdateEventMixIn) SensorId() string {
	return e.Id
}

type FloatSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    float64
	Decimals uint
}

type BinarySensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

type SwitchSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

type BridgeStateUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

func floatEvent(id string, value float64, decimals uint) FloatSensorUpdateEvent {
	return FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: id},
		Value:                  value,
		Decimals:               decimals,
	}
}

// ControlRecordToUpdateEvents maps a tick record to sensor updates.
// Ratios are published as percentages.
func ControlRecordToUpdateEvents(rec ControlRecord) []SensorUpdateEvent {
	return []SensorUpdateEvent{
		floatEvent(SENSOR_ID_SITE_POWER, rec.SiteWatts, 1),
		floatEvent(SENSOR_ID_SOLAR_POWER, rec.SolarWatts, 1),
		floatEvent(SENSOR_ID_EXPORT_LIMIT, rec.ExportLimitWatts, 0),
		floatEvent(SENSOR_ID_GENERATION_LIMIT, rec.GenerationLimitWatts, 0),
		floatEvent(SENSOR_ID_TARGET_SOLAR_POWER, rec.TargetSolarWatts, 1),
		floatEvent(SENSOR_ID_CURRENT_POWER_RATIO, rec.CurrentPowerRatio*100, 2),
		floatEvent(SENSOR_ID_TARGET_POWER_RATIO, rec.TargetSolarPowerRatio*100, 2),
		floatEvent(SENSOR_ID_RAMPED_POWER_RATIO, rec.RampedTargetSolarPowerRatio*100, 2),
		BinarySensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SENSOR_ID_DEENERGIZED},
			Value:                  rec.Deenergize,
		},
	}
}

func ApplyControlUpdateEvent(enabled bool) SwitchSensorUpdateEvent {
	return SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SWITCH_ID_APPLY_CONTROL},
		Value:                  enabled,
	}
}
