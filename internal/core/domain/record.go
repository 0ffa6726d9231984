package domain

import "time"

// ControlRecord carries every intermediate value of a control tick.
type ControlRecord struct {
	Id                          string
	Time                        time.Time
	Deenergize                  bool
	SiteWatts                   float64
	SolarWatts                  float64
	ExportLimitWatts            float64
	ExportLimitTargetSolarWatts float64
	GenerationLimitWatts        float64
	TargetSolarWatts            float64
	CurrentPowerRatio           float64
	TargetSolarPowerRatio       float64
	RampedTargetSolarPowerRatio float64
}

// DevicePollRecord describes one poll tick of a single device.
type DevicePollRecord struct {
	DeviceId string
	Time     time.Time
	Success  bool
	Attempts int
	Duration time.Duration
	Steps    map[string]time.Duration
	Seq      uint64
}
