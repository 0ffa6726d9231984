package metrics

import (
	"github.com/berfenger/exportguard/internal/core/domain"
	"github.com/berfenger/exportguard/internal/core/port"

	"go.uber.org/zap"
)

// Multi fans every record out to all sinks, in order.
type Multi []port.MetricsSink

func (m Multi) WriteControl(record domain.ControlRecord) {
	for _, s := range m {
		s.WriteControl(record)
	}
}

func (m Multi) WriteLimit(limit domain.ReconciledLimit) {
	for _, s := range m {
		s.WriteLimit(limit)
	}
}

func (m Multi) WriteDevicePoll(record domain.DevicePollRecord) {
	for _, s := range m {
		s.WriteDevicePoll(record)
	}
}

type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.With(zap.String("sink", "log"))}
}

func (s *LogSink) WriteControl(record domain.ControlRecord) {
	s.logger.Debug("inverterControl",
		zap.String("id", record.Id),
		zap.Bool("deenergize", record.Deenergize),
		zap.Float64("siteWatts", record.SiteWatts),
		zap.Float64("solarWatts", record.SolarWatts),
		zap.Float64("exportLimitWatts", record.ExportLimitWatts),
		zap.Float64("generationLimitWatts", record.GenerationLimitWatts),
		zap.Float64("targetSolarWatts", record.TargetSolarWatts),
		zap.Float64("currentPowerRatio", record.CurrentPowerRatio),
		zap.Float64("targetSolarPowerRatio", record.TargetSolarPowerRatio),
		zap.Float64("rampedTargetSolarPowerRatio", record.RampedTargetSolarPowerRatio))
}

func (s *LogSink) WriteLimit(limit domain.ReconciledLimit) {
	s.logger.Debug("controlLimit", zap.Any("limit", limit))
}

func (s *LogSink) WriteDevicePoll(record domain.DevicePollRecord) {
	s.logger.Debug("devicePoll",
		zap.String("device", record.DeviceId),
		zap.Bool("success", record.Success),
		zap.Int("attempts", record.Attempts),
		zap.Duration("duration", record.Duration),
		zap.Uint64("seq", record.Seq))
}
