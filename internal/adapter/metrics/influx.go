package metrics

import (
	"time"

	"github.com/berfenger/exportguard/internal/config"
	"github.com/berfenger/exportguard/internal/core/domain"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"
)

const (
	POINT_INVERTER_CONTROL = "inverterControl"
	POINT_CONTROL_LIMIT    = "controlLimit"
	POINT_DEVICE_POLL      = "devicePoll"
)

var now = time.Now

// InfluxSink writes points through the non-blocking write API. Write errors
// are logged from a background goroutine and never reach the caller.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	done     chan struct{}
	logger   *zap.Logger
}

func NewInfluxSink(cfg config.InfluxDBConfig, logger *zap.Logger) *InfluxSink {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	s := &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		done:     make(chan struct{}),
		logger:   logger.With(zap.String("sink", "influxdb")),
	}
	go s.logErrors()
	return s
}

func (s *InfluxSink) logErrors() {
	errs := s.writeAPI.Errors()
	for {
		select {
		case err := <-errs:
			s.logger.Warn("influxdb write error", zap.Error(err))
		case <-s.done:
			return
		}
	}
}

func (s *InfluxSink) WriteControl(record domain.ControlRecord) {
	s.writeAPI.WritePoint(ControlPoint(record))
}

func (s *InfluxSink) WriteLimit(limit domain.ReconciledLimit) {
	if p := LimitPoint(limit); p != nil {
		s.writeAPI.WritePoint(p)
	}
}

func (s *InfluxSink) WriteDevicePoll(record domain.DevicePollRecord) {
	s.writeAPI.WritePoint(DevicePollPoint(record))
}

func (s *InfluxSink) Close() {
	s.writeAPI.Flush()
	close(s.done)
	s.client.Close()
}

func ControlPoint(record domain.ControlRecord) *write.Point {
	return influxdb2.NewPoint(POINT_INVERTER_CONTROL,
		map[string]string{},
		map[string]interface{}{
			"deenergize":                  record.Deenergize,
			"siteWatts":                   record.SiteWatts,
			"solarWatts":                  record.SolarWatts,
			"exportLimitWatts":            record.ExportLimitWatts,
			"exportLimitTargetSolarWatts": record.ExportLimitTargetSolarWatts,
			"generationLimitWatts":        record.GenerationLimitWatts,
			"targetSolarWatts":            record.TargetSolarWatts,
			"currentPowerRatio":           record.CurrentPowerRatio,
			"targetSolarPowerRatio":       record.TargetSolarPowerRatio,
			"rampedTargetSolarPowerRatio": record.RampedTargetSolarPowerRatio,
		},
		record.Time)
}

// LimitPoint returns nil when no source set any field.
func LimitPoint(limit domain.ReconciledLimit) *write.Point {
	tags := map[string]string{}
	fields := map[string]interface{}{}
	if w := limit.Connect; w != nil {
		fields["opModConnect"] = w.Value
		tags["opModConnectSource"] = w.Source
	}
	if w := limit.Energize; w != nil {
		fields["opModEnergize"] = w.Value
		tags["opModEnergizeSource"] = w.Source
	}
	if w := limit.ExportLimitWatts; w != nil {
		fields["opModExpLimW"] = w.Value
		tags["opModExpLimWSource"] = w.Source
	}
	if w := limit.GenerationLimitWatts; w != nil {
		fields["opModGenLimW"] = w.Value
		tags["opModGenLimWSource"] = w.Source
	}
	if len(fields) == 0 {
		return nil
	}
	return influxdb2.NewPoint(POINT_CONTROL_LIMIT, tags, fields, now())
}

func DevicePollPoint(record domain.DevicePollRecord) *write.Point {
	fields := map[string]interface{}{
		"success":    record.Success,
		"attempts":   record.Attempts,
		"durationMs": record.Duration.Milliseconds(),
		"seq":        int64(record.Seq),
	}
	for step, d := range record.Steps {
		fields[step+"Ms"] = d.Milliseconds()
	}
	return influxdb2.NewPoint(POINT_DEVICE_POLL,
		map[string]string{"device": record.DeviceId},
		fields,
		record.Time)
}
