package port

import "github.com/berfenger/exportguard/internal/core/domain"

// MetricsSink is fire-and-forget: implementations must not block the
// control loop and must swallow their own errors.
type MetricsSink interface {
	WriteControl(record domain.ControlRecord)
	WriteLimit(limit domain.ReconciledLimit)
	WriteDevicePoll(record domain.DevicePollRecord)
}
